package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/exam-scheduler-api/internal/scheduler"
)

func newGenerateCmd(root *rootOptions) *cobra.Command {
	opts := runOptions{Days: 5, Format: formatJSON}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate one exam timetable",
		Example: `  examsched generate --exams offerings.yaml --rooms rooms.json --days 5 --term 20241 --format csv --out finals.csv
  examsched generate --exams offerings.json --rooms rooms.yaml --format pdf --out finals.pdf`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validate(); err != nil {
				return err
			}
			if opts.Format == formatPDF && opts.Out == "" {
				return fmt.Errorf("--out is required for pdf output")
			}
			engine, err := root.engine()
			if err != nil {
				return err
			}
			rooms, err := loadRooms(opts.RoomsPath)
			if err != nil {
				return err
			}
			report, err := generate(cmd.Context(), engine, opts, rooms, root.log())
			if err != nil {
				return err
			}
			if opts.Out == "" {
				_, err = cmd.OutOrStdout().Write(report.payload)
				if err != nil {
					return err
				}
				printSummary(cmd.ErrOrStderr(), report)
				return nil
			}
			printSummary(cmd.OutOrStdout(), report)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.ExamsPath, "exams", "", "offerings file (JSON or YAML)")
	flags.StringVar(&opts.RoomsPath, "rooms", "", "rooms file (JSON or YAML)")
	flags.IntVar(&opts.Days, "days", opts.Days, "number of exam days")
	flags.StringVar(&opts.Term, "term", "", "term code; a code ending in 3 is treated as summer")
	flags.BoolVar(&opts.Accelerated, "accelerated", false, "accelerated term (raises the daily cap)")
	flags.StringVar(&opts.Out, "out", "", "output file (stdout when empty; required for pdf)")
	flags.StringVar(&opts.Format, "format", opts.Format, "output format: json, csv or pdf")
	_ = cmd.MarkFlagRequired("exams")
	_ = cmd.MarkFlagRequired("rooms")
	return cmd
}

func newBatchCmd(root *rootOptions) *cobra.Command {
	var (
		base     = runOptions{Days: 5, Format: formatCSV}
		outDir   string
		parallel int
	)
	cmd := &cobra.Command{
		Use:   "batch DIR",
		Short: "Generate a timetable for every offerings file in a directory",
		Long: `batch runs every .json, .yaml and .yml file in DIR as an independent offerings input
against the shared rooms file, which is skipped when it lives in DIR. Each result is
written to the output directory under the input's base name.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := base.validate(); err != nil {
				return err
			}
			inputs, err := listInputs(args[0], base.RoomsPath)
			if err != nil {
				return err
			}
			if len(inputs) == 0 {
				return fmt.Errorf("no offerings files in %s", args[0])
			}
			if outDir == "" {
				outDir = filepath.Join(args[0], "out")
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
			engine, err := root.engine()
			if err != nil {
				return err
			}
			rooms, err := loadRooms(base.RoomsPath)
			if err != nil {
				return err
			}

			reports := make([]*runReport, len(inputs))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(parallel)
			for i, input := range inputs {
				opts := base
				opts.ExamsPath = input
				name := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
				opts.Out = filepath.Join(outDir, name+"."+opts.Format)
				g.Go(func() error {
					report, err := generate(ctx, engine, opts, rooms, root.log().With(zap.String("input", name)))
					if err != nil {
						return fmt.Errorf("%s: %w", filepath.Base(input), err)
					}
					reports[i] = report
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			for _, report := range reports {
				printSummary(cmd.OutOrStdout(), report)
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&base.RoomsPath, "rooms", "", "rooms file shared by every input (JSON or YAML)")
	flags.IntVar(&base.Days, "days", base.Days, "number of exam days")
	flags.StringVar(&base.Term, "term", "", "term code")
	flags.BoolVar(&base.Accelerated, "accelerated", false, "accelerated term")
	flags.StringVar(&base.Format, "format", base.Format, "output format: json, csv or pdf")
	flags.StringVar(&outDir, "out", "", "output directory (DIR/out when empty)")
	flags.IntVar(&parallel, "parallel", 4, "maximum concurrent runs")
	_ = cmd.MarkFlagRequired("rooms")
	return cmd
}

func newPolicyCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect the scheduling policy",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Print the effective policy as TOML",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := root.engine()
			if err != nil {
				return err
			}
			raw, err := scheduler.EncodePolicy(engine.Policy())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(raw)
			return err
		},
	})
	return cmd
}

func listInputs(dir, skip string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read input directory: %w", err)
	}
	var inputs []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if samePath(path, skip) {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".json", ".yaml", ".yml":
			inputs = append(inputs, path)
		}
	}
	sort.Strings(inputs)
	return inputs, nil
}

func samePath(a, b string) bool {
	if b == "" {
		return false
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}
