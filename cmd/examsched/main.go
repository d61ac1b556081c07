package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/exam-scheduler-api/internal/scheduler"
	"github.com/noah-isme/exam-scheduler-api/pkg/logger"
)

type rootOptions struct {
	policyPath string
	verbose    bool
	logger     *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "examsched",
		Short: "Exam timetable generator",
		Long: `examsched places examinable sections into days, time slots and rooms
without cohort conflicts, using the same engine as the API server.
Inputs are JSON or YAML lists of offering records and rooms.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := logger.NewCLI(opts.verbose)
			if err != nil {
				return err
			}
			opts.logger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}
	cmd.PersistentFlags().StringVar(&opts.policyPath, "policy", "", "policy TOML file (defaults to the built-in policy)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(newGenerateCmd(opts), newBatchCmd(opts), newPolicyCmd(opts))
	return cmd
}

func (o *rootOptions) engine() (*scheduler.Engine, error) {
	policy, err := scheduler.LoadPolicy(o.policyPath)
	if err != nil {
		return nil, err
	}
	return scheduler.NewEngine(policy), nil
}

func (o *rootOptions) log() *zap.Logger {
	if o.logger == nil {
		return zap.NewNop()
	}
	return o.logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
