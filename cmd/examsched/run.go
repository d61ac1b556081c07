package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/exam-scheduler-api/internal/ingest"
	"github.com/noah-isme/exam-scheduler-api/internal/models"
	"github.com/noah-isme/exam-scheduler-api/internal/scheduler"
	"github.com/noah-isme/exam-scheduler-api/internal/service"
	"github.com/noah-isme/exam-scheduler-api/pkg/export"
)

const (
	formatJSON = "json"
	formatCSV  = "csv"
	formatPDF  = "pdf"
)

type runOptions struct {
	ExamsPath   string
	RoomsPath   string
	Days        int
	Term        string
	Accelerated bool
	Format      string
	Out         string
}

func (o runOptions) validate() error {
	switch o.Format {
	case formatJSON, formatCSV, formatPDF:
	default:
		return fmt.Errorf("unsupported format %q (want json, csv or pdf)", o.Format)
	}
	if o.Days < 1 {
		return fmt.Errorf("--days must be at least 1")
	}
	return nil
}

type runReport struct {
	source       string
	output       string
	payload      []byte
	result       *scheduler.Result
	recordErrors []ingest.RecordError
	elapsed      time.Duration
}

func generate(ctx context.Context, engine *scheduler.Engine, opts runOptions, rooms []models.Room, log *zap.Logger) (*runReport, error) {
	exams, recordErrors, err := loadExams(opts.ExamsPath)
	if err != nil {
		return nil, err
	}
	for _, failure := range recordErrors {
		log.Warn("offering record skipped", zap.Int("index", failure.Index), zap.String("error", failure.Error))
	}

	start := time.Now()
	result, err := engine.Run(ctx, scheduler.Input{
		Exams:       exams,
		Rooms:       rooms,
		Days:        opts.Days,
		TermCode:    opts.Term,
		Accelerated: opts.Accelerated,
	})
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	log.Debug("engine run finished",
		zap.Int("entries", len(result.Entries)),
		zap.Int("unscheduled", len(result.Unscheduled)),
		zap.Duration("elapsed", elapsed),
	)

	title := strings.TrimSpace(fmt.Sprintf("%s exam schedule", opts.Term))
	payload, err := render(result, title, opts.Format)
	if err != nil {
		return nil, err
	}
	if opts.Out != "" {
		if dir := filepath.Dir(opts.Out); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create output directory: %w", err)
			}
		}
		if err := os.WriteFile(opts.Out, payload, 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", opts.Out, err)
		}
	}
	return &runReport{
		source:       opts.ExamsPath,
		output:       opts.Out,
		payload:      payload,
		result:       result,
		recordErrors: recordErrors,
		elapsed:      elapsed,
	}, nil
}

func render(result *scheduler.Result, title, format string) ([]byte, error) {
	if format == formatJSON {
		raw, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode result: %w", err)
		}
		return append(raw, '\n'), nil
	}
	renderer, err := export.RendererFor(export.Format(format))
	if err != nil {
		return nil, err
	}
	return renderer.Render(service.ExamDataset(title, result.Entries))
}

func loadExams(path string) ([]models.Exam, []ingest.RecordError, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open offerings: %w", err)
	}
	defer file.Close()
	records, err := ingest.ReadRecords(file)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	exams, failures := ingest.DecodeExams(records)
	return exams, failures, nil
}

func loadRooms(path string) ([]models.Room, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rooms: %w", err)
	}
	defer file.Close()
	records, err := ingest.ReadRoomRecords(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rooms, failures := ingest.DecodeRooms(records)
	if len(failures) > 0 {
		return nil, fmt.Errorf("%s: room %d: %s", path, failures[0].Index, failures[0].Error)
	}
	return rooms, nil
}

func printSummary(w io.Writer, report *runReport) {
	summary := report.result.Summary
	fmt.Fprintf(w, "%s: %s of %s groups scheduled (%s%%), %s exams over %d days, max %d per day, %s\n",
		filepath.Base(report.source),
		humanize.Comma(int64(summary.ScheduledGroups)),
		humanize.Comma(int64(summary.EligibleGroups)),
		summary.Coverage.StringFixed(2),
		humanize.Comma(int64(summary.ScheduledExams)),
		summary.Days,
		summary.MaxPerDay,
		report.elapsed.Round(time.Millisecond),
	)
	if report.output != "" {
		fmt.Fprintf(w, "  wrote %s (%s)\n", report.output, humanize.Bytes(uint64(len(report.payload))))
	}
	if n := len(report.recordErrors); n > 0 {
		fmt.Fprintf(w, "  skipped %s %s\n", humanize.Comma(int64(n)), plural(n, "record", "records"))
	}
	if n := report.result.Filter.Input - report.result.Filter.Eligible; n > 0 {
		fmt.Fprintf(w, "  dropped %s %s during catalog filtering\n", humanize.Comma(int64(n)), plural(n, "offering", "offerings"))
	}
	for _, group := range report.result.Unscheduled {
		reasons := lo.MapToSlice(group.Rejections, func(reason scheduler.Rejection, count int) string {
			return fmt.Sprintf("%s x%d", reason, count)
		})
		sort.Strings(reasons)
		fmt.Fprintf(w, "  unscheduled %s [%s] %d %s: %s\n",
			group.SubjectID, group.Class, group.Sections, plural(group.Sections, "section", "sections"),
			strings.Join(reasons, ", "))
	}
	for _, v := range report.result.Violations {
		fmt.Fprintf(w, "  violation %s: %s\n", v.Kind, v.Detail)
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
