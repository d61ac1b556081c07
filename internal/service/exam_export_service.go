package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/exam-scheduler-api/internal/dto"
	"github.com/noah-isme/exam-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/exam-scheduler-api/pkg/errors"
	"github.com/noah-isme/exam-scheduler-api/pkg/export"
	"github.com/noah-isme/exam-scheduler-api/pkg/storage"
)

var examExportHeaders = []string{"Day", "Slot", "Subject", "Title", "Course", "Year", "Dept", "Section", "Room", "Instructor"}

type examScheduleSource interface {
	GetProposal(ctx context.Context, proposalID string) (*dto.ExamScheduleProposalResponse, error)
	GetSchedule(ctx context.Context, scheduleID string) (*models.ExamSchedule, []models.ExamScheduleEntry, error)
}

type exportFileStorage interface {
	Save(name string, data []byte) (string, error)
	Open(name string) (*os.File, error)
	Delete(name string) error
	CleanupOlderThan(retention time.Duration, now time.Time) ([]string, error)
}

type exportSigner interface {
	Generate(id, relPath string) (string, time.Time, error)
	Parse(token string) (id, relPath string, expiresAt time.Time, err error)
}

// ExamExportConfig controls export links and retention.
type ExamExportConfig struct {
	APIPrefix string
	Retention time.Duration
}

// ExamExportService renders proposals and saved schedules to downloadable files.
type ExamExportService struct {
	source    examScheduleSource
	storage   exportFileStorage
	signer    exportSigner
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       ExamExportConfig
	now       func() time.Time
}

// ExportDownload describes a resolved download token.
type ExportDownload struct {
	Path        string
	Filename    string
	ContentType string
	ExpiresAt   time.Time
}

// NewExamExportService constructs the service.
func NewExamExportService(source examScheduleSource, files exportFileStorage, signer exportSigner, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger, cfg ExamExportConfig) *ExamExportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 72 * time.Hour
	}
	return &ExamExportService{
		source:    source,
		storage:   files,
		signer:    signer,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Export renders the requested timetable and returns a signed download link.
func (s *ExamExportService) Export(ctx context.Context, req dto.ExportExamScheduleRequest) (*dto.ExportExamScheduleResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export payload")
	}
	format := export.Format(strings.ToLower(req.Format))

	dataset, err := s.buildDataset(ctx, req)
	if err != nil {
		return nil, err
	}
	renderer, err := export.RendererFor(format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unsupported export format")
	}
	payload, err := renderer.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	exportID := uuid.NewString()
	relPath, err := s.storage.Save(s.filename(dataset.Title, exportID, format), payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}
	token, expiresAt, err := s.signer.Generate(exportID, relPath)
	if err != nil {
		_ = s.storage.Delete(relPath)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export link")
	}

	s.metrics.RecordExport(string(format))
	s.logger.Info("exam schedule exported",
		zap.String("export_id", exportID),
		zap.String("format", string(format)),
		zap.Int("rows", len(dataset.Rows)),
		zap.Int("bytes", len(payload)),
	)

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return &dto.ExportExamScheduleResponse{
		ExportID:  exportID,
		Format:    string(format),
		URL:       fmt.Sprintf("%s/exam-schedules/exports/download?token=%s", prefix, token),
		ExpiresAt: expiresAt,
		SizeBytes: len(payload),
	}, nil
}

// Resolve checks a download token and returns the stored file it points at.
func (s *ExamExportService) Resolve(token string) (*ExportDownload, error) {
	if strings.TrimSpace(token) == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "download token required")
	}
	_, relPath, expiresAt, err := s.signer.Parse(token)
	switch {
	case errors.Is(err, storage.ErrTokenExpired):
		return nil, appErrors.ErrExportExpired
	case err != nil:
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid download token")
	}
	format := export.Format(strings.TrimPrefix(strings.ToLower(path.Ext(relPath)), "."))
	return &ExportDownload{
		Path:        relPath,
		Filename:    path.Base(relPath),
		ContentType: format.ContentType(),
		ExpiresAt:   expiresAt,
	}, nil
}

// Open returns a handle to a stored export. A missing file maps to ErrExportExpired.
func (s *ExamExportService) Open(relPath string) (*os.File, error) {
	file, err := s.storage.Open(relPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.ErrExportExpired
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export")
	}
	return file, nil
}

// Cleanup removes exports older than the retention window.
func (s *ExamExportService) Cleanup() ([]string, error) {
	removed, err := s.storage.CleanupOlderThan(s.cfg.Retention, s.now())
	if err != nil {
		return removed, err
	}
	if len(removed) > 0 {
		s.logger.Info("expired exam exports removed", zap.Int("count", len(removed)))
	}
	return removed, nil
}

func (s *ExamExportService) buildDataset(ctx context.Context, req dto.ExportExamScheduleRequest) (export.Dataset, error) {
	var (
		title   string
		entries []models.ScheduledExam
	)
	if req.ProposalID != "" {
		proposal, err := s.source.GetProposal(ctx, req.ProposalID)
		if err != nil {
			return export.Dataset{}, err
		}
		title = fmt.Sprintf("%s %s exam schedule (draft)", proposal.TermCode, proposal.ExamGroup)
		entries = proposal.Entries
	} else {
		schedule, rows, err := s.source.GetSchedule(ctx, req.ScheduleID)
		if err != nil {
			return export.Dataset{}, err
		}
		title = fmt.Sprintf("%s %s exam schedule v%d", schedule.TermCode, schedule.ExamGroup, schedule.Version)
		entries = make([]models.ScheduledExam, 0, len(rows))
		for _, row := range rows {
			entries = append(entries, row.ScheduledExam)
		}
	}
	return ExamDataset(title, entries), nil
}

// ExamDataset tabulates scheduled exams ordered by day, slot and room, banded by day.
func ExamDataset(title string, entries []models.ScheduledExam) export.Dataset {
	sorted := append([]models.ScheduledExam(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.DayIndex != b.DayIndex {
			return a.DayIndex < b.DayIndex
		}
		if a.SlotIndex != b.SlotIndex {
			return a.SlotIndex < b.SlotIndex
		}
		return a.Room < b.Room
	})
	rows := make([][]string, 0, len(sorted))
	for _, e := range sorted {
		rows = append(rows, []string{
			e.DayLabel,
			e.SlotLabel,
			e.SubjectID,
			e.Title,
			e.Course,
			strconv.Itoa(e.YearLevel),
			e.Department,
			e.Code,
			e.Room,
			e.Instructor,
		})
	}
	return export.Dataset{
		Title:   title,
		Headers: examExportHeaders,
		Rows:    rows,
		GroupBy: "Day",
	}
}

func (s *ExamExportService) filename(title, exportID string, format export.Format) string {
	timestamp := s.now().UTC().Format("20060102_150405")
	return fmt.Sprintf("exam-schedules/%s_%s_%s.%s", sanitizeExportName(title), timestamp, exportID[:8], format)
}

func sanitizeExportName(raw string) string {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return "schedule"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "(", "", ")", "", ".", "")
	result := replacer.Replace(raw)
	if len(result) > 80 {
		return result[:80]
	}
	return result
}
