package service

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/noah-isme/exam-scheduler-api/internal/dto"
	"github.com/noah-isme/exam-scheduler-api/internal/ingest"
	"github.com/noah-isme/exam-scheduler-api/internal/models"
	"github.com/noah-isme/exam-scheduler-api/internal/scheduler"
	appErrors "github.com/noah-isme/exam-scheduler-api/pkg/errors"
)

const resultCachePrefix = "exam-schedule:result:"

type examOfferingReader interface {
	ListByTerm(ctx context.Context, termCode string) ([]models.Exam, error)
}

type examRoomReader interface {
	ListActive(ctx context.Context) ([]models.Room, error)
}

type examScheduleRepository interface {
	CreateVersioned(ctx context.Context, exec sqlx.ExtContext, schedule *models.ExamSchedule) error
	ListByTerm(ctx context.Context, termCode, examGroup string) ([]models.ExamSchedule, error)
	FindByID(ctx context.Context, id string) (*models.ExamSchedule, error)
	Delete(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.ExamScheduleStatus, meta types.JSONText) error
	ArchivePublished(ctx context.Context, exec sqlx.ExtContext, termCode, examGroup, keepID string) (int64, error)
}

type examScheduleEntryRepository interface {
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, entries []models.ExamScheduleEntry) error
	ListBySchedule(ctx context.Context, scheduleID string) ([]models.ExamScheduleEntry, error)
}

type resultCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// ExamScheduleConfig governs generation behaviour.
type ExamScheduleConfig struct {
	ProposalTTL time.Duration
	CacheTTL    time.Duration
	RunBudget   time.Duration
	DefaultDays int
}

// ExamScheduleService builds exam timetable proposals and persists saved versions.
type ExamScheduleService struct {
	offerings examOfferingReader
	rooms     examRoomReader
	schedules examScheduleRepository
	entries   examScheduleEntryRepository
	cache     resultCache
	tx        txProvider
	engine    *scheduler.Engine
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	config    ExamScheduleConfig
	store     *examProposalStore
	now       func() time.Time
}

// NewExamScheduleService wires the scheduler dependencies. cache, metrics and the catalog
// readers may be nil.
func NewExamScheduleService(
	offerings examOfferingReader,
	rooms examRoomReader,
	schedules examScheduleRepository,
	entries examScheduleEntryRepository,
	cache resultCache,
	tx txProvider,
	engine *scheduler.Engine,
	validate *validator.Validate,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg ExamScheduleConfig,
) *ExamScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = scheduler.NewEngine(scheduler.DefaultPolicy())
	}
	if cfg.ProposalTTL <= 0 {
		cfg.ProposalTTL = 30 * time.Minute
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 15 * time.Minute
	}
	if cfg.RunBudget <= 0 {
		cfg.RunBudget = 30 * time.Second
	}
	if cfg.DefaultDays <= 0 {
		cfg.DefaultDays = 5
	}
	svc := &ExamScheduleService{
		offerings: offerings,
		rooms:     rooms,
		schedules: schedules,
		entries:   entries,
		cache:     cache,
		tx:        tx,
		engine:    engine,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		config:    cfg,
		now:       time.Now,
	}
	svc.store = newExamProposalStore(cfg.ProposalTTL, func() time.Time { return svc.now() })
	return svc
}

// Generate runs the engine for the request and stores the result as a proposal.
func (s *ExamScheduleService) Generate(ctx context.Context, req dto.GenerateExamScheduleRequest) (*dto.ExamScheduleProposalResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exam schedule generation payload")
	}

	input, recordErrors, err := s.buildInput(ctx, req)
	if err != nil {
		return nil, err
	}
	fingerprint, err := examFingerprint(input, s.engine.Policy())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fingerprint generation input")
	}

	start := time.Now()
	result, cached := s.cachedResult(ctx, fingerprint)
	if cached {
		s.metrics.ObserveGeneration("cached", time.Since(start))
	} else {
		result, err = s.run(ctx, input)
		if err != nil {
			return nil, err
		}
		s.recordRun(req.ExamGroup, result, time.Since(start))
		if s.cache != nil {
			if cacheErr := s.cache.Set(ctx, resultCachePrefix+fingerprint, result, s.config.CacheTTL); cacheErr != nil {
				s.logger.Warn("exam schedule result not cached", zap.String("fingerprint", fingerprint), zap.Error(cacheErr))
			}
		}
	}

	proposal := &examProposal{
		ID:           uuid.NewString(),
		TermCode:     req.TermCode,
		ExamGroup:    req.ExamGroup,
		Fingerprint:  fingerprint,
		Cached:       cached,
		MaxPerDay:    result.Summary.MaxPerDay,
		DayLabels:    scheduler.DayLabels(input.Days, input.DayLabels),
		Result:       *result,
		RecordErrors: recordErrors,
		GeneratedAt:  s.now().UTC(),
	}
	s.store.Save(proposal)

	s.logger.Info("exam schedule generated",
		zap.String("proposal_id", proposal.ID),
		zap.String("term_code", req.TermCode),
		zap.String("exam_group", req.ExamGroup),
		zap.Int("eligible_groups", result.Summary.EligibleGroups),
		zap.Int("scheduled_exams", result.Summary.ScheduledExams),
		zap.Int("unscheduled", len(result.Unscheduled)),
		zap.String("coverage", result.Summary.Coverage.StringFixed(2)),
		zap.Bool("cached", cached),
		zap.Duration("elapsed", time.Since(start)),
	)
	return s.toResponse(proposal), nil
}

// GetProposal returns a held proposal.
func (s *ExamScheduleService) GetProposal(ctx context.Context, proposalID string) (*dto.ExamScheduleProposalResponse, error) {
	proposal, err := s.store.Get(proposalID)
	if err != nil {
		return nil, err
	}
	return s.toResponse(proposal), nil
}

// MoveEntry places every record of one section at the requested day, slot and room. No
// constraint is enforced; the proposal's violations are recomputed instead.
func (s *ExamScheduleService) MoveEntry(ctx context.Context, proposalID string, req dto.MoveExamRequest) (*dto.ExamScheduleProposalResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exam move payload")
	}
	policy := s.engine.Policy()
	slots := len(policy.SlotLabels)

	updated, err := s.store.Update(proposalID, func(p *examProposal) error {
		if req.Day >= len(p.DayLabels) {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("day %d is outside the %d-day window", req.Day, len(p.DayLabels)))
		}
		idx := make([]int, 0, 2)
		for i, entry := range p.Result.Entries {
			if entry.SubjectID == req.SubjectID && entry.Code == req.Code {
				idx = append(idx, i)
			}
		}
		if len(idx) == 0 {
			return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("section %s of %s is not scheduled in this proposal", req.Code, req.SubjectID))
		}
		sort.SliceStable(idx, func(a, b int) bool {
			return p.Result.Entries[idx[a]].SlotIndex < p.Result.Entries[idx[b]].SlotIndex
		})
		if req.Slot+len(idx) > slots {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("slot %d cannot hold a %d-slot exam", req.Slot, len(idx)))
		}

		entries := append([]models.ScheduledExam(nil), p.Result.Entries...)
		for offset, i := range idx {
			entries[i].DayIndex = req.Day
			entries[i].DayLabel = p.DayLabels[req.Day]
			entries[i].SlotIndex = req.Slot + offset
			entries[i].SlotLabel = policy.SlotLabels[req.Slot+offset]
			entries[i].Room = req.Room
		}
		sort.SliceStable(entries, func(a, b int) bool {
			if entries[a].DayIndex != entries[b].DayIndex {
				return entries[a].DayIndex < entries[b].DayIndex
			}
			return entries[a].SlotIndex < entries[b].SlotIndex
		})
		p.Result.Entries = entries
		p.Result.Violations = scheduler.Verify(entries, policy, p.MaxPerDay)
		p.Edited = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("exam schedule entry moved",
		zap.String("proposal_id", proposalID),
		zap.String("subject_id", req.SubjectID),
		zap.String("code", req.Code),
		zap.Int("day", req.Day),
		zap.Int("slot", req.Slot),
		zap.String("room", req.Room),
		zap.Int("violations", len(updated.Result.Violations)),
	)
	return s.toResponse(updated), nil
}

// Save persists a proposal as the next version of its term and exam group.
func (s *ExamScheduleService) Save(ctx context.Context, req dto.SaveExamScheduleRequest) (*dto.SaveExamScheduleResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid save exam schedule payload")
	}
	proposal, err := s.store.Get(req.ProposalID)
	if err != nil {
		return nil, err
	}
	if len(proposal.Result.Violations) > 0 && !req.Force {
		return nil, appErrors.Clone(appErrors.ErrScheduleInfeasible, fmt.Sprintf("proposal breaks %d hard rules; resend with force to keep it", len(proposal.Result.Violations)))
	}
	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}

	metaBytes, marshalErr := json.Marshal(map[string]any{
		"summary":      proposal.Result.Summary,
		"fingerprint":  proposal.Fingerprint,
		"edited":       proposal.Edited,
		"violations":   proposal.Result.Violations,
		"generated_at": proposal.GeneratedAt,
		"algorithm":    "greedy_v6",
	})
	if marshalErr != nil {
		return nil, appErrors.Wrap(marshalErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode exam schedule metadata")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	record := &models.ExamSchedule{
		TermCode:  proposal.TermCode,
		ExamGroup: proposal.ExamGroup,
		Status:    models.ExamScheduleStatusDraft,
		Meta:      types.JSONText(metaBytes),
	}
	if err = s.schedules.CreateVersioned(ctx, tx, record); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create exam schedule")
		return nil, err
	}

	rows := lo.Map(proposal.Result.Entries, func(entry models.ScheduledExam, _ int) models.ExamScheduleEntry {
		return models.ExamScheduleEntry{ScheduleID: record.ID, ScheduledExam: entry}
	})
	if err = s.entries.InsertBatch(ctx, tx, rows); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist exam schedule entries")
		return nil, err
	}

	if req.Publish {
		if err = s.publish(ctx, tx, record); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit exam schedule transaction")
		return nil, err
	}

	s.store.Delete(req.ProposalID)
	s.logger.Info("exam schedule saved",
		zap.String("schedule_id", record.ID),
		zap.String("term_code", record.TermCode),
		zap.String("exam_group", record.ExamGroup),
		zap.Int("version", record.Version),
		zap.String("status", string(record.Status)),
	)
	return &dto.SaveExamScheduleResponse{ScheduleID: record.ID, Version: record.Version, Status: record.Status}, nil
}

// Publish makes a stored version the published one of its term and exam group.
func (s *ExamScheduleService) Publish(ctx context.Context, scheduleID string) (*dto.SaveExamScheduleResponse, error) {
	record, err := s.findSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if record.Status == models.ExamScheduleStatusPublished {
		return &dto.SaveExamScheduleResponse{ScheduleID: record.ID, Version: record.Version, Status: record.Status}, nil
	}
	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.publish(ctx, tx, record); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit exam schedule transaction")
		return nil, err
	}
	return &dto.SaveExamScheduleResponse{ScheduleID: record.ID, Version: record.Version, Status: record.Status}, nil
}

// List returns stored versions for a term, optionally narrowed to one exam group.
func (s *ExamScheduleService) List(ctx context.Context, query dto.ExamScheduleQuery) ([]models.ExamSchedule, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "termCode is required")
	}
	list, err := s.schedules.ListByTerm(ctx, query.TermCode, query.ExamGroup)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list exam schedules")
	}
	return list, nil
}

// GetEntries returns the entries of a stored schedule.
func (s *ExamScheduleService) GetEntries(ctx context.Context, scheduleID string) ([]models.ExamScheduleEntry, error) {
	_, entries, err := s.GetSchedule(ctx, scheduleID)
	return entries, err
}

// GetSchedule returns a stored schedule with its entries.
func (s *ExamScheduleService) GetSchedule(ctx context.Context, scheduleID string) (*models.ExamSchedule, []models.ExamScheduleEntry, error) {
	record, err := s.findSchedule(ctx, scheduleID)
	if err != nil {
		return nil, nil, err
	}
	entries, err := s.entries.ListBySchedule(ctx, scheduleID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list exam schedule entries")
	}
	return record, entries, nil
}

// Delete removes a draft or archived schedule version.
func (s *ExamScheduleService) Delete(ctx context.Context, scheduleID string) error {
	record, err := s.findSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}
	if record.Status == models.ExamScheduleStatusPublished {
		return appErrors.Clone(appErrors.ErrConflict, "published exam schedules cannot be deleted")
	}
	if err := s.schedules.Delete(ctx, scheduleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "exam schedule not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete exam schedule")
	}
	return nil
}

// PruneProposals drops expired proposals and returns how many were removed.
func (s *ExamScheduleService) PruneProposals() int {
	return s.store.Prune()
}

func (s *ExamScheduleService) findSchedule(ctx context.Context, scheduleID string) (*models.ExamSchedule, error) {
	if scheduleID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "schedule id is required")
	}
	record, err := s.schedules.FindByID(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam schedule")
	}
	return record, nil
}

func (s *ExamScheduleService) publish(ctx context.Context, tx *sqlx.Tx, record *models.ExamSchedule) error {
	if _, err := s.schedules.ArchivePublished(ctx, tx, record.TermCode, record.ExamGroup, record.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive published exam schedules")
	}
	if err := s.schedules.UpdateStatus(ctx, tx, record.ID, models.ExamScheduleStatusPublished, nil); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "exam schedule not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish exam schedule")
	}
	record.Status = models.ExamScheduleStatusPublished
	return nil
}

func (s *ExamScheduleService) buildInput(ctx context.Context, req dto.GenerateExamScheduleRequest) (scheduler.Input, []ingest.RecordError, error) {
	input := scheduler.Input{
		Days:        req.Days,
		DayLabels:   req.DayLabels,
		TermCode:    req.TermCode,
		Accelerated: req.Accelerated,
	}
	if input.Days == 0 {
		input.Days = len(req.DayLabels)
	}
	if input.Days == 0 {
		input.Days = s.config.DefaultDays
	}

	var recordErrors []ingest.RecordError
	switch {
	case len(req.Exams) > 0:
		input.Exams, recordErrors = ingest.DecodeExams(req.Exams)
	case s.offerings != nil:
		exams, err := s.offerings.ListByTerm(ctx, req.TermCode)
		if err != nil {
			return input, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam offerings")
		}
		input.Exams = exams
	}
	if len(input.Exams) == 0 {
		return input, recordErrors, appErrors.Clone(appErrors.ErrPreconditionFailed, "no exam offerings to schedule for this term")
	}

	switch {
	case len(req.Rooms) > 0:
		rooms, roomErrors := ingest.DecodeRooms(req.Rooms)
		input.Rooms = rooms
		for _, failure := range roomErrors {
			recordErrors = append(recordErrors, ingest.RecordError{Index: failure.Index, Error: "room: " + failure.Error})
		}
	case s.rooms != nil:
		rooms, err := s.rooms.ListActive(ctx)
		if err != nil {
			return input, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam rooms")
		}
		input.Rooms = rooms
	}

	input.Pinned = lo.Map(req.Pinned, func(pin dto.PinRequest, _ int) models.ScheduledExam {
		return models.ScheduledExam{
			Exam:      models.Exam{SubjectID: pin.SubjectID, Code: pin.Code},
			DayIndex:  pin.Day,
			SlotIndex: pin.Slot,
			Room:      pin.Room,
		}
	})
	return input, recordErrors, nil
}

func (s *ExamScheduleService) cachedResult(ctx context.Context, fingerprint string) (*scheduler.Result, bool) {
	if s.cache == nil {
		return nil, false
	}
	var result scheduler.Result
	hit, err := s.cache.Get(ctx, resultCachePrefix+fingerprint, &result)
	if err != nil {
		s.logger.Warn("exam schedule cache lookup failed", zap.String("fingerprint", fingerprint), zap.Error(err))
		return nil, false
	}
	if !hit {
		return nil, false
	}
	return &result, true
}

func (s *ExamScheduleService) run(ctx context.Context, input scheduler.Input) (*scheduler.Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.config.RunBudget)
	defer cancel()

	start := time.Now()
	result, err := s.engine.Run(runCtx, input)
	if err == nil {
		return result, nil
	}
	switch {
	case errors.Is(err, scheduler.ErrInvalidInput):
		s.metrics.ObserveGeneration("invalid", time.Since(start))
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		s.metrics.ObserveGeneration("timeout", time.Since(start))
		return nil, appErrors.Wrap(err, appErrors.ErrGenerationTimeout.Code, appErrors.ErrGenerationTimeout.Status, appErrors.ErrGenerationTimeout.Message)
	default:
		s.metrics.ObserveGeneration("error", time.Since(start))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "exam schedule generation failed")
	}
}

func (s *ExamScheduleService) recordRun(examGroup string, result *scheduler.Result, elapsed time.Duration) {
	s.metrics.ObserveGeneration("ok", elapsed)
	s.metrics.RecordCoverage(examGroup, result.Summary.Coverage.InexactFloat64())
	counts := lo.CountValuesBy(result.Unscheduled, func(group scheduler.UnscheduledGroup) string {
		return string(group.Class)
	})
	for class, n := range counts {
		s.metrics.RecordUnscheduled(class, n)
	}
}

func (s *ExamScheduleService) toResponse(p *examProposal) *dto.ExamScheduleProposalResponse {
	return &dto.ExamScheduleProposalResponse{
		ProposalID:    p.ID,
		TermCode:      p.TermCode,
		ExamGroup:     p.ExamGroup,
		Fingerprint:   p.Fingerprint,
		Cached:        p.Cached,
		Edited:        p.Edited,
		GeneratedAt:   p.GeneratedAt,
		ExpiresAt:     p.GeneratedAt.Add(s.config.ProposalTTL),
		Summary:       p.Result.Summary,
		Entries:       append([]models.ScheduledExam(nil), p.Result.Entries...),
		Unscheduled:   p.Result.Unscheduled,
		Violations:    append([]scheduler.Violation(nil), p.Result.Violations...),
		RejectedPins:  p.Result.RejectedPins,
		Filter:        p.Result.Filter,
		ExcludedRooms: p.Result.ExcludedRooms,
		RecordErrors:  p.RecordErrors,
	}
}

// examFingerprint hashes everything that determines an engine result.
func examFingerprint(input scheduler.Input, policy scheduler.Policy) (string, error) {
	payload, err := json.Marshal(struct {
		Input  scheduler.Input  `json:"input"`
		Policy scheduler.Policy `json:"policy"`
	}{input, policy})
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

type examProposal struct {
	ID           string
	TermCode     string
	ExamGroup    string
	Fingerprint  string
	Cached       bool
	Edited       bool
	MaxPerDay    int
	DayLabels    []string
	Result       scheduler.Result
	RecordErrors []ingest.RecordError
	GeneratedAt  time.Time
}

type examProposalStore struct {
	ttl   time.Duration
	now   func() time.Time
	mu    sync.RWMutex
	items map[string]*examProposal
}

func newExamProposalStore(ttl time.Duration, now func() time.Time) *examProposalStore {
	return &examProposalStore{ttl: ttl, now: now, items: make(map[string]*examProposal)}
}

func (s *examProposalStore) Save(proposal *examProposal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[proposal.ID] = proposal
}

// Get returns a copy of the proposal. Expired proposals are removed on access.
func (s *examProposalStore) Get(id string) (*examProposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	proposal, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	clone := *proposal
	return &clone, nil
}

// Update applies fn to a copy of the proposal and stores it when fn succeeds.
func (s *examProposalStore) Update(id string, fn func(*examProposal) error) (*examProposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	proposal, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	clone := *proposal
	if err := fn(&clone); err != nil {
		return nil, err
	}
	s.items[id] = &clone
	return &clone, nil
}

func (s *examProposalStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}

// Prune removes every expired proposal.
func (s *examProposalStore) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, proposal := range s.items {
		if s.expired(proposal) {
			delete(s.items, id)
			removed++
		}
	}
	return removed
}

func (s *examProposalStore) lookup(id string) (*examProposal, error) {
	proposal, ok := s.items[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "exam schedule proposal not found")
	}
	if s.expired(proposal) {
		delete(s.items, id)
		return nil, appErrors.Clone(appErrors.ErrProposalExpired, "exam schedule proposal expired; generate it again")
	}
	return proposal, nil
}

func (s *examProposalStore) expired(p *examProposal) bool {
	return s.now().Sub(p.GeneratedAt) > s.ttl
}
