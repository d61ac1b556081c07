package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-scheduler-api/internal/dto"
	"github.com/noah-isme/exam-scheduler-api/internal/models"
	"github.com/noah-isme/exam-scheduler-api/internal/scheduler"
	appErrors "github.com/noah-isme/exam-scheduler-api/pkg/errors"
)

func TestExamScheduleServiceGenerateInline(t *testing.T) {
	fx := newExamScheduleFixture(t, examFixtureConfig{})

	resp, err := fx.svc.Generate(context.Background(), inlineRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, resp.ProposalID)
	assert.Len(t, resp.Fingerprint, 64)
	assert.False(t, resp.Cached)
	assert.Len(t, resp.Entries, 3)
	assert.Empty(t, resp.Violations)
	assert.Equal(t, "100.00", resp.Summary.Coverage.StringFixed(2))
	assert.Equal(t, resp.GeneratedAt.Add(30*time.Minute), resp.ExpiresAt)
	require.Len(t, resp.RecordErrors, 1)
	assert.Equal(t, 3, resp.RecordErrors[0].Index)

	again, err := fx.svc.GetProposal(context.Background(), resp.ProposalID)
	require.NoError(t, err)
	assert.Equal(t, resp.Entries, again.Entries)
	assert.Equal(t, uint64(1), fx.metrics.Snapshot().Generations)
	assert.Equal(t, 100.0, fx.metrics.Snapshot().LastCoverage)
}

func TestExamScheduleServiceGenerateFromCatalog(t *testing.T) {
	offerings := &offeringRepoStub{byTerm: map[string][]models.Exam{
		"20241": {
			{Code: "1001", SubjectID: "ITEC 201", Course: "BSIT", YearLevel: 2, Department: "SECAP", LectureUnits: 3},
			{Code: "2001", SubjectID: "NURS 101", Course: "BSN", YearLevel: 1, Department: "SHAS", LectureUnits: 3},
		},
	}}
	rooms := &roomRepoStub{rooms: []models.Room{{ID: "A-201", Active: true}, {ID: "L-101", Active: true}}}
	fx := newExamScheduleFixture(t, examFixtureConfig{offerings: offerings, rooms: rooms})

	resp, err := fx.svc.Generate(context.Background(), dto.GenerateExamScheduleRequest{TermCode: "20241", ExamGroup: "FINALS", Days: 2})
	require.NoError(t, err)
	assert.Len(t, resp.Entries, 2)
	assert.Equal(t, 1, rooms.calls)

	_, err = fx.svc.Generate(context.Background(), dto.GenerateExamScheduleRequest{TermCode: "20242", ExamGroup: "FINALS"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)

	offerings.err = errors.New("db down")
	_, err = fx.svc.Generate(context.Background(), dto.GenerateExamScheduleRequest{TermCode: "20241", ExamGroup: "FINALS"})
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestExamScheduleServiceGenerateReusesCachedResult(t *testing.T) {
	cache := newMemoryResultCache()
	fx := newExamScheduleFixture(t, examFixtureConfig{cache: cache})

	first, err := fx.svc.Generate(context.Background(), inlineRequest())
	require.NoError(t, err)
	second, err := fx.svc.Generate(context.Background(), inlineRequest())
	require.NoError(t, err)

	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.NotEqual(t, first.ProposalID, second.ProposalID)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, first.Entries, second.Entries)
	assert.True(t, first.Summary.Coverage.Equal(second.Summary.Coverage))
	assert.Contains(t, cache.items, resultCachePrefix+first.Fingerprint)
	assert.Equal(t, 1, cache.sets)

	other := inlineRequest()
	other.Days = 4
	third, err := fx.svc.Generate(context.Background(), other)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.NotEqual(t, first.Fingerprint, third.Fingerprint)
}

func TestExamScheduleServiceGenerateErrors(t *testing.T) {
	fx := newExamScheduleFixture(t, examFixtureConfig{})

	tests := []struct {
		name string
		req  dto.GenerateExamScheduleRequest
		code string
	}{
		{name: "missing term", req: dto.GenerateExamScheduleRequest{ExamGroup: "FINALS"}, code: appErrors.ErrValidation.Code},
		{name: "too many days", req: func() dto.GenerateExamScheduleRequest {
			r := inlineRequest()
			r.Days = 40
			return r
		}(), code: appErrors.ErrValidation.Code},
		{name: "labels disagree with days", req: func() dto.GenerateExamScheduleRequest {
			r := inlineRequest()
			r.Days = 3
			r.DayLabels = []string{"Mon", "Tue"}
			return r
		}(), code: appErrors.ErrValidation.Code},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fx.svc.Generate(context.Background(), tc.req)
			require.Error(t, err)
			assert.Equal(t, tc.code, appErrors.FromError(err).Code)
		})
	}
}

func TestExamScheduleServiceGenerateTimesOut(t *testing.T) {
	fx := newExamScheduleFixture(t, examFixtureConfig{budget: time.Nanosecond})

	_, err := fx.svc.Generate(context.Background(), inlineRequest())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrGenerationTimeout.Code, appErr.Code)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExamScheduleServiceMoveEntryRecomputesViolations(t *testing.T) {
	fx := newExamScheduleFixture(t, examFixtureConfig{})
	resp, err := fx.svc.Generate(context.Background(), inlineRequest())
	require.NoError(t, err)

	anchor := findEntry(t, resp.Entries, "ITEC 201")
	moved, err := fx.svc.MoveEntry(context.Background(), resp.ProposalID, dto.MoveExamRequest{
		SubjectID: "ITEC 202", Code: "1002", Day: anchor.DayIndex, Slot: anchor.SlotIndex, Room: "A-206",
	})
	require.NoError(t, err)

	assert.True(t, moved.Edited)
	entry := findEntry(t, moved.Entries, "ITEC 202")
	assert.Equal(t, anchor.DayIndex, entry.DayIndex)
	assert.Equal(t, anchor.SlotLabel, entry.SlotLabel)
	assert.Equal(t, anchor.DayLabel, entry.DayLabel)
	assert.Equal(t, "A-206", entry.Room)
	kinds := lo.Map(moved.Violations, func(v scheduler.Violation, _ int) string { return v.Kind })
	assert.Contains(t, kinds, scheduler.ViolationCohort)

	stored, err := fx.svc.GetProposal(context.Background(), resp.ProposalID)
	require.NoError(t, err)
	assert.Equal(t, moved.Violations, stored.Violations)
}

func TestExamScheduleServiceMoveEntryRejectsBadTargets(t *testing.T) {
	fx := newExamScheduleFixture(t, examFixtureConfig{})
	resp, err := fx.svc.Generate(context.Background(), inlineRequest())
	require.NoError(t, err)

	tests := []struct {
		name string
		req  dto.MoveExamRequest
		code string
	}{
		{name: "unknown section", req: dto.MoveExamRequest{SubjectID: "ITEC 201", Code: "9999", Room: "A-201"}, code: appErrors.ErrNotFound.Code},
		{name: "day outside window", req: dto.MoveExamRequest{SubjectID: "ITEC 201", Code: "1001", Day: 3, Room: "A-201"}, code: appErrors.ErrValidation.Code},
		{name: "slot outside grid", req: dto.MoveExamRequest{SubjectID: "ITEC 201", Code: "1001", Slot: 8, Room: "A-201"}, code: appErrors.ErrValidation.Code},
		{name: "missing room", req: dto.MoveExamRequest{SubjectID: "ITEC 201", Code: "1001"}, code: appErrors.ErrValidation.Code},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fx.svc.MoveEntry(context.Background(), resp.ProposalID, tc.req)
			require.Error(t, err)
			assert.Equal(t, tc.code, appErrors.FromError(err).Code)
		})
	}

	_, err = fx.svc.MoveEntry(context.Background(), "missing", dto.MoveExamRequest{SubjectID: "ITEC 201", Code: "1001", Room: "A-201"})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestExamScheduleServiceSavePublishes(t *testing.T) {
	tx, mock := newExamTxMock(t)
	fx := newExamScheduleFixture(t, examFixtureConfig{tx: tx})
	resp, err := fx.svc.Generate(context.Background(), inlineRequest())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()

	saved, err := fx.svc.Save(context.Background(), dto.SaveExamScheduleRequest{ProposalID: resp.ProposalID, Publish: true})
	require.NoError(t, err)
	assert.Equal(t, 1, saved.Version)
	assert.Equal(t, models.ExamScheduleStatusPublished, saved.Status)
	assert.Len(t, fx.entries.items[saved.ScheduleID], 3)
	assert.Equal(t, []string{saved.ScheduleID}, fx.schedules.archivedFor)

	var meta map[string]any
	require.NoError(t, json.Unmarshal(fx.schedules.items[saved.ScheduleID].Meta, &meta))
	assert.Equal(t, resp.Fingerprint, meta["fingerprint"])
	assert.NoError(t, mock.ExpectationsWereMet())

	_, err = fx.svc.GetProposal(context.Background(), resp.ProposalID)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestExamScheduleServiceSaveRefusesViolationsUnlessForced(t *testing.T) {
	tx, mock := newExamTxMock(t)
	fx := newExamScheduleFixture(t, examFixtureConfig{tx: tx})
	resp, err := fx.svc.Generate(context.Background(), inlineRequest())
	require.NoError(t, err)
	anchor := findEntry(t, resp.Entries, "ITEC 201")
	_, err = fx.svc.MoveEntry(context.Background(), resp.ProposalID, dto.MoveExamRequest{
		SubjectID: "ITEC 202", Code: "1002", Day: anchor.DayIndex, Slot: anchor.SlotIndex, Room: anchor.Room,
	})
	require.NoError(t, err)

	_, err = fx.svc.Save(context.Background(), dto.SaveExamScheduleRequest{ProposalID: resp.ProposalID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrScheduleInfeasible.Code, appErrors.FromError(err).Code)

	mock.ExpectBegin()
	mock.ExpectCommit()
	saved, err := fx.svc.Save(context.Background(), dto.SaveExamScheduleRequest{ProposalID: resp.ProposalID, Force: true})
	require.NoError(t, err)
	assert.Equal(t, models.ExamScheduleStatusDraft, saved.Status)
	assert.Empty(t, fx.schedules.archivedFor)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamScheduleServiceSaveRollsBack(t *testing.T) {
	tx, mock := newExamTxMock(t)
	fx := newExamScheduleFixture(t, examFixtureConfig{tx: tx})
	fx.entries.err = errors.New("disk full")
	resp, err := fx.svc.Generate(context.Background(), inlineRequest())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err = fx.svc.Save(context.Background(), dto.SaveExamScheduleRequest{ProposalID: resp.ProposalID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())

	_, err = fx.svc.GetProposal(context.Background(), resp.ProposalID)
	assert.NoError(t, err, "failed save keeps the proposal")
}

func TestExamScheduleServiceProposalExpiry(t *testing.T) {
	fx := newExamScheduleFixture(t, examFixtureConfig{})
	resp, err := fx.svc.Generate(context.Background(), inlineRequest())
	require.NoError(t, err)
	second, err := fx.svc.Generate(context.Background(), inlineRequest())
	require.NoError(t, err)

	fx.svc.now = func() time.Time { return time.Now().Add(time.Hour) }

	_, err = fx.svc.Save(context.Background(), dto.SaveExamScheduleRequest{ProposalID: resp.ProposalID})
	assert.Equal(t, appErrors.ErrProposalExpired.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 1, fx.svc.PruneProposals())

	_, err = fx.svc.GetProposal(context.Background(), second.ProposalID)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestExamScheduleServicePublishAndDelete(t *testing.T) {
	tx, mock := newExamTxMock(t)
	fx := newExamScheduleFixture(t, examFixtureConfig{tx: tx})
	fx.schedules.items["draft"] = &models.ExamSchedule{ID: "draft", TermCode: "20241", ExamGroup: "FINALS", Version: 2, Status: models.ExamScheduleStatusDraft}
	fx.schedules.items["live"] = &models.ExamSchedule{ID: "live", TermCode: "20241", ExamGroup: "FINALS", Version: 1, Status: models.ExamScheduleStatusPublished}

	err := fx.svc.Delete(context.Background(), "live")
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	err = fx.svc.Delete(context.Background(), "missing")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	mock.ExpectBegin()
	mock.ExpectCommit()
	published, err := fx.svc.Publish(context.Background(), "draft")
	require.NoError(t, err)
	assert.Equal(t, models.ExamScheduleStatusPublished, published.Status)
	assert.Equal(t, models.ExamScheduleStatusArchived, fx.schedules.items["live"].Status)
	assert.NoError(t, mock.ExpectationsWereMet())

	again, err := fx.svc.Publish(context.Background(), "draft")
	require.NoError(t, err)
	assert.Equal(t, 2, again.Version)

	require.NoError(t, fx.svc.Delete(context.Background(), "live"))
	assert.NotContains(t, fx.schedules.items, "live")
}

func TestExamScheduleServiceListAndEntries(t *testing.T) {
	fx := newExamScheduleFixture(t, examFixtureConfig{})
	fx.schedules.items["s1"] = &models.ExamSchedule{ID: "s1", TermCode: "20241", ExamGroup: "MIDTERM", Version: 1, Status: models.ExamScheduleStatusDraft}
	fx.entries.items["s1"] = []models.ExamScheduleEntry{{ID: "e1", ScheduleID: "s1"}}

	_, err := fx.svc.List(context.Background(), dto.ExamScheduleQuery{})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	list, err := fx.svc.List(context.Background(), dto.ExamScheduleQuery{TermCode: "20241"})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	entries, err := fx.svc.GetEntries(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = fx.svc.GetEntries(context.Background(), "nope")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

// --- Fixtures ---

func inlineRequest() dto.GenerateExamScheduleRequest {
	return dto.GenerateExamScheduleRequest{
		TermCode:  "20241",
		ExamGroup: "FINALS",
		Days:      3,
		Exams: []map[string]any{
			{"subjectId": "ITEC 201", "codeNo": "1001", "course": "BSIT", "yearLevel": 2, "dept": "SECAP", "lec": 3},
			{"subjectId": "ITEC 202", "codeNo": "1002", "course": "BSIT", "yearLevel": 2, "dept": "SECAP", "lec": 3},
			{"subjectId": "NURS 101", "codeNo": "2001", "course": "BSN", "yearLevel": 1, "dept": "SHAS", "lec": 3},
			{"subjectId": "ITEC 203", "codeNo": "1003", "course": "BSIT", "yearLevel": "second"},
		},
		Rooms: []any{"A-201", "A-202", "A-206", "L-101"},
	}
}

func findEntry(t *testing.T, entries []models.ScheduledExam, subjectID string) models.ScheduledExam {
	t.Helper()
	entry, ok := lo.Find(entries, func(e models.ScheduledExam) bool { return e.SubjectID == subjectID })
	require.True(t, ok, "no entry for %s", subjectID)
	return entry
}

type examFixtureConfig struct {
	offerings examOfferingReader
	rooms     examRoomReader
	cache     resultCache
	tx        txProvider
	budget    time.Duration
}

type examFixture struct {
	svc       *ExamScheduleService
	schedules *examScheduleRepoStub
	entries   *examEntryRepoStub
	metrics   *MetricsService
}

func newExamScheduleFixture(t *testing.T, cfg examFixtureConfig) *examFixture {
	t.Helper()
	schedules := &examScheduleRepoStub{items: make(map[string]*models.ExamSchedule)}
	entries := &examEntryRepoStub{items: make(map[string][]models.ExamScheduleEntry)}
	metrics := NewMetricsService()
	svc := NewExamScheduleService(cfg.offerings, cfg.rooms, schedules, entries, cfg.cache, cfg.tx,
		scheduler.NewEngine(scheduler.DefaultPolicy()), nil, metrics, nil,
		ExamScheduleConfig{ProposalTTL: 30 * time.Minute, RunBudget: cfg.budget, DefaultDays: 5})
	return &examFixture{svc: svc, schedules: schedules, entries: entries, metrics: metrics}
}

func newExamTxMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

type offeringRepoStub struct {
	byTerm map[string][]models.Exam
	err    error
}

func (s *offeringRepoStub) ListByTerm(ctx context.Context, termCode string) ([]models.Exam, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.byTerm[termCode], nil
}

type roomRepoStub struct {
	rooms []models.Room
	calls int
}

func (s *roomRepoStub) ListActive(ctx context.Context) ([]models.Room, error) {
	s.calls++
	return s.rooms, nil
}

type examScheduleRepoStub struct {
	items       map[string]*models.ExamSchedule
	archivedFor []string
}

func (s *examScheduleRepoStub) CreateVersioned(ctx context.Context, exec sqlx.ExtContext, schedule *models.ExamSchedule) error {
	schedule.ID = "sched-" + schedule.ExamGroup
	version := 0
	for _, item := range s.items {
		if item.TermCode == schedule.TermCode && item.ExamGroup == schedule.ExamGroup && item.Version > version {
			version = item.Version
		}
	}
	schedule.Version = version + 1
	clone := *schedule
	s.items[schedule.ID] = &clone
	return nil
}

func (s *examScheduleRepoStub) ListByTerm(ctx context.Context, termCode, examGroup string) ([]models.ExamSchedule, error) {
	var out []models.ExamSchedule
	for _, item := range s.items {
		if item.TermCode == termCode && (examGroup == "" || item.ExamGroup == examGroup) {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (s *examScheduleRepoStub) FindByID(ctx context.Context, id string) (*models.ExamSchedule, error) {
	item, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *item
	return &clone, nil
}

func (s *examScheduleRepoStub) Delete(ctx context.Context, id string) error {
	if _, ok := s.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.items, id)
	return nil
}

func (s *examScheduleRepoStub) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.ExamScheduleStatus, meta types.JSONText) error {
	item, ok := s.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	item.Status = status
	return nil
}

func (s *examScheduleRepoStub) ArchivePublished(ctx context.Context, exec sqlx.ExtContext, termCode, examGroup, keepID string) (int64, error) {
	s.archivedFor = append(s.archivedFor, keepID)
	var n int64
	for id, item := range s.items {
		if id != keepID && item.TermCode == termCode && item.ExamGroup == examGroup && item.Status == models.ExamScheduleStatusPublished {
			item.Status = models.ExamScheduleStatusArchived
			n++
		}
	}
	return n, nil
}

type examEntryRepoStub struct {
	items map[string][]models.ExamScheduleEntry
	err   error
}

func (s *examEntryRepoStub) InsertBatch(ctx context.Context, exec sqlx.ExtContext, entries []models.ExamScheduleEntry) error {
	if s.err != nil {
		return s.err
	}
	for _, entry := range entries {
		s.items[entry.ScheduleID] = append(s.items[entry.ScheduleID], entry)
	}
	return nil
}

func (s *examEntryRepoStub) ListBySchedule(ctx context.Context, scheduleID string) ([]models.ExamScheduleEntry, error) {
	return s.items[scheduleID], nil
}

type memoryResultCache struct {
	items map[string][]byte
	sets  int
}

func newMemoryResultCache() *memoryResultCache {
	return &memoryResultCache{items: make(map[string][]byte)}
}

func (c *memoryResultCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, ok := c.items[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *memoryResultCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.items[key] = raw
	c.sets++
	return nil
}
