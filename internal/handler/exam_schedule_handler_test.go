package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-scheduler-api/internal/dto"
	internalmiddleware "github.com/noah-isme/exam-scheduler-api/internal/middleware"
	"github.com/noah-isme/exam-scheduler-api/internal/models"
	"github.com/noah-isme/exam-scheduler-api/internal/service"
	appErrors "github.com/noah-isme/exam-scheduler-api/pkg/errors"
	"github.com/noah-isme/exam-scheduler-api/pkg/response"
)

type examSchedulerMock struct {
	generated dto.GenerateExamScheduleRequest
	moved     dto.MoveExamRequest
	saved     dto.SaveExamScheduleRequest
	listed    dto.ExamScheduleQuery
	deleted   string
	err       error
}

func (m *examSchedulerMock) Generate(ctx context.Context, req dto.GenerateExamScheduleRequest) (*dto.ExamScheduleProposalResponse, error) {
	m.generated = req
	if m.err != nil {
		return nil, m.err
	}
	return &dto.ExamScheduleProposalResponse{ProposalID: "proposal-1", TermCode: req.TermCode, Cached: true}, nil
}

func (m *examSchedulerMock) GetProposal(ctx context.Context, id string) (*dto.ExamScheduleProposalResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &dto.ExamScheduleProposalResponse{ProposalID: id}, nil
}

func (m *examSchedulerMock) MoveEntry(ctx context.Context, id string, req dto.MoveExamRequest) (*dto.ExamScheduleProposalResponse, error) {
	m.moved = req
	return &dto.ExamScheduleProposalResponse{ProposalID: id, Edited: true}, nil
}

func (m *examSchedulerMock) Save(ctx context.Context, req dto.SaveExamScheduleRequest) (*dto.SaveExamScheduleResponse, error) {
	m.saved = req
	if m.err != nil {
		return nil, m.err
	}
	return &dto.SaveExamScheduleResponse{ScheduleID: "schedule-1", Version: 2, Status: models.ExamScheduleStatusDraft}, nil
}

func (m *examSchedulerMock) Publish(ctx context.Context, id string) (*dto.SaveExamScheduleResponse, error) {
	return &dto.SaveExamScheduleResponse{ScheduleID: id, Version: 1, Status: models.ExamScheduleStatusPublished}, nil
}

func (m *examSchedulerMock) List(ctx context.Context, query dto.ExamScheduleQuery) ([]models.ExamSchedule, error) {
	m.listed = query
	return []models.ExamSchedule{{ID: "schedule-1", TermCode: query.TermCode, ExamGroup: "FINALS", Version: 1}}, nil
}

func (m *examSchedulerMock) GetEntries(ctx context.Context, id string) ([]models.ExamScheduleEntry, error) {
	return []models.ExamScheduleEntry{{ID: "entry-1", ScheduleID: id}}, nil
}

func (m *examSchedulerMock) Delete(ctx context.Context, id string) error {
	m.deleted = id
	return m.err
}

type examJobMock struct{}

func (examJobMock) Enqueue(ctx context.Context, req dto.GenerateExamScheduleRequest) (*dto.ExamJobResponse, error) {
	return &dto.ExamJobResponse{JobID: "job-1", Status: dto.ExamJobQueued}, nil
}

func (examJobMock) Status(ctx context.Context, id string) (*dto.ExamJobResponse, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "job not found")
}

type examExporterMock struct {
	path string
}

func (m *examExporterMock) Export(ctx context.Context, req dto.ExportExamScheduleRequest) (*dto.ExportExamScheduleResponse, error) {
	return &dto.ExportExamScheduleResponse{ExportID: "export-1", Format: req.Format, URL: "/download?token=t"}, nil
}

func (m *examExporterMock) Resolve(token string) (*service.ExportDownload, error) {
	if token != "good" {
		return nil, appErrors.ErrExportExpired
	}
	return &service.ExportDownload{Path: m.path, Filename: "finals.csv", ContentType: "text/csv"}, nil
}

func (m *examExporterMock) Open(relPath string) (*os.File, error) {
	return os.Open(relPath)
}

type cacheInvalidatorMock struct {
	patterns []string
}

func (m *cacheInvalidatorMock) Invalidate(ctx context.Context, pattern string) error {
	m.patterns = append(m.patterns, pattern)
	return nil
}

func newExamRouter(t *testing.T, h *ExamScheduleHandler, role models.UserRole) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if role != "" {
			c.Set(internalmiddleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: role})
		}
		c.Next()
	})
	writers := internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar)
	admins := internalmiddleware.RequireRoles(models.RoleAdmin)
	group := router.Group("/exam-schedules")
	group.POST("/generate", h.Generate)
	group.POST("/jobs", h.EnqueueJob)
	group.GET("/jobs/:id", h.JobStatus)
	group.GET("/proposals/:id", h.Proposal)
	group.PATCH("/proposals/:id/entries", writers, h.MoveEntry)
	group.POST("/save", writers, h.Save)
	group.GET("", h.List)
	group.GET("/:id/entries", h.Entries)
	group.POST("/:id/publish", admins, h.Publish)
	group.DELETE("/:id", admins, h.Delete)
	group.POST("/export", h.Export)
	group.GET("/exports/download", h.Download)
	group.DELETE("/cache", admins, h.InvalidateCache)
	return router
}

func serve(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var envelope map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope
}

func TestExamScheduleHandlerGenerate(t *testing.T) {
	svc := &examSchedulerMock{}
	router := newExamRouter(t, &ExamScheduleHandler{schedules: svc}, models.RoleViewer)

	w := serve(router, http.MethodPost, "/exam-schedules/generate",
		`{"termCode":"20241","examGroup":"FINALS","days":3,"exams":[{"SUBJECT_ID":"ITEC 201","CODE_NO":"1001"}],"rooms":["A-201"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "20241", svc.generated.TermCode)
	assert.Equal(t, 3, svc.generated.Days)
	require.Len(t, svc.generated.Exams, 1)
	assert.Equal(t, "ITEC 201", svc.generated.Exams[0]["SUBJECT_ID"])

	envelope := decodeEnvelope(t, w)
	assert.Equal(t, "proposal-1", envelope["data"].(map[string]interface{})["proposalId"])
	assert.Equal(t, true, envelope["meta"].(map[string]interface{})["cached"])
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestExamScheduleHandlerGenerateRejectsBadPayloads(t *testing.T) {
	router := newExamRouter(t, &ExamScheduleHandler{schedules: &examSchedulerMock{}}, models.RoleViewer)

	w := serve(router, http.MethodPost, "/exam-schedules/generate", `{"termCode":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	rooms := make([]string, maxInlineRooms+1)
	for i := range rooms {
		rooms[i] = `"R"`
	}
	w = serve(router, http.MethodPost, "/exam-schedules/generate",
		`{"termCode":"20241","examGroup":"FINALS","rooms":[`+strings.Join(rooms, ",")+`]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	errBody := decodeEnvelope(t, w)["error"].(map[string]interface{})
	assert.Equal(t, appErrors.ErrValidation.Code, errBody["code"])
}

func TestExamScheduleHandlerMapsServiceErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "expired", err: appErrors.ErrProposalExpired, status: http.StatusGone},
		{name: "timeout", err: appErrors.ErrGenerationTimeout, status: http.StatusGatewayTimeout},
		{name: "infeasible", err: appErrors.ErrScheduleInfeasible, status: http.StatusUnprocessableEntity},
		{name: "plain error", err: errors.New("boom"), status: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			router := newExamRouter(t, &ExamScheduleHandler{schedules: &examSchedulerMock{err: tc.err}}, models.RoleAdmin)
			w := serve(router, http.MethodPost, "/exam-schedules/save", `{"proposalId":"p-1"}`)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestExamScheduleHandlerWriteRoutes(t *testing.T) {
	svc := &examSchedulerMock{}
	cache := &cacheInvalidatorMock{}
	h := &ExamScheduleHandler{schedules: svc, jobs: examJobMock{}, exports: &examExporterMock{}, cache: cache}
	router := newExamRouter(t, h, models.RoleAdmin)

	w := serve(router, http.MethodPatch, "/exam-schedules/proposals/p-1/entries",
		`{"subjectId":"ITEC 201","code":"1001","day":1,"slot":2,"room":"A-201"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, svc.moved.Slot)

	w = serve(router, http.MethodPost, "/exam-schedules/save", `{"proposalId":"p-1","publish":true}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, svc.saved.Publish)

	w = serve(router, http.MethodPost, "/exam-schedules/schedule-1/publish", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PUBLISHED", decodeEnvelope(t, w)["data"].(map[string]interface{})["status"])

	w = serve(router, http.MethodDelete, "/exam-schedules/schedule-1", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "schedule-1", svc.deleted)

	w = serve(router, http.MethodDelete, "/exam-schedules/cache", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"exam-schedule:result:*"}, cache.patterns)

	w = serve(router, http.MethodPost, "/exam-schedules/jobs", `{"termCode":"20241","examGroup":"FINALS"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	w = serve(router, http.MethodGet, "/exam-schedules/jobs/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(router, http.MethodPost, "/exam-schedules/export", `{"proposalId":"p-1","format":"pdf"}`)
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestExamScheduleHandlerRoleGuards(t *testing.T) {
	h := &ExamScheduleHandler{schedules: &examSchedulerMock{}, cache: &cacheInvalidatorMock{}}

	viewer := newExamRouter(t, h, models.RoleViewer)
	assert.Equal(t, http.StatusForbidden, serve(viewer, http.MethodPost, "/exam-schedules/save", `{"proposalId":"p-1"}`).Code)
	assert.Equal(t, http.StatusForbidden, serve(viewer, http.MethodDelete, "/exam-schedules/cache", "").Code)

	registrar := newExamRouter(t, h, models.RoleRegistrar)
	assert.Equal(t, http.StatusCreated, serve(registrar, http.MethodPost, "/exam-schedules/save", `{"proposalId":"p-1"}`).Code)
	assert.Equal(t, http.StatusForbidden, serve(registrar, http.MethodPost, "/exam-schedules/s-1/publish", "").Code)

	anonymous := newExamRouter(t, h, "")
	assert.Equal(t, http.StatusUnauthorized, serve(anonymous, http.MethodDelete, "/exam-schedules/s-1", "").Code)
}

func TestExamScheduleHandlerReadRoutes(t *testing.T) {
	svc := &examSchedulerMock{}
	router := newExamRouter(t, &ExamScheduleHandler{schedules: svc}, models.RoleViewer)

	w := serve(router, http.MethodGet, "/exam-schedules?termCode=20241&examGroup=FINALS", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.ExamScheduleQuery{TermCode: "20241", ExamGroup: "FINALS"}, svc.listed)

	w = serve(router, http.MethodGet, "/exam-schedules/schedule-1/entries", "")
	require.Equal(t, http.StatusOK, w.Code)
	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Len(t, envelope.Data, 1)

	w = serve(router, http.MethodGet, "/exam-schedules/proposals/p-9", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "p-9", decodeEnvelope(t, w)["data"].(map[string]interface{})["proposalId"])
}

func TestExamScheduleHandlerDownload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "finals.csv")
	require.NoError(t, os.WriteFile(path, []byte("Day,Slot\nDay 1,7:30-9:00\n"), 0o600))
	router := newExamRouter(t, &ExamScheduleHandler{exports: &examExporterMock{path: path}}, "")

	w := serve(router, http.MethodGet, "/exam-schedules/exports/download?token=good", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="finals.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "Day,Slot\nDay 1,7:30-9:00\n", w.Body.String())

	w = serve(router, http.MethodGet, "/exam-schedules/exports/download?token=stale", "")
	assert.Equal(t, http.StatusGone, w.Code)
}

func TestMetricsHandlerReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	healthy := NewMetricsHandler(service.NewMetricsService(), map[string]Pinger{
		"postgres": PingFunc(func(ctx context.Context) error { return nil }),
		"redis":    nil,
	})
	router := gin.New()
	router.GET("/ready", healthy.Ready)
	router.GET("/metrics/snapshot", healthy.Snapshot)

	w := serve(router, http.MethodGet, "/ready", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"postgres":"ok","redis":"disabled"}`, w.Body.String())

	w = serve(router, http.MethodGet, "/metrics/snapshot", "")
	require.Equal(t, http.StatusOK, w.Code)

	failing := NewMetricsHandler(nil, map[string]Pinger{
		"postgres": PingFunc(func(ctx context.Context) error { return errors.New("connection refused") }),
	})
	router = gin.New()
	router.GET("/ready", failing.Ready)
	router.GET("/metrics/snapshot", failing.Snapshot)

	w = serve(router, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"postgres":"connection refused"}`, w.Body.String())
	assert.Equal(t, http.StatusServiceUnavailable, serve(router, http.MethodGet, "/metrics/snapshot", "").Code)
}
