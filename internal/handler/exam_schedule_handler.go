package handler

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/exam-scheduler-api/internal/dto"
	"github.com/noah-isme/exam-scheduler-api/internal/models"
	"github.com/noah-isme/exam-scheduler-api/internal/service"
	appErrors "github.com/noah-isme/exam-scheduler-api/pkg/errors"
	"github.com/noah-isme/exam-scheduler-api/pkg/response"
)

const (
	maxInlineExams = 5000
	maxInlineRooms = 1000
	resultCacheKey = "exam-schedule:result:*"
)

type examScheduler interface {
	Generate(ctx context.Context, req dto.GenerateExamScheduleRequest) (*dto.ExamScheduleProposalResponse, error)
	GetProposal(ctx context.Context, proposalID string) (*dto.ExamScheduleProposalResponse, error)
	MoveEntry(ctx context.Context, proposalID string, req dto.MoveExamRequest) (*dto.ExamScheduleProposalResponse, error)
	Save(ctx context.Context, req dto.SaveExamScheduleRequest) (*dto.SaveExamScheduleResponse, error)
	Publish(ctx context.Context, scheduleID string) (*dto.SaveExamScheduleResponse, error)
	List(ctx context.Context, query dto.ExamScheduleQuery) ([]models.ExamSchedule, error)
	GetEntries(ctx context.Context, scheduleID string) ([]models.ExamScheduleEntry, error)
	Delete(ctx context.Context, scheduleID string) error
}

type examJobRunner interface {
	Enqueue(ctx context.Context, req dto.GenerateExamScheduleRequest) (*dto.ExamJobResponse, error)
	Status(ctx context.Context, jobID string) (*dto.ExamJobResponse, error)
}

type examExporter interface {
	Export(ctx context.Context, req dto.ExportExamScheduleRequest) (*dto.ExportExamScheduleResponse, error)
	Resolve(token string) (*service.ExportDownload, error)
	Open(relPath string) (*os.File, error)
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

// ExamScheduleHandler exposes exam timetable endpoints.
type ExamScheduleHandler struct {
	schedules examScheduler
	jobs      examJobRunner
	exports   examExporter
	cache     cacheInvalidator
}

// NewExamScheduleHandler constructs the handler.
func NewExamScheduleHandler(schedules *service.ExamScheduleService, jobs *service.ExamJobService, exports *service.ExamExportService, cache *service.CacheService) *ExamScheduleHandler {
	return &ExamScheduleHandler{schedules: schedules, jobs: jobs, exports: exports, cache: cache}
}

// Generate godoc
// @Summary Generate an exam timetable proposal
// @Description Runs the engine synchronously. Exams and rooms come from the catalog for the term unless supplied inline.
// @Tags ExamSchedules
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.GenerateExamScheduleRequest true "Generation payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 504 {object} response.Envelope
// @Router /exam-schedules/generate [post]
func (h *ExamScheduleHandler) Generate(c *gin.Context) {
	req, ok := bindGenerateRequest(c)
	if !ok {
		return
	}
	result, err := h.schedules.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil, map[string]interface{}{"cached": result.Cached})
}

// EnqueueJob godoc
// @Summary Queue an exam timetable generation
// @Tags ExamSchedules
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.GenerateExamScheduleRequest true "Generation payload"
// @Success 202 {object} response.Envelope
// @Router /exam-schedules/jobs [post]
func (h *ExamScheduleHandler) EnqueueJob(c *gin.Context) {
	req, ok := bindGenerateRequest(c)
	if !ok {
		return
	}
	job, err := h.jobs.Enqueue(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job)
}

// JobStatus godoc
// @Summary Get the status of a generation job
// @Tags ExamSchedules
// @Produce json
// @Security BearerAuth
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /exam-schedules/jobs/{id} [get]
func (h *ExamScheduleHandler) JobStatus(c *gin.Context) {
	job, err := h.jobs.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Proposal godoc
// @Summary Get a generated proposal
// @Tags ExamSchedules
// @Produce json
// @Security BearerAuth
// @Param id path string true "Proposal ID"
// @Success 200 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /exam-schedules/proposals/{id} [get]
func (h *ExamScheduleHandler) Proposal(c *gin.Context) {
	proposal, err := h.schedules.GetProposal(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, proposal, nil)
}

// MoveEntry godoc
// @Summary Manually move a section within a proposal
// @Description Places every record of the section at the given day, slot and room. Rules are not enforced; violations are reported.
// @Tags ExamSchedules
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Proposal ID"
// @Param payload body dto.MoveExamRequest true "Move payload"
// @Success 200 {object} response.Envelope
// @Router /exam-schedules/proposals/{id}/entries [patch]
func (h *ExamScheduleHandler) MoveEntry(c *gin.Context) {
	var req dto.MoveExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid move payload"))
		return
	}
	proposal, err := h.schedules.MoveEntry(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, proposal, nil, map[string]interface{}{"violations": len(proposal.Violations)})
}

// Save godoc
// @Summary Save a proposal as a new schedule version
// @Tags ExamSchedules
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.SaveExamScheduleRequest true "Save payload"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /exam-schedules/save [post]
func (h *ExamScheduleHandler) Save(c *gin.Context) {
	var req dto.SaveExamScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid save payload"))
		return
	}
	saved, err := h.schedules.Save(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, saved)
}

// List godoc
// @Summary List saved exam schedules of a term
// @Tags ExamSchedules
// @Produce json
// @Security BearerAuth
// @Param termCode query string true "Term code"
// @Param examGroup query string false "Exam group"
// @Success 200 {object} response.Envelope
// @Router /exam-schedules [get]
func (h *ExamScheduleHandler) List(c *gin.Context) {
	var query dto.ExamScheduleQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	schedules, err := h.schedules.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedules, nil)
}

// Entries godoc
// @Summary Get entries of a saved exam schedule
// @Tags ExamSchedules
// @Produce json
// @Security BearerAuth
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /exam-schedules/{id}/entries [get]
func (h *ExamScheduleHandler) Entries(c *gin.Context) {
	entries, err := h.schedules.GetEntries(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Publish godoc
// @Summary Publish a saved exam schedule
// @Description Earlier published versions of the same term and exam group are archived.
// @Tags ExamSchedules
// @Produce json
// @Security BearerAuth
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /exam-schedules/{id}/publish [post]
func (h *ExamScheduleHandler) Publish(c *gin.Context) {
	published, err := h.schedules.Publish(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, published, nil)
}

// Delete godoc
// @Summary Delete an unpublished exam schedule
// @Tags ExamSchedules
// @Security BearerAuth
// @Param id path string true "Schedule ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /exam-schedules/{id} [delete]
func (h *ExamScheduleHandler) Delete(c *gin.Context) {
	if err := h.schedules.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Export godoc
// @Summary Export a proposal or saved schedule
// @Tags ExamSchedules
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.ExportExamScheduleRequest true "Export payload"
// @Success 201 {object} response.Envelope
// @Router /exam-schedules/export [post]
func (h *ExamScheduleHandler) Export(c *gin.Context) {
	var req dto.ExportExamScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export payload"))
		return
	}
	result, err := h.exports.Export(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Download godoc
// @Summary Download an exported schedule by signed token
// @Tags ExamSchedules
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /exam-schedules/exports/download [get]
func (h *ExamScheduleHandler) Download(c *gin.Context) {
	download, err := h.exports.Resolve(c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.exports.Open(download.Path)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat export"))
		return
	}
	c.DataFromReader(http.StatusOK, info.Size(), download.ContentType, file, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, download.Filename),
		"Cache-Control":       "no-store",
	})
}

// InvalidateCache godoc
// @Summary Drop cached generation results
// @Tags ExamSchedules
// @Security BearerAuth
// @Success 204
// @Router /exam-schedules/cache [delete]
func (h *ExamScheduleHandler) InvalidateCache(c *gin.Context) {
	if err := h.cache.Invalidate(c.Request.Context(), resultCacheKey); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func bindGenerateRequest(c *gin.Context) (dto.GenerateExamScheduleRequest, bool) {
	var req dto.GenerateExamScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return req, false
	}
	if len(req.Exams) > maxInlineExams {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "exams exceeds supported limit"))
		return req, false
	}
	if len(req.Rooms) > maxInlineRooms {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "rooms exceeds supported limit"))
		return req, false
	}
	return req, true
}
