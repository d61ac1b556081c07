package dto

import (
	"time"

	"github.com/noah-isme/exam-scheduler-api/internal/ingest"
	"github.com/noah-isme/exam-scheduler-api/internal/models"
	"github.com/noah-isme/exam-scheduler-api/internal/scheduler"
)

// PinRequest fixes one section at a day, slot and room before the search runs.
type PinRequest struct {
	SubjectID string `json:"subjectId" validate:"required"`
	Code      string `json:"code" validate:"required"`
	Day       int    `json:"day" validate:"min=0"`
	Slot      int    `json:"slot" validate:"min=0"`
	Room      string `json:"room" validate:"required"`
}

// GenerateExamScheduleRequest asks for an exam timetable proposal. Exams and rooms are read from
// the catalog tables for the term unless supplied inline.
type GenerateExamScheduleRequest struct {
	TermCode    string           `json:"termCode" validate:"required,max=16"`
	ExamGroup   string           `json:"examGroup" validate:"required,max=32"`
	Days        int              `json:"days" validate:"omitempty,min=1,max=14"`
	DayLabels   []string         `json:"dayLabels" validate:"omitempty,dive,required"`
	Accelerated bool             `json:"accelerated"`
	Exams       []map[string]any `json:"exams"`
	Rooms       []any            `json:"rooms"`
	Pinned      []PinRequest     `json:"pinned" validate:"omitempty,dive"`
}

// ExamScheduleProposalResponse is a generated or edited timetable held for review.
type ExamScheduleProposalResponse struct {
	ProposalID    string                       `json:"proposalId"`
	TermCode      string                       `json:"termCode"`
	ExamGroup     string                       `json:"examGroup"`
	Fingerprint   string                       `json:"fingerprint"`
	Cached        bool                         `json:"cached"`
	Edited        bool                         `json:"edited"`
	GeneratedAt   time.Time                    `json:"generatedAt"`
	ExpiresAt     time.Time                    `json:"expiresAt"`
	Summary       scheduler.Summary            `json:"summary"`
	Entries       []models.ScheduledExam       `json:"entries"`
	Unscheduled   []scheduler.UnscheduledGroup `json:"unscheduled"`
	Violations    []scheduler.Violation        `json:"violations"`
	RejectedPins  []scheduler.PinRejection     `json:"rejectedPins,omitempty"`
	Filter        scheduler.FilterReport       `json:"filter"`
	ExcludedRooms []string                     `json:"excludedRooms,omitempty"`
	RecordErrors  []ingest.RecordError         `json:"recordErrors,omitempty"`
}

// MoveExamRequest places every record of one section at a new day, slot and room.
type MoveExamRequest struct {
	SubjectID string `json:"subjectId" validate:"required"`
	Code      string `json:"code" validate:"required"`
	Day       int    `json:"day" validate:"min=0"`
	Slot      int    `json:"slot" validate:"min=0"`
	Room      string `json:"room" validate:"required"`
}

// SaveExamScheduleRequest persists a proposal as a new schedule version.
type SaveExamScheduleRequest struct {
	ProposalID string `json:"proposalId" validate:"required"`
	Force      bool   `json:"force"`
	Publish    bool   `json:"publish"`
}

// SaveExamScheduleResponse identifies the stored version.
type SaveExamScheduleResponse struct {
	ScheduleID string                    `json:"scheduleId"`
	Version    int                       `json:"version"`
	Status     models.ExamScheduleStatus `json:"status"`
}

// ExamScheduleQuery filters stored schedules.
type ExamScheduleQuery struct {
	TermCode  string `form:"termCode" validate:"required"`
	ExamGroup string `form:"examGroup"`
}

// ExamJobStatus is the lifecycle of an asynchronous generation.
type ExamJobStatus string

const (
	ExamJobQueued    ExamJobStatus = "QUEUED"
	ExamJobRunning   ExamJobStatus = "RUNNING"
	ExamJobSucceeded ExamJobStatus = "SUCCEEDED"
	ExamJobFailed    ExamJobStatus = "FAILED"
)

// ExamJobResponse reports an asynchronous generation.
type ExamJobResponse struct {
	JobID      string        `json:"jobId"`
	Status     ExamJobStatus `json:"status"`
	Attempts   int           `json:"attempts"`
	ProposalID string        `json:"proposalId,omitempty"`
	Error      string        `json:"error,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

// ExportExamScheduleRequest renders a proposal or stored schedule to a downloadable file.
type ExportExamScheduleRequest struct {
	ProposalID string `json:"proposalId" validate:"required_without=ScheduleID"`
	ScheduleID string `json:"scheduleId" validate:"required_without=ProposalID"`
	Format     string `json:"format" validate:"required,oneof=csv pdf"`
}

// ExportExamScheduleResponse points at the rendered file.
type ExportExamScheduleResponse struct {
	ExportID  string    `json:"exportId"`
	Format    string    `json:"format"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
	SizeBytes int       `json:"sizeBytes"`
}
