package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// ExamScheduleStatus represents lifecycle phases for saved exam timetables.
type ExamScheduleStatus string

const (
	ExamScheduleStatusDraft     ExamScheduleStatus = "DRAFT"
	ExamScheduleStatusPublished ExamScheduleStatus = "PUBLISHED"
	ExamScheduleStatusArchived  ExamScheduleStatus = "ARCHIVED"
)

// ExamSchedule is a versioned exam timetable for a term and exam group (e.g. MIDTERM, FINALS).
type ExamSchedule struct {
	ID        string             `db:"id" json:"id"`
	TermCode  string             `db:"term_code" json:"term_code"`
	ExamGroup string             `db:"exam_group" json:"exam_group"`
	Version   int                `db:"version" json:"version"`
	Status    ExamScheduleStatus `db:"status" json:"status"`
	Meta      types.JSONText     `db:"meta" json:"meta"`
	CreatedAt time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt time.Time          `db:"updated_at" json:"updated_at"`
}

// ExamScheduleEntry is one persisted ScheduledExam row of a saved timetable.
type ExamScheduleEntry struct {
	ID         string `db:"id" json:"id"`
	ScheduleID string `db:"schedule_id" json:"schedule_id"`
	ScheduledExam
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
