package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/exam-scheduler-api/internal/models"
)

// ExamScheduleEntryRepository manages the rows of saved exam timetables.
type ExamScheduleEntryRepository struct {
	db *sqlx.DB
}

// NewExamScheduleEntryRepository builds repository.
func NewExamScheduleEntryRepository(db *sqlx.DB) *ExamScheduleEntryRepository {
	return &ExamScheduleEntryRepository{db: db}
}

func (r *ExamScheduleEntryRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// InsertBatch writes the entries of one schedule version.
func (r *ExamScheduleEntryRepository) InsertBatch(ctx context.Context, exec sqlx.ExtContext, entries []models.ExamScheduleEntry) error {
	if len(entries) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()

	const query = `
INSERT INTO exam_schedule_entries (id, schedule_id, code, subject_id, title, course, year_level, dept, lec_units, lab_units,
    instructor, student_count, home_room, day_index, day_label, slot_index, slot_label, room, created_at)
VALUES (:id, :schedule_id, :code, :subject_id, :title, :course, :year_level, :dept, :lec_units, :lab_units,
    :instructor, :student_count, :home_room, :day_index, :day_label, :slot_index, :slot_label, :room, :created_at)`

	for i := range entries {
		entry := &entries[i]
		if entry.ScheduleID == "" {
			return fmt.Errorf("exam schedule entry %s/%s has no schedule id", entry.SubjectID, entry.Code)
		}
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, entry); err != nil {
			return fmt.Errorf("insert exam schedule entry: %w", err)
		}
	}
	return nil
}

// ListBySchedule returns entries ordered by day, slot and room.
func (r *ExamScheduleEntryRepository) ListBySchedule(ctx context.Context, scheduleID string) ([]models.ExamScheduleEntry, error) {
	const query = `SELECT id, schedule_id, code, subject_id, title, course, year_level, dept, lec_units, lab_units,
instructor, student_count, home_room, day_index, day_label, slot_index, slot_label, room, created_at
FROM exam_schedule_entries WHERE schedule_id = $1 ORDER BY day_index ASC, slot_index ASC, room ASC`
	var entries []models.ExamScheduleEntry
	if err := r.db.SelectContext(ctx, &entries, query, scheduleID); err != nil {
		return nil, fmt.Errorf("list exam schedule entries: %w", err)
	}
	return entries, nil
}
