package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/exam-scheduler-api/internal/models"
)

const examScheduleColumns = `id, term_code, exam_group, version, status, meta, created_at, updated_at`

// ExamScheduleRepository persists versioned exam timetables.
type ExamScheduleRepository struct {
	db *sqlx.DB
}

// NewExamScheduleRepository constructs repository.
func NewExamScheduleRepository(db *sqlx.DB) *ExamScheduleRepository {
	return &ExamScheduleRepository{db: db}
}

func (r *ExamScheduleRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// CreateVersioned inserts a schedule assigning the next version for the term and exam group.
func (r *ExamScheduleRepository) CreateVersioned(ctx context.Context, exec sqlx.ExtContext, schedule *models.ExamSchedule) error {
	if schedule == nil {
		return fmt.Errorf("schedule payload is nil")
	}
	if schedule.TermCode == "" || schedule.ExamGroup == "" {
		return fmt.Errorf("term_code and exam_group are required")
	}
	if schedule.ID == "" {
		schedule.ID = uuid.NewString()
	}
	if schedule.Status == "" {
		schedule.Status = models.ExamScheduleStatusDraft
	}
	if len(schedule.Meta) == 0 {
		schedule.Meta = types.JSONText(`{}`)
	}
	now := time.Now().UTC()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}
	schedule.UpdatedAt = now

	target := r.exec(exec)

	const nextVersionQuery = `SELECT COALESCE(MAX(version), 0) + 1 FROM exam_schedules WHERE term_code = $1 AND exam_group = $2`
	if err := sqlx.GetContext(ctx, target, &schedule.Version, nextVersionQuery, schedule.TermCode, schedule.ExamGroup); err != nil {
		return fmt.Errorf("compute next exam schedule version: %w", err)
	}

	const insertQuery = `
INSERT INTO exam_schedules (id, term_code, exam_group, version, status, meta, created_at, updated_at)
VALUES (:id, :term_code, :exam_group, :version, :status, :meta, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, target, insertQuery, schedule); err != nil {
		return fmt.Errorf("insert exam schedule: %w", err)
	}
	return nil
}

// ListByTerm returns every version for the term, newest first. An empty group lists all groups.
func (r *ExamScheduleRepository) ListByTerm(ctx context.Context, termCode, examGroup string) ([]models.ExamSchedule, error) {
	query := `SELECT ` + examScheduleColumns + ` FROM exam_schedules WHERE term_code = $1`
	args := []interface{}{termCode}
	if examGroup != "" {
		query += ` AND exam_group = $2`
		args = append(args, examGroup)
	}
	query += ` ORDER BY exam_group ASC, version DESC`

	var schedules []models.ExamSchedule
	if err := r.db.SelectContext(ctx, &schedules, query, args...); err != nil {
		return nil, fmt.Errorf("list exam schedules: %w", err)
	}
	return schedules, nil
}

// FindByID loads a schedule by its identifier.
func (r *ExamScheduleRepository) FindByID(ctx context.Context, id string) (*models.ExamSchedule, error) {
	const query = `SELECT ` + examScheduleColumns + ` FROM exam_schedules WHERE id = $1`
	var schedule models.ExamSchedule
	if err := r.db.GetContext(ctx, &schedule, query, id); err != nil {
		return nil, err
	}
	return &schedule, nil
}

// Delete removes a stored schedule version. Entries go with it through the foreign key.
func (r *ExamScheduleRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM exam_schedules WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete exam schedule: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("exam schedule rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateStatus updates the status (and optionally meta) of a schedule.
func (r *ExamScheduleRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.ExamScheduleStatus, meta types.JSONText) error {
	target := r.exec(exec)
	now := time.Now().UTC()

	var (
		query string
		args  []interface{}
	)
	if len(meta) > 0 {
		query = `UPDATE exam_schedules SET status = $1, meta = $2, updated_at = $3 WHERE id = $4`
		args = []interface{}{status, meta, now, id}
	} else {
		query = `UPDATE exam_schedules SET status = $1, updated_at = $2 WHERE id = $3`
		args = []interface{}{status, now, id}
	}
	result, err := target.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update exam schedule status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("exam schedule status rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ArchivePublished archives the published versions of a term and exam group, except keepID.
func (r *ExamScheduleRepository) ArchivePublished(ctx context.Context, exec sqlx.ExtContext, termCode, examGroup, keepID string) (int64, error) {
	const query = `UPDATE exam_schedules SET status = $1, updated_at = $2
WHERE term_code = $3 AND exam_group = $4 AND status = $5 AND id <> $6`
	result, err := r.exec(exec).ExecContext(ctx, query,
		models.ExamScheduleStatusArchived, time.Now().UTC(), termCode, examGroup, models.ExamScheduleStatusPublished, keepID)
	if err != nil {
		return 0, fmt.Errorf("archive published exam schedules: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("archived exam schedule rows affected: %w", err)
	}
	return affected, nil
}
