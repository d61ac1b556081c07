package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/exam-scheduler-api/internal/models"
)

// ExamOfferingRepository reads the examinable sections offered in a term.
type ExamOfferingRepository struct {
	db *sqlx.DB
}

// NewExamOfferingRepository constructs repository.
func NewExamOfferingRepository(db *sqlx.DB) *ExamOfferingRepository {
	return &ExamOfferingRepository{db: db}
}

// ListByTerm returns the term's offerings in catalog order.
func (r *ExamOfferingRepository) ListByTerm(ctx context.Context, termCode string) ([]models.Exam, error) {
	const query = `SELECT code, subject_id, title, course, year_level, dept, lec_units, lab_units,
COALESCE(instructor, '') AS instructor, COALESCE(student_count, 0) AS student_count, COALESCE(home_room, '') AS home_room
FROM exam_offerings WHERE term_code = $1 ORDER BY position ASC, code ASC`
	var exams []models.Exam
	if err := r.db.SelectContext(ctx, &exams, query, termCode); err != nil {
		return nil, fmt.Errorf("list exam offerings: %w", err)
	}
	return exams, nil
}
