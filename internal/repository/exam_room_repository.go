package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/exam-scheduler-api/internal/models"
)

// ExamRoomRepository reads the rooms catalog.
type ExamRoomRepository struct {
	db *sqlx.DB
}

// NewExamRoomRepository constructs repository.
func NewExamRoomRepository(db *sqlx.DB) *ExamRoomRepository {
	return &ExamRoomRepository{db: db}
}

// ListActive returns active rooms ordered by id.
func (r *ExamRoomRepository) ListActive(ctx context.Context) ([]models.Room, error) {
	const query = `SELECT id, COALESCE(capacity, 0) AS capacity, active FROM exam_rooms WHERE active = TRUE ORDER BY id ASC`
	var rooms []models.Room
	if err := r.db.SelectContext(ctx, &rooms, query); err != nil {
		return nil, fmt.Errorf("list exam rooms: %w", err)
	}
	return rooms, nil
}
