package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-scheduler-api/internal/models"
)

func TestExamOfferingRepositoryListByTerm(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewExamOfferingRepository(db)

	rows := sqlmock.NewRows([]string{
		"code", "subject_id", "title", "course", "year_level", "dept", "lec_units", "lab_units",
		"instructor", "student_count", "home_room",
	}).
		AddRow("10231", "ITEC 201", "Data Structures", "BSIT", 2, "SECAP", 3, 1, "R. Cruz", 38, "A-201").
		AddRow("20011", "ETHC 101", "Ethics", "BSN", 1, "SHAS", 3, 0, "", 0, "")
	mock.ExpectQuery(regexp.QuoteMeta("FROM exam_offerings WHERE term_code = $1 ORDER BY position ASC, code ASC")).
		WithArgs("20241").
		WillReturnRows(rows)

	exams, err := repo.ListByTerm(context.Background(), "20241")
	require.NoError(t, err)
	require.Len(t, exams, 2)
	assert.Equal(t, models.Exam{
		Code: "10231", SubjectID: "ITEC 201", Title: "Data Structures", Course: "BSIT", YearLevel: 2,
		Department: "SECAP", LectureUnits: 3, LabUnits: 1, Instructor: "R. Cruz", StudentCount: 38, HomeRoom: "A-201",
	}, exams[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamRoomRepositoryListActive(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewExamRoomRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM exam_rooms WHERE active = TRUE ORDER BY id ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "capacity", "active"}).
			AddRow("A-201", 40, true).
			AddRow("K-101", 0, true))

	rooms, err := repo.ListActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Room{{ID: "A-201", Capacity: 40, Active: true}, {ID: "K-101", Active: true}}, rooms)

	mock.ExpectQuery(regexp.QuoteMeta("FROM exam_rooms")).WillReturnError(errors.New("connection reset"))
	_, err = repo.ListActive(context.Background())
	assert.ErrorContains(t, err, "list exam rooms")
	assert.NoError(t, mock.ExpectationsWereMet())
}
