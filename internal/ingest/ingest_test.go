package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-scheduler-api/internal/models"
)

func TestDecodeExamsAcceptsFieldVariants(t *testing.T) {
	records := []map[string]any{
		{
			"SUBJECT_ID": "ITEC 201", "CODE_NO": "10231", "Title": "  Data   Structures ",
			"COURSE": "BSIT", "YEAR_LEVEL": "2", "DEPARTMENT": "SECAP",
			"LEC_UNITS": "3.0", "lab": 1.0, "students": 38, "ROOM": "A-201", "ignored": true,
		},
		{
			"subjectId": "ETHC 101", "sectionCode": "20011", "course": "BSN",
			"yearLevel": 1, "dept": "SHAS", "lec": 3,
		},
		{
			"subject_id": "MATH 101", "codeNo": "30001", "yearLevel": "first",
		},
	}

	exams, failures := DecodeExams(records)

	require.Len(t, exams, 2)
	assert.Equal(t, models.Exam{
		Code: "10231", SubjectID: "ITEC 201", Title: "Data Structures", Course: "BSIT", YearLevel: 2,
		Department: "SECAP", LectureUnits: 3, LabUnits: 1, StudentCount: 38, HomeRoom: "A-201",
	}, exams[0])
	assert.Equal(t, "ETHC 101", exams[1].SubjectID)
	assert.Equal(t, "20011", exams[1].Code)
	assert.Equal(t, 1, exams[1].YearLevel)

	require.Len(t, failures, 1)
	assert.Equal(t, 2, failures[0].Index)
	assert.Contains(t, failures[0].Error, "yearlevel")
}

func TestDecodeExamsPrefersNonBlankAlias(t *testing.T) {
	exams, failures := DecodeExams([]map[string]any{{
		"subject_id": "ITEC 201", "code": "1", "room": "A-202", "home_room": "",
	}})

	require.Empty(t, failures)
	require.Len(t, exams, 1)
	assert.Equal(t, "A-202", exams[0].HomeRoom)
}

func TestDecodeRooms(t *testing.T) {
	rooms, failures := DecodeRooms([]any{
		"A-201",
		map[string]any{"ROOM_ID": "K-101", "seats": "45"},
		map[string]any{"id": "a-201"},
		map[string]any{"id": "L-101", "active": false},
		42,
		"   ",
	})

	assert.Equal(t, []models.Room{
		{ID: "A-201", Active: true},
		{ID: "K-101", Capacity: 45, Active: true},
		{ID: "L-101", Active: false},
	}, rooms)
	require.Len(t, failures, 2)
	assert.Equal(t, 4, failures[0].Index)
	assert.Equal(t, 5, failures[1].Index)
}

func TestParseRoomList(t *testing.T) {
	got := ParseRoomList([]string{" A-201 ", "", "Virtual   Room", "a-201", "K-101"})
	assert.Equal(t, []string{"A-201", "Virtual Room", "K-101"}, got)
}

func TestReadRecordsAcceptsJSONAndYAML(t *testing.T) {
	fromJSON, err := ReadRecords(strings.NewReader(`[{"subjectId": "ITEC 201", "codeNo": "1"}]`))
	require.NoError(t, err)
	fromYAML, err := ReadRecords(strings.NewReader("- subjectId: ITEC 201\n  codeNo: \"1\"\n"))
	require.NoError(t, err)

	assert.Equal(t, fromJSON, fromYAML)

	empty, err := ReadRecords(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ReadRecords(strings.NewReader("subjectId: [unterminated"))
	assert.Error(t, err)

	rooms, err := ReadRoomRecords(strings.NewReader(`["A-201", {"id": "K-101", "capacity": 40}]`))
	require.NoError(t, err)
	assert.Len(t, rooms, 2)
}
