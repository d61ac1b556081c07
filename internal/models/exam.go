package models

import (
	"strconv"
	"strings"
)

// Exam is one examinable section loaded from the offerings catalog.
type Exam struct {
	Code         string `db:"code" json:"code" mapstructure:"code"`
	SubjectID    string `db:"subject_id" json:"subject_id" mapstructure:"subjectid"`
	Title        string `db:"title" json:"title" mapstructure:"title"`
	Course       string `db:"course" json:"course" mapstructure:"course"`
	YearLevel    int    `db:"year_level" json:"year_level" mapstructure:"yearlevel"`
	Department   string `db:"dept" json:"dept" mapstructure:"dept"`
	LectureUnits int    `db:"lec_units" json:"lec_units" mapstructure:"lec"`
	LabUnits     int    `db:"lab_units" json:"lab_units" mapstructure:"lab"`
	Instructor   string `db:"instructor" json:"instructor,omitempty" mapstructure:"instructor"`
	StudentCount int    `db:"student_count" json:"student_count,omitempty" mapstructure:"studentcount"`
	HomeRoom     string `db:"home_room" json:"home_room,omitempty" mapstructure:"homeroom"`
}

// Cohort identifies the students of one course and year level.
type Cohort struct {
	Course    string `json:"course"`
	YearLevel int    `json:"year_level"`
}

// String renders the cohort as COURSE-YEAR.
func (c Cohort) String() string {
	return c.Course + "-" + strconv.Itoa(c.YearLevel)
}

// Cohort returns the exam's cohort.
func (e Exam) Cohort() Cohort {
	return Cohort{Course: strings.TrimSpace(e.Course), YearLevel: e.YearLevel}
}

// HasCohort reports whether course and year level are both present.
func (e Exam) HasCohort() bool {
	return strings.TrimSpace(e.Course) != "" && e.YearLevel > 0
}

// UnitLoad is the combined lecture and lab units of the section.
func (e Exam) UnitLoad() int {
	return e.LectureUnits + e.LabUnits
}

// ScheduledExam is a section committed to a day, slot and room.
type ScheduledExam struct {
	Exam
	DayIndex  int    `db:"day_index" json:"day_index"`
	DayLabel  string `db:"day_label" json:"day_label"`
	SlotIndex int    `db:"slot_index" json:"slot_index"`
	SlotLabel string `db:"slot_label" json:"slot_label"`
	Room      string `db:"room" json:"room"`
}

// Room is an examination room as supplied by the rooms catalog.
type Room struct {
	ID       string `db:"id" json:"id"`
	Capacity int    `db:"capacity" json:"capacity"`
	Active   bool   `db:"active" json:"active"`
}
