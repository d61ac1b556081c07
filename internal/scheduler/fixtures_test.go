package scheduler

import (
	"github.com/noah-isme/exam-scheduler-api/internal/models"
)

func newExam(code, subject, course string, year int, dept string) models.Exam {
	return models.Exam{
		Code:         code,
		SubjectID:    subject,
		Title:        subject,
		Course:       course,
		YearLevel:    year,
		Department:   dept,
		LectureUnits: 3,
	}
}

func roomList(ids ...string) []models.Room {
	return RoomsFromIDs(ids)
}

func newPlanner(policy Policy, exams []models.Exam, rooms []models.Room) *Planner {
	return &Planner{
		Policy:    policy,
		Matrix:    BuildConflictMatrix(exams),
		Rooms:     NewRoomDirectory(rooms, policy),
		MaxPerDay: policy.DailyMax,
	}
}

func dayNames(n int) []string {
	return dayLabels(Input{Days: n})
}

func groupByID(groups []*SubjectGroup, subjectID string) *SubjectGroup {
	for _, group := range groups {
		if group.SubjectID == subjectID {
			return group
		}
	}
	return nil
}

func entriesFor(entries []models.ScheduledExam, subjectID string) []models.ScheduledExam {
	var out []models.ScheduledExam
	for _, entry := range entries {
		if entry.SubjectID == subjectID {
			out = append(out, entry)
		}
	}
	return out
}
