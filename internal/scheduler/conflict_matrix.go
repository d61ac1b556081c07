package scheduler

import (
	"sort"

	"github.com/noah-isme/exam-scheduler-api/internal/models"
)

// ConflictMatrix maps each cohort to the subjects it takes and, per subject, the
// other subjects of the same cohort that must never share a slot with it.
type ConflictMatrix struct {
	cohorts  map[models.Cohort][]string
	subjects map[models.Cohort]map[string]struct{}
}

// BuildConflictMatrix derives the matrix from the filtered exam list. Records without a
// cohort are skipped.
func BuildConflictMatrix(exams []models.Exam) *ConflictMatrix {
	m := &ConflictMatrix{
		cohorts:  make(map[models.Cohort][]string),
		subjects: make(map[models.Cohort]map[string]struct{}),
	}
	for _, exam := range exams {
		if !exam.HasCohort() || exam.SubjectID == "" {
			continue
		}
		cohort := exam.Cohort()
		set := m.subjects[cohort]
		if set == nil {
			set = make(map[string]struct{})
			m.subjects[cohort] = set
		}
		if _, seen := set[exam.SubjectID]; seen {
			continue
		}
		set[exam.SubjectID] = struct{}{}
		m.cohorts[cohort] = append(m.cohorts[cohort], exam.SubjectID)
	}
	return m
}

// Conflicts returns the subjects that share a cohort with subjectID, in first-seen order.
func (m *ConflictMatrix) Conflicts(cohort models.Cohort, subjectID string) []string {
	if _, ok := m.subjects[cohort][subjectID]; !ok {
		return nil
	}
	out := make([]string, 0, len(m.cohorts[cohort]))
	for _, other := range m.cohorts[cohort] {
		if other != subjectID {
			out = append(out, other)
		}
	}
	return out
}

// SubjectCount returns the number of distinct subjects a cohort takes.
func (m *ConflictMatrix) SubjectCount(cohort models.Cohort) int {
	return len(m.cohorts[cohort])
}

// Cohorts lists every cohort in the matrix, sorted for stable iteration.
func (m *ConflictMatrix) Cohorts() []models.Cohort {
	out := make([]models.Cohort, 0, len(m.cohorts))
	for cohort := range m.cohorts {
		out = append(out, cohort)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Course == out[j].Course {
			return out[i].YearLevel < out[j].YearLevel
		}
		return out[i].Course < out[j].Course
	})
	return out
}
