package scheduler

import (
	"strings"

	"github.com/samber/lo"

	"github.com/noah-isme/exam-scheduler-api/internal/models"
)

// Drop reasons reported by FilterCatalog.
const (
	DropMalformed          = "MALFORMED"
	DropExcludedDepartment = "EXCLUDED_DEPARTMENT"
	DropExcludedSubject    = "EXCLUDED_SUBJECT"
	DropDuplicate          = "DUPLICATE"
)

// DroppedExam records why an input record did not reach the eligible set.
type DroppedExam struct {
	Code      string `json:"code"`
	SubjectID string `json:"subject_id"`
	Reason    string `json:"reason"`
}

// FilterReport summarises what FilterCatalog removed.
type FilterReport struct {
	Input              int           `json:"input"`
	Eligible           int           `json:"eligible"`
	Malformed          int           `json:"malformed"`
	ExcludedDepartment int           `json:"excluded_department"`
	ExcludedSubject    int           `json:"excluded_subject"`
	Duplicate          int           `json:"duplicate"`
	ExcludedSubjectIDs []string      `json:"excluded_subject_ids"`
	Dropped            []DroppedExam `json:"dropped,omitempty"`
}

// FilterCatalog removes records that cannot be examined. Input order is preserved.
func FilterCatalog(exams []models.Exam, policy Policy) ([]models.Exam, FilterReport) {
	report := FilterReport{Input: len(exams)}
	excludedIDs := lo.SliceToMap(policy.Exclusions.SubjectIDs, func(id string) (string, struct{}) {
		return normalizeCode(id), struct{}{}
	})
	excludedDepts := lo.SliceToMap(policy.Exclusions.Departments, func(dept string) (string, struct{}) {
		return normalizeCode(dept), struct{}{}
	})

	seen := make(map[string]struct{}, len(exams))
	eligible := make([]models.Exam, 0, len(exams))
	for _, exam := range exams {
		reason := ""
		switch {
		case strings.TrimSpace(exam.SubjectID) == "" || strings.TrimSpace(exam.Code) == "" || !exam.HasCohort():
			reason = DropMalformed
			report.Malformed++
		case hasKey(excludedDepts, normalizeCode(exam.Department)):
			reason = DropExcludedDepartment
			report.ExcludedDepartment++
		case isExcludedSubject(exam.SubjectID, excludedIDs, policy.Exclusions):
			reason = DropExcludedSubject
			report.ExcludedSubject++
			report.ExcludedSubjectIDs = append(report.ExcludedSubjectIDs, normalizeCode(exam.SubjectID))
		case hasKey(seen, sectionKey(exam.SubjectID, exam.Code)):
			reason = DropDuplicate
			report.Duplicate++
		}
		if reason != "" {
			report.Dropped = append(report.Dropped, DroppedExam{Code: exam.Code, SubjectID: exam.SubjectID, Reason: reason})
			continue
		}
		seen[sectionKey(exam.SubjectID, exam.Code)] = struct{}{}
		eligible = append(eligible, exam)
	}
	report.ExcludedSubjectIDs = lo.Uniq(report.ExcludedSubjectIDs)
	report.Eligible = len(eligible)
	return eligible, report
}

func isExcludedSubject(subjectID string, exact map[string]struct{}, rules ExclusionRules) bool {
	normalized := normalizeCode(subjectID)
	if normalized == "" {
		return false
	}
	if hasKey(exact, normalized) {
		return true
	}
	for _, keyword := range rules.Keywords {
		if keyword != "" && strings.Contains(normalized, strings.ToUpper(keyword)) {
			return true
		}
	}
	code := leadingLetters(normalized)
	return code != "" && lo.ContainsBy(rules.Prefixes, func(prefix string) bool {
		return strings.EqualFold(prefix, code)
	})
}

func leadingLetters(value string) string {
	end := 0
	for end < len(value) && value[end] >= 'A' && value[end] <= 'Z' {
		end++
	}
	return value[:end]
}

func hasKey(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}
