package scheduler

import (
	"strings"

	"github.com/samber/lo"

	"github.com/noah-isme/exam-scheduler-api/internal/models"
)

// SubjectGroup is every section sharing one subject identifier. It is scheduled as a
// single event: all sections start in the same day and slot.
type SubjectGroup struct {
	SubjectID    string
	Title        string
	Class        ClassTag
	GenEdFamily  string
	Spatial      *SpatialRule
	Sections     []models.Exam
	Cohorts      []models.Cohort
	UnitLoad     int
	StudentCount int
	Span         int
}

// SectionCount is the number of rooms the group needs at once.
func (g *SubjectGroup) SectionCount() int {
	return len(g.Sections)
}

// DoubleUnit reports whether the group occupies two consecutive slots.
func (g *SubjectGroup) DoubleUnit() bool {
	return g.Span > 1
}

// GroupSubjects groups exams by subject identifier in first-seen order and classifies each group.
func GroupSubjects(exams []models.Exam, policy Policy) []*SubjectGroup {
	subjectOf := func(exam models.Exam) string { return exam.SubjectID }
	order := lo.Uniq(lo.Map(exams, func(exam models.Exam, _ int) string { return subjectOf(exam) }))
	buckets := lo.GroupBy(exams, subjectOf)

	groups := make([]*SubjectGroup, 0, len(order))
	for _, subjectID := range order {
		sections := buckets[subjectID]
		group := &SubjectGroup{
			SubjectID: subjectID,
			Title:     sections[0].Title,
			Sections:  sections,
			Cohorts: lo.Uniq(lo.FilterMap(sections, func(exam models.Exam, _ int) (models.Cohort, bool) {
				return exam.Cohort(), exam.HasCohort()
			})),
			UnitLoad: lo.Max(lo.Map(sections, func(exam models.Exam, _ int) int { return exam.UnitLoad() })),
			StudentCount: lo.SumBy(sections, func(exam models.Exam) int {
				return exam.StudentCount
			}),
			Span: 1,
		}
		if group.UnitLoad >= policy.DoubleUnitThreshold {
			group.Span = 2
		}
		classify(group, policy)
		groups = append(groups, group)
	}
	return groups
}

func classify(group *SubjectGroup, policy Policy) {
	code := normalizeCode(group.SubjectID)
	for _, family := range policy.GenEd {
		for _, prefix := range family.Prefixes {
			if prefix != "" && strings.HasPrefix(code, strings.ToUpper(prefix)) {
				group.Class = ClassGenEd
				group.GenEdFamily = family.Name
				return
			}
		}
	}
	for _, rule := range policy.Quantitative {
		if !strings.HasPrefix(code, strings.ToUpper(rule.Prefix)) {
			continue
		}
		if lo.SomeBy(group.Sections, func(exam models.Exam) bool {
			return normalizeCode(exam.Department) == normalizeCode(rule.Department)
		}) {
			group.Class = ClassQuantitative
			return
		}
	}
	for i := range policy.Spatial {
		rule := policy.Spatial[i]
		if strings.Contains(code, strings.ToUpper(rule.Contains)) {
			group.Class = ClassSpatial
			group.Spatial = &rule
			return
		}
	}
	group.Class = ClassOrdinary
}
