package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/exam-scheduler-api/internal/models"
)

// Phase names a stage of the orchestrated run.
type Phase string

const (
	PhasePinned   Phase = "PINNED"
	PhaseGenEd    Phase = "GEN_ED"
	PhasePriority Phase = "PRIORITY"
	PhaseOrdinary Phase = "ORDINARY"
	PhaseRelaxed  Phase = "RELAXED"
)

// RejectCommit is recorded when a chosen placement could not be committed.
const RejectCommit Rejection = "COMMIT"

// ErrInvalidInput is returned for inputs the engine cannot schedule at all.
var ErrInvalidInput = errors.New("invalid scheduling input")

// Input is one complete scheduling request.
type Input struct {
	Exams       []models.Exam
	Rooms       []models.Room
	Days        int
	DayLabels   []string
	TermCode    string
	Accelerated bool
	// Pinned entries are committed before the search, as they are.
	Pinned []models.ScheduledExam
}

// PhaseReport counts groups attempted and placed in one phase.
type PhaseReport struct {
	Phase     Phase `json:"phase"`
	Attempted int   `json:"attempted"`
	Scheduled int   `json:"scheduled"`
}

// UnscheduledGroup is a subject group that found no feasible placement.
type UnscheduledGroup struct {
	SubjectID  string            `json:"subject_id"`
	Title      string            `json:"title"`
	Class      ClassTag          `json:"class"`
	Sections   int               `json:"sections"`
	Cohorts    []string          `json:"cohorts"`
	Rejections map[Rejection]int `json:"rejections"`
}

// PinRejection is a pinned entry that could not be committed.
type PinRejection struct {
	SubjectID string `json:"subject_id"`
	Reason    string `json:"reason"`
}

// Summary carries the run statistics shown to the registrar.
type Summary struct {
	EligibleExams   int             `json:"eligible_exams"`
	EligibleGroups  int             `json:"eligible_groups"`
	ScheduledGroups int             `json:"scheduled_groups"`
	ScheduledExams  int             `json:"scheduled_exams"`
	Coverage        decimal.Decimal `json:"coverage"`
	MaxPerDay       int             `json:"max_per_day"`
	Days            int             `json:"days"`
	Unscheduled     []string        `json:"unscheduled"`
	Phases          []PhaseReport   `json:"phases"`
}

// Result is the complete output of a run.
type Result struct {
	Entries       []models.ScheduledExam `json:"entries"`
	Summary       Summary                `json:"summary"`
	Unscheduled   []UnscheduledGroup     `json:"unscheduled"`
	Filter        FilterReport           `json:"filter"`
	ExcludedRooms []string               `json:"excluded_rooms,omitempty"`
	RejectedPins  []PinRejection         `json:"rejected_pins,omitempty"`
	Violations    []Violation            `json:"violations,omitempty"`
}

// Engine runs the greedy exam placement. It holds no state between runs and is safe for
// concurrent use.
type Engine struct {
	policy Policy
}

// NewEngine returns an engine for the policy.
func NewEngine(policy Policy) *Engine {
	return &Engine{policy: policy}
}

// Policy returns the engine's policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Run schedules the input. Groups that cannot be placed are reported in the result, not as
// errors. The context is checked between groups so a caller can bound the run time.
func (e *Engine) Run(ctx context.Context, in Input) (*Result, error) {
	if err := e.validate(in); err != nil {
		return nil, err
	}

	eligible, filter := FilterCatalog(in.Exams, e.policy)
	matrix := BuildConflictMatrix(eligible)
	groups := GroupSubjects(eligible, e.policy)
	ranked := RankGroups(groups)
	rooms := NewRoomDirectory(in.Rooms, e.policy)
	state := NewState(dayLabels(in), e.policy.SlotLabels)
	planner := &Planner{
		Policy:    e.policy,
		Matrix:    matrix,
		Rooms:     rooms,
		MaxPerDay: e.policy.MaxPerDay(in.TermCode, in.Accelerated),
	}
	run := &runner{planner: planner, state: state, rejections: make(map[string]map[Rejection]int)}

	phases := make([]PhaseReport, 0, 5)
	if len(in.Pinned) > 0 {
		phases = append(phases, run.pin(in.Pinned, groups))
	}

	var failed []*SubjectGroup
	for _, phase := range []Phase{PhaseGenEd, PhasePriority, PhaseOrdinary} {
		report := PhaseReport{Phase: phase}
		for _, group := range ranked {
			if phaseOf(group) != phase {
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			report.Attempted++
			if run.place(group, false) {
				report.Scheduled++
				continue
			}
			failed = append(failed, group)
		}
		phases = append(phases, report)
	}

	relaxed := PhaseReport{Phase: PhaseRelaxed}
	var unscheduled []*SubjectGroup
	for _, group := range failed {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		relaxed.Attempted++
		if run.place(group, true) {
			relaxed.Scheduled++
			continue
		}
		unscheduled = append(unscheduled, group)
	}
	phases = append(phases, relaxed)

	entries := state.Entries()
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].DayIndex != entries[j].DayIndex {
			return entries[i].DayIndex < entries[j].DayIndex
		}
		return entries[i].SlotIndex < entries[j].SlotIndex
	})

	result := &Result{
		Entries:       entries,
		Filter:        filter,
		ExcludedRooms: rooms.Excluded(),
		RejectedPins:  run.rejectedPins,
	}
	for _, group := range unscheduled {
		result.Unscheduled = append(result.Unscheduled, UnscheduledGroup{
			SubjectID:  group.SubjectID,
			Title:      group.Title,
			Class:      group.Class,
			Sections:   group.SectionCount(),
			Cohorts:    lo.Map(group.Cohorts, func(c models.Cohort, _ int) string { return c.String() }),
			Rejections: run.rejections[group.SubjectID],
		})
	}
	scheduled := len(groups) - len(unscheduled)
	result.Summary = Summary{
		EligibleExams:   len(eligible),
		EligibleGroups:  len(groups),
		ScheduledGroups: scheduled,
		ScheduledExams:  len(entries),
		Coverage:        Coverage(scheduled, len(groups)),
		MaxPerDay:       planner.MaxPerDay,
		Days:            in.Days,
		Unscheduled:     lo.Map(unscheduled, func(g *SubjectGroup, _ int) string { return g.SubjectID }),
		Phases:          phases,
	}
	result.Violations = Verify(entries, e.policy, planner.MaxPerDay)
	return result, nil
}

// Coverage is scheduled/eligible as a percentage rounded to two places. An empty
// eligible set counts as fully covered.
func Coverage(scheduled, eligible int) decimal.Decimal {
	if eligible <= 0 {
		return decimal.NewFromInt(100).Round(2)
	}
	return decimal.NewFromInt(int64(scheduled)).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(int64(eligible)), 2)
}

func (e *Engine) validate(in Input) error {
	if in.Days < 1 {
		return fmt.Errorf("%w: days must be at least 1", ErrInvalidInput)
	}
	if len(in.DayLabels) > 0 && len(in.DayLabels) != in.Days {
		return fmt.Errorf("%w: %d day labels for %d days", ErrInvalidInput, len(in.DayLabels), in.Days)
	}
	if err := e.policy.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func dayLabels(in Input) []string {
	return DayLabels(in.Days, in.DayLabels)
}

// DayLabels returns custom when it has one label per day, else "Day 1" .. "Day N".
func DayLabels(days int, custom []string) []string {
	if len(custom) == days {
		return custom
	}
	labels := make([]string, days)
	for i := range labels {
		labels[i] = "Day " + strconv.Itoa(i+1)
	}
	return labels
}

func phaseOf(group *SubjectGroup) Phase {
	switch group.Class {
	case ClassGenEd:
		return PhaseGenEd
	case ClassSpatial, ClassQuantitative:
		return PhasePriority
	default:
		return PhaseOrdinary
	}
}

type runner struct {
	planner      *Planner
	state        *State
	rejections   map[string]map[Rejection]int
	rejectedPins []PinRejection
}

func (r *runner) place(group *SubjectGroup, relaxed bool) bool {
	if placed, ok := r.state.Placement(group.SubjectID); ok {
		return r.extend(group, placed, relaxed)
	}
	option, ok := SlotOption{}, false
	if !relaxed {
		option, ok = r.planner.GenEdBlock(group, r.state)
	}
	if !ok {
		var search SearchResult
		option, search, ok = r.planner.BestSlot(group, r.state, relaxed)
		if !ok {
			r.reject(group.SubjectID, search.Rejections)
			return false
		}
	}
	err := r.state.Commit(Commitment{
		SubjectID: group.SubjectID,
		Class:     group.Class,
		Sections:  group.Sections,
		Rooms:     option.Rooms,
		Placement: Placement{Day: option.Day, Slot: option.Slot, Span: group.Span},
	})
	if err != nil {
		r.reject(group.SubjectID, map[Rejection]int{RejectCommit: 1})
		return false
	}
	return true
}

// extend adds the sections of an already placed subject at its committed slot.
func (r *runner) extend(group *SubjectGroup, placed Placement, relaxed bool) bool {
	remaining := lo.Filter(group.Sections, func(section models.Exam, _ int) bool {
		return !r.state.SectionPlaced(group.SubjectID, section.Code)
	})
	if len(remaining) == 0 {
		return true
	}
	if reason, ok := r.planner.hardCheck(group, r.state, placed); !ok {
		r.reject(group.SubjectID, map[Rejection]int{reason: 1})
		return false
	}
	rooms, ok := r.planner.AllocateRooms(group, remaining, placed.Day, placed.Slot, r.state, relaxed)
	if !ok {
		r.reject(group.SubjectID, map[Rejection]int{RejectRooms: 1})
		return false
	}
	err := r.state.Commit(Commitment{
		SubjectID: group.SubjectID,
		Class:     group.Class,
		Sections:  remaining,
		Rooms:     rooms,
		Placement: placed,
	})
	if err != nil {
		r.reject(group.SubjectID, map[Rejection]int{RejectCommit: 1})
		return false
	}
	return true
}

func (r *runner) reject(subjectID string, counts map[Rejection]int) {
	agg := r.rejections[subjectID]
	if agg == nil {
		agg = make(map[Rejection]int)
		r.rejections[subjectID] = agg
	}
	for reason, n := range counts {
		agg[reason] += n
	}
}

// pin commits caller-supplied placements subject by subject. A subject whose pins disagree on
// day or start slot, or reference unknown sections, is rejected as a whole.
func (r *runner) pin(pinned []models.ScheduledExam, groups []*SubjectGroup) PhaseReport {
	report := PhaseReport{Phase: PhasePinned}
	byID := lo.KeyBy(groups, func(g *SubjectGroup) string { return g.SubjectID })
	order := lo.Uniq(lo.Map(pinned, func(entry models.ScheduledExam, _ int) string { return entry.SubjectID }))
	bySubject := lo.GroupBy(pinned, func(entry models.ScheduledExam) string { return entry.SubjectID })

	for _, subjectID := range order {
		report.Attempted++
		entries := bySubject[subjectID]
		group, ok := byID[subjectID]
		if !ok {
			r.rejectPin(subjectID, "subject is not eligible")
			continue
		}
		commit, reason := pinCommitment(group, entries)
		if reason != "" {
			r.rejectPin(subjectID, reason)
			continue
		}
		if err := r.state.Commit(commit); err != nil {
			r.rejectPin(subjectID, err.Error())
			continue
		}
		report.Scheduled++
	}
	return report
}

func pinCommitment(group *SubjectGroup, entries []models.ScheduledExam) (Commitment, string) {
	sections := lo.KeyBy(group.Sections, func(exam models.Exam) string { return exam.Code })
	start := lo.MinBy(entries, func(a, b models.ScheduledExam) bool {
		if a.DayIndex != b.DayIndex {
			return a.DayIndex < b.DayIndex
		}
		return a.SlotIndex < b.SlotIndex
	})
	commit := Commitment{
		SubjectID: group.SubjectID,
		Class:     group.Class,
		Placement: Placement{Day: start.DayIndex, Slot: start.SlotIndex, Span: group.Span},
	}
	seen := make(map[string]bool)
	for _, entry := range entries {
		if entry.DayIndex != start.DayIndex || entry.SlotIndex > commit.Placement.End() {
			return Commitment{}, "pinned sections do not share one placement"
		}
		if seen[entry.Code] {
			continue
		}
		section, ok := sections[entry.Code]
		if !ok {
			return Commitment{}, fmt.Sprintf("section %s is not eligible", entry.Code)
		}
		seen[entry.Code] = true
		commit.Sections = append(commit.Sections, section)
		commit.Rooms = append(commit.Rooms, entry.Room)
	}
	return commit, ""
}

func (r *runner) rejectPin(subjectID, reason string) {
	r.rejectedPins = append(r.rejectedPins, PinRejection{SubjectID: subjectID, Reason: reason})
}
