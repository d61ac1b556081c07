package scheduler

import (
	"sort"

	"github.com/noah-isme/exam-scheduler-api/internal/models"
)

// Rejection names the hard constraint that ruled out a (day, slot).
type Rejection string

const (
	RejectGridEdge   Rejection = "GRID_EDGE"
	RejectGenEdSlot  Rejection = "GEN_ED_SLOT"
	RejectConflict   Rejection = "COHORT_CONFLICT"
	RejectBreak      Rejection = "BREAK"
	RejectDailyLimit Rejection = "DAILY_LIMIT"
	RejectRooms      Rejection = "ROOMS"
)

// SlotOption is a feasible start slot with its cost and the rooms secured for it.
type SlotOption struct {
	Day   int      `json:"day"`
	Slot  int      `json:"slot"`
	Cost  int      `json:"cost"`
	Rooms []string `json:"rooms"`
}

// SearchResult lists feasible options, cheapest first, and counts rejections per constraint.
type SearchResult struct {
	Options    []SlotOption
	Rejections map[Rejection]int
}

// Planner evaluates slots and rooms for subject groups against a shared read-only context.
type Planner struct {
	Policy    Policy
	Matrix    *ConflictMatrix
	Rooms     *RoomDirectory
	MaxPerDay int
}

// Target is the even per-day subject count for a cohort, capped at the daily maximum.
func (p *Planner) Target(cohort models.Cohort, days int) int {
	if days < 1 {
		return p.MaxPerDay
	}
	total := p.Matrix.SubjectCount(cohort)
	target := (total + days - 1) / days
	if target > p.MaxPerDay {
		target = p.MaxPerDay
	}
	return target
}

// SearchSlots evaluates every (day, slot) of the grid for the group. In relaxed mode the
// options keep grid order and carry no cost, so the first option is the first feasible one.
func (p *Planner) SearchSlots(group *SubjectGroup, state *State, relaxed bool) SearchResult {
	result := SearchResult{Rejections: make(map[Rejection]int)}
	for day := 0; day < state.Days(); day++ {
		for slot := 0; slot < state.Slots(); slot++ {
			candidate := Placement{Day: day, Slot: slot, Span: group.Span}
			if reason, ok := p.hardCheck(group, state, candidate); !ok {
				result.Rejections[reason]++
				continue
			}
			rooms, ok := p.AllocateRooms(group, group.Sections, day, slot, state, relaxed)
			if !ok {
				result.Rejections[RejectRooms]++
				continue
			}
			option := SlotOption{Day: day, Slot: slot, Rooms: rooms}
			if !relaxed {
				option.Cost = p.cost(group, state, candidate)
			}
			result.Options = append(result.Options, option)
		}
	}
	if !relaxed {
		sort.SliceStable(result.Options, func(i, j int) bool {
			return result.Options[i].Cost < result.Options[j].Cost
		})
	}
	return result
}

// BestSlot returns the first option of SearchSlots.
func (p *Planner) BestSlot(group *SubjectGroup, state *State, relaxed bool) (SlotOption, SearchResult, bool) {
	result := p.SearchSlots(group, state, relaxed)
	if len(result.Options) == 0 {
		return SlotOption{}, result, false
	}
	return result.Options[0], result, true
}

func (p *Planner) hardCheck(group *SubjectGroup, state *State, candidate Placement) (Rejection, bool) {
	if candidate.End() >= state.Slots() {
		return RejectGridEdge, false
	}
	if group.Class == ClassGenEd {
		for k := 0; k < candidate.Span; k++ {
			if p.Policy.genEdBarred(candidate.Slot + k) {
				return RejectGenEdSlot, false
			}
		}
	}
	for _, cohort := range group.Cohorts {
		for _, other := range p.Matrix.Conflicts(cohort, group.SubjectID) {
			placed, ok := state.Placement(other)
			if !ok || placed.Day != candidate.Day {
				continue
			}
			if placed.Overlaps(candidate) {
				return RejectConflict, false
			}
			if placed.Gap(candidate) == 0 {
				return RejectBreak, false
			}
		}
		load := state.Load(cohort, candidate.Day)
		if !state.HasSubjectOnDay(cohort, candidate.Day, group.SubjectID) {
			load++
		}
		if load > p.MaxPerDay {
			return RejectDailyLimit, false
		}
	}
	return "", true
}

func (p *Planner) cost(group *SubjectGroup, state *State, candidate Placement) int {
	w := p.Policy.Weights
	cost := 0
	for _, cohort := range group.Cohorts {
		current := state.Load(cohort, candidate.Day)
		target := p.Target(cohort, state.Days())
		if current < target {
			cost -= (target - current) * w.DayDeficit
		} else {
			cost += (current - target + 1) * w.DayExcess
		}
		for _, other := range p.Matrix.Conflicts(cohort, group.SubjectID) {
			placed, ok := state.Placement(other)
			if !ok || placed.Gap(candidate) != 1 {
				continue
			}
			cost += w.NearNeighbour
			if group.Class == ClassOrdinary && state.Class(other) == ClassOrdinary {
				cost += w.OrdinaryNeighbour
			}
		}
	}
	for k := 0; k < candidate.Span; k++ {
		cost += state.SlotUsage(candidate.Day, candidate.Slot+k) * w.SlotUsage
	}
	cost += candidate.Slot * w.SlotPosition
	return cost
}

// GenEdBlock returns the first configured time block of the group's Gen-Ed family, in policy
// order, that passes the hard constraints and can seat every section.
func (p *Planner) GenEdBlock(group *SubjectGroup, state *State) (SlotOption, bool) {
	if group.Class != ClassGenEd {
		return SlotOption{}, false
	}
	for _, family := range p.Policy.GenEd {
		if family.Name != group.GenEdFamily {
			continue
		}
		for _, block := range family.Blocks {
			if block.Day < 0 || block.Day >= state.Days() || block.Slot < 0 {
				continue
			}
			candidate := Placement{Day: block.Day, Slot: block.Slot, Span: group.Span}
			if _, ok := p.hardCheck(group, state, candidate); !ok {
				continue
			}
			rooms, ok := p.AllocateRooms(group, group.Sections, block.Day, block.Slot, state, false)
			if !ok {
				continue
			}
			return SlotOption{Day: block.Day, Slot: block.Slot, Rooms: rooms}, true
		}
	}
	return SlotOption{}, false
}
