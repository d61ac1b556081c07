package scheduler

import (
	"sort"

	"github.com/onsi/gomega/matchers/support/goraph/bipartitegraph"
	"github.com/samber/lo"

	"github.com/noah-isme/exam-scheduler-api/internal/models"
)

// AllocateRooms picks one free, rule-conforming room per section at (day, slot), covering the
// group's span. Multi-section groups prefer a contiguous run in one building, then any rooms
// of one building, then any conforming rooms. The result is aligned with sections.
func (p *Planner) AllocateRooms(group *SubjectGroup, sections []models.Exam, day, slot int, state *State, relaxed bool) ([]string, bool) {
	if len(sections) == 0 {
		return nil, true
	}
	allowed := make([]map[string]bool, len(sections))
	for i, section := range sections {
		allowed[i] = lo.SliceToMap(p.buildingsForSection(group, section, relaxed), func(b string) (string, bool) {
			return b, true
		})
	}
	order := p.buildingOrder(group, sections, relaxed)

	free := func(room RoomProfile) bool {
		return state.RoomFree(day, slot, room.ID, group.Span)
	}

	// Fallback buildings of a spatial group are only used once its own building cannot seat
	// every section.
	if group.Spatial != nil {
		only := lo.Map(sections, func(_ models.Exam, _ int) map[string]bool {
			return map[string]bool{group.Spatial.Building: true}
		})
		if assigned, ok := p.allocateIn(sections, only, []string{group.Spatial.Building}, free); ok {
			return assigned, true
		}
	}
	return p.allocateIn(sections, allowed, order, free)
}

func (p *Planner) allocateIn(sections []models.Exam, allowed []map[string]bool, order []string, free func(RoomProfile) bool) ([]string, bool) {
	if len(sections) == 1 {
		return p.allocateSingle(sections[0], allowed[0], order, free)
	}

	for _, building := range order {
		if !lo.EveryBy(allowed, func(set map[string]bool) bool { return set[building] }) {
			continue
		}
		rooms := lo.Filter(p.Rooms.InBuilding(building), func(room RoomProfile, _ int) bool { return free(room) })
		if len(rooms) < len(sections) {
			continue
		}
		if run := contiguousRun(rooms, len(sections), p.Policy.RoomRunWindow, sections); run != nil {
			if assigned, ok := assignSections(sections, run); ok {
				return assigned, true
			}
		}
	}
	for _, building := range order {
		if !lo.EveryBy(allowed, func(set map[string]bool) bool { return set[building] }) {
			continue
		}
		rooms := lo.Filter(p.Rooms.InBuilding(building), func(room RoomProfile, _ int) bool { return free(room) })
		if len(rooms) < len(sections) {
			continue
		}
		if assigned, ok := assignSections(sections, preferHomeRooms(rooms, sections)); ok {
			return assigned, true
		}
	}

	var pool []RoomProfile
	for _, building := range order {
		pool = append(pool, lo.Filter(p.Rooms.InBuilding(building), func(room RoomProfile, _ int) bool { return free(room) })...)
	}
	return matchSections(sections, allowed, pool)
}

func (p *Planner) allocateSingle(section models.Exam, allowed map[string]bool, order []string, free func(RoomProfile) bool) ([]string, bool) {
	if home, ok := p.Rooms.Lookup(section.HomeRoom); ok && allowed[home.Building] && free(home) && fits(home, section) {
		return []string{home.ID}, true
	}
	for _, building := range order {
		if !allowed[building] {
			continue
		}
		for _, room := range p.Rooms.InBuilding(building) {
			if free(room) && fits(room, section) {
				return []string{room.ID}, true
			}
		}
	}
	return nil, false
}

// Spatial groups keep their building list even in relaxed mode.
func (p *Planner) buildingsForSection(group *SubjectGroup, section models.Exam, relaxed bool) []string {
	if group.Spatial != nil {
		return append([]string{group.Spatial.Building}, group.Spatial.Fallbacks...)
	}
	buildings := p.Policy.buildingsFor(section.Department)
	if relaxed {
		buildings = lo.Uniq(append(append([]string(nil), buildings...), p.Rooms.Buildings()...))
	}
	return buildings
}

func (p *Planner) buildingOrder(group *SubjectGroup, sections []models.Exam, relaxed bool) []string {
	var order []string
	for _, section := range sections {
		order = append(order, p.buildingsForSection(group, section, relaxed)...)
	}
	return lo.Uniq(order)
}

func fits(room RoomProfile, section models.Exam) bool {
	return room.Capacity <= 0 || section.StudentCount <= 0 || room.Capacity >= section.StudentCount
}

// contiguousRun finds the first n rooms on one floor whose consecutive numbers differ by at
// most window. Runs holding more home rooms win over earlier runs.
func contiguousRun(rooms []RoomProfile, n, window int, sections []models.Exam) []RoomProfile {
	homes := lo.SliceToMap(sections, func(section models.Exam) (string, bool) { return section.HomeRoom, true })
	var best []RoomProfile
	bestHomes := -1
	for start := 0; start+n <= len(rooms); start++ {
		run := rooms[start : start+n]
		ok := true
		for i := 1; i < n; i++ {
			if run[i].Floor != run[0].Floor || run[i].Number-run[i-1].Number > window {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		count := lo.CountBy(run, func(room RoomProfile) bool { return homes[room.ID] })
		if count > bestHomes {
			best, bestHomes = run, count
		}
	}
	return best
}

func preferHomeRooms(rooms []RoomProfile, sections []models.Exam) []RoomProfile {
	homes := lo.SliceToMap(sections, func(section models.Exam) (string, bool) { return section.HomeRoom, true })
	out := make([]RoomProfile, len(rooms))
	copy(out, rooms)
	sort.SliceStable(out, func(i, j int) bool {
		return homes[out[i].ID] && !homes[out[j].ID]
	})
	return out
}

// assignSections gives each section its home room when it is in the pool, then hands out the
// remaining rooms in pool order. Capacity mismatches fall back to bipartite matching.
func assignSections(sections []models.Exam, pool []RoomProfile) ([]string, bool) {
	assigned := make([]string, len(sections))
	used := make(map[string]bool, len(pool))
	byID := lo.KeyBy(pool, func(room RoomProfile) string { return room.ID })
	for i, section := range sections {
		if room, ok := byID[section.HomeRoom]; ok && !used[room.ID] && fits(room, section) {
			assigned[i] = room.ID
			used[room.ID] = true
		}
	}
	for i, section := range sections {
		if assigned[i] != "" {
			continue
		}
		for _, room := range pool {
			if !used[room.ID] && fits(room, section) {
				assigned[i] = room.ID
				used[room.ID] = true
				break
			}
		}
		if assigned[i] == "" {
			everywhere := make([]map[string]bool, len(sections))
			for k := range everywhere {
				everywhere[k] = map[string]bool{}
				for _, room := range pool {
					everywhere[k][room.Building] = true
				}
			}
			return matchSections(sections, everywhere, pool)
		}
	}
	return assigned, true
}

// matchSections solves the section-to-room assignment as a bipartite matching.
func matchSections(sections []models.Exam, allowed []map[string]bool, pool []RoomProfile) ([]string, bool) {
	if len(pool) < len(sections) {
		return nil, false
	}
	left := lo.Map(sections, func(_ models.Exam, i int) any { return i })
	right := lo.Map(pool, func(_ RoomProfile, i int) any { return i })
	neighbours := func(a, b any) (bool, error) {
		section, room := sections[a.(int)], pool[b.(int)]
		return allowed[a.(int)][room.Building] && fits(room, section), nil
	}
	graph, err := bipartitegraph.NewBipartiteGraph(left, right, neighbours)
	if err != nil {
		return nil, false
	}
	matching := graph.LargestMatching()
	if len(matching) < len(sections) {
		return nil, false
	}
	assigned := make([]string, len(sections))
	for _, edge := range matching {
		sectionIdx, roomIdx := edge.Node1, edge.Node2-len(sections)
		assigned[sectionIdx] = pool[roomIdx].ID
	}
	return assigned, true
}
