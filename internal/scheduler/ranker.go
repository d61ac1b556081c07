package scheduler

import "sort"

// RankGroups returns the groups in placement order: class weight, unit load and section
// count descending, then subject identifier ascending. The input slice is not modified.
func RankGroups(groups []*SubjectGroup) []*SubjectGroup {
	ranked := make([]*SubjectGroup, len(groups))
	copy(ranked, groups)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Class.Weight() != b.Class.Weight() {
			return a.Class.Weight() > b.Class.Weight()
		}
		if a.UnitLoad != b.UnitLoad {
			return a.UnitLoad > b.UnitLoad
		}
		if len(a.Sections) != len(b.Sections) {
			return len(a.Sections) > len(b.Sections)
		}
		return a.SubjectID < b.SubjectID
	})
	return ranked
}
