package scheduler

import (
	"fmt"
	"sort"

	"github.com/noah-isme/exam-scheduler-api/internal/models"
)

// Violation kinds reported by Verify.
const (
	ViolationRoom       = "ROOM_DOUBLE_BOOKED"
	ViolationCohort     = "COHORT_CONFLICT"
	ViolationSplit      = "SPLIT_SUBJECT"
	ViolationDoubleUnit = "DOUBLE_UNIT"
	ViolationDailyLimit = "DAILY_LIMIT"
	ViolationBreak      = "BREAK"
	ViolationGenEdSlot  = "GEN_ED_SLOT"
)

// Violation is a broken hard rule found in a list of scheduled exams.
type Violation struct {
	Kind      string `json:"kind"`
	SubjectID string `json:"subject_id,omitempty"`
	Day       int    `json:"day"`
	Slot      int    `json:"slot"`
	Detail    string `json:"detail"`
}

// Verify checks a schedule against every hard rule. Engine output is valid by construction;
// manual moves and pinned data are not, so they are checked here.
func Verify(entries []models.ScheduledExam, policy Policy, maxPerDay int) []Violation {
	var out []Violation
	add := func(kind, subjectID string, day, slot int, format string, args ...any) {
		out = append(out, Violation{Kind: kind, SubjectID: subjectID, Day: day, Slot: slot, Detail: fmt.Sprintf(format, args...)})
	}

	rooms := make(map[string]string)
	cohortSlots := make(map[string]string)
	type sectionKeyT struct{ subject, code string }
	sections := make(map[sectionKeyT][]models.ScheduledExam)
	var sectionOrder []sectionKeyT
	dayLoads := make(map[string]map[string]bool)
	daySubjectSlots := make(map[string]map[string][]int)

	for _, entry := range entries {
		roomKey := fmt.Sprintf("%d/%d/%s", entry.DayIndex, entry.SlotIndex, entry.Room)
		if other, taken := rooms[roomKey]; taken {
			add(ViolationRoom, entry.SubjectID, entry.DayIndex, entry.SlotIndex, "room %s also holds %s", entry.Room, other)
		} else {
			rooms[roomKey] = entry.SubjectID + " " + entry.Code
		}

		cohort := entry.Cohort().String()
		slotKey := fmt.Sprintf("%d/%d/%s", entry.DayIndex, entry.SlotIndex, cohort)
		if other, taken := cohortSlots[slotKey]; taken && other != entry.SubjectID {
			add(ViolationCohort, entry.SubjectID, entry.DayIndex, entry.SlotIndex, "cohort %s also sits %s", cohort, other)
		} else if !taken {
			cohortSlots[slotKey] = entry.SubjectID
		}

		key := sectionKeyT{entry.SubjectID, entry.Code}
		if _, ok := sections[key]; !ok {
			sectionOrder = append(sectionOrder, key)
		}
		sections[key] = append(sections[key], entry)

		dayKey := fmt.Sprintf("%d/%s", entry.DayIndex, cohort)
		if dayLoads[dayKey] == nil {
			dayLoads[dayKey] = make(map[string]bool)
			daySubjectSlots[dayKey] = make(map[string][]int)
		}
		dayLoads[dayKey][entry.SubjectID] = true
		daySubjectSlots[dayKey][entry.SubjectID] = append(daySubjectSlots[dayKey][entry.SubjectID], entry.SlotIndex)
	}

	maxUnits := make(map[string]int)
	for _, entry := range entries {
		if entry.UnitLoad() > maxUnits[entry.SubjectID] {
			maxUnits[entry.SubjectID] = entry.UnitLoad()
		}
	}

	starts := make(map[string]Placement)
	genEd := make(map[string]bool)
	for _, key := range sectionOrder {
		records := sections[key]
		sort.Slice(records, func(i, j int) bool { return records[i].SlotIndex < records[j].SlotIndex })
		first := records[0]
		want := 1
		if maxUnits[key.subject] >= policy.DoubleUnitThreshold {
			want = 2
		}
		if len(records) != want {
			add(ViolationDoubleUnit, key.subject, first.DayIndex, first.SlotIndex, "section %s has %d records, want %d", key.code, len(records), want)
		} else if want == 2 {
			second := records[1]
			if second.DayIndex != first.DayIndex || second.SlotIndex != first.SlotIndex+1 || second.Room != first.Room {
				add(ViolationDoubleUnit, key.subject, first.DayIndex, first.SlotIndex, "section %s is not in consecutive slots of one room", key.code)
			}
		}

		start := Placement{Day: first.DayIndex, Slot: first.SlotIndex, Span: want}
		if prev, ok := starts[key.subject]; ok {
			if prev.Day != start.Day || prev.Slot != start.Slot {
				add(ViolationSplit, key.subject, first.DayIndex, first.SlotIndex, "section %s starts apart from other sections", key.code)
			}
		} else {
			starts[key.subject] = start
		}

		if _, checked := genEd[key.subject]; !checked {
			group := &SubjectGroup{SubjectID: key.subject, Sections: []models.Exam{first.Exam}}
			classify(group, policy)
			genEd[key.subject] = group.Class == ClassGenEd
		}
		if genEd[key.subject] {
			for _, record := range records {
				if policy.genEdBarred(record.SlotIndex) {
					add(ViolationGenEdSlot, key.subject, record.DayIndex, record.SlotIndex, "gen-ed section %s in barred slot", key.code)
				}
			}
		}
	}

	dayKeys := make([]string, 0, len(dayLoads))
	for key := range dayLoads {
		dayKeys = append(dayKeys, key)
	}
	sort.Strings(dayKeys)
	for _, dayKey := range dayKeys {
		if maxPerDay > 0 && len(dayLoads[dayKey]) > maxPerDay {
			add(ViolationDailyLimit, "", -1, -1, "%s has %d subjects, limit %d", dayKey, len(dayLoads[dayKey]), maxPerDay)
		}
		subjects := make([]string, 0, len(daySubjectSlots[dayKey]))
		for subject := range daySubjectSlots[dayKey] {
			subjects = append(subjects, subject)
		}
		sort.Strings(subjects)
		for i := 0; i < len(subjects); i++ {
			for j := i + 1; j < len(subjects); j++ {
				if adjacent(daySubjectSlots[dayKey][subjects[i]], daySubjectSlots[dayKey][subjects[j]]) {
					add(ViolationBreak, subjects[i], -1, -1, "%s sits %s and %s back to back", dayKey, subjects[i], subjects[j])
				}
			}
		}
	}
	return out
}

func adjacent(a, b []int) bool {
	for _, x := range a {
		for _, y := range b {
			if x-y == 1 || y-x == 1 {
				return true
			}
		}
	}
	return false
}
