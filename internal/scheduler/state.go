package scheduler

import (
	"fmt"
	"strings"

	"github.com/noah-isme/exam-scheduler-api/internal/models"
)

// Placement is the committed start slot of a subject and the number of slots it spans.
type Placement struct {
	Day  int `json:"day"`
	Slot int `json:"slot"`
	Span int `json:"span"`
}

// End returns the last slot index covered by the placement.
func (p Placement) End() int {
	return p.Slot + p.Span - 1
}

// Overlaps reports whether both placements share a slot on the same day.
func (p Placement) Overlaps(other Placement) bool {
	return p.Day == other.Day && p.Slot <= other.End() && other.Slot <= p.End()
}

// Gap returns the number of free slots between two placements on the same day. It is -1
// for overlapping placements and for placements on different days.
func (p Placement) Gap(other Placement) int {
	if p.Day != other.Day || p.Overlaps(other) {
		return -1
	}
	if p.End() < other.Slot {
		return other.Slot - p.End() - 1
	}
	return p.Slot - other.End() - 1
}

type slotKey struct {
	day  int
	slot int
}

type cohortDay struct {
	cohort models.Cohort
	day    int
}

// State holds every commitment made during one run. It is only changed by Commit.
type State struct {
	dayLabels  []string
	slotLabels []string

	occupied       map[slotKey]map[string]string
	cohortSubjects map[cohortDay]map[string]struct{}
	subjectSlots   map[string]Placement
	subjectClass   map[string]ClassTag
	placedSections map[string]struct{}
	entries        []models.ScheduledExam
}

// NewState returns an empty state for a grid of len(dayLabels) days and len(slotLabels) slots.
func NewState(dayLabels, slotLabels []string) *State {
	return &State{
		dayLabels:      dayLabels,
		slotLabels:     slotLabels,
		occupied:       make(map[slotKey]map[string]string),
		cohortSubjects: make(map[cohortDay]map[string]struct{}),
		subjectSlots:   make(map[string]Placement),
		subjectClass:   make(map[string]ClassTag),
		placedSections: make(map[string]struct{}),
	}
}

// Days returns the number of exam days.
func (s *State) Days() int { return len(s.dayLabels) }

// Slots returns the number of slots per day.
func (s *State) Slots() int { return len(s.slotLabels) }

// RoomFree reports whether a room is unused for span slots starting at (day, slot).
func (s *State) RoomFree(day, slot int, room string, span int) bool {
	for k := 0; k < span; k++ {
		if _, taken := s.occupied[slotKey{day, slot + k}][room]; taken {
			return false
		}
	}
	return true
}

// SlotUsage returns how many rooms are committed at (day, slot).
func (s *State) SlotUsage(day, slot int) int {
	return len(s.occupied[slotKey{day, slot}])
}

// Load returns the number of distinct subjects a cohort has on a day.
func (s *State) Load(cohort models.Cohort, day int) int {
	return len(s.cohortSubjects[cohortDay{cohort, day}])
}

// HasSubjectOnDay reports whether the subject already counts toward the cohort's day load.
func (s *State) HasSubjectOnDay(cohort models.Cohort, day int, subjectID string) bool {
	_, ok := s.cohortSubjects[cohortDay{cohort, day}][subjectID]
	return ok
}

// Placement returns the committed placement of a subject.
func (s *State) Placement(subjectID string) (Placement, bool) {
	p, ok := s.subjectSlots[subjectID]
	return p, ok
}

// Class returns the class of a committed subject.
func (s *State) Class(subjectID string) ClassTag {
	return s.subjectClass[subjectID]
}

// SectionPlaced reports whether a section of a subject already has a room.
func (s *State) SectionPlaced(subjectID, code string) bool {
	_, ok := s.placedSections[sectionKey(subjectID, code)]
	return ok
}

// Entries returns a copy of the committed exams in commit order.
func (s *State) Entries() []models.ScheduledExam {
	out := make([]models.ScheduledExam, len(s.entries))
	copy(out, s.entries)
	return out
}

// Commitment is everything needed to commit sections of one subject.
type Commitment struct {
	SubjectID string
	Class     ClassTag
	Sections  []models.Exam
	Rooms     []string
	Placement Placement
}

// Commit records the sections at their placement. Either every section is committed or
// the state is left untouched and an error describes the first failed precondition.
func (s *State) Commit(c Commitment) error {
	if err := s.checkCommit(c); err != nil {
		return err
	}
	p := c.Placement
	for i, section := range c.Sections {
		room := c.Rooms[i]
		for k := 0; k < p.Span; k++ {
			key := slotKey{p.Day, p.Slot + k}
			if s.occupied[key] == nil {
				s.occupied[key] = make(map[string]string)
			}
			s.occupied[key][room] = c.SubjectID
			s.entries = append(s.entries, models.ScheduledExam{
				Exam:      section,
				DayIndex:  p.Day,
				DayLabel:  s.dayLabels[p.Day],
				SlotIndex: p.Slot + k,
				SlotLabel: s.slotLabels[p.Slot+k],
				Room:      room,
			})
		}
		s.placedSections[sectionKey(c.SubjectID, section.Code)] = struct{}{}
		if section.HasCohort() {
			key := cohortDay{section.Cohort(), p.Day}
			if s.cohortSubjects[key] == nil {
				s.cohortSubjects[key] = make(map[string]struct{})
			}
			s.cohortSubjects[key][c.SubjectID] = struct{}{}
		}
	}
	s.subjectSlots[c.SubjectID] = p
	if _, ok := s.subjectClass[c.SubjectID]; !ok {
		s.subjectClass[c.SubjectID] = c.Class
	}
	return nil
}

func (s *State) checkCommit(c Commitment) error {
	p := c.Placement
	switch {
	case c.SubjectID == "":
		return fmt.Errorf("commit: subject id is required")
	case len(c.Sections) == 0:
		return fmt.Errorf("commit %s: no sections", c.SubjectID)
	case len(c.Rooms) != len(c.Sections):
		return fmt.Errorf("commit %s: %d rooms for %d sections", c.SubjectID, len(c.Rooms), len(c.Sections))
	case p.Span < 1:
		return fmt.Errorf("commit %s: span must be positive", c.SubjectID)
	case p.Day < 0 || p.Day >= s.Days():
		return fmt.Errorf("commit %s: day %d outside grid", c.SubjectID, p.Day)
	case p.Slot < 0 || p.End() >= s.Slots():
		return fmt.Errorf("commit %s: slots %d-%d outside grid", c.SubjectID, p.Slot, p.End())
	}
	if existing, ok := s.subjectSlots[c.SubjectID]; ok && existing != p {
		return fmt.Errorf("commit %s: subject already placed at day %d slot %d", c.SubjectID, existing.Day, existing.Slot)
	}
	seen := make(map[string]bool, len(c.Rooms))
	for i, room := range c.Rooms {
		if strings.TrimSpace(room) == "" {
			return fmt.Errorf("commit %s: empty room for section %s", c.SubjectID, c.Sections[i].Code)
		}
		if seen[room] {
			return fmt.Errorf("commit %s: room %s assigned twice", c.SubjectID, room)
		}
		seen[room] = true
		if !s.RoomFree(p.Day, p.Slot, room, p.Span) {
			return fmt.Errorf("commit %s: room %s is occupied", c.SubjectID, room)
		}
		if s.SectionPlaced(c.SubjectID, c.Sections[i].Code) {
			return fmt.Errorf("commit %s: section %s already placed", c.SubjectID, c.Sections[i].Code)
		}
	}
	return nil
}

func sectionKey(subjectID, code string) string {
	return subjectID + "\x00" + code
}
