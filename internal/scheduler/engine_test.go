package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-scheduler-api/internal/models"
)

func runEngine(t *testing.T, policy Policy, in Input) *Result {
	t.Helper()
	result, err := NewEngine(policy).Run(context.Background(), in)
	require.NoError(t, err)
	require.Empty(t, result.Violations)
	return result
}

func TestEngineSchedulesFiveOrdinarySubjectsForOneCohort(t *testing.T) {
	g := NewWithT(t)
	exams := []models.Exam{
		newExam("1", "ITEC 201", "BSIT", 2, "SECAP"),
		newExam("2", "ITEC 202", "BSIT", 2, "SECAP"),
		newExam("3", "ITEC 203", "BSIT", 2, "SECAP"),
		newExam("4", "ITEC 204", "BSIT", 2, "SECAP"),
		newExam("5", "ITEC 205", "BSIT", 2, "SECAP"),
	}

	result := runEngine(t, DefaultPolicy(), Input{Exams: exams, Rooms: roomList("A-201", "A-202", "B-101"), Days: 3})

	g.Expect(result.Entries).To(HaveLen(5))
	g.Expect(result.Unscheduled).To(BeEmpty())
	g.Expect(result.Summary.Coverage.StringFixed(2)).To(Equal("100.00"))

	perDay := map[int][]int{}
	for _, entry := range result.Entries {
		perDay[entry.DayIndex] = append(perDay[entry.DayIndex], entry.SlotIndex)
	}
	for day, slots := range perDay {
		g.Expect(len(slots)).To(BeNumerically("<=", 4), "day %d", day)
		for i := range slots {
			for j := range slots {
				if i != j {
					g.Expect(slots[i]-slots[j]).NotTo(BeElementOf(-1, 1), "day %d", day)
				}
			}
		}
	}
	g.Expect(perDay).To(HaveLen(3))
}

func TestEngineSpatialSubjectFallsBackToSecondaryBuilding(t *testing.T) {
	g := NewWithT(t)
	exams := []models.Exam{
		newExam("1", "ARCH 2101", "BSAR", 2, "SACE"),
		newExam("2", "ARCH 2101", "BSAR", 2, "SACE"),
	}

	result := runEngine(t, DefaultPolicy(), Input{Exams: exams, Rooms: roomList("C-101", "K-101", "K-102", "A-201"), Days: 1})

	g.Expect(result.Entries).To(HaveLen(2))
	first, second := result.Entries[0], result.Entries[1]
	g.Expect(first.DayIndex).To(Equal(second.DayIndex))
	g.Expect(first.SlotIndex).To(Equal(second.SlotIndex))
	g.Expect(first.Room).NotTo(Equal(second.Room))
	g.Expect([]string{first.Room, second.Room}).To(ContainElement(HavePrefix("K-")))
	g.Expect([]string{first.Room, second.Room}).NotTo(ContainElement("A-201"))
}

func TestEngineSpatialSubjectPrefersMandatoryBuilding(t *testing.T) {
	g := NewWithT(t)
	exams := []models.Exam{
		newExam("1", "ARCH 2101", "BSAR", 2, "SACE"),
		newExam("2", "ARCH 2101", "BSAR", 2, "SACE"),
	}

	result := runEngine(t, DefaultPolicy(), Input{Exams: exams, Rooms: roomList("C-101", "C-301", "K-101", "K-102"), Days: 1})

	g.Expect(result.Entries).To(HaveLen(2))
	g.Expect(result.Entries).To(HaveEach(HaveField("Room", HavePrefix("C-"))))
}

func TestEngineGenEdBlocksWinOverDayBalance(t *testing.T) {
	g := NewWithT(t)
	var exams []models.Exam
	for i := 0; i < 12; i++ {
		course := fmt.Sprintf("C%02d", i)
		for _, subject := range []string{"ETHC 101", "ENGL 101", "LITR 101"} {
			exams = append(exams, newExam(fmt.Sprintf("%s-%s", subject[:4], course), subject, course, 1, "SHAS"))
		}
	}
	var ids []string
	for floor := 1; floor <= 2; floor++ {
		for n := 1; n <= 20; n++ {
			ids = append(ids, fmt.Sprintf("L-%d%02d", floor, n))
		}
	}

	result := runEngine(t, DefaultPolicy(), Input{Exams: exams, Rooms: roomList(ids...), Days: 3})

	g.Expect(result.Unscheduled).To(BeEmpty())
	g.Expect(entriesFor(result.Entries, "ENGL 101")).To(HaveEach(And(HaveField("DayIndex", 0), HaveField("SlotIndex", 2))))
	g.Expect(entriesFor(result.Entries, "LITR 101")).To(HaveEach(And(HaveField("DayIndex", 2), HaveField("SlotIndex", 4))))
	g.Expect(entriesFor(result.Entries, "ETHC 101")).To(HaveEach(HaveField("SlotIndex", Not(BeZero()))))
}

func TestEngineNeverPlacesGenEdInFirstSlot(t *testing.T) {
	g := NewWithT(t)
	var exams []models.Exam
	for i, course := range []string{"BSIT", "BSCS", "BSN", "BSBA"} {
		exams = append(exams, newExam(string(rune('a'+i)), "ENGL 101", course, 1, "SHAS"))
		exams = append(exams, newExam(string(rune('A'+i)), "PHED 101", course, 1, "SHAS"))
	}
	exams = append(exams, newExam("x", "ITEC 101", "BSIT", 1, "SECAP"))

	result := runEngine(t, DefaultPolicy(), Input{
		Exams: exams,
		Rooms: roomList("L-101", "L-102", "L-103", "L-104", "A-201"),
		Days:  3,
	})

	g.Expect(result.Unscheduled).To(BeEmpty())
	for _, entry := range append(entriesFor(result.Entries, "ENGL 101"), entriesFor(result.Entries, "PHED 101")...) {
		g.Expect(entry.SlotIndex).NotTo(BeZero(), entry.SubjectID)
	}
	engl := entriesFor(result.Entries, "ENGL 101")
	g.Expect(engl).To(HaveLen(4))
	block := TimeBlock{Day: engl[0].DayIndex, Slot: engl[0].SlotIndex}
	g.Expect(block).To(BeElementOf(TimeBlock{Day: 0, Slot: 2}, TimeBlock{Day: 2, Slot: 1}))
}

func TestEngineGenEdWithOnlyFirstSlotIsUnscheduled(t *testing.T) {
	policy := DefaultPolicy()
	policy.SlotLabels = []string{"7:30-9:00"}
	exams := []models.Exam{newExam("1", "ETHC 101", "BSIT", 1, "SHAS")}

	result, err := NewEngine(policy).Run(context.Background(), Input{Exams: exams, Rooms: roomList("L-101"), Days: 2})

	require.NoError(t, err)
	require.Len(t, result.Unscheduled, 1)
	assert.Equal(t, "ETHC 101", result.Unscheduled[0].SubjectID)
	assert.Equal(t, 4, result.Unscheduled[0].Rejections[RejectGenEdSlot])
	assert.Equal(t, "0.00", result.Summary.Coverage.StringFixed(2))
}

func TestEngineSharedSubjectLandsOnOneSlot(t *testing.T) {
	g := NewWithT(t)
	exams := []models.Exam{
		newExam("1", "ITEC 310", "BSIT", 3, "SECAP"),
		newExam("2", "ELEC 201", "BSIT", 3, "SECAP"),
		newExam("3", "ITEC 311", "BSCS", 3, "SECAP"),
		newExam("4", "ELEC 201", "BSCS", 3, "SECAP"),
	}

	result := runEngine(t, DefaultPolicy(), Input{Exams: exams, Rooms: roomList("A-201", "A-202", "A-206"), Days: 2})

	elective := entriesFor(result.Entries, "ELEC 201")
	g.Expect(elective).To(HaveLen(2))
	g.Expect(elective[0].DayIndex).To(Equal(elective[1].DayIndex))
	g.Expect(elective[0].SlotIndex).To(Equal(elective[1].SlotIndex))
	g.Expect(elective[0].Course).NotTo(Equal(elective[1].Course))
}

func TestEngineReusesPinnedSlotForNewSections(t *testing.T) {
	first := newExam("1", "ELEC 201", "BSIT", 3, "SECAP")
	second := newExam("2", "ELEC 201", "BSCS", 3, "SECAP")
	pinned := []models.ScheduledExam{{Exam: first, DayIndex: 1, SlotIndex: 4, Room: "A-201"}}

	result := runEngine(t, DefaultPolicy(), Input{
		Exams:  []models.Exam{first, second},
		Rooms:  roomList("A-201", "A-202"),
		Days:   2,
		Pinned: pinned,
	})

	require.Len(t, result.Entries, 2)
	for _, entry := range result.Entries {
		assert.Equal(t, 1, entry.DayIndex)
		assert.Equal(t, 4, entry.SlotIndex)
	}
	assert.ElementsMatch(t, []string{"A-201", "A-202"}, []string{result.Entries[0].Room, result.Entries[1].Room})
	assert.Equal(t, PhaseReport{Phase: PhasePinned, Attempted: 1, Scheduled: 1}, result.Summary.Phases[0])
	assert.Empty(t, result.RejectedPins)
}

func TestEngineRejectsUnknownPins(t *testing.T) {
	exams := []models.Exam{newExam("1", "ITEC 101", "BSIT", 1, "SECAP")}
	pinned := []models.ScheduledExam{
		{Exam: newExam("9", "GONE 101", "BSIT", 1, "SECAP"), DayIndex: 0, SlotIndex: 1, Room: "A-201"},
		{Exam: newExam("7", "ITEC 101", "BSIT", 1, "SECAP"), DayIndex: 0, SlotIndex: 1, Room: "A-201"},
	}

	result := runEngine(t, DefaultPolicy(), Input{Exams: exams, Rooms: roomList("A-201"), Days: 1, Pinned: pinned})

	require.Len(t, result.RejectedPins, 2)
	assert.Equal(t, "GONE 101", result.RejectedPins[0].SubjectID)
	assert.Contains(t, result.RejectedPins[1].Reason, "section 7")
	assert.Len(t, result.Entries, 1)
}

func TestEngineReportsOverflowAsPartialResult(t *testing.T) {
	g := NewWithT(t)
	var exams []models.Exam
	for _, subject := range []string{"ITEC 101", "ITEC 102", "ITEC 103", "ITEC 104", "ITEC 105", "ITEC 106"} {
		exams = append(exams, newExam(subject, subject, "BSIT", 1, "SECAP"))
	}

	result := runEngine(t, DefaultPolicy(), Input{Exams: exams, Rooms: roomList("A-201", "A-202"), Days: 1})

	g.Expect(result.Summary.EligibleGroups).To(Equal(6))
	g.Expect(result.Summary.ScheduledGroups).To(BeNumerically("<", 6))
	g.Expect(result.Unscheduled).To(HaveLen(6 - result.Summary.ScheduledGroups))
	g.Expect(result.Summary.Unscheduled).To(HaveLen(len(result.Unscheduled)))
	g.Expect(result.Summary.Coverage.LessThan(Coverage(6, 6))).To(BeTrue())
	g.Expect(result.Entries).To(HaveLen(result.Summary.ScheduledGroups))
	g.Expect(result.Summary.Phases).To(ContainElement(HaveField("Phase", PhaseRelaxed)))
	for _, group := range result.Unscheduled {
		g.Expect(group.Rejections).NotTo(BeEmpty())
	}
}

func TestEngineDoubleUnitOccupiesTwoSlots(t *testing.T) {
	g := NewWithT(t)
	studio := newExam("1", "ITEC 499", "BSIT", 4, "SECAP")
	studio.LectureUnits = 6
	studioB := studio
	studioB.Code = "2"
	exams := []models.Exam{studio, studioB, newExam("3", "ITEC 401", "BSIT", 4, "SECAP")}

	result := runEngine(t, DefaultPolicy(), Input{Exams: exams, Rooms: roomList("A-201", "A-202", "A-206"), Days: 1})

	records := entriesFor(result.Entries, "ITEC 499")
	g.Expect(records).To(HaveLen(4))
	byCode := map[string][]models.ScheduledExam{}
	for _, record := range records {
		byCode[record.Code] = append(byCode[record.Code], record)
	}
	for code, pair := range byCode {
		g.Expect(pair).To(HaveLen(2), code)
		g.Expect(pair[0].Room).To(Equal(pair[1].Room))
		g.Expect(pair[1].SlotIndex - pair[0].SlotIndex).To(Equal(1))
	}
	g.Expect(entriesFor(result.Entries, "ITEC 401")).To(HaveLen(1))
}

func TestEngineIsDeterministic(t *testing.T) {
	var exams []models.Exam
	courses := []string{"BSIT", "BSCS", "BSBA", "BSN"}
	subjects := []string{"ITEC 101", "ENGL 101", "MATH 101", "ARCH 2101", "CFED 101", "ITEC 102", "BUSM 101"}
	depts := []string{"SECAP", "SHAS", "SACE", "SACE", "SHAS", "SECAP", "SABH"}
	for ci, course := range courses {
		for si, subject := range subjects {
			if (ci+si)%3 == 0 {
				continue
			}
			exams = append(exams, newExam(course+subject, subject, course, 1+ci%2, depts[si]))
		}
	}
	rooms := roomList("A-201", "A-202", "B-101", "C-101", "K-101", "K-102", "L-101", "L-102", "N-101", "M-101")
	in := Input{Exams: exams, Rooms: rooms, Days: 2, TermCode: "20241"}

	first := runEngine(t, DefaultPolicy(), in)
	second := runEngine(t, DefaultPolicy(), in)

	assert.Equal(t, first, second)
	assert.NotEmpty(t, first.Entries)
}

func TestEngineUsesAcceleratedMaximum(t *testing.T) {
	result := runEngine(t, DefaultPolicy(), Input{Exams: []models.Exam{newExam("1", "ITEC 101", "BSIT", 1, "SECAP")}, Rooms: roomList("A-201"), Days: 1, TermCode: "20243"})
	assert.Equal(t, 6, result.Summary.MaxPerDay)

	result = runEngine(t, DefaultPolicy(), Input{Exams: []models.Exam{newExam("1", "ITEC 101", "BSIT", 1, "SECAP")}, Rooms: roomList("A-201"), Days: 1, TermCode: "20241"})
	assert.Equal(t, 4, result.Summary.MaxPerDay)
}

func TestEngineValidatesInput(t *testing.T) {
	engine := NewEngine(DefaultPolicy())

	_, err := engine.Run(context.Background(), Input{Days: 0})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = engine.Run(context.Background(), Input{Days: 2, DayLabels: []string{"Mon"}})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestEngineStopsWhenContextExpires(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := NewEngine(DefaultPolicy()).Run(ctx, Input{Exams: []models.Exam{newExam("1", "ITEC 101", "BSIT", 1, "SECAP")}, Days: 1})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEngineReportsFilterAndCustomDayLabels(t *testing.T) {
	exams := []models.Exam{
		newExam("1", "ITEC 101", "BSIT", 1, "SECAP"),
		newExam("2", "THES 1023", "BSIT", 4, "SECAP"),
	}

	result := runEngine(t, DefaultPolicy(), Input{Exams: exams, Rooms: roomList("A-201", "TBA"), Days: 1, DayLabels: []string{"Mon, Dec 8"}})

	assert.Equal(t, 1, result.Filter.ExcludedSubject)
	assert.Equal(t, []string{"TBA"}, result.ExcludedRooms)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, "Mon, Dec 8", result.Entries[0].DayLabel)
	assert.Equal(t, 1, result.Summary.EligibleExams)
}
