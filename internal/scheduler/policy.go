package scheduler

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ClassTag is the scheduling class assigned to a subject group.
type ClassTag string

const (
	ClassGenEd        ClassTag = "GEN_ED"
	ClassQuantitative ClassTag = "QUANTITATIVE"
	ClassSpatial      ClassTag = "SPATIAL"
	ClassOrdinary     ClassTag = "ORDINARY"
)

// Weight returns the ranking weight of the class. Scarcer classes weigh more.
func (c ClassTag) Weight() int {
	switch c {
	case ClassGenEd:
		return 100000
	case ClassQuantitative:
		return 50000
	case ClassSpatial:
		return 40000
	default:
		return 10000
	}
}

// TimeBlock is a preferred (day, slot) for a Gen-Ed family.
type TimeBlock struct {
	Day  int `toml:"day" json:"day"`
	Slot int `toml:"slot" json:"slot"`
}

// GenEdFamily groups Gen-Ed subject prefixes that share time blocks.
type GenEdFamily struct {
	Name     string      `toml:"name" json:"name"`
	Prefixes []string    `toml:"prefixes" json:"prefixes"`
	Blocks   []TimeBlock `toml:"blocks" json:"blocks"`
}

// QuantitativeRule marks subjects of a department with a code prefix as quantitative-priority.
type QuantitativeRule struct {
	Department string `toml:"department" json:"department"`
	Prefix     string `toml:"prefix" json:"prefix"`
}

// SpatialRule ties subjects whose code contains a marker to a mandatory building.
type SpatialRule struct {
	Contains  string   `toml:"contains" json:"contains"`
	Building  string   `toml:"building" json:"building"`
	Fallbacks []string `toml:"fallbacks" json:"fallbacks"`
}

// DepartmentBuildings lists the buildings a department may examine in, in preference order.
type DepartmentBuildings struct {
	Department string   `toml:"department" json:"department"`
	Buildings  []string `toml:"buildings" json:"buildings"`
}

// ExclusionRules describe non-examinable subjects and departments.
type ExclusionRules struct {
	SubjectIDs  []string `toml:"subject_ids" json:"subject_ids"`
	Prefixes    []string `toml:"prefixes" json:"prefixes"`
	Keywords    []string `toml:"keywords" json:"keywords"`
	Departments []string `toml:"departments" json:"departments"`
}

// CostWeights tune the soft cost of a slot.
type CostWeights struct {
	DayDeficit        int `toml:"day_deficit" json:"day_deficit"`
	DayExcess         int `toml:"day_excess" json:"day_excess"`
	NearNeighbour     int `toml:"near_neighbour" json:"near_neighbour"`
	OrdinaryNeighbour int `toml:"ordinary_neighbour" json:"ordinary_neighbour"`
	SlotUsage         int `toml:"slot_usage" json:"slot_usage"`
	SlotPosition      int `toml:"slot_position" json:"slot_position"`
}

// Policy holds every tunable of the engine. The zero value is not usable; start from DefaultPolicy.
type Policy struct {
	SlotLabels            []string              `toml:"slot_labels" json:"slot_labels"`
	DoubleUnitThreshold   int                   `toml:"double_unit_threshold" json:"double_unit_threshold"`
	DailyMax              int                   `toml:"daily_max" json:"daily_max"`
	AcceleratedDailyMax   int                   `toml:"accelerated_daily_max" json:"accelerated_daily_max"`
	AcceleratedTermSuffix string                `toml:"accelerated_term_suffix" json:"accelerated_term_suffix"`
	GenEdBarredSlots      []int                 `toml:"gen_ed_barred_slots" json:"gen_ed_barred_slots"`
	RoomRunWindow         int                   `toml:"room_run_window" json:"room_run_window"`
	DefaultBuildings      []string              `toml:"default_buildings" json:"default_buildings"`
	DefaultCampus         string                `toml:"default_campus" json:"default_campus"`
	Campuses              map[string]string     `toml:"campuses" json:"campuses"`
	ExcludedRooms         []string              `toml:"excluded_rooms" json:"excluded_rooms"`
	Weights               CostWeights           `toml:"weights" json:"weights"`
	Exclusions            ExclusionRules        `toml:"exclusions" json:"exclusions"`
	GenEd                 []GenEdFamily         `toml:"gen_ed" json:"gen_ed"`
	Quantitative          []QuantitativeRule    `toml:"quantitative" json:"quantitative"`
	Spatial               []SpatialRule         `toml:"spatial" json:"spatial"`
	Departments           []DepartmentBuildings `toml:"departments" json:"departments"`
}

// DefaultSlotLabels is the daily grid of eight 90-minute slots.
var DefaultSlotLabels = []string{
	"7:30-9:00", "9:00-10:30", "10:30-12:00", "12:00-13:30",
	"13:30-15:00", "15:00-16:30", "16:30-18:00", "18:00-19:30",
}

// DefaultPolicy returns the policy used by the registrar when no policy file is configured.
func DefaultPolicy() Policy {
	return Policy{
		SlotLabels:            append([]string(nil), DefaultSlotLabels...),
		DoubleUnitThreshold:   6,
		DailyMax:              4,
		AcceleratedDailyMax:   6,
		AcceleratedTermSuffix: "3",
		GenEdBarredSlots:      []int{0},
		RoomRunWindow:         5,
		DefaultBuildings:      []string{"A", "N", "K", "L", "M", "B", "C"},
		DefaultCampus:         "MAIN",
		Campuses:              map[string]string{},
		ExcludedRooms: []string{
			"B-11", "B-12", "BTL -", "BUL -", "HL", "J-42", "J-43", "J-44", "J-45", "J-46", "J-48",
			"K-13", "K-14", "K-22", "K-24", "K-41", "L-23", "M-21", "M-31", "M-33", "M-43",
			"MCHEM", "MLAB1", "MLAB2", "NUTRI", "SMTL", "A-102", "A-203", "A-204", "A-205",
			"A-219", "A-221", "A-225", "A-226", "A-234", "A-302", "A-306", "A-308", "A-309",
			"A-310", "A-311", "A-312", "DEMOR", "PHARM", "TBA", "TO BE", "VIRTU", "EMC",
			"FIELD", "HOSP", "MOLEC",
		},
		Weights: CostWeights{
			DayDeficit:        100,
			DayExcess:         50,
			NearNeighbour:     30,
			OrdinaryNeighbour: 500,
			SlotUsage:         2,
			SlotPosition:      1,
		},
		Exclusions: ExclusionRules{
			SubjectIDs: []string{
				"RESM 1023", "ARMS 1023", "BRES 1023", "RESM 1013", "RESM 1022", "THES 1023",
				"ACCT 1183", "ACCT 1213", "ACCT 1193", "ACCT 1223", "ACCT 1203", "ACCT 1236",
				"PRAC 1033", "PRAC 1023", "PRAC 1013", "PRAC 1012", "PRAC 1036", "PRAC 1026",
				"MKTG 1183", "MKTG 1153",
				"ARCH 1505", "ARCH 1163", "ARCH 1254", "ARCH 1385",
				"HOAS 1013", "FMGT 1123",
				"CPAR 1013", "CVIL 1222", "CADD 1011", "COME 1151", "GEOD 1253", "CVIL 1065",
				"CAPS 1021",
				"EDUC 1123", "ELEM 1063", "ELEM 1073", "ELEM 1083", "SCED 1023", "MAPE 1073",
				"JOUR 1013", "LITR 1043", "LITR 1073", "LITR 1033", "LITR 1023",
				"SOCS 1073", "SOCS 1083", "PSYC 1133", "SOCS 1183", "SOCS 1063",
				"SOCS 1213", "SOCS 1193", "SOCS 1093", "SOCS 1173", "SOCS 1203",
				"CFED 1061", "CFED 1043", "CFED 1081",
				"CORE 1016", "CORE 1026",
				"ENLT 1153", "ENLT 1013", "ENLT 1143", "ENLT 1063", "ENLT 1133", "ENLT 1123",
				"NSTP 1023",
				"NURS 1015", "NURS 1236", "MELS 1053", "MELS 1044", "MELS 13112", "MELS 1323",
				"PNCM 1178", "PNCM 1169", "PNCM 10912", "PNCM 1228",
			},
			Prefixes:    []string{"PRAC", "THES", "CAPS", "RESM", "ARMS", "BRES"},
			Keywords:    []string{"(LAB)", "(RLE)", "LAB)", "RLE)", "PRACTICUM", "INTERNSHIP", "THESIS", "RESEARCH METHOD", "CAPSTONE"},
			Departments: []string{"SAS"},
		},
		GenEd: []GenEdFamily{
			{Name: "ETHC", Prefixes: []string{"ETHC"}, Blocks: []TimeBlock{{Day: 0, Slot: 1}}},
			{Name: "ENGL", Prefixes: []string{"ENGL"}, Blocks: []TimeBlock{{Day: 0, Slot: 2}, {Day: 2, Slot: 1}}},
			{Name: "PHED", Prefixes: []string{"PHED"}, Blocks: []TimeBlock{{Day: 0, Slot: 3}, {Day: 1, Slot: 1}}},
			{Name: "CFED", Prefixes: []string{"CFED"}, Blocks: []TimeBlock{{Day: 0, Slot: 4}, {Day: 1, Slot: 2}, {Day: 1, Slot: 3}}},
			{Name: "CONW", Prefixes: []string{"CONW"}, Blocks: []TimeBlock{{Day: 1, Slot: 5}}},
			{Name: "LANG", Prefixes: []string{"LANG", "JAPN", "CHIN", "SPAN"}, Blocks: []TimeBlock{{Day: 2, Slot: 3}}},
			{Name: "LITR", Prefixes: []string{"LITR"}, Blocks: []TimeBlock{{Day: 2, Slot: 4}}},
		},
		Quantitative: []QuantitativeRule{{Department: "SACE", Prefix: "MATH"}},
		Spatial:      []SpatialRule{{Contains: "ARCH", Building: "C", Fallbacks: []string{"K"}}},
		Departments: []DepartmentBuildings{
			{Department: "SECAP", Buildings: []string{"A", "B"}},
			{Department: "SABH", Buildings: []string{"A"}},
			{Department: "SACE", Buildings: []string{"N", "K", "C"}},
			{Department: "SHAS", Buildings: []string{"L", "M", "N", "K"}},
		},
	}
}

// LoadPolicy reads a TOML policy file. Keys missing from the file keep their default value.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()
	if strings.TrimSpace(path) == "" {
		return policy, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy %s: %w", path, err)
	}
	return DecodePolicy(raw)
}

// DecodePolicy decodes TOML bytes over the default policy and validates the result.
func DecodePolicy(raw []byte) (Policy, error) {
	policy := DefaultPolicy()
	dec := toml.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&policy); err != nil {
		return Policy{}, fmt.Errorf("decode policy: %w", err)
	}
	if err := policy.Validate(); err != nil {
		return Policy{}, err
	}
	return policy, nil
}

// EncodePolicy renders the policy as TOML.
func EncodePolicy(policy Policy) ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(policy); err != nil {
		return nil, fmt.Errorf("encode policy: %w", err)
	}
	return buf.Bytes(), nil
}

// Validate checks the policy for values the engine cannot work with.
func (p Policy) Validate() error {
	if len(p.SlotLabels) == 0 {
		return fmt.Errorf("policy: slot_labels must not be empty")
	}
	if p.DailyMax < 1 || p.AcceleratedDailyMax < 1 {
		return fmt.Errorf("policy: daily maximums must be positive")
	}
	if p.DoubleUnitThreshold < 1 {
		return fmt.Errorf("policy: double_unit_threshold must be positive")
	}
	for _, rule := range p.Spatial {
		if rule.Contains == "" || rule.Building == "" {
			return fmt.Errorf("policy: spatial rules need contains and building")
		}
	}
	return nil
}

// MaxPerDay returns the daily subject maximum for a term.
func (p Policy) MaxPerDay(termCode string, accelerated bool) int {
	if accelerated {
		return p.AcceleratedDailyMax
	}
	term := strings.TrimSpace(termCode)
	if p.AcceleratedTermSuffix != "" && term != "" && strings.HasSuffix(term, p.AcceleratedTermSuffix) {
		return p.AcceleratedDailyMax
	}
	return p.DailyMax
}

func (p Policy) buildingsFor(department string) []string {
	dept := normalizeCode(department)
	for _, entry := range p.Departments {
		if normalizeCode(entry.Department) == dept {
			return entry.Buildings
		}
	}
	return p.DefaultBuildings
}

func (p Policy) genEdBarred(slot int) bool {
	for _, barred := range p.GenEdBarredSlots {
		if barred == slot {
			return true
		}
	}
	return false
}

func normalizeCode(value string) string {
	return strings.Join(strings.Fields(strings.ToUpper(value)), " ")
}
