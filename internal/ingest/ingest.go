// Package ingest turns loosely shaped catalog records into exams and rooms.
//
// Offerings arrive from spreadsheets, older API clients and database exports, each with its
// own field names and number formats. Keys are matched case-insensitively with underscores,
// dashes and spaces ignored, and numeric strings are accepted where numbers are expected.
package ingest

import (
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/exam-scheduler-api/internal/models"
)

// RecordError is a record that could not be decoded. Other records are unaffected.
type RecordError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

var examAliases = map[string]string{
	"subjectid":    "subjectid",
	"subject":      "subjectid",
	"subjectcode":  "subjectid",
	"code":         "code",
	"codeno":       "code",
	"sectioncode":  "code",
	"section":      "code",
	"title":        "title",
	"subjecttitle": "title",
	"description":  "title",
	"course":       "course",
	"program":      "course",
	"yearlevel":    "yearlevel",
	"year":         "yearlevel",
	"dept":         "dept",
	"department":   "dept",
	"lec":          "lec",
	"lecunits":     "lec",
	"lectureunits": "lec",
	"lab":          "lab",
	"labunits":     "lab",
	"instructor":   "instructor",
	"faculty":      "instructor",
	"teacher":      "instructor",
	"studentcount": "studentcount",
	"students":     "studentcount",
	"enrolled":     "studentcount",
	"homeroom":     "homeroom",
	"roomid":       "homeroom",
	"room":         "homeroom",
}

var roomAliases = map[string]string{
	"id":       "id",
	"roomid":   "id",
	"room":     "id",
	"name":     "id",
	"capacity": "capacity",
	"seats":    "capacity",
	"active":   "active",
	"enabled":  "active",
}

// DecodeExams decodes offering records in order. Unknown keys are ignored.
func DecodeExams(records []map[string]any) ([]models.Exam, []RecordError) {
	exams := make([]models.Exam, 0, len(records))
	var failures []RecordError
	for i, record := range records {
		var exam models.Exam
		if err := decode(canonical(record, examAliases), &exam); err != nil {
			failures = append(failures, RecordError{Index: i, Error: err.Error()})
			continue
		}
		exams = append(exams, exam)
	}
	return exams, failures
}

// DecodeRooms accepts room records that are either a bare id or an object with an id and
// optional capacity and active flag. Rooms default to active.
func DecodeRooms(records []any) ([]models.Room, []RecordError) {
	rooms := make([]models.Room, 0, len(records))
	var failures []RecordError
	seen := make(map[string]bool)
	for i, record := range records {
		room := models.Room{Active: true}
		switch value := record.(type) {
		case string:
			room.ID = value
		case map[string]any:
			if err := decode(canonical(value, roomAliases), &room); err != nil {
				failures = append(failures, RecordError{Index: i, Error: err.Error()})
				continue
			}
		default:
			failures = append(failures, RecordError{Index: i, Error: fmt.Sprintf("unsupported room record %T", record)})
			continue
		}
		room.ID = normalizeRoomID(room.ID)
		if room.ID == "" {
			failures = append(failures, RecordError{Index: i, Error: "room id is empty"})
			continue
		}
		if key := strings.ToUpper(room.ID); !seen[key] {
			seen[key] = true
			rooms = append(rooms, room)
		}
	}
	return rooms, failures
}

// ParseRoomList trims, collapses inner whitespace and drops empty or repeated room ids,
// keeping first-seen order. Repeats are detected case-insensitively.
func ParseRoomList(ids []string) []string {
	cleaned := lo.FilterMap(ids, func(id string, _ int) (string, bool) {
		id = normalizeRoomID(id)
		return id, id != ""
	})
	return lo.UniqBy(cleaned, strings.ToUpper)
}

// ReadRecords reads a JSON or YAML document holding a list of records.
func ReadRecords(r io.Reader) ([]map[string]any, error) {
	var records []map[string]any
	if err := yaml.NewDecoder(r).Decode(&records); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read records: %w", err)
	}
	return records, nil
}

// ReadRoomRecords reads a JSON or YAML list of room ids or room objects.
func ReadRoomRecords(r io.Reader) ([]any, error) {
	var records []any
	if err := yaml.NewDecoder(r).Decode(&records); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read rooms: %w", err)
	}
	return records, nil
}

func canonical(record map[string]any, aliases map[string]string) map[string]any {
	out := make(map[string]any, len(record))
	for key, value := range record {
		target, ok := aliases[normalizeKey(key)]
		if !ok {
			continue
		}
		if _, taken := out[target]; taken && isBlank(value) {
			continue
		}
		out[target] = value
	}
	return out
}

func decode(input map[string]any, result any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           result,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			trimStrings,
			numericStrings,
		),
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

func trimStrings(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String {
		return data, nil
	}
	return strings.Join(strings.Fields(data.(string)), " "), nil
}

// numericStrings lets spreadsheet exports write "3.0" for an integer field.
func numericStrings(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Int {
		return data, nil
	}
	s := data.(string)
	if whole, frac, ok := strings.Cut(s, "."); ok && strings.Trim(frac, "0") == "" {
		return whole, nil
	}
	return s, nil
}

func normalizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', ' ':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(key)))
}

func normalizeRoomID(id string) string {
	return strings.Join(strings.Fields(id), " ")
}

func isBlank(value any) bool {
	if value == nil {
		return true
	}
	s, ok := value.(string)
	return ok && strings.TrimSpace(s) == ""
}
