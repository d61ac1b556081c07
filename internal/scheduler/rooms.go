package scheduler

import (
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/samber/lo"

	"github.com/noah-isme/exam-scheduler-api/internal/models"
)

// RoomProfile is a room with the attributes derived from its identifier.
type RoomProfile struct {
	ID          string   `json:"id"`
	Building    string   `json:"building"`
	Floor       int      `json:"floor"`
	Number      int      `json:"number"`
	Campus      string   `json:"campus"`
	Capacity    int      `json:"capacity"`
	Departments []string `json:"departments,omitempty"`
}

// RoomDirectory is the read-only room lookup shared by slot search and allocation.
type RoomDirectory struct {
	rooms      []RoomProfile
	byID       map[string]int
	byBuilding map[string][]int
	excluded   []string
}

// NewRoomDirectory derives building, floor, number and campus for every room. Rooms on the
// policy's exclusion list and duplicate identifiers are dropped.
func NewRoomDirectory(rooms []models.Room, policy Policy) *RoomDirectory {
	dir := &RoomDirectory{
		byID:       make(map[string]int),
		byBuilding: make(map[string][]int),
	}
	seen := make(map[string]bool, len(rooms))
	for _, room := range rooms {
		id := strings.TrimSpace(room.ID)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if isExcludedRoom(id, policy.ExcludedRooms) {
			dir.excluded = append(dir.excluded, id)
			continue
		}
		dir.rooms = append(dir.rooms, profileFor(id, room.Capacity, policy))
	}

	sort.SliceStable(dir.rooms, func(i, j int) bool {
		a, b := dir.rooms[i], dir.rooms[j]
		if a.Building != b.Building {
			return a.Building < b.Building
		}
		if a.Floor != b.Floor {
			return a.Floor < b.Floor
		}
		if a.Number != b.Number {
			return a.Number < b.Number
		}
		return a.ID < b.ID
	})
	for i, room := range dir.rooms {
		dir.byID[room.ID] = i
		dir.byBuilding[room.Building] = append(dir.byBuilding[room.Building], i)
	}
	return dir
}

// RoomsFromIDs wraps bare identifiers as rooms with unknown capacity.
func RoomsFromIDs(ids []string) []models.Room {
	return lo.Map(ids, func(id string, _ int) models.Room {
		return models.Room{ID: id, Active: true}
	})
}

// Len returns the number of usable rooms.
func (d *RoomDirectory) Len() int {
	return len(d.rooms)
}

// Rooms returns every usable room ordered by building, floor and number.
func (d *RoomDirectory) Rooms() []RoomProfile {
	return d.rooms
}

// Lookup returns the profile of a room.
func (d *RoomDirectory) Lookup(id string) (RoomProfile, bool) {
	idx, ok := d.byID[strings.TrimSpace(id)]
	if !ok {
		return RoomProfile{}, false
	}
	return d.rooms[idx], true
}

// InBuilding returns the rooms of one building ordered by floor and number.
func (d *RoomDirectory) InBuilding(building string) []RoomProfile {
	indices := d.byBuilding[building]
	out := make([]RoomProfile, 0, len(indices))
	for _, idx := range indices {
		out = append(out, d.rooms[idx])
	}
	return out
}

// Buildings lists the buildings that have at least one usable room.
func (d *RoomDirectory) Buildings() []string {
	out := lo.Keys(d.byBuilding)
	sort.Strings(out)
	return out
}

// Excluded lists room identifiers dropped by the exclusion list.
func (d *RoomDirectory) Excluded() []string {
	return d.excluded
}

func profileFor(id string, capacity int, policy Policy) RoomProfile {
	upper := strings.ToUpper(id)
	building := leadingLetters(upper)
	digits := firstDigitRun(upper[len(building):])
	number, _ := strconv.Atoi(digits)
	floor := 0
	if digits != "" {
		floor = int(digits[0] - '0')
	}
	campus := policy.DefaultCampus
	if label, ok := policy.Campuses[building]; ok {
		campus = label
	}
	var departments []string
	for _, entry := range policy.Departments {
		if lo.Contains(entry.Buildings, building) {
			departments = append(departments, entry.Department)
		}
	}
	return RoomProfile{
		ID:          id,
		Building:    building,
		Floor:       floor,
		Number:      number,
		Campus:      campus,
		Capacity:    capacity,
		Departments: departments,
	}
}

func firstDigitRun(value string) string {
	start := strings.IndexFunc(value, unicode.IsDigit)
	if start < 0 {
		return ""
	}
	end := start
	for end < len(value) && unicode.IsDigit(rune(value[end])) {
		end++
	}
	return value[start:end]
}

// A pattern without digits is a name prefix (TBA, VIRTU); otherwise it must match exactly.
func isExcludedRoom(id string, patterns []string) bool {
	upper := strings.ToUpper(strings.TrimSpace(id))
	for _, pattern := range patterns {
		p := strings.ToUpper(strings.TrimSpace(pattern))
		if p == "" {
			continue
		}
		if upper == p {
			return true
		}
		if !strings.ContainsFunc(p, unicode.IsDigit) && strings.HasPrefix(upper, p) {
			return true
		}
	}
	return false
}
