package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-scheduler-api/internal/models"
)

func TestNewRoomDirectoryDerivesProfiles(t *testing.T) {
	policy := DefaultPolicy()
	policy.Campuses = map[string]string{"J": "BCJ"}
	rooms := []models.Room{
		{ID: "K-101", Capacity: 45},
		{ID: "A-201", Capacity: 40},
		{ID: "TBA"},
		{ID: "Virtual Room"},
		{ID: "B-11"},
		{ID: "B-110"},
		{ID: "J-305"},
		{ID: "A-201"},
		{ID: "  "},
	}

	dir := NewRoomDirectory(rooms, policy)

	require.Equal(t, 4, dir.Len())
	assert.Equal(t, []string{"TBA", "Virtual Room", "B-11"}, dir.Excluded())

	a201, ok := dir.Lookup("A-201")
	require.True(t, ok)
	assert.Equal(t, RoomProfile{
		ID: "A-201", Building: "A", Floor: 2, Number: 201, Campus: "MAIN", Capacity: 40,
		Departments: []string{"SECAP", "SABH"},
	}, a201)

	k101, _ := dir.Lookup("K-101")
	assert.Equal(t, []string{"SACE", "SHAS"}, k101.Departments)
	assert.Equal(t, 1, k101.Floor)

	j305, _ := dir.Lookup("J-305")
	assert.Equal(t, "BCJ", j305.Campus)
	assert.Empty(t, j305.Departments)

	b110, _ := dir.Lookup("B-110")
	assert.Equal(t, 1, b110.Floor)
	assert.Equal(t, 110, b110.Number)

	assert.Equal(t, []string{"A", "B", "J", "K"}, dir.Buildings())
}

func TestInBuildingOrdersByFloorThenNumber(t *testing.T) {
	dir := NewRoomDirectory(roomList("L-301", "L-102", "L-210", "L-101"), DefaultPolicy())

	ids := make([]string, 0, 4)
	for _, room := range dir.InBuilding("L") {
		ids = append(ids, room.ID)
	}
	assert.Equal(t, []string{"L-101", "L-102", "L-210", "L-301"}, ids)
	assert.Empty(t, dir.InBuilding("Z"))
}
