package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "console.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedMachine(t *testing.T, db *Database) *Machine {
	t.Helper()
	customer := &Customer{Name: "Acme Air"}
	require.NoError(t, db.InsertCustomer(customer))
	machine := &Machine{CustomerID: customer.ID, Name: "lobby"}
	require.NoError(t, db.InsertMachine(machine))
	return machine
}

func seedMedia(t *testing.T, db *Database, name string) *MediaItem {
	t.Helper()
	item := &MediaItem{
		Path:     "media/" + name,
		Type:     "image",
		Name:     name,
		Size:     1024,
		Duration: 30,
	}
	require.NoError(t, db.InsertMediaItem(item))
	return item
}

func positions(entries []TimelineEntry) []int {
	out := make([]int, len(entries))
	for i, e := range entries {
		out[i] = e.Position
	}
	return out
}

func TestAppendAssignsContiguousPositions(t *testing.T) {
	db := newTestDB(t)
	machine := seedMachine(t, db)

	for i := 0; i < 4; i++ {
		media := seedMedia(t, db, "a.png")
		entry, err := db.AppendTimelineEntry(machine.ID, media.ID, 15)
		require.NoError(t, err)
		assert.Equal(t, i, entry.Position)
	}

	entries, err := db.GetTimelineEntries(machine.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, positions(entries))
}

func TestAppendUnknownMedia(t *testing.T) {
	db := newTestDB(t)
	machine := seedMachine(t, db)

	_, err := db.AppendTimelineEntry(machine.ID, 9999, 15)
	assert.Error(t, err)
}

func TestDeleteEntryClosesGap(t *testing.T) {
	db := newTestDB(t)
	machine := seedMachine(t, db)

	var entries []*TimelineEntry
	for i := 0; i < 4; i++ {
		media := seedMedia(t, db, "a.png")
		entry, err := db.AppendTimelineEntry(machine.ID, media.ID, 15)
		require.NoError(t, err)
		entries = append(entries, entry)
	}

	require.NoError(t, db.DeleteTimelineEntry(entries[1].ID))

	remaining, err := db.GetTimelineEntries(machine.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 3)
	assert.Equal(t, []int{0, 1, 2}, positions(remaining))
	// Relative order of the survivors is unchanged.
	assert.Equal(t, entries[0].ID, remaining[0].ID)
	assert.Equal(t, entries[2].ID, remaining[1].ID)
	assert.Equal(t, entries[3].ID, remaining[2].ID)
}

func TestBulkUpdateReordersAllEntries(t *testing.T) {
	db := newTestDB(t)
	machine := seedMachine(t, db)

	var ids []int64
	for i := 0; i < 3; i++ {
		media := seedMedia(t, db, "a.png")
		entry, err := db.AppendTimelineEntry(machine.ID, media.ID, 15)
		require.NoError(t, err)
		ids = append(ids, entry.ID)
	}

	// Move the last entry to the front.
	updates := []PositionUpdate{
		{ID: ids[2], Position: 0},
		{ID: ids[0], Position: 1},
		{ID: ids[1], Position: 2},
	}
	require.NoError(t, db.BulkUpdatePositions(machine.ID, updates))

	entries, err := db.GetTimelineEntries(machine.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[2], ids[0], ids[1]}, []int64{entries[0].ID, entries[1].ID, entries[2].ID})
	assert.Equal(t, []int{0, 1, 2}, positions(entries))
}

func TestBulkUpdateRejectsPartialOrInvalid(t *testing.T) {
	db := newTestDB(t)
	machine := seedMachine(t, db)

	var ids []int64
	for i := 0; i < 3; i++ {
		media := seedMedia(t, db, "a.png")
		entry, err := db.AppendTimelineEntry(machine.ID, media.ID, 15)
		require.NoError(t, err)
		ids = append(ids, entry.ID)
	}

	// Missing an entry.
	err := db.BulkUpdatePositions(machine.ID, []PositionUpdate{
		{ID: ids[0], Position: 0},
		{ID: ids[1], Position: 1},
	})
	assert.Error(t, err)

	// Duplicate position.
	err = db.BulkUpdatePositions(machine.ID, []PositionUpdate{
		{ID: ids[0], Position: 0},
		{ID: ids[1], Position: 0},
		{ID: ids[2], Position: 2},
	})
	assert.Error(t, err)

	// Position out of range.
	err = db.BulkUpdatePositions(machine.ID, []PositionUpdate{
		{ID: ids[0], Position: 0},
		{ID: ids[1], Position: 1},
		{ID: ids[2], Position: 3},
	})
	assert.Error(t, err)

	// Same entry named twice. The count matches and the positions form
	// a full 0..N-1 set, so only the id check can catch this.
	err = db.BulkUpdatePositions(machine.ID, []PositionUpdate{
		{ID: ids[0], Position: 0},
		{ID: ids[0], Position: 1},
		{ID: ids[1], Position: 2},
	})
	assert.Error(t, err)

	// Entry from another machine.
	other := seedMachine(t, db)
	media := seedMedia(t, db, "b.png")
	foreign, err := db.AppendTimelineEntry(other.ID, media.ID, 15)
	require.NoError(t, err)
	err = db.BulkUpdatePositions(machine.ID, []PositionUpdate{
		{ID: ids[0], Position: 0},
		{ID: ids[1], Position: 1},
		{ID: foreign.ID, Position: 2},
	})
	assert.Error(t, err)

	// Original order still intact after every rejection.
	entries, dbErr := db.GetTimelineEntries(machine.ID)
	require.NoError(t, dbErr)
	assert.Equal(t, []int{0, 1, 2}, positions(entries))
	assert.Equal(t, ids[0], entries[0].ID)
}

func TestDeleteMediaCascadesAndRenumbers(t *testing.T) {
	db := newTestDB(t)
	m1 := seedMachine(t, db)
	m2 := seedMachine(t, db)

	shared := seedMedia(t, db, "shared.png")
	other := seedMedia(t, db, "other.png")

	for _, machineID := range []int64{m1.ID, m2.ID} {
		_, err := db.AppendTimelineEntry(machineID, other.ID, 15)
		require.NoError(t, err)
		_, err = db.AppendTimelineEntry(machineID, shared.ID, 15)
		require.NoError(t, err)
		_, err = db.AppendTimelineEntry(machineID, other.ID, 15)
		require.NoError(t, err)
	}

	removed, err := db.DeleteMediaItem(shared.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	for _, machineID := range []int64{m1.ID, m2.ID} {
		entries, err := db.GetTimelineEntries(machineID)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, []int{0, 1}, positions(entries))
		for _, e := range entries {
			assert.Equal(t, other.ID, e.MediaID)
		}
	}

	_, err = db.GetMediaItem(shared.ID)
	assert.Error(t, err)
}

func TestAssignMediaToAllMachines(t *testing.T) {
	db := newTestDB(t)
	m1 := seedMachine(t, db)
	m2 := seedMachine(t, db)
	media := seedMedia(t, db, "promo.mp4")

	// m1 already has one entry so the new one lands at position 1.
	_, err := db.AppendTimelineEntry(m1.ID, media.ID, 15)
	require.NoError(t, err)

	added, err := db.AssignMediaToAllMachines(media.ID, 20)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	e1, err := db.GetTimelineEntries(m1.ID)
	require.NoError(t, err)
	require.Len(t, e1, 2)
	assert.Equal(t, []int{0, 1}, positions(e1))
	assert.Equal(t, 20, e1[1].Duration)

	e2, err := db.GetTimelineEntries(m2.ID)
	require.NoError(t, err)
	require.Len(t, e2, 1)
	assert.Equal(t, 0, e2[0].Position)
}

func TestDurationPropagationScopes(t *testing.T) {
	db := newTestDB(t)
	m1 := seedMachine(t, db)
	m2 := seedMachine(t, db)
	media := seedMedia(t, db, "a.png")

	for _, machineID := range []int64{m1.ID, m2.ID} {
		_, err := db.AppendTimelineEntry(machineID, media.ID, 10)
		require.NoError(t, err)
	}

	updated, err := db.UpdateMediaDurationAcrossTimelines(media.ID, 25)
	require.NoError(t, err)
	assert.Equal(t, 2, updated)

	updated, err = db.UpdateMachineDurations(m1.ID, 40)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	e1, err := db.GetTimelineEntries(m1.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, e1[0].Duration)

	e2, err := db.GetTimelineEntries(m2.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, e2[0].Duration)
}

func TestDeleteMachineTimeline(t *testing.T) {
	db := newTestDB(t)
	machine := seedMachine(t, db)
	media := seedMedia(t, db, "a.png")

	for i := 0; i < 3; i++ {
		_, err := db.AppendTimelineEntry(machine.ID, media.ID, 10)
		require.NoError(t, err)
	}

	removed, err := db.DeleteMachineTimeline(machine.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	entries, err := db.GetTimelineEntries(machine.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
