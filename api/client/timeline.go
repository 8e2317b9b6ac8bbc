package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/airpulse/console/api/models"
	"github.com/airpulse/console/store"
)

// ErrNoMachine is returned by editing operations before a machine has
// been selected.
var ErrNoMachine = errors.New("no machine selected")

// Timeline is the editing surface for one machine's advertisement
// schedule. It mirrors the server's ordered entry list and keeps the
// mirror consistent across mutations. Not safe for concurrent use.
type Timeline struct {
	client   *Client
	machine  int64
	entries  []store.TimelineEntry
	selected int64
}

func NewTimeline(c *Client) *Timeline {
	return &Timeline{client: c}
}

// Select points the editor at a machine and loads its schedule.
func (t *Timeline) Select(machineID int64) error {
	var resp models.AdListResponse
	err := t.client.get("/advertisment", url.Values{
		"list": {"1"},
		"api":  {strconv.FormatInt(machineID, 10)},
	}, &resp)
	if err != nil {
		return err
	}
	t.machine = machineID
	t.entries = resp.Items
	t.selected = 0
	return nil
}

// SelectEntry marks one entry as the editing focus.
func (t *Timeline) SelectEntry(id int64) error {
	for _, e := range t.entries {
		if e.ID == id {
			t.selected = id
			return nil
		}
	}
	return fmt.Errorf("entry not on this timeline")
}

// Selected returns the focused entry, or nil when nothing is selected.
func (t *Timeline) Selected() *store.TimelineEntry {
	for i := range t.entries {
		if t.entries[i].ID == t.selected {
			return &t.entries[i]
		}
	}
	return nil
}

// Refresh reloads the current machine's schedule.
func (t *Timeline) Refresh() error {
	if t.machine == 0 {
		return ErrNoMachine
	}
	return t.Select(t.machine)
}

// Entries returns the current ordered schedule.
func (t *Timeline) Entries() []store.TimelineEntry {
	return t.entries
}

// Append places a media item at the end of the schedule.
func (t *Timeline) Append(mediaID int64, duration int) (*store.TimelineEntry, error) {
	if t.machine == 0 {
		return nil, ErrNoMachine
	}

	var resp models.MutationResponse
	err := t.client.postForm("/advertisment", url.Values{
		"action":   {"create"},
		"api":      {strconv.FormatInt(t.machine, 10)},
		"media_id": {strconv.FormatInt(mediaID, 10)},
		"time":     {strconv.Itoa(duration)},
	}, &resp)
	if err != nil {
		return nil, err
	}

	entry := store.TimelineEntry{
		ID:        resp.ID,
		MachineID: t.machine,
		MediaID:   mediaID,
		Path:      resp.Path,
		Type:      resp.Type,
		Duration:  resp.Time,
		Position:  len(t.entries),
	}
	t.entries = append(t.entries, entry)
	return &entry, nil
}

// Remove deletes one entry. The local mirror closes the gap so later
// positions stay contiguous, matching the server-side renumber.
func (t *Timeline) Remove(id int64) error {
	if t.machine == 0 {
		return ErrNoMachine
	}

	var resp models.MutationResponse
	err := t.client.postForm("/advertisment", url.Values{
		"action": {"delete"},
		"id":     {strconv.FormatInt(id, 10)},
	}, &resp)
	if err != nil {
		return err
	}

	for i, e := range t.entries {
		if e.ID == id {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			break
		}
	}
	for i := range t.entries {
		t.entries[i].Position = i
	}

	// Selection falls through to the new first entry, or clears when
	// the timeline is empty.
	if t.selected == id {
		if len(t.entries) > 0 {
			t.selected = t.entries[0].ID
		} else {
			t.selected = 0
		}
	}
	return nil
}

// Reorder moves the dragged entry to the target entry's slot. The move
// is applied locally first, then pushed as one bulk update of every
// entry's position. If the push fails the local order is restored and
// the error returned.
func (t *Timeline) Reorder(draggedID, targetID int64) error {
	if t.machine == 0 {
		return ErrNoMachine
	}
	if draggedID == targetID {
		return nil
	}

	from, to := -1, -1
	for i, e := range t.entries {
		if e.ID == draggedID {
			from = i
		}
		if e.ID == targetID {
			to = i
		}
	}
	if from < 0 || to < 0 {
		return fmt.Errorf("entry not on this timeline")
	}

	prev := make([]store.TimelineEntry, len(t.entries))
	copy(prev, t.entries)

	moved := t.entries[from]
	t.entries = append(t.entries[:from], t.entries[from+1:]...)
	t.entries = append(t.entries[:to], append([]store.TimelineEntry{moved}, t.entries[to:]...)...)

	updates := make([]store.PositionUpdate, len(t.entries))
	for i := range t.entries {
		t.entries[i].Position = i
		updates[i] = store.PositionUpdate{ID: t.entries[i].ID, Position: i}
	}

	payload, err := json.Marshal(updates)
	if err != nil {
		t.entries = prev
		return err
	}

	var resp models.MutationResponse
	err = t.client.postForm("/advertisment", url.Values{
		"action":  {"bulk_update"},
		"updates": {string(payload)},
	}, &resp)
	if err != nil {
		t.entries = prev
		return err
	}
	return nil
}

// SetDuration updates one entry's dwell time in seconds.
func (t *Timeline) SetDuration(id int64, seconds int) error {
	if t.machine == 0 {
		return ErrNoMachine
	}

	var resp models.MutationResponse
	err := t.client.postForm("/advertisment", url.Values{
		"action":  {"update_time"},
		"id":      {strconv.FormatInt(id, 10)},
		"ad_time": {strconv.Itoa(seconds)},
	}, &resp)
	if err != nil {
		return err
	}

	for i := range t.entries {
		if t.entries[i].ID == id {
			t.entries[i].Duration = seconds
		}
	}
	return nil
}

// AssignMediaToAll appends a media item to every machine's schedule and
// returns how many machines gained an entry.
func (t *Timeline) AssignMediaToAll(mediaID int64, duration int) (int, error) {
	var resp models.MutationResponse
	err := t.client.postForm("/advertisment", url.Values{
		"action":   {"assign_media_to_all"},
		"media_id": {strconv.FormatInt(mediaID, 10)},
		"time":     {strconv.Itoa(duration)},
	}, &resp)
	if err != nil {
		return 0, err
	}
	if t.machine != 0 {
		if err := t.Refresh(); err != nil {
			return resp.AddedCount, err
		}
	}
	return resp.AddedCount, nil
}

// SetMediaDuration changes the dwell of every entry for one media item
// across all machines.
func (t *Timeline) SetMediaDuration(mediaID int64, seconds int) (int, error) {
	var resp models.MutationResponse
	err := t.client.postForm("/advertisment", url.Values{
		"action":   {"update_media_duration"},
		"media_id": {strconv.FormatInt(mediaID, 10)},
		"time":     {strconv.Itoa(seconds)},
	}, &resp)
	if err != nil {
		return 0, err
	}
	for i := range t.entries {
		if t.entries[i].MediaID == mediaID {
			t.entries[i].Duration = seconds
		}
	}
	return resp.UpdatedCount, nil
}

// SetMachineDurations changes the dwell of every entry on the selected
// machine.
func (t *Timeline) SetMachineDurations(seconds int) (int, error) {
	if t.machine == 0 {
		return 0, ErrNoMachine
	}

	var resp models.MutationResponse
	err := t.client.postForm("/advertisment", url.Values{
		"action": {"update_machine_times"},
		"api":    {strconv.FormatInt(t.machine, 10)},
		"time":   {strconv.Itoa(seconds)},
	}, &resp)
	if err != nil {
		return 0, err
	}
	for i := range t.entries {
		t.entries[i].Duration = seconds
	}
	return resp.UpdatedCount, nil
}

// SetCustomerDurations changes the dwell on every machine a customer
// owns.
func (t *Timeline) SetCustomerDurations(customerID int64, seconds int) (int, error) {
	var resp models.MutationResponse
	err := t.client.postForm("/advertisment", url.Values{
		"action": {"update_all_times"},
		"cid":    {strconv.FormatInt(customerID, 10)},
		"time":   {strconv.Itoa(seconds)},
	}, &resp)
	if err != nil {
		return 0, err
	}
	if t.machine != 0 {
		if err := t.Refresh(); err != nil {
			return resp.UpdatedCount, err
		}
	}
	return resp.UpdatedCount, nil
}

// ClearMachine wipes the selected machine's schedule.
func (t *Timeline) ClearMachine() (int, error) {
	if t.machine == 0 {
		return 0, ErrNoMachine
	}

	var resp models.MutationResponse
	err := t.client.postForm("/advertisment", url.Values{
		"action": {"delete_machine_ads"},
		"api":    {strconv.FormatInt(t.machine, 10)},
	}, &resp)
	if err != nil {
		return 0, err
	}
	t.entries = nil
	t.selected = 0
	return resp.RemovedCount, nil
}

// ClearCustomer wipes the schedules of every machine a customer owns.
func (t *Timeline) ClearCustomer(customerID int64) (int, error) {
	var resp models.MutationResponse
	err := t.client.postForm("/advertisment", url.Values{
		"action": {"delete_all_ads"},
		"cid":    {strconv.FormatInt(customerID, 10)},
	}, &resp)
	if err != nil {
		return 0, err
	}
	if t.machine != 0 {
		if err := t.Refresh(); err != nil {
			return resp.RemovedCount, err
		}
	}
	return resp.RemovedCount, nil
}
