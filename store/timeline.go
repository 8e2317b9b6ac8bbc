package store

import (
	"database/sql"
	"fmt"
)

// Timeline entry queries. Positions for a machine always form a contiguous
// 0..N-1 run; every mutation below renumbers inside the same transaction so
// readers never observe gaps or duplicates.

func (d *Database) GetTimelineEntries(machineID int64) ([]TimelineEntry, error) {
	query := `
		SELECT t.id, t.machine_id, t.media_id, m.path, m.type, t.duration, t.position
		FROM timeline_entries t
		JOIN media_items m ON m.id = t.media_id
		WHERE t.machine_id = ?
		ORDER BY t.position ASC
	`
	rows, err := d.db.Query(query, machineID)
	if err != nil {
		return nil, fmt.Errorf("failed to query timeline entries: %w", err)
	}
	defer rows.Close()

	var entries []TimelineEntry
	for rows.Next() {
		var e TimelineEntry
		if err := rows.Scan(&e.ID, &e.MachineID, &e.MediaID, &e.Path, &e.Type, &e.Duration, &e.Position); err != nil {
			return nil, fmt.Errorf("failed to scan timeline entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return entries, nil
}

// AppendTimelineEntry creates an entry at position = current length.
func (d *Database) AppendTimelineEntry(machineID, mediaID int64, duration int) (*TimelineEntry, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	media, err := getMediaItemTx(tx, mediaID)
	if err != nil {
		return nil, err
	}

	var count int
	if err := tx.QueryRow(
		`SELECT COUNT(*) FROM timeline_entries WHERE machine_id = ?`, machineID,
	).Scan(&count); err != nil {
		return nil, fmt.Errorf("failed to count timeline entries: %w", err)
	}

	res, err := tx.Exec(
		`INSERT INTO timeline_entries (machine_id, media_id, duration, position) VALUES (?, ?, ?, ?)`,
		machineID, mediaID, duration, count,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert timeline entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get timeline entry id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &TimelineEntry{
		ID:        id,
		MachineID: machineID,
		MediaID:   mediaID,
		Path:      media.Path,
		Type:      media.Type,
		Duration:  duration,
		Position:  count,
	}, nil
}

// DeleteTimelineEntry removes one entry and renumbers the remainder.
func (d *Database) DeleteTimelineEntry(id int64) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var machineID int64
	err = tx.QueryRow(`SELECT machine_id FROM timeline_entries WHERE id = ?`, id).Scan(&machineID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("timeline entry not found: %d", id)
	}
	if err != nil {
		return fmt.Errorf("failed to look up timeline entry: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM timeline_entries WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete timeline entry: %w", err)
	}

	if err := renumberTimeline(tx, machineID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (d *Database) UpdateEntryDuration(id int64, duration int) error {
	res, err := d.db.Exec(`UPDATE timeline_entries SET duration = ? WHERE id = ?`, duration, id)
	if err != nil {
		return fmt.Errorf("failed to update entry duration: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("timeline entry not found: %d", id)
	}
	return nil
}

// BulkUpdatePositions applies a full reorder for one machine. The updates
// must cover the machine's entries exactly, with positions forming a 0..N-1
// permutation; anything else is rejected and nothing changes.
func (d *Database) BulkUpdatePositions(machineID int64, updates []PositionUpdate) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRow(
		`SELECT COUNT(*) FROM timeline_entries WHERE machine_id = ?`, machineID,
	).Scan(&count); err != nil {
		return fmt.Errorf("failed to count timeline entries: %w", err)
	}
	if len(updates) != count {
		return fmt.Errorf("position update covers %d entries, machine has %d", len(updates), count)
	}

	seen := make(map[int]bool, len(updates))
	seenID := make(map[int64]bool, len(updates))
	for _, u := range updates {
		if u.Position < 0 || u.Position >= len(updates) {
			return fmt.Errorf("position %d out of range for %d entries", u.Position, len(updates))
		}
		if seen[u.Position] {
			return fmt.Errorf("duplicate position %d in bulk update", u.Position)
		}
		seen[u.Position] = true
		if seenID[u.ID] {
			return fmt.Errorf("duplicate entry %d in bulk update", u.ID)
		}
		seenID[u.ID] = true
	}

	for _, u := range updates {
		res, err := tx.Exec(
			`UPDATE timeline_entries SET position = ? WHERE id = ? AND machine_id = ?`,
			u.Position, u.ID, machineID,
		)
		if err != nil {
			return fmt.Errorf("failed to update position: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("timeline entry %d not found on machine %d", u.ID, machineID)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// AssignMediaToAllMachines appends the media item to every machine's
// timeline and returns the number of machines touched.
func (d *Database) AssignMediaToAllMachines(mediaID int64, duration int) (int, error) {
	machines, err := d.GetAllMachines()
	if err != nil {
		return 0, err
	}

	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := getMediaItemTx(tx, mediaID); err != nil {
		return 0, err
	}

	added := 0
	for _, m := range machines {
		var count int
		if err := tx.QueryRow(
			`SELECT COUNT(*) FROM timeline_entries WHERE machine_id = ?`, m.ID,
		).Scan(&count); err != nil {
			return 0, fmt.Errorf("failed to count timeline entries: %w", err)
		}
		if _, err := tx.Exec(
			`INSERT INTO timeline_entries (machine_id, media_id, duration, position) VALUES (?, ?, ?, ?)`,
			m.ID, mediaID, duration, count,
		); err != nil {
			return 0, fmt.Errorf("failed to insert timeline entry: %w", err)
		}
		added++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return added, nil
}

// UpdateMediaDurationAcrossTimelines sets the duration on every entry, on
// any machine, that references the media item. Returns the entry count.
func (d *Database) UpdateMediaDurationAcrossTimelines(mediaID int64, duration int) (int, error) {
	res, err := d.db.Exec(
		`UPDATE timeline_entries SET duration = ? WHERE media_id = ?`,
		duration, mediaID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update durations: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(affected), nil
}

// UpdateMachineDurations sets the duration on every entry of one machine.
func (d *Database) UpdateMachineDurations(machineID int64, duration int) (int, error) {
	res, err := d.db.Exec(
		`UPDATE timeline_entries SET duration = ? WHERE machine_id = ?`,
		duration, machineID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update machine durations: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(affected), nil
}

// UpdateCustomerDurations sets the duration on every entry across every
// machine belonging to the customer.
func (d *Database) UpdateCustomerDurations(customerID int64, duration int) (int, error) {
	res, err := d.db.Exec(
		`UPDATE timeline_entries SET duration = ?
		 WHERE machine_id IN (SELECT id FROM machines WHERE customer_id = ?)`,
		duration, customerID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update customer durations: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(affected), nil
}

// DeleteMachineTimeline clears one machine's timeline.
func (d *Database) DeleteMachineTimeline(machineID int64) (int, error) {
	res, err := d.db.Exec(`DELETE FROM timeline_entries WHERE machine_id = ?`, machineID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear machine timeline: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(affected), nil
}

// DeleteCustomerTimelines clears the timelines of every machine belonging
// to the customer.
func (d *Database) DeleteCustomerTimelines(customerID int64) (int, error) {
	res, err := d.db.Exec(
		`DELETE FROM timeline_entries
		 WHERE machine_id IN (SELECT id FROM machines WHERE customer_id = ?)`,
		customerID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to clear customer timelines: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(affected), nil
}

// GetTimelineEntryMachine returns the machine owning the entry.
func (d *Database) GetTimelineEntryMachine(id int64) (int64, error) {
	var machineID int64
	err := d.db.QueryRow(`SELECT machine_id FROM timeline_entries WHERE id = ?`, id).Scan(&machineID)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("timeline entry not found: %d", id)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up timeline entry: %w", err)
	}
	return machineID, nil
}

// renumberTimeline rewrites positions as the current order's index so the
// machine's timeline stays a contiguous 0..N-1 run.
func renumberTimeline(tx *sql.Tx, machineID int64) error {
	rows, err := tx.Query(
		`SELECT id FROM timeline_entries WHERE machine_id = ? ORDER BY position ASC, id ASC`,
		machineID,
	)
	if err != nil {
		return fmt.Errorf("failed to query entries for renumbering: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan entry id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating rows: %w", err)
	}

	for i, id := range ids {
		if _, err := tx.Exec(`UPDATE timeline_entries SET position = ? WHERE id = ?`, i, id); err != nil {
			return fmt.Errorf("failed to renumber entry: %w", err)
		}
	}
	return nil
}

func getMediaItemTx(tx *sql.Tx, id int64) (*MediaItem, error) {
	var m MediaItem
	err := tx.QueryRow(
		`SELECT id, path, type, name, size, duration FROM media_items WHERE id = ?`, id,
	).Scan(&m.ID, &m.Path, &m.Type, &m.Name, &m.Size, &m.Duration)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("media item not found: %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get media item: %w", err)
	}
	return &m, nil
}
