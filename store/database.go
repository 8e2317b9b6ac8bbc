// Package store database for media, timelines, customers, machines, and sessions
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type Database struct {
	db *sql.DB
}

func NewDatabase(dbPath string) (*Database, error) {
	// Create directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	database := &Database{db: db}

	if err := database.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return database, nil
}

func (d *Database) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS customers (
		id    INTEGER PRIMARY KEY AUTOINCREMENT,
		name  TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS machines (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id INTEGER NOT NULL,
		name        TEXT NOT NULL,
		location    TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_machines_customer ON machines(customer_id);
	CREATE TABLE IF NOT EXISTS media_items (
		id       INTEGER PRIMARY KEY AUTOINCREMENT,
		path     TEXT NOT NULL,
		type     TEXT NOT NULL,
		name     TEXT NOT NULL,
		size     INTEGER NOT NULL,
		duration INTEGER NOT NULL DEFAULT 30
	);
	CREATE TABLE IF NOT EXISTS timeline_entries (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		machine_id INTEGER NOT NULL,
		media_id   INTEGER NOT NULL,
		duration   INTEGER NOT NULL,
		position   INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_entries_machine_position ON timeline_entries(machine_id, position);
	CREATE INDEX IF NOT EXISTS idx_entries_media ON timeline_entries(media_id);
	CREATE TABLE IF NOT EXISTS relay_states (
		machine_id INTEGER NOT NULL,
		relay      TEXT NOT NULL,
		state      INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (machine_id, relay)
	);
	CREATE TABLE IF NOT EXISTS sensor_readings (
		machine_id  INTEGER NOT NULL,
		temp        REAL NOT NULL,
		humidity    REAL NOT NULL,
		co2         REAL NOT NULL,
		pm25        REAL NOT NULL,
		pm10        REAL NOT NULL,
		tvoc        REAL NOT NULL,
		recorded_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_readings_machine_time ON sensor_readings(machine_id, recorded_at);
	CREATE TABLE IF NOT EXISTS display_settings (
		machine_id    INTEGER NOT NULL,
		hvac_duration INTEGER NOT NULL,
		enabled       INTEGER NOT NULL,
		PRIMARY KEY (machine_id)
	);
	CREATE TABLE IF NOT EXISTS sessions (
		token      TEXT NOT NULL,
		expires_at TIMESTAMP NOT NULL,
		PRIMARY KEY (token)
	);
	`
	_, err := d.db.Exec(query)
	return err
}

func (d *Database) InsertMediaItem(item *MediaItem) error {
	query := `INSERT INTO media_items (path, type, name, size, duration) VALUES (?, ?, ?, ?, ?)`
	res, err := d.db.Exec(query, item.Path, item.Type, item.Name, item.Size, item.Duration)
	if err != nil {
		return fmt.Errorf("failed to insert media item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get media item id: %w", err)
	}
	item.ID = id
	return nil
}

func (d *Database) GetMediaItems() ([]MediaItem, error) {
	query := `
		SELECT id, path, type, name, size, duration
		FROM media_items
		ORDER BY id DESC
	`
	rows, err := d.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query media items: %w", err)
	}
	defer rows.Close()

	var items []MediaItem
	for rows.Next() {
		var m MediaItem
		if err := rows.Scan(&m.ID, &m.Path, &m.Type, &m.Name, &m.Size, &m.Duration); err != nil {
			return nil, fmt.Errorf("failed to scan media item: %w", err)
		}
		items = append(items, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return items, nil
}

func (d *Database) GetMediaItem(id int64) (*MediaItem, error) {
	query := `SELECT id, path, type, name, size, duration FROM media_items WHERE id = ?`
	var m MediaItem
	err := d.db.QueryRow(query, id).Scan(&m.ID, &m.Path, &m.Type, &m.Name, &m.Size, &m.Duration)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("media item not found: %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get media item: %w", err)
	}
	return &m, nil
}

func (d *Database) UpdateMediaDefaultDuration(id int64, duration int) error {
	query := `UPDATE media_items SET duration = ? WHERE id = ?`
	res, err := d.db.Exec(query, duration, id)
	if err != nil {
		return fmt.Errorf("failed to update media duration: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("media item not found: %d", id)
	}
	return nil
}

// DeleteMediaItem removes a library item and every timeline entry that
// references it, renumbering each affected machine's timeline. Returns the
// number of entries removed.
func (d *Database) DeleteMediaItem(id int64) (int, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(`SELECT DISTINCT machine_id FROM timeline_entries WHERE media_id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to query referencing machines: %w", err)
	}
	var machineIDs []int64
	for rows.Next() {
		var mid int64
		if err := rows.Scan(&mid); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan machine id: %w", err)
		}
		machineIDs = append(machineIDs, mid)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating rows: %w", err)
	}

	res, err := tx.Exec(`DELETE FROM timeline_entries WHERE media_id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete referencing entries: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	delRes, err := tx.Exec(`DELETE FROM media_items WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete media item: %w", err)
	}
	delAffected, err := delRes.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if delAffected == 0 {
		return 0, fmt.Errorf("media item not found: %d", id)
	}

	for _, mid := range machineIDs {
		if err := renumberTimeline(tx, mid); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return int(removed), nil
}

func (d *Database) GetCustomers() ([]Customer, error) {
	rows, err := d.db.Query(`SELECT id, name, email FROM customers ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Email); err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		customers = append(customers, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return customers, nil
}

func (d *Database) InsertCustomer(c *Customer) error {
	res, err := d.db.Exec(`INSERT INTO customers (name, email) VALUES (?, ?)`, c.Name, c.Email)
	if err != nil {
		return fmt.Errorf("failed to insert customer: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get customer id: %w", err)
	}
	c.ID = id
	return nil
}

// DeleteCustomer removes a customer along with its machines and their
// timelines, relay states, readings, and display settings.
func (d *Database) DeleteCustomer(id int64) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM customers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete customer: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("customer not found: %d", id)
	}

	stmts := []string{
		`DELETE FROM timeline_entries WHERE machine_id IN (SELECT id FROM machines WHERE customer_id = ?)`,
		`DELETE FROM relay_states WHERE machine_id IN (SELECT id FROM machines WHERE customer_id = ?)`,
		`DELETE FROM sensor_readings WHERE machine_id IN (SELECT id FROM machines WHERE customer_id = ?)`,
		`DELETE FROM display_settings WHERE machine_id IN (SELECT id FROM machines WHERE customer_id = ?)`,
		`DELETE FROM machines WHERE customer_id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt, id); err != nil {
			return fmt.Errorf("failed to cascade customer delete: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (d *Database) GetMachines(customerID int64) ([]Machine, error) {
	rows, err := d.db.Query(
		`SELECT id, customer_id, name, location FROM machines WHERE customer_id = ? ORDER BY name ASC`,
		customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query machines: %w", err)
	}
	defer rows.Close()

	var machines []Machine
	for rows.Next() {
		var m Machine
		if err := rows.Scan(&m.ID, &m.CustomerID, &m.Name, &m.Location); err != nil {
			return nil, fmt.Errorf("failed to scan machine: %w", err)
		}
		machines = append(machines, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return machines, nil
}

func (d *Database) GetAllMachines() ([]Machine, error) {
	rows, err := d.db.Query(`SELECT id, customer_id, name, location FROM machines ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query machines: %w", err)
	}
	defer rows.Close()

	var machines []Machine
	for rows.Next() {
		var m Machine
		if err := rows.Scan(&m.ID, &m.CustomerID, &m.Name, &m.Location); err != nil {
			return nil, fmt.Errorf("failed to scan machine: %w", err)
		}
		machines = append(machines, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return machines, nil
}

func (d *Database) InsertMachine(m *Machine) error {
	res, err := d.db.Exec(
		`INSERT INTO machines (customer_id, name, location) VALUES (?, ?, ?)`,
		m.CustomerID, m.Name, m.Location,
	)
	if err != nil {
		return fmt.Errorf("failed to insert machine: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get machine id: %w", err)
	}
	m.ID = id
	return nil
}

func (d *Database) DeleteMachine(id int64) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM machines WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete machine: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("machine not found: %d", id)
	}

	stmts := []string{
		`DELETE FROM timeline_entries WHERE machine_id = ?`,
		`DELETE FROM relay_states WHERE machine_id = ?`,
		`DELETE FROM sensor_readings WHERE machine_id = ?`,
		`DELETE FROM display_settings WHERE machine_id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt, id); err != nil {
			return fmt.Errorf("failed to cascade machine delete: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (d *Database) GetRelayStates(machineID int64) (map[string]bool, error) {
	rows, err := d.db.Query(`SELECT relay, state FROM relay_states WHERE machine_id = ?`, machineID)
	if err != nil {
		return nil, fmt.Errorf("failed to query relay states: %w", err)
	}
	defer rows.Close()

	states := make(map[string]bool)
	for rows.Next() {
		var relay string
		var state int
		if err := rows.Scan(&relay, &state); err != nil {
			return nil, fmt.Errorf("failed to scan relay state: %w", err)
		}
		states[relay] = state != 0
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return states, nil
}

// ToggleRelay flips the named relay and returns the new state.
func (d *Database) ToggleRelay(machineID int64, relay string) (bool, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var state int
	err = tx.QueryRow(
		`SELECT state FROM relay_states WHERE machine_id = ? AND relay = ?`,
		machineID, relay,
	).Scan(&state)
	if err != nil && err != sql.ErrNoRows {
		return false, fmt.Errorf("failed to get relay state: %w", err)
	}

	newState := 1 - state
	_, err = tx.Exec(`
		INSERT INTO relay_states (machine_id, relay, state) VALUES (?, ?, ?)
		ON CONFLICT(machine_id, relay) DO UPDATE SET state = excluded.state`,
		machineID, relay, newState,
	)
	if err != nil {
		return false, fmt.Errorf("failed to toggle relay: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return newState != 0, nil
}

func (d *Database) InsertSensorReading(r *SensorReading) error {
	_, err := d.db.Exec(`
		INSERT INTO sensor_readings (machine_id, temp, humidity, co2, pm25, pm10, tvoc, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.MachineID, r.Temp, r.Humidity, r.CO2, r.PM25, r.PM10, r.TVOC, r.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sensor reading: %w", err)
	}
	return nil
}

func (d *Database) GetLatestReading(machineID int64) (*SensorReading, error) {
	query := `
		SELECT machine_id, temp, humidity, co2, pm25, pm10, tvoc, recorded_at
		FROM sensor_readings
		WHERE machine_id = ?
		ORDER BY recorded_at DESC
		LIMIT 1
	`
	var r SensorReading
	err := d.db.QueryRow(query, machineID).Scan(
		&r.MachineID, &r.Temp, &r.Humidity, &r.CO2, &r.PM25, &r.PM10, &r.TVOC, &r.RecordedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest reading: %w", err)
	}
	return &r, nil
}

func (d *Database) GetReadings(machineID int64, since time.Time) ([]SensorReading, error) {
	query := `
		SELECT machine_id, temp, humidity, co2, pm25, pm10, tvoc, recorded_at
		FROM sensor_readings
		WHERE machine_id = ? AND recorded_at >= ?
		ORDER BY recorded_at ASC
	`
	rows, err := d.db.Query(query, machineID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var readings []SensorReading
	for rows.Next() {
		var r SensorReading
		if err := rows.Scan(&r.MachineID, &r.Temp, &r.Humidity, &r.CO2, &r.PM25, &r.PM10, &r.TVOC, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		readings = append(readings, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return readings, nil
}

func (d *Database) GetDisplaySettings(machineID int64) (*DisplaySettings, error) {
	const query = `
		SELECT hvac_duration, enabled
		FROM display_settings
		WHERE machine_id = ?
	`

	var duration, enabledInt int
	err := d.db.QueryRow(query, machineID).Scan(&duration, &enabledInt)
	if err == sql.ErrNoRows {
		// Bootstrap defaults if no settings row exists yet
		defaults := &DisplaySettings{
			MachineID:           machineID,
			HVACDurationSeconds: 10,
			Enabled:             true,
		}
		if err := d.UpsertDisplaySettings(defaults); err != nil {
			return nil, err
		}
		return defaults, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get display settings: %w", err)
	}

	return &DisplaySettings{
		MachineID:           machineID,
		HVACDurationSeconds: duration,
		Enabled:             enabledInt != 0,
	}, nil
}

func (d *Database) UpsertDisplaySettings(s *DisplaySettings) error {
	const stmt = `
		INSERT INTO display_settings (
			machine_id,
			hvac_duration,
			enabled
		) VALUES (?, ?, ?)
		ON CONFLICT(machine_id) DO UPDATE SET
			hvac_duration = excluded.hvac_duration,
			enabled       = excluded.enabled
	`

	_, err := d.db.Exec(stmt, s.MachineID, s.HVACDurationSeconds, boolToInt(s.Enabled))
	if err != nil {
		return fmt.Errorf("upsert display settings: %w", err)
	}
	return nil
}

func (d *Database) InsertSession(token string, expiresAt time.Time) error {
	_, err := d.db.Exec(`
		INSERT INTO sessions (token, expires_at) VALUES (?, ?)
		ON CONFLICT(token) DO UPDATE SET expires_at = excluded.expires_at`,
		token, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// SessionValid reports whether the token exists and has not expired.
func (d *Database) SessionValid(token string, now time.Time) (bool, error) {
	var expiresAt time.Time
	err := d.db.QueryRow(`SELECT expires_at FROM sessions WHERE token = ?`, token).Scan(&expiresAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up session: %w", err)
	}
	return now.Before(expiresAt), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (d *Database) Close() error {
	return d.db.Close()
}
