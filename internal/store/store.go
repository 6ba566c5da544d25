// Package store persists the device registry and conversation log in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"voxrelay/pkg/protocol"
)

var (
	ErrDeviceNotFound = errors.New("store: device not found")
	ErrInvalidDevice  = errors.New("store: device name is required")
	ErrInvalidStatus  = errors.New("store: status must be online or offline")
	ErrInvalidTurn    = errors.New("store: conversation needs a device")
)

const schema = `
CREATE TABLE IF NOT EXISTS devices (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    name        TEXT NOT NULL,
    device_type TEXT NOT NULL DEFAULT 'raspberry_pi',
    status      TEXT NOT NULL DEFAULT 'online',
    last_seen   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    device_id   INTEGER NOT NULL REFERENCES devices(id),
    user_input  TEXT NOT NULL,
    ai_response TEXT NOT NULL,
    timestamp   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_device ON conversations(device_id, timestamp);
`

// Store is the SQLite-backed registry and log.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RegisterDevice always inserts a new row; repeated registrations under the
// same name get distinct ids.
func (s *Store) RegisterDevice(ctx context.Context, name, status, deviceType string) (protocol.Device, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return protocol.Device{}, ErrInvalidDevice
	}
	if status == "" {
		status = protocol.StatusOnline
	}
	if !protocol.ValidStatus(status) {
		return protocol.Device{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if deviceType == "" {
		deviceType = protocol.DefaultDeviceType
	}

	seen := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO devices (name, device_type, status, last_seen) VALUES (?, ?, ?, ?)`,
		name, deviceType, status, seen.UnixNano(),
	)
	if err != nil {
		return protocol.Device{}, fmt.Errorf("insert device: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return protocol.Device{}, fmt.Errorf("get last insert id: %w", err)
	}

	return protocol.Device{
		ID:         id,
		Name:       name,
		DeviceType: deviceType,
		Status:     status,
		LastSeen:   time.Unix(0, seen.UnixNano()).UTC(),
	}, nil
}

// UpdateDeviceStatus sets status and refreshes last_seen. Unknown ids fail
// with ErrDeviceNotFound before the status is looked at; nothing is written
// on any error.
func (s *Store) UpdateDeviceStatus(ctx context.Context, id int64, status string) (protocol.Device, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return protocol.Device{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := scanDevice(tx.QueryRowContext(ctx, deviceQuery+` WHERE id = ?`, id)); err != nil {
		return protocol.Device{}, err
	}
	if !protocol.ValidStatus(status) {
		return protocol.Device{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE devices SET status = ?, last_seen = ? WHERE id = ?`,
		status, s.now().UnixNano(), id,
	); err != nil {
		return protocol.Device{}, fmt.Errorf("update device: %w", err)
	}

	d, err := scanDevice(tx.QueryRowContext(ctx, deviceQuery+` WHERE id = ?`, id))
	if err != nil {
		return protocol.Device{}, err
	}

	if err := tx.Commit(); err != nil {
		return protocol.Device{}, fmt.Errorf("commit transaction: %w", err)
	}
	return d, nil
}

func (s *Store) GetDevice(ctx context.Context, id int64) (protocol.Device, error) {
	return scanDevice(s.db.QueryRowContext(ctx, deviceQuery+` WHERE id = ?`, id))
}

func (s *Store) ListDevices(ctx context.Context) ([]protocol.Device, error) {
	rows, err := s.db.QueryContext(ctx, deviceQuery+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	devices := []protocol.Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

const deviceQuery = `SELECT id, name, device_type, status, last_seen FROM devices`

type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(row scanner) (protocol.Device, error) {
	var (
		d    protocol.Device
		seen int64
	)
	if err := row.Scan(&d.ID, &d.Name, &d.DeviceType, &d.Status, &seen); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return protocol.Device{}, ErrDeviceNotFound
		}
		return protocol.Device{}, fmt.Errorf("scan device: %w", err)
	}
	d.LastSeen = time.Unix(0, seen).UTC()
	return d, nil
}
