package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/lanwake/internal/address"
	"github.com/nerrad567/lanwake/internal/wol"
)

// SQLiteStore implements Store using the devices table.
// The schema is created by the embedded migrations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Load reads all devices ordered by position.
func (s *SQLiteStore) Load(ctx context.Context) ([]Device, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, hardware_address, endpoints, wake_targets, created_at, updated_at
		FROM devices
		ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	devices := []Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// Save replaces every row in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, devices []Device) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM devices"); err != nil {
		return fmt.Errorf("clearing devices: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO devices (
			id, position, label, hardware_address, endpoints, wake_targets, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i := range devices {
		d := &devices[i]

		endpointsJSON, err := json.Marshal(nonNilEndpoints(d.Endpoints))
		if err != nil {
			return fmt.Errorf("marshalling endpoints: %w", err)
		}
		targetsJSON, err := json.Marshal(nonNilTargets(d.WakeTargets))
		if err != nil {
			return fmt.Errorf("marshalling wake targets: %w", err)
		}

		if _, err := stmt.ExecContext(ctx,
			d.ID,
			i,
			d.Label,
			d.HardwareAddress.String(),
			string(endpointsJSON),
			string(targetsJSON),
			d.CreatedAt.UTC().Format(time.RFC3339Nano),
			d.UpdatedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("inserting device %s: %w", d.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing devices: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (Device, error) {
	var (
		d                      Device
		hw, endpoints, targets string
		createdAt, updatedAt   string
	)
	if err := row.Scan(&d.ID, &d.Label, &hw, &endpoints, &targets, &createdAt, &updatedAt); err != nil {
		return Device{}, fmt.Errorf("scanning device: %w", err)
	}

	addr, err := address.ParseHardwareAddress(hw)
	if err != nil {
		return Device{}, fmt.Errorf("device %s: %w", d.ID, err)
	}
	d.HardwareAddress = addr

	if err := json.Unmarshal([]byte(endpoints), &d.Endpoints); err != nil {
		return Device{}, fmt.Errorf("device %s: unmarshalling endpoints: %w", d.ID, err)
	}
	if err := json.Unmarshal([]byte(targets), &d.WakeTargets); err != nil {
		return Device{}, fmt.Errorf("device %s: unmarshalling wake targets: %w", d.ID, err)
	}

	// Timestamps are written by Save; a bad value falls back to zero and is
	// filled in by the registry on load.
	d.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt) //nolint:errcheck // Format is controlled
	d.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt) //nolint:errcheck // Format is controlled

	return d, nil
}

func nonNilEndpoints(e []address.HostEndpoint) []address.HostEndpoint {
	if e == nil {
		return []address.HostEndpoint{}
	}
	return e
}

func nonNilTargets(t []wol.Destination) []wol.Destination {
	if t == nil {
		return []wol.Destination{}
	}
	return t
}
