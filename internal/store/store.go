package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"digefx-monitor-go/internal/config"
	"digefx-monitor-go/internal/models"
)

// ErrUnknownCamera is returned when an alert references a camera that has
// no row in the registry. Callers drop the alert rather than retry.
var ErrUnknownCamera = errors.New("unknown camera")

const schema = `
CREATE TABLE IF NOT EXISTS cameras (
	camera_id    TEXT PRIMARY KEY,
	name         TEXT NOT NULL DEFAULT '',
	addr         TEXT NOT NULL DEFAULT '',
	snapshot_url TEXT NOT NULL DEFAULT '',
	active       INTEGER NOT NULL DEFAULT 1,
	created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS alerts (
	event_id     TEXT PRIMARY KEY,
	camera_id    TEXT NOT NULL REFERENCES cameras(camera_id),
	event_type   TEXT NOT NULL,
	detections   TEXT NOT NULL,
	snapshot_url TEXT NOT NULL DEFAULT '',
	metadata     TEXT NOT NULL DEFAULT '{}',
	timestamp    TIMESTAMP NOT NULL,
	created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_alerts_camera ON alerts(camera_id, timestamp);

CREATE TABLE IF NOT EXISTS host_status (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	cpu_percent  REAL NOT NULL,
	mem_percent  REAL NOT NULL,
	disk_percent REAL NOT NULL,
	online       INTEGER NOT NULL,
	timestamp    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS camera_status (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	camera_id        TEXT NOT NULL,
	connected        INTEGER NOT NULL,
	response_time_ms REAL NOT NULL,
	timestamp        TIMESTAMP NOT NULL
);
`

// Store is the SQLite persistence layer: camera registry, alert sink and
// monitor history in one file database.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (creating if needed) the SQLite database and applies the
// schema. A failure here is fatal to startup when storage is required.
func Open(cfg *config.Config) (*Store, error) {
	return OpenPath(cfg.DBPath)
}

// OpenPath opens a store at an explicit path. Tests use in-memory DSNs.
func OpenPath(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	// modernc.org/sqlite serializes writes itself; a single connection
	// avoids SQLITE_BUSY on concurrent monitor and alert writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	log.Info().Str("path", path).Msg("SQLite store opened")

	return &Store{
		db:     db,
		logger: log.With().Str("service", "store").Logger(),
	}, nil
}

// UpsertCamera inserts or updates one registry row.
func (s *Store) UpsertCamera(ctx context.Context, cam models.CameraConfig, active bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cameras (camera_id, name, addr, snapshot_url, active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(camera_id) DO UPDATE SET
			name = excluded.name,
			addr = excluded.addr,
			snapshot_url = excluded.snapshot_url,
			active = excluded.active`,
		cam.ID, cam.Name, cam.Addr, cam.SnapshotURL, boolInt(active))
	if err != nil {
		return fmt.Errorf("failed to upsert camera %s: %w", cam.ID, err)
	}
	return nil
}

// ActiveCameras returns the desired active-camera set, ordered by id.
func (s *Store) ActiveCameras(ctx context.Context) ([]models.CameraConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT camera_id, name, addr, snapshot_url
		FROM cameras WHERE active = 1 ORDER BY camera_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active cameras: %w", err)
	}
	defer rows.Close()

	var cameras []models.CameraConfig
	for rows.Next() {
		var cam models.CameraConfig
		if err := rows.Scan(&cam.ID, &cam.Name, &cam.Addr, &cam.SnapshotURL); err != nil {
			return nil, fmt.Errorf("failed to scan camera row: %w", err)
		}
		cameras = append(cameras, cam)
	}
	return cameras, rows.Err()
}

// CameraExists reports whether the camera has a registry row, active or not.
func (s *Store) CameraExists(ctx context.Context, cameraID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM cameras WHERE camera_id = ?`, cameraID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up camera %s: %w", cameraID, err)
	}
	return true, nil
}

// SaveAlert persists one alert event. Alerts for cameras absent from the
// registry are rejected with ErrUnknownCamera.
func (s *Store) SaveAlert(ctx context.Context, evt *models.AlertEvent) error {
	exists, err := s.CameraExists(ctx, evt.CameraID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownCamera, evt.CameraID)
	}

	detections, err := json.Marshal(evt.Detections)
	if err != nil {
		return fmt.Errorf("failed to encode detections: %w", err)
	}
	metadata, err := json.Marshal(evt.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alerts (event_id, camera_id, event_type, detections, snapshot_url, metadata, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		evt.EventID, evt.CameraID, string(evt.EventType),
		string(detections), evt.SnapshotURL, string(metadata), evt.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert alert %s: %w", evt.EventID, err)
	}
	return nil
}

// AlertCount returns the number of persisted alerts.
func (s *Store) AlertCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return n, nil
}

// SaveHostStatus appends one host monitor reading.
func (s *Store) SaveHostStatus(ctx context.Context, snap models.HostSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO host_status (cpu_percent, mem_percent, disk_percent, online, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		snap.CPUPercent, snap.MemPercent, snap.DiskPercent, boolInt(snap.Online), snap.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert host status: %w", err)
	}
	return nil
}

// SaveCameraStatus appends one camera connectivity reading.
func (s *Store) SaveCameraStatus(ctx context.Context, ping models.CameraPing) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO camera_status (camera_id, connected, response_time_ms, timestamp)
		VALUES (?, ?, ?, ?)`,
		ping.CameraID, boolInt(ping.Connected), ping.ResponseTimeMs, ping.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert camera status: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.logger.Info().Msg("Closing SQLite store")
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
