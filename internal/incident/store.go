package incident

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/railwatch-data/railwatch/internal/monitoring"
	"github.com/railwatch-data/railwatch/internal/severity"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Store persists incidents to SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the incident database at path and applies any
// pending schema migrations. Use ":memory:" for an in-memory store.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open incident db: %w", err)
	}
	// SQLite allows a single writer; serialise access through one connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying handle for analytics queries.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// migrateLogger implements migrate.Logger on the package logger.
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool { return false }

// RecordIncident inserts an incident. Re-recording the same incident id
// replaces the row, so redelivery is idempotent.
func (s *Store) RecordIncident(inc Incident) error {
	var lat, lon *float64
	if inc.Location.GPS != nil {
		lat = &inc.Location.GPS.Latitude
		lon = &inc.Location.GPS.Longitude
	}

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO incidents (
			incident_id, run_id, timestamp, severity, obstacle_type, zone,
			distance_m, ttc_seconds, train_speed_kmh,
			gps_latitude, gps_longitude,
			confidence, is_static, explanation, image_path, recommended_action
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inc.ID,
		inc.RunID,
		inc.Timestamp.UTC().Format(time.RFC3339Nano),
		string(inc.Severity),
		string(inc.Obstacle.Type),
		string(inc.Location.Zone),
		inc.Risk.DistanceM,
		inc.Risk.TTCSeconds,
		inc.Risk.TrainSpeedKmh,
		lat,
		lon,
		inc.Obstacle.Confidence,
		boolToInt(inc.Obstacle.IsStatic),
		inc.Explanation,
		inc.ImagePath,
		inc.RecommendedAction,
	)
	if err != nil {
		return fmt.Errorf("record incident %s: %w", inc.ID, err)
	}
	return nil
}

// Query filters stored incidents. Zero-valued fields are ignored.
type Query struct {
	Severity severity.Severity
	Start    time.Time
	End      time.Time
	Limit    int
}

// StoredIncident is one persisted incident row.
type StoredIncident struct {
	ID                string            `json:"incident_id"`
	RunID             string            `json:"run_id"`
	Timestamp         time.Time         `json:"timestamp"`
	Severity          severity.Severity `json:"severity"`
	ObstacleType      string            `json:"obstacle_type"`
	Zone              string            `json:"zone"`
	DistanceM         *float64          `json:"distance_m"`
	TTCSeconds        *float64          `json:"ttc_seconds"`
	TrainSpeedKmh     *float64          `json:"train_speed_kmh"`
	GPSLatitude       *float64          `json:"gps_latitude"`
	GPSLongitude      *float64          `json:"gps_longitude"`
	Confidence        float64           `json:"confidence"`
	IsStatic          bool              `json:"is_static"`
	Explanation       string            `json:"explanation"`
	ImagePath         string            `json:"image_path,omitempty"`
	RecommendedAction string            `json:"recommended_action"`
}

// Incidents returns incidents matching the query, newest first.
func (s *Store) Incidents(q Query) ([]StoredIncident, error) {
	var where []string
	var args []interface{}

	if q.Severity != "" {
		where = append(where, "severity = ?")
		args = append(args, string(q.Severity))
	}
	if !q.Start.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, q.Start.UTC().Format(time.RFC3339Nano))
	}
	if !q.End.IsZero() {
		where = append(where, "timestamp <= ?")
		args = append(args, q.End.UTC().Format(time.RFC3339Nano))
	}

	query := `
		SELECT incident_id, run_id, timestamp, severity, obstacle_type, zone,
			distance_m, ttc_seconds, train_speed_kmh,
			gps_latitude, gps_longitude,
			confidence, is_static, explanation, image_path, recommended_action
		FROM incidents`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	var out []StoredIncident
	for rows.Next() {
		var r StoredIncident
		var ts string
		var sev string
		var isStatic int
		var imagePath, explanation, action sql.NullString
		if err := rows.Scan(
			&r.ID, &r.RunID, &ts, &sev, &r.ObstacleType, &r.Zone,
			&r.DistanceM, &r.TTCSeconds, &r.TrainSpeedKmh,
			&r.GPSLatitude, &r.GPSLongitude,
			&r.Confidence, &isStatic, &explanation, &imagePath, &action,
		); err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		r.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse incident timestamp %q: %w", ts, err)
		}
		r.Severity = severity.Severity(sev)
		r.IsStatic = isStatic != 0
		r.Explanation = explanation.String
		r.ImagePath = imagePath.String
		r.RecommendedAction = action.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the total number of stored incidents.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM incidents").Scan(&n)
	return n, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
