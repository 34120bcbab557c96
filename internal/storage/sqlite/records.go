package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mzurawski/wxarchive/internal/weather"
	"github.com/mzurawski/wxarchive/pkg/logger"
	_ "modernc.org/sqlite"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// RecordStorage is a SQLite-based storage for weather records.
type RecordStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewRecordStorage opens (or creates) the database at dbPath and prepares
// the schema.
func NewRecordStorage(dbPath string, log *logger.Logger) (*RecordStorage, error) {
	storageLogger := log.Named("sqlite")

	storageLogger.Info("Initializing SQLite storage",
		logger.String("path", dbPath))

	// Open the database
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool limits
	db.SetMaxOpenConns(1) // SQLite only supports one writer at a time
	db.SetMaxIdleConns(1)

	// Set pragmas for better performance and concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA cache_size=10000"); err != nil {
		return nil, fmt.Errorf("failed to set cache size: %w", err)
	}

	// Create tables if they don't exist
	if err := initDatabase(db, storageLogger); err != nil {
		db.Close()
		return nil, err
	}

	return &RecordStorage{
		db:     db,
		logger: storageLogger,
	}, nil
}

// Close closes the database connection
func (s *RecordStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping verifies the database connection is alive.
func (s *RecordStorage) Ping() error {
	return s.db.Ping()
}

// initDatabase initializes the database schema
func initDatabase(db *sql.DB, log *logger.Logger) error {
	log.Info("Initializing database schema")

	// One row per (location, kind, observed_at); a conflicting save
	// replaces the previous observation.
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS weather_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			location TEXT NOT NULL,
			kind TEXT NOT NULL,
			observed_at TIMESTAMP NOT NULL,
			temperature REAL NOT NULL,
			humidity REAL NOT NULL,
			pressure REAL NOT NULL,
			description TEXT NOT NULL,
			raw_payload TEXT,
			created_at TIMESTAMP NOT NULL,
			UNIQUE(location, kind, observed_at)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create weather_records table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_weather_records_location_kind
		ON weather_records(location, kind)
	`)
	if err != nil {
		return fmt.Errorf("failed to create location/kind index: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_weather_records_observed_at
		ON weather_records(observed_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to create observed_at index: %w", err)
	}

	return nil
}

// Save inserts the record, replacing any previous row with the same
// (location, kind, observed_at) key, and returns the row id. The record's
// CreatedAt is assigned here. The key has whole-second granularity:
// ObservedAt is stored as RFC3339, so sub-second precision does not
// distinguish records.
func (s *RecordStorage) Save(rec *weather.Record) (int64, error) {
	observedAt := rec.ObservedAt.UTC().Format(time.RFC3339)
	createdAt := time.Now().UTC()

	var rawPayload interface{}
	if len(rec.RawPayload) > 0 {
		rawPayload = string(rec.RawPayload)
	}

	_, err := s.db.Exec(`
		INSERT INTO weather_records
		(location, kind, observed_at, temperature, humidity, pressure, description, raw_payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(location, kind, observed_at) DO UPDATE SET
			temperature = excluded.temperature,
			humidity = excluded.humidity,
			pressure = excluded.pressure,
			description = excluded.description,
			raw_payload = excluded.raw_payload,
			created_at = excluded.created_at
	`,
		rec.Location,
		string(rec.Kind),
		observedAt,
		rec.Temperature,
		rec.Humidity,
		rec.Pressure,
		rec.Description,
		rawPayload,
		createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert weather record: %w", err)
	}

	// LastInsertId is not meaningful on the update path, so resolve the
	// row id by key.
	var id int64
	err = s.db.QueryRow(`
		SELECT id FROM weather_records
		WHERE location = ? AND kind = ? AND observed_at = ?
	`, rec.Location, string(rec.Kind), observedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve weather record id: %w", err)
	}

	rec.CreatedAt = createdAt

	s.logger.Debug("Saved weather record",
		logger.Int64("id", id),
		logger.String("location", rec.Location),
		logger.String("kind", string(rec.Kind)),
		logger.String("observed_at", observedAt))

	return id, nil
}

// GetByKey returns the record with the exact (location, kind, observed_at)
// key, or weather.ErrNotFound when no row matches.
func (s *RecordStorage) GetByKey(location string, kind weather.Kind, observedAt time.Time) (*weather.Record, error) {
	row := s.db.QueryRow(`
		SELECT id, location, kind, observed_at, temperature, humidity, pressure, description, raw_payload, created_at
		FROM weather_records
		WHERE location = ? AND kind = ? AND observed_at = ?
	`, location, string(kind), observedAt.UTC().Format(time.RFC3339))

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, weather.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query weather record: %w", err)
	}
	return rec, nil
}

// GetByID returns the record with the given row id, or weather.ErrNotFound
// when no row matches.
func (s *RecordStorage) GetByID(id int64) (*weather.Record, error) {
	row := s.db.QueryRow(`
		SELECT id, location, kind, observed_at, temperature, humidity, pressure, description, raw_payload, created_at
		FROM weather_records
		WHERE id = ?
	`, id)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, weather.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query weather record: %w", err)
	}
	return rec, nil
}

// List returns records matching the filter, most recent observation first.
// A non-positive limit falls back to defaultListLimit; anything above
// maxListLimit is clamped.
func (s *RecordStorage) List(filter weather.ListFilter) ([]*weather.Record, error) {
	query := `
		SELECT id, location, kind, observed_at, temperature, humidity, pressure, description, raw_payload, created_at
		FROM weather_records
	`

	var conds []string
	var args []interface{}
	if filter.Location != "" {
		conds = append(conds, "location = ?")
		args = append(args, filter.Location)
	}
	if filter.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	query += " ORDER BY observed_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query weather records: %w", err)
	}
	defer rows.Close()

	var records []*weather.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan weather record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate weather records: %w", err)
	}

	return records, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*weather.Record, error) {
	var rec weather.Record
	var kind, observedAt, createdAt string
	var rawPayload sql.NullString

	err := row.Scan(
		&rec.ID,
		&rec.Location,
		&kind,
		&observedAt,
		&rec.Temperature,
		&rec.Humidity,
		&rec.Pressure,
		&rec.Description,
		&rawPayload,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Kind = weather.Kind(kind)

	observed, err := time.Parse(time.RFC3339, observedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse observed_at timestamp: %w", err)
	}
	rec.ObservedAt = observed.UTC()

	created, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at timestamp: %w", err)
	}
	rec.CreatedAt = created.UTC()

	if rawPayload.Valid && rawPayload.String != "" {
		rec.RawPayload = json.RawMessage(rawPayload.String)
	}

	return &rec, nil
}
