package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mr1hm/go-sensor-alerts/internal/models"
	_ "modernc.org/sqlite"
)

type SQLiteDB struct {
	db *sql.DB
}

// Pragmas applied to every pooled connection of a file database.
const filePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// SQLite allows one writer at a time, and :memory: databases are per
	// connection, so the pool is a single connection either way.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating database: %w", err)
	}

	return s, nil
}

func dsn(path string) string {
	if path == ":memory:" {
		return path
	}
	if strings.Contains(path, "?") {
		return path + "&" + filePragmas
	}
	return path + "?" + filePragmas
}

// NewWithDB wraps an already opened handle without migrating it.
func NewWithDB(db *sql.DB) *SQLiteDB {
	return &SQLiteDB{db: db}
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sensors (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			location TEXT,
			active INTEGER NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sensor_events (
			id TEXT PRIMARY KEY,
			sensor_id TEXT NOT NULL,
			type TEXT NOT NULL,
			event_value TEXT,
			severity TEXT NOT NULL,
			ts INTEGER NOT NULL,
			FOREIGN KEY (sensor_id) REFERENCES sensors(id)
		);

		CREATE INDEX IF NOT EXISTS idx_events_ts ON sensor_events(ts);
		CREATE INDEX IF NOT EXISTS idx_events_type ON sensor_events(type);
		CREATE INDEX IF NOT EXISTS idx_events_severity ON sensor_events(severity);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

func (s *SQLiteDB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteDB) SaveSensor(ctx context.Context, sensor *models.Sensor) error {
	if sensor.CreatedAt.IsZero() {
		sensor.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sensors (id, name, type, location, active, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sensor.ID, sensor.Name, string(sensor.Type), sensor.Location, sensor.Active, sensor.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("error inserting sensor %s: %w", sensor.ID, err)
	}
	return nil
}

func (s *SQLiteDB) FindSensorByID(ctx context.Context, id string) (*models.Sensor, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, type, location, active, created_at FROM sensors WHERE id = ?`, id)

	var (
		sensor    models.Sensor
		sensorTyp string
		location  sql.NullString
		createdAt int64
	)
	err := row.Scan(&sensor.ID, &sensor.Name, &sensorTyp, &location, &sensor.Active, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error reading sensor %s: %w", id, err)
	}

	sensor.Type = models.SensorType(sensorTyp)
	sensor.Location = location.String
	sensor.CreatedAt = time.Unix(0, createdAt)
	return &sensor, nil
}

func (s *SQLiteDB) SetSensorActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sensors SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("error updating sensor %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteDB) ListSensors(ctx context.Context) ([]models.Sensor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, type, location, active, created_at FROM sensors ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("error listing sensors: %w", err)
	}
	defer rows.Close()

	var sensors []models.Sensor
	for rows.Next() {
		var (
			sensor    models.Sensor
			sensorTyp string
			location  sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&sensor.ID, &sensor.Name, &sensorTyp, &location, &sensor.Active, &createdAt); err != nil {
			return nil, fmt.Errorf("error scanning sensor: %w", err)
		}
		sensor.Type = models.SensorType(sensorTyp)
		sensor.Location = location.String
		sensor.CreatedAt = time.Unix(0, createdAt)
		sensors = append(sensors, sensor)
	}
	return sensors, rows.Err()
}

func (s *SQLiteDB) SaveEvent(ctx context.Context, e *models.SensorEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sensor_events (id, sensor_id, type, event_value, severity, ts) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.SensorID, string(e.Type), e.Value, e.Severity.String(), e.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("error inserting event %s: %w", e.ID, err)
	}
	return nil
}

func (s *SQLiteDB) QueryEvents(ctx context.Context, f EventFilter) (*EventPage, error) {
	f = f.normalize()

	var (
		conds []string
		args  []any
	)
	if f.Type != nil {
		conds = append(conds, "type = ?")
		args = append(args, string(*f.Type))
	}
	if f.Severity != nil {
		conds = append(conds, "severity = ?")
		args = append(args, f.Severity.String())
	}
	if f.From != nil {
		conds = append(conds, "ts >= ?")
		args = append(args, f.From.UnixNano())
	}
	if f.To != nil {
		conds = append(conds, "ts <= ?")
		args = append(args, f.To.UnixNano())
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sensor_events"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("error counting events: %w", err)
	}

	query := "SELECT id, sensor_id, type, event_value, severity, ts FROM sensor_events" + where +
		" ORDER BY ts DESC LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, query, append(args, f.Size, f.Page*f.Size)...)
	if err != nil {
		return nil, fmt.Errorf("error querying events: %w", err)
	}
	defer rows.Close()

	page := &EventPage{
		Events: make([]models.SensorEvent, 0, f.Size),
		Total:  total,
		Page:   f.Page,
		Size:   f.Size,
	}
	for rows.Next() {
		var (
			e        models.SensorEvent
			eventTyp string
			value    sql.NullString
			severity string
			ts       int64
		)
		if err := rows.Scan(&e.ID, &e.SensorID, &eventTyp, &value, &severity, &ts); err != nil {
			return nil, fmt.Errorf("error scanning event: %w", err)
		}
		e.Type = models.SensorType(eventTyp)
		e.Value = value.String
		if e.Severity, err = models.ParseSeverity(severity); err != nil {
			return nil, fmt.Errorf("event %s: %w", e.ID, err)
		}
		e.Timestamp = time.Unix(0, ts)
		page.Events = append(page.Events, e)
	}
	return page, rows.Err()
}

var _ Store = (*SQLiteDB)(nil)
