package storage

import (
  "context"
  "database/sql"
  "fmt"
  "os"
  "path/filepath"
  "strings"
  "time"

  _ "github.com/mattn/go-sqlite3"
  "github.com/pkg/errors"
  "github.com/robertof/govee-capture/device"
  "github.com/rs/zerolog/log"
)

// TimestampLayout is the local-time format of the timestamp column.
const TimestampLayout = "2006-01-02 15:04:05"

var ErrEmpty = errors.New("storage: no readings")

const schema = `
CREATE TABLE IF NOT EXISTS data (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  timestamp   TEXT    NOT NULL,
  temperature REAL,
  humidity    REAL,
  battery     INTEGER,
  signal      INTEGER,
  sensor_id   TEXT
);
CREATE INDEX IF NOT EXISTS idx_data_timestamp ON data(timestamp);
`

// Row is one stored reading. Columns that are NULL in the table come back as zero values.
type Row struct {
  ID int64
  Timestamp time.Time
  Temperature float64
  Humidity float64
  Battery int
  Signal int
  SensorID string
}

func (r Row) String() string {
  return fmt.Sprintf("row[id=%d, ts=%v, sensor=%q, temp=%.2f, humidity=%.2f]",
    r.ID, r.Timestamp.Format(TimestampLayout), r.SensorID, r.Temperature, r.Humidity)
}

type DB struct {
  db *sql.DB
}

// New wraps an open database, for instance one from sqlmock.
func New(db *sql.DB) *DB {
  return &DB{db: db}
}

// Open opens (creating it and its directory if needed) the SQLite database at path.
func Open(path string) (*DB, error) {
  dsn, err := buildDSN(path)
  if err != nil {
    return nil, err
  }

  log.Debug().Str("DSN", dsn).Msg("Opening database")

  db, err := sql.Open("sqlite3", dsn)
  if err != nil {
    return nil, errors.Wrap(err, "storage: open")
  }

  // a single writer avoids "database is locked" between the sink and status queries.
  db.SetMaxOpenConns(1)

  if err := db.Ping(); err != nil {
    _ = db.Close()
    return nil, errors.Wrapf(err, "storage: ping %s", path)
  }

  return New(db), nil
}

func buildDSN(path string) (string, error) {
  if path == ":memory:" {
    return "file::memory:?_busy_timeout=5000", nil
  }

  if strings.HasPrefix(path, "file:") {
    sep := "?"
    if strings.Contains(path, "?") {
      sep = "&"
    }

    return path + sep + "_busy_timeout=5000", nil
  }

  if dir := filepath.Dir(path); dir != "." {
    if err := os.MkdirAll(dir, 0o755); err != nil {
      return "", errors.Wrapf(err, "storage: mkdir %s", dir)
    }
  }

  return fmt.Sprintf("file:%s?_busy_timeout=5000", path), nil
}

func (d *DB) Close() error {
  return d.db.Close()
}

func (d *DB) EnsureSchema(ctx context.Context) error {
  if _, err := d.db.ExecContext(ctx, schema); err != nil {
    return errors.Wrap(err, "storage: create schema")
  }

  return nil
}

// Insert appends a reading and returns its row id.
func (d *DB) Insert(ctx context.Context, r device.Reading) (int64, error) {
  res, err := d.db.ExecContext(ctx,
    "INSERT INTO data (timestamp, temperature, humidity, battery, signal, sensor_id) VALUES (?, ?, ?, ?, ?, ?)",
    r.Timestamp.In(time.Local).Format(TimestampLayout),
    r.Temperature,
    r.Humidity,
    int(r.Battery),
    r.Signal,
    r.SensorID,
  )

  if err != nil {
    return 0, errors.Wrapf(err, "storage: insert %v", r)
  }

  id, err := res.LastInsertId()
  if err != nil {
    return 0, errors.Wrap(err, "storage: last insert id")
  }

  log.Trace().Int64("ID", id).Stringer("Reading", r).Msg("storage: inserted reading")

  return id, nil
}

const selectColumns = "SELECT id, timestamp, temperature, humidity, battery, signal, sensor_id FROM data"

// Since returns every row stored at or after cutoff, newest first.
func (d *DB) Since(ctx context.Context, cutoff time.Time) ([]Row, error) {
  rows, err := d.db.QueryContext(ctx,
    selectColumns + " WHERE timestamp >= ? ORDER BY timestamp DESC, id DESC",
    cutoff.In(time.Local).Format(TimestampLayout),
  )

  if err != nil {
    return nil, errors.Wrap(err, "storage: query readings")
  }

  defer rows.Close()

  var out []Row

  for rows.Next() {
    row, err := scanRow(rows)
    if err != nil {
      return nil, err
    }

    out = append(out, row)
  }

  if err := rows.Err(); err != nil {
    return nil, errors.Wrap(err, "storage: iterate readings")
  }

  return out, nil
}

// Latest returns the newest row, or ErrEmpty.
func (d *DB) Latest(ctx context.Context) (Row, error) {
  row, err := scanRow(d.db.QueryRowContext(ctx,
    selectColumns + " ORDER BY timestamp DESC, id DESC LIMIT 1"))

  if errors.Is(err, sql.ErrNoRows) {
    return Row{}, ErrEmpty
  }

  return row, err
}

type scanner interface {
  Scan(dest ...any) error
}

func scanRow(s scanner) (Row, error) {
  var (
    row Row
    ts string
    temperature, humidity sql.NullFloat64
    battery, signal sql.NullInt64
    sensorID sql.NullString
  )

  if err := s.Scan(&row.ID, &ts, &temperature, &humidity, &battery, &signal, &sensorID); err != nil {
    if errors.Is(err, sql.ErrNoRows) {
      return row, err
    }

    return row, errors.Wrap(err, "storage: scan row")
  }

  parsed, err := ParseTimestamp(ts)
  if err != nil {
    return row, errors.Wrapf(err, "storage: row %d", row.ID)
  }

  row.Timestamp = parsed
  row.Temperature = temperature.Float64
  row.Humidity = humidity.Float64
  row.Battery = int(battery.Int64)
  row.Signal = int(signal.Int64)
  row.SensorID = sensorID.String

  return row, nil
}

// ParseTimestamp reads a timestamp column in local time. ISO 8601 values with a "T"
// separator, as written by older tools, are accepted too.
func ParseTimestamp(s string) (time.Time, error) {
  for _, layout := range []string{TimestampLayout, "2006-01-02T15:04:05.999999999", time.RFC3339Nano} {
    if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
      return t, nil
    }
  }

  return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
