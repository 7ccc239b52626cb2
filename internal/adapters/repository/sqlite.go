package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite" // database/sql driver "sqlite"

	"github.com/okian/sitstraight/internal/domain/posture"
	"github.com/okian/sitstraight/pkg/logger"
	"github.com/okian/sitstraight/pkg/metrics"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const defaultBusyTimeoutMs = 5000

const sampleColumns = `id, ts, source, state, score, slouch_raw, head_tilt, shoulder_angle, torso_angle`

// SQLiteStore persists samples in a SQLite database.
type SQLiteStore struct {
	db            *sql.DB
	busyTimeoutMs int
}

// OpenSQLite opens (creating if needed) the database at path and applies migrations.
func OpenSQLite(ctx context.Context, path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	s := &SQLiteStore{busyTimeoutMs: defaultBusyTimeoutMs}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer keeps SQLite free of SQLITE_BUSY under concurrent workers.
	db.SetMaxOpenConns(1)
	s.db = db

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", s.busyTimeoutMs),
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	if err := s.migrateUp(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrateUp(ctx context.Context) error {
	src, err := iofs.New(migrationsFS, "migrations")
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
	// m is not closed: that would close the shared *sql.DB.
	m.Log = migrateLogger{ctx: ctx, log: logger.Get().Named("migrate")}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// SchemaVersion returns the applied migration version.
func (s *SQLiteStore) SchemaVersion() (uint, error) {
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return 0, err
	}
	v, _, err := driver.Version()
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, nil
	}
	return uint(v), nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, smp Sample) error {
	start := time.Now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO samples (`+sampleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		smp.ID, smp.Timestamp, smp.Source, string(smp.State), smp.Score,
		smp.SlouchRaw, smp.HeadTilt, smp.ShoulderAngle, smp.TorsoAngle)
	if err != nil {
		metrics.RecordErrorByComponent("store", "write")
		return fmt.Errorf("insert sample: %w", err)
	}
	metrics.RecordStoreWriteLatency(float64(time.Since(start).Microseconds()) / 1000)
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicate
	}
	return nil
}

// Latest implements Store.
func (s *SQLiteStore) Latest(ctx context.Context) (Sample, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sampleColumns+` FROM samples ORDER BY ts DESC, rowid DESC LIMIT 1`)
	smp, err := scanSample(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Sample{}, ErrNotFound
	}
	return smp, err
}

// History implements Store.
func (s *SQLiteStore) History(ctx context.Context, q Query) ([]Sample, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreQueryLatency(float64(time.Since(start).Microseconds()) / 1000) }()

	lo, hi, limit, err := q.bounds()
	if err != nil {
		return nil, err
	}
	return s.between(ctx, lo, hi, limit)
}

// Summary implements Store. Every row since the cutoff is read, not just a
// history page.
func (s *SQLiteStore) Summary(ctx context.Context, since time.Time) (Summary, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreQueryLatency(float64(time.Since(start).Microseconds()) / 1000) }()

	lo, hi, _, err := Query{Since: since}.bounds()
	if err != nil {
		return Summary{}, err
	}
	samples, err := s.between(ctx, lo, hi, noLimit)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(samples), nil
}

// noLimit makes SQLite return every matching row.
const noLimit = -1

// between returns the newest limit samples in [lo, hi], oldest first.
func (s *SQLiteStore) between(ctx context.Context, lo, hi float64, limit int) ([]Sample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sampleColumns+` FROM samples WHERE ts >= ? AND ts <= ? ORDER BY ts DESC, rowid DESC LIMIT ?`,
		finiteOr(lo, -math.MaxFloat64), finiteOr(hi, math.MaxFloat64), limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Sample
	for rows.Next() {
		smp, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, smp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	// newest-first from SQL, callers get oldest-first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM samples`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count samples: %w", err)
	}
	metrics.UpdateStoreRecords(n)
	return n, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSample(r scanner) (Sample, error) {
	var smp Sample
	var state string
	err := r.Scan(&smp.ID, &smp.Timestamp, &smp.Source, &state, &smp.Score,
		&smp.SlouchRaw, &smp.HeadTilt, &smp.ShoulderAngle, &smp.TorsoAngle)
	if err != nil {
		return Sample{}, err
	}
	smp.State = posture.State(state)
	return smp, nil
}

func finiteOr(v, fallback float64) float64 {
	if math.IsInf(v, 0) {
		return fallback
	}
	return v
}

type migrateLogger struct {
	ctx context.Context
	log logger.Logger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.log.Info(l.ctx, strings.TrimRight(fmt.Sprintf(format, v...), "\n"))
}

func (l migrateLogger) Verbose() bool { return false }
