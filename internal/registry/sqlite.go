package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gruntwork-io/clusterflow/internal/cluster"
	"github.com/gruntwork-io/clusterflow/internal/errors"
	"github.com/gruntwork-io/clusterflow/pkg/log"

	_ "modernc.org/sqlite"
)

const (
	busyTimeout    = 5 * time.Second
	maxBusyRetries = 8
)

// SQLiteRegistry is a Store backed by a SQLite file, shared by every clusterflow process on the host.
type SQLiteRegistry struct {
	db     *sql.DB
	logger log.Logger
	prober Prober
	now    func() time.Time
}

// NewSQLiteRegistry opens (or creates) the registry database at path and applies the schema.
// Use ":memory:" for an in-memory database.
func NewSQLiteRegistry(ctx context.Context, logger log.Logger, path string) (*SQLiteRegistry, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, errors.New(err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.WithStackTraceAndPrefix(err, "opening registry %s", path)
	}

	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=" + strconv.Itoa(int(busyTimeout/time.Millisecond)),
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, errors.WithStackTraceAndPrefix(err, "%s", pragma)
		}
	}

	if err := migrate(ctx, db); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}

	return &SQLiteRegistry{
		db:     db,
		logger: logger.WithField(log.FieldKeyPrefix, "registry"),
		now:    time.Now,
	}, nil
}

// WithProber sets the prober used by RefreshStatusHandle.
func (reg *SQLiteRegistry) WithProber(prober Prober) *SQLiteRegistry {
	reg.prober = prober
	return reg
}

// Close closes the underlying database connection.
func (reg *SQLiteRegistry) Close() error {
	return reg.db.Close()
}

func (reg *SQLiteRegistry) Get(ctx context.Context, name string) (*cluster.Record, error) {
	row := reg.db.QueryRowContext(ctx,
		`SELECT name, status, handle, launched_at, last_use, autostop_minutes, is_controller
		 FROM clusters WHERE name = ?`, name)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	return record, err
}

func (reg *SQLiteRegistry) List(ctx context.Context) ([]*cluster.Record, error) {
	rows, err := reg.db.QueryContext(ctx,
		`SELECT name, status, handle, launched_at, last_use, autostop_minutes, is_controller
		 FROM clusters ORDER BY name`)
	if err != nil {
		return nil, errors.New(err)
	}
	defer rows.Close()

	var records []*cluster.Record

	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	return records, errors.WithStackTrace(rows.Err())
}

func (reg *SQLiteRegistry) Upsert(ctx context.Context, record *cluster.Record) error {
	handleJSON := ""

	if record.Handle != nil {
		data, err := json.Marshal(record.Handle)
		if err != nil {
			return errors.New(err)
		}

		handleJSON = string(data)
	}

	reg.logger.Debugf("Recording cluster %s as %s", record.Name, record.Status)

	return reg.exec(ctx,
		`INSERT INTO clusters (name, status, handle, launched_at, last_use, autostop_minutes, is_controller)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   status = excluded.status,
		   handle = excluded.handle,
		   launched_at = excluded.launched_at,
		   last_use = excluded.last_use,
		   autostop_minutes = excluded.autostop_minutes,
		   is_controller = excluded.is_controller`,
		record.Name, string(record.Status), handleJSON,
		unixMilli(record.LaunchedAt), unixMilli(record.LastUse),
		record.AutostopMinutes, boolToInt(record.IsControllerRole),
	)
}

func (reg *SQLiteRegistry) SetStatus(ctx context.Context, name string, status cluster.Status) error {
	return reg.execOne(ctx, name, `UPDATE clusters SET status = ? WHERE name = ?`, string(status), name)
}

func (reg *SQLiteRegistry) SetAutostop(ctx context.Context, name string, minutes int) error {
	return reg.execOne(ctx, name, `UPDATE clusters SET autostop_minutes = ? WHERE name = ?`, minutes, name)
}

func (reg *SQLiteRegistry) UpdateLastUse(ctx context.Context, name string) error {
	return reg.execOne(ctx, name, `UPDATE clusters SET last_use = ? WHERE name = ?`, unixMilli(reg.now()), name)
}

func (reg *SQLiteRegistry) Remove(ctx context.Context, name string) error {
	reg.logger.Debugf("Removing cluster %s", name)

	return reg.exec(ctx, `DELETE FROM clusters WHERE name = ?`, name)
}

func (reg *SQLiteRegistry) GetHandle(ctx context.Context, name string) (*cluster.Handle, error) {
	record, err := reg.Get(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return record.Handle, nil
}

func (reg *SQLiteRegistry) RefreshStatusHandle(ctx context.Context, name string) (cluster.Status, *cluster.Handle, error) {
	return refresh(ctx, reg, reg.prober, name)
}

func (reg *SQLiteRegistry) execOne(ctx context.Context, name, query string, args ...any) error {
	var affected int64

	err := reg.retryBusy(ctx, func() error {
		res, err := reg.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}

		affected, err = res.RowsAffected()

		return err
	})
	if err != nil {
		return errors.New(err)
	}

	if affected == 0 {
		return errors.Errorf("%s: %w", name, ErrNotFound)
	}

	return nil
}

func (reg *SQLiteRegistry) exec(ctx context.Context, query string, args ...any) error {
	return errors.WithStackTrace(reg.retryBusy(ctx, func() error {
		_, err := reg.db.ExecContext(ctx, query, args...)
		return err
	}))
}

// retryBusy retries writes that lost a race with another process holding the database lock
// for longer than busy_timeout.
func (reg *SQLiteRegistry) retryBusy(ctx context.Context, op func() error) error {
	var lastErr error

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxBusyRetries), ctx)

	err := backoff.Retry(func() error {
		lastErr = op()
		if lastErr != nil && isBusy(lastErr) {
			reg.logger.Debugf("Registry is busy, retrying: %v", lastErr)
			return lastErr
		}

		return nil
	}, policy)
	if err != nil {
		return err
	}

	return lastErr
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*cluster.Record, error) {
	var (
		record                          cluster.Record
		status, handleJSON              string
		launchedAt, lastUse, controller  int64
	)

	if err := row.Scan(&record.Name, &status, &handleJSON, &launchedAt, &lastUse, &record.AutostopMinutes, &controller); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, errors.New(err)
	}

	record.Status = cluster.Status(status)
	record.LaunchedAt = fromUnixMilli(launchedAt)
	record.LastUse = fromUnixMilli(lastUse)
	record.IsControllerRole = controller != 0

	if handleJSON != "" {
		record.Handle = new(cluster.Handle)
		if err := json.Unmarshal([]byte(handleJSON), record.Handle); err != nil {
			return nil, errors.WithStackTraceAndPrefix(err, "decoding handle of cluster %s", record.Name)
		}
	}

	return &record, nil
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.UnixMilli()
}

func fromUnixMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}

	return time.UnixMilli(ms)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
