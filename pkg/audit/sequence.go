package audit

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/golang-migrate/migrate/v4"
	msqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/mcpgateway/registry/pkg/log"

	// registers the sqlite driver used below.
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SequenceStore is the durability-bookkeeping side of C9: a small sqlite
// database tracking the last checkpointed audit sequence number and the
// configured retention window, adapted from the teacher's sqlite/migrate
// wiring (pkg/db) down to its single-writer connection pool and advisory
// migration file lock. The FileLogger remains the source of truth for
// entries; this store only remembers how far a consumer (e.g. a log
// shipper) has read and how long entries should be retained.
type SequenceStore struct {
	db *sqlx.DB
}

// OpenSequenceStore opens (creating and migrating if necessary) the sqlite
// file at path.
func OpenSequenceStore(path string) (*SequenceStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating audit sequence store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("opening audit sequence store: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := runMigrations(path, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SequenceStore{db: sqlx.NewDb(db, "sqlite")}, nil
}

// Close closes the underlying database handle.
func (s *SequenceStore) Close() error { return s.db.Close() }

// Checkpoint records seq as the last durably-shipped sequence number.
func (s *SequenceStore) Checkpoint(ctx context.Context, seq uint64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE audit_checkpoint SET last_seq = ?, updated_at = CURRENT_TIMESTAMP WHERE id = 1`, seq)
	return err
}

// LastCheckpoint returns the most recently checkpointed sequence number.
func (s *SequenceStore) LastCheckpoint(ctx context.Context) (uint64, error) {
	var seq uint64
	err := s.db.GetContext(ctx, &seq, `SELECT last_seq FROM audit_checkpoint WHERE id = 1`)
	return seq, err
}

// SetRetentionDays updates the configured retention window.
func (s *SequenceStore) SetRetentionDays(ctx context.Context, days int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE audit_checkpoint SET retention_days = ?, updated_at = CURRENT_TIMESTAMP WHERE id = 1`, days)
	return err
}

// RetentionCutoff returns the timestamp before which rotated audit log
// files are eligible for deletion.
func (s *SequenceStore) RetentionCutoff(ctx context.Context) (time.Time, error) {
	var days int
	if err := s.db.GetContext(ctx, &days, `SELECT retention_days FROM audit_checkpoint WHERE id = 1`); err != nil {
		return time.Time{}, err
	}
	return time.Now().AddDate(0, 0, -days), nil
}

func runMigrations(dbFile string, db *sql.DB) error {
	migDriver, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}
	defer migDriver.Close()

	driver, err := msqlite.WithInstance(db, &msqlite.Config{})
	if err != nil {
		return err
	}

	mig, err := migrate.NewWithInstance("iofs", migDriver, "sqlite", driver)
	if err != nil {
		return err
	}

	// File-locked so two gateway processes sharing a data directory never
	// race on the initial migration, mirroring the teacher's migration lock.
	lockFile := filepath.Join(filepath.Dir(dbFile), ".audit-migration.lock")
	fileLock := flock.New(lockFile)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	locked, err := fileLock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("acquiring audit migration lock: %w", err)
	}
	if !locked {
		return errors.New("timeout waiting for audit migration lock")
	}
	defer func() {
		if err := fileLock.Unlock(); err != nil {
			log.Warnf("audit: failed to release migration lock: %v", err)
		}
	}()

	if err := mig.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running audit sequence store migrations: %w", err)
	}
	return nil
}
