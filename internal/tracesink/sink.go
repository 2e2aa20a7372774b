// Package tracesink implements a durable observer of agent runtime
// activity: a pluggable sink, in the sense spec.md reserves for
// "persistence/tracing sinks", that does nothing but consume a runtime's
// Subscribe stream and record it to SQLite. It never reaches into runtime
// internals; everything it knows comes through the public subscription
// contract.
package tracesink

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	sqlite3migrate "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roasbeef/agentruntime/internal/agentruntime"
	"github.com/roasbeef/agentruntime/internal/logging"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Sink durably records every ActivityEvent published by one or more
// subscriptions to a SQLite database.
type Sink struct {
	db  *sql.DB
	log logging.Logger

	mu      sync.Mutex
	cancels []context.CancelFunc
	wg      sync.WaitGroup
}

// Open creates (or reuses) the SQLite database at path, running pending
// migrations, and returns a ready-to-use Sink.
func Open(path string, log logging.Logger) (*Sink, error) {
	if log == nil {
		log = logging.Disabled()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("tracesink: opening database: %w", err)
	}

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Sink{db: db, log: log}, nil
}

func migrateUp(db *sql.DB) error {
	driver, err := sqlite3migrate.WithInstance(db, &sqlite3migrate.Config{})
	if err != nil {
		return fmt.Errorf("tracesink: building migration driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("tracesink: loading migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("tracesink: constructing migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("tracesink: applying migrations: %w", err)
	}

	return nil
}

// Attach starts a goroutine that drains sub and records every event until
// sub's channel closes or ctx is cancelled. Multiple subscriptions (from
// different instances) can be attached to the same Sink.
func (s *Sink) Attach(ctx context.Context, sub *agentruntime.Subscription) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancels = append(s.cancels, cancel)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		traceID := uuid.NewString()

		for {
			select {
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				s.record(ctx, traceID, ev)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *Sink) record(ctx context.Context, traceID string, ev agentruntime.ActivityEvent) {
	var lastErrStr sql.NullString
	if ev.Snapshot.LastError != nil {
		lastErrStr = sql.NullString{String: ev.Snapshot.LastError.Error(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_trace (
			trace_id, agent_runtime_id, activity_id, activity_type,
			status, processed, failures, last_error, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		traceID,
		string(ev.Snapshot.ID),
		string(ev.Activity.ID),
		ev.Activity.Type.String(),
		ev.Snapshot.Status.String(),
		ev.Snapshot.Processed,
		ev.Snapshot.Failures,
		lastErrStr,
		ev.Snapshot.AvgProcessingTime/time.Millisecond,
	)
	if err != nil {
		s.log.ErrorS(ctx, "tracesink: failed to record activity", err,
			"agent_runtime_id", ev.Snapshot.ID,
			"activity_id", ev.Activity.ID,
		)
	}
}

// Close stops every attached goroutine and closes the underlying database.
func (s *Sink) Close() error {
	s.mu.Lock()
	cancels := s.cancels
	s.cancels = nil
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	s.wg.Wait()

	return s.db.Close()
}
