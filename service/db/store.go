package db

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/suistream/service/metrics"
	"github.com/brojonat/suistream/service/source"
	"github.com/brojonat/suistream/service/stream"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

const eventsTable = "sui_events"

// Store provides database operations for emitted Sui events.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewStore creates a new Store with the given database connection pool.
// Metrics may be nil.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		pool:    pool,
		metrics: m,
		logger:  logger.With("component", "db_store"),
	}
}

// Connect opens a pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database url is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// Event is a stored Sui event.
type Event struct {
	Digest          string
	TransactionKind string
	Sender          string
	TimestampMs     int64
	Metadata        string
	RunID           *string
	RecordedAt      time.Time
	CreatedAt       time.Time
}

// InsertEventParams contains the parameters for storing an event.
type InsertEventParams struct {
	Digest          string
	TransactionKind string
	Sender          string
	TimestampMs     int64
	Metadata        string
	RunID           *string
	RecordedAt      time.Time
}

// ListEventsParams contains filter and pagination parameters.
type ListEventsParams struct {
	// TransactionKind filters by kind when non-empty.
	TransactionKind string
	Limit           int32
	Offset          int32
}

// ParamsFromRecord builds insert parameters from a pipeline record.
func ParamsFromRecord(rec *stream.Record[source.Event], runID string) InsertEventParams {
	params := InsertEventParams{
		Digest:          rec.Data.TransactionID,
		TransactionKind: rec.Data.TransactionKind,
		Sender:          rec.Data.Sender,
		TimestampMs:     int64(rec.Data.Timestamp),
		Metadata:        rec.Data.Metadata,
		RecordedAt:      time.UnixMilli(rec.Timestamp).UTC(),
	}
	if runID != "" {
		params.RunID = &runID
	}
	return params
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	start := time.Now()
	_, err := s.pool.Exec(ctx, schema)
	s.record("migrate", start, err)
	if err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	s.logger.InfoContext(ctx, "database schema applied", "table", eventsTable)
	return nil
}

// InsertEvent stores an event. It reports false when an event with the same
// digest already exists; the existing row is left untouched.
func (s *Store) InsertEvent(ctx context.Context, params InsertEventParams) (bool, error) {
	start := time.Now()
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO sui_events (
			digest, transaction_kind, sender, timestamp_ms, metadata, run_id, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (digest) DO NOTHING
	`,
		params.Digest,
		params.TransactionKind,
		params.Sender,
		params.TimestampMs,
		params.Metadata,
		params.RunID,
		params.RecordedAt,
	)
	s.record("insert", start, err)
	if err != nil {
		return false, fmt.Errorf("failed to insert event %s: %w", params.Digest, err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetEvent retrieves an event by digest. It returns pgx.ErrNoRows when absent.
func (s *Store) GetEvent(ctx context.Context, digest string) (*Event, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `
		SELECT digest, transaction_kind, sender, timestamp_ms, metadata, run_id, recorded_at, created_at
		FROM sui_events
		WHERE digest = $1
	`, digest)

	var e Event
	err := row.Scan(&e.Digest, &e.TransactionKind, &e.Sender, &e.TimestampMs, &e.Metadata, &e.RunID, &e.RecordedAt, &e.CreatedAt)
	s.record("get", start, err)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListRecentEvents returns events ordered by ledger timestamp, newest first.
func (s *Store) ListRecentEvents(ctx context.Context, params ListEventsParams) ([]*Event, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}

	start := time.Now()
	rows, err := s.pool.Query(ctx, `
		SELECT digest, transaction_kind, sender, timestamp_ms, metadata, run_id, recorded_at, created_at
		FROM sui_events
		WHERE $1 = '' OR transaction_kind = $1
		ORDER BY timestamp_ms DESC, created_at DESC
		LIMIT $2 OFFSET $3
	`, params.TransactionKind, limit, params.Offset)
	if err != nil {
		s.record("list", start, err)
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Event, error) {
		var e Event
		err := row.Scan(&e.Digest, &e.TransactionKind, &e.Sender, &e.TimestampMs, &e.Metadata, &e.RunID, &e.RecordedAt, &e.CreatedAt)
		return &e, err
	})
	s.record("list", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to scan events: %w", err)
	}
	return events, nil
}

// CountEvents returns the number of stored events.
func (s *Store) CountEvents(ctx context.Context) (int64, error) {
	start := time.Now()
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM sui_events`).Scan(&n)
	s.record("count", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

func (s *Store) record(op string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.RecordDBQuery(op, eventsTable, time.Since(start).Seconds(), err)
	}
}

// Sink stores every record it receives.
type Sink struct {
	store *Store
	runID string
}

var _ stream.Sink[source.Event] = (*Sink)(nil)

// NewSink returns a sink writing to store, stamping rows with runID.
func NewSink(store *Store, runID string) *Sink {
	return &Sink{store: store, runID: runID}
}

// Write inserts the record. Records already stored are skipped.
func (s *Sink) Write(ctx context.Context, rec *stream.Record[source.Event]) error {
	inserted, err := s.store.InsertEvent(ctx, ParamsFromRecord(rec, s.runID))
	if err != nil {
		return err
	}
	if !inserted {
		s.store.logger.DebugContext(ctx, "event already stored", "digest", rec.Data.TransactionID)
	}
	return nil
}

// Close closes the store's connection pool.
func (s *Sink) Close() error {
	s.store.pool.Close()
	return nil
}
