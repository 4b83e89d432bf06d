// Package source implements the polling source that turns the Sui
// transaction feed into a stream of Events.
//
// A Source is owned by a single goroutine. It is driven through Init, then
// repeated calls to Next, then Close; it holds no locks, so sharing one
// across goroutines requires external mutual exclusion.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/suistream/service/metrics"
	"github.com/brojonat/suistream/service/stream"
	"github.com/brojonat/suistream/service/sui"
)

// MainnetEndpoint is the endpoint used by NewMainnet.
const MainnetEndpoint = sui.MainnetRPCURL

// Gateway fetches transactions from a Sui node. *sui.Client implements it.
type Gateway interface {
	QueryRecentTransactions(ctx context.Context, limit int, opts sui.ResponseOptions) ([]sui.TransactionBlockResponse, error)
	Close()
}

// Dialer connects a Gateway to an endpoint.
type Dialer func(ctx context.Context, endpoint string) (Gateway, error)

// SuiDialer returns a Dialer backed by sui.Dial.
func SuiDialer(m *metrics.Metrics, logger *slog.Logger) Dialer {
	return func(ctx context.Context, endpoint string) (Gateway, error) {
		client, err := sui.Dial(ctx, endpoint, m, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// EmitMode decides what happens when several transactions arrived between polls.
type EmitMode string

const (
	// EmitLatest emits only the most recent transaction of each poll;
	// anything older that arrived since the previous poll is skipped.
	EmitLatest EmitMode = "latest"
	// EmitAll emits every transaction newer than the last one processed,
	// oldest first, one per call to Next. Transactions older than the
	// fetched batch are still lost; raise MaxTransactions to cover the gap.
	EmitAll EmitMode = "all"
)

// ParseEmitMode parses "latest" or "all". The empty string means EmitLatest.
func ParseEmitMode(s string) (EmitMode, error) {
	switch EmitMode(s) {
	case "", EmitLatest:
		return EmitLatest, nil
	case EmitAll:
		return EmitAll, nil
	default:
		return "", fmt.Errorf("invalid emit mode %q: must be %q or %q", s, EmitLatest, EmitAll)
	}
}

// State is the lifecycle state of a Source.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config holds the construction-time settings of a Source.
// Settings are immutable once the Source is built.
type Config struct {
	Endpoint        string
	Interval        time.Duration
	MaxTransactions int
	EmitMode        EmitMode
	// ResetOnClose clears the dedup watermark and any queued records on Close.
	// By default a re-initialized Source resumes where it stopped.
	ResetOnClose bool

	// Dependencies
	Dialer  Dialer           // Optional: defaults to SuiDialer
	Metrics *metrics.Metrics // Optional: if nil, no metrics will be recorded
	Logger  *slog.Logger
}

// connection is either disconnected or connected to a gateway.
type connection interface {
	isConnection()
}

type disconnected struct{}

type connected struct {
	gateway Gateway
}

func (disconnected) isConnection() {}
func (connected) isConnection()    {}

// Source polls a Sui node and emits at most one Event per call to Next.
type Source struct {
	cfg     Config
	dial    Dialer
	logger  *slog.Logger
	metrics *metrics.Metrics

	conn            connection
	everInitialized bool

	lastProcessedID         *string
	lastProcessedCheckpoint *uint64
	pending                 []*stream.Record[Event]
}

var _ stream.Source[Event] = (*Source)(nil)

// New validates cfg and returns an uninitialized Source.
func New(cfg Config) (*Source, error) {
	var errs []error
	if cfg.Endpoint == "" {
		errs = append(errs, fmt.Errorf("endpoint is required"))
	}
	if cfg.Interval <= 0 {
		errs = append(errs, fmt.Errorf("interval must be positive, got %v", cfg.Interval))
	}
	if cfg.MaxTransactions <= 0 {
		errs = append(errs, fmt.Errorf("max transactions must be positive, got %d", cfg.MaxTransactions))
	}
	mode, err := ParseEmitMode(string(cfg.EmitMode))
	if err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid source configuration: %v", errs)
	}
	cfg.EmitMode = mode

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	dial := cfg.Dialer
	if dial == nil {
		dial = SuiDialer(cfg.Metrics, cfg.Logger)
	}

	return &Source{
		cfg:     cfg,
		dial:    dial,
		logger:  cfg.Logger.With("component", "sui_source"),
		metrics: cfg.Metrics,
		conn:    disconnected{},
	}, nil
}

// NewMainnet returns a Source reading from the public Sui mainnet full node.
func NewMainnet(interval time.Duration, maxTransactions int) (*Source, error) {
	return New(Config{
		Endpoint:        MainnetEndpoint,
		Interval:        interval,
		MaxTransactions: maxTransactions,
	})
}

// Init connects to the endpoint. It is a no-op if the Source is already
// initialized. On failure the Source stays disconnected.
func (s *Source) Init(ctx context.Context) error {
	if _, ok := s.conn.(connected); ok {
		return nil
	}

	gateway, err := s.dial(ctx, s.cfg.Endpoint)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to initialize sui client",
			"endpoint", s.cfg.Endpoint,
			"error", err,
		)
		return &RuntimeError{Op: "initialize", Err: err}
	}

	s.conn = connected{gateway: gateway}
	s.everInitialized = true
	if s.metrics != nil {
		s.metrics.RecordLifecycle(StateInitialized.String())
	}
	s.logger.InfoContext(ctx, "sui source initialized",
		"endpoint", s.cfg.Endpoint,
		"interval", s.cfg.Interval,
		"max_transactions", s.cfg.MaxTransactions,
		"emit_mode", s.cfg.EmitMode,
	)
	return nil
}

// Next waits for the poll interval, fetches the most recent transactions and
// returns a record for the newest one if it has not been emitted before.
// It returns (nil, nil) when there is nothing new. In EmitAll mode, records
// queued by an earlier poll are returned first, without waiting or fetching.
func (s *Source) Next(ctx context.Context) (*stream.Record[Event], error) {
	conn, ok := s.conn.(connected)
	if !ok {
		err := &RuntimeError{Op: "next", Err: ErrNotInitialized}
		s.logger.ErrorContext(ctx, "next called on uninitialized source")
		return nil, err
	}

	if len(s.pending) > 0 {
		rec := s.pending[0]
		s.pending[0] = nil
		s.pending = s.pending[1:]
		s.recordPoll("queued")
		s.emitted(ctx, rec)
		return rec, nil
	}

	if err := sleepContext(ctx, s.cfg.Interval); err != nil {
		s.logger.WarnContext(ctx, "poll interrupted while waiting", "error", err)
		return nil, &RuntimeError{Op: "wait for poll interval", Err: err}
	}

	txns, err := conn.gateway.QueryRecentTransactions(ctx, s.cfg.MaxTransactions, sui.FullResponseOptions())
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to fetch transactions", "error", err)
		s.recordPoll("error")
		return nil, &RuntimeError{Op: "fetch transactions", Err: err}
	}

	if len(txns) == 0 {
		s.logger.InfoContext(ctx, "no new transactions found")
		s.recordPoll("empty")
		return nil, nil
	}

	latest := &txns[0]
	if s.lastProcessedID != nil && *s.lastProcessedID == latest.Digest {
		s.logger.InfoContext(ctx, "no new transactions since last check", "digest", latest.Digest)
		s.recordPoll("duplicate")
		return nil, nil
	}

	fresh := s.newerThanWatermark(ctx, txns)
	s.markProcessed(ctx, latest)
	s.recordPoll("event")

	if s.cfg.EmitMode == EmitAll {
		// fresh is newest first; hand records out oldest first.
		for i := len(fresh) - 2; i >= 0; i-- {
			s.pending = append(s.pending, stream.NewRecord(Translate(fresh[i])))
		}
		oldest := stream.NewRecord(Translate(fresh[len(fresh)-1]))
		s.emitted(ctx, oldest)
		return oldest, nil
	}

	if skipped := len(fresh) - 1; skipped > 0 {
		s.logger.DebugContext(ctx, "skipping older transactions in latest-only mode", "skipped", skipped)
		if s.metrics != nil {
			s.metrics.RecordTransactionsSkipped("latest_only", skipped)
		}
	}

	rec := stream.NewRecord(Translate(latest))
	s.emitted(ctx, rec)
	return rec, nil
}

// Close disconnects from the endpoint. Closing a closed Source is a no-op;
// closing a Source that was never initialized is an error.
func (s *Source) Close(ctx context.Context) error {
	conn, ok := s.conn.(connected)
	if !ok {
		if s.everInitialized {
			return nil
		}
		s.logger.ErrorContext(ctx, "close called on uninitialized source")
		return &RuntimeError{Op: "close", Err: ErrNotInitialized}
	}

	conn.gateway.Close()
	s.conn = disconnected{}

	if s.cfg.ResetOnClose {
		s.lastProcessedID = nil
		s.lastProcessedCheckpoint = nil
		s.pending = nil
	}

	if s.metrics != nil {
		s.metrics.RecordLifecycle(StateClosed.String())
	}
	s.logger.InfoContext(ctx, "sui source closed",
		"reset_on_close", s.cfg.ResetOnClose,
		"pending", len(s.pending),
	)
	return nil
}

// IsInitialized reports whether the Source is connected.
func (s *Source) IsInitialized() bool {
	_, ok := s.conn.(connected)
	return ok
}

// State returns the lifecycle state.
func (s *Source) State() State {
	switch {
	case s.IsInitialized():
		return StateInitialized
	case s.everInitialized:
		return StateClosed
	default:
		return StateUninitialized
	}
}

// Endpoint returns the configured RPC endpoint.
func (s *Source) Endpoint() string {
	return s.cfg.Endpoint
}

// LastProcessedID returns the digest of the newest transaction processed so far.
func (s *Source) LastProcessedID() (string, bool) {
	if s.lastProcessedID == nil {
		return "", false
	}
	return *s.lastProcessedID, true
}

// LastProcessedCheckpoint returns the checkpoint of that transaction, when the node reported one.
func (s *Source) LastProcessedCheckpoint() (uint64, bool) {
	if s.lastProcessedCheckpoint == nil {
		return 0, false
	}
	return *s.lastProcessedCheckpoint, true
}

// Pending returns the number of queued records (EmitAll mode only).
func (s *Source) Pending() int {
	return len(s.pending)
}

// newerThanWatermark returns the transactions of the batch that are newer than
// lastProcessedID, newest first. On the first poll only the newest counts.
func (s *Source) newerThanWatermark(ctx context.Context, txns []sui.TransactionBlockResponse) []*sui.TransactionBlockResponse {
	if s.lastProcessedID == nil {
		return []*sui.TransactionBlockResponse{&txns[0]}
	}

	fresh := make([]*sui.TransactionBlockResponse, 0, len(txns))
	for i := range txns {
		if txns[i].Digest == *s.lastProcessedID {
			return fresh
		}
		fresh = append(fresh, &txns[i])
	}

	s.logger.WarnContext(ctx, "last processed transaction not in fetched batch, older transactions may be missed",
		"last_processed", *s.lastProcessedID,
		"batch_size", len(txns),
	)
	return fresh
}

func (s *Source) markProcessed(ctx context.Context, txn *sui.TransactionBlockResponse) {
	digest := txn.Digest
	s.lastProcessedID = &digest

	s.lastProcessedCheckpoint = nil
	checkpoint := "none"
	if cp, ok := txn.CheckpointSequence(); ok {
		s.lastProcessedCheckpoint = &cp
		checkpoint = fmt.Sprint(cp)
		if s.metrics != nil {
			s.metrics.SetLastCheckpoint(cp)
		}
	}
	s.logger.DebugContext(ctx, "advanced watermark", "digest", digest, "checkpoint", checkpoint)
}

func (s *Source) emitted(ctx context.Context, rec *stream.Record[Event]) {
	s.logger.InfoContext(ctx, "processed sui transaction",
		"digest", rec.Data.TransactionID,
		"kind", rec.Data.TransactionKind,
		"timestamp", rec.Data.Timestamp,
	)
	if s.metrics != nil {
		s.metrics.RecordEventEmitted(rec.Data.TransactionKind)
	}
}

func (s *Source) recordPoll(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordPoll(outcome)
	}
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
