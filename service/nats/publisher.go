package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brojonat/suistream/service/metrics"
	"github.com/brojonat/suistream/service/source"
	"github.com/brojonat/suistream/service/stream"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Publisher defines the interface for publishing Sui events to NATS.
type Publisher interface {
	// PublishEvent publishes a single event to JetStream.
	PublishEvent(ctx context.Context, msg *EventMessage) error

	// Close closes the connection to NATS.
	Close() error
}

const (
	// StreamName is the name of the JetStream stream for Sui events.
	StreamName = "SUI_EVENTS"

	// DefaultSubjectPrefix is used when no prefix is configured.
	DefaultSubjectPrefix = "sui.txns"

	// StreamRetention is how long messages are retained (7 days by default).
	StreamRetention = 7 * 24 * time.Hour

	// DuplicateWindow is how long JetStream remembers message IDs. A restarted
	// run re-emitting its first transaction is dropped inside this window.
	DuplicateWindow = 10 * time.Minute

	// RunIDHeader carries the run ID of the publishing process.
	RunIDHeader = "Sui-Run-Id"
)

// Subject returns the subject an event of the given kind is published to.
// Characters that are not valid in a subject token are replaced with '_'.
func Subject(prefix, kind string) string {
	if kind == "" {
		kind = source.Unknown
	}
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, kind)
	return prefix + "." + token
}

// JetStreamPublisher publishes Sui events to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	prefix  string
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the stream exists.
func NewPublisher(natsURL, subjectPrefix string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if subjectPrefix == "" {
		subjectPrefix = DefaultSubjectPrefix
	}

	// Connect to NATS
	nc, err := nats.Connect(natsURL,
		nats.Name("suistream-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1), // Unlimited reconnects
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	// Create JetStream context
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:      nc,
		js:      js,
		prefix:  subjectPrefix,
		metrics: m,
		logger:  logger.With("component", "nats_publisher"),
	}

	// Ensure stream exists
	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	publisher.logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
		"subjects", publisher.subjects(),
	)

	return publisher, nil
}

func (p *JetStreamPublisher) subjects() string {
	return p.prefix + ".>"
}

// ensureStream creates the JetStream stream if it doesn't exist.
func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Try to get existing stream
	stream, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		info, err := stream.Info(ctx)
		if err == nil {
			p.logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)

	streamConfig := jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Transaction events from the Sui ledger",
		Subjects:    []string{p.subjects()},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Duplicates:  DuplicateWindow,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	}

	_, err = p.js.CreateStream(ctx, streamConfig)
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

// PublishEvent publishes a single event. The transaction digest is used as the
// JetStream message ID so the server drops duplicates.
func (p *JetStreamPublisher) PublishEvent(ctx context.Context, msg *EventMessage) error {
	subject := Subject(p.prefix, msg.TransactionKind)

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	out := nats.NewMsg(subject)
	out.Data = data
	if msg.RunID != "" {
		out.Header.Set(RunIDHeader, msg.RunID)
	}

	start := time.Now()
	ack, err := p.js.PublishMsg(ctx, out, jetstream.WithMsgID(msg.TransactionID))
	if p.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		p.metrics.RecordNATSPublish(subject, status, time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.DebugContext(ctx, "published sui event",
		"subject", subject,
		"digest", msg.TransactionID,
		"sequence", ack.Sequence,
		"duplicate", ack.Duplicate,
	)

	return nil
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}

// Sink adapts a Publisher to the pipeline sink contract.
type Sink struct {
	publisher Publisher
	runID     string
}

var (
	_ Publisher                 = (*JetStreamPublisher)(nil)
	_ Publisher                 = (*MockPublisher)(nil)
	_ stream.Sink[source.Event] = (*Sink)(nil)
)

// NewSink returns a sink that publishes every record, stamped with runID.
func NewSink(p Publisher, runID string) *Sink {
	return &Sink{publisher: p, runID: runID}
}

// Write publishes the record.
func (s *Sink) Write(ctx context.Context, rec *stream.Record[source.Event]) error {
	return s.publisher.PublishEvent(ctx, FromRecord(rec, s.runID))
}

// Close closes the underlying publisher.
func (s *Sink) Close() error {
	return s.publisher.Close()
}
