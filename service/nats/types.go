package nats

import (
	"time"

	"github.com/brojonat/suistream/service/source"
	"github.com/brojonat/suistream/service/stream"
)

// EventMessage is the payload published for each Sui transaction event.
// It is published to the subject "{prefix}.{transaction_kind}" in JetStream.
type EventMessage struct {
	// Transaction identifiers
	TransactionID   string `json:"transaction_id"`
	TransactionKind string `json:"transaction_kind"`

	// Transaction details
	Timestamp uint64  `json:"timestamp"`
	Sender    string  `json:"sender"`
	Recipient *string `json:"recipient,omitempty"`
	Amount    *uint64 `json:"amount,omitempty"`
	Metadata  string  `json:"metadata"`

	// Pipeline metadata
	RunID       string    `json:"run_id,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
	PublishedAt time.Time `json:"published_at"`
}

// FromRecord converts a pipeline record into an EventMessage for publishing.
func FromRecord(rec *stream.Record[source.Event], runID string) *EventMessage {
	ev := rec.Data
	return &EventMessage{
		TransactionID:   ev.TransactionID,
		TransactionKind: ev.TransactionKind,
		Timestamp:       ev.Timestamp,
		Sender:          ev.Sender,
		Recipient:       ev.Recipient,
		Amount:          ev.Amount,
		Metadata:        ev.Metadata,
		RunID:           runID,
		RecordedAt:      time.UnixMilli(rec.Timestamp).UTC(),
		PublishedAt:     time.Now().UTC(),
	}
}

// Event returns the source event carried by the message.
func (m *EventMessage) Event() source.Event {
	return source.Event{
		TransactionID:   m.TransactionID,
		TransactionKind: m.TransactionKind,
		Timestamp:       m.Timestamp,
		Sender:          m.Sender,
		Recipient:       m.Recipient,
		Amount:          m.Amount,
		Metadata:        m.Metadata,
	}
}
