package source

import (
	"bytes"
	"encoding/json"

	"github.com/brojonat/suistream/service/sui"
)

// Unknown is the placeholder for fields that cannot be determined.
const Unknown = "unknown"

// Event is the pipeline-facing form of one Sui transaction.
type Event struct {
	TransactionID   string `json:"transaction_id"`
	TransactionKind string `json:"transaction_kind"`
	// Timestamp is milliseconds since epoch, 0 when the node omits it.
	Timestamp uint64 `json:"timestamp"`
	Sender    string `json:"sender"`
	// Recipient and Amount are never populated: no transfer semantics are extracted.
	Recipient *string `json:"recipient,omitempty"`
	Amount    *uint64 `json:"amount,omitempty"`
	// Metadata is the transaction data payload rendered as compact JSON.
	// Its format is for inspection only.
	Metadata string `json:"metadata"`
}

// Translate converts a raw transaction block into an Event. It never fails:
// missing or malformed fields fall back to Unknown or 0.
func Translate(txn *sui.TransactionBlockResponse) Event {
	event := Event{
		TransactionKind: Unknown,
		Sender:          Unknown,
		Metadata:        Unknown,
	}
	if txn == nil {
		return event
	}

	event.TransactionID = txn.Digest
	if ts, ok := txn.TimestampMillis(); ok {
		event.Timestamp = ts
	}

	if txn.Transaction == nil {
		return event
	}
	event.Metadata = renderData(txn.Transaction.Data)

	data, err := txn.Transaction.DecodeData()
	if err != nil {
		return event
	}
	if data.Transaction.Kind != "" {
		event.TransactionKind = data.Transaction.Kind
	}
	if addr, err := sui.ParseAddress(data.Sender); err == nil {
		event.Sender = addr.String()
	}

	return event
}

func renderData(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Unknown
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return string(trimmed)
	}
	return buf.String()
}
