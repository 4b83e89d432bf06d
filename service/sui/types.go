package sui

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/mr-tron/base58"
)

// AddressLength is the size of a Sui address in bytes.
const AddressLength = 32

// DigestLength is the size of a decoded transaction digest in bytes.
const DigestLength = 32

// Address is a Sui account address.
type Address [AddressLength]byte

// ParseAddress parses a hex address with an optional 0x prefix.
// Short forms such as "0x2" are left-padded with zeros, as the node does.
func ParseAddress(s string) (Address, error) {
	var addr Address

	h := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	if h == "" {
		return addr, fmt.Errorf("empty address")
	}
	if len(h) > AddressLength*2 {
		return addr, fmt.Errorf("address too long: %d hex chars", len(h))
	}
	h = strings.Repeat("0", AddressLength*2-len(h)) + h

	b, err := hexutil.Decode("0x" + h)
	if err != nil {
		return addr, fmt.Errorf("invalid address %q: %w", s, err)
	}
	copy(addr[:], b)
	return addr, nil
}

// String returns the canonical form: 0x followed by 64 lowercase hex chars.
func (a Address) String() string {
	return hexutil.Encode(a[:])
}

// ParseDigest decodes a base58 transaction digest.
func ParseDigest(s string) ([DigestLength]byte, error) {
	var d [DigestLength]byte
	b, err := base58.Decode(s)
	if err != nil {
		return d, fmt.Errorf("invalid digest %q: %w", s, err)
	}
	if len(b) != DigestLength {
		return d, fmt.Errorf("invalid digest %q: decoded to %d bytes", s, len(b))
	}
	copy(d[:], b)
	return d, nil
}

// ResponseOptions selects which parts of a transaction block the node includes.
type ResponseOptions struct {
	ShowInput          bool `json:"showInput,omitempty"`
	ShowRawInput       bool `json:"showRawInput,omitempty"`
	ShowEffects        bool `json:"showEffects,omitempty"`
	ShowEvents         bool `json:"showEvents,omitempty"`
	ShowObjectChanges  bool `json:"showObjectChanges,omitempty"`
	ShowBalanceChanges bool `json:"showBalanceChanges,omitempty"`
	ShowRawEffects     bool `json:"showRawEffects,omitempty"`
}

// FullResponseOptions requests everything needed to translate a transaction
// into an event: inputs, effects, events and balance changes.
func FullResponseOptions() ResponseOptions {
	return ResponseOptions{
		ShowInput:          true,
		ShowEffects:        true,
		ShowEvents:         true,
		ShowBalanceChanges: true,
	}
}

// TransactionBlockQuery is the first parameter of suix_queryTransactionBlocks.
// A nil Filter matches every transaction.
type TransactionBlockQuery struct {
	Filter  any              `json:"filter"`
	Options *ResponseOptions `json:"options,omitempty"`
}

// TransactionBlocksPage is one page of suix_queryTransactionBlocks results.
type TransactionBlocksPage struct {
	Data        []TransactionBlockResponse `json:"data"`
	NextCursor  *string                    `json:"nextCursor"`
	HasNextPage bool                       `json:"hasNextPage"`
}

// TransactionBlockResponse is a transaction block as returned by the node.
// Numeric fields are kept raw because the node encodes u64 values as strings;
// use TimestampMillis and CheckpointSequence to read them.
type TransactionBlockResponse struct {
	Digest         string            `json:"digest"`
	Transaction    *TransactionBlock `json:"transaction,omitempty"`
	Effects        json.RawMessage   `json:"effects,omitempty"`
	Events         json.RawMessage   `json:"events,omitempty"`
	BalanceChanges []BalanceChange   `json:"balanceChanges,omitempty"`
	TimestampMs    json.RawMessage   `json:"timestampMs,omitempty"`
	Checkpoint     json.RawMessage   `json:"checkpoint,omitempty"`
}

// TimestampMillis returns the block timestamp, if present and well formed.
func (r *TransactionBlockResponse) TimestampMillis() (uint64, bool) {
	return parseU64(r.TimestampMs)
}

// CheckpointSequence returns the checkpoint sequence number, if present and well formed.
func (r *TransactionBlockResponse) CheckpointSequence() (uint64, bool) {
	return parseU64(r.Checkpoint)
}

// TransactionBlock is the signed transaction. Data is kept verbatim so it can
// be rendered for audit even when it does not match TransactionData.
type TransactionBlock struct {
	Data         json.RawMessage `json:"data"`
	TxSignatures []string        `json:"txSignatures"`
}

// TransactionData is the decoded form of TransactionBlock.Data.
type TransactionData struct {
	MessageVersion string          `json:"messageVersion"`
	Transaction    TransactionKind `json:"transaction"`
	Sender         string          `json:"sender"`
	GasData        json.RawMessage `json:"gasData"`
}

// TransactionKind carries the kind tag, e.g. "ProgrammableTransaction".
type TransactionKind struct {
	Kind string `json:"kind"`
}

// BalanceChange is one entry of a transaction's balance changes.
type BalanceChange struct {
	Owner    json.RawMessage `json:"owner"`
	CoinType string          `json:"coinType"`
	Amount   string          `json:"amount"`
}

// DecodeData decodes the transaction data payload.
func (b *TransactionBlock) DecodeData() (*TransactionData, error) {
	if len(b.Data) == 0 {
		return nil, fmt.Errorf("transaction data is empty")
	}
	var data TransactionData
	if err := json.Unmarshal(b.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to decode transaction data: %w", err)
	}
	return &data, nil
}

// parseU64 accepts a JSON string or number holding a decimal or 0x-hex integer.
func parseU64(raw json.RawMessage) (uint64, bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, false
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		return 0, false
	}
	return math.ParseUint64(s)
}
