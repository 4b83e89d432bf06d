package source

import (
	"encoding/json"
	"testing"

	"github.com/brojonat/suistream/service/sui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullTxn = `{
	"digest": "6u2LpbDyuLqMoEqJMoA3KNnkfXBJf3pfNmGLZVFBAAAA",
	"transaction": {
		"data": {
			"messageVersion": "v1",
			"transaction": {"kind": "ProgrammableTransaction", "inputs": [], "transactions": []},
			"sender": "0x7D20DCDB2BCA4F508EA9613994683EB4E76E9C4ED371169677C1BE02AAF0B58E",
			"gasData": {"budget": "2000000"}
		},
		"txSignatures": ["AAAA"]
	},
	"timestampMs": "1700000000123",
	"checkpoint": "24000001"
}`

func decodeTxn(t *testing.T, raw string) *sui.TransactionBlockResponse {
	t.Helper()
	var txn sui.TransactionBlockResponse
	require.NoError(t, json.Unmarshal([]byte(raw), &txn))
	return &txn
}

func TestTranslate_FullTransaction(t *testing.T) {
	event := Translate(decodeTxn(t, fullTxn))

	assert.Equal(t, "6u2LpbDyuLqMoEqJMoA3KNnkfXBJf3pfNmGLZVFBAAAA", event.TransactionID)
	assert.Equal(t, "ProgrammableTransaction", event.TransactionKind)
	assert.Equal(t, uint64(1700000000123), event.Timestamp)
	assert.Equal(t, "0x7d20dcdb2bca4f508ea9613994683eb4e76e9c4ed371169677c1be02aaf0b58e", event.Sender)
	assert.Nil(t, event.Recipient)
	assert.Nil(t, event.Amount)

	assert.NotContains(t, event.Metadata, "\n")
	assert.Contains(t, event.Metadata, `"kind":"ProgrammableTransaction"`)
	assert.True(t, json.Valid([]byte(event.Metadata)))
}

func TestTranslate_Degrades(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Event
	}{
		{
			name: "digest only",
			raw:  `{"digest": "0xAA"}`,
			want: Event{TransactionID: "0xAA", TransactionKind: Unknown, Sender: Unknown, Metadata: Unknown},
		},
		{
			name: "null transaction data",
			raw:  `{"digest": "0xAA", "timestampMs": "5", "transaction": {"data": null}}`,
			want: Event{TransactionID: "0xAA", TransactionKind: Unknown, Timestamp: 5, Sender: Unknown, Metadata: Unknown},
		},
		{
			name: "unexpected data shape",
			raw:  `{"digest": "0xAA", "transaction": {"data": [1, 2]}}`,
			want: Event{TransactionID: "0xAA", TransactionKind: Unknown, Sender: Unknown, Metadata: "[1,2]"},
		},
		{
			name: "malformed sender and empty kind",
			raw:  `{"digest": "0xAA", "transaction": {"data": {"transaction": {"kind": ""}, "sender": "not-hex"}}}`,
			want: Event{
				TransactionID:   "0xAA",
				TransactionKind: Unknown,
				Sender:          Unknown,
				Metadata:        `{"transaction":{"kind":""},"sender":"not-hex"}`,
			},
		},
		{
			name: "short sender and malformed timestamp",
			raw:  `{"digest": "0xAA", "timestampMs": "soon", "transaction": {"data": {"transaction": {"kind": "Genesis"}, "sender": "0x2"}}}`,
			want: Event{
				TransactionID:   "0xAA",
				TransactionKind: "Genesis",
				Sender:          "0x0000000000000000000000000000000000000000000000000000000000000002",
				Metadata:        `{"transaction":{"kind":"Genesis"},"sender":"0x2"}`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Translate(decodeTxn(t, tt.raw)))
		})
	}
}

func TestTranslate_Nil(t *testing.T) {
	assert.Equal(t, Event{TransactionKind: Unknown, Sender: Unknown, Metadata: Unknown}, Translate(nil))
}

func TestEvent_JSON(t *testing.T) {
	event := Translate(decodeTxn(t, `{"digest": "0xAA", "timestampMs": "7"}`))

	b, err := json.Marshal(event)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"transaction_id": "0xAA",
		"transaction_kind": "unknown",
		"timestamp": 7,
		"sender": "unknown",
		"metadata": "unknown"
	}`, string(b))
}
