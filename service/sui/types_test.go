package sui

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	t.Run("full length address", func(t *testing.T) {
		in := "0x7d20dcdb2bca4f508ea9613994683eb4e76e9c4ed371169677c1be02aaf0b58e"
		addr, err := ParseAddress(in)
		require.NoError(t, err)
		assert.Equal(t, in, addr.String())
	})

	t.Run("short address is left padded", func(t *testing.T) {
		addr, err := ParseAddress("0x2")
		require.NoError(t, err)
		assert.Equal(t, "0x"+strings.Repeat("0", 63)+"2", addr.String())
	})

	t.Run("uppercase and missing prefix", func(t *testing.T) {
		addr, err := ParseAddress("7D20DCDB2BCA4F508EA9613994683EB4E76E9C4ED371169677C1BE02AAF0B58E")
		require.NoError(t, err)
		assert.Equal(t, "0x7d20dcdb2bca4f508ea9613994683eb4e76e9c4ed371169677c1be02aaf0b58e", addr.String())
	})

	t.Run("rejects malformed input", func(t *testing.T) {
		for _, in := range []string{"", "0x", "0xzz", "0x" + strings.Repeat("a", 65)} {
			_, err := ParseAddress(in)
			assert.Error(t, err, "input %q", in)
		}
	})
}

func TestParseDigest(t *testing.T) {
	_, err := ParseDigest("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	assert.NoError(t, err)

	d, err := ParseDigest(strings.Repeat("1", 32))
	require.NoError(t, err)
	assert.Equal(t, [DigestLength]byte{}, d)

	_, err = ParseDigest("0xAA")
	assert.Error(t, err)

	_, err = ParseDigest("abc")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "decoded to")
}

func TestTransactionBlockResponse_NumericFields(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   uint64
		wantOK bool
	}{
		{"decimal string", `"1700000000000"`, 1700000000000, true},
		{"bare number", `42`, 42, true},
		{"hex string", `"0x10"`, 16, true},
		{"null", `null`, 0, false},
		{"empty string", `""`, 0, false},
		{"garbage", `"soon"`, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp TransactionBlockResponse
			require.NoError(t, json.Unmarshal([]byte(`{"digest": "x", "timestampMs": `+tt.raw+`, "checkpoint": `+tt.raw+`}`), &resp))

			ts, ok := resp.TimestampMillis()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, ts)

			cp, ok := resp.CheckpointSequence()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, cp)
		})
	}

	t.Run("absent", func(t *testing.T) {
		var resp TransactionBlockResponse
		require.NoError(t, json.Unmarshal([]byte(`{"digest": "x"}`), &resp))
		_, ok := resp.TimestampMillis()
		assert.False(t, ok)
	})
}

func TestDecodeData(t *testing.T) {
	block := &TransactionBlock{Data: json.RawMessage(`{"messageVersion": "v1", "transaction": {"kind": "ChangeEpoch"}, "sender": "0x0"}`)}

	data, err := block.DecodeData()
	require.NoError(t, err)
	assert.Equal(t, "ChangeEpoch", data.Transaction.Kind)
	assert.Equal(t, "0x0", data.Sender)

	_, err = (&TransactionBlock{}).DecodeData()
	assert.Error(t, err)

	_, err = (&TransactionBlock{Data: json.RawMessage(`[1, 2]`)}).DecodeData()
	assert.Error(t, err)
}
