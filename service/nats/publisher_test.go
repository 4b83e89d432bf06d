package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/brojonat/suistream/service/source"
	"github.com/brojonat/suistream/service/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(digest, kind string) *stream.Record[source.Event] {
	return &stream.Record[source.Event]{
		Data: source.Event{
			TransactionID:   digest,
			TransactionKind: kind,
			Timestamp:       1700000000123,
			Sender:          "0x7d20dcdb2bca4f508ea9613994683eb4e76e9c4ed371169677c1be02aaf0b58e",
			Metadata:        `{"messageVersion":"v1"}`,
		},
		Timestamp: 1700000001000,
	}
}

func TestSubject(t *testing.T) {
	tests := []struct {
		prefix string
		kind   string
		want   string
	}{
		{"sui.txns", "ProgrammableTransaction", "sui.txns.ProgrammableTransaction"},
		{"sui.txns", "", "sui.txns.unknown"},
		{"chain", "Weird.Kind>*", "chain.Weird_Kind__"},
		{"chain", "two words", "chain.two_words"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Subject(tt.prefix, tt.kind))
		})
	}
}

func TestFromRecord(t *testing.T) {
	rec := testRecord("6u2LpbDyuLqMoEqJMoA3KNnkfXBJf3pfNmGLZVFBAAAA", "ProgrammableTransaction")

	msg := FromRecord(rec, "run-1")

	assert.Equal(t, rec.Data, msg.Event())
	assert.Equal(t, "run-1", msg.RunID)
	assert.Equal(t, time.UnixMilli(1700000001000).UTC(), msg.RecordedAt)
	assert.WithinDuration(t, time.Now(), msg.PublishedAt, time.Minute)

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "recipient")
	assert.NotContains(t, string(data), "amount")
	assert.Contains(t, string(data), `"transaction_id":"6u2LpbDyuLqMoEqJMoA3KNnkfXBJf3pfNmGLZVFBAAAA"`)
}

func TestSink_Write(t *testing.T) {
	ctx := context.Background()
	mock := NewMockPublisher()
	sink := NewSink(mock, "run-42")

	require.NoError(t, sink.Write(ctx, testRecord("A", "ProgrammableTransaction")))
	require.NoError(t, sink.Write(ctx, testRecord("B", "ConsensusCommitPrologueV3")))

	events := mock.GetPublishedEvents()
	require.Len(t, events, 2)
	assert.Equal(t, "A", events[0].TransactionID)
	assert.Equal(t, "run-42", events[1].RunID)
	assert.Len(t, mock.GetPublishedEventsForKind("ProgrammableTransaction"), 1)

	require.NoError(t, sink.Close())
	assert.True(t, mock.IsClosed())
}

func TestSink_WriteError(t *testing.T) {
	mock := NewMockPublisher()
	mock.SetPublishError(errors.New("nats: timeout"))
	sink := NewSink(mock, "")

	err := sink.Write(context.Background(), testRecord("A", "ProgrammableTransaction"))
	require.Error(t, err)
	assert.Equal(t, 0, mock.GetPublishedEventCount())

	mock.Reset()
	require.NoError(t, sink.Write(context.Background(), testRecord("A", "ProgrammableTransaction")))
	assert.Equal(t, 1, mock.GetPublishedEventCount())
}
