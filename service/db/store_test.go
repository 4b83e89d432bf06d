package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brojonat/suistream/service/source"
	"github.com/brojonat/suistream/service/stream"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(digest, kind string, ts uint64) *stream.Record[source.Event] {
	return &stream.Record[source.Event]{
		Data: source.Event{
			TransactionID:   digest,
			TransactionKind: kind,
			Timestamp:       ts,
			Sender:          "0x7d20dcdb2bca4f508ea9613994683eb4e76e9c4ed371169677c1be02aaf0b58e",
			Metadata:        `{"messageVersion":"v1"}`,
		},
		Timestamp: time.Now().UnixMilli(),
	}
}

func TestParamsFromRecord(t *testing.T) {
	rec := testRecord("A", "ProgrammableTransaction", 1700000000123)

	params := ParamsFromRecord(rec, "run-1")
	assert.Equal(t, "A", params.Digest)
	assert.Equal(t, "ProgrammableTransaction", params.TransactionKind)
	assert.Equal(t, int64(1700000000123), params.TimestampMs)
	require.NotNil(t, params.RunID)
	assert.Equal(t, "run-1", *params.RunID)
	assert.Equal(t, rec.Timestamp, params.RecordedAt.UnixMilli())

	assert.Nil(t, ParamsFromRecord(rec, "").RunID)
}

func TestInsertEvent(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()

	t.Run("insert new event", func(t *testing.T) {
		inserted, err := store.InsertEvent(ctx, ParamsFromRecord(testRecord("A", "ProgrammableTransaction", 100), "run-1"))
		require.NoError(t, err)
		assert.True(t, inserted)

		got, err := store.GetEvent(ctx, "A")
		require.NoError(t, err)
		assert.Equal(t, "ProgrammableTransaction", got.TransactionKind)
		assert.Equal(t, int64(100), got.TimestampMs)
		require.NotNil(t, got.RunID)
		assert.Equal(t, "run-1", *got.RunID)
		assert.WithinDuration(t, time.Now(), got.CreatedAt, 5*time.Second)
	})

	t.Run("duplicate digest is ignored", func(t *testing.T) {
		inserted, err := store.InsertEvent(ctx, ParamsFromRecord(testRecord("A", "Genesis", 200), "run-2"))
		require.NoError(t, err)
		assert.False(t, inserted)

		got, err := store.GetEvent(ctx, "A")
		require.NoError(t, err)
		assert.Equal(t, "ProgrammableTransaction", got.TransactionKind)
		assert.Equal(t, "run-1", *got.RunID)
	})

	t.Run("missing event", func(t *testing.T) {
		_, err := store.GetEvent(ctx, "missing")
		assert.True(t, errors.Is(err, pgx.ErrNoRows))
	})
}

func TestListRecentEvents(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	sink := NewSink(store.Store, "run-1")

	require.NoError(t, sink.Write(ctx, testRecord("A", "ProgrammableTransaction", 100)))
	require.NoError(t, sink.Write(ctx, testRecord("B", "ConsensusCommitPrologueV3", 200)))
	require.NoError(t, sink.Write(ctx, testRecord("C", "ProgrammableTransaction", 300)))
	// Writing a stored record again is not an error
	require.NoError(t, sink.Write(ctx, testRecord("C", "ProgrammableTransaction", 300)))

	n, err := store.CountEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	events, err := store.ListRecentEvents(ctx, ListEventsParams{Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "C", events[0].Digest)
	assert.Equal(t, "A", events[2].Digest)

	events, err = store.ListRecentEvents(ctx, ListEventsParams{TransactionKind: "ProgrammableTransaction", Limit: 1})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "C", events[0].Digest)

	events, err = store.ListRecentEvents(ctx, ListEventsParams{TransactionKind: "ProgrammableTransaction", Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "A", events[0].Digest)
}
