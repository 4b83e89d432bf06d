package redis

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/brojonat/suistream/service/source"
	"github.com/brojonat/suistream/service/stream"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient connects to TEST_REDIS_URL or skips the test.
func newTestClient(t *testing.T) *redis.Client {
	t.Helper()

	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("Skipping redis test (TEST_REDIS_URL is not set)")
	}

	rdb, err := Connect(context.Background(), url)
	if err != nil {
		t.Skipf("Skipping redis test: %v", err)
	}
	return rdb
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), "http://localhost:6379")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse url")
}

func TestStreamSink(t *testing.T) {
	rdb := newTestClient(t)
	ctx := context.Background()
	key := fmt.Sprintf("suistream:test:%d", time.Now().UnixNano())
	defer rdb.Del(ctx, key)

	sink := NewStreamSink(rdb, key, 2, "run-1", slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer sink.Close()

	for _, digest := range []string{"A", "B", "C"} {
		rec := stream.NewRecord(source.Event{
			TransactionID:   digest,
			TransactionKind: "ProgrammableTransaction",
			Sender:          source.Unknown,
			Metadata:        source.Unknown,
		})
		require.NoError(t, sink.Write(ctx, rec))
	}

	entries, err := sink.Recent(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "C", entries[0].Event.TransactionID)
	assert.Equal(t, "run-1", entries[0].RunID)
	assert.Equal(t, "ProgrammableTransaction", entries[0].Event.TransactionKind)

	// Approximate trimming never removes entries below the limit
	n, err := rdb.XLen(ctx, key).Result()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(2))
}

func TestReadRecent_MissingStream(t *testing.T) {
	rdb := newTestClient(t)
	defer rdb.Close()

	entries, err := ReadRecent(context.Background(), rdb, "suistream:test:missing", 5)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
