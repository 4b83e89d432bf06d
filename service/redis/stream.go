package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/brojonat/suistream/service/source"
	"github.com/brojonat/suistream/service/stream"
	"github.com/redis/go-redis/v9"
)

// DefaultMaxLen is the approximate stream length kept when none is configured.
const DefaultMaxLen int64 = 10000

// Entry is one event read back from the stream.
type Entry struct {
	ID    string
	RunID string
	Event source.Event
}

// StreamSink appends each record to a Redis stream with XADD, trimming the
// stream to an approximate maximum length.
type StreamSink struct {
	rdb    *redis.Client
	stream string
	maxLen int64
	runID  string
	logger *slog.Logger
}

var _ stream.Sink[source.Event] = (*StreamSink)(nil)

// NewStreamSink returns a sink appending to key. A maxLen of zero disables trimming.
func NewStreamSink(rdb *redis.Client, key string, maxLen int64, runID string, logger *slog.Logger) *StreamSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamSink{
		rdb:    rdb,
		stream: key,
		maxLen: maxLen,
		runID:  runID,
		logger: logger.With("component", "redis_stream", "stream", key),
	}
}

// Write appends the record. The entry carries the digest, kind and run ID as
// plain fields and the full event as JSON under "payload".
func (s *StreamSink) Write(ctx context.Context, rec *stream.Record[source.Event]) error {
	payload, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"digest":  rec.Data.TransactionID,
			"kind":    rec.Data.TransactionKind,
			"run_id":  s.runID,
			"payload": payload,
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	id, err := s.rdb.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("redis: stream append %s: %w", s.stream, err)
	}

	s.logger.DebugContext(ctx, "appended sui event", "id", id, "digest", rec.Data.TransactionID)
	return nil
}

// Recent returns up to count entries, newest first.
func (s *StreamSink) Recent(ctx context.Context, count int64) ([]Entry, error) {
	return ReadRecent(ctx, s.rdb, s.stream, count)
}

// Close closes the Redis client.
func (s *StreamSink) Close() error {
	return s.rdb.Close()
}

// ReadRecent returns up to count entries of the stream at key, newest first.
// Entries without a decodable payload are skipped.
func ReadRecent(ctx context.Context, rdb *redis.Client, key string, count int64) ([]Entry, error) {
	msgs, err := rdb.XRevRangeN(ctx, key, "+", "-", count).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: stream read %s: %w", key, err)
	}

	entries := make([]Entry, 0, len(msgs))
	for _, msg := range msgs {
		var data []byte
		switch v := msg.Values["payload"].(type) {
		case string:
			data = []byte(v)
		case []byte:
			data = v
		default:
			continue
		}

		var ev source.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		runID, _ := msg.Values["run_id"].(string)
		entries = append(entries, Entry{ID: msg.ID, RunID: runID, Event: ev})
	}
	return entries, nil
}
