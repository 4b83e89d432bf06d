package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/brojonat/suistream/service/source"
	"github.com/brojonat/suistream/service/stream"
	"github.com/itchyny/gojq"
)

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// Helper function to output JSON
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// compileFilters parses and compiles jq filters.
func compileFilters(filters []string) ([]*gojq.Code, error) {
	compiled := make([]*gojq.Code, len(filters))
	for i, filter := range filters {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		compiled[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
	}
	return compiled, nil
}

// jqInput converts an event into the generic value jq filters run against.
// When metadata holds JSON it is decoded so filters can reach into it.
func jqInput(ev source.Event) (interface{}, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}

	var metadata interface{}
	if err := json.Unmarshal([]byte(ev.Metadata), &metadata); err == nil {
		obj["metadata"] = metadata
	}
	return obj, nil
}

// matchesFilters reports whether every filter yields a truthy first result.
func matchesFilters(filters []*gojq.Code, ev source.Event) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}

	input, err := jqInput(ev)
	if err != nil {
		return false, err
	}

	for _, code := range filters {
		iter := code.Run(input)
		v, ok := iter.Next()
		if !ok {
			return false, nil
		}
		if err, isErr := v.(error); isErr {
			return false, err
		}
		if !isTruthy(v) {
			return false, nil
		}
	}
	return true, nil
}

// isTruthy checks if a jq result value is truthy.
// In jq, false and null are falsy, everything else is truthy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}

// jqFilter returns a predicate keeping events for which every filter is
// truthy. A filter that fails at runtime rejects the event.
func jqFilter(filters []*gojq.Code, logger *slog.Logger) func(context.Context, *stream.Record[source.Event]) bool {
	return func(ctx context.Context, rec *stream.Record[source.Event]) bool {
		ok, err := matchesFilters(filters, rec.Data)
		if err != nil {
			logger.DebugContext(ctx, "jq filter error", "digest", rec.Data.TransactionID, "error", err)
			return false
		}
		return ok
	}
}

// printSink writes every event to w, one per line.
func printSink(w io.Writer, jsonOutput bool) stream.SinkFunc[source.Event] {
	return func(ctx context.Context, rec *stream.Record[source.Event]) error {
		return printEvent(w, rec.Data, jsonOutput)
	}
}

func printEvent(w io.Writer, ev source.Event, jsonOutput bool) error {
	if jsonOutput {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	_, err := fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", ev.Timestamp, ev.TransactionID, ev.TransactionKind, ev.Sender)
	return err
}
