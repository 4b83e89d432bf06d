package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/brojonat/suistream/service/config"
	"github.com/brojonat/suistream/service/source"
	"github.com/brojonat/suistream/service/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvent() source.Event {
	return source.Event{
		TransactionID:   "6u2LpbDyuLqMoEqJMoA3KNnkfXBJf3pfNmGLZVFBAAAA",
		TransactionKind: "ProgrammableTransaction",
		Timestamp:       1700000000123,
		Sender:          "0x7d20dcdb2bca4f508ea9613994683eb4e76e9c4ed371169677c1be02aaf0b58e",
		Metadata:        `{"messageVersion":"v1","gasData":{"budget":"2000000"}}`,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestJQFilterMatching(t *testing.T) {
	tests := []struct {
		name        string
		event       source.Event
		jqFilters   []string
		expectMatch bool
		expectErr   bool
	}{
		{
			name:        "no filters",
			event:       sampleEvent(),
			expectMatch: true,
		},
		{
			name:        "kind match",
			event:       sampleEvent(),
			jqFilters:   []string{`.transaction_kind == "ProgrammableTransaction"`},
			expectMatch: true,
		},
		{
			name:        "kind mismatch",
			event:       sampleEvent(),
			jqFilters:   []string{`.transaction_kind == "Genesis"`},
			expectMatch: false,
		},
		{
			name:        "decoded metadata",
			event:       sampleEvent(),
			jqFilters:   []string{`.metadata.gasData.budget | tonumber > 1000000`},
			expectMatch: true,
		},
		{
			name: "metadata that is not JSON stays a string",
			event: func() source.Event {
				ev := sampleEvent()
				ev.Metadata = source.Unknown
				return ev
			}(),
			jqFilters:   []string{`.metadata == "unknown"`},
			expectMatch: true,
		},
		{
			name:        "all filters must pass",
			event:       sampleEvent(),
			jqFilters:   []string{`.timestamp > 0`, `.sender == "unknown"`},
			expectMatch: false,
		},
		{
			name:        "null result is falsy",
			event:       sampleEvent(),
			jqFilters:   []string{`.recipient`},
			expectMatch: false,
		},
		{
			name:        "empty result is no match",
			event:       sampleEvent(),
			jqFilters:   []string{`empty`},
			expectMatch: false,
		},
		{
			name:      "runtime error",
			event:     sampleEvent(),
			jqFilters: []string{`error("boom")`},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filters, err := compileFilters(tt.jqFilters)
			require.NoError(t, err)

			matched, err := matchesFilters(filters, tt.event)
			if tt.expectErr {
				assert.Error(t, err)
				assert.False(t, matched)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectMatch, matched)
		})
	}
}

func TestCompileFilters_Invalid(t *testing.T) {
	_, err := compileFilters([]string{`.transaction_kind ==`})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse jq filter")
}

func TestIsTruthy(t *testing.T) {
	assert.False(t, isTruthy(nil))
	assert.False(t, isTruthy(false))
	assert.True(t, isTruthy(true))
	assert.True(t, isTruthy(0))
	assert.True(t, isTruthy(""))
	assert.True(t, isTruthy([]interface{}{}))
}

func TestPrintSink(t *testing.T) {
	var buf bytes.Buffer
	sink := printSink(&buf, true)

	require.NoError(t, sink.Write(context.Background(), stream.NewRecord(sampleEvent())))

	var got source.Event
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &got))
	assert.Equal(t, sampleEvent(), got)
}

// sliceSource emits its events in order, then reports nothing new until ctx is done.
type sliceSource struct {
	events []source.Event
}

func (s *sliceSource) Init(ctx context.Context) error { return nil }

func (s *sliceSource) Next(ctx context.Context) (*stream.Record[source.Event], error) {
	if len(s.events) == 0 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return stream.NewRecord(ev), nil
}

func (s *sliceSource) Close(ctx context.Context) error { return nil }

func TestTail_LimitCountsPrintedEvents(t *testing.T) {
	filters, err := compileFilters([]string{`.transaction_kind == "ProgrammableTransaction"`})
	require.NoError(t, err)

	other := sampleEvent()
	other.TransactionKind = "Other"
	src := &sliceSource{events: []source.Event{other, other, other, sampleEvent(), other, sampleEvent(), sampleEvent()}}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var buf bytes.Buffer
	n, err := stream.Run(ctx, stream.RunConfig[source.Event]{
		Source: stream.Filter(stream.Source[source.Event](src), jqFilter(filters, discardLogger())),
		Sinks: []stream.NamedSink[source.Event]{
			{Name: "stdout", Sink: printSink(&buf, true)},
		},
		MaxRecords: 2,
		Logger:     discardLogger(),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		var got source.Event
		require.NoError(t, json.Unmarshal([]byte(line), &got))
		assert.Equal(t, "ProgrammableTransaction", got.TransactionKind)
	}
	assert.Len(t, src.events, 1)
}

func TestJQFilter_RuntimeErrorRejects(t *testing.T) {
	filters, err := compileFilters([]string{`error("boom")`})
	require.NoError(t, err)

	keep := jqFilter(filters, discardLogger())
	assert.False(t, keep(context.Background(), stream.NewRecord(sampleEvent())))
}

func TestPrintEvent_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printEvent(&buf, sampleEvent(), false))
	assert.Equal(t,
		"1700000000123\t6u2LpbDyuLqMoEqJMoA3KNnkfXBJf3pfNmGLZVFBAAAA\tProgrammableTransaction\t0x7d20dcdb2bca4f508ea9613994683eb4e76e9c4ed371169677c1be02aaf0b58e\n",
		buf.String(),
	)
}

func TestFormatLedgerTime(t *testing.T) {
	assert.Equal(t, "(unknown)", formatLedgerTime(0))
	assert.Equal(t, "2023-11-14T22:13:20.123Z", formatLedgerTime(1700000000123))
}

func TestBuildSinks_DefaultsToStdout(t *testing.T) {
	cfg := &config.Config{}

	sinks, err := buildSinks(context.Background(), cfg, runOptions{runID: "run-1"}, nil, discardLogger())
	require.NoError(t, err)
	require.Len(t, sinks, 1)
	assert.Equal(t, "stdout", sinks[0].Name)
}

func TestSetupLogger(t *testing.T) {
	ctx := context.Background()
	assert.True(t, setupLogger("debug").Enabled(ctx, slog.LevelDebug))
	assert.False(t, setupLogger("warn").Enabled(ctx, slog.LevelInfo))
	assert.True(t, setupLogger("bogus").Enabled(ctx, slog.LevelInfo))
	assert.False(t, setupLogger("bogus").Enabled(ctx, slog.LevelDebug))
}
