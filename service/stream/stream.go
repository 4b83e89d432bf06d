// Package stream defines the contract between data sources and the pipeline
// that drives them, plus a minimal sequential driver.
package stream

import (
	"context"
	"time"
)

// Record wraps one item flowing through the pipeline.
type Record[T any] struct {
	Data T
	// Timestamp is when the record was created, in milliseconds since epoch.
	Timestamp int64
}

// NewRecord wraps data stamped with the current time.
func NewRecord[T any](data T) *Record[T] {
	return &Record[T]{
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Source produces records. The driver calls Init once, then Next repeatedly,
// then Close. Next returns (nil, nil) when there is nothing new.
type Source[T any] interface {
	Init(ctx context.Context) error
	Next(ctx context.Context) (*Record[T], error)
	Close(ctx context.Context) error
}

// Sink consumes records.
type Sink[T any] interface {
	Write(ctx context.Context, rec *Record[T]) error
	Close() error
}

// SinkFunc adapts a function to the Sink interface. Close is a no-op.
type SinkFunc[T any] func(ctx context.Context, rec *Record[T]) error

// Write calls f.
func (f SinkFunc[T]) Write(ctx context.Context, rec *Record[T]) error {
	return f(ctx, rec)
}

// Close does nothing.
func (f SinkFunc[T]) Close() error {
	return nil
}

// Filter wraps src so that Next only returns records for which keep is true.
// A rejected record is reported as (nil, nil), so Run does not count it.
func Filter[T any](src Source[T], keep func(ctx context.Context, rec *Record[T]) bool) Source[T] {
	return &filterSource[T]{Source: src, keep: keep}
}

type filterSource[T any] struct {
	Source[T]
	keep func(ctx context.Context, rec *Record[T]) bool
}

func (f *filterSource[T]) Next(ctx context.Context) (*Record[T], error) {
	rec, err := f.Source.Next(ctx)
	if err != nil || rec == nil {
		return rec, err
	}
	if !f.keep(ctx, rec) {
		return nil, nil
	}
	return rec, nil
}
