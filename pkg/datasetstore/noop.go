package datasetstore

import (
	"context"
	"log/slog"
	"time"
)

// NoopEventSink discards all lifecycle events.
type NoopEventSink struct{}

// NewNoopEventSink creates an event sink that does nothing.
func NewNoopEventSink() *NoopEventSink { return &NoopEventSink{} }

func (s *NoopEventSink) StorageStarted(ctx context.Context, name string) error { return nil }
func (s *NoopEventSink) StorageCompleted(ctx context.Context, name string, result *StoreResult) error {
	return nil
}
func (s *NoopEventSink) StorageFailed(ctx context.Context, name string, opErr error) error {
	return nil
}
func (s *NoopEventSink) RetrievalStarted(ctx context.Context, name string) error { return nil }
func (s *NoopEventSink) RetrievalCompleted(ctx context.Context, name string, elapsed time.Duration, paths []string) error {
	return nil
}
func (s *NoopEventSink) RetrievalFailed(ctx context.Context, name string, opErr error) error {
	return nil
}
func (s *NoopEventSink) DeletionStarted(ctx context.Context, name string) error { return nil }
func (s *NoopEventSink) DeletionCompleted(ctx context.Context, name string, elapsed time.Duration, paths []string) error {
	return nil
}
func (s *NoopEventSink) DeletionFailed(ctx context.Context, name string, opErr error) error {
	return nil
}

// LogEventSink writes lifecycle events to a structured logger.
type LogEventSink struct {
	logger *slog.Logger
}

// NewLogEventSink creates an event sink backed by logger. A nil logger
// falls back to slog.Default().
func NewLogEventSink(logger *slog.Logger) *LogEventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEventSink{logger: logger}
}

func (s *LogEventSink) StorageStarted(ctx context.Context, name string) error {
	s.logger.InfoContext(ctx, "dataset_storage_started", "dataset", name)
	return nil
}

func (s *LogEventSink) StorageCompleted(ctx context.Context, name string, result *StoreResult) error {
	s.logger.InfoContext(ctx, "dataset_storage_completed",
		"dataset", name, "version", result.Version, "size", result.Size, "elapsed", result.Elapsed)
	return nil
}

func (s *LogEventSink) StorageFailed(ctx context.Context, name string, opErr error) error {
	s.logger.ErrorContext(ctx, "dataset_storage_failed", "dataset", name, "error", opErr)
	return nil
}

func (s *LogEventSink) RetrievalStarted(ctx context.Context, name string) error {
	s.logger.InfoContext(ctx, "dataset_retrieval_started", "dataset", name)
	return nil
}

func (s *LogEventSink) RetrievalCompleted(ctx context.Context, name string, elapsed time.Duration, paths []string) error {
	s.logger.InfoContext(ctx, "dataset_retrieval_completed",
		"dataset", name, "elapsed", elapsed, "files", len(paths))
	return nil
}

func (s *LogEventSink) RetrievalFailed(ctx context.Context, name string, opErr error) error {
	s.logger.ErrorContext(ctx, "dataset_retrieval_failed", "dataset", name, "error", opErr)
	return nil
}

func (s *LogEventSink) DeletionStarted(ctx context.Context, name string) error {
	s.logger.InfoContext(ctx, "dataset_deletion_started", "dataset", name)
	return nil
}

func (s *LogEventSink) DeletionCompleted(ctx context.Context, name string, elapsed time.Duration, paths []string) error {
	s.logger.InfoContext(ctx, "dataset_deletion_completed",
		"dataset", name, "elapsed", elapsed, "files", len(paths))
	return nil
}

func (s *LogEventSink) DeletionFailed(ctx context.Context, name string, opErr error) error {
	s.logger.ErrorContext(ctx, "dataset_deletion_failed", "dataset", name, "error", opErr)
	return nil
}
