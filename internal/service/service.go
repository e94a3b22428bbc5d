// Package service holds the SmartStore read paths: CSV snapshots, the
// low-stock filter, the weather proxy, review sentiment and the chatbot stub.
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kjstillabower/smartstore-copilot/internal/models"
	"github.com/kjstillabower/smartstore-copilot/internal/observability"
	"github.com/kjstillabower/smartstore-copilot/internal/reqctx"
	"github.com/kjstillabower/smartstore-copilot/internal/store"
)

// NotFoundError reports a snapshot file that does not exist. Message is the
// caller-facing text, e.g. "Inventory file not found".
type NotFoundError struct {
	Snapshot string
	Message  string
	Err      error
}

func (e *NotFoundError) Error() string { return e.Message }

func (e *NotFoundError) Unwrap() error { return e.Err }

// loggerFromContext returns the request logger, or a no-op logger.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if l := reqctx.Logger(ctx); l != nil {
		return l
	}
	return zap.NewNop()
}

// readSnapshot reads one CSV snapshot and records the outcome. A missing file
// becomes a *NotFoundError carrying notFoundMsg.
func readSnapshot(ctx context.Context, name, path, notFoundMsg string) (models.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return models.Snapshot{}, err
	}
	logger := loggerFromContext(ctx)

	snap, err := store.ReadRecords(path)
	switch {
	case errors.Is(err, store.ErrNotFound):
		observability.RecordSnapshotRead(name, "not_found", 0)
		logger.Warn("snapshot not found", zap.String("snapshot", name), zap.String("path", path))
		return models.Snapshot{}, &NotFoundError{Snapshot: name, Message: notFoundMsg, Err: err}
	case err != nil:
		observability.RecordSnapshotRead(name, "error", 0)
		logger.Error("snapshot read failed", zap.String("snapshot", name), zap.String("path", path), zap.Error(err))
		return models.Snapshot{}, fmt.Errorf("read %s snapshot: %w", name, err)
	}

	observability.RecordSnapshotRead(name, "success", snap.Skipped)
	if snap.Skipped > 0 {
		logger.Warn("skipped malformed snapshot rows",
			zap.String("snapshot", name), zap.Int("skipped", snap.Skipped), zap.Int("records", len(snap.Records)))
	}
	logger.Debug("snapshot read", zap.String("snapshot", name), zap.Int("records", len(snap.Records)))
	return snap, nil
}
