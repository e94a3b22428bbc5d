package observability

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// FlushTelemetry flushes pending spans and log buffers before process exit.
// Prometheus is pull-based, so metrics need no flush. Call during graceful
// shutdown after in-flight work has drained.
func FlushTelemetry(ctx context.Context, logger *zap.Logger, shutdownTracing ShutdownFunc) error {
	var errs []error
	if shutdownTracing != nil {
		if err := shutdownTracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush traces: %w", err))
		}
	}
	if logger != nil {
		if err := logger.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("flush logs: %w", err))
		}
	}
	return errors.Join(errs...)
}
