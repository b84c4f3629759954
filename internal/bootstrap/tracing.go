package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/peopleops/hrportal/config"
	"github.com/peopleops/hrportal/internal/observability/tracing"
)

// BuildTracing creates the tracer provider selected by cfg. The result is
// never nil on success; callers must Shutdown it.
func BuildTracing(ctx context.Context, cfg config.TracingConfig, logger *slog.Logger) (*tracing.Provider, error) {
	p, err := tracing.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	return p, nil
}
