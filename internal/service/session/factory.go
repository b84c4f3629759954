package session

import (
	"log/slog"

	"github.com/peopleops/hrportal/internal/observability/metrics"
	"github.com/peopleops/hrportal/internal/ports"
)

// Factory builds Contexts that share one Resolver, e.g. one per HTTP request.
type Factory struct {
	Resolver *Resolver
	Logger   *slog.Logger
	Metrics  metrics.Sink
}

// New returns a Context bound to store.
func (f Factory) New(store ports.TokenStore) *Context {
	return NewContext(ContextOptions{
		Store:    store,
		Resolver: f.Resolver,
		Logger:   f.Logger,
		Metrics:  f.Metrics,
	})
}
