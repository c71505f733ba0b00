package processing

import (
	"context"
	"log/slog"
	"runtime"
	"sort"

	"golang.org/x/sync/semaphore"

	"hubward/internal/logging"
)

// Registry resolves files to the highest-priority processor that accepts
// them. Parsing runs under a semaphore so concurrent candidates cannot
// exhaust memory.
type Registry struct {
	processors []Processor
	fallback   Processor
	sem        *semaphore.Weighted
	logger     *slog.Logger
}

// NewRegistry builds a registry over the given processors. The fallback is
// registered unconditionally last and its CanProcess is never consulted.
// parallelism of 0 means host parallelism.
func NewRegistry(processors []Processor, fallback Processor, parallelism int, logger *slog.Logger) *Registry {
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	if fallback == nil {
		fallback = NewFallbackProcessor()
	}
	ordered := make([]Processor, len(processors))
	copy(ordered, processors)
	// Descending priority; registration order breaks ties so resolution
	// stays deterministic.
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority() > ordered[j].Priority()
	})
	return &Registry{
		processors: ordered,
		fallback:   fallback,
		sem:        semaphore.NewWeighted(int64(parallelism)),
		logger:     logging.NewComponentLogger(logger, "processing"),
	}
}

// Resolve returns the first processor, in descending priority, whose
// CanProcess accepts the path. When none match, the fallback is returned.
func (r *Registry) Resolve(path string) Processor {
	for _, processor := range r.processors {
		if processor.CanProcess(path) {
			return processor
		}
	}
	return r.fallback
}

// Process resolves and runs the processor for path under the parse
// semaphore.
func (r *Registry) Process(ctx context.Context, path string) (Result, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return Result{}, err
	}
	defer r.sem.Release(1)

	processor := r.Resolve(path)
	r.logger.Debug("dispatching processor",
		logging.String(logging.FieldPath, path),
		logging.String("media_type", string(processor.SupportedType())),
	)
	return processor.Process(ctx, path)
}
