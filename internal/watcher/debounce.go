package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"hubward/internal/logging"
)

// DebounceOptions tunes the settle/probe loop.
type DebounceOptions struct {
	SettleDelay      time.Duration
	ProbeInterval    time.Duration
	MaxProbeDelay    time.Duration
	MaxProbeAttempts int
	Capacity         int
}

// DefaultDebounceOptions returns the stock tuning.
func DefaultDebounceOptions() DebounceOptions {
	return DebounceOptions{
		SettleDelay:      2 * time.Second,
		ProbeInterval:    time.Second,
		MaxProbeDelay:    30 * time.Second,
		MaxProbeAttempts: 8,
		Capacity:         512,
	}
}

func (o DebounceOptions) withDefaults() DebounceOptions {
	def := DefaultDebounceOptions()
	if o.SettleDelay <= 0 {
		o.SettleDelay = def.SettleDelay
	}
	if o.ProbeInterval <= 0 {
		o.ProbeInterval = def.ProbeInterval
	}
	if o.MaxProbeDelay <= 0 {
		o.MaxProbeDelay = def.MaxProbeDelay
	}
	if o.MaxProbeAttempts <= 0 {
		o.MaxProbeAttempts = def.MaxProbeAttempts
	}
	if o.Capacity <= 0 {
		o.Capacity = def.Capacity
	}
	return o
}

// pathState is the per-path debounce record. Every new event supersedes the
// running settle task by bumping the generation and cancelling its context.
type pathState struct {
	latest        FileEvent
	firstDetected time.Time
	generation    uint64
	cancel        context.CancelFunc
}

// Debouncer coalesces bursts of events per path, waits for the file to
// settle, probes for writer locks, and emits candidates on a bounded channel
// (send blocks when full, back-pressuring upstream). Safe for concurrent
// enqueue from many producers.
type Debouncer struct {
	opts   DebounceOptions
	logger *slog.Logger

	mu     sync.Mutex
	paths  map[string]*pathState
	closed bool

	out chan Candidate

	rootCtx    context.Context
	rootCancel context.CancelFunc
	tasks      sync.WaitGroup
}

// NewDebouncer constructs a debounce queue.
func NewDebouncer(opts DebounceOptions, logger *slog.Logger) *Debouncer {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Debouncer{
		opts:       opts,
		logger:     logging.NewComponentLogger(logger, "debounce"),
		paths:      make(map[string]*pathState),
		out:        make(chan Candidate, opts.Capacity),
		rootCtx:    ctx,
		rootCancel: cancel,
	}
}

// Candidates returns the bounded output channel. It is closed by Close.
func (d *Debouncer) Candidates() <-chan Candidate {
	return d.out
}

// Enqueue records an event and restarts the settle task for its path.
func (d *Debouncer) Enqueue(event FileEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	key := CanonicalPath(event.Path)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	state, ok := d.paths[key]
	if !ok {
		state = &pathState{firstDetected: event.OccurredAt}
		d.paths[key] = state
	}
	if state.cancel != nil {
		state.cancel()
	}
	state.latest = event
	state.generation++
	generation := state.generation
	first := state.firstDetected

	taskCtx, cancel := context.WithCancel(d.rootCtx)
	state.cancel = cancel
	d.tasks.Add(1)
	d.mu.Unlock()

	go d.settle(taskCtx, key, generation, first)
}

// Close stops all settle tasks and closes the candidate channel once the
// in-flight tasks have exited.
func (d *Debouncer) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.rootCancel()
	d.tasks.Wait()
	close(d.out)
}

func (d *Debouncer) settle(ctx context.Context, key string, generation uint64, firstDetected time.Time) {
	defer d.tasks.Done()

	timer := time.NewTimer(d.opts.SettleDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		// Superseded by a newer event, or shutting down.
		return
	case <-timer.C:
	}

	event, current := d.snapshot(key, generation)
	if !current {
		return
	}

	if event.Type == EventDeleted {
		d.emit(ctx, key, generation, Candidate{
			Path:       event.Path,
			Event:      event,
			DetectedAt: firstDetected,
			ReadyAt:    time.Now().UTC(),
		})
		return
	}

	if failed, reason := d.probe(ctx, key, generation, event.Path); failed {
		if reason == "" {
			// Superseded or cancelled mid-probe.
			return
		}
		d.emit(ctx, key, generation, Candidate{
			Path:       event.Path,
			Event:      event,
			DetectedAt: firstDetected,
			ReadyAt:    time.Now().UTC(),
			IsFailed:   true,
			Reason:     reason,
		})
		return
	}

	d.emit(ctx, key, generation, Candidate{
		Path:       event.Path,
		Event:      event,
		DetectedAt: firstDetected,
		ReadyAt:    time.Now().UTC(),
	})
}

// probe attempts a shared-read open with exponential backoff. It returns
// (true, reason) on exhaustion, (true, "") when superseded or cancelled, and
// (false, "") on success.
func (d *Debouncer) probe(ctx context.Context, key string, generation uint64, path string) (bool, string) {
	var lastErr error
	for attempt := 1; attempt <= d.opts.MaxProbeAttempts; attempt++ {
		file, err := os.Open(path)
		if err == nil {
			_ = file.Close()
			return false, ""
		}
		if os.IsNotExist(err) {
			// The file vanished between settle and probe; the Deleted
			// event will follow on its own.
			return true, ""
		}
		lastErr = err

		delay := d.opts.ProbeInterval << (attempt - 1)
		if delay > d.opts.MaxProbeDelay {
			delay = d.opts.MaxProbeDelay
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return true, ""
		case <-timer.C:
		}
		if _, current := d.snapshot(key, generation); !current {
			return true, ""
		}
	}
	return true, fmt.Sprintf("lock probe exhausted after %d attempts: %v", d.opts.MaxProbeAttempts, lastErr)
}

// snapshot returns the latest event for key and whether the caller's
// generation is still current.
func (d *Debouncer) snapshot(key string, generation uint64) (FileEvent, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	state, ok := d.paths[key]
	if !ok || state.generation != generation {
		return FileEvent{}, false
	}
	return state.latest, true
}

func (d *Debouncer) emit(ctx context.Context, key string, generation uint64, candidate Candidate) {
	// The burst is complete; the next event on this path starts a new one.
	// A newer generation keeps its state.
	d.mu.Lock()
	if state, ok := d.paths[key]; ok && state.generation == generation {
		delete(d.paths, key)
	}
	d.mu.Unlock()

	select {
	case d.out <- candidate:
		d.logger.Debug("candidate emitted",
			logging.String(logging.FieldPath, candidate.Path),
			logging.Bool("failed", candidate.IsFailed),
		)
	case <-ctx.Done():
	}
}
