// Package syncer keeps client-side views fresh: fixed-interval polling,
// immediate refetch on bus topics and a short burst of refetches after task
// changes, all bound to the caller's context.
package syncer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/govindrajpootecosoul/project-tracker/internal/eventbus"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

const (
	DefaultRequestsInterval      = 2 * time.Second
	DefaultNotificationsInterval = 5 * time.Second
)

// DefaultBurstOffsets are the extra refetches after a tasksUpdated event.
// Task-derived request writes can land slightly after the task event.
var DefaultBurstOffsets = []time.Duration{0, 500 * time.Millisecond, 1500 * time.Millisecond, 3 * time.Second}

// Source is one view kept fresh by the coordinator.
type Source struct {
	Name string
	// Interval of the background poll. Zero disables polling.
	Interval time.Duration
	// Topics that trigger an immediate refetch.
	Topics []eventbus.Topic
	// Burst makes the source part of the post-tasksUpdated burst.
	Burst bool
	Fetch func(ctx context.Context) error
}

type Option func(*Coordinator)

func WithBurstOffsets(offsets []time.Duration) Option {
	return func(c *Coordinator) {
		c.burstOffsets = append([]time.Duration(nil), offsets...)
	}
}

// WithErrorHandler receives every failed fetch. Fetch errors never stop the
// coordinator.
func WithErrorHandler(fn func(source string, err error)) Option {
	return func(c *Coordinator) { c.onError = fn }
}

type Coordinator struct {
	bus          eventbus.Bus
	logger       zerolog.Logger
	burstOffsets []time.Duration
	onError      func(source string, err error)

	mu      sync.Mutex
	sources []*runner
	running bool
}

type runner struct {
	Source
	trigger chan struct{}
}

func New(bus eventbus.Bus, logger zerolog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		bus:          bus,
		logger:       logger.With().Str("component", "sync_coordinator").Logger(),
		burstOffsets: DefaultBurstOffsets,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds a source. Sources must be registered before Run.
func (c *Coordinator) Register(src Source) error {
	if src.Fetch == nil {
		return errors.Errorf("source %q has no fetch function", src.Name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return errors.New("coordinator is already running")
	}
	c.sources = append(c.sources, &runner{Source: src, trigger: make(chan struct{}, 1)})
	return nil
}

// Refresh asks a source to refetch as soon as possible. Requests made while a
// fetch is queued collapse into it.
func (c *Coordinator) Refresh(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.sources {
		if r.Name == name {
			r.kick()
		}
	}
}

func (r *runner) kick() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Run fetches every source once, then keeps them fresh until ctx is done.
func (c *Coordinator) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return errors.New("coordinator is already running")
	}
	c.running = true
	sources := append([]*runner(nil), c.sources...)
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	bursts := make(chan struct{}, 1)
	var unsubscribe []func()
	for _, r := range sources {
		r := r
		for _, topic := range r.Topics {
			unsubscribe = append(unsubscribe, c.bus.Subscribe(topic, func(eventbus.Event) { r.kick() }))
		}
	}
	unsubscribe = append(unsubscribe, c.bus.Subscribe(eventbus.TopicTasksUpdated, func(eventbus.Event) {
		select {
		case bursts <- struct{}{}:
		default:
		}
	}))
	defer func() {
		for _, fn := range unsubscribe {
			fn()
		}
	}()

	c.logger.Info().Int("sources", len(sources)).Msg("sync coordinator started")

	var wg conc.WaitGroup
	for _, r := range sources {
		r := r
		r.kick()
		wg.Go(func() { c.loop(ctx, r) })
	}
	wg.Go(func() { c.burstLoop(ctx, sources, bursts) })
	wg.Wait()

	c.logger.Info().Msg("sync coordinator stopped")
	return ctx.Err()
}

func (c *Coordinator) loop(ctx context.Context, r *runner) {
	var tick <-chan time.Time
	if r.Interval > 0 {
		ticker := time.NewTicker(r.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
		case <-r.trigger:
		}
		c.fetch(ctx, r)
	}
}

func (c *Coordinator) fetch(ctx context.Context, r *runner) {
	if ctx.Err() != nil {
		return
	}
	err := r.Fetch(ctx)
	if err == nil || ctx.Err() != nil {
		return
	}
	c.logger.Warn().Err(err).Str("source", r.Name).Msg("sync fetch failed")
	if c.onError != nil {
		c.onError(r.Name, err)
	}
}

// burstLoop keeps a queue of pending burst deadlines. Bursts that overlap are
// merged rather than cancelled.
func (c *Coordinator) burstLoop(ctx context.Context, sources []*runner, bursts <-chan struct{}) {
	var pending []time.Time
	for {
		var (
			timer *time.Timer
			due   <-chan time.Time
		)
		if len(pending) > 0 {
			timer = time.NewTimer(time.Until(pending[0]))
			due = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-bursts:
			now := time.Now()
			for _, offset := range c.burstOffsets {
				pending = append(pending, now.Add(offset))
			}
			sort.Slice(pending, func(i, j int) bool { return pending[i].Before(pending[j]) })
		case <-due:
			now := time.Now()
			for len(pending) > 0 && !pending[0].After(now) {
				pending = pending[1:]
			}
			for _, r := range sources {
				if r.Burst {
					r.kick()
				}
			}
		}
		if timer != nil {
			timer.Stop()
		}
	}
}
