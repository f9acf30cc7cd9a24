package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/roach88/duewatch/internal/clock"
	"github.com/roach88/duewatch/internal/notify"
	"github.com/roach88/duewatch/internal/settings"
)

// Store is the persistent store as seen by the engine.
// Implemented by *store.Store.
type Store interface {
	Get(ctx context.Context, collection, key string) ([]byte, bool, error)
	Put(ctx context.Context, collection, key string, value []byte) error
	Delete(ctx context.Context, collection, key string) error
	ListKeys(ctx context.Context, collection string) ([]string, error)
}

// Defaults for engine parameters.
const (
	// DefaultMaxDelay caps a single timer wait. Longer waits re-arm.
	DefaultMaxDelay = 24 * time.Hour

	// DefaultLeaseTTL is how long a lease stays fresh without renewal.
	DefaultLeaseTTL = 15 * time.Minute

	// DefaultSyncSchedule runs periodic checks every five minutes.
	DefaultSyncSchedule = "@every 5m"
)

// Engine is the background notification engine.
//
// All triggers (inbound messages, push payloads, timer fires, periodic syncs)
// are enqueued as events and processed one at a time by the Run loop, or by
// Drain when no loop is running.
//
// Thread-safety model:
//   - Post(), Push(), Submit(), TriggerSync(): safe from any goroutine
//   - Run() / Drain(): must be called from exactly one goroutine
//   - Stop(): safe from any goroutine, idempotent
type Engine struct {
	store    Store
	clock    clock.Clock
	loc      *time.Location
	renderer *notify.Renderer
	display  notify.Displayer
	settings *settings.Reconciler
	decoder  *Decoder
	queue    *eventQueue
	cron     *cron.Cron
	ids      IDGenerator

	instance     string
	syncSchedule string
	defaultTag   string
	maxDelay     time.Duration
	leaseTTL     time.Duration

	// mu guards timers, syncs and active. Timer callbacks and Stop run on
	// other goroutines.
	mu     sync.Mutex
	timers map[string]clock.Timer
	syncs  map[string]cron.EntryID
	active bool

	heartbeat cron.EntryID
	started   bool
	stopOnce  sync.Once
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source. Default: clock.Real.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLocation sets the time zone used for due dates and the notification
// hour. Default: time.Local.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithRenderer sets the notification renderer.
func WithRenderer(r *notify.Renderer) Option {
	return func(e *Engine) {
		e.renderer = r
	}
}

// WithIDGenerator sets the instance id source. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithSyncSchedule sets the cron schedule for periodic sync triggers.
//
// Default: "@every 5m" (DefaultSyncSchedule)
func WithSyncSchedule(spec string) Option {
	return func(e *Engine) {
		e.syncSchedule = spec
	}
}

// WithDefaultSyncTag registers a sync tag on Start without waiting for the
// foreground app to send schedule-sync.
func WithDefaultSyncTag(tag string) Option {
	return func(e *Engine) {
		e.defaultTag = tag
	}
}

// WithMaxDelay caps a single timer wait.
//
// Default: 24h (DefaultMaxDelay)
func WithMaxDelay(d time.Duration) Option {
	return func(e *Engine) {
		e.maxDelay = d
	}
}

// WithLeaseTTL sets the instance lease freshness window.
//
// Default: 15m (DefaultLeaseTTL)
func WithLeaseTTL(d time.Duration) Option {
	return func(e *Engine) {
		e.leaseTTL = d
	}
}

// New creates an Engine over store, showing notifications on display.
func New(s Store, display notify.Displayer, opts ...Option) (*Engine, error) {
	decoder, err := NewDecoder()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		store:        s,
		clock:        clock.Real{},
		loc:          time.Local,
		display:      display,
		settings:     settings.New(s),
		decoder:      decoder,
		queue:        newEventQueue(),
		ids:          UUIDv7Generator{},
		syncSchedule: DefaultSyncSchedule,
		maxDelay:     DefaultMaxDelay,
		leaseTTL:     DefaultLeaseTTL,
		timers:       make(map[string]clock.Timer),
		syncs:        make(map[string]cron.EntryID),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.renderer == nil {
		e.renderer = notify.NewRenderer(notify.WithLocation(e.loc))
	}
	if e.maxDelay <= 0 {
		return nil, fmt.Errorf("max delay must be positive, got %s", e.maxDelay)
	}
	if e.leaseTTL <= 0 {
		return nil, fmt.Errorf("lease ttl must be positive, got %s", e.leaseTTL)
	}
	if _, err := cron.ParseStandard(e.syncSchedule); err != nil {
		return nil, fmt.Errorf("invalid sync schedule %q: %w", e.syncSchedule, err)
	}

	e.cron = cron.New(cron.WithLocation(e.loc))
	e.instance = e.ids.Generate()

	return e, nil
}

// Instance returns this engine's instance id.
func (e *Engine) Instance() string {
	return e.instance
}

// Active reports whether this instance held the lease at its last check.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Start activates the engine: claims the lease when it is vacant or stale,
// arms timers for persisted scheduled notifications, re-registers persisted
// sync tags and starts the cron scheduler.
//
// Call Start once before Run. A store failure is logged and the engine starts
// anyway; the next trigger retries.
func (e *Engine) Start(ctx context.Context) {
	if e.started {
		return
	}
	e.started = true

	slog.Info("engine starting", "instance", e.instance, "location", e.loc.String())

	if _, err := e.ensureActive(ctx); err != nil {
		slog.Error("lease check failed", "error", err)
	}

	if e.defaultTag != "" {
		if err := e.registerSync(ctx, e.defaultTag); err != nil {
			slog.Error("default sync registration failed", "tag", e.defaultTag, "error", err)
		}
	}
	if err := e.restoreSyncs(ctx); err != nil {
		slog.Error("restore sync registrations failed", "error", err)
	}

	e.heartbeat = e.cron.Schedule(cron.Every(e.leaseTTL/3), cron.FuncJob(func() {
		e.queue.Enqueue(Event{Kind: EventHeartbeat})
	}))
	e.cron.Start()
}

// Run starts the single-writer event loop.
// Blocks until context is cancelled or Stop() is called.
//
// ERROR HANDLING: every event runs fail-isolated. Errors and panics are
// logged and processing continues.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine running", "instance", e.instance)

	for {
		event, ok := e.queue.TryDequeue()
		if ok {
			e.process(ctx, event)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.Stop()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel is closed by Stop; an empty closed queue ends the loop.
			if e.queue.Closed() && e.queue.Len() == 0 {
				slog.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Drain processes every queued event on the calling goroutine and returns
// when the queue is empty. Events enqueued while draining are processed too.
//
// Used by one-shot CLI commands and tests in place of Run.
func (e *Engine) Drain(ctx context.Context) int {
	n := 0
	for {
		event, ok := e.queue.TryDequeue()
		if !ok {
			return n
		}
		e.process(ctx, event)
		n++
	}
}

// Stop shuts the engine down: closes the queue, stops cron and every armed
// timer, and releases the lease. Persisted records are kept and resumed by
// the next Start.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.queue.Close()
		<-e.cron.Stop().Done()

		e.mu.Lock()
		for id, t := range e.timers {
			t.Stop()
			delete(e.timers, id)
		}
		e.mu.Unlock()

		if err := e.release(context.Background()); err != nil {
			slog.Warn("lease release failed", "error", err)
		}
	})
}

// Submit enqueues a raw inbound message and returns a channel that receives
// its reply once processed.
//
// If the engine is stopped the channel already holds a failed reply.
func (e *Engine) Submit(raw []byte) <-chan Reply {
	reply := make(chan Reply, 1)
	if !e.queue.Enqueue(Event{Kind: EventMessage, Payload: raw, reply: reply}) {
		reply <- Reply{OK: false, Error: "engine stopped"}
	}
	return reply
}

// Post submits a raw inbound message and waits for its reply.
// Requires a running Run loop.
func (e *Engine) Post(ctx context.Context, raw []byte) (Reply, error) {
	return wait(ctx, e.Submit(raw))
}

// SubmitPush enqueues a push payload for display.
func (e *Engine) SubmitPush(raw []byte) <-chan Reply {
	reply := make(chan Reply, 1)
	if !e.queue.Enqueue(Event{Kind: EventPush, Payload: raw, reply: reply}) {
		reply <- Reply{Command: "push", OK: false, Error: "engine stopped"}
	}
	return reply
}

// Push submits a push payload and waits until it has been displayed.
// Requires a running Run loop.
func (e *Engine) Push(ctx context.Context, raw []byte) (Reply, error) {
	return wait(ctx, e.SubmitPush(raw))
}

// TriggerSync enqueues a periodic sync trigger for tag, as the cron job does.
func (e *Engine) TriggerSync(tag string) bool {
	return e.queue.Enqueue(Event{Kind: EventSync, Tag: tag})
}

// QueueLen returns the current number of pending events.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

func wait(ctx context.Context, reply <-chan Reply) (Reply, error) {
	select {
	case r := <-reply:
		return r, nil
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

// process routes an event to its handler.
// Called only from the Run or Drain goroutine.
func (e *Engine) process(ctx context.Context, event Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event processing panicked",
				"kind", event.Kind.String(),
				"panic", r,
			)
			if event.reply != nil {
				event.reply <- Reply{OK: false, Error: fmt.Sprintf("panic: %v", r)}
			}
		}
	}()

	switch event.Kind {
	case EventMessage:
		event.reply <- e.handleMessage(ctx, event.Payload)

	case EventPush:
		event.reply <- e.handlePush(ctx, event.Payload)

	case EventTimer:
		e.fire(ctx, event.ID)

	case EventSync:
		e.handleSync(ctx, event.Tag)

	case EventHeartbeat:
		if _, err := e.ensureActive(ctx); err != nil {
			slog.Warn("lease renewal failed", "error", err)
		}

	default:
		slog.Error("unknown event kind", "kind", int(event.Kind))
	}
}

// handlePush displays an external push payload.
func (e *Engine) handlePush(ctx context.Context, raw []byte) Reply {
	active, err := e.ensureActive(ctx)
	if err != nil {
		slog.Warn("lease check failed, treating as active", "error", err)
		active = true
	}
	if !active {
		return failure("push", notActive("push"))
	}

	n := e.renderer.FromPush(raw)
	if err := e.show(ctx, n); err != nil {
		slog.Error("push notification display failed", "tag", n.Tag, "error", err)
		return failure("push", handlerFailed("push", err))
	}
	slog.Info("push notification displayed", "tag", n.Tag)
	return Reply{Command: "push", OK: true, Data: n}
}

// show displays n, converting a displayer panic into an error.
func (e *Engine) show(ctx context.Context, n notify.Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("display panicked: %v", r)
		}
	}()
	return e.display.Show(ctx, n)
}

func (e *Engine) now() time.Time {
	return e.clock.Now().In(e.loc)
}
