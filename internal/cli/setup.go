package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/duewatch/internal/engine"
	"github.com/roach88/duewatch/internal/model"
	"github.com/roach88/duewatch/internal/notify"
	"github.com/roach88/duewatch/internal/store"
)

// runtime is an opened store and an engine over it.
type runtime struct {
	store  *store.Store
	engine *engine.Engine
	tray   *notify.Tray // nil when display.tray is off
}

// openRuntime opens the configured database and builds an engine.
// Console notifications are written to out.
func (o *RootOptions) openRuntime(out io.Writer) (*runtime, error) {
	cfg := o.Config

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	lang, err := cfg.Language()
	if err != nil {
		return nil, err
	}

	slog.Debug("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database, model.RequiredCollections...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	rt := &runtime{store: st}
	var displays notify.Multi
	if cfg.Display.Tray {
		rt.tray = notify.NewTray()
		displays = append(displays, rt.tray)
	}
	if cfg.Display.Console {
		displays = append(displays, notify.NewConsole(out))
	}

	renderer := notify.NewRenderer(
		notify.WithLocale(lang),
		notify.WithLocation(loc),
		notify.WithAssets(cfg.Notification.Icon, cfg.Notification.Badge, cfg.Notification.URL),
	)

	eng, err := engine.New(st, displays,
		engine.WithLocation(loc),
		engine.WithRenderer(renderer),
		engine.WithSyncSchedule(cfg.Sync.Schedule),
		engine.WithDefaultSyncTag(cfg.Sync.DefaultTag),
		engine.WithMaxDelay(cfg.Timers.MaxDelay),
		engine.WithLeaseTTL(cfg.Lease.TTL),
	)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to create engine", err)
	}
	rt.engine = eng
	return rt, nil
}

// Close stops the engine and closes the store.
func (rt *runtime) Close() {
	rt.engine.Stop()
	if err := rt.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// oneShot starts the engine, optionally takes the lease over, sends each
// message in order and drains the queue after each. The replies are returned
// in message order.
//
// One-shot commands never run the event loop; timers armed while they run are
// stopped on Close and picked up again by the daemon from the store.
func (rt *runtime) oneShot(ctx context.Context, takeover bool, messages ...[]byte) ([]engine.Reply, error) {
	rt.engine.Start(ctx)

	if takeover {
		r := rt.send(ctx, []byte(`{"command":"activate-now"}`))
		if !r.OK {
			return nil, fmt.Errorf("take over lease: %s", r.Error)
		}
	}

	replies := make([]engine.Reply, 0, len(messages))
	for _, raw := range messages {
		replies = append(replies, rt.send(ctx, raw))
	}
	return replies, nil
}

func (rt *runtime) send(ctx context.Context, raw []byte) engine.Reply {
	reply := rt.engine.Submit(raw)
	rt.engine.Drain(ctx)
	return <-reply
}
