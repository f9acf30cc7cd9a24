package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/duewatch/internal/model"
)

// ensureActive reports whether this instance may act on triggers, claiming
// or renewing the lease as needed.
//
// The lease is held by one instance at a time. A lease not renewed within
// leaseTTL is stale and may be taken over. Taking the lease arms persisted
// scheduled notifications that have no local timer.
func (e *Engine) ensureActive(ctx context.Context) (bool, error) {
	lease, ok, err := e.readLease(ctx)
	if err != nil {
		return false, err
	}

	now := e.clock.Now()
	switch {
	case ok && lease.Instance == e.instance:
		lease.RenewedMs = now.UnixMilli()
		if err := e.writeLease(ctx, lease); err != nil {
			return false, err
		}
		e.setActive(true)
		return true, nil

	case ok && now.Sub(time.UnixMilli(lease.RenewedMs)) < e.leaseTTL:
		if e.setActive(false) {
			slog.Info("instance waiting", "instance", e.instance, "holder", lease.Instance)
		}
		return false, nil

	default:
		if err := e.claim(ctx, lease.Instance); err != nil {
			return false, err
		}
		return true, nil
	}
}

// activateNow claims the lease regardless of its holder.
func (e *Engine) activateNow(ctx context.Context) error {
	lease, _, err := e.readLease(ctx)
	if err != nil {
		return err
	}
	return e.claim(ctx, lease.Instance)
}

// claim writes a fresh lease for this instance and resumes timers.
func (e *Engine) claim(ctx context.Context, previous string) error {
	now := e.clock.Now().UnixMilli()
	lease := model.Lease{Instance: e.instance, ClaimedMs: now, RenewedMs: now}
	if err := e.writeLease(ctx, lease); err != nil {
		return err
	}

	e.setActive(true)
	slog.Info("instance activated", "instance", e.instance, "previous", previous)

	if err := e.resume(ctx); err != nil {
		slog.Warn("resume scheduled notifications failed", "error", err)
	}
	return nil
}

// release gives up the lease if this instance still holds it, so a
// successor can claim it without waiting for it to go stale.
func (e *Engine) release(ctx context.Context) error {
	if !e.Active() {
		return nil
	}
	lease, ok, err := e.readLease(ctx)
	if err != nil {
		return err
	}
	e.setActive(false)
	if !ok || lease.Instance != e.instance {
		return nil
	}
	if err := e.store.Delete(ctx, model.CollectionLifecycle, model.KeyLease); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	slog.Info("lease released", "instance", e.instance)
	return nil
}

// setActive records the lease state. Returns true if it changed.
func (e *Engine) setActive(active bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	changed := e.active != active
	e.active = active
	return changed
}

func (e *Engine) readLease(ctx context.Context) (model.Lease, bool, error) {
	raw, ok, err := e.store.Get(ctx, model.CollectionLifecycle, model.KeyLease)
	if err != nil {
		return model.Lease{}, false, fmt.Errorf("read lease: %w", err)
	}
	if !ok {
		return model.Lease{}, false, nil
	}
	var lease model.Lease
	if err := json.Unmarshal(raw, &lease); err != nil {
		slog.Warn("lease unreadable, treating as vacant", "error", err)
		return model.Lease{}, false, nil
	}
	return lease, true, nil
}

func (e *Engine) writeLease(ctx context.Context, lease model.Lease) error {
	raw, err := json.Marshal(lease)
	if err != nil {
		return fmt.Errorf("encode lease: %w", err)
	}
	if err := e.store.Put(ctx, model.CollectionLifecycle, model.KeyLease, raw); err != nil {
		return fmt.Errorf("write lease: %w", err)
	}
	return nil
}
