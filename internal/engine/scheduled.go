package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/roach88/duewatch/internal/duedate"
	"github.com/roach88/duewatch/internal/model"
	"github.com/roach88/duewatch/internal/notify"
)

// ScheduleResult is returned by the schedule-notification command.
type ScheduleResult struct {
	ID      string        `json:"id"`
	FireAt  time.Time     `json:"fireAt"`
	Delay   time.Duration `json:"delayNs"`
	Capped  bool          `json:"capped"`
	Replace bool          `json:"replaced"`
}

// scheduleNotification persists a record for m and arms its timer.
// Scheduling an existing id overwrites the record and stops its timer.
func (e *Engine) scheduleNotification(ctx context.Context, m ScheduleNotification) (ScheduleResult, error) {
	if math.IsNaN(m.FechaEnvio) || math.IsInf(m.FechaEnvio, 0) {
		return ScheduleResult{}, fmt.Errorf("fechaEnvio is not a finite number")
	}

	_, existed, err := e.store.Get(ctx, model.CollectionPending, m.ID)
	if err != nil {
		return ScheduleResult{}, fmt.Errorf("read scheduled notification %s: %w", m.ID, err)
	}

	rec := model.ScheduledNotification{
		ID:        m.ID,
		Payload:   m.Datos,
		FireAtMs:  int64(m.FechaEnvio),
		CreatedMs: e.clock.Now().UnixMilli(),
	}
	if err := e.putRecord(ctx, rec); err != nil {
		return ScheduleResult{}, err
	}

	delay, capped := e.arm(rec)
	slog.Info("notification scheduled",
		"id", rec.ID,
		"fire_at", rec.FireAt().In(e.loc).Format(time.RFC3339),
		"delay", delay.String(),
		"capped", capped,
		"replaced", existed,
	)

	return ScheduleResult{
		ID:      rec.ID,
		FireAt:  rec.FireAt().In(e.loc),
		Delay:   delay,
		Capped:  capped,
		Replace: existed,
	}, nil
}

// cancelNotifications deletes every scheduled record whose key contains tag
// and stops the matching timers. Returns the removed ids, sorted.
func (e *Engine) cancelNotifications(ctx context.Context, tag string) ([]string, error) {
	keys, err := e.store.ListKeys(ctx, model.CollectionPending)
	if err != nil {
		return nil, fmt.Errorf("list scheduled notifications: %w", err)
	}

	removed := []string{}
	for _, key := range keys {
		if !strings.Contains(key, tag) {
			continue
		}
		if err := e.store.Delete(ctx, model.CollectionPending, key); err != nil {
			return removed, fmt.Errorf("delete scheduled notification %s: %w", key, err)
		}
		e.disarm(key)
		removed = append(removed, key)
	}

	slog.Info("scheduled notifications cancelled", "tag", tag, "count", len(removed))
	return removed, nil
}

// arm starts the timer for rec, replacing any existing one.
//
// The wait is clamp(fireAt - now, 0, maxDelay). Returns the wait and whether
// it was capped.
func (e *Engine) arm(rec model.ScheduledNotification) (time.Duration, bool) {
	delay := rec.FireAt().Sub(e.clock.Now())
	capped := false
	if delay < 0 {
		delay = 0
	}
	if delay > e.maxDelay {
		delay = e.maxDelay
		capped = true
	}

	id := rec.ID
	t := e.clock.AfterFunc(delay, func() {
		e.queue.Enqueue(Event{Kind: EventTimer, ID: id})
	})

	e.mu.Lock()
	if prev, ok := e.timers[id]; ok {
		prev.Stop()
	}
	e.timers[id] = t
	e.mu.Unlock()

	return delay, capped
}

// disarm stops and forgets the timer for id, if any.
func (e *Engine) disarm(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.timers[id]; ok {
		t.Stop()
		delete(e.timers, id)
	}
}

// Armed returns whether a local timer is armed for id.
func (e *Engine) Armed(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.timers[id]
	return ok
}

// fire handles a timer for id.
//
// The persisted record is the authority: absent means cancelled; a target
// time still in the future re-arms; otherwise the notification is displayed
// and the record deleted.
func (e *Engine) fire(ctx context.Context, id string) {
	// The fired timer stays registered through the lease check so a claim
	// there does not re-arm this record.
	active, err := e.ensureActive(ctx)

	e.mu.Lock()
	delete(e.timers, id)
	e.mu.Unlock()

	if err != nil {
		slog.Error("timer skipped: lease check failed", "id", id, "error", err)
		return
	}
	if !active {
		slog.Debug("timer skipped: instance waiting", "id", id)
		return
	}

	rec, ok, err := e.getRecord(ctx, id)
	if err != nil {
		slog.Error("timer skipped: read scheduled notification", "id", id, "error", err)
		return
	}
	if !ok {
		slog.Info("timer fired for cancelled notification", "id", id)
		return
	}

	now := e.clock.Now()
	if now.Before(rec.FireAt()) {
		rec.Rearms++
		if err := e.putRecord(ctx, rec); err != nil {
			slog.Error("re-arm failed", "id", id, "error", err)
			return
		}
		delay, _ := e.arm(rec)
		slog.Info("timer fired early, re-armed",
			"id", id,
			"remaining", rec.FireAt().Sub(now).String(),
			"delay", delay.String(),
			"rearms", rec.Rearms,
		)
		return
	}

	n := e.renderScheduled(rec)
	if err := e.show(ctx, n); err != nil {
		slog.Error("scheduled notification display failed", "id", id, "tag", n.Tag, "error", err)
		return
	}
	if err := e.store.Delete(ctx, model.CollectionPending, id); err != nil {
		slog.Error("delete delivered notification failed", "id", id, "error", err)
		return
	}
	slog.Info("scheduled notification displayed", "id", id, "tag", n.Tag)
}

// renderScheduled builds the notification for a record's payload. A payload
// that cannot be read as a due item yields the fallback notification.
func (e *Engine) renderScheduled(rec model.ScheduledNotification) notify.Notification {
	var item model.DueItem
	if err := json.Unmarshal(rec.Payload, &item); err != nil || item.Name == "" {
		slog.Warn("scheduled payload malformed, using fallback", "id", rec.ID, "error", err)
		return e.renderer.Fallback(rec.ID)
	}
	if item.ID == "" {
		item.ID = rec.ID
	}

	days := 0
	if due, err := item.DueOn(e.loc); err == nil {
		days = max(duedate.DaysUntilDue(due, e.now()), 0)
	}
	return e.renderer.Build(item, days)
}

// resume arms a timer for every persisted record that has none.
func (e *Engine) resume(ctx context.Context) error {
	keys, err := e.store.ListKeys(ctx, model.CollectionPending)
	if err != nil {
		return fmt.Errorf("list scheduled notifications: %w", err)
	}

	armed := 0
	for _, key := range keys {
		if e.Armed(key) {
			continue
		}
		rec, ok, err := e.getRecord(ctx, key)
		if err != nil {
			slog.Warn("scheduled notification unreadable, skipped", "id", key, "error", err)
			continue
		}
		if !ok {
			continue
		}
		e.arm(rec)
		armed++
	}

	if armed > 0 {
		slog.Info("scheduled notifications resumed", "count", armed)
	}
	return nil
}

func (e *Engine) getRecord(ctx context.Context, id string) (model.ScheduledNotification, bool, error) {
	raw, ok, err := e.store.Get(ctx, model.CollectionPending, id)
	if err != nil || !ok {
		return model.ScheduledNotification{}, ok, err
	}
	var rec model.ScheduledNotification
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.ScheduledNotification{}, false, fmt.Errorf("decode scheduled notification %s: %w", id, err)
	}
	if rec.ID == "" {
		rec.ID = id
	}
	return rec, true, nil
}

func (e *Engine) putRecord(ctx context.Context, rec model.ScheduledNotification) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode scheduled notification %s: %w", rec.ID, err)
	}
	if err := e.store.Put(ctx, model.CollectionPending, rec.ID, raw); err != nil {
		return fmt.Errorf("save scheduled notification %s: %w", rec.ID, err)
	}
	return nil
}
