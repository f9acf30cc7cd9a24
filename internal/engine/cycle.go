package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/roach88/duewatch/internal/duedate"
	"github.com/roach88/duewatch/internal/model"
	"github.com/roach88/duewatch/internal/settings"
)

// CycleState is a state of the evaluation cycle.
type CycleState string

const (
	StateIdle        CycleState = "idle"
	StateLoadingData CycleState = "loading-data"
	StateEvaluating  CycleState = "evaluating"
	StateNotifying   CycleState = "notifying"
)

// Trigger names what started a cycle.
type Trigger string

const (
	TriggerPeriodic Trigger = "periodic"
	TriggerManual   Trigger = "manual"
)

// Abort reasons recorded in CycleReport.Aborted.
const (
	AbortStoreUnavailable = "store unavailable"
	AbortNoDueItems       = "no due items"
	AbortPushDisabled     = "push notifications disabled"
)

// CycleReport describes one evaluation cycle.
type CycleReport struct {
	Trigger Trigger      `json:"trigger"`
	Tag     string       `json:"tag,omitempty"`
	At      time.Time    `json:"at"`
	States  []CycleState `json:"states"`
	Aborted string       `json:"aborted,omitempty"`

	ConfigSource settings.Source `json:"configSource,omitempty"`
	Items        int             `json:"items"`
	Qualifying   int             `json:"qualifying"`
	Notified     []string        `json:"notified,omitempty"`
	Failed       []string        `json:"failed,omitempty"`
	Skipped      []string        `json:"skipped,omitempty"`
}

func (r *CycleReport) enter(s CycleState) {
	r.States = append(r.States, s)
}

// runCycle runs idle → loading-data → evaluating → notifying → idle.
//
// A loading failure aborts the cycle with a log; no retry is scheduled.
// Display failures are isolated per item.
func (e *Engine) runCycle(ctx context.Context, trigger Trigger) CycleReport {
	return e.runCycleTagged(ctx, trigger, "")
}

func (e *Engine) runCycleTagged(ctx context.Context, trigger Trigger, tag string) (report CycleReport) {
	now := e.now()
	report = CycleReport{Trigger: trigger, Tag: tag, At: now}
	defer func() {
		report.enter(StateIdle)
		slog.Info("cycle finished",
			"trigger", string(trigger),
			"tag", tag,
			"aborted", report.Aborted,
			"items", report.Items,
			"qualifying", report.Qualifying,
			"notified", len(report.Notified),
			"failed", len(report.Failed),
		)
	}()

	report.enter(StateLoadingData)
	items, err := e.loadDueItems(ctx)
	if err != nil {
		slog.Error("cycle aborted: load due items", "error", err)
		report.Aborted = AbortStoreUnavailable
		return report
	}
	report.Items = len(items)
	if len(items) == 0 {
		slog.Info("cycle aborted: no due items cached")
		report.Aborted = AbortNoDueItems
		return report
	}

	cfg, source, err := e.settings.Resolve(ctx)
	if err != nil {
		slog.Error("cycle aborted: resolve configuration", "error", err)
		report.Aborted = AbortStoreUnavailable
		return report
	}
	report.ConfigSource = source

	report.enter(StateEvaluating)
	qualifying, skipped := duedate.Select(items, cfg, now)
	for _, s := range skipped {
		slog.Warn("due item skipped", "id", s.Item.ID, "reason", s.Reason)
		report.Skipped = append(report.Skipped, s.Item.ID)
	}
	report.Qualifying = len(qualifying)
	slog.Debug("due items evaluated",
		"items", len(items),
		"qualifying", len(qualifying),
		"hour", cfg.Hour,
		"days_advance", cfg.DaysAdvance,
	)

	if !cfg.PushEnabled {
		report.Aborted = AbortPushDisabled
		return report
	}

	report.enter(StateNotifying)
	for _, q := range qualifying {
		n := e.renderer.Build(q.Item, q.Days)
		if err := e.show(ctx, n); err != nil {
			slog.Error("notification display failed", "tag", n.Tag, "error", err)
			report.Failed = append(report.Failed, n.Tag)
			continue
		}
		slog.Info("notification displayed", "tag", n.Tag, "days", q.Days)
		report.Notified = append(report.Notified, n.Tag)
	}
	return report
}

// loadDueItems reads the cached due items.
//
// The aggregate record under key "all" wins when present and readable;
// otherwise every record in the collection is read as one item. Unreadable
// records are logged and skipped.
func (e *Engine) loadDueItems(ctx context.Context) ([]model.DueItem, error) {
	raw, ok, err := e.store.Get(ctx, model.CollectionDueItems, model.KeyAllItems)
	if err != nil {
		return nil, err
	}
	if ok {
		var items []model.DueItem
		err := json.Unmarshal(raw, &items)
		if err == nil {
			return items, nil
		}
		slog.Warn("aggregate due items unreadable, reading records", "error", err)
	}

	keys, err := e.store.ListKeys(ctx, model.CollectionDueItems)
	if err != nil {
		return nil, err
	}

	var items []model.DueItem
	for _, key := range keys {
		if key == model.KeyAllItems {
			continue
		}
		raw, ok, err := e.store.Get(ctx, model.CollectionDueItems, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		var item model.DueItem
		if err := json.Unmarshal(raw, &item); err != nil {
			slog.Warn("due item unreadable", "key", key, "error", err)
			continue
		}
		if item.ID == "" {
			item.ID = key
		}
		items = append(items, item)
	}
	return items, nil
}

// handleSync runs a periodic cycle for tag. Persisted scheduled records
// without a local timer are armed first.
func (e *Engine) handleSync(ctx context.Context, tag string) {
	active, err := e.ensureActive(ctx)
	if err != nil {
		slog.Error("periodic sync skipped: lease check failed", "tag", tag, "error", err)
		return
	}
	if !active {
		slog.Debug("periodic sync skipped: instance waiting", "tag", tag)
		return
	}

	if err := e.resume(ctx); err != nil {
		slog.Warn("resume scheduled notifications failed", "error", err)
	}
	e.runCycleTagged(ctx, TriggerPeriodic, tag)
}
