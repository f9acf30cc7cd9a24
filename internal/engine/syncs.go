package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/roach88/duewatch/internal/model"
)

// registerSync persists a sync registration for tag and adds its cron job.
// Registering a tag twice keeps the first registration.
func (e *Engine) registerSync(ctx context.Context, tag string) error {
	_, ok, err := e.store.Get(ctx, model.CollectionSyncRegistrations, tag)
	if err != nil {
		return fmt.Errorf("read sync registration %s: %w", tag, err)
	}
	if !ok {
		raw, err := json.Marshal(model.SyncRegistration{Tag: tag, RegisteredMs: e.clock.Now().UnixMilli()})
		if err != nil {
			return fmt.Errorf("encode sync registration %s: %w", tag, err)
		}
		if err := e.store.Put(ctx, model.CollectionSyncRegistrations, tag, raw); err != nil {
			return fmt.Errorf("save sync registration %s: %w", tag, err)
		}
	}
	return e.addSyncJob(tag)
}

// restoreSyncs adds a cron job for every persisted registration.
func (e *Engine) restoreSyncs(ctx context.Context) error {
	tags, err := e.store.ListKeys(ctx, model.CollectionSyncRegistrations)
	if err != nil {
		return fmt.Errorf("list sync registrations: %w", err)
	}
	for _, tag := range tags {
		if err := e.addSyncJob(tag); err != nil {
			return err
		}
	}
	return nil
}

// addSyncJob schedules the periodic trigger for tag. No-op if already added.
func (e *Engine) addSyncJob(tag string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.syncs[tag]; ok {
		return nil
	}
	id, err := e.cron.AddFunc(e.syncSchedule, func() {
		e.queue.Enqueue(Event{Kind: EventSync, Tag: tag})
	})
	if err != nil {
		return fmt.Errorf("schedule sync %s: %w", tag, err)
	}
	e.syncs[tag] = id
	slog.Info("sync registered", "tag", tag, "schedule", e.syncSchedule)
	return nil
}

// Syncs returns the registered sync tags, sorted.
func (e *Engine) Syncs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	tags := make([]string, 0, len(e.syncs))
	for tag := range e.syncs {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// NextSync returns when the cron job for tag next runs. Zero if tag is not
// registered or cron is not started.
func (e *Engine) NextSync(tag string) time.Time {
	e.mu.Lock()
	id, ok := e.syncs[tag]
	e.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return e.cron.Entry(id).Next
}
