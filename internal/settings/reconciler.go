// Package settings resolves the canonical notification configuration.
//
// Two independently written collections may hold configuration: the primary
// one (canonical field names) and a notification-specific one written by the
// settings screen (different field names). This package is the only place
// that knows about both shapes; every other component consumes
// model.NotificationConfig.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/roach88/duewatch/internal/duedate"
	"github.com/roach88/duewatch/internal/model"
)

// Reader is the read side of the persistent store.
type Reader interface {
	Get(ctx context.Context, collection, key string) ([]byte, bool, error)
}

// Source identifies which collection supplied the resolved configuration.
type Source string

const (
	SourcePrimary      Source = "primary"
	SourceNotification Source = "notification"
	SourceDefault      Source = "default"
)

// Reconciler resolves the effective configuration from the store.
type Reconciler struct {
	store Reader
}

// New creates a Reconciler reading from store.
func New(store Reader) *Reconciler {
	return &Reconciler{store: store}
}

// primaryShape is the canonical shape with presence tracking.
type primaryShape struct {
	DaysAdvance  *int    `json:"diasAnticipacion"`
	Hour         *string `json:"horaNotificacion"`
	EmailEnabled *bool   `json:"emailHabilitado"`
	PushEnabled  *bool   `json:"pushHabilitado"`
	Email        *string `json:"email"`
}

// notificationShape is written by the notification settings screen.
type notificationShape struct {
	DaysAdvance *int    `json:"diasAnticipacion"`
	Hour        *string `json:"horaNotificacion"`
	NotifyEmail *bool   `json:"notificacionesEmail"`
	NotifyPush  *bool   `json:"notificacionesPush"`
	Address     *string `json:"correo"`
}

// Resolve returns the effective configuration.
//
// Strict fallback chain, not a merge: a present primary configuration fully
// shadows the notification-specific one. Sub-fields missing from the winning
// source are filled from the default. Returns an error only when the store
// itself fails.
func (r *Reconciler) Resolve(ctx context.Context) (model.NotificationConfig, Source, error) {
	primary, ok, err := r.readPrimary(ctx)
	if err != nil {
		return model.DefaultNotificationConfig(), SourceDefault, err
	}
	if ok {
		return primary, SourcePrimary, nil
	}

	notif, ok, err := r.readNotification(ctx)
	if err != nil {
		return model.DefaultNotificationConfig(), SourceDefault, err
	}
	if ok {
		return notif, SourceNotification, nil
	}

	return model.DefaultNotificationConfig(), SourceDefault, nil
}

// Snapshot is the diagnostic view returned by the debug-config command.
type Snapshot struct {
	Primary      json.RawMessage          `json:"primary"`
	Notification json.RawMessage          `json:"notification"`
	Merged       model.NotificationConfig `json:"merged"`
	Source       Source                   `json:"source"`
}

// Debug returns both raw sources and the resolved result.
// Absent sources are reported as JSON null.
func (r *Reconciler) Debug(ctx context.Context) (Snapshot, error) {
	var snap Snapshot

	raw, ok, err := r.store.Get(ctx, model.CollectionConfig, model.KeyCurrent)
	if err != nil {
		return snap, fmt.Errorf("read primary config: %w", err)
	}
	snap.Primary = rawOrNull(raw, ok)

	raw, ok, err = r.store.Get(ctx, model.CollectionConfigNotifications, model.KeyCurrent)
	if err != nil {
		return snap, fmt.Errorf("read notification config: %w", err)
	}
	snap.Notification = rawOrNull(raw, ok)

	snap.Merged, snap.Source, err = r.Resolve(ctx)
	if err != nil {
		return snap, err
	}
	return snap, nil
}

func (r *Reconciler) readPrimary(ctx context.Context) (model.NotificationConfig, bool, error) {
	raw, ok, err := r.store.Get(ctx, model.CollectionConfig, model.KeyCurrent)
	if err != nil {
		return model.NotificationConfig{}, false, fmt.Errorf("read primary config: %w", err)
	}
	if !ok || isNull(raw) {
		return model.NotificationConfig{}, false, nil
	}

	var p primaryShape
	if err := json.Unmarshal(raw, &p); err != nil {
		slog.Warn("primary config unreadable, falling back", "error", err)
		return model.NotificationConfig{}, false, nil
	}

	return fill(p.DaysAdvance, p.Hour, p.EmailEnabled, p.PushEnabled, p.Email), true, nil
}

func (r *Reconciler) readNotification(ctx context.Context) (model.NotificationConfig, bool, error) {
	raw, ok, err := r.store.Get(ctx, model.CollectionConfigNotifications, model.KeyCurrent)
	if err != nil {
		return model.NotificationConfig{}, false, fmt.Errorf("read notification config: %w", err)
	}
	if !ok || isNull(raw) {
		return model.NotificationConfig{}, false, nil
	}

	var n notificationShape
	if err := json.Unmarshal(raw, &n); err != nil {
		slog.Warn("notification config unreadable, falling back", "error", err)
		return model.NotificationConfig{}, false, nil
	}

	return fill(n.DaysAdvance, n.Hour, n.NotifyEmail, n.NotifyPush, n.Address), true, nil
}

// fill builds a canonical configuration, taking each absent or invalid field
// from the default.
func fill(days *int, hour *string, email, push *bool, address *string) model.NotificationConfig {
	cfg := model.DefaultNotificationConfig()

	if days != nil {
		if *days >= 0 {
			cfg.DaysAdvance = *days
		} else {
			slog.Warn("negative notification advance, using default", "value", *days, "default", cfg.DaysAdvance)
		}
	}
	if hour != nil {
		if _, err := duedate.ParseHour(*hour); err == nil {
			cfg.Hour = *hour
		} else {
			slog.Warn("invalid notification hour, using default", "value", *hour, "default", cfg.Hour)
		}
	}
	if email != nil {
		cfg.EmailEnabled = *email
	}
	if push != nil {
		cfg.PushEnabled = *push
	}
	if address != nil {
		cfg.Email = *address
	}
	return cfg
}

func isNull(raw []byte) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func rawOrNull(raw []byte, ok bool) json.RawMessage {
	if !ok || len(raw) == 0 {
		return json.RawMessage("null")
	}
	return json.RawMessage(raw)
}
