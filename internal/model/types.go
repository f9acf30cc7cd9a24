package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Collection names of the persistent store.
const (
	CollectionConfig              = "config"
	CollectionConfigNotifications = "config-notifications"
	CollectionDueItems            = "due-items"
	CollectionPending             = "pending-notifications"
	CollectionSyncRegistrations   = "sync-registrations"

	// CollectionLifecycle is not required at open; it is created the first
	// time an instance claims the lease.
	CollectionLifecycle = "lifecycle"
)

// Sentinel keys for collections holding a single aggregate value.
const (
	KeyCurrent  = "current"
	KeyAllItems = "all"
	KeyLease    = "active"
)

// RequiredCollections must exist after every store open.
var RequiredCollections = []string{
	CollectionConfig,
	CollectionConfigNotifications,
	CollectionDueItems,
	CollectionPending,
	CollectionSyncRegistrations,
}

// DueItem is a tracked obligation (a credit card) written by the foreground
// application.
type DueItem struct {
	ID      string          `json:"id"`
	Name    string          `json:"nombre"`
	DueDate string          `json:"fechaVencimiento"`
	Amount  decimal.Decimal `json:"montoAdeudado"`
}

// dateLayout is the calendar date format of DueItem.DueDate.
const dateLayout = "2006-01-02"

// DueOn returns local midnight of the item's due date in loc.
//
// Plain dates ("2026-10-16") are read in loc. RFC 3339 timestamps (the
// foreground's Date.toISOString()) are converted to loc before the calendar
// date is taken.
func (i DueItem) DueOn(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	if d, err := time.ParseInLocation(dateLayout, i.DueDate, loc); err == nil {
		return d, nil
	}
	ts, err := time.Parse(time.RFC3339, i.DueDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("due item %q: invalid due date %q", i.ID, i.DueDate)
	}
	ts = ts.In(loc)
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, loc), nil
}

// NotificationConfig is the canonical notification configuration consumed by
// the evaluator. The primary configuration collection stores this shape.
type NotificationConfig struct {
	DaysAdvance  int    `json:"diasAnticipacion"`
	Hour         string `json:"horaNotificacion"`
	EmailEnabled bool   `json:"emailHabilitado"`
	PushEnabled  bool   `json:"pushHabilitado"`
	Email        string `json:"email,omitempty"`
}

// DefaultNotificationConfig is used when neither configuration source has data.
func DefaultNotificationConfig() NotificationConfig {
	return NotificationConfig{
		DaysAdvance:  3,
		Hour:         "09:00",
		EmailEnabled: true,
		PushEnabled:  true,
	}
}

// ScheduledNotification is a persisted intent to display a notification at a
// future absolute time. Timestamps are epoch milliseconds.
type ScheduledNotification struct {
	ID        string          `json:"id"`
	Payload   json.RawMessage `json:"datos"`
	FireAtMs  int64           `json:"fechaEnvio"`
	CreatedMs int64           `json:"creadoEn"`
	Rearms    int             `json:"rearmados"`
}

// FireAt returns the target display time.
func (s ScheduledNotification) FireAt() time.Time {
	return time.UnixMilli(s.FireAtMs)
}

// SyncRegistration records a periodic sync tag registered by the foreground.
type SyncRegistration struct {
	Tag          string `json:"tag"`
	RegisteredMs int64  `json:"registradoEn"`
}

// Lease marks the engine instance currently allowed to act on triggers.
type Lease struct {
	Instance  string `json:"instancia"`
	ClaimedMs int64  `json:"reclamadoEn"`
	RenewedMs int64  `json:"renovadoEn"`
}
