package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDueItem_DueOn_PlainDate(t *testing.T) {
	loc := time.FixedZone("ART", -3*3600)
	item := DueItem{ID: "visa", DueDate: "2026-10-16"}

	got, err := item.DueOn(loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 16, 0, 0, 0, 0, loc), got)
}

func TestDueItem_DueOn_Timestamp(t *testing.T) {
	loc := time.FixedZone("ART", -3*3600)
	// Midnight in Buenos Aires serialized as UTC.
	item := DueItem{ID: "visa", DueDate: "2026-10-16T03:00:00Z"}

	got, err := item.DueOn(loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 16, 0, 0, 0, 0, loc), got)
}

func TestDueItem_DueOn_Invalid(t *testing.T) {
	_, err := DueItem{ID: "x", DueDate: "16/10/2026"}.DueOn(time.UTC)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid due date")
}

func TestDueItem_DecodesForegroundShape(t *testing.T) {
	raw := `{"id":"c1","nombre":"Visa","fechaVencimiento":"2026-10-16","montoAdeudado":15000.5}`

	var item DueItem
	require.NoError(t, json.Unmarshal([]byte(raw), &item))
	assert.Equal(t, "Visa", item.Name)
	assert.Equal(t, "15000.5", item.Amount.String())
}

func TestDefaultNotificationConfig(t *testing.T) {
	cfg := DefaultNotificationConfig()
	assert.Equal(t, NotificationConfig{DaysAdvance: 3, Hour: "09:00", EmailEnabled: true, PushEnabled: true}, cfg)
}

func TestScheduledNotification_FireAt(t *testing.T) {
	rec := ScheduledNotification{FireAtMs: 1_776_000_000_000}
	assert.Equal(t, int64(1_776_000_000_000), rec.FireAt().UnixMilli())
}
