package engine

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/duewatch/internal/model"
	"github.com/roach88/duewatch/internal/notify"
)

func (f *fixture) lease() (model.Lease, bool) {
	f.t.Helper()
	raw, ok, err := f.store.Get(f.ctx, model.CollectionLifecycle, model.KeyLease)
	require.NoError(f.t, err)
	if !ok {
		return model.Lease{}, false
	}
	var lease model.Lease
	require.NoError(f.t, json.Unmarshal(raw, &lease))
	return lease, true
}

func TestLease_FirstInstanceClaims(t *testing.T) {
	f := newFixture(t)
	f.e.Start(f.ctx)

	assert.True(t, f.e.Active())
	lease, ok := f.lease()
	require.True(t, ok)
	assert.Equal(t, "instance-a", lease.Instance)
	assert.Equal(t, base.UnixMilli(), lease.ClaimedMs)
}

func TestLease_SecondInstanceWaits(t *testing.T) {
	f := newFixture(t)
	f.e.Start(f.ctx)
	f.saveItems(visaItems)

	trayB := notify.NewTray()
	b := f.newEngine("instance-b", trayB)
	b.Start(f.ctx)
	assert.False(t, b.Active())

	r := send(t, b, `{"command":"force-check"}`)
	assert.False(t, r.OK)
	assert.Equal(t, ErrCodeNotActive, r.Code)

	reply := b.SubmitPush([]byte(`{"title":"hola"}`))
	b.Drain(f.ctx)
	r = <-reply
	assert.Equal(t, ErrCodeNotActive, r.Code)

	// Persistence commands work regardless of the lease.
	r = send(t, b, `{"command":"save-data","key":"config","data":{"diasAnticipacion":1}}`)
	assert.True(t, r.OK, r.Error)

	assert.Equal(t, 0, trayB.Len())
}

func TestLease_ActivateNowTakesOver(t *testing.T) {
	f := newFixture(t)
	f.e.Start(f.ctx)
	f.schedule("visa-1", visaPayload, base.Add(time.Hour))

	trayB := notify.NewTray()
	b := f.newEngine("instance-b", trayB)
	b.Start(f.ctx)
	require.False(t, b.Active())

	r := send(t, b, `{"command":"activate-now"}`)
	require.True(t, r.OK, r.Error)
	assert.Equal(t, map[string]any{"instance": "instance-b"}, r.Data)
	assert.True(t, b.Active())
	assert.True(t, b.Armed("visa-1"), "takeover arms persisted records")

	r = f.send(`{"command":"force-check"}`)
	assert.Equal(t, ErrCodeNotActive, r.Code)
	assert.False(t, f.e.Active())

	// Both instances hold a timer; only the lease holder displays.
	f.clock.Advance(time.Hour)
	f.e.Drain(f.ctx)
	b.Drain(f.ctx)

	assert.Equal(t, 0, f.tray.Len())
	assert.Equal(t, 1, trayB.Len())
}

func TestLease_StaleLeaseTakenOver(t *testing.T) {
	f := newFixture(t)
	f.e.Start(f.ctx)

	b := f.newEngine("instance-b", notify.NewTray())
	b.Start(f.ctx)
	require.False(t, b.Active())

	f.clock.Advance(DefaultLeaseTTL - time.Second)
	r := send(t, b, `{"command":"force-check"}`)
	assert.Equal(t, ErrCodeNotActive, r.Code, "lease still fresh")

	f.clock.Advance(time.Second)
	r = send(t, b, `{"command":"force-check"}`)
	assert.True(t, r.OK, r.Error)
	assert.True(t, b.Active())

	lease, _ := f.lease()
	assert.Equal(t, "instance-b", lease.Instance)
}

func TestLease_HeartbeatRenews(t *testing.T) {
	f := newFixture(t)
	f.e.Start(f.ctx)

	f.clock.Advance(10 * time.Minute)
	f.e.queue.Enqueue(Event{Kind: EventHeartbeat})
	f.e.Drain(f.ctx)

	lease, ok := f.lease()
	require.True(t, ok)
	assert.Equal(t, base.UnixMilli(), lease.ClaimedMs)
	assert.Equal(t, base.Add(10*time.Minute).UnixMilli(), lease.RenewedMs)

	// A renewed lease keeps a second instance waiting past the first TTL.
	f.clock.Advance(10 * time.Minute)
	b := f.newEngine("instance-b", notify.NewTray())
	b.Start(f.ctx)
	assert.False(t, b.Active())
}

func TestLease_StopReleases(t *testing.T) {
	f := newFixture(t)
	f.e.Start(f.ctx)
	f.e.Stop()

	_, ok := f.lease()
	assert.False(t, ok, "lease released on stop")

	b := f.newEngine("instance-b", notify.NewTray())
	b.Start(f.ctx)
	assert.True(t, b.Active(), "successor does not wait for the lease to go stale")
}

func TestLease_StopDoesNotReleaseOthersLease(t *testing.T) {
	f := newFixture(t)
	f.e.Start(f.ctx)

	b := f.newEngine("instance-b", notify.NewTray())
	b.Start(f.ctx)
	b.Stop()

	lease, ok := f.lease()
	require.True(t, ok)
	assert.Equal(t, "instance-a", lease.Instance)
}

func TestLease_UnreadableTreatedAsVacant(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Put(f.ctx, model.CollectionLifecycle, model.KeyLease, []byte(`garbage`)))

	f.e.Start(f.ctx)
	assert.True(t, f.e.Active())
}

func TestSyncs_RegisterPersistsAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.e.Start(f.ctx)

	r := f.send(`{"command":"schedule-sync","tag":"check-vencimientos"}`)
	require.True(t, r.OK, r.Error)

	f.clock.Advance(time.Minute)
	r = f.send(`{"command":"schedule-sync","tag":"check-vencimientos"}`)
	require.True(t, r.OK, r.Error)

	assert.Equal(t, []string{"check-vencimientos"}, f.e.Syncs())
	assert.False(t, f.e.NextSync("check-vencimientos").IsZero())
	assert.True(t, f.e.NextSync("unknown").IsZero())

	raw, ok, err := f.store.Get(f.ctx, model.CollectionSyncRegistrations, "check-vencimientos")
	require.NoError(t, err)
	require.True(t, ok)
	var reg model.SyncRegistration
	require.NoError(t, json.Unmarshal(raw, &reg))
	assert.Equal(t, base.UnixMilli(), reg.RegisteredMs, "first registration kept")
}

func TestSyncs_RestoredOnStart(t *testing.T) {
	f := newFixture(t)
	f.e.Start(f.ctx)
	r := f.send(`{"command":"schedule-sync","tag":"check-vencimientos"}`)
	require.True(t, r.OK, r.Error)
	f.e.Stop()

	b := f.newEngine("instance-b", notify.NewTray())
	assert.Empty(t, b.Syncs())
	b.Start(f.ctx)
	assert.Equal(t, []string{"check-vencimientos"}, b.Syncs())
}

func TestSyncs_DefaultTag(t *testing.T) {
	f := newFixture(t, WithDefaultSyncTag("check-vencimientos"))
	f.e.Start(f.ctx)
	assert.Equal(t, []string{"check-vencimientos"}, f.e.Syncs())
}

func TestSyncs_PeriodicTriggerRunsCycle(t *testing.T) {
	f := newFixture(t)
	f.e.Start(f.ctx)
	f.saveItems(visaItems)

	require.True(t, f.e.TriggerSync("check-vencimientos"))
	f.e.Drain(f.ctx)
	assert.Equal(t, 1, f.tray.Len())
}

func TestSyncs_WaitingInstanceSkipsCycle(t *testing.T) {
	f := newFixture(t)
	f.e.Start(f.ctx)
	f.saveItems(visaItems)

	trayB := notify.NewTray()
	b := f.newEngine("instance-b", trayB)
	b.Start(f.ctx)

	b.TriggerSync("check-vencimientos")
	b.Drain(f.ctx)
	assert.Equal(t, 0, trayB.Len())
}
