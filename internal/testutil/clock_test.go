package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

func TestFakeClock_Now(t *testing.T) {
	c := NewFakeClock(epoch)
	assert.Equal(t, epoch, c.Now())

	c.Advance(time.Minute)
	assert.Equal(t, epoch.Add(time.Minute), c.Now())
}

func TestFakeClock_FiresInDeadlineOrder(t *testing.T) {
	c := NewFakeClock(epoch)
	var fired []string

	c.AfterFunc(2*time.Hour, func() { fired = append(fired, "b") })
	c.AfterFunc(time.Hour, func() { fired = append(fired, "a") })
	c.AfterFunc(3*time.Hour, func() { fired = append(fired, "c") })

	c.Advance(150 * time.Minute)
	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, 1, c.Pending())

	c.Advance(time.Hour)
	assert.Equal(t, []string{"a", "b", "c"}, fired)
	assert.Equal(t, 0, c.Pending())
}

func TestFakeClock_Stop(t *testing.T) {
	c := NewFakeClock(epoch)
	fired := false

	timer := c.AfterFunc(time.Minute, func() { fired = true })
	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	c.Advance(time.Hour)
	assert.False(t, fired)
}

func TestFakeClock_StopAfterFire(t *testing.T) {
	c := NewFakeClock(epoch)
	timer := c.AfterFunc(0, func() {})

	c.Advance(0)
	assert.False(t, timer.Stop())
}

func TestFakeClock_CallbackRegistersDueTimer(t *testing.T) {
	c := NewFakeClock(epoch)
	count := 0

	c.AfterFunc(time.Minute, func() {
		count++
		c.AfterFunc(0, func() { count++ })
	})

	c.Advance(time.Minute)
	assert.Equal(t, 2, count)
}

func TestFakeClock_NextDeadline(t *testing.T) {
	c := NewFakeClock(epoch)

	_, ok := c.NextDeadline()
	require.False(t, ok)

	c.AfterFunc(5*time.Minute, func() {})
	c.AfterFunc(time.Minute, func() {})

	got, ok := c.NextDeadline()
	require.True(t, ok)
	assert.Equal(t, epoch.Add(time.Minute), got)
}
