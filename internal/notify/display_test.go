package notify

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTray_ReplacesByTag(t *testing.T) {
	tray := NewTray()
	ctx := context.Background()

	require.NoError(t, tray.Show(ctx, Notification{Tag: "vencimiento-a", Title: "first"}))
	require.NoError(t, tray.Show(ctx, Notification{Tag: "vencimiento-b", Title: "other"}))
	require.NoError(t, tray.Show(ctx, Notification{Tag: "vencimiento-a", Title: "second"}))

	assert.Equal(t, 2, tray.Len())
	assert.Equal(t, 3, tray.Shows())

	list := tray.List()
	assert.Equal(t, "second", list[0].Title, "replacement keeps position")
	assert.Equal(t, "other", list[1].Title)
}

func TestTray_GetAndClose(t *testing.T) {
	tray := NewTray()
	require.NoError(t, tray.Show(context.Background(), Notification{Tag: "t1"}))

	_, ok := tray.Get("t1")
	assert.True(t, ok)

	assert.True(t, tray.Close("t1"))
	assert.False(t, tray.Close("t1"))

	_, ok = tray.Get("t1")
	assert.False(t, ok)
	assert.Equal(t, 0, tray.Len())
}

func TestTray_ListIsACopy(t *testing.T) {
	tray := NewTray()
	require.NoError(t, tray.Show(context.Background(), Notification{Tag: "t1", Title: "orig"}))

	list := tray.List()
	list[0].Title = "mutated"

	n, _ := tray.Get("t1")
	assert.Equal(t, "orig", n.Title)
}

func TestTray_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tray := NewTray()
	assert.ErrorIs(t, tray.Show(ctx, Notification{Tag: "t1"}), context.Canceled)
	assert.Equal(t, 0, tray.Len())
}

func TestConsole_WritesBox(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	n := Notification{
		Title:   "Visa vence en 2 días",
		Body:    "Monto adeudado: $15.000",
		Tag:     "vencimiento-visa",
		Actions: []Action{{Action: "ver", Title: "Ver detalle"}},
	}
	require.NoError(t, c.Show(context.Background(), n))

	out := buf.String()
	assert.Contains(t, out, "Visa vence en 2 días")
	assert.Contains(t, out, "Monto adeudado: $15.000")
	assert.Contains(t, out, "[Ver detalle]")
	assert.Contains(t, out, "vencimiento-visa")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed pipe") }

func TestConsole_WriteError(t *testing.T) {
	err := NewConsole(failingWriter{}).Show(context.Background(), Notification{Tag: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write notification t")
}

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	tray := NewTray()
	boom := errors.New("refused")
	m := Multi{
		DisplayFunc(func(context.Context, Notification) error { return boom }),
		tray,
	}

	err := m.Show(context.Background(), Notification{Tag: "t"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, tray.Len(), "later displayers still run")
}

func TestMulti_Empty(t *testing.T) {
	assert.NoError(t, Multi{}.Show(context.Background(), Notification{}))
}
