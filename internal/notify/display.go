package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Displayer shows a notification to the user. Showing a notification whose
// tag matches one already shown replaces it.
type Displayer interface {
	Show(ctx context.Context, n Notification) error
}

// DisplayFunc adapts a function to the Displayer interface.
type DisplayFunc func(ctx context.Context, n Notification) error

// Show calls f(ctx, n).
func (f DisplayFunc) Show(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// Tray is an in-memory notification tray.
//
// Notifications are kept in display order; a notification with an existing
// tag replaces the previous one in place. Safe for concurrent use.
type Tray struct {
	mu    sync.Mutex
	items []Notification
	shows int
}

// NewTray creates an empty tray.
func NewTray() *Tray {
	return &Tray{}
}

// Show adds n to the tray, replacing any notification with the same tag.
func (t *Tray) Show(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.shows++
	for i := range t.items {
		if t.items[i].Tag == n.Tag {
			t.items[i] = n
			return nil
		}
	}
	t.items = append(t.items, n)
	return nil
}

// List returns a copy of the notifications currently in the tray.
func (t *Tray) List() []Notification {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Notification, len(t.items))
	copy(out, t.items)
	return out
}

// Get returns the notification with tag, if present.
func (t *Tray) Get(tag string) (Notification, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, n := range t.items {
		if n.Tag == tag {
			return n, true
		}
	}
	return Notification{}, false
}

// Close dismisses the notification with tag. Returns false if none was shown.
func (t *Tray) Close(tag string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, n := range t.items {
		if n.Tag == tag {
			t.items = append(t.items[:i], t.items[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of notifications in the tray.
func (t *Tray) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

// Shows returns how many times Show succeeded, replacements included.
func (t *Tray) Shows() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.shows
}

var (
	consoleBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)

	consoleUrgentBox = consoleBox.
				BorderForeground(lipgloss.Color("203"))

	consoleTitle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("81")).
			Bold(true)

	consoleDim = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// Console writes each notification as a bordered box.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole creates a Console writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Show renders n to the writer.
func (c *Console) Show(_ context.Context, n Notification) error {
	box := consoleBox
	if n.Urgency == UrgencyHigh {
		box = consoleUrgentBox
	}

	lines := []string{consoleTitle.Render(n.Title), n.Body}
	if len(n.Actions) > 0 {
		labels := make([]string, len(n.Actions))
		for i, a := range n.Actions {
			labels[i] = "[" + a.Title + "]"
		}
		lines = append(lines, strings.Join(labels, " "))
	}
	lines = append(lines, consoleDim.Render(n.Tag))

	out := box.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintln(c.w, out); err != nil {
		return fmt.Errorf("write notification %s: %w", n.Tag, err)
	}
	return nil
}

// Multi fans a notification out to several displayers.
//
// Every displayer is tried; failures are joined.
type Multi []Displayer

// Show calls Show on each displayer.
func (m Multi) Show(ctx context.Context, n Notification) error {
	var errs []error
	for _, d := range m {
		if err := d.Show(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
