// Package notify builds local payment-due notifications and hands them to a
// Displayer.
//
// Building is deterministic: the same item and days-to-due always produce the
// same notification, and the tag is derived from the item id so a re-fire for
// the same item replaces the previous notification instead of stacking.
package notify

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/roach88/duewatch/internal/model"
)

// TagPrefix prefixes every due-item notification tag.
const TagPrefix = "vencimiento-"

// Urgency is the display priority of a notification.
type Urgency string

const (
	UrgencyNormal Urgency = "normal"
	UrgencyHigh   Urgency = "high"
)

// Vibration patterns in milliseconds (vibrate, pause, vibrate...).
var (
	VibrateUrgent   = []int{300, 100, 300, 100, 300}
	VibrateStandard = []int{200, 100, 200}
)

// Action is a button offered on the notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Data is the opaque payload attached to a notification.
type Data struct {
	ItemID  string `json:"itemId,omitempty"`
	DueDate string `json:"fechaVencimiento,omitempty"`
	URL     string `json:"url"`
}

// Notification is a fully rendered local notification.
type Notification struct {
	Title              string   `json:"title"`
	Body               string   `json:"body"`
	Icon               string   `json:"icon"`
	Badge              string   `json:"badge"`
	Tag                string   `json:"tag"`
	Urgency            Urgency  `json:"urgency"`
	RequireInteraction bool     `json:"requireInteraction"`
	Actions            []Action `json:"actions"`
	Vibrate            []int    `json:"vibrate"`
	Data               Data     `json:"data"`
}

const (
	defaultTitle     = "Mis Tarjetas"
	defaultPushBody  = "Tienes una nueva notificación"
	defaultDueBody   = "Tienes un vencimiento próximo"
	defaultPushTag   = "general"
	defaultIcon      = "/assets/icons/icon-192x192.png"
	defaultBadge     = "/assets/icons/badge-72x72.png"
	defaultURL       = "/tarjetas"
	displayDateShape = "02/01/2006"
)

// Renderer builds notifications.
type Renderer struct {
	printer *message.Printer
	loc     *time.Location
	icon    string
	badge   string
	url     string
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithLocale sets the locale used for amounts. Default: es-AR.
func WithLocale(tag language.Tag) RendererOption {
	return func(r *Renderer) {
		r.printer = message.NewPrinter(tag)
	}
}

// WithLocation sets the time zone plain due dates are read in. Default: Local.
func WithLocation(loc *time.Location) RendererOption {
	return func(r *Renderer) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// WithAssets overrides icon, badge and click-through url. Empty values keep
// the defaults.
func WithAssets(icon, badge, url string) RendererOption {
	return func(r *Renderer) {
		if icon != "" {
			r.icon = icon
		}
		if badge != "" {
			r.badge = badge
		}
		if url != "" {
			r.url = url
		}
	}
}

// NewRenderer creates a Renderer.
func NewRenderer(opts ...RendererOption) *Renderer {
	r := &Renderer{
		printer: message.NewPrinter(language.MustParse("es-AR")),
		loc:     time.Local,
		icon:    defaultIcon,
		badge:   defaultBadge,
		url:     defaultURL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Build renders the reminder for item, due in days (0 = today).
func (r *Renderer) Build(item model.DueItem, days int) Notification {
	dueToday := days == 0

	n := Notification{
		Title:              title(item.Name, days),
		Body:               r.body(item),
		Icon:               r.icon,
		Badge:              r.badge,
		Tag:                TagPrefix + item.ID,
		Urgency:            UrgencyNormal,
		RequireInteraction: dueToday,
		Actions: []Action{
			{Action: "ver", Title: "Ver detalle"},
			{Action: "posponer", Title: "Posponer"},
		},
		Vibrate: VibrateStandard,
		Data: Data{
			ItemID:  item.ID,
			DueDate: item.DueDate,
			URL:     r.url,
		},
	}
	if dueToday {
		n.Urgency = UrgencyHigh
		n.Vibrate = VibrateUrgent
	}
	return n
}

// pushPayload is the JSON carried by an external push event.
type pushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Tag   string `json:"tag"`
	URL   string `json:"url"`
}

// FromPush renders a push payload. A malformed or empty payload yields the
// minimal default notification; missing fields take their defaults.
func (r *Renderer) FromPush(raw []byte) Notification {
	n := r.minimal(defaultPushBody, defaultPushTag)

	var p pushPayload
	if len(raw) == 0 || json.Unmarshal(raw, &p) != nil {
		return n
	}
	if p.Title != "" {
		n.Title = p.Title
	}
	if p.Body != "" {
		n.Body = p.Body
	}
	if p.Tag != "" {
		n.Tag = p.Tag
	}
	if p.URL != "" {
		n.Data.URL = p.URL
	}
	return n
}

// Fallback is shown when a scheduled payload cannot be read as a due item.
func (r *Renderer) Fallback(id string) Notification {
	tag := strings.TrimSuffix(TagPrefix, "-")
	if id != "" {
		tag = TagPrefix + id
	}
	return r.minimal(defaultDueBody, tag)
}

func (r *Renderer) minimal(body, tag string) Notification {
	return Notification{
		Title:   defaultTitle,
		Body:    body,
		Icon:    r.icon,
		Badge:   r.badge,
		Tag:     tag,
		Urgency: UrgencyNormal,
		Vibrate: VibrateStandard,
		Data:    Data{URL: r.url},
	}
}

func title(name string, days int) string {
	switch days {
	case 0:
		return name + " vence hoy"
	case 1:
		return name + " vence en 1 día"
	default:
		return fmt.Sprintf("%s vence en %d días", name, days)
	}
}

func (r *Renderer) body(item model.DueItem) string {
	date := item.DueDate
	if due, err := item.DueOn(r.loc); err == nil {
		date = due.Format(displayDateShape)
	}
	return fmt.Sprintf("Monto adeudado: $%s. Vence el %s", r.Amount(item.Amount), date)
}

// Amount formats a decimal amount with the renderer's locale grouping.
// Whole amounts carry no fraction digits; others carry two.
func (r *Renderer) Amount(amount decimal.Decimal) string {
	if amount.IsInteger() {
		return r.printer.Sprintf("%d", amount.IntPart())
	}
	f := amount.Round(2).InexactFloat64()
	return r.printer.Sprintf("%v", number.Decimal(f, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}
