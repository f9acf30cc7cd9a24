package notify

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/roach88/duewatch/internal/model"
)

var art = time.FixedZone("ART", -3*3600)

func assertGolden(t *testing.T, name string, n Notification) {
	t.Helper()

	data, err := json.MarshalIndent(n, "", "  ")
	require.NoError(t, err)
	data = append(data, '\n')

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}

func TestBuild_DueInTwoDays(t *testing.T) {
	r := NewRenderer(WithLocation(art))
	item := model.DueItem{
		ID:      "visa-1",
		Name:    "Visa",
		DueDate: "2026-10-16",
		Amount:  decimal.NewFromInt(15000),
	}

	n := r.Build(item, 2)

	assert.Contains(t, n.Title, "Visa")
	assert.Contains(t, n.Title, "2 días")
	assert.Contains(t, n.Body, "15.000")
	assert.Equal(t, "vencimiento-visa-1", n.Tag)
	assertGolden(t, "build_due_in_two_days", n)
}

func TestBuild_DueToday(t *testing.T) {
	r := NewRenderer(WithLocation(art))
	item := model.DueItem{
		ID:      "amex-7",
		Name:    "Amex",
		DueDate: "2026-10-14",
		Amount:  decimal.RequireFromString("125000.50"),
	}

	n := r.Build(item, 0)

	assert.Equal(t, "Amex vence hoy", n.Title)
	assert.Equal(t, UrgencyHigh, n.Urgency)
	assert.True(t, n.RequireInteraction)
	assert.Equal(t, VibrateUrgent, n.Vibrate)
	assertGolden(t, "build_due_today", n)
}

func TestBuild_OneDaySingular(t *testing.T) {
	n := NewRenderer().Build(model.DueItem{ID: "x", Name: "Master", DueDate: "2026-10-15"}, 1)
	assert.Equal(t, "Master vence en 1 día", n.Title)
	assert.Equal(t, UrgencyNormal, n.Urgency)
	assert.False(t, n.RequireInteraction)
	assert.Equal(t, VibrateStandard, n.Vibrate)
}

func TestBuild_Deterministic(t *testing.T) {
	r := NewRenderer(WithLocation(art))
	item := model.DueItem{ID: "a", Name: "Visa", DueDate: "2026-10-16", Amount: decimal.NewFromInt(10)}
	assert.Equal(t, r.Build(item, 2), r.Build(item, 2))
}

func TestBuild_TimestampDueDate(t *testing.T) {
	r := NewRenderer(WithLocation(art))
	item := model.DueItem{ID: "a", Name: "Visa", DueDate: "2026-10-16T12:00:00Z"}
	assert.Contains(t, r.Build(item, 2).Body, "16/10/2026")
}

func TestBuild_UnparsableDateKeepsRawText(t *testing.T) {
	item := model.DueItem{ID: "a", Name: "Visa", DueDate: "pronto"}
	assert.Contains(t, NewRenderer().Build(item, 2).Body, "pronto")
}

func TestBuild_AssetsOverride(t *testing.T) {
	r := NewRenderer(WithAssets("/i.png", "", "/home"))
	n := r.Build(model.DueItem{ID: "a", Name: "Visa"}, 3)
	assert.Equal(t, "/i.png", n.Icon)
	assert.Equal(t, defaultBadge, n.Badge)
	assert.Equal(t, "/home", n.Data.URL)
}

func TestAmount_Localized(t *testing.T) {
	es := NewRenderer()
	assert.Equal(t, "15.000", es.Amount(decimal.NewFromInt(15000)))
	assert.Equal(t, "1.234.567,50", es.Amount(decimal.RequireFromString("1234567.5")))

	en := NewRenderer(WithLocale(language.English))
	assert.Equal(t, "15,000", en.Amount(decimal.NewFromInt(15000)))
}

func TestFromPush(t *testing.T) {
	r := NewRenderer()

	n := r.FromPush([]byte(`{"title":"Pago recibido","body":"Gracias","tag":"pago","url":"/pagos"}`))
	assert.Equal(t, "Pago recibido", n.Title)
	assert.Equal(t, "Gracias", n.Body)
	assert.Equal(t, "pago", n.Tag)
	assert.Equal(t, "/pagos", n.Data.URL)
}

func TestFromPush_MalformedFallsBack(t *testing.T) {
	r := NewRenderer()

	for _, raw := range []string{"", "not json", "[1,2]"} {
		n := r.FromPush([]byte(raw))
		assert.Equal(t, defaultTitle, n.Title, "payload %q", raw)
		assert.Equal(t, defaultPushBody, n.Body, "payload %q", raw)
		assert.Equal(t, defaultPushTag, n.Tag, "payload %q", raw)
	}
}

func TestFromPush_PartialPayloadKeepsDefaults(t *testing.T) {
	n := NewRenderer().FromPush([]byte(`{"title":"Hola"}`))
	assert.Equal(t, "Hola", n.Title)
	assert.Equal(t, defaultPushBody, n.Body)
	assert.Equal(t, defaultURL, n.Data.URL)
}

func TestFallback(t *testing.T) {
	r := NewRenderer()
	assert.Equal(t, "vencimiento-rec-1", r.Fallback("rec-1").Tag)
	assert.Equal(t, "vencimiento", r.Fallback("").Tag)
	assert.Equal(t, defaultDueBody, r.Fallback("x").Body)
}
