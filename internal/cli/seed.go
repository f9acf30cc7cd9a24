package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/duewatch/internal/engine"
	"github.com/roach88/duewatch/internal/model"
)

// SeedFile is the YAML fixture read by the seed command. It stands in for
// the data the foreground app writes.
//
// Example:
//
//	config:
//	  diasAnticipacion: 3
//	  horaNotificacion: "09:00"
//	items:
//	  - id: visa-1
//	    nombre: Visa
//	    fechaVencimiento: "2026-10-16"
//	    montoAdeudado: "15000"
//	scheduled:
//	  - id: visa-1-reminder
//	    at: 2026-10-15T09:00:00-03:00
//	    item: visa-1
type SeedFile struct {
	Config             map[string]any  `yaml:"config"`
	NotificationConfig map[string]any  `yaml:"notificationConfig"`
	Items              []SeedItem      `yaml:"items"`
	Scheduled          []SeedScheduled `yaml:"scheduled"`
	Syncs              []string        `yaml:"syncs"`
	Data               map[string]any  `yaml:"data"` // extra collections, saved under "current"
}

type SeedItem struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"nombre"`
	DueDate string `yaml:"fechaVencimiento"`
	Amount  string `yaml:"montoAdeudado"` // decimal text, kept exact
}

type SeedScheduled struct {
	ID   string    `yaml:"id"`
	At   time.Time `yaml:"at"`
	Item string    `yaml:"item"` // id of an entry in items
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := rootOpts

	cmd := &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Load due items and configuration from a YAML fixture",
		Long: `Load due items, notification configuration, scheduled notifications and
sync registrations from a YAML fixture, through the same save-data,
schedule-notification and schedule-sync messages the foreground app sends.

Example:
  duewatch seed ./testdata/cards.yaml
  duewatch check`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(opts, cmd, args[0])
		},
	}

	return cmd
}

// LoadSeedFile reads and parses a seed fixture.
func LoadSeedFile(path string) (*SeedFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f SeedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &f, nil
}

// Messages converts the fixture into inbound messages, in the order the
// foreground app would send them.
func (f *SeedFile) Messages() ([][]byte, error) {
	var out [][]byte
	add := func(v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		out = append(out, raw)
		return nil
	}

	if f.Config != nil {
		if err := add(saveData(model.CollectionConfig, "", f.Config)); err != nil {
			return nil, err
		}
	}
	if f.NotificationConfig != nil {
		if err := add(saveData(model.CollectionConfigNotifications, "", f.NotificationConfig)); err != nil {
			return nil, err
		}
	}

	items := make([]model.DueItem, 0, len(f.Items))
	byID := make(map[string]model.DueItem, len(f.Items))
	for i, it := range f.Items {
		item, err := it.dueItem()
		if err != nil {
			return nil, fmt.Errorf("items[%d]: %w", i, err)
		}
		items = append(items, item)
		byID[item.ID] = item
	}
	if len(items) > 0 {
		if err := add(saveData(model.CollectionDueItems, model.KeyAllItems, items)); err != nil {
			return nil, err
		}
	}

	for i, s := range f.Scheduled {
		item, ok := byID[s.Item]
		if !ok {
			return nil, fmt.Errorf("scheduled[%d]: unknown item %q", i, s.Item)
		}
		if s.ID == "" {
			return nil, fmt.Errorf("scheduled[%d]: id is required", i)
		}
		if s.At.IsZero() {
			return nil, fmt.Errorf("scheduled[%d]: at is required", i)
		}
		err := add(map[string]any{
			"command":    engine.CmdScheduleNotification,
			"id":         s.ID,
			"datos":      item,
			"fechaEnvio": s.At.UnixMilli(),
		})
		if err != nil {
			return nil, err
		}
	}

	for _, tag := range f.Syncs {
		if err := add(map[string]string{"command": engine.CmdScheduleSync, "tag": tag}); err != nil {
			return nil, err
		}
	}

	for collection, v := range f.Data {
		if err := add(saveData(collection, "", v)); err != nil {
			return nil, err
		}
	}

	return out, nil
}

func saveData(collection, id string, data any) map[string]any {
	m := map[string]any{"command": engine.CmdSaveData, "key": collection, "data": data}
	if id != "" {
		m["id"] = id
	}
	return m
}

func (it SeedItem) dueItem() (model.DueItem, error) {
	if it.ID == "" {
		return model.DueItem{}, fmt.Errorf("id is required")
	}
	amount := decimal.Zero
	if it.Amount != "" {
		a, err := decimal.NewFromString(it.Amount)
		if err != nil {
			return model.DueItem{}, fmt.Errorf("item %s: invalid montoAdeudado %q: %w", it.ID, it.Amount, err)
		}
		amount = a
	}
	return model.DueItem{ID: it.ID, Name: it.Name, DueDate: it.DueDate, Amount: amount}, nil
}

func runSeed(opts *RootOptions, cmd *cobra.Command, path string) error {
	f, err := LoadSeedFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load seed file", err)
	}
	messages, err := f.Messages()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid seed file", err)
	}

	rt, err := opts.openRuntime(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	replies, err := rt.oneShot(cmd.Context(), false, messages...)
	if err != nil {
		return WrapExitError(ExitFailure, "seed failed", err)
	}

	failed := 0
	for _, r := range replies {
		if !r.OK {
			failed++
		}
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	summary := seedSummary{Messages: len(replies), Failed: failed, Items: len(f.Items), Scheduled: len(f.Scheduled)}
	if failed > 0 {
		for _, r := range replies {
			if !r.OK {
				_ = out.Reply(r)
			}
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d seed messages rejected", failed, len(replies)))
	}
	return out.Success(summary)
}

type seedSummary struct {
	Messages  int `json:"messages"`
	Failed    int `json:"failed"`
	Items     int `json:"items"`
	Scheduled int `json:"scheduled"`
}

func (s seedSummary) Text() string {
	return fmt.Sprintf("Seeded %d due items and %d scheduled notifications (%d messages)",
		s.Items, s.Scheduled, s.Messages)
}
