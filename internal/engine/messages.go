package engine

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// Command names accepted on the inbound channel.
const (
	CmdScheduleSync         = "schedule-sync"
	CmdSaveData             = "save-data"
	CmdScheduleNotification = "schedule-notification"
	CmdCancelNotification   = "cancel-notification"
	CmdForceCheck           = "force-check"
	CmdActivateNow          = "activate-now"
	CmdDebugConfig          = "debug-config"
)

// Message is one decoded inbound command.
type Message interface {
	Command() string
}

// ScheduleSync registers a periodic background-sync trigger.
type ScheduleSync struct {
	Tag string `json:"tag"`
}

// SaveData persists Data under collection Key. ID defaults to "current".
type SaveData struct {
	Key  string          `json:"key"`
	Data json.RawMessage `json:"data"`
	ID   string          `json:"id,omitempty"`
}

// ScheduleNotification arms a point-in-time reminder.
type ScheduleNotification struct {
	ID         string          `json:"id"`
	Datos      json.RawMessage `json:"datos"`
	FechaEnvio float64         `json:"fechaEnvio"`
}

// CancelNotification deletes every scheduled record whose key contains Tag.
type CancelNotification struct {
	Tag string `json:"tag"`
}

// ForceCheck runs an evaluation cycle now.
type ForceCheck struct{}

// ActivateNow claims the instance lease regardless of its holder.
type ActivateNow struct{}

// DebugConfig returns both configuration sources and the resolved result.
type DebugConfig struct{}

func (ScheduleSync) Command() string         { return CmdScheduleSync }
func (SaveData) Command() string             { return CmdSaveData }
func (ScheduleNotification) Command() string { return CmdScheduleNotification }
func (CancelNotification) Command() string   { return CmdCancelNotification }
func (ForceCheck) Command() string           { return CmdForceCheck }
func (ActivateNow) Command() string          { return CmdActivateNow }
func (DebugConfig) Command() string          { return CmdDebugConfig }

//go:embed schema.cue
var schemaSource string

// definitions maps each command to its CUE definition and a decode target.
var definitions = map[string]struct {
	def string
	new func() Message
}{
	CmdScheduleSync:         {"#ScheduleSync", func() Message { return &ScheduleSync{} }},
	CmdSaveData:             {"#SaveData", func() Message { return &SaveData{} }},
	CmdScheduleNotification: {"#ScheduleNotification", func() Message { return &ScheduleNotification{} }},
	CmdCancelNotification:   {"#CancelNotification", func() Message { return &CancelNotification{} }},
	CmdForceCheck:           {"#ForceCheck", func() Message { return &ForceCheck{} }},
	CmdActivateNow:          {"#ActivateNow", func() Message { return &ActivateNow{} }},
	CmdDebugConfig:          {"#DebugConfig", func() Message { return &DebugConfig{} }},
}

// Commands returns the recognized command names, sorted.
func Commands() []string {
	return []string{
		CmdActivateNow,
		CmdCancelNotification,
		CmdDebugConfig,
		CmdForceCheck,
		CmdSaveData,
		CmdScheduleNotification,
		CmdScheduleSync,
	}
}

// Decoder validates raw messages against the embedded CUE schema and decodes
// them into their Message type.
//
// Thread-safety: a cue.Context is not safe for concurrent use, so Decode
// serializes on an internal mutex.
type Decoder struct {
	mu     sync.Mutex
	ctx    *cue.Context
	schema cue.Value
}

// NewDecoder compiles the message schema.
func NewDecoder() (*Decoder, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile message schema: %w", err)
	}
	for cmd, d := range definitions {
		if def := schema.LookupPath(cue.ParsePath(d.def)); !def.Exists() {
			return nil, fmt.Errorf("message schema: missing definition %s for %s", d.def, cmd)
		}
	}
	return &Decoder{ctx: ctx, schema: schema}, nil
}

// Decode parses a flat JSON message {"command": "...", ...fields}.
//
// Returns an *Error with ErrCodeUnknownCommand or ErrCodeMalformed when the
// message is rejected.
func (d *Decoder) Decode(raw []byte) (Message, error) {
	if !json.Valid(raw) {
		return nil, malformed("", "message is not valid JSON", nil)
	}

	var head struct {
		Command *string `json:"command"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, malformed("", "message must be a JSON object", err)
	}
	if head.Command == nil {
		return nil, malformed("", "message has no command", nil)
	}
	cmd := *head.Command

	entry, ok := definitions[cmd]
	if !ok {
		return nil, unknownCommand(cmd)
	}

	if err := d.validate(entry.def, raw); err != nil {
		return nil, malformed(cmd, "payload does not match schema", err)
	}

	msg := entry.new()
	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, malformed(cmd, "decode payload", err)
	}
	return deref(msg), nil
}

func (d *Decoder) validate(def string, raw []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	data := d.ctx.CompileBytes(raw, cue.Filename("message.json"))
	if err := data.Err(); err != nil {
		return firstCUEError(err)
	}
	v := d.schema.LookupPath(cue.ParsePath(def)).Unify(data)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return firstCUEError(err)
	}
	return nil
}

// firstCUEError reduces a CUE error list to its first entry.
func firstCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	return fmt.Errorf("%s", strings.TrimSpace(errs[0].Error()))
}

// deref returns the value form of a decoded message so handlers can switch
// on concrete types.
func deref(m Message) Message {
	switch v := m.(type) {
	case *ScheduleSync:
		return *v
	case *SaveData:
		return *v
	case *ScheduleNotification:
		return *v
	case *CancelNotification:
		return *v
	case *ForceCheck:
		return *v
	case *ActivateNow:
		return *v
	case *DebugConfig:
		return *v
	default:
		return m
	}
}
