package harness

import "time"

// Scenario is a complete test case loaded from YAML.
type Scenario struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Start       time.Time   `yaml:"start"`
	Timezone    string      `yaml:"timezone,omitempty"`  // IANA name; default: the zone of start
	Instances   []string    `yaml:"instances,omitempty"` // default: [a]
	MaxDelay    string      `yaml:"max_delay,omitempty"`
	LeaseTTL    string      `yaml:"lease_ttl,omitempty"`
	Steps       []Step      `yaml:"steps"`
	Assertions  []Assertion `yaml:"assertions"`
}

// Step is one action against the engines. Exactly one of Send, Push,
// Advance, Sync, Stop or Restart is set.
type Step struct {
	Instance string         `yaml:"instance,omitempty"`
	Send     map[string]any `yaml:"send,omitempty"`
	Push     map[string]any `yaml:"push,omitempty"`
	Advance  string         `yaml:"advance,omitempty"`
	Sync     string         `yaml:"sync,omitempty"`
	Stop     bool           `yaml:"stop,omitempty"`
	Restart  bool           `yaml:"restart,omitempty"`
	Expect   *Expect        `yaml:"expect,omitempty"`
}

// Step kinds, as recorded in the trace.
const (
	StepSend    = "send"
	StepPush    = "push"
	StepAdvance = "advance"
	StepSync    = "sync"
	StepStop    = "stop"
	StepRestart = "restart"
)

// Kind returns the step kind, or "" when zero or several kinds are set.
func (s Step) Kind() string {
	var kinds []string
	if s.Send != nil {
		kinds = append(kinds, StepSend)
	}
	if s.Push != nil {
		kinds = append(kinds, StepPush)
	}
	if s.Advance != "" {
		kinds = append(kinds, StepAdvance)
	}
	if s.Sync != "" {
		kinds = append(kinds, StepSync)
	}
	if s.Stop {
		kinds = append(kinds, StepStop)
	}
	if s.Restart {
		kinds = append(kinds, StepRestart)
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// Expect checks the reply of a send or push step.
type Expect struct {
	OK   *bool          `yaml:"ok,omitempty"`
	Code string         `yaml:"code,omitempty"`
	Data map[string]any `yaml:"data,omitempty"` // subset match against the reply data
}

// Assertion is a check evaluated after all steps ran.
type Assertion struct {
	Type     string `yaml:"type"`
	Instance string `yaml:"instance,omitempty"`

	// shown, not_shown
	Tag           string `yaml:"tag,omitempty"`
	TitleContains string `yaml:"title_contains,omitempty"`
	BodyContains  string `yaml:"body_contains,omitempty"`
	Urgency       string `yaml:"urgency,omitempty"`

	// tray_count, display_count
	Count *int `yaml:"count,omitempty"`

	// record
	Collection string `yaml:"collection,omitempty"`
	Key        string `yaml:"key,omitempty"`
	Exists     *bool  `yaml:"exists,omitempty"` // default true

	// lease
	Holder *string `yaml:"holder,omitempty"`

	// armed
	ID    string `yaml:"id,omitempty"`
	Armed *bool  `yaml:"armed,omitempty"` // default true
}

// Assertion types.
const (
	AssertShown        = "shown"
	AssertNotShown     = "not_shown"
	AssertTrayCount    = "tray_count"
	AssertDisplayCount = "display_count"
	AssertRecord       = "record"
	AssertLease        = "lease"
	AssertArmed        = "armed"
)

// TraceEvent is one executed step. Shown lists the notifications displayed
// while the step ran, as "instance/tag".
type TraceEvent struct {
	Seq      int      `json:"seq"`
	At       string   `json:"at"`
	Step     string   `json:"step"`
	Instance string   `json:"instance,omitempty"`
	Command  string   `json:"command,omitempty"`
	Advance  string   `json:"advance,omitempty"`
	Tag      string   `json:"tag,omitempty"`
	OK       *bool    `json:"ok,omitempty"`
	Code     string   `json:"code,omitempty"`
	Shown    []string `json:"shown,omitempty"`
}

// Result is the outcome of running a scenario.
type Result struct {
	Pass   bool
	Trace  []TraceEvent
	Errors []string
}

// NewResult creates a passing result with an empty trace.
func NewResult() *Result {
	return &Result{Pass: true, Trace: []TraceEvent{}}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(msg string) {
	r.Pass = false
	r.Errors = append(r.Errors, msg)
}
