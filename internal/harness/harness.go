package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/duewatch/internal/engine"
	"github.com/roach88/duewatch/internal/model"
	"github.com/roach88/duewatch/internal/notify"
	"github.com/roach88/duewatch/internal/store"
	"github.com/roach88/duewatch/internal/testutil"
)

// Harness is the scenario execution engine.
// It runs every instance against one store with a shared fake clock, so two
// engines behave like two processes sharing a database.
type Harness struct {
	store *store.Store
	clock *testutil.FakeClock
	loc   *time.Location
	opts  []engine.Option

	order     []string
	instances map[string]*instance

	// shown collects "instance/tag" for the step being executed.
	shown []string
}

type instance struct {
	name    string
	engine  *engine.Engine
	tray    *notify.Tray
	stopped bool
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Execution flow:
// 1. Open the store and start every instance at scenario.Start
// 2. Execute steps, draining all instances after each one
// 3. Evaluate assertions against trays, store and timers
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	st, err := store.Open(":memory:", model.RequiredCollections...)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:     st,
		clock:     testutil.NewFakeClock(scenario.Start),
		loc:       scenario.location(),
		instances: make(map[string]*instance),
	}
	h.opts = []engine.Option{engine.WithClock(h.clock), engine.WithLocation(h.loc)}
	if scenario.MaxDelay != "" {
		d, _ := time.ParseDuration(scenario.MaxDelay)
		h.opts = append(h.opts, engine.WithMaxDelay(d))
	}
	if scenario.LeaseTTL != "" {
		d, _ := time.ParseDuration(scenario.LeaseTTL)
		h.opts = append(h.opts, engine.WithLeaseTTL(d))
	}
	defer h.stopAll()

	for _, name := range scenario.instances() {
		if err := h.start(ctx, name, notify.NewTray()); err != nil {
			return nil, err
		}
	}
	h.drainAll(ctx)

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.execute(ctx, i+1, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}

	for _, msg := range h.evaluate(ctx, scenario.Assertions, result.Trace) {
		result.AddError(msg)
	}

	return result, nil
}

// start creates and starts the engine for name. The tray is passed in so it
// survives a restart, as the OS tray does.
func (h *Harness) start(ctx context.Context, name string, tray *notify.Tray) error {
	display := notify.Multi{
		tray,
		notify.DisplayFunc(func(_ context.Context, n notify.Notification) error {
			h.shown = append(h.shown, name+"/"+n.Tag)
			return nil
		}),
	}

	opts := append([]engine.Option{engine.WithIDGenerator(testutil.NewFixedIDGenerator(name))}, h.opts...)
	eng, err := engine.New(h.store, display, opts...)
	if err != nil {
		return fmt.Errorf("instance %s: %w", name, err)
	}
	eng.Start(ctx)

	if _, ok := h.instances[name]; !ok {
		h.order = append(h.order, name)
	}
	h.instances[name] = &instance{name: name, engine: eng, tray: tray}
	return nil
}

func (h *Harness) stopAll() {
	for _, name := range h.order {
		inst := h.instances[name]
		if !inst.stopped {
			inst.engine.Stop()
			inst.stopped = true
		}
	}
}

// target returns the named instance, or the first one.
func (h *Harness) target(name string) *instance {
	if name == "" {
		name = h.order[0]
	}
	return h.instances[name]
}

// drainAll fires zero-delay timers and processes every queued event on
// every running instance until all queues are empty.
func (h *Harness) drainAll(ctx context.Context) {
	for {
		h.clock.Advance(0)
		n := 0
		for _, name := range h.order {
			inst := h.instances[name]
			if !inst.stopped {
				n += inst.engine.Drain(ctx)
			}
		}
		if n == 0 {
			return
		}
	}
}

func (h *Harness) execute(ctx context.Context, seq int, step Step, result *Result) error {
	inst := h.target(step.Instance)
	h.shown = nil

	event := TraceEvent{Seq: seq, Step: step.Kind(), Instance: inst.name}

	switch event.Step {
	case StepSend:
		raw, err := json.Marshal(step.Send)
		if err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
		event.Command, _ = step.Send["command"].(string)
		reply, err := h.await(ctx, inst.engine.Submit(raw))
		if err != nil {
			return err
		}
		h.checkReply(seq, step.Expect, reply, &event, result)

	case StepPush:
		raw, err := json.Marshal(step.Push)
		if err != nil {
			return fmt.Errorf("encode push: %w", err)
		}
		reply, err := h.await(ctx, inst.engine.SubmitPush(raw))
		if err != nil {
			return err
		}
		h.checkReply(seq, step.Expect, reply, &event, result)

	case StepAdvance:
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return err
		}
		event.Instance = ""
		event.Advance = step.Advance
		h.clock.Advance(d)
		h.drainAll(ctx)

	case StepSync:
		event.Tag = step.Sync
		if !inst.stopped {
			inst.engine.TriggerSync(step.Sync)
		}
		h.drainAll(ctx)

	case StepStop:
		if !inst.stopped {
			inst.engine.Stop()
			inst.stopped = true
		}
		h.drainAll(ctx)

	case StepRestart:
		if !inst.stopped {
			inst.engine.Stop()
		}
		if err := h.start(ctx, inst.name, inst.tray); err != nil {
			return err
		}
		h.drainAll(ctx)

	default:
		return fmt.Errorf("unknown step kind")
	}

	event.At = h.clock.Now().In(h.loc).Format(time.RFC3339)
	event.Shown = h.shown
	result.Trace = append(result.Trace, event)
	return nil
}

// await drains the engines and collects the reply. A stopped engine has
// already replied.
func (h *Harness) await(ctx context.Context, reply <-chan engine.Reply) (engine.Reply, error) {
	h.drainAll(ctx)
	select {
	case r := <-reply:
		return r, nil
	default:
		return engine.Reply{}, fmt.Errorf("no reply after drain")
	}
}

func (h *Harness) checkReply(seq int, expect *Expect, reply engine.Reply, event *TraceEvent, result *Result) {
	ok := reply.OK
	event.OK = &ok
	event.Code = string(reply.Code)
	if event.Command == "" {
		event.Command = reply.Command
	}

	if expect == nil {
		return
	}
	label := fmt.Sprintf("step %d (%s)", seq, event.Command)

	if expect.OK != nil && *expect.OK != reply.OK {
		result.AddError(fmt.Sprintf("%s: expected ok=%t, got ok=%t %s", label, *expect.OK, reply.OK, reply.Error))
	}
	if expect.Code != "" && expect.Code != string(reply.Code) {
		result.AddError(fmt.Sprintf("%s: expected code %s, got %q", label, expect.Code, reply.Code))
	}
	if len(expect.Data) > 0 {
		actual, err := normalize(reply.Data)
		if err != nil {
			result.AddError(fmt.Sprintf("%s: reply data: %v", label, err))
			return
		}
		want, err := normalize(expect.Data)
		if err != nil {
			result.AddError(fmt.Sprintf("%s: expected data: %v", label, err))
			return
		}
		if !matchSubset(actual, want) {
			got, _ := json.Marshal(actual)
			exp, _ := json.Marshal(want)
			result.AddError(fmt.Sprintf("%s: data mismatch\n  Expected (subset): %s\n  Actual: %s", label, exp, got))
		}
	}
}

// normalize round-trips v through JSON so YAML and engine values compare
// with the same types.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
