package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict fields catch typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Start.IsZero() {
		return fmt.Errorf("start is required")
	}
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return fmt.Errorf("timezone: %w", err)
		}
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for _, d := range []struct{ name, value string }{{"max_delay", s.MaxDelay}, {"lease_ttl", s.LeaseTTL}} {
		if d.value == "" {
			continue
		}
		if v, err := time.ParseDuration(d.value); err != nil || v <= 0 {
			return fmt.Errorf("%s: invalid duration %q", d.name, d.value)
		}
	}

	names := make(map[string]bool)
	for i, name := range s.instances() {
		if name == "" {
			return fmt.Errorf("instances[%d]: name is required", i)
		}
		if names[name] {
			return fmt.Errorf("instances[%d]: duplicate name %q", i, name)
		}
		names[name] = true
	}

	for i, step := range s.Steps {
		if step.Kind() == "" {
			return fmt.Errorf("steps[%d]: exactly one of send, push, advance, sync, stop or restart is required", i)
		}
		if step.Instance != "" && !names[step.Instance] {
			return fmt.Errorf("steps[%d]: unknown instance %q", i, step.Instance)
		}
		if step.Advance != "" {
			if d, err := time.ParseDuration(step.Advance); err != nil || d < 0 {
				return fmt.Errorf("steps[%d]: invalid advance %q", i, step.Advance)
			}
		}
		if step.Send != nil {
			if _, ok := step.Send["command"].(string); !ok {
				return fmt.Errorf("steps[%d]: send requires a command", i)
			}
		}
		if step.Expect != nil && step.Send == nil && step.Push == nil {
			return fmt.Errorf("steps[%d]: expect is only valid on send and push steps", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], names); err != nil {
			return err
		}
	}

	return nil
}

func validateAssertion(index int, a *Assertion, instances map[string]bool) error {
	if a.Instance != "" && !instances[a.Instance] {
		return fmt.Errorf("assertions[%d]: unknown instance %q", index, a.Instance)
	}

	switch a.Type {
	case AssertShown, AssertNotShown:
		if a.Tag == "" {
			return fmt.Errorf("assertions[%d]: %s requires tag", index, a.Type)
		}
	case AssertTrayCount, AssertDisplayCount:
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: %s requires count", index, a.Type)
		}
	case AssertRecord:
		if a.Collection == "" || a.Key == "" {
			return fmt.Errorf("assertions[%d]: record requires collection and key", index)
		}
	case AssertLease:
		if a.Holder == nil {
			return fmt.Errorf("assertions[%d]: lease requires holder", index)
		}
	case AssertArmed:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: armed requires id", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// instances returns the instance names, defaulting to a single "a".
func (s *Scenario) instances() []string {
	if len(s.Instances) == 0 {
		return []string{"a"}
	}
	return s.Instances
}

// location returns the scenario's time zone.
func (s *Scenario) location() *time.Location {
	if s.Timezone != "" {
		if loc, err := time.LoadLocation(s.Timezone); err == nil {
			return loc
		}
	}
	return s.Start.Location()
}
