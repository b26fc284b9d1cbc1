package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Epoch is the fixed wall clock of every scenario run. Events without an
// explicit timestamp occur Epoch + seq minutes.
var Epoch = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

// Scenario defines a conformance scenario: batches of marketplace events
// fed to the engine through successive trigger runs, followed by assertions
// on run outcomes and persisted order state.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Timezone derives sub-order date keys. Defaults to UTC.
	Timezone string `yaml:"timezone,omitempty"`

	// Setup events are committed by a first run that must not fail.
	// Setup runs are not part of the snapshot.
	Setup []EventStep `yaml:"setup,omitempty"`

	// Runs are executed in order. Each run first applies its reset, then
	// publishes its events, then triggers one batch.
	Runs []RunStep `yaml:"runs"`

	// Assertions validate run outcomes and final state.
	Assertions []Assertion `yaml:"assertions"`

	// RunID is the fixed run id. Defaults to "test-run-default".
	RunID string `yaml:"run_id,omitempty"`
}

// RunStep is one trigger run.
type RunStep struct {
	Reset  *ResetStep  `yaml:"reset,omitempty"`
	Events []EventStep `yaml:"events,omitempty"`
}

// ResetStep moves a checkpoint, as an operator would.
type ResetStep struct {
	Entity string `yaml:"entity"`
	Seq    int64  `yaml:"seq"`
}

// EventStep is one raw marketplace record. Seq is optional so scenarios can
// publish malformed records.
type EventStep struct {
	Seq     *int64         `yaml:"seq,omitempty"`
	Type    string         `yaml:"type"`
	Entity  string         `yaml:"entity"`
	At      string         `yaml:"at,omitempty"`
	Actor   string         `yaml:"actor,omitempty"`
	Payload map[string]any `yaml:"payload,omitempty"`
}

// Assertion validates one aspect of the scenario result.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Entity is the order the assertion is about.
	Entity string `yaml:"entity"`

	// Run selects the run for outcome and error_code (1-based).
	// Zero means the last run.
	Run int `yaml:"run,omitempty"`

	// Date and Field select a sub-order field (field assertions).
	Date  string `yaml:"date,omitempty"`
	Field string `yaml:"field,omitempty"`

	// Expect is the expected value. Null in a field assertion means the
	// field is absent.
	Expect any `yaml:"expect,omitempty"`

	// Count is the expected number of history items (history_count).
	Count *int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertOutcome           = "outcome"
	AssertErrorCode         = "error_code"
	AssertCheckpoint        = "checkpoint"
	AssertState             = "state"
	AssertHistoryCount      = "history_count"
	AssertField             = "field"
	AssertChangedAfterStart = "changed_after_start"
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
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // catches typos like "assertion:" vs "assertions:"
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
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return fmt.Errorf("timezone: %w", err)
		}
	}
	if len(s.Runs) == 0 {
		return fmt.Errorf("runs list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, ev := range s.Setup {
		if err := validateEvent(ev); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}

	for i, run := range s.Runs {
		if run.Reset == nil && len(run.Events) == 0 {
			// An empty run is allowed only as an explicit re-run.
			continue
		}
		if run.Reset != nil {
			if run.Reset.Entity == "" {
				return fmt.Errorf("runs[%d].reset: entity is required", i)
			}
			if run.Reset.Seq < 0 {
				return fmt.Errorf("runs[%d].reset: seq must not be negative", i)
			}
		}
		for j, ev := range run.Events {
			if err := validateEvent(ev); err != nil {
				return fmt.Errorf("runs[%d].events[%d]: %w", i, j, err)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a, len(s.Runs)); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

// validateEvent checks only what the harness needs to publish the record.
// Type, seq and payload are left unchecked so malformed records can be
// exercised.
func validateEvent(ev EventStep) error {
	if ev.Entity == "" {
		return fmt.Errorf("entity is required")
	}
	if ev.At != "" {
		if _, err := time.Parse(time.RFC3339Nano, ev.At); err != nil {
			return fmt.Errorf("at: %w", err)
		}
	}
	return nil
}

func validateAssertion(a Assertion, runs int) error {
	if a.Type == "" {
		return fmt.Errorf("type is required")
	}
	if a.Entity == "" {
		return fmt.Errorf("entity is required")
	}
	if a.Run < 0 || a.Run > runs {
		return fmt.Errorf("run %d out of range 1..%d", a.Run, runs)
	}

	switch a.Type {
	case AssertOutcome, AssertErrorCode, AssertCheckpoint, AssertState, AssertChangedAfterStart:
		if a.Expect == nil {
			return fmt.Errorf("%s requires expect", a.Type)
		}
	case AssertHistoryCount:
		if a.Count == nil {
			return fmt.Errorf("history_count requires count")
		}
	case AssertField:
		if a.Date == "" || a.Field == "" {
			return fmt.Errorf("field requires date and field")
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
