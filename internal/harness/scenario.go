package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sqlscript/internal/config"
	"github.com/roach88/sqlscript/internal/sqlerr"
)

// Scenario is one conformance test: a fresh database, setup scripts, and
// steps whose outcomes are checked.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Engine selects the adapter ("embedded" or "generic"). Default: embedded.
	Engine string `yaml:"engine,omitempty"`

	// Setup scripts run before the steps and must succeed.
	Setup []SetupStep `yaml:"setup,omitempty"`

	// Steps run in order. Each is traced.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and the final database state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// SetupStep is a script run before the steps.
type SetupStep struct {
	Script config.Lines `yaml:"script"`
}

// Step runs one script.
type Step struct {
	// Name identifies the step in the trace.
	Name string `yaml:"name"`

	// Script is the script body.
	Script config.Lines `yaml:"script"`

	// Mode is "value" (default) or "table".
	Mode string `yaml:"mode,omitempty"`

	// ChildName stores multi-row results under this key of the response.
	ChildName string `yaml:"child_name,omitempty"`

	// Request is the lookup source for parameters.
	Request map[string]any `yaml:"request,omitempty"`

	// Response is the response object before the script runs.
	Response map[string]any `yaml:"response,omitempty"`

	// Expect is checked against the step outcome. Nil means the step must
	// succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes a step outcome.
type Expect struct {
	// Error is the expected error kind (e.g. MISSING_PARAMETER).
	Error string `yaml:"error,omitempty"`

	// Values are matched against the response (subset match).
	Values map[string]any `yaml:"values,omitempty"`

	// Rows is the expected report length in table mode.
	Rows *int `yaml:"rows,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count, final_state.
	Type string `yaml:"type"`

	// Step names the traced step (trace_contains, trace_count).
	Step string `yaml:"step,omitempty"`

	// Values are matched against the step response (trace_contains).
	Values map[string]any `yaml:"values,omitempty"`

	// Steps is the expected order (trace_order).
	Steps []string `yaml:"steps,omitempty"`

	// Count is the expected number of runs (trace_count).
	Count int `yaml:"count,omitempty"`

	// Table, Where and Expect describe a final_state query.
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// Step modes.
const (
	ModeValue = "value"
	ModeTable = "table"
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

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
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
	switch s.Engine {
	case "", "embedded", "generic":
	default:
		return fmt.Errorf("unknown engine %q", s.Engine)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if len(step.Script) == 0 {
			return fmt.Errorf("setup[%d]: script is required", i)
		}
	}

	for i, step := range s.Steps {
		if step.Name == "" {
			return fmt.Errorf("steps[%d]: name is required", i)
		}
		if len(step.Script) == 0 {
			return fmt.Errorf("steps[%d]: script is required", i)
		}
		switch step.Mode {
		case "", ModeValue, ModeTable:
		default:
			return fmt.Errorf("steps[%d]: unknown mode %q", i, step.Mode)
		}
		if step.Expect != nil && step.Expect.Error != "" && !knownKind(step.Expect.Error) {
			return fmt.Errorf("steps[%d].expect: unknown error kind %q", i, step.Expect.Error)
		}
		if step.Expect != nil && step.Expect.Rows != nil && step.Mode != ModeTable {
			return fmt.Errorf("steps[%d].expect: rows requires table mode", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Step == "" {
			return fmt.Errorf("assertions[%d]: step is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Steps) == 0 {
			return fmt.Errorf("assertions[%d]: steps list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Step == "" {
			return fmt.Errorf("assertions[%d]: step is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func knownKind(kind string) bool {
	switch sqlerr.Kind(kind) {
	case sqlerr.KindParse, sqlerr.KindConfig, sqlerr.KindMissingParameter, sqlerr.KindBind,
		sqlerr.KindUnsupportedType, sqlerr.KindConnection, sqlerr.KindSyntax, sqlerr.KindDriver:
		return true
	}
	return false
}
