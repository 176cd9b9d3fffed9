package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/spaghetti/internal/graph"
)

// Scenario drives one graph through a sequence of edits and passes and
// asserts on what each pass did.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Graph is the path to a CUE file defining graph.<name>. Relative paths
	// are resolved against the scenario file's directory.
	Graph string `yaml:"graph"`

	// GraphName selects one graph when the file defines several.
	GraphName string `yaml:"graph_name,omitempty"`

	// Session is the fixed session token. Defaults to "test-session".
	Session string `yaml:"session,omitempty"`

	// Steps run in order. Edit steps are applied immediately; execute steps
	// run one pass.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated after every step has run.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is exactly one of execute, link, unlink, set or dirty.
type Step struct {
	Execute bool      `yaml:"execute,omitempty"`
	Link    *LinkStep `yaml:"link,omitempty"`
	Unlink  string    `yaml:"unlink,omitempty"` // "processor.input"
	Set     *SetStep  `yaml:"set,omitempty"`
	Dirty   string    `yaml:"dirty,omitempty"` // processor name
}

// LinkStep links output From to input To.
type LinkStep struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// SetStep replaces the value of slot To.
type SetStep struct {
	To    string    `yaml:"to"`
	Value []float64 `yaml:"value,omitempty"`
	Text  []string  `yaml:"text,omitempty"`
}

// Assertion checks one fact about the run.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Step is the index of the step the assertion is about. For pass
	// assertions it must be an execute step and defaults to the last one;
	// for link_rejected it must be a link step and is required.
	Step *int `yaml:"step,omitempty"`

	// Processors lists names for ran (exact execution order) and skipped
	// (any order).
	Processors []string `yaml:"processors,omitempty"`

	// Processor is the subject of pending and value.
	Processor string `yaml:"processor,omitempty"`

	// Reason is the expected pending reason.
	Reason string `yaml:"reason,omitempty"`

	// Output is the slot checked by value.
	Output string `yaml:"output,omitempty"`

	// Value and Text are the expected contents for value, element-major.
	Value []float64 `yaml:"value,omitempty"`
	Text  []string  `yaml:"text,omitempty"`

	// Code is an error code the rejection must carry, e.g. TYPE_MISMATCH.
	Code string `yaml:"code,omitempty"`

	// Expect is the expected result of complete.
	Expect *bool `yaml:"expect,omitempty"`
}

// Assertion types.
const (
	AssertRan          = "ran"
	AssertSkipped      = "skipped"
	AssertPending      = "pending"
	AssertValue        = "value"
	AssertLinkRejected = "link_rejected"
	AssertComplete     = "complete"
)

var reasons = map[string]bool{
	string(graph.ReasonCycle):        true,
	string(graph.ReasonTypeMismatch): true,
	string(graph.ReasonNotReady):     true,
	string(graph.ReasonFailed):       true,
	string(graph.ReasonUpstream):     true,
}

// LoadScenario reads and parses a scenario YAML file. The graph path is
// resolved against the scenario's directory. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads a scenario, resolving a relative graph
// path against basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Graph != "" && !filepath.IsAbs(scenario.Graph) && basePath != "" {
		scenario.Graph = filepath.Join(basePath, scenario.Graph)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Graph == "" {
		return fmt.Errorf("graph is required")
	}
	if _, err := os.Stat(s.Graph); os.IsNotExist(err) {
		return fmt.Errorf("graph file not found: %s", s.Graph)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], s.Steps); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step) error {
	n := 0
	if step.Execute {
		n++
	}
	if step.Link != nil {
		n++
		if step.Link.From == "" || step.Link.To == "" {
			return fmt.Errorf("steps[%d]: link needs from and to", i)
		}
	}
	if step.Unlink != "" {
		n++
	}
	if step.Set != nil {
		n++
		if step.Set.To == "" {
			return fmt.Errorf("steps[%d]: set needs to", i)
		}
		if len(step.Set.Value) == 0 && len(step.Set.Text) == 0 {
			return fmt.Errorf("steps[%d]: set needs value or text", i)
		}
	}
	if step.Dirty != "" {
		n++
	}
	if n != 1 {
		return fmt.Errorf("steps[%d]: exactly one of execute, link, unlink, set, dirty is required", i)
	}
	return nil
}

func validateAssertion(index int, a *Assertion, steps []Step) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	if a.Step != nil {
		if *a.Step < 0 || *a.Step >= len(steps) {
			return fmt.Errorf("assertions[%d]: step %d out of range", index, *a.Step)
		}
		wantLink := a.Type == AssertLinkRejected
		if wantLink && steps[*a.Step].Link == nil {
			return fmt.Errorf("assertions[%d]: step %d is not a link step", index, *a.Step)
		}
		if !wantLink && !steps[*a.Step].Execute {
			return fmt.Errorf("assertions[%d]: step %d is not an execute step", index, *a.Step)
		}
	}

	switch a.Type {
	case AssertRan, AssertSkipped:
		if a.Processors == nil {
			return fmt.Errorf("assertions[%d]: processors is required for %s (use [] for none)", index, a.Type)
		}
	case AssertPending:
		if a.Processor == "" {
			return fmt.Errorf("assertions[%d]: processor is required for pending", index)
		}
		if a.Reason != "" && !reasons[a.Reason] {
			return fmt.Errorf("assertions[%d]: unknown reason %q", index, a.Reason)
		}
	case AssertValue:
		if a.Processor == "" || a.Output == "" {
			return fmt.Errorf("assertions[%d]: processor and output are required for value", index)
		}
		if len(a.Value) == 0 && len(a.Text) == 0 {
			return fmt.Errorf("assertions[%d]: value or text is required for value", index)
		}
	case AssertLinkRejected:
		if a.Step == nil {
			return fmt.Errorf("assertions[%d]: step is required for link_rejected", index)
		}
	case AssertComplete:
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for complete", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
