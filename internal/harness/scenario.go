package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted run against a fresh store.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Schema is the CUE schema file or directory. Relative paths are
	// resolved against the scenario file.
	Schema string `yaml:"schema"`

	// Builder selects the plan builder: generic (default) or remote.
	Builder string `yaml:"builder,omitempty"`

	// OrgUnit is recorded on every saved model.
	OrgUnit string `yaml:"org_unit,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one action. Exactly one of the verb fields is set.
type Step struct {
	Insert   string `yaml:"insert,omitempty"`   // model type
	Link     string `yaml:"link,omitempty"`     // link type
	Update   string `yaml:"update,omitempty"`   // ref
	Delete   string `yaml:"delete,omitempty"`   // ref
	Save     bool   `yaml:"save,omitempty"`     // commit staged changes
	Revert   bool   `yaml:"revert,omitempty"`   // discard staged changes
	Query    string `yaml:"query,omitempty"`    // model type
	Traverse string `yaml:"traverse,omitempty"` // ref of the root

	// As binds the inserted or linked model to a ref.
	As string `yaml:"as,omitempty"`

	// From and To are the link endpoints, as refs.
	From string `yaml:"from,omitempty"`
	To   string `yaml:"to,omitempty"`

	Fields map[string]any `yaml:"fields,omitempty"`

	Where []Condition `yaml:"where,omitempty"`

	// OrderBy lists sort fields; a leading '-' sorts descending.
	OrderBy []string `yaml:"order_by,omitempty"`

	Hops []Hop `yaml:"hops,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Step verbs.
const (
	StepInsert   = "insert"
	StepLink     = "link"
	StepUpdate   = "update"
	StepDelete   = "delete"
	StepSave     = "save"
	StepRevert   = "revert"
	StepQuery    = "query"
	StepTraverse = "traverse"
)

// Verbs returns the verbs set on s.
func (s Step) Verbs() []string {
	var out []string
	for _, v := range []struct {
		name string
		set  bool
	}{
		{StepInsert, s.Insert != ""},
		{StepLink, s.Link != ""},
		{StepUpdate, s.Update != ""},
		{StepDelete, s.Delete != ""},
		{StepSave, s.Save},
		{StepRevert, s.Revert},
		{StepQuery, s.Query != ""},
		{StepTraverse, s.Traverse != ""},
	} {
		if v.set {
			out = append(out, v.name)
		}
	}
	return out
}

// Condition compares a field with a value.
type Condition struct {
	Field string `yaml:"field"`
	Op    string `yaml:"op"` // eq, ne, gt, ge, lt, le
	Value any    `yaml:"value"`
}

// Hop follows one edge type. Exactly one of Out and In is set.
type Hop struct {
	Out  string `yaml:"out,omitempty"`
	In   string `yaml:"in,omitempty"`
	Node string `yaml:"node"`

	// Where filters the nodes reached; Edge filters the edges walked.
	Where []Condition `yaml:"where,omitempty"`
	Edge  []Condition `yaml:"edge,omitempty"`
}

// Expect checks the outcome of a step.
type Expect struct {
	// Keys are the expected result keys, in order. Refs are resolved.
	Keys []string `yaml:"keys,omitempty"`

	// Count is the expected number of results.
	Count *int `yaml:"count,omitempty"`

	// Paths are the expected traversal paths, rendered as
	// "Person/1 -Knows/3-> Person/2".
	Paths []string `yaml:"paths,omitempty"`

	// Error is a substring of the expected error. The step must fail.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates final state or the trace.
type Assertion struct {
	Type  string `yaml:"type"`
	Model string `yaml:"model,omitempty"` // count
	Count int    `yaml:"count,omitempty"` // count
	Ref   string `yaml:"ref,omitempty"`   // exists, missing, field
	Field string `yaml:"field,omitempty"` // field
	Value any    `yaml:"value,omitempty"` // field
	Text  string `yaml:"text,omitempty"`  // trace_contains
}

// Assertion type constants.
const (
	AssertCount         = "count"
	AssertExists        = "exists"
	AssertMissing       = "missing"
	AssertField         = "field"
	AssertTraceContains = "trace_contains"
)

// LoadScenario reads and parses a scenario YAML file. The schema path is
// resolved relative to the file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the schema path relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) && basePath != "" {
		scenario.Schema = filepath.Join(basePath, scenario.Schema)
	}
	return scenario, nil
}

// ParseScenario decodes and validates a scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	// Reject unknown fields (catches typos like "assertion:" vs "assertions:")
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

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	switch s.Builder {
	case "", "generic", "remote":
	default:
		return fmt.Errorf("builder must be generic or remote, got %q", s.Builder)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}
	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, s Step) error {
	verbs := s.Verbs()
	if len(verbs) != 1 {
		return fmt.Errorf("steps[%d]: exactly one verb is required, got %v", index, verbs)
	}
	switch verbs[0] {
	case StepLink:
		if s.From == "" || s.To == "" {
			return fmt.Errorf("steps[%d]: link needs from and to", index)
		}
	case StepTraverse:
		for j, h := range s.Hops {
			if (h.Out == "") == (h.In == "") {
				return fmt.Errorf("steps[%d].hops[%d]: exactly one of out and in is required", index, j)
			}
			if h.Node == "" {
				return fmt.Errorf("steps[%d].hops[%d]: node is required", index, j)
			}
		}
	}
	for _, c := range s.Where {
		if err := validateCondition(index, c); err != nil {
			return err
		}
	}
	for _, h := range s.Hops {
		for _, c := range append(append([]Condition{}, h.Where...), h.Edge...) {
			if err := validateCondition(index, c); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateCondition(index int, c Condition) error {
	if c.Field == "" {
		return fmt.Errorf("steps[%d]: condition field is required", index)
	}
	if _, ok := comparisons[c.Op]; !ok {
		return fmt.Errorf("steps[%d]: unknown operator %q", index, c.Op)
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case AssertCount:
		if a.Model == "" {
			return fmt.Errorf("assertions[%d]: model is required for count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertExists, AssertMissing:
		if a.Ref == "" {
			return fmt.Errorf("assertions[%d]: ref is required for %s", index, a.Type)
		}
	case AssertField:
		if a.Ref == "" || a.Field == "" {
			return fmt.Errorf("assertions[%d]: ref and field are required for field", index)
		}
	case AssertTraceContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for trace_contains", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
