package core

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

const (
	EventPush        = "push"
	EventPullRequest = "pull_request"
)

// Workflow is a CI workflow: the events that trigger it, the concurrency
// policy shared by its runs, and its jobs.
type Workflow struct {
	Name        string            `yaml:"name"`
	On          Triggers          `yaml:"on"`
	Concurrency *Concurrency      `yaml:"concurrency"`
	Env         map[string]string `yaml:"env"`
	Jobs        map[string]*Job   `yaml:"jobs"`

	// waves groups job IDs so that every job only needs jobs of earlier
	// waves. Filled by validate.
	waves [][]string
}

// Triggers maps an event name to an optional filter.
type Triggers map[string]*TriggerFilter

// TriggerFilter narrows an event to some branches.
type TriggerFilter struct {
	Branches       []string `yaml:"branches"`
	BranchesIgnore []string `yaml:"branches-ignore"`
}

// Concurrency groups runs by an expanded key. With CancelInProgress a new
// run cancels the active run of its group; otherwise it waits for it.
type Concurrency struct {
	Group            string `yaml:"group"`
	CancelInProgress bool   `yaml:"cancel-in-progress"`
}

// Job is an ordered list of steps.
type Job struct {
	Name           string            `yaml:"name"`
	RunsOn         StringList        `yaml:"runs-on"`
	Needs          StringList        `yaml:"needs"`
	Env            map[string]string `yaml:"env"`
	TimeoutMinutes float64           `yaml:"timeout-minutes"`
	Steps          []Step            `yaml:"steps"`
}

// Step either runs a shell script or uses a built-in action.
type Step struct {
	Name             string            `yaml:"name"`
	Uses             string            `yaml:"uses"`
	Run              string            `yaml:"run"`
	With             map[string]string `yaml:"with"`
	Env              map[string]string `yaml:"env"`
	WorkingDirectory string            `yaml:"working-directory"`
	ContinueOnError  bool              `yaml:"continue-on-error"`
	TimeoutMinutes   float64           `yaml:"timeout-minutes"`
}

// StringList accepts either a scalar or a sequence of scalars.
type StringList []string

func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Value == "" {
			*l = nil
			return nil
		}
		*l = StringList{value.Value}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		*l = items
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or a list of strings", value.Line)
	}
}

func (t *Triggers) UnmarshalYAML(value *yaml.Node) error {
	triggers := Triggers{}
	switch value.Kind {
	case yaml.ScalarNode:
		triggers[value.Value] = nil
	case yaml.SequenceNode:
		var events []string
		if err := value.Decode(&events); err != nil {
			return err
		}
		for _, event := range events {
			triggers[event] = nil
		}
	case yaml.MappingNode:
		var filters map[string]*TriggerFilter
		if err := value.Decode(&filters); err != nil {
			return err
		}
		for event, filter := range filters {
			triggers[event] = filter
		}
	default:
		return fmt.Errorf("line %d: invalid 'on' section", value.Line)
	}
	*t = triggers
	return nil
}

func (c *Concurrency) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		c.Group = value.Value
		return nil
	}
	type plain Concurrency
	return value.Decode((*plain)(c))
}

// DisplayName is the job name shown in logs, falling back to its ID.
func (j *Job) DisplayName(id string) string {
	if j.Name != "" {
		return j.Name
	}
	return id
}

// DisplayName is the step name shown in logs.
func (s *Step) DisplayName() string {
	switch {
	case s.Name != "":
		return s.Name
	case s.Uses != "":
		return "Run " + s.Uses
	default:
		line, _, _ := strings.Cut(strings.TrimSpace(s.Run), "\n")
		return "Run " + line
	}
}

// Command is what the step executes, for logs and the ledger.
func (s *Step) Command() string {
	if s.Uses != "" {
		return "uses: " + s.Uses
	}
	return s.Run
}

// Waves returns job IDs grouped in dependency order. Jobs in the same wave
// may run in parallel.
func (w *Workflow) Waves() [][]string {
	return w.waves
}

// Matches reports whether event triggers the workflow. Branch filters are
// globs where ** also crosses '/'; a filtered trigger never fires for a ref
// that names no branch, such as a tag.
func (w *Workflow) Matches(event Event) bool {
	filter, ok := w.On[event.Name]
	if !ok {
		return false
	}
	if filter == nil || (len(filter.Branches) == 0 && len(filter.BranchesIgnore) == 0) {
		return true
	}

	branch := event.BranchName()
	if branch == "" {
		return false
	}
	if len(filter.Branches) > 0 && !matchAny(filter.Branches, branch) {
		return false
	}
	if matchAny(filter.BranchesIgnore, branch) {
		return false
	}
	return true
}

func matchAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// ConcurrencyGroup expands the concurrency group for event. It returns ""
// when the workflow declares no group.
func (w *Workflow) ConcurrencyGroup(event Event) string {
	if w.Concurrency == nil || w.Concurrency.Group == "" {
		return ""
	}
	return Expand(w.Concurrency.Group, NewExprContext(w, event, ""))
}

// CancelInProgress reports whether a new run cancels the active one.
func (w *Workflow) CancelInProgress() bool {
	return w.Concurrency != nil && w.Concurrency.CancelInProgress
}
