package core

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/reconquest/karma-go"
	"gopkg.in/yaml.v3"
)

var supportedEvents = map[string]bool{
	EventPush:        true,
	EventPullRequest: true,
}

// ParseWorkflow parses and validates YAML workflow content.
func ParseWorkflow(data []byte) (*Workflow, error) {
	var wf Workflow
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, karma.Format(err, "invalid workflow yaml")
	}
	if err := wf.validate(); err != nil {
		return nil, err
	}
	return &wf, nil
}

// LoadWorkflow reads and parses a workflow file.
func LoadWorkflow(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	wf, err := ParseWorkflow(data)
	if err != nil {
		return nil, karma.Describe("path", path).Format(err, "load workflow")
	}
	return wf, nil
}

func (w *Workflow) validate() error {
	if len(w.On) == 0 {
		return errors.New("missing 'on' section")
	}
	for event := range w.On {
		if !supportedEvents[event] {
			return fmt.Errorf("unsupported event %q", event)
		}
	}

	if len(w.Jobs) == 0 {
		return errors.New("workflow has no jobs")
	}
	for id, job := range w.Jobs {
		if job == nil || len(job.Steps) == 0 {
			return fmt.Errorf("job %q has no steps", id)
		}
		for i, step := range job.Steps {
			if (step.Run == "") == (step.Uses == "") {
				return karma.
					Describe("job", id).
					Describe("step", i+1).
					Format(nil, "step must set exactly one of 'run' and 'uses'")
			}
		}
		for _, need := range job.Needs {
			if _, ok := w.Jobs[need]; !ok {
				return fmt.Errorf("job %q needs unknown job %q", id, need)
			}
		}
	}

	waves, err := layerJobs(w.Jobs)
	if err != nil {
		return err
	}
	w.waves = waves
	return nil
}

// layerJobs sorts jobs topologically into waves. Job IDs inside a wave are
// sorted so the order is deterministic.
func layerJobs(jobs map[string]*Job) ([][]string, error) {
	remaining := make(map[string]int, len(jobs))
	dependents := map[string][]string{}
	for id, job := range jobs {
		remaining[id] = len(job.Needs)
		for _, need := range job.Needs {
			dependents[need] = append(dependents[need], id)
		}
	}

	var waves [][]string
	placed := 0
	for placed < len(jobs) {
		var wave []string
		for id, n := range remaining {
			if n == 0 {
				wave = append(wave, id)
			}
		}
		if len(wave) == 0 {
			return nil, errors.New("jobs have cyclic 'needs'")
		}
		sort.Strings(wave)

		for _, id := range wave {
			delete(remaining, id)
			for _, dependent := range dependents[id] {
				remaining[dependent]--
			}
		}
		placed += len(wave)
		waves = append(waves, wave)
	}
	return waves, nil
}
