// ABOUTME: YAML plan files: a reviewable list of labeled openclaw commands.
// ABOUTME: Loaded into the queue by the apply CLI command.

package queue

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Plan is a reviewable batch of commands loaded from a YAML file.
type Plan struct {
	Steps []PlanStep `yaml:"steps"`
}

// PlanStep is one labeled command of a plan.
type PlanStep struct {
	Label   string   `yaml:"label"`
	Command []string `yaml:"command"`
}

// LoadPlan reads and validates a plan file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}

	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parsing plan file: %w", err)
	}

	if len(plan.Steps) == 0 {
		return nil, fmt.Errorf("plan %s has no steps", path)
	}
	for i, step := range plan.Steps {
		if len(step.Command) == 0 {
			return nil, fmt.Errorf("plan step %d (%s) has no command", i+1, step.Label)
		}
		if step.Command[0] != "openclaw" {
			return nil, fmt.Errorf("plan step %d (%s) must start with \"openclaw\", got %q", i+1, step.Label, step.Command[0])
		}
	}
	return &plan, nil
}

// Stage enqueues every step of the plan.
func (p *Plan) Stage(q *Queue) error {
	for _, step := range p.Steps {
		if _, err := q.Enqueue(step.Label, step.Command); err != nil {
			return err
		}
	}
	return nil
}
