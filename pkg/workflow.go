package pkg

import (
	"context"
	"fmt"
)

// StepFunc is a single step in a workflow.
type StepFunc func(ctx context.Context, state *WorkflowState) error

type namedStep struct {
	name string
	fn   StepFunc
}

// Workflow orchestrates a sequence of named steps with progress reporting
// and context cancellation.
type Workflow struct {
	steps    []namedStep
	reporter Reporter
}

// NewWorkflow creates a Workflow that reports progress via the given Reporter.
func NewWorkflow(reporter Reporter) *Workflow {
	return &Workflow{reporter: reporter}
}

// AddStep appends a named step to the workflow.
func (w *Workflow) AddStep(name string, fn StepFunc) {
	w.steps = append(w.steps, namedStep{name: name, fn: fn})
}

// Run executes all steps in order. It checks context before each step
// and reports step progress through the Reporter.
func (w *Workflow) Run(ctx context.Context, state *WorkflowState) error {
	total := len(w.steps)
	for i, step := range w.steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		w.reporter.Step(i+1, total, step.name)
		if err := step.fn(ctx, state); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}
	return nil
}

// WorkflowState is the rebase-run state threaded through every orchestrator
// step (§3 "Rebase-run state"): transient, scoped to one rebase invocation.
type WorkflowState struct {
	// ImageRef is the image reference the rebase targets.
	ImageRef string
	// NewRevision is the org.opencontainers.image.revision label value of
	// the new image, populated once metadata has been fetched.
	NewRevision string
	// Config is the loaded (or synthesised) system configuration.
	Config *SystemConfig
	// NewRootfs is the staged rootfs handle, populated once the bundle is
	// unpacked and its config.json has been read.
	NewRootfs *RootFS
	// NewPasswdEntries is the merged passwd record list, produced by the
	// passwd merge step and consumed by the group/gshadow merge steps.
	NewPasswdEntries []string

	Verbose bool

	Reporter Reporter
	Runner   ProcessRunner
}
