package pkg

import (
	"context"
	"strings"
	"testing"
)

func TestNewRebaseWorkflow_StepOrder(t *testing.T) {
	wf := NewRebaseWorkflow(NoopReporter{}, NewFakeRunner(), "example.com/os:latest", false, false)

	want := []string{
		"cleaning up previous run",
		"loading system configuration",
		"checking for a pending update",
		"fetching image metadata",
		"pulling image",
		"generating new rootfs",
		"generating locale",
		"merging /etc",
		"merging identity databases",
		"merging /var/lib",
		"installing configured packages",
		"enabling configured services",
		"recording new revision",
		"verifying the new rootfs has a kernel",
		"seeding next baseline",
		"replacing boot files",
	}

	if len(wf.steps) != len(want) {
		t.Fatalf("step count = %d, want %d", len(wf.steps), len(want))
	}
	for i, name := range want {
		if wf.steps[i].name != name {
			t.Errorf("step %d = %q, want %q", i, wf.steps[i].name, name)
		}
	}
}

// This test relies on /.update_rootfs, /system.yaml and the bundle config
// being absent on the machine running the test, which is the expected
// default state outside a rebase run; it never creates or removes any real
// top-level path itself.
func TestNewRebaseWorkflow_ProceedsThroughEarlyStepsThenFailsOnMissingBundle(t *testing.T) {
	runner := NewFakeRunner()
	runner.Script("skopeo inspect example.com/os:latest", RunResult{
		ExitCode: 0,
		Stdout:   `{"Labels":{"org.opencontainers.image.revision":"7"}}`,
	})

	wf := NewRebaseWorkflow(NoopReporter{}, runner, "example.com/os:latest", false, false)
	state := &WorkflowState{Reporter: NoopReporter{}, Runner: runner}

	err := wf.Run(context.Background(), state)
	if err == nil {
		t.Fatal("expected an error once the workflow reaches bundle setup without a real unpacked bundle")
	}
	if !strings.Contains(err.Error(), "generating new rootfs") {
		t.Errorf("error = %v, want a failure from the \"generating new rootfs\" step", err)
	}

	var sawSkopeoInspect, sawSkopeoCopy, sawUmociUnpack bool
	for _, inv := range runner.Invocations {
		if len(inv.Argv) >= 2 && inv.Argv[0] == "skopeo" && inv.Argv[1] == "inspect" {
			sawSkopeoInspect = true
		}
		if len(inv.Argv) >= 2 && inv.Argv[0] == "skopeo" && inv.Argv[1] == "copy" {
			sawSkopeoCopy = true
		}
		if len(inv.Argv) >= 1 && inv.Argv[0] == "umoci" {
			sawUmociUnpack = true
		}
	}
	if !sawSkopeoInspect {
		t.Error("expected metadata fetch before bundle setup")
	}
	if !sawSkopeoCopy || !sawUmociUnpack {
		t.Error("expected the pull step to have run before bundle setup failed")
	}
	if state.NewRevision != "7" {
		t.Errorf("state.NewRevision = %q, want 7", state.NewRevision)
	}
}

func TestNewRebaseWorkflow_ForceSkipsAlreadyLatestShortCircuit(t *testing.T) {
	runner := NewFakeRunner()
	runner.Script("skopeo inspect example.com/os:latest", RunResult{
		ExitCode: 0,
		Stdout:   `{"Labels":{"org.opencontainers.image.revision":"7"}}`,
	})

	wf := NewRebaseWorkflow(NoopReporter{}, runner, "example.com/os:latest", true, false)
	state := &WorkflowState{Reporter: NoopReporter{}, Runner: runner}

	err := wf.Run(context.Background(), state)
	if err == nil {
		t.Fatal("expected an eventual error from missing bundle setup")
	}
	if strings.Contains(err.Error(), "already") {
		t.Errorf("force=true must never surface an already-latest error, got: %v", err)
	}
}
