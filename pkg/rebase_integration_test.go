package pkg

import (
	"context"
	"testing"

	"github.com/commonarch/system/pkg/testutil"
)

// TestRebaseIntegration_MergesHostIdentity boots a VM, installs the system
// binary, and rebases it onto a known test image, asserting that a
// host-only account added after the baseline image survives the rebase
// into the merged /.new.etc/passwd (P1).
//
// Skipped unless Incus is reachable; this is an opt-in integration test,
// not part of the default unit test run.
func TestRebaseIntegration_MergesHostIdentity(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Incus integration test in -short mode")
	}

	fixture := testutil.NewIncusFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), testutil.TimeoutVMRebase)
	defer cancel()

	if err := fixture.CreateVM("images:archlinux"); err != nil {
		t.Fatalf("CreateVM: %v", err)
	}
	if err := fixture.WaitForReady(ctx); err != nil {
		t.Fatalf("WaitForReady: %v", err)
	}

	if err := fixture.PushFile("./system", "/usr/local/bin/system"); err != nil {
		t.Fatalf("PushFile: %v", err)
	}
	if _, err := fixture.ExecCommand("chmod", "+x", "/usr/local/bin/system"); err != nil {
		t.Fatalf("chmod system binary: %v", err)
	}

	if _, err := fixture.ExecCommand("useradd", "-u", "1500", "-m", "carried-user"); err != nil {
		t.Fatalf("useradd: %v", err)
	}

	if _, err := fixture.ExecCommand("system", "rebase", "--force", "--yes", "localhost/system-test:v1"); err != nil {
		t.Fatalf("system rebase: %v", err)
	}

	mergedPasswd, err := fixture.ExecCommand("cat", "/.new.etc/passwd")
	if err != nil {
		t.Fatalf("read merged passwd: %v", err)
	}
	if !containsLine(mergedPasswd, "carried-user") {
		t.Errorf("merged passwd missing carried host-only account: %q", mergedPasswd)
	}
}

func containsLine(content, substr string) bool {
	for i := 0; i+len(substr) <= len(content); i++ {
		if content[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
