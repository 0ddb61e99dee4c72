package pkg

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/commonarch/system/pkg/testutil"
)

// systemPath returns the path to the system binary.
// Tests expect the binary to be built at the project root.
func systemPath(t *testing.T) string {
	t.Helper()

	if _, err := os.Stat("./system"); err == nil {
		return "./system"
	}

	if _, err := os.Stat("../system"); err == nil {
		abs, _ := filepath.Abs("../system")
		return abs
	}

	t.Skip("system binary not found - run 'go build -o system .' at the project root first")
	return ""
}

// TestCLI_HelpOutput tests the main help output format.
// Uses golden file comparison to detect unintentional changes.
// Run with -update flag to regenerate: go test -update ./pkg/... -run TestCLI_HelpOutput
func TestCLI_HelpOutput(t *testing.T) {
	cmd := exec.Command(systemPath(t), "--help")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	_ = cmd.Run()

	output := testutil.NormalizeOutput(stdout.String())
	testutil.AssertGolden(t, "help", []byte(output))
}

// TestCLI_UpdateHelpOutput tests the update subcommand help output.
func TestCLI_UpdateHelpOutput(t *testing.T) {
	cmd := exec.Command(systemPath(t), "update", "--help")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	_ = cmd.Run()

	output := testutil.NormalizeOutput(stdout.String())
	testutil.AssertGolden(t, "update-help", []byte(output))
}

// TestCLI_RebaseHelpOutput tests the rebase subcommand help output.
func TestCLI_RebaseHelpOutput(t *testing.T) {
	cmd := exec.Command(systemPath(t), "rebase", "--help")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	_ = cmd.Run()

	output := testutil.NormalizeOutput(stdout.String())
	testutil.AssertGolden(t, "rebase-help", []byte(output))
}

// TestCLI_UpdateCheckIsHidden verifies the update-check subcommand does
// not appear in top-level help, since it is an internal background loop
// rather than a user-facing command.
func TestCLI_UpdateCheckIsHidden(t *testing.T) {
	cmd := exec.Command(systemPath(t), "--help")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	_ = cmd.Run()

	if bytes.Contains(stdout.Bytes(), []byte("update-check")) {
		t.Error("update-check should not appear in top-level help output")
	}
}

// TestCLI_VersionOutput tests the version output format.
func TestCLI_VersionOutput(t *testing.T) {
	cmd := exec.Command(systemPath(t), "--version")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	_ = cmd.Run()

	output := testutil.NormalizeOutput(stdout.String())
	testutil.AssertGolden(t, "version", []byte(output))
}

// TestCLI_GendocsHelpOutput tests the gendocs subcommand help output.
func TestCLI_GendocsHelpOutput(t *testing.T) {
	cmd := exec.Command(systemPath(t), "gendocs", "--help")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	_ = cmd.Run()

	output := testutil.NormalizeOutput(stdout.String())
	testutil.AssertGolden(t, "gendocs-help", []byte(output))
}
