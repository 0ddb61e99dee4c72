package pkg

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func newTestRootfs(t *testing.T) (*RootFS, *FakeRunner) {
	t.Helper()
	dir := t.TempDir()
	runner := NewFakeRunner()
	return NewRootFS(dir, runner), runner
}

func TestRootFS_Exists(t *testing.T) {
	rootfs, _ := newTestRootfs(t)
	if err := os.WriteFile(filepath.Join(rootfs.Path, "marker"), []byte("x"), 0644); err != nil {
		t.Fatalf("write marker: %v", err)
	}
	if !rootfs.Exists("marker") {
		t.Error("Exists(marker) = false, want true")
	}
	if rootfs.Exists("absent") {
		t.Error("Exists(absent) = true, want false")
	}
}

func TestRootFS_Exec_RoutesThroughRunInRootfs(t *testing.T) {
	rootfs, runner := newTestRootfs(t)
	if _, err := rootfs.Exec(context.Background(), "echo", "hi"); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if len(runner.Invocations) != 1 {
		t.Fatalf("Invocations = %d, want 1", len(runner.Invocations))
	}
	inv := runner.Invocations[0]
	if !inv.InRootfs || inv.Rootfs != rootfs.Path {
		t.Errorf("invocation = %+v, want InRootfs at %s", inv, rootfs.Path)
	}
}

func TestRootFS_CopyKernelsToBoot(t *testing.T) {
	rootfs, runner := newTestRootfs(t)
	mustMkdirAll(t, filepath.Join(rootfs.Path, "boot"))
	mustMkdirAll(t, filepath.Join(rootfs.Path, "usr", "lib", "modules", "6.1.0"))
	mustWriteFile(t, filepath.Join(rootfs.Path, "boot", "stale-entry"), "x")

	if err := rootfs.CopyKernelsToBoot(context.Background()); err != nil {
		t.Fatalf("CopyKernelsToBoot: %v", err)
	}

	var sawRemove, sawCopy bool
	for _, inv := range runner.Invocations {
		if len(inv.Argv) >= 2 && inv.Argv[0] == "rm" {
			sawRemove = true
		}
		if len(inv.Argv) >= 1 && inv.Argv[0] == "cp" {
			sawCopy = true
		}
	}
	if !sawRemove {
		t.Error("expected a stale /boot entry to be removed")
	}
	if !sawCopy {
		t.Error("expected a kernel to be copied to /boot")
	}
}

func TestRootFS_CopyKernelsToBoot_EmptyModulesDirIsNotFatal(t *testing.T) {
	rootfs, _ := newTestRootfs(t)
	mustMkdirAll(t, filepath.Join(rootfs.Path, "boot"))
	mustMkdirAll(t, filepath.Join(rootfs.Path, "usr", "lib", "modules"))

	if err := rootfs.CopyKernelsToBoot(context.Background()); err != nil {
		t.Fatalf("CopyKernelsToBoot: %v, want nil; the kernel gate lives at rebase step 13", err)
	}
}

func TestRootFS_CopyKernelsToBoot_AbsentModulesDirIsNotFatal(t *testing.T) {
	rootfs, _ := newTestRootfs(t)
	mustMkdirAll(t, filepath.Join(rootfs.Path, "boot"))

	if err := rootfs.CopyKernelsToBoot(context.Background()); err != nil {
		t.Fatalf("CopyKernelsToBoot: %v, want nil; the kernel gate lives at rebase step 13", err)
	}
}

func mustMkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0755); err != nil {
		t.Fatalf("MkdirAll(%s): %v", path, err)
	}
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile(%s): %v", path, err)
	}
}
