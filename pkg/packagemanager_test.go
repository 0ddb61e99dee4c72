package pkg

import (
	"context"
	"path/filepath"
	"testing"
)

func TestNewPackageManager_DetectsPacman(t *testing.T) {
	dir := t.TempDir()
	mustMkdirAll(t, filepath.Join(dir, "usr", "bin"))
	mustWriteFile(t, filepath.Join(dir, "usr", "bin", "pacman"), "")

	rootfs := NewRootFS(dir, NewFakeRunner())
	pm, err := NewPackageManager(rootfs)
	if err != nil {
		t.Fatalf("NewPackageManager: %v", err)
	}
	if pm.kind != pkgManagerPacman {
		t.Errorf("kind = %s, want pacman", pm.kind)
	}
}

func TestNewPackageManager_DetectsApt(t *testing.T) {
	dir := t.TempDir()
	mustMkdirAll(t, filepath.Join(dir, "usr", "bin"))
	mustWriteFile(t, filepath.Join(dir, "usr", "bin", "apt-get"), "")

	rootfs := NewRootFS(dir, NewFakeRunner())
	pm, err := NewPackageManager(rootfs)
	if err != nil {
		t.Fatalf("NewPackageManager: %v", err)
	}
	if pm.kind != pkgManagerApt {
		t.Errorf("kind = %s, want apt", pm.kind)
	}
}

func TestNewPackageManager_NeitherIsUnsupported(t *testing.T) {
	dir := t.TempDir()
	mustMkdirAll(t, filepath.Join(dir, "usr", "bin"))

	rootfs := NewRootFS(dir, NewFakeRunner())
	_, err := NewPackageManager(rootfs)
	if err == nil {
		t.Fatal("expected UnsupportedPkgManagerError")
	}
	if _, ok := err.(*UnsupportedPkgManagerError); !ok {
		t.Errorf("error = %T, want *UnsupportedPkgManagerError", err)
	}
}

func TestPackageManager_Install_AptSplatsEachPackage(t *testing.T) {
	dir := t.TempDir()
	mustMkdirAll(t, filepath.Join(dir, "usr", "bin"))
	mustWriteFile(t, filepath.Join(dir, "usr", "bin", "apt-get"), "")

	runner := NewFakeRunner()
	rootfs := NewRootFS(dir, runner)
	pm, err := NewPackageManager(rootfs)
	if err != nil {
		t.Fatalf("NewPackageManager: %v", err)
	}

	if err := pm.Install(context.Background(), "vim", "htop"); err != nil {
		t.Fatalf("Install: %v", err)
	}

	if len(runner.Invocations) != 1 {
		t.Fatalf("Invocations = %d, want 1", len(runner.Invocations))
	}
	argv := runner.Invocations[0].Argv
	last := argv[len(argv)-2:]
	if last[0] != "vim" || last[1] != "htop" {
		t.Errorf("argv tail = %v, want [vim htop] as distinct tokens", last)
	}
	for _, tok := range argv {
		if tok == "vim htop" {
			t.Fatal("packages were concatenated into a single argv token")
		}
	}
}

func TestPackageManager_Install_NoPackagesIsNoop(t *testing.T) {
	dir := t.TempDir()
	mustMkdirAll(t, filepath.Join(dir, "usr", "bin"))
	mustWriteFile(t, filepath.Join(dir, "usr", "bin", "pacman"), "")

	runner := NewFakeRunner()
	rootfs := NewRootFS(dir, runner)
	pm, err := NewPackageManager(rootfs)
	if err != nil {
		t.Fatalf("NewPackageManager: %v", err)
	}
	if err := pm.Install(context.Background()); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if len(runner.Invocations) != 0 {
		t.Errorf("Invocations = %d, want 0 for empty package list", len(runner.Invocations))
	}
}
