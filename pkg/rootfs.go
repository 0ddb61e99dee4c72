package pkg

import (
	"context"
	"os"
	"path/filepath"
)

// RootFS is a handle onto a staged root filesystem, exposing the operations
// the rebase pipeline performs against it via a ProcessRunner (§4.1, §4.2).
type RootFS struct {
	Path   string
	Runner ProcessRunner
}

// NewRootFS returns a handle for the rootfs staged at path, executed
// through runner.
func NewRootFS(path string, runner ProcessRunner) *RootFS {
	return &RootFS{Path: path, Runner: runner}
}

// Exists reports whether path, resolved relative to the rootfs root,
// exists on the host filesystem.
func (r *RootFS) Exists(path string) bool {
	_, err := os.Stat(filepath.Join(r.Path, path))
	return err == nil
}

// Exec runs cmd inside the rootfs (systemd-nspawn -D <rootfs> ...).
func (r *RootFS) Exec(ctx context.Context, cmd ...string) (RunResult, error) {
	return r.Runner.RunInRootfs(ctx, r.Path, cmd...)
}

// CopyKernelsToBoot clears any existing files directly under /boot inside
// the rootfs and copies every kernel found under /usr/lib/modules into
// /boot as vmlinuz-<version>. An absent or empty modules directory is not
// an error here; the dedicated kernel-presence gate runs later, once the
// full rootfs is assembled.
func (r *RootFS) CopyKernelsToBoot(ctx context.Context) error {
	bootDir := filepath.Join(r.Path, "boot")
	entries, err := os.ReadDir(bootDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, err := r.Exec(ctx, "rm", "-f", "/boot/"+entry.Name()); err != nil {
			return err
		}
	}

	modulesDir := filepath.Join(r.Path, "usr", "lib", "modules")
	kernels, err := os.ReadDir(modulesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, kernel := range kernels {
		if !kernel.IsDir() {
			continue
		}
		version := kernel.Name()
		if _, err := r.Exec(ctx,
			"cp",
			"/usr/lib/modules/"+version+"/vmlinuz",
			"/boot/vmlinuz-"+version,
		); err != nil {
			return err
		}
	}
	return nil
}

// GenerateInitramfs regenerates the initramfs for every installed kernel
// inside the rootfs.
func (r *RootFS) GenerateInitramfs(ctx context.Context) error {
	_, err := r.Exec(ctx, "dracut", "--force", "--regenerate-all")
	return err
}

func (r *RootFS) String() string { return r.Path }
