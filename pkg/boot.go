package pkg

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/commonarch/system/internal/paths"
)

// ReplaceBootFiles moves every file staged under /.update_rootfs/boot into
// /boot, removes whatever was in /boot that the staged rootfs did not
// provide, and regenerates the bootloader configuration (§4.8 step 16).
func ReplaceBootFiles(ctx context.Context, runner ProcessRunner) error {
	stagedBoot := filepath.Join(paths.UpdateRootfs, "boot")
	staged, err := os.ReadDir(stagedBoot)
	if err != nil {
		return err
	}

	newBootFiles := map[string]bool{}
	for _, entry := range staged {
		if entry.IsDir() {
			continue
		}
		if _, err := runner.Run(ctx, "mv", filepath.Join(stagedBoot, entry.Name()), paths.Boot); err != nil {
			return err
		}
		newBootFiles[entry.Name()] = true
	}

	current, err := os.ReadDir(paths.Boot)
	if err != nil {
		return err
	}
	for _, entry := range current {
		if entry.IsDir() {
			continue
		}
		if newBootFiles[entry.Name()] {
			continue
		}
		if _, err := runner.Run(ctx, "rm", "-f", filepath.Join(paths.Boot, entry.Name())); err != nil {
			return err
		}
	}

	_, err = runner.Run(ctx, "grub-mkconfig", "-o", filepath.Join(paths.Boot, "grub", "grub.cfg"))
	return err
}

// HasKernel reports whether rootfsBootDir contains at least one entry
// whose name starts with "vmlinuz" (I3's gate, §4.8 step 13).
func HasKernel(rootfsBootDir string) (bool, error) {
	entries, err := os.ReadDir(rootfsBootDir)
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "vmlinuz") {
			return true, nil
		}
	}
	return false, nil
}
