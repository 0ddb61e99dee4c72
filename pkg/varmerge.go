package pkg

import (
	"context"
	"os"
	"path/filepath"

	"github.com/commonarch/system/internal/paths"
)

// MergeVarLib builds /.new.var.lib by snapshotting the host's /var/lib and
// then copying in any directory that exists only in the staged rootfs's
// /var/lib (§4.8 step 9).
//
// This intentionally preserves the original's asymmetric semantics: only
// entries present in the new rootfs but absent from the host snapshot are
// copied across (new-rootfs-only directories), while entries the host has
// that the new rootfs lacks are left untouched in the snapshot, and
// entries present in both are never compared or overwritten. The merge
// favours whatever already exists on the host for anything both sides
// ship; it only backfills what the new image introduces.
func MergeVarLib(ctx context.Context, runner ProcessRunner, newRootfs *RootFS) error {
	if _, err := runner.Run(ctx, "cp", "-ax", paths.VarLib, paths.NewVarLib); err != nil {
		return err
	}

	newRootfsVarLib := filepath.Join(newRootfs.Path, "var", "lib")
	entries, err := os.ReadDir(newRootfsVarLib)
	if err != nil {
		return err
	}
	existing := map[string]bool{}
	if snapEntries, err := os.ReadDir(paths.NewVarLib); err == nil {
		for _, e := range snapEntries {
			existing[e.Name()] = true
		}
	}

	for _, entry := range entries {
		if existing[entry.Name()] {
			continue
		}
		if !entry.IsDir() {
			continue
		}
		if _, err := runner.Run(ctx, "cp", "-ax", filepath.Join(newRootfsVarLib, entry.Name()), paths.NewVarLib); err != nil {
			return err
		}
	}
	return nil
}
