package pkg

import (
	"context"
	"os"
	"path/filepath"

	"github.com/commonarch/system/internal/paths"
)

// MergeEtc builds /.new.etc from the staged rootfs's /etc plus whatever the
// host has added or changed relative to its own /usr/etc baseline (§4.8
// step 8, §9 "pure function" boundary stops at the filesystem: this one
// shells out directly, mirroring the original's dircmp-driven copy).
//
// If /usr/etc is absent (first rebase on this host), it is seeded from the
// current /etc before the comparison runs. This repo never re-snapshots an
// existing /usr/etc, unlike the original's unconditional rm -rf: an
// existing baseline is exactly the record of what was already merged by a
// prior rebase, and clobbering it would make every subsequent file on the
// host look "new" again.
func MergeEtc(ctx context.Context, runner ProcessRunner, newRootfs *RootFS) error {
	if _, err := runner.Run(ctx, "cp", "-ax", filepath.Join(newRootfs.Path, "etc"), paths.NewEtc); err != nil {
		return err
	}

	if _, err := os.Stat(paths.UsrEtc); os.IsNotExist(err) {
		if _, err := runner.Run(ctx, "cp", "-ax", paths.Etc, paths.UsrEtc); err != nil {
			return err
		}
	}

	return copyEtcDiff(ctx, runner, paths.Etc, paths.UsrEtc, paths.NewEtc)
}

// copyEtcDiff walks left (/etc) and right (/usr/etc) in lockstep, copying
// into dest (under /.new.etc) any entry that is host-only or that differs
// from the baseline, recursing into shared subdirectories.
func copyEtcDiff(ctx context.Context, runner ProcessRunner, left, right, dest string) error {
	leftEntries, err := os.ReadDir(left)
	if err != nil {
		return err
	}
	rightNames := map[string]os.DirEntry{}
	if entries, err := os.ReadDir(right); err == nil {
		for _, e := range entries {
			rightNames[e.Name()] = e
		}
	}

	for _, entry := range leftEntries {
		name := entry.Name()
		leftPath := filepath.Join(left, name)
		rightEntry, inRight := rightNames[name]

		if !inRight {
			if _, err := runner.Run(ctx, "mkdir", "-p", dest); err != nil {
				return err
			}
			if _, err := runner.Run(ctx, "cp", "-ax", "--", leftPath, dest); err != nil {
				return err
			}
			continue
		}

		if entry.IsDir() && rightEntry.IsDir() {
			if err := copyEtcDiff(ctx, runner, leftPath, filepath.Join(right, name), filepath.Join(dest, name)); err != nil {
				return err
			}
			continue
		}

		if entry.IsDir() != rightEntry.IsDir() {
			continue
		}

		differs, err := filesDiffer(leftPath, filepath.Join(right, name))
		if err != nil {
			return err
		}
		if differs {
			if _, err := runner.Run(ctx, "mkdir", "-p", dest); err != nil {
				return err
			}
			if _, err := runner.Run(ctx, "cp", "-ax", "--", leftPath, dest); err != nil {
				return err
			}
		}
	}
	return nil
}

func filesDiffer(a, b string) (bool, error) {
	aData, err := os.ReadFile(a)
	if err != nil {
		return false, err
	}
	bData, err := os.ReadFile(b)
	if err != nil {
		return false, err
	}
	return string(aData) != string(bData), nil
}
