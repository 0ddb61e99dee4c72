package pkg

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/commonarch/system/internal/paths"
)

// bundleConfig mirrors the subset of an OCI runtime bundle's config.json
// this system reads: where, relative to the bundle, the unpacked rootfs
// lives.
type bundleConfig struct {
	Root struct {
		Path string `json:"path"`
	} `json:"root"`
}

// NewRebaseWorkflow builds the orchestrator for rebasing the system onto
// imageRef, implementing the authoritative sequence (§4.8). explicitImage
// distinguishes an image named directly on the command line (`rebase
// <image>`) from one read out of /system.yaml (`update`), which only
// affects the wording of an AlreadyLatestError refusal.
func NewRebaseWorkflow(reporter Reporter, runner ProcessRunner, imageRef string, force bool, explicitImage bool) *Workflow {
	wf := NewWorkflow(reporter)
	client := NewImageClient(runner)

	wf.AddStep("cleaning up previous run", func(ctx context.Context, state *WorkflowState) error {
		_, err := runner.Run(ctx,
			"rm", "-rf",
			paths.Bundle, paths.SystemImage, paths.UpdateSentinel,
			paths.UpdateRootfs, paths.NewEtc, paths.NewVarLib,
		)
		return err
	})

	wf.AddStep("loading system configuration", func(ctx context.Context, state *WorkflowState) error {
		cfg, err := LoadSystemConfig()
		if err != nil {
			cfg = &SystemConfig{Image: imageRef, AutoUpdateInterval: defaultAutoUpdateInterval}
		}
		state.Config = cfg
		state.ImageRef = imageRef
		return nil
	})

	wf.AddStep("checking for a pending update", func(ctx context.Context, state *WorkflowState) error {
		if _, err := os.Stat(paths.UpdateRootfs); err == nil && !force {
			return &UpdateAlreadyPendingError{StagedPath: paths.UpdateRootfs}
		}
		return nil
	})

	wf.AddStep("fetching image metadata", func(ctx context.Context, state *WorkflowState) error {
		if !force {
			latest, err := client.IsAlreadyLatest(ctx, imageRef)
			if err == nil && latest {
				return &AlreadyLatestError{ImageRef: imageRef, ExplicitImage: explicitImage}
			}
		}
		meta, err := client.FetchMetadata(ctx, imageRef)
		if err != nil {
			return fmt.Errorf("failed to read remote metadata: %w", err)
		}
		revision := meta.Revision()
		if revision == "" {
			return &ImageMetadataError{ImageRef: imageRef, Cause: errMissingRevisionLabel}
		}
		state.NewRevision = revision
		return nil
	})

	wf.AddStep("pulling image", func(ctx context.Context, state *WorkflowState) error {
		return client.Pull(ctx, imageRef)
	})

	wf.AddStep("generating new rootfs", func(ctx context.Context, state *WorkflowState) error {
		data, err := os.ReadFile(paths.BundleConfig)
		if err != nil {
			return &ImageMetadataError{ImageRef: imageRef, Cause: err}
		}
		var cfg bundleConfig
		if err := json.Unmarshal(data, &cfg); err != nil {
			return &ImageMetadataError{ImageRef: imageRef, Cause: err}
		}
		rootfsPath := filepath.Join(paths.Bundle, cfg.Root.Path)
		newRootfs := NewRootFS(rootfsPath, state.Runner)
		if err := newRootfs.CopyKernelsToBoot(ctx); err != nil {
			return err
		}
		if err := newRootfs.GenerateInitramfs(ctx); err != nil {
			return err
		}
		state.NewRootfs = newRootfs
		return nil
	})

	wf.AddStep("generating locale", func(ctx context.Context, state *WorkflowState) error {
		localeGen, err := os.ReadFile(filepath.Join(paths.Etc, "locale.gen"))
		if err != nil {
			return nil
		}
		if err := os.WriteFile(filepath.Join(state.NewRootfs.Path, "etc", "locale.gen"), localeGen, 0644); err != nil {
			return err
		}
		_, err = state.NewRootfs.Exec(ctx, "locale-gen")
		return err
	})

	wf.AddStep("merging /etc", func(ctx context.Context, state *WorkflowState) error {
		return MergeEtc(ctx, runner, state.NewRootfs)
	})

	wf.AddStep("merging identity databases", func(ctx context.Context, state *WorkflowState) error {
		return mergeIdentityDatabases(ctx, state)
	})

	wf.AddStep("merging /var/lib", func(ctx context.Context, state *WorkflowState) error {
		return MergeVarLib(ctx, runner, state.NewRootfs)
	})

	wf.AddStep("installing configured packages", func(ctx context.Context, state *WorkflowState) error {
		if len(state.Config.Packages) == 0 {
			return nil
		}
		pm, err := NewPackageManager(state.NewRootfs)
		if err != nil {
			return err
		}
		if err := pm.Init(ctx); err != nil {
			return err
		}
		return pm.Install(ctx, state.Config.Packages...)
	})

	wf.AddStep("enabling configured services", func(ctx context.Context, state *WorkflowState) error {
		for _, svc := range state.Config.Services {
			if _, err := state.NewRootfs.Exec(ctx, "systemctl", "enable", svc); err != nil {
				return err
			}
		}
		for _, svc := range state.Config.UserServices {
			if _, err := state.NewRootfs.Exec(ctx, "systemctl", "enable", "--global", svc); err != nil {
				return err
			}
		}
		return nil
	})

	wf.AddStep("recording new revision", func(ctx context.Context, state *WorkflowState) error {
		revisionDir := filepath.Join(paths.NewVarLib, "commonarch")
		if err := os.MkdirAll(revisionDir, 0755); err != nil {
			return nil
		}
		_ = os.WriteFile(filepath.Join(revisionDir, "revision"), []byte(state.NewRevision), 0644)
		return nil
	})

	wf.AddStep("verifying the new rootfs has a kernel", func(ctx context.Context, state *WorkflowState) error {
		ok, err := HasKernel(filepath.Join(state.NewRootfs.Path, "boot"))
		if err != nil {
			return err
		}
		if !ok {
			return &NoKernelInNewRootfsError{RootfsPath: state.NewRootfs.Path}
		}
		return nil
	})

	wf.AddStep("seeding next baseline", func(ctx context.Context, state *WorkflowState) error {
		_, err := state.NewRootfs.Exec(ctx, "cp", "-ax", "/etc", "/usr/etc")
		if err != nil {
			return err
		}
		_, err = runner.Run(ctx, "cp", "-ax", state.NewRootfs.Path, paths.UpdateRootfs)
		return err
	})

	wf.AddStep("replacing boot files", func(ctx context.Context, state *WorkflowState) error {
		return ReplaceBootFiles(ctx, runner)
	})

	return wf
}

var errMissingRevisionLabel = &missingRevisionLabel{}

type missingRevisionLabel struct{}

func (*missingRevisionLabel) Error() string { return "missing revision from remote image metadata" }

// mergeIdentityDatabases runs the four-database merge in the fixed order
// the group and gshadow merges depend on (§4.8 step 8): passwd, then
// shadow, then group, then gshadow, threading the new passwd records
// through to the group/gshadow grafting step.
func mergeIdentityDatabases(ctx context.Context, state *WorkflowState) error {
	newRootfsEtc := filepath.Join(state.NewRootfs.Path, "etc")

	hostPasswd, err := os.ReadFile(filepath.Join(paths.Etc, "passwd"))
	if err != nil {
		return &MalformedIdentityDatabaseError{Database: "passwd", Cause: err}
	}
	baselinePasswd, err := os.ReadFile(filepath.Join(paths.UsrEtc, "passwd"))
	if err != nil {
		return &MalformedIdentityDatabaseError{Database: "passwd", Cause: err}
	}
	newImagePasswd, err := os.ReadFile(filepath.Join(newRootfsEtc, "passwd"))
	if err != nil {
		return &MalformedIdentityDatabaseError{Database: "passwd", Cause: err}
	}
	mergedPasswd, err := MergePasswd(string(hostPasswd), string(baselinePasswd), string(newImagePasswd))
	if err != nil {
		return err
	}
	if err := writeDatabase(paths.NewEtc, "passwd", mergedPasswd); err != nil {
		return err
	}
	state.NewPasswdEntries = mergedPasswd

	hostShadow, err := os.ReadFile(filepath.Join(paths.Etc, "shadow"))
	if err != nil {
		return &MalformedIdentityDatabaseError{Database: "shadow", Cause: err}
	}
	baselineShadow, err := os.ReadFile(filepath.Join(paths.UsrEtc, "shadow"))
	if err != nil {
		return &MalformedIdentityDatabaseError{Database: "shadow", Cause: err}
	}
	newImageShadow, err := os.ReadFile(filepath.Join(newRootfsEtc, "shadow"))
	if err != nil {
		return &MalformedIdentityDatabaseError{Database: "shadow", Cause: err}
	}
	mergedShadow, err := MergeShadow(string(hostPasswd), string(hostShadow), string(baselineShadow), string(newImageShadow))
	if err != nil {
		return err
	}
	if err := writeDatabase(paths.NewEtc, "shadow", mergedShadow); err != nil {
		return err
	}

	hostGroup, err := os.ReadFile(filepath.Join(paths.Etc, "group"))
	if err != nil {
		return &MalformedIdentityDatabaseError{Database: "group", Cause: err}
	}
	baselineGroup, err := os.ReadFile(filepath.Join(paths.UsrEtc, "group"))
	if err != nil {
		return &MalformedIdentityDatabaseError{Database: "group", Cause: err}
	}
	newImageGroup, err := os.ReadFile(filepath.Join(newRootfsEtc, "group"))
	if err != nil {
		return &MalformedIdentityDatabaseError{Database: "group", Cause: err}
	}
	mergedGroup, err := MergeGroup(string(hostGroup), string(baselineGroup), string(newImageGroup), mergedPasswd)
	if err != nil {
		return err
	}
	if err := writeDatabase(paths.NewEtc, "group", mergedGroup); err != nil {
		return err
	}

	hostGshadow, err := os.ReadFile(filepath.Join(paths.Etc, "gshadow"))
	if err != nil {
		return &MalformedIdentityDatabaseError{Database: "gshadow", Cause: err}
	}
	baselineGshadow, err := os.ReadFile(filepath.Join(paths.UsrEtc, "gshadow"))
	if err != nil {
		return &MalformedIdentityDatabaseError{Database: "gshadow", Cause: err}
	}
	newImageGshadow, err := os.ReadFile(filepath.Join(newRootfsEtc, "gshadow"))
	if err != nil {
		return &MalformedIdentityDatabaseError{Database: "gshadow", Cause: err}
	}
	mergedGshadow, err := MergeGshadow(string(hostGroup), string(hostGshadow), string(baselineGshadow), string(newImageGshadow), mergedPasswd)
	if err != nil {
		return err
	}
	return writeDatabase(paths.NewEtc, "gshadow", mergedGshadow)
}

func writeDatabase(dir, name string, lines []string) error {
	content := ""
	for _, line := range lines {
		content += line + "\n"
	}
	return os.WriteFile(filepath.Join(dir, name), []byte(content), 0644)
}
