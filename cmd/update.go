package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/commonarch/system/internal/paths"
	"github.com/commonarch/system/pkg"
)

var updateForce bool

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update the system to the latest revision of its configured image",
	Long: `Update fetches the image named in /system.yaml and rebases the system
onto it, merging host identity and configuration state into the new root
filesystem.

Refuses if the system is already on the latest revision, unless --force is
given. Refuses if an update is already staged and awaiting reboot, unless
--force is given.`,
	RunE: runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)
	updateCmd.Flags().BoolVarP(&updateForce, "force", "f", false, "rebase even if already on the latest revision, or an update is already staged")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	cfg, err := pkg.LoadSystemConfig()
	if err != nil {
		return fmt.Errorf("no image specified and failed to read system config: %w", err)
	}
	if cfg.Image == "" {
		return fmt.Errorf("no image configured in /system.yaml")
	}
	return runUpdateLike(cmd.Context(), cfg.Image, updateForce, false)
}

// runUpdateLike is shared by `update` and `rebase`: it enforces the
// root/locking/pending-update preconditions and then runs the rebase
// orchestrator against imageRef (§4.10). explicitImage is true only when
// imageRef was named directly on the command line, as opposed to read
// from /system.yaml.
func runUpdateLike(ctx context.Context, imageRef string, force bool, explicitImage bool) error {
	if os.Geteuid() != 0 {
		return &pkg.PermissionError{}
	}

	verbose := viper.GetBool("verbose")
	reporter := pkg.NewTextReporter(os.Stdout, os.Stderr)

	reporter.Message("attempting to acquire system lock")
	reporter.Message("if the lock is already held, an update may be progressing in the background")

	lock, err := pkg.AcquireSystemLock()
	if err != nil {
		reporter.Error(err, "could not acquire system lock")
		return err
	}
	defer func() { _ = lock.Release() }()

	// Checked before the workflow runs, since its cleanup step removes
	// /.update_rootfs.
	if _, err := os.Stat(paths.UpdateRootfs); err == nil && !force {
		pending := &pkg.UpdateAlreadyPendingError{StagedPath: paths.UpdateRootfs}
		reporter.Error(pending, "update failed")
		return pending
	}

	runner := pkg.NewProcessRunner()
	wf := pkg.NewRebaseWorkflow(reporter, runner, imageRef, force, explicitImage)

	state := &pkg.WorkflowState{
		Verbose:  verbose,
		Reporter: reporter,
		Runner:   runner,
	}

	if err := wf.Run(ctx, state); err != nil {
		reporter.Error(err, "update failed")
		return err
	}

	reporter.Complete("update complete; you may now reboot")
	return nil
}
