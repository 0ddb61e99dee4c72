package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	rebaseForce       bool
	rebaseAssumeYes   bool
	rebaseImageTarget string
)

var rebaseCmd = &cobra.Command{
	Use:   "rebase <image>",
	Short: "Switch the system to a different OS image",
	Long: `Rebase switches the system onto the given OCI image reference, merging
host identity and configuration state into the new root filesystem.

Refuses if the system is already on the latest revision of the image,
unless --force is given. Refuses if an update is already staged and
awaiting reboot, unless --force is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runRebase,
}

func init() {
	rootCmd.AddCommand(rebaseCmd)
	rebaseCmd.Flags().BoolVarP(&rebaseForce, "force", "f", false, "rebase even if already on the latest revision, or an update is already staged")
	rebaseCmd.Flags().BoolVarP(&rebaseAssumeYes, "yes", "y", false, "skip the interactive confirmation prompt")
}

func runRebase(cmd *cobra.Command, args []string) error {
	rebaseImageTarget = args[0]

	interactive := term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
	if !rebaseAssumeYes && interactive {
		confirmed := false
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Rebase this system onto %s?", rebaseImageTarget)).
					Description("Host identity (passwd/shadow/group/gshadow) and /var/lib state will be merged into the new image.").
					Value(&confirmed),
			),
		)
		if err := form.Run(); err != nil {
			return err
		}
		if !confirmed {
			return nil
		}
	}

	return runUpdateLike(cmd.Context(), rebaseImageTarget, rebaseForce, true)
}
