package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/commonarch/system/pkg"
)

var updateCheckCmd = &cobra.Command{
	Use:    "update-check",
	Hidden: true,
	Short:  "Run the background update-check loop",
	Long: `update-check runs a long-lived loop that periodically checks whether a
system update is available and, with the user's consent, applies it in the
background. Intended to run under a user systemd unit, not invoked
directly.`,
	RunE: runUpdateCheck,
}

func init() {
	rootCmd.AddCommand(updateCheckCmd)
}

func runUpdateCheck(cmd *cobra.Command, args []string) error {
	reporter := pkg.NewTextReporter(os.Stdout, os.Stderr)
	daemon := pkg.NewUpdateCheckDaemon(reporter)
	return daemon.Run(cmd.Context())
}
