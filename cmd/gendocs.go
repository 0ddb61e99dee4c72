package cmd

import (
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

// NewGendocsCommand creates a new command to generate documentation for the project
func NewGendocsCommand() *cobra.Command {
	gendocsCmd := &cobra.Command{
		Use:    "gendocs",
		Hidden: true,
		Short:  "Generates documentation for the project",
		Long: `Generates documentation for the command using the cobra doc generator.
The documentation is generated in the ./docs/cli directory and
is in markdown format.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lipgloss.DefaultRenderer().SetColorProfile(termenv.Ascii)

			o, err := cmd.Flags().GetString("output")
			if err != nil {
				return err
			}
			cmd.Root().DisableAutoGenTag = true
			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			target := filepath.Join(wd, o)
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			return doc.GenMarkdownTreeCustom(cmd.Root(), o, func(_ string) string {
				return ""
			}, func(s string) string {
				return s
			})
		},
	}

	gendocsCmd.Flags().StringP("output", "o", "docs/cli", "Output directory for the documentation")
	return gendocsCmd
}

func init() {
	rootCmd.AddCommand(NewGendocsCommand())
}
