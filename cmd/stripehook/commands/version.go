package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/otiai10/stripehook/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build commit hash",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), version.CommitHash)
		return err
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
