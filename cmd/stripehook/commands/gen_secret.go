package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/otiai10/stripehook/internal/webhook"
)

var genSecretCmd = &cobra.Command{
	Use:   "gen-secret",
	Short: "Generate a random endpoint secret",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := webhook.GenerateSecret()
		if err != nil {
			return fmt.Errorf("failed to generate secret: %w", err)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), s)
		return err
	},
}

func init() {
	rootCmd.AddCommand(genSecretCmd)
}
