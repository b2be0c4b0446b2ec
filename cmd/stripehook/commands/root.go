package commands

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "stripehook",
	Short: "Receive and verify Stripe webhook events",
	Long: `stripehook receives Stripe webhook events over HTTP and accepts only
those whose Stripe-Signature header verifies against the endpoint secret.

Examples:
  STRIPE_WEBHOOK_SECRET=whsec_... stripehook serve
  stripehook serve --config stripehook.yaml
  stripehook sign --secret whsec_... --file event.json
  stripehook gen-secret`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
