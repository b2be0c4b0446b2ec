package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/otiai10/stripehook/internal/webhook"
)

var (
	signSecret    string
	signTimestamp int64
	signFile      string
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Print a Stripe-Signature header for a payload",
	Long: `Sign a payload the way Stripe does and print the header value.

Useful for sending test events to a running receiver.

Examples:
  stripehook sign --secret whsec_... --file event.json
  cat event.json | stripehook sign --secret whsec_... --timestamp 1700000000`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := webhook.NewSecret(signSecret)
		if err != nil {
			return fmt.Errorf("--secret: %w", err)
		}

		payload, err := readPayload(cmd.InOrStdin(), signFile)
		if err != nil {
			return err
		}

		ts := signTimestamp
		if ts == 0 {
			ts = time.Now().Unix()
		}

		_, err = fmt.Fprintln(cmd.OutOrStdout(), webhook.SignHeader(secret, ts, payload))
		return err
	},
}

func init() {
	signCmd.Flags().StringVar(&signSecret, "secret", "", "endpoint secret (required)")
	signCmd.Flags().Int64Var(&signTimestamp, "timestamp", 0, "unix timestamp to sign at (default now)")
	signCmd.Flags().StringVar(&signFile, "file", "-", "payload file, - for stdin")
	_ = signCmd.MarkFlagRequired("secret")
	rootCmd.AddCommand(signCmd)
}

func readPayload(stdin io.Reader, path string) ([]byte, error) {
	if path == "" || path == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload from stdin: %w", err)
		}
		return b, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	return b, nil
}
