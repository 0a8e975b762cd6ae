// Package cli implements the wishctl commands.
package cli

import (
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/astromechza/wishboard/pkg/capture"
	"github.com/astromechza/wishboard/pkg/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Relay   string
	Timeout time.Duration
	Format  string
}

var ValidFormats = []string{"text", "json", "yaml"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "wishctl",
		Short: "Drive a wish board relay",
		Long: `Submit wishes to a relay, manage the board and inspect saved board documents.

The relay address and timeout default to WISHBOARD_RELAY and WISHBOARD_TIMEOUT.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			var env config.Client
			if err := config.ParseEnv(&env); err != nil {
				return err
			}
			flags := cmd.Flags()
			if !flags.Changed("relay") {
				opts.Relay = env.Relay
			}
			if !flags.Changed("timeout") {
				opts.Timeout = env.Timeout
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Relay, "relay", "http://127.0.0.1:8080", "relay base url")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "request timeout")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")

	cmd.AddCommand(NewUploadCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewClearCommand(opts))
	cmd.AddCommand(NewSpotlightCommand(opts))
	cmd.AddCommand(NewSpotlightOffCommand(opts))
	cmd.AddCommand(NewThemeCommand(opts))
	cmd.AddCommand(NewDumpCommand(opts))

	return cmd
}

func (o *RootOptions) client() (*capture.Client, error) {
	return capture.NewClient(o.Relay, &http.Client{Timeout: o.Timeout})
}
