// Package cli implements the storefront command: the sync server and a thin
// client for driving a running server from scripts.
package cli

import (
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Server  string
	Format  string // "json" | "text"
	Quiet   bool
	Verbose bool
	NoColor bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

const defaultServer = "http://localhost:8080"

// NewRootCommand creates the root command for the storefront CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "storefront",
		Short: "Storefront cart, wishlist and session sync",
		Long: `Keeps a shopper's cart and wishlist consistent across guest and
signed-in sessions, and creates hosted checkout sessions.

Run "storefront serve" to start the sync service. The session, cart,
wishlist and checkout commands talk to a running service.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if os.Getenv("NO_COLOR") != "" {
				opts.NoColor = true
			}
			return nil
		},
	}

	server := os.Getenv("STOREFRONT_URL")
	if server == "" {
		server = defaultServer
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.Server, "server", server, "storefront service base URL")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Quiet, "quiet", "q", false, "print only the essential value")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "show full requests and responses")
	cmd.PersistentFlags().BoolVar(&opts.NoColor, "no-color", false, "disable colored output")

	// Add subcommands
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSessionCommand(opts))
	cmd.AddCommand(NewCartCommand(opts))
	cmd.AddCommand(NewWishlistCommand(opts))
	cmd.AddCommand(NewCheckoutCommand(opts))

	return cmd
}
