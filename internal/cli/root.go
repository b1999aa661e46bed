// Package cli implements statusctl, the operator command line for a
// statusboard deployment.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/marcleai/statusboard/internal/config"
)

// Options are the dependencies shared by every command.
type Options struct {
	// Env resolves ADMIN_TOKEN and credential references. Defaults to the
	// process environment.
	Env *config.Environment

	// Logger receives diagnostics from the probe and catalog packages.
	Logger zerolog.Logger
}

// NewRootCommand builds the statusctl command tree.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Env == nil {
		opts.Env = config.NewEnvironment(nil)
	}

	root := &cobra.Command{
		Use:   "statusctl",
		Short: "Inspect and validate a statusboard deployment",
		Long: `statusctl works against the services config file and a running statusboard.

Use validate before deploying a config change, check to probe services from
this machine, and audit to list configuration problems of a live instance.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newAuditCommand(opts),
		newCheckCommand(opts),
		newValidateCommand(opts),
	)
	return root
}
