package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marcleai/statusboard/internal/catalog"
	"github.com/marcleai/statusboard/internal/probe"
)

func newValidateCommand(_ Options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <services-file>",
		Short: "Validate a services config file",
		Long: `Parse a JSON or YAML services file and validate every definition.
Unknown check types are reported as warnings; they fall back to the generic
profile at runtime.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}

			services, err := catalog.Parse(data, path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			enabled := 0
			for _, d := range services {
				if d.Enabled {
					enabled++
				}
				if d.CheckType != "" && !probe.Known(d.CheckType) {
					fmt.Fprintf(out, "warning: %s: unknown check_type %q, using generic\n", d.ID, d.CheckType)
				}
			}
			fmt.Fprintf(out, "%s: %d services (%d enabled)\n", path, len(services), enabled)
			return nil
		},
	}
}
