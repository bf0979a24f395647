package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arutha/lexhost/internal/startup"
)

func (a *app) newProvisionCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Run the version-gated provisioning pass once and exit",
		Long: "Copies every .db file from the bundle's database folder into the\n" +
			"database directory when the stored version marker differs from the\n" +
			"running version code, then records the new marker.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, _, err := a.loadConfig()
			if err != nil {
				return err
			}
			log := a.toolLogger(cfg, cmd.ErrOrStderr())

			store, err := openStateStore(ctx, cfg, false, log)
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck // Read-mostly; marker already committed

			assets, err := openBundle(cfg, log)
			if err != nil {
				return err
			}
			gate, err := newGate(cfg, assets, store, a.versionCode(cfg), log)
			if err != nil {
				return err
			}

			run := gate.Run
			if force {
				run = gate.Force
			}
			out, err := run(ctx)
			if err != nil {
				return err
			}
			printOutcome(cmd, out, cfg.Storage.DatabaseDir)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "provision even if the stored marker matches")
	return cmd
}

func printOutcome(cmd *cobra.Command, out startup.Outcome, dir string) {
	w := cmd.OutOrStdout()
	if out.Skipped {
		fmt.Fprintf(w, "databases up to date (version code %d)\n", out.Current)
		return
	}
	fmt.Fprintf(w, "copied %d database(s) to %s (version code %s -> %d)\n",
		out.Copied, dir, formatMarker(out.Previous), out.Current)
}

// formatMarker renders the "never provisioned" sentinel readably.
func formatMarker(v int) string {
	if v < 0 {
		return "none"
	}
	return fmt.Sprintf("%d", v)
}
