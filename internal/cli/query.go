package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) newQueryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "query <db> <sql>",
		Short: "Run a read-only query against a provisioned database",
		Long: "Prints the bridge's JSON output: an array of row objects, or an\n" +
			"object with an \"error\" key. Failures are part of the output and\n" +
			"do not change the exit status.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := a.loadConfig()
			if err != nil {
				return err
			}
			log := a.toolLogger(cfg, cmd.ErrOrStderr())

			assets, err := openBundle(cfg, log)
			if err != nil {
				return err
			}
			br := newBridge(cfg, assets, log)
			fmt.Fprintln(cmd.OutOrStdout(), br.ExecuteQuery(cmd.Context(), args[0], args[1]))
			return nil
		},
	}
}

func (a *app) newAssetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "asset <path>",
		Short: "Print a text resource from the bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := a.loadConfig()
			if err != nil {
				return err
			}
			log := a.toolLogger(cfg, cmd.ErrOrStderr())

			assets, err := openBundle(cfg, log)
			if err != nil {
				return err
			}
			text, ok := newBridge(cfg, assets, log).ReadAssetFile(args[0])
			if !ok {
				return errors.New("asset " + args[0] + " is not readable")
			}
			fmt.Fprint(cmd.OutOrStdout(), text)
			return nil
		},
	}
}
