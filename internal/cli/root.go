package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/arutha/lexhost/internal/infrastructure/config"
	"github.com/arutha/lexhost/internal/infrastructure/logging"
)

// defaultConfigPath is used when neither --config nor LEXHOST_CONFIG is set.
// A missing file at this path is not an error.
const defaultConfigPath = "configs/config.yaml"

// BuildInfo identifies the running binary. VersionCode is the integer the
// version gate compares against the stored marker.
type BuildInfo struct {
	Version     string
	VersionCode int
	Commit      string
	Date        string
}

// app holds state shared by every command.
type app struct {
	info       BuildInfo
	configPath string
}

// NewRootCommand builds the lexhost command tree. Running it without a
// subcommand starts the server.
func NewRootCommand(info BuildInfo) *cobra.Command {
	a := &app{info: info}

	root := &cobra.Command{
		Use:           "lexhost",
		Short:         "Provision bundled SQLite databases and serve a read-only query bridge",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       info.Version,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServe(cmd, serveOptions{})
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "",
		"path to config file (default $LEXHOST_CONFIG or "+defaultConfigPath+")")

	root.AddCommand(
		a.newServeCommand(),
		a.newProvisionCommand(),
		a.newQueryCommand(),
		a.newAssetCommand(),
		a.newTokenCommand(),
		a.newMigrateCommand(),
		a.newVersionCommand(),
	)
	return root
}

// Execute runs the command tree and reports any error on stderr. It returns
// the process exit code.
func Execute(ctx context.Context, info BuildInfo, args []string) int {
	root := NewRootCommand(info)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(root.ErrOrStderr(), "Error: %v\n", err)
		return 1
	}
	return 0
}

// loadConfig resolves the config path and loads it. Only the implicit
// default path may be absent.
func (a *app) loadConfig() (*config.Config, string, error) {
	path, optional := a.configPath, false
	if path == "" {
		path = os.Getenv("LEXHOST_CONFIG")
	}
	if path == "" {
		path, optional = defaultConfigPath, true
	}

	cfg, err := config.Load(path, optional)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

// versionCode prefers an explicit app.version_code over the build value.
func (a *app) versionCode(cfg *config.Config) int {
	if cfg.App.VersionCode > 0 {
		return cfg.App.VersionCode
	}
	return a.info.VersionCode
}

// toolLogger logs to w, which keeps stdout clean for command output.
func (a *app) toolLogger(cfg *config.Config, w io.Writer) *logging.Logger {
	return logging.NewWithWriter(cfg.Logging, a.info.Version, w)
}
