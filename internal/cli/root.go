package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"waysock.dev/go/waysock/internal/config"
)

var (
	version    = "dev"
	cfgFile    string
	verboseLog bool
)

func SetVersion(v string) {
	version = v
}

// RootCmd is the root command, exported for documentation generation
var RootCmd = &cobra.Command{
	Use:   "waysock",
	Short: "Display socket manager for the Wayland discovery convention",
	Long: `waysock - display socket manager

Binds and owns a display socket in XDG_RUNTIME_DIR following the
Wayland discovery convention: numbered candidate names, each guarded
by an exclusive .lock file so that only one process on the system
ever owns a given name. The daemon tracks connected peers and serves
inspection over a control socket bound next to the display socket.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// For internal use, keep an alias
var rootCmd = RootCmd

func Execute() error {
	return RootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.config/waysock/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verboseLog, "verbose", "v", false, "verbose output")
}

// loadConfig loads the config file named by --config, or the default
// one when the flag is unset
func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		cfg, err := config.LoadFrom(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", cfgFile, err)
		}
		return cfg, nil
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
