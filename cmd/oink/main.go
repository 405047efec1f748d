// Oink controls Onkyo and Integra receivers over eISCP.
//
// It discovers receivers on the local network, sends raw or named
// commands, and runs an HTTP bridge that exposes a receiver to other
// programs.
//
// Usage:
//
//	oink [command] [flags]
//
// Running without arguments launches the interactive remote.
// See 'oink --help' for available commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/bsdavidson/oink/internal/config"
	"github.com/bsdavidson/oink/internal/logging"
	"github.com/bsdavidson/oink/internal/version"
)

// Global flags
var (
	deviceAddr string
	devicePort int
	deviceType string
	timeoutMS  int
	logLevel   string
	configPath string
)

// cfg is loaded before every command runs
var cfg *config.Config

// portFlagSet records an explicit --port, which beats a saved receiver port
var portFlagSet bool

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "oink",
	Short: "Onkyo/Integra receiver remote",
	Long: `A command line remote for Onkyo and Integra receivers.

Finds receivers with eISCP discovery, sends commands and queries over the
receiver's TCP control port, and runs an HTTP bridge with a WebSocket
event stream.

If no command is specified, the interactive remote will launch automatically.`,
	Version:           version.Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI(cmd, args)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&deviceAddr, "device", "d", "", "Receiver IP, hostname or saved nickname (auto-discover if not specified)")
	flags.IntVarP(&devicePort, "port", "p", 0, "Receiver TCP port (default from config, 60128)")
	flags.StringVar(&deviceType, "type", "", "Device type character (default from config, \"1\")")
	flags.IntVarP(&timeoutMS, "timeout", "t", 0, "Command timeout in milliseconds (default from config)")
	flags.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default: $"+logging.LogLevelEnvVar+")")
	flags.StringVar(&configPath, "config", "", "Config file path (default: platform config directory)")

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(commandsCmd)
	rootCmd.AddCommand(bridgesCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup loads the config file and initializes logging. Flags given on the
// command line take precedence over file values.
func setup(cmd *cobra.Command, args []string) error {
	path, err := resolveConfigPath()
	if err != nil {
		return err
	}
	cfg, err = config.LoadFrom(path)
	if err != nil {
		return err
	}

	level := logLevel
	if level == "" {
		level = cfg.LogLevel
	}
	if err := logging.Initialize(level); err != nil {
		return err
	}

	global := cmd.Root().PersistentFlags()
	applyFlagOverrides(global, cfg)
	portFlagSet = global.Changed("port")
	return nil
}

func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.GetConfigPath()
}

type flagSet interface {
	Changed(name string) bool
}

// applyFlagOverrides copies the global flags given on the command line
// into c. Subcommand flags of the same name do not count.
func applyFlagOverrides(flags flagSet, c *config.Config) {
	if flags.Changed("port") {
		c.Receiver.Port = devicePort
	}
	if flags.Changed("type") {
		c.Receiver.Type = deviceType
	}
	if flags.Changed("timeout") {
		c.Timeouts.CommandMS = timeoutMS
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.Get()
		if versionJSON {
			return writeJSON(cmd.OutOrStdout(), info)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "oink %s (commit: %s, %s, %s)\n", info.Version, info.Commit, info.GoVersion, info.Platform)
		return nil
	},
}

var versionJSON bool

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "Print version information as JSON")
}
