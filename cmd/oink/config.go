package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bsdavidson/oink/internal/config"
	"github.com/bsdavidson/oink/internal/logging"
	"github.com/bsdavidson/oink/internal/ui"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Example: `  oink config init
  oink config init --config ./oink.yaml --force`,
	Args: cobra.NoArgs,
	// A broken file must not stop it from being replaced
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Initialize(logLevel)
	},
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults and command line flags were
applied.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configNameCmd = &cobra.Command{
	Use:   "name <receiver> <nickname>",
	Short: "Give a saved receiver a nickname",
	Long: `Set the nickname of a receiver saved with "oink discover --save". The
nickname can then be passed to --device.`,
	Example: `  oink config name 0009B0E4B0A1 livingroom`,
	Args:    cobra.ExactArgs(2),
	RunE:    runConfigName,
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file without asking")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configNameCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, err := resolveConfigPath()
	if err != nil {
		return err
	}

	printer := ui.NewPrinter(cmd.OutOrStdout())
	if _, err := os.Stat(path); err == nil {
		if !configForce && !ui.Confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("%s exists. Overwrite?", path)) {
			printer.PrintWarning("Config file left unchanged", map[string]string{"Path": path})
			return nil
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove existing config: %w", err)
		}
	}

	if err := config.CreateDefaultConfig(path); err != nil {
		return err
	}
	printer.PrintSuccess("Config file created", map[string]string{"Path": path})
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runConfigName(cmd *cobra.Command, args []string) error {
	id, known := cfg.FindReceiver(args[0])
	if known == nil {
		return fmt.Errorf("unknown receiver %q (run \"oink discover --save\" first)", args[0])
	}
	cfg.SetReceiverNickname(id, args[1])

	path, err := resolveConfigPath()
	if err != nil {
		return err
	}
	if err := cfg.SaveTo(path); err != nil {
		return err
	}
	ui.NewPrinter(cmd.OutOrStdout()).PrintSuccess("Receiver renamed", map[string]string{
		"Receiver": id,
		"Nickname": args[1],
	})
	return nil
}
