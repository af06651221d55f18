package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ashgrove/imaged/internal/cli/output"
	"github.com/ashgrove/imaged/pkg/config"
)

// configCmd is the config subcommand group.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long: `Inspect and validate imaged configuration.

Subcommands:
  init      Create a sample configuration file
  validate  Validate configuration file
  show      Display the resolved configuration`,
}

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a sample configuration file",
	Long: `Write a configuration file populated with imaged's defaults (spec.md
§9's default values: lazy writeback, newest-first eviction, 90%/75%
start/stop ratios) to the given (or default) path.

Examples:
  imaged config init
  imaged config init --config /etc/imaged/config.yaml --force`,
	RunE: runConfigInit,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Load configuration from the given (or default) path, applying defaults
and running all field and cross-field validation, without starting the
service.

Exits 0 if the configuration is valid, 1 otherwise.`,
	RunE: runConfigValidate,
}

var showOutput string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the resolved configuration",
	Long: `Display the fully resolved imaged configuration: file values merged
with environment overrides and defaults.

Examples:
  imaged config show
  imaged config show --output json`,
	RunE: runConfigShow,
}

func init() {
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(validateCmd)
	configCmd.AddCommand(showCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing configuration file")
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "yaml", "Output format (yaml|json)")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := GetConfigFile()
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return &exitError{code: 1, err: fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)}
		}
	}

	if err := config.SaveConfig(config.GetDefaultConfig(), path); err != nil {
		return &exitError{code: 1, err: fmt.Errorf("failed to initialize config: %w", err)}
	}

	fmt.Printf("Configuration file created at: %s\n", path)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Validate it with: imaged config validate")
	fmt.Printf("  3. Start the server with: imaged serve --config %s\n", path)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return &exitError{code: 1, err: err}
	}
	if err := config.Validate(cfg); err != nil {
		return &exitError{code: 1, err: fmt.Errorf("configuration invalid: %w", err)}
	}
	fmt.Println("configuration is valid")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return &exitError{code: 1, err: err}
	}

	format, err := output.ParseFormat(showOutput)
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, cfg)
	default:
		return output.PrintYAML(os.Stdout, cfg)
	}
}
