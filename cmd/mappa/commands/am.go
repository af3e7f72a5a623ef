package commands

import (
	"encoding/json"
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/mappa/am"
	"github.com/teranos/mappa/errors"
	"github.com/teranos/mappa/sym"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: sym.AM + " Manage mappa core configuration",
	Long: sym.AM + ` am — Manage mappa core configuration ("I am")

Configuration sources (later overrides earlier):
1. Default values
2. System config (/etc/mappa/mappa.toml)
3. User config (~/.mappa/mappa.toml)
4. Project config (./mappa.toml, searched upward)
5. Environment variables (MAPPA_* prefix, e.g. MAPPA_SYSTEM_BACKEND)
6. Command line flags of the bootstrap command

Examples:
  mappa am show                    # Show current configuration
  mappa am show --format json      # Show configuration in JSON format
  mappa am get system.backend      # Get specific config value
  mappa am validate                # Validate current configuration
  mappa am where                   # List the configuration files checked
  mappa am init                    # Write the effective configuration to ./mappa.toml`,
	SilenceUsage: true,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the current mappa configuration merged from all sources",
	Args:  cobra.NoArgs,
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., database.path, import.timeout_seconds)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	Args:  cobra.NoArgs,
	RunE:  runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	Args:  cobra.NoArgs,
	RunE:  runAmWhere,
}

var amInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the effective configuration to a TOML file",
	Long: `Write the configuration merged from all sources to --path (default ./mappa.toml).
An existing file is rotated to .back1, .back2 and .back3 first.`,
	Args: cobra.NoArgs,
	RunE: runAmInit,
}

var (
	configFormat string
	initPath     string
)

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amValidateCmd)
	amInitCmd.Flags().StringVar(&initPath, "path", am.ConfigFileName, "File to write")

	AmCmd.AddCommand(amWhereCmd)
	AmCmd.AddCommand(amInitCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	out := cmd.OutOrStdout()
	switch configFormat {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to JSON")
		}
		fmt.Fprintln(out, string(data))

	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to YAML")
		}
		fmt.Fprintf(out, "# mappa core configuration\n%s", data)

	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to TOML")
		}
		fmt.Fprintf(out, "# mappa core configuration\n%s", data)

	default:
		return errors.Newf("unsupported format: %s (supported: toml, json, yaml)", configFormat)
	}
	return nil
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]
	if !am.GetViper().IsSet(key) {
		return errors.Newf("configuration key %q not found", key)
	}
	fmt.Fprintln(cmd.OutOrStdout(), am.Get(key))
	return nil
}

// runAmValidate reads each cascade file on its own, since the merged load
// skips unreadable files, then validates the merged result.
func runAmValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	var failed error
	for _, p := range am.ConfigPaths() {
		if !p.Exists {
			continue
		}
		if _, err := am.LoadFromFile(p.Path); err != nil {
			failed = errors.CombineErrors(failed, errors.Wrapf(err, "%s config", p.Kind))
			continue
		}
		fmt.Fprintf(out, "✓ %s\n", p.Path)
	}

	cfg, err := am.Load()
	if err != nil {
		return errors.CombineErrors(failed, errors.Wrap(err, "failed to load config"))
	}
	if err := cfg.Validate(); err != nil {
		failed = errors.CombineErrors(failed, errors.Wrap(err, "configuration validation failed"))
	}
	if failed != nil {
		return failed
	}
	fmt.Fprintln(out, "✓ Configuration is valid")
	return nil
}

func runAmInit(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}
	if err := am.Save(cfg, initPath); err != nil {
		return errors.Wrapf(err, "write %s", initPath)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s\n", initPath)
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Configuration cascade (later overrides earlier):")
	fmt.Fprintln(out, "  [DEFAULT]  Built-in defaults")
	for _, p := range am.ConfigPaths() {
		status := "missing"
		if p.Exists {
			status = "found"
		}
		fmt.Fprintf(out, "  [%-7s]  %s (%s)\n", p.Kind, p.Path, status)
	}
	fmt.Fprintln(out, "  [ENV]      MAPPA_* environment variables")
	return nil
}
