package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/teranos/mappa/am"
	"github.com/teranos/mappa/cmd/mappa/commands"
	"github.com/teranos/mappa/errors"
	"github.com/teranos/mappa/logger"
)

var rootCmd = &cobra.Command{
	Use:   "mappa",
	Short: "mappa - Topic Map bootstrap",
	Long: `mappa - Topic Map bootstrap.

Run without a command, mappa ensures the configured topic map exists,
populates it once from a dataset, and prints its topic count.

Available commands:
  bootstrap - Ensure the topic map and print its topic count (default)
  am        - Manage mappa core configuration ("I am")
  db        - Inspect the topic map store
  version   - Show version information

Examples:
  mappa                    # Bootstrap with mappa.toml and MAPPA_* settings
  mappa --backend memory   # Bootstrap into a throwaway in-memory store
  mappa am show            # Show current configuration
  mappa db stats           # Show per-map topic counts`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs := false
		// 'am show' prints the configuration itself; a broken file is reported there
		if cfg, err := am.Load(); err == nil {
			jsonLogs = cfg.Log.JSON
		}
		if err := logger.Initialize(logger.Options{JSON: jsonLogs, Verbosity: verbosity}); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		return nil
	},
	RunE: commands.RunBootstrap,
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	commands.AddBootstrapFlags(rootCmd.Flags())

	rootCmd.AddCommand(commands.BootstrapCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load .env: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logger.Cleanup()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		for _, hint := range errors.GetAllHints(err) {
			fmt.Fprintln(os.Stderr, "Hint:", hint)
		}
		os.Exit(1)
	}
}
