package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/mappa/am"
	"github.com/teranos/mappa/db"
	"github.com/teranos/mappa/errors"
	"github.com/teranos/mappa/logger"
	"github.com/teranos/mappa/sym"
	"github.com/teranos/mappa/tm"
	"github.com/teranos/mappa/tm/sqlstore"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: sym.DB + " Inspect the topic map store",
	Long: sym.DB + ` db — Inspect the topic map store

Examples:
  mappa db stats                          # Topic and association counts per map
  mappa db stats --backend bolt --db x.db # Inspect another store`,
	SilenceUsage: true,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show topic maps with their topic and association counts",
	Args:  cobra.NoArgs,
	RunE:  runDbStats,
}

var (
	statsBackendFlag string
	statsPathFlag    string
)

func init() {
	DbCmd.AddCommand(dbStatsCmd)
	dbStatsCmd.Flags().StringVar(&statsBackendFlag, "backend", "", "Backend: sqlite, bolt (overrides system.backend)")
	dbStatsCmd.Flags().StringVar(&statsPathFlag, "db", "", "Database file (overrides database.path)")
}

func runDbStats(cmd *cobra.Command, args []string) error {
	loaded, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	cfg := *loaded
	if cmd.Flags().Changed("backend") {
		cfg.System.Backend = statsBackendFlag
	}
	if cmd.Flags().Changed("db") {
		cfg.Database.Path = statsPathFlag
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}

	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "%s Topic Map Store Statistics\n", sym.DB)
	fmt.Fprintf(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	fmt.Fprintf(out, "Backend:       %s\n", cfg.System.Backend)
	if cfg.System.Backend != am.BackendMemory {
		fmt.Fprintf(out, "Database Path: %s\n", cfg.Database.Path)
	}

	// The sqlite store shares its connection so migrations can be reported
	if cfg.System.Backend == am.BackendSQLite {
		conn, err := db.OpenWithMigrations(cfg.Database.Path, logger.Logger)
		if err != nil {
			return errors.Wrapf(err, "failed to open database at %s", cfg.Database.Path)
		}
		defer conn.Close()

		versions, err := db.AppliedVersions(conn)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Migrations:    %v\n", versions)
		return printMapStats(cmd, sqlstore.New(conn, logger.ComponentLogger(sqlstore.BackendName)))
	}

	sys, err := openSystem(cmd.Context(), &cfg)
	if err != nil {
		return err
	}
	defer sys.Close()
	return printMapStats(cmd, sys)
}

func printMapStats(cmd *cobra.Command, sys tm.System) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	iris, err := sys.TopicMapIRIs(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to list topic maps")
	}
	fmt.Fprintf(out, "Topic Maps:    %d\n\n", len(iris))

	for _, iri := range iris {
		m, err := sys.GetTopicMap(ctx, iri)
		if err != nil {
			return errors.Wrapf(err, "failed to open topic map %q", iri)
		}
		stats, err := m.Stats(ctx)
		if err != nil {
			return errors.Wrapf(err, "failed to count %q", iri)
		}
		fmt.Fprintf(out, "%s %q\n", sym.Map, iri)
		fmt.Fprintf(out, "  %s Topics:       %d\n", sym.Topic, stats.Topics)
		fmt.Fprintf(out, "  %s Associations: %d\n", sym.Assoc, stats.Associations)
	}
	return nil
}
