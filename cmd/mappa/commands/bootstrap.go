package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/teranos/mappa/am"
	"github.com/teranos/mappa/bootstrap"
	"github.com/teranos/mappa/errors"
	"github.com/teranos/mappa/importer"
	"github.com/teranos/mappa/logger"
	"github.com/teranos/mappa/sym"
)

// BootstrapCmd ensures the configured topic map exists and prints its topic count
var BootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: sym.Bootstrap + " Ensure the topic map exists and print its topic count",
	Long: sym.Bootstrap + ` bootstrap — Ensure the topic map exists and print its topic count

Looks up the topic map named by map.iri. If it does not exist, it is created
and populated once from the configured dataset (import.source, or the
embedded Pokémon dataset). The topic count is printed to stdout as a bare
integer; logs and progress go to stderr.

Running bootstrap again against a persistent backend finds the map and
prints the same count without importing.

Examples:
  mappa bootstrap                                   # Use mappa.toml and MAPPA_* settings
  mappa bootstrap --backend bolt --db mappa.bolt    # Store in a bbolt file
  mappa bootstrap --source pokemon.yaml --progress  # Import a YAML dataset
  mappa bootstrap --progress=json                   # Progress as JSON lines on stderr
  mappa bootstrap --map "" --backend memory         # The empty IRI is a valid key`,
	Args:         cobra.NoArgs,
	RunE:         RunBootstrap,
	SilenceUsage: true,
}

type bootstrapFlags struct {
	mapIRI   string
	source   string
	format   string
	baseIRI  string
	backend  string
	dbPath   string
	timeout  time.Duration
	progress string
}

// Progress output modes for --progress
const (
	progressText = "text"
	progressJSON = "json"
)

var bootstrapOpts bootstrapFlags

func init() {
	AddBootstrapFlags(BootstrapCmd.Flags())
}

// AddBootstrapFlags registers the bootstrap overrides on fs. The root command
// shares them since running mappa without a subcommand bootstraps.
func AddBootstrapFlags(fs *pflag.FlagSet) {
	fs.StringVar(&bootstrapOpts.mapIRI, "map", "", "Topic map IRI (overrides map.iri)")
	fs.StringVar(&bootstrapOpts.source, "source", "", "Dataset file (overrides import.source)")
	fs.StringVar(&bootstrapOpts.format, "format", "", "Dataset format: jtm, yaml (overrides import.format)")
	fs.StringVar(&bootstrapOpts.baseIRI, "base-iri", "", "Base IRI for relative references (overrides import.base_iri)")
	fs.StringVar(&bootstrapOpts.backend, "backend", "", "Backend: memory, sqlite, bolt (overrides system.backend)")
	fs.StringVar(&bootstrapOpts.dbPath, "db", "", "Database file (overrides database.path)")
	fs.DurationVar(&bootstrapOpts.timeout, "timeout", 0, "Import deadline, 0 disables (overrides import.timeout_seconds)")
	fs.StringVar(&bootstrapOpts.progress, "progress", "", "Show import progress on stderr: text, json (bare --progress is text, json under log.json)")
	fs.Lookup("progress").NoOptDefVal = progressText
}

// RunBootstrap runs the bootstrap sequence for cmd
func RunBootstrap(cmd *cobra.Command, args []string) error {
	cfg, timeout, err := bootstrapConfig(cmd.Flags())
	if err != nil {
		return err
	}

	emitter, err := progressEmitter(cmd, cfg.Log.JSON)
	if err != nil {
		return err
	}

	imp, err := importer.New(importer.Options{
		Source:  cfg.Import.Source,
		Format:  cfg.Import.Format,
		BaseIRI: cfg.Import.BaseIRI,
		Emitter: emitter,
		Logger:  logger.ComponentLogger("importer"),
	})
	if err != nil {
		return errors.Wrap(err, "configure importer")
	}

	logger.ComponentLogger("bootstrap").Debugw("bootstrapping",
		logger.FieldMapIRI, cfg.Map.IRI,
		logger.FieldBackend, cfg.System.Backend,
		logger.FieldPath, cfg.Database.Path,
		logger.FieldSource, imp.Source())

	res, err := bootstrap.Run(cmd.Context(), systemFactory(cfg), imp, cfg.Map.IRI,
		bootstrap.Options{ImportTimeout: timeout})
	if err != nil {
		return errors.Wrap(err, "bootstrap failed")
	}

	fmt.Fprintln(cmd.OutOrStdout(), res.TopicCount)
	return nil
}

// progressEmitter picks the emitter for --progress. JSON logs turn text
// progress into JSON events so stderr stays machine readable.
func progressEmitter(cmd *cobra.Command, jsonLogs bool) (importer.Emitter, error) {
	switch bootstrapOpts.progress {
	case "":
		return nil, nil
	case progressText:
		if jsonLogs {
			return importer.NewJSONEmitter(cmd.ErrOrStderr()), nil
		}
		verbosity, _ := cmd.Flags().GetCount("verbose")
		return importer.NewCLIEmitter(cmd.ErrOrStderr(), verbosity), nil
	case progressJSON:
		return importer.NewJSONEmitter(cmd.ErrOrStderr()), nil
	}
	return nil, errors.Newf("--progress must be %s or %s, got %q", progressText, progressJSON, bootstrapOpts.progress)
}

// bootstrapConfig applies explicitly set flags over the loaded configuration
func bootstrapConfig(fs *pflag.FlagSet) (*am.Config, time.Duration, error) {
	loaded, err := am.Load()
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to load config")
	}
	cfg := *loaded

	if fs.Changed("map") {
		cfg.Map.IRI = bootstrapOpts.mapIRI
	}
	if fs.Changed("source") {
		cfg.Import.Source = bootstrapOpts.source
	}
	if fs.Changed("format") {
		cfg.Import.Format = bootstrapOpts.format
	}
	if fs.Changed("base-iri") {
		cfg.Import.BaseIRI = bootstrapOpts.baseIRI
	}
	if fs.Changed("backend") {
		cfg.System.Backend = bootstrapOpts.backend
	}
	if fs.Changed("db") {
		cfg.Database.Path = bootstrapOpts.dbPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, 0, errors.Wrap(err, "configuration validation failed")
	}

	timeout := cfg.Import.Timeout()
	if fs.Changed("timeout") {
		if bootstrapOpts.timeout < 0 {
			return nil, 0, errors.Newf("--timeout must be >= 0, got %s", bootstrapOpts.timeout)
		}
		timeout = bootstrapOpts.timeout
	}
	return &cfg, timeout, nil
}
