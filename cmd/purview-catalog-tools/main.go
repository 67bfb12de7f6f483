package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vitebski/purview-catalog-tools/internal/catalog"
	"github.com/vitebski/purview-catalog-tools/internal/config"
	"github.com/vitebski/purview-catalog-tools/internal/lineage"
	"github.com/vitebski/purview-catalog-tools/internal/lookup"
	"github.com/vitebski/purview-catalog-tools/internal/populator"
	"github.com/vitebski/purview-catalog-tools/internal/report"
	"github.com/vitebski/purview-catalog-tools/internal/resolver"
	"github.com/vitebski/purview-catalog-tools/internal/utils"
)

// offlineAnnotation marks commands that work on local files only and need
// no catalog credentials
const offlineAnnotation = "offline"

// options holds the persistent flag values
type options struct {
	envFile     string
	configFile  string
	account     string
	environment string
	logLevel    string
	writeMode   string
	batchSize   int
	workers     int
	summaryFile string
}

// app is the state shared by every subcommand of one run
type app struct {
	opts    options
	cfg     *config.Config
	logger  *logrus.Logger
	session *catalog.Session
	cache   *resolver.NameCache
}

// setup loads the environment and configuration. Flags win over the
// environment, which wins over the config file.
func (a *app) setup(cmd *cobra.Command) error {
	a.logger = utils.SetupLogging(a.opts.logLevel)
	offline := cmd.Annotations[offlineAnnotation] == "true"
	if !offline {
		utils.LoadEnvironmentVariables(a.opts.envFile, a.logger)
	}

	cfg, err := config.Load(a.opts.configFile)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("account") {
		cfg.Account = a.opts.account
	}
	if flags.Changed("environment") {
		cfg.Environment = a.opts.environment
	}
	if flags.Changed("write-mode") {
		cfg.WriteMode = a.opts.writeMode
	}
	if flags.Changed("batch-size") {
		cfg.BatchSize = a.opts.batchSize
	}
	if flags.Changed("workers") {
		cfg.Workers = a.opts.workers
	}
	if flags.Changed("summary-file") {
		cfg.SummaryFile = a.opts.summaryFile
	}
	a.cfg = cfg
	a.cache = resolver.NewNameCache()

	if offline {
		return nil
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.session = catalog.NewSession(cmd.Context(), cfg, a.logger)
	a.logger.Infof("Using catalog account %s (%s)", cfg.Account, cfg.Environment)
	return nil
}

// run executes fn with a fresh recorder and always reports the summary,
// including after cancellation
func (a *app) run(cmd *cobra.Command, name string, fn func(ctx context.Context, rec *report.Recorder) error) error {
	rec := report.NewRecorder(name, a.logger)
	err := fn(cmd.Context(), rec)

	utils.PrintRunSummary(rec.Summary())
	if a.cfg != nil && a.cfg.SummaryFile != "" {
		if werr := rec.WriteJSON(a.cfg.SummaryFile); werr != nil {
			a.logger.Errorf("Failed to write run summary: %v", werr)
		}
	}
	if cmd.Context().Err() != nil {
		a.logger.Warn("Run cancelled")
	}
	return err
}

func (a *app) populator(rec *report.Recorder) *populator.EntityPopulator {
	return populator.NewEntityPopulator(a.session, a.cfg.BatchSize, a.cfg.Workers, rec, a.logger)
}

func (a *app) writer(rec *report.Recorder) *lineage.Writer {
	return lineage.NewWriter(a.session, a.cfg.WriteMode, rec, a.cache, a.logger)
}

func (a *app) linker(rec *report.Recorder, prefix string, fuzzy float64) *lineage.Linker {
	var finder lookup.Strategy = lookup.NewExact(a.session)
	if fuzzy > 0 {
		finder = lookup.NewFuzzy(a.session, fuzzy)
	}
	return lineage.NewLinker(a.writer(rec), finder, a.session, prefix, a.logger)
}

func newRootCommand() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "purview-catalog-tools",
		Short: "Bulk ingestion, lineage and governance tooling for a Purview data catalog",
		Long: `Purview Catalog Tools

Loads data dictionaries into the catalog, builds lineage between cataloged
assets, organizes collections, propagates glossary terms and reports on
scans. Failures of individual items are recorded and summarized at the end
of every run.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&a.opts.envFile, "env-file", "e", ".env", "Path to .env file")
	pf.StringVarP(&a.opts.configFile, "config", "c", "", "Path to YAML config file")
	pf.StringVarP(&a.opts.account, "account", "a", "", "Catalog account name (default: PURVIEW_ACCOUNT)")
	pf.StringVarP(&a.opts.environment, "environment", "E", "", "Environment short name (dv, qa, pd)")
	pf.StringVarP(&a.opts.logLevel, "log-level", "l", "", "Log level (debug, info, warn, error)")
	pf.StringVarP(&a.opts.writeMode, "write-mode", "w", "", "Lineage write mode (createOrSkip, alwaysCreate)")
	pf.IntVarP(&a.opts.batchSize, "batch-size", "b", 0, "Entities per bulk upload")
	pf.IntVarP(&a.opts.workers, "workers", "W", 0, "Parallel upload workers")
	pf.StringVarP(&a.opts.summaryFile, "summary-file", "s", "", "Write the run summary as JSON to this file")

	rootCmd.AddCommand(
		newIngestCommand(a),
		newLineageCommand(a),
		newCollectionsCommand(a),
		newGlossaryCommand(a),
		newClassificationCommand(a),
		newPullCommand(a),
		newScansCommand(a),
	)
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
