package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/vitebski/purview-catalog-tools/internal/collections"
	"github.com/vitebski/purview-catalog-tools/internal/glossary"
	"github.com/vitebski/purview-catalog-tools/internal/report"
	"github.com/vitebski/purview-catalog-tools/internal/scans"
	"github.com/vitebski/purview-catalog-tools/internal/snapshot"
)

// DefaultPackageType is the entity type of SAP S/4HANA packages
const DefaultPackageType = "sap_s4hana_package"

func newCollectionsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collections",
		Short: "Create collections and organize their entities",
	}

	var archive, logs, ingest string
	sortCmd := &cobra.Command{
		Use:   "sort <collection>",
		Short: "Move Archive, Log and Ingest entities of a collection into its subcollections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "collections-sort", func(ctx context.Context, rec *report.Recorder) error {
				cols, err := a.session.ListCollections(ctx)
				if err != nil {
					return errors.Wrap(err, "listing collections")
				}
				targets := collections.DefaultTargets(cols, args[0])
				if archive != "" {
					targets.Archive = archive
				}
				if logs != "" {
					targets.Log = logs
				}
				if ingest != "" {
					targets.Ingest = ingest
				}
				_, err = collections.NewManager(a.session, rec, a.logger).Sort(ctx, args[0], targets)
				return err
			})
		},
	}
	sortCmd.Flags().StringVar(&archive, "archive", "", "Archive subcollection name (default: child named like 'archive')")
	sortCmd.Flags().StringVar(&logs, "log", "", "Log subcollection name (default: child named like 'log')")
	sortCmd.Flags().StringVar(&ingest, "ingest", "", "Ingest subcollection name (default: child named like 'ingest')")

	createCmd := &cobra.Command{
		Use:   "create <file>",
		Short: "Create collections from a sheet (name, friendlyName, parent, description)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "collections-create", func(ctx context.Context, rec *report.Recorder) error {
				created, err := collections.NewManager(a.session, rec, a.logger).CreateFromFile(ctx, args[0])
				for key, name := range created {
					a.logger.Debugf("Collection %s created as %s", key, name)
				}
				return err
			})
		},
	}

	var packageQN, packageType, collection string
	moveCmd := &cobra.Command{
		Use:   "move-package",
		Short: "Move a package and everything nested under it into a collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "collections-move", func(ctx context.Context, rec *report.Recorder) error {
				pkg, err := a.session.GetEntityByQualifiedName(ctx, packageType, packageQN)
				if err != nil {
					rec.Fail(collections.StageMove, packageQN, err)
					return nil
				}
				_, err = collections.NewManager(a.session, rec, a.logger).MovePackage(ctx, pkg.Entity.GUID, collection)
				if err != nil && ctx.Err() != nil {
					return err
				}
				return nil
			})
		},
	}
	moveCmd.Flags().StringVar(&packageQN, "package-qn", "", "Qualified name of the package")
	moveCmd.Flags().StringVar(&packageType, "type", DefaultPackageType, "Entity type of the package")
	moveCmd.Flags().StringVar(&collection, "collection", "", "Destination collection name")
	_ = moveCmd.MarkFlagRequired("package-qn")
	_ = moveCmd.MarkFlagRequired("collection")

	cmd.AddCommand(sortCmd, createCmd, moveCmd)
	return cmd
}

func newGlossaryCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "glossary",
		Short: "Propagate, export and associate glossary terms",
	}
	var glossaryName string
	cmd.PersistentFlags().StringVar(&glossaryName, "glossary", "Glossary", "Glossary name")

	var snapshotFile, dataSource, results, sheet string
	var types []string
	propagate := &cobra.Command{
		Use:   "propagate <file>",
		Short: "Assign glossary terms to the columns their System-Table-Field keys name",
		Long: `Reads the glossary sheet ("Nick Name", "[Attribute][Business Glossary]System-Table-Field")
and assigns each term in the start_index..end_index window (1-based, inclusive)
to the pulled columns and tables matching its MDG-<table>-<column> keys.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "glossary-propagate", func(ctx context.Context, rec *report.Recorder) error {
				terms, err := glossary.ReadTerms(args[0], sheet)
				if err != nil {
					return err
				}
				path := snapshotFile
				if path == "" {
					path = snapshot.FileName(".", a.cfg.Account)
				}
				snap, err := snapshot.Load(path)
				if err != nil {
					return err
				}
				matches := glossary.MatchColumns(terms, snap.Entities(dataSource, types...))

				out, err := os.OpenFile(results, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					return errors.Wrapf(err, "opening %s", results)
				}
				defer out.Close()

				p := glossary.NewPropagator(a.session, glossaryName, a.cfg.StartIndex, a.cfg.EndIndex, rec, a.logger)
				return p.Propagate(ctx, matches, time.Now(), out)
			})
		},
	}
	propagate.Flags().StringVar(&snapshotFile, "snapshot", "", "Pulled entities file (default: <account>_pulled_entities.json)")
	propagate.Flags().StringVar(&dataSource, "data-source", "", "Data source of the pulled entities")
	propagate.Flags().StringSliceVar(&types, "type", nil, "Only match entities of these types")
	propagate.Flags().StringVar(&results, "results", "glossary_propagation_results.txt", "Results log, appended to")
	propagate.Flags().StringVar(&sheet, "sheet", "", "Worksheet of an Excel glossary file")
	_ = propagate.MarkFlagRequired("data-source")

	export := &cobra.Command{
		Use:   "export <out-file>",
		Short: "Export glossary terms to CSV or Excel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "glossary-export", func(ctx context.Context, rec *report.Recorder) error {
				name := glossaryName
				if cmd.Flags().Changed("all") {
					name = ""
				}
				n, err := glossary.Export(ctx, a.session, name, args[0])
				if err != nil {
					return err
				}
				rec.Inc("terms_exported", n)
				return nil
			})
		},
	}
	export.Flags().Bool("all", false, "Export the terms of every glossary")

	var classification, term string
	classify := &cobra.Command{
		Use:   "classify",
		Short: "Assign a glossary term to every entity carrying a classification",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "glossary-classify", func(ctx context.Context, rec *report.Recorder) error {
				c := glossary.NewClassifier(a.session, glossaryName, rec, a.logger)
				_, err := c.Associate(ctx, classification, term)
				if err != nil && ctx.Err() != nil {
					return err
				}
				return nil
			})
		},
	}
	classify.Flags().StringVar(&classification, "classification", "", "Classification name")
	classify.Flags().StringVar(&term, "term", "", "Glossary term name")
	_ = classify.MarkFlagRequired("classification")
	_ = classify.MarkFlagRequired("term")

	cmd.AddCommand(propagate, export, classify)
	return cmd
}

func newPullCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Snapshot catalog entities to local files",
	}

	var dataSource, dir string
	var types []string
	entities := &cobra.Command{
		Use:   "entities",
		Short: "Pull the entities of a data source by type into <account>_pulled_entities.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "pull-entities", func(ctx context.Context, rec *report.Recorder) error {
				p := snapshot.NewPuller(a.session, a.cfg.Workers, rec, a.logger)
				_, err := p.PullInto(ctx, snapshot.FileName(dir, a.cfg.Account), a.cfg.Account, dataSource, types, time.Now())
				return err
			})
		},
	}
	entities.Flags().StringVar(&dataSource, "data-source", "", "Data source name the entities are filed under")
	entities.Flags().StringSliceVar(&types, "type", nil, "Entity types to pull")
	entities.Flags().StringVar(&dir, "dir", ".", "Output directory")
	_ = entities.MarkFlagRequired("data-source")
	_ = entities.MarkFlagRequired("type")

	cmd.AddCommand(entities)
	return cmd
}

func newScansCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scans",
		Short: "Report on data source scans",
	}

	failed := &cobra.Command{
		Use:   "failed [out.json]",
		Short: "Write every failed scan run to JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "scans-failed", func(ctx context.Context, rec *report.Recorder) error {
				path := scans.DefaultFileName(time.Now())
				if len(args) == 1 {
					path = args[0]
				}
				runs, err := scans.NewReporter(a.session, a.cfg.Workers, rec, a.logger).Failed(ctx)
				if err != nil {
					return err
				}
				if err := scans.Write(path, runs); err != nil {
					return err
				}
				a.logger.Infof("Wrote %d failed scan runs to %s", len(runs), filepath.Clean(path))
				return nil
			})
		},
	}

	cmd.AddCommand(failed)
	return cmd
}
