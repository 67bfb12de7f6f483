package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/vitebski/purview-catalog-tools/internal/connector"
	"github.com/vitebski/purview-catalog-tools/internal/extractor"
	"github.com/vitebski/purview-catalog-tools/internal/lineage"
	"github.com/vitebski/purview-catalog-tools/internal/report"
	"github.com/vitebski/purview-catalog-tools/internal/resolver"
	"github.com/vitebski/purview-catalog-tools/internal/tabular"
	"github.com/vitebski/purview-catalog-tools/pkg/models"
)

// sqlFiles returns the .sql files of dir in name order
func sqlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", dir)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".sql") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func newLineageCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lineage",
		Short: "Build lineage between cataloged assets",
	}
	var fuzzy float64
	cmd.PersistentFlags().Float64Var(&fuzzy, "fuzzy", 0, "Resolve endpoints by fuzzy name match with this minimum score (0 = exact)")

	cmd.AddCommand(
		newInformaticaCommand(a, &fuzzy),
		newDWCommand(a, &fuzzy),
		newExternalCommand(a, &fuzzy),
		newPowerBICommand(a, &fuzzy),
		newBimCommand(a, &fuzzy),
		newHanaCommand(a),
		newCubeCommand(a, &fuzzy),
		newColumnsCommand(a),
		newDescribeCommand(a),
		newMySQLCommand(a),
	)
	return cmd
}

func newInformaticaCommand(a *app, fuzzy *float64) *cobra.Command {
	var connections string
	cmd := &cobra.Command{
		Use:   "informatica <xml>",
		Short: "Link the sources of an Informatica workflow export to the targets of its sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "lineage-informatica", func(ctx context.Context, rec *report.Recorder) error {
				export, err := extractor.ParseInformaticaFile(args[0])
				if err != nil {
					return err
				}
				conns, err := extractor.LoadConnections(connections)
				if err != nil {
					return err
				}
				res := resolver.NewResolver(resolver.ServersFromConfig(a.cfg.Servers), a.logger)
				l := a.linker(rec, "", *fuzzy)
				l.LinkReferences(ctx, res, export.Sources, export.Targets(conns), models.InformaticaConnection)
				res.RecordSkipped(rec)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&connections, "connections", "", "Connection sheet (Connection Name, Server name, Database name)")
	_ = cmd.MarkFlagRequired("connections")
	return cmd
}

func newDWCommand(a *app, fuzzy *float64) *cobra.Command {
	var stageDir, viewDir string
	var tables []string
	cmd := &cobra.Command{
		Use:   "dw [view.sql...]",
		Short: "Link warehouse stage tables, common tables and views from their SQL scripts",
		Long: `Reads every view script (or the ones given) and the load routines of the
tables they select from, then writes stage -> common (dw_routine) and
common -> view (dw_view_creation) edges.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "lineage-dw", func(ctx context.Context, rec *report.Recorder) error {
				views := args
				if len(views) == 0 && len(tables) == 0 {
					var err error
					if views, err = sqlFiles(viewDir); err != nil {
						return err
					}
				}

				planner := extractor.NewDWPlanner(viewDir, stageDir, a.logger)
				var edges []extractor.PathEdge
				for _, v := range views {
					planned, err := planner.PlanView(v)
					if err != nil {
						rec.Fail(lineage.StageResolve, v, err)
						continue
					}
					edges = append(edges, planned...)
				}
				for _, t := range tables {
					planned, err := planner.PlanTable(t)
					if err != nil {
						rec.Fail(lineage.StageResolve, t, err)
						continue
					}
					edges = append(edges, planned...)
				}

				l := a.linker(rec, a.cfg.DWPrefix(), *fuzzy)
				for _, e := range edges {
					if ctx.Err() != nil {
						break
					}
					_ = l.Link(ctx, e.Source, e.Target, e.ProcessType)
				}
				a.logger.Infof("Planned %d warehouse edges from %d views and %d tables", len(edges), len(views), len(tables))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&stageDir, "stage-dir", "", "Directory of table load routines")
	cmd.Flags().StringVar(&viewDir, "view-dir", "", "Directory of view scripts")
	cmd.Flags().StringSliceVar(&tables, "table", nil, "Also link the load routine sources of these table scripts (schema.table.sql)")
	_ = cmd.MarkFlagRequired("stage-dir")
	_ = cmd.MarkFlagRequired("view-dir")
	return cmd
}

func newExternalCommand(a *app, fuzzy *float64) *cobra.Command {
	var lakeURL string
	cmd := &cobra.Command{
		Use:   "external <dir>",
		Short: "Link data lake locations to the external tables reading them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "lineage-external", func(ctx context.Context, rec *report.Recorder) error {
				files, err := sqlFiles(args[0])
				if err != nil {
					return err
				}
				base := lakeURL
				if base == "" {
					base = fmt.Sprintf("https://hbi%s01analyticsdls.dfs.core.windows.net", a.cfg.Environment)
				}
				l := a.linker(rec, a.cfg.DWPrefix(), *fuzzy)
				for _, f := range files {
					if ctx.Err() != nil {
						break
					}
					data, err := os.ReadFile(filepath.Join(args[0], f))
					if err != nil {
						rec.Fail(lineage.StageResolve, f, err)
						continue
					}
					ext, err := extractor.ParseExternalTable(string(data))
					if err != nil {
						rec.Fail(lineage.StageResolve, f, err)
						continue
					}
					location := ext.Location
					if !strings.Contains(location, "://") {
						location = strings.TrimRight(base, "/") + "/" + strings.TrimLeft(location, "/")
					}
					_ = l.Link(ctx, location, ext.TablePath(), models.DLCuratedToDWStage)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&lakeURL, "lake-url", "", "Data lake base URL for relative locations (default: the environment's analytics lake)")
	return cmd
}

func newPowerBICommand(a *app, fuzzy *float64) *cobra.Command {
	var datasetQN, serverQN, column string
	cmd := &cobra.Command{
		Use:   "powerbi <file>",
		Short: "Link the warehouse tables queried by a Power BI dataset to the dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "lineage-powerbi", func(ctx context.Context, rec *report.Recorder) error {
				t, err := tabular.Read(args[0], tabular.Options{})
				if err != nil {
					return err
				}
				if err := t.Require(column); err != nil {
					return err
				}
				queries := make([]string, 0, len(t.Rows))
				for _, r := range t.Rows {
					queries = append(queries, r.Get(column))
				}

				prefix := serverQN
				if prefix == "" {
					prefix = a.cfg.DWPrefix()
				}
				l := a.linker(rec, prefix, *fuzzy)
				target, err := l.Resolve(ctx, datasetQN)
				if err != nil {
					return nil
				}
				for _, table := range extractor.QueriesTables(queries) {
					src, err := l.Resolve(ctx, table)
					if err != nil {
						continue
					}
					_ = l.LinkEntities(ctx, src, target, models.SQLServerToPBI)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&datasetQN, "dataset-qn", "", "Qualified name of the Power BI dataset")
	cmd.Flags().StringVar(&serverQN, "server-qn", "", "Qualified name prefix of the queried database (default: the environment's warehouse)")
	cmd.Flags().StringVar(&column, "query-column", "Query", "Sheet column holding the dataset queries")
	_ = cmd.MarkFlagRequired("dataset-qn")
	return cmd
}

func newBimCommand(a *app, fuzzy *float64) *cobra.Command {
	var datasetQN, model string
	cmd := &cobra.Command{
		Use:   "bim <file>",
		Short: "Link the warehouse sources of a tabular model (.bim) to its dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "lineage-bim", func(ctx context.Context, rec *report.Recorder) error {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return errors.Wrapf(err, "reading %s", args[0])
				}
				tables, err := extractor.ParseBim(data)
				if err != nil {
					return err
				}

				l := a.linker(rec, a.cfg.DWPrefix(), *fuzzy)
				target, err := l.Resolve(ctx, datasetQN)
				if err != nil {
					return nil
				}
				for _, t := range tables {
					if ctx.Err() != nil {
						break
					}
					src, err := l.Resolve(ctx, t.Path())
					if err != nil {
						continue
					}
					_ = l.LinkEntities(ctx, src, target, models.DWToPBIDataset)
				}
				if model != "" {
					src, err := l.Resolve(ctx, extractor.TabularModelHost+model)
					if err == nil {
						_ = l.LinkEntities(ctx, src, target, models.TabularModelToPBIDataset)
					}
				}
				a.logger.Infof("Found %d sourced tables in %s", len(tables), args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&datasetQN, "dataset-qn", "", "Qualified name of the Power BI dataset")
	cmd.Flags().StringVar(&model, "model", "", "Also link this Analysis Services tabular model to the dataset")
	_ = cmd.MarkFlagRequired("dataset-qn")
	return cmd
}

func newHanaCommand(a *app) *cobra.Command {
	var header, schema string
	cmd := &cobra.Command{
		Use:   "hana <dir>",
		Short: "Upload SAP HANA DSP views with their sources and link them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "lineage-hana", func(ctx context.Context, rec *report.Recorder) error {
				entries, err := os.ReadDir(args[0])
				if err != nil {
					return errors.Wrapf(err, "reading %s", args[0])
				}
				w := a.writer(rec)
				for _, e := range entries {
					if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
						continue
					}
					if ctx.Err() != nil {
						break
					}
					data, err := os.ReadFile(filepath.Join(args[0], e.Name()))
					if err != nil {
						rec.Fail(lineage.StageAssets, e.Name(), err)
						continue
					}
					def, err := extractor.ParseHanaDefinition(data, schema)
					if err != nil {
						rec.Fail(lineage.StageAssets, e.Name(), err)
						continue
					}
					if len(def.Skipped) > 0 {
						a.logger.Warnf("%s: skipped definitions of unknown kind: %v", e.Name(), def.Skipped)
					}
					if def.Target.Name == "" {
						rec.Fail(lineage.StageAssets, e.Name(), errors.New("no target definition"))
						continue
					}
					_ = w.WriteHana(ctx, header, def)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&header, "header", "", "Qualified name header, e.g. sap_hana://<host>/databases/H00/schemas/")
	cmd.Flags().StringVar(&schema, "schema", "", "Schema of unqualified definition names")
	_ = cmd.MarkFlagRequired("header")
	return cmd
}

func newCubeCommand(a *app, fuzzy *float64) *cobra.Command {
	var cube, datasetQN string
	cmd := &cobra.Command{
		Use:   "cube <xmla>",
		Short: "Upload a cube with its dimensions and link it to a Power BI dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "lineage-cube", func(ctx context.Context, rec *report.Recorder) error {
				f, err := os.Open(args[0])
				if err != nil {
					return errors.Wrapf(err, "opening %s", args[0])
				}
				dims, err := extractor.ParseCubeXMLA(f)
				f.Close()
				if err != nil {
					return err
				}
				name := cube
				if name == "" {
					name = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
				}
				_ = a.linker(rec, "", *fuzzy).WriteCube(ctx, name, dims, datasetQN)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&cube, "cube", "", "Cube name (default: the file name)")
	cmd.Flags().StringVar(&datasetQN, "dataset-qn", "", "Qualified name of the Power BI dataset fed by the cube")
	return cmd
}

func newColumnsCommand(a *app) *cobra.Command {
	var sourceGUID, targetGUID, name string
	cmd := &cobra.Command{
		Use:   "columns",
		Short: "Link the same-named columns of two entities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "lineage-columns", func(ctx context.Context, rec *report.Recorder) error {
				pairs, err := a.writer(rec).WriteColumnLineage(ctx, sourceGUID, targetGUID, name)
				if err != nil {
					return nil
				}
				a.logger.Infof("Mapped %d columns for %s", len(pairs), name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sourceGUID, "source-guid", "", "GUID of the source entity")
	cmd.Flags().StringVar(&targetGUID, "target-guid", "", "GUID of the target entity")
	cmd.Flags().StringVar(&name, "name", "", "Asset name used in the process qualified name")
	for _, f := range []string{"source-guid", "target-guid", "name"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func newDescribeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <process-type>",
		Short: "Set the description of every process of a type from its input and output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pt, err := models.ParseProcessType(args[0])
			if err != nil {
				return err
			}
			return a.run(cmd, "lineage-describe", func(ctx context.Context, rec *report.Recorder) error {
				return a.writer(rec).UpdateConnectorDescriptions(ctx, pt)
			})
		},
	}
}

func newMySQLCommand(a *app) *cobra.Command {
	var host, user, password, database, port string
	cmd := &cobra.Command{
		Use:   "mysql",
		Short: "Harvest a MySQL schema into the catalog and link its views",
		RunE: func(cmd *cobra.Command, args []string) error {
			db := connector.NewDatabaseConnector(host, user, password, database, port, a.logger)
			if err := db.Connect(cmd.Context()); err != nil {
				return err
			}
			defer db.Disconnect()

			return a.run(cmd, "lineage-mysql", func(ctx context.Context, rec *report.Recorder) error {
				h := connector.NewHarvester(db, a.populator(rec), a.writer(rec), rec, a.logger)
				_, err := h.Harvest(ctx)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&host, "host", "H", "", "MySQL host (default: MYSQL_HOST or localhost)")
	cmd.Flags().StringVarP(&user, "user", "u", "", "MySQL user (default: MYSQL_USER or root)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "MySQL password (default: MYSQL_PASSWORD)")
	cmd.Flags().StringVarP(&database, "database", "d", "", "MySQL database name (default: MYSQL_DATABASE)")
	cmd.Flags().StringVarP(&port, "port", "P", "", "MySQL port (default: MYSQL_PORT or 3306)")
	return cmd
}
