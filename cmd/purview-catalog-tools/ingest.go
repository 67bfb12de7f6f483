package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/vitebski/purview-catalog-tools/internal/ingest"
	"github.com/vitebski/purview-catalog-tools/internal/report"
)

func newIngestCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load data dictionaries into the catalog",
	}

	qube := &cobra.Command{
		Use:   "qube <file>",
		Short: "Ingest a QUBE data dictionary (CSV or XLSX, one row per field)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "ingest-qube", func(ctx context.Context, rec *report.Recorder) error {
				q := ingest.NewQubeIngester(a.session, a.populator(rec), rec, a.logger)
				_, err := q.Ingest(ctx, args[0])
				return err
			})
		},
	}

	var collection string
	sapbw := &cobra.Command{
		Use:   "sapbw <file>",
		Short: "Ingest SAP BW development classes into a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "ingest-sapbw", func(ctx context.Context, rec *report.Recorder) error {
				s := ingest.NewSAPBWIngester(a.populator(rec), collection, rec, a.logger)
				_, err := s.Ingest(ctx, args[0])
				return err
			})
		},
	}
	sapbw.Flags().StringVar(&collection, "collection", "", "Target collection name")
	_ = sapbw.MarkFlagRequired("collection")

	cmd.AddCommand(qube, sapbw)
	return cmd
}
