package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/vitebski/purview-catalog-tools/internal/generator"
	"github.com/vitebski/purview-catalog-tools/internal/report"
)

// CounterTestCaseFiles counts written test-case files
const CounterTestCaseFiles = "testcase_files_written"

func newClassificationCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classification",
		Short: "Generate classification rules and column-name test cases",
		Annotations: map[string]string{
			offlineAnnotation: "true",
		},
	}

	var mappingsFile, sheet, mappingSheet string
	cmd.PersistentFlags().StringVar(&mappingsFile, "mappings", "", "Word to abbreviation sheet (Word, Abbreviations)")
	cmd.PersistentFlags().StringVar(&sheet, "sheet", "", "Classification worksheet of an Excel file")
	cmd.PersistentFlags().StringVar(&mappingSheet, "mapping-sheet", "", "Mapping worksheet of an Excel file")

	load := func(path string) ([]generator.Classification, *generator.Generator, error) {
		classes, err := generator.ReadClassifications(path, sheet)
		if err != nil {
			return nil, nil, err
		}
		var mappings []generator.Mapping
		if mappingsFile != "" {
			if mappings, err = generator.ReadMappings(mappingsFile, mappingSheet); err != nil {
				return nil, nil, err
			}
		}
		return classes, generator.NewGenerator(mappings, a.logger), nil
	}

	regex := &cobra.Command{
		Use:         "regex <file> <out>",
		Short:       "Generate a classification regex per row",
		Args:        cobra.ExactArgs(2),
		Annotations: cmd.Annotations,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "classification-regex", func(_ context.Context, rec *report.Recorder) error {
				classes, gen, err := load(args[0])
				if err != nil {
					return err
				}
				rules := gen.Rules(classes)
				if err := generator.WriteRules(args[1], rules); err != nil {
					return err
				}
				rec.Inc("rules_written", len(rules))
				a.logger.Infof("Wrote %d classification rules to %s", len(rules), args[1])
				return nil
			})
		},
	}

	testcases := &cobra.Command{
		Use:         "testcases <file> <outdir>",
		Short:       "Generate to_pass and to_fail column names per classification",
		Args:        cobra.ExactArgs(2),
		Annotations: cmd.Annotations,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "classification-testcases", func(ctx context.Context, rec *report.Recorder) error {
				classes, gen, err := load(args[0])
				if err != nil {
					return err
				}
				for _, c := range classes {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					if _, _, err := gen.WriteTestCases(args[1], c); err != nil {
						rec.Fail("testcases", c.Name, err)
						continue
					}
					rec.Inc(CounterTestCaseFiles, 2)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(regex, testcases)
	return cmd
}
