package main

import (
	"fmt"
	"os"

	"github.com/go-yaml/yaml"
	"github.com/spf13/cobra"

	"github.com/scambus/scambus-go"
)

func filterCmd() *cobra.Command {
	var (
		filterFile    string
		types         []string
		minConfidence float64
		maxConfidence float64
		expr          string
		dataType      string
	)

	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Build the filter expression for a new export stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter scambus.StreamFilter
			if filterFile != "" {
				raw, err := os.ReadFile(filterFile)
				if err != nil {
					return fmt.Errorf("read filter file: %w", err)
				}
				if err := yaml.Unmarshal(raw, &filter); err != nil {
					return fmt.Errorf("parse filter file: %w", err)
				}
			}

			if len(types) > 0 {
				filter.IdentifierTypes = types
			}
			if cmd.Flags().Changed("min-confidence") {
				filter.MinConfidence = &minConfidence
			}
			if cmd.Flags().Changed("max-confidence") {
				filter.MaxConfidence = &maxConfidence
			}
			if expr != "" {
				filter.CustomExpression = expr
			}

			expression, err := filter.Expression(scambus.DataType(dataType))
			if err != nil {
				return err
			}
			if expression == "" {
				return fmt.Errorf("no filter criteria given")
			}
			fmt.Println(expression)
			return nil
		},
	}

	cmd.Flags().StringVar(&filterFile, "file", "", "yaml file with the filter criteria")
	cmd.Flags().StringSliceVar(&types, "type", nil, "identifier type to match (repeatable)")
	cmd.Flags().Float64Var(&minConfidence, "min-confidence", 0, "minimum confidence, 0 to 1")
	cmd.Flags().Float64Var(&maxConfidence, "max-confidence", 0, "maximum confidence, 0 to 1")
	cmd.Flags().StringVar(&expr, "expr", "", "extra expression joined with &&")
	cmd.Flags().StringVar(&dataType, "data-type", string(scambus.DataTypeIdentifier), "the stream's data type")
	return cmd
}
