package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maxkimambo/sparkflow/internal/dag"
	"github.com/maxkimambo/sparkflow/internal/logger"
)

type validateOptions struct {
	definition string
	graph      bool
	export     string
}

var validateFlags validateOptions

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a pipeline definition without running it",
	Long: `Check a pipeline definition without running it.

Validation parses the file, builds the task graph and rejects unknown fields,
dependency cycles, redundant edges and invalid operator settings. On success the
tasks are listed in the order they may run.`,
	RunE: validatePipeline,
}

func init() {
	f := validateCmd.Flags()
	f.StringVarP(&validateFlags.definition, "definition", "d", "", "Pipeline definition file (default: PIPELINE_DEFINITION or the built-in pipeline)")
	f.BoolVar(&validateFlags.graph, "graph", false, "Print the graph in Graphviz DOT format")
	f.StringVar(&validateFlags.export, "export", "", "Write the graph structure to this JSON file")
}

func validatePipeline(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	def, err := loadDefinition(cfg, validateFlags.definition)
	if err != nil {
		return err
	}
	graph, err := def.Build()
	if err != nil {
		return err
	}

	viz := dag.NewVisualization(graph, nil)
	var out string
	if validateFlags.graph {
		out, err = viz.GenerateDOTGraph()
	} else {
		out, err = viz.GenerateTextSummary()
	}
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)

	if validateFlags.export != "" {
		if err := viz.ExportToJSON(validateFlags.export); err != nil {
			return fmt.Errorf("export graph: %w", err)
		}
	}
	logger.User.Successf("Pipeline %s is valid: %d tasks", def.Name, graph.Len())
	return nil
}
