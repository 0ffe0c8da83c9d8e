package main

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/matviet/outbound-cli/internal/classify"
)

var classifyTemplate string

var classifyCmd = &cobra.Command{
	Use:   "classify <content>",
	Short: "Classify message content without touching the store",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("classify"); err != nil {
			return err
		}

		def, err := classify.LoadDefinition(cfg.Ingest.TaxonomyFile)
		if err != nil {
			return err
		}
		c := classify.New(classify.DefaultRules(), def.TemplateMap())

		res := c.Classify(strings.Join(args, " "), classifyTemplate)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return eris.Wrap(err, "encode result")
		}
		return nil
	},
}

func init() {
	classifyCmd.Flags().StringVar(&classifyTemplate, "template", "", "provider template id")
	rootCmd.AddCommand(classifyCmd)
}
