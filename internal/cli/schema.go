package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raymoo/monoidal-effects/effects/catalog"
)

var schemaOut string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Write the JSON schema for effect catalog files",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := catalog.WriteSchema(schemaOut); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", schemaOut)
		return nil
	},
}

func init() {
	schemaCmd.Flags().StringVar(&schemaOut, "out", "config/effects.schema.json", "Output path for the schema")
}
