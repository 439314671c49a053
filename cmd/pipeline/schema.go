package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"newsharvest/internal/pipeline"
)

var schemaCMD = &cobra.Command{
	Use:   "schema [name]",
	Short: "list builtin extraction schemas or print one",
	Long: `Without arguments, list the builtin extraction schemas.
With a name, print its YAML so it can be copied and edited,
then passed back with "run --schema ./my-schema.yml".`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if len(args) == 1 {
			src, err := pipeline.BuiltinSchemaSource(args[0])
			if err != nil {
				return err
			}
			_, err = out.Write(src)
			return err
		}

		schemas, err := pipeline.BuiltinSchemas()
		if err != nil {
			return err
		}
		for _, s := range schemas {
			fmt.Fprintf(out, "%-20s v%d  %-4s  paginated=%t\n", s.Name, s.Version, s.Format, s.Paginated)
		}
		return nil
	},
}

func init() {
	rootCMD.AddCommand(schemaCMD)
}
