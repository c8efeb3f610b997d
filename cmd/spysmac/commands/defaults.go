package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spysmac/spysmac/pkg/configspace"
)

func newDefaultsCommand() *cobra.Command {
	var fill string

	cmd := &cobra.Command{
		Use:   "defaults <pcs-file>",
		Short: "Print the default configuration",
		Long: `Print the default configuration with inactive parameters removed, and
its vector form. With --fill, inactive positions of the vector are replaced:
  - def: the parameter's normalized default
  - mean: 0.5 for numeric, half the cardinality for categorical positions
  - a number: that constant`,
		Example: `  spysmac defaults minisat.pcs
  spysmac defaults minisat.pcs --fill def`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			space, err := loadSpace(args[0])
			if err != nil {
				return err
			}

			vec := space.DefaultVector()
			if fill != "" {
				policy, err := configspace.ParseFillPolicy(fill)
				if err != nil {
					return err
				}
				vec = space.Fill(vec, policy)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, configLine{Configuration: space.Defaults(), Vector: vec})
			}
			if err := writeJSONLine(out, space.Defaults()); err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, formatVector(vec))
			return err
		},
	}

	cmd.Flags().StringVar(&fill, "fill", "", "fill inactive positions: def, mean or a number")

	return cmd
}
