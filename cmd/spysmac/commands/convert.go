package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spysmac/spysmac/pkg/configspace"
)

func newConvertCommand() *cobra.Command {
	var (
		config string
		vector string
		fill   string
	)

	cmd := &cobra.Command{
		Use:   "convert <pcs-file>",
		Short: "Convert between configurations and vectors",
		Long: `Encode a named configuration into its vector form, or decode a vector
into a named configuration. Vectors are comma separated; "nan" marks an
inactive position.`,
		Example: `  # Encode
  spysmac convert minisat.pcs --config '{"restarts":"luby","decay":0.9}'

  # Decode
  spysmac convert minisat.pcs --vector 1,0.5,nan`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (config == "") == (vector == "") {
				return fmt.Errorf("exactly one of --config and --vector is required")
			}

			space, err := loadSpace(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if vector != "" {
				vec, err := parseVector(vector)
				if err != nil {
					return err
				}
				cfg, err := space.Decode(vec)
				if err != nil {
					return err
				}
				return writeJSONLine(out, cfg)
			}

			_, vec, err := parseConfiguration(space, config)
			if err != nil {
				return err
			}
			if fill != "" {
				policy, err := configspace.ParseFillPolicy(fill)
				if err != nil {
					return err
				}
				vec = space.Fill(vec, policy)
			}
			if jsonOutput {
				return writeJSONLine(out, vec)
			}
			_, err = fmt.Fprintln(out, formatVector(vec))
			return err
		},
	}

	cmd.Flags().StringVar(&config, "config", "", "configuration as JSON object or @file")
	cmd.Flags().StringVar(&vector, "vector", "", "comma separated vector")
	cmd.Flags().StringVar(&fill, "fill", "", "fill inactive positions of the encoded vector: def, mean or a number")

	return cmd
}
