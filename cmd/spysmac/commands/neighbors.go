package commands

import (
	"fmt"
	"math/rand/v2"

	"github.com/spf13/cobra"
)

func newNeighborsCommand() *cobra.Command {
	var (
		count   int
		seed    uint64
		from    string
		vectors bool
	)

	cmd := &cobra.Command{
		Use:   "neighbors <pcs-file>",
		Short: "Draw neighbors of a configuration",
		Long: `Draw random one-parameter moves away from a configuration. Without
--from the default configuration is used. Neighbors respect conditions and
forbidden clauses.`,
		Example: `  # Neighbors of the default
  spysmac neighbors minisat.pcs -n 3

  # Neighbors of a given configuration
  spysmac neighbors minisat.pcs --from '{"restarts":"luby","decay":0.9}'

  # Configuration read from a file
  spysmac neighbors minisat.pcs --from @incumbent.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 0 {
				return fmt.Errorf("count must not be negative")
			}

			space, err := loadSpace(args[0])
			if err != nil {
				return err
			}

			vec := space.DefaultVector()
			if from != "" {
				_, vec, err = parseConfiguration(space, from)
				if err != nil {
					return err
				}
			}

			rng := rand.New(rand.NewPCG(seed, 0))
			out := cmd.OutOrStdout()
			for i := 0; i < count; i++ {
				next, err := space.Neighbor(rng, vec)
				if err != nil {
					return err
				}
				if err := printConfiguration(out, space, next, vectors); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of neighbors")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "random seed")
	cmd.Flags().StringVar(&from, "from", "", "configuration as JSON object or @file (default: the default configuration)")
	cmd.Flags().BoolVar(&vectors, "vectors", false, "also print the vector form")

	return cmd
}
