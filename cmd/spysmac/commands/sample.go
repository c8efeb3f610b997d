package commands

import (
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/spf13/cobra"

	"github.com/spysmac/spysmac/pkg/configspace"
)

func newSampleCommand() *cobra.Command {
	var (
		count       int
		seed        uint64
		maxAttempts int
		vectors     bool
	)

	cmd := &cobra.Command{
		Use:   "sample <pcs-file>",
		Short: "Draw random configurations",
		Long: `Draw uniformly random configurations that satisfy every condition and
avoid every forbidden clause. Each configuration is printed as one JSON
object with only the active parameters.`,
		Example: `  # Five configurations
  spysmac sample minisat.pcs -n 5

  # Reproducible draws
  spysmac sample minisat.pcs -n 5 --seed 42`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 0 {
				return fmt.Errorf("count must not be negative")
			}

			var opts []configspace.Option
			if maxAttempts > 0 {
				opts = append(opts, configspace.WithMaxAttempts(maxAttempts))
			}
			space, err := loadSpace(args[0], opts...)
			if err != nil {
				return err
			}

			rng := rand.New(rand.NewPCG(seed, 0))
			out := cmd.OutOrStdout()
			for i := 0; i < count; i++ {
				vec, err := space.Sample(rng)
				if err != nil {
					return err
				}
				if err := printConfiguration(out, space, vec, vectors); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of configurations")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "random seed")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "rejection sampling limit (0 uses the default)")
	cmd.Flags().BoolVar(&vectors, "vectors", false, "also print the vector form")

	return cmd
}

type configLine struct {
	Configuration configspace.Configuration `json:"configuration"`
	Vector        configspace.Vector        `json:"vector"`
}

// printConfiguration writes the decoded vector as one JSON line.
func printConfiguration(out io.Writer, space *configspace.Space, vec configspace.Vector, withVector bool) error {
	cfg, err := space.Decode(vec)
	if err != nil {
		return err
	}
	if withVector {
		return writeJSONLine(out, configLine{Configuration: cfg, Vector: vec})
	}
	return writeJSONLine(out, cfg)
}
