package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/spysmac/spysmac/pkg/policy"
)

func newPoliciesCommand() *cobra.Command {
	var (
		show    string
		enable  []string
		disable []string
		pcsFile string
		config  string
	)

	cmd := &cobra.Command{
		Use:   "policies <path>...",
		Short: "Inspect constraint policies",
		Long: `Load the Rego constraint policies under the given files or directories and
list them. With --show, print one policy's source. With --pcs and --config,
check a configuration against the enabled policies; the command fails when
any deny rule vetoes it.`,
		Example: `  # List policies
  spysmac policies policies/

  # Check a configuration with one policy switched off
  spysmac policies policies/ --pcs minisat.pcs --disable restarts \
      --config '{"restarts":"luby","base":10}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (pcsFile == "") != (config == "") {
				return fmt.Errorf("--pcs and --config must be given together")
			}

			ctx := cmd.Context()
			eng := policy.NewEngine(log.Logger)
			if err := eng.LoadPolicies(ctx, args); err != nil {
				return err
			}
			for _, name := range enable {
				if err := eng.EnablePolicy(ctx, name); err != nil {
					return err
				}
			}
			for _, name := range disable {
				if err := eng.DisablePolicy(ctx, name); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()

			if show != "" {
				p, err := eng.GetPolicy(show)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(out, p)
				}
				_, err = io.WriteString(out, p.Rego)
				return err
			}

			if config != "" {
				space, err := loadSpace(pcsFile)
				if err != nil {
					return err
				}
				cfg, _, err := parseConfiguration(space, config)
				if err != nil {
					return err
				}
				res, err := eng.Evaluate(ctx, cfg)
				if err != nil {
					return err
				}
				if err := writeResult(out, res); err != nil {
					return err
				}
				if !res.Allowed {
					return fmt.Errorf("configuration vetoed: %s", strings.Join(res.Messages(), "; "))
				}
				return nil
			}

			policies := eng.ListPolicies()
			if jsonOutput {
				return writeJSON(out, policies)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tENABLED\tSOURCE\tDESCRIPTION")
			for _, p := range policies {
				fmt.Fprintf(tw, "%s\t%t\t%s\t%s\n", p.Name, p.Enabled, p.Source, p.Description)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&show, "show", "", "print the source of the named policy")
	cmd.Flags().StringSliceVar(&enable, "enable", nil, "enable the named policy")
	cmd.Flags().StringSliceVar(&disable, "disable", nil, "disable the named policy")
	cmd.Flags().StringVar(&pcsFile, "pcs", "", "parameter space the configuration belongs to")
	cmd.Flags().StringVar(&config, "config", "", "configuration to check, as JSON object or @file")

	return cmd
}

func writeResult(out io.Writer, res *policy.Result) error {
	if jsonOutput {
		return writeJSON(out, res)
	}
	if res.Allowed {
		fmt.Fprintf(out, "allowed by %d policies\n", len(res.EvaluatedPolicies))
	} else {
		fmt.Fprintf(out, "vetoed by %d violations\n", len(res.Violations))
	}
	for _, v := range res.Violations {
		fmt.Fprintf(out, "  error: %s\n", v.Message)
	}
	for _, v := range res.Warnings {
		fmt.Fprintf(out, "  warning: %s\n", v.Message)
	}
	return nil
}
