package commands

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/spysmac/spysmac/pkg/configspace"
	"github.com/spysmac/spysmac/pkg/scenario"
)

func newValidateCommand() *cobra.Command {
	var (
		dotFile string
		watch   bool
	)

	cmd := &cobra.Command{
		Use:   "validate <pcs-file>",
		Short: "Validate a parameter space definition",
		Long: `Parse a PCS file and report its parameters, dependency levels,
conditions and forbidden clauses.

This command checks:
  - PCS syntax and parameter domains
  - Conditions refer to declared categorical parameters
  - Conditions are acyclic
  - Whether the default configuration is forbidden`,
		Example: `  # Validate a space
  spysmac validate minisat.pcs

  # Write the condition graph for Graphviz
  spysmac validate minisat.pcs --dot minisat.dot

  # Re-validate whenever the file changes
  spysmac validate minisat.pcs --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			out := cmd.OutOrStdout()

			err := validateSpace(out, path, dotFile)
			if !watch {
				return err
			}
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}

			w := scenario.NewWatcher(log.Logger)
			return w.Watch(cmd.Context(), []string{path}, func(string) {
				fmt.Fprintf(out, "\n%s changed\n", path)
				if err := validateSpace(out, path, dotFile); err != nil {
					fmt.Fprintf(out, "error: %v\n", err)
				}
			})
		},
	}

	cmd.Flags().StringVar(&dotFile, "dot", "", "write the condition graph in DOT format to this file")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-validate when the file changes")

	return cmd
}

type spaceSummary struct {
	File             string     `json:"file"`
	Parameters       int        `json:"parameters"`
	Conditional      int        `json:"conditional"`
	Conditions       []string   `json:"conditions"`
	Forbidden        []string   `json:"forbidden"`
	Order            []string   `json:"order"`
	Levels           [][]string `json:"levels"`
	DefaultForbidden bool       `json:"default_forbidden"`
}

func validateSpace(out io.Writer, path, dotFile string) error {
	space, err := loadSpace(path)
	if err != nil {
		return err
	}

	if dotFile != "" {
		if err := os.WriteFile(dotFile, []byte(space.ToDOT()), 0o644); err != nil {
			return fmt.Errorf("failed to write DOT file: %w", err)
		}
	}

	summary := spaceSummary{
		File:             path,
		Parameters:       space.Len(),
		Order:            space.Names(),
		Levels:           space.Levels(),
		DefaultForbidden: space.IsForbidden(space.DefaultVector()),
	}
	for _, name := range summary.Order {
		if space.IsConditional(name) {
			summary.Conditional++
		}
	}
	for _, c := range space.Conditions() {
		summary.Conditions = append(summary.Conditions, c.String())
	}
	for _, f := range space.Forbidden() {
		summary.Forbidden = append(summary.Forbidden, f.String())
	}

	if summary.DefaultForbidden {
		log.Warn().Str("file", path).Msg("The default configuration is forbidden")
	}

	if jsonOutput {
		return writeJSON(out, summary)
	}

	fmt.Fprintf(out, "%s: %d parameters (%d conditional), %d conditions, %d forbidden clauses\n\n",
		path, summary.Parameters, summary.Conditional, len(summary.Conditions), len(summary.Forbidden))

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tDOMAIN\tDEFAULT")
	for _, name := range summary.Order {
		p, _ := space.Parameter(name)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Name, kindLabel(p), domainLabel(p), p.Default)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	for i, level := range summary.Levels {
		fmt.Fprintf(out, "level %d: %s\n", i, strings.Join(level, ", "))
	}
	for _, c := range summary.Conditions {
		fmt.Fprintf(out, "condition: %s\n", c)
	}
	for _, f := range summary.Forbidden {
		fmt.Fprintf(out, "forbidden: %s\n", f)
	}
	if summary.DefaultForbidden {
		fmt.Fprintln(out, "warning: the default configuration is forbidden")
	}
	return nil
}

func kindLabel(p *configspace.Parameter) string {
	if p.Log {
		return string(p.Kind) + " (log)"
	}
	return string(p.Kind)
}

func domainLabel(p *configspace.Parameter) string {
	if p.Kind == configspace.KindCategorical {
		return "{" + strings.Join(p.Choices, ", ") + "}"
	}
	return fmt.Sprintf("[%g, %g]", p.Min, p.Max)
}
