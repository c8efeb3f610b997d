// Package runner turns configurations into solver runs.
//
// A CommandBuilder renders the command line for one configuration on one
// instance, either from a callstring template or from a Starlark script
// defining command_line(runargs, config). An Executor runs that command
// under a cutoff, locally or over SSH, and reports an Outcome: the solver
// status read from its output and the runtime in seconds.
//
// Evaluator ties the two together and is what a search drives.
package runner
