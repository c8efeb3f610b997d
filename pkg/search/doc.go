// Package search tunes a solver by local search in its configuration space.
//
// A Search starts from the default configuration and, on every iteration,
// proposes either a neighbor of the incumbent or, with probability
// RandomProb, a fresh random configuration. The proposal is run on every
// training instance, with up to NumProcs runs in parallel, and replaces the
// incumbent when its PAR10 score is strictly lower. The search stops when
// the evaluation budget or the wall-clock limit is used up.
//
// Proposals can be vetoed by a Constraint before any solver time is spent,
// and every run can be persisted through a Recorder.
package search
