// Package configspace models the configuration space of a tunable algorithm.
//
// # Overview
//
// A space is a set of parameters, conditions that activate a parameter only
// for some values of a categorical head, and forbidden clauses that rule out
// value combinations. Spaces are usually read from a line-oriented text
// definition:
//
//	# solver heuristics
//	restarts {none, luby, geometric} [luby]
//	restart-base [10, 1000] [100] il
//	restart-base | restarts in {luby, geometric}
//	decay [0.5, 0.999] [0.95]
//	{restarts=none, decay=0.5}
//
// # Representations
//
// A configuration has two forms:
//
//   - Configuration: a map from active parameter names to natural values
//   - Vector: one float64 per parameter in dependency order, holding the
//     choice index for categorical parameters, a [0,1] position (log
//     transformed when requested) for numeric ones, and NaN when inactive
//
// Encode and Decode convert between them. Fill replaces NaN for consumers
// that need dense input.
//
// # Ordering
//
// Parameters are ordered so that every condition head precedes its
// dependents, breaking ties lexicographically. A cycle among conditions is
// a definition error. Because of the ordering, activity, sampling and
// repair are single forward passes over the vector.
//
// # Randomness
//
// A Space is immutable and safe for concurrent use. Sample and Neighbor
// take the caller's *rand.Rand, so a fixed seed reproduces a run. Rejection
// loops are bounded by WithMaxAttempts and fail with an exhaustion error.
//
// # Errors
//
// Every error returned by this package is an *Error classified as
// definition, encoding or exhaustion; see IsDefinition, IsEncoding and
// IsExhaustion.
package configspace
