// Package scenario loads run configurations for spysmac.
//
// A scenario names the solver binary, its parameter space definition, the
// benchmark instances and the search budget. Scenarios are written in YAML,
// JSON or CUE:
//
//	binary: ./minisat
//	pcs_file: minisat.pcs
//	instances: instances/
//	cutoff: 60
//	num_procs: 4
//
// Every format is unified with the built-in #Scenario CUE definition, so
// unknown keys and out-of-range values are reported with their position.
// Missing optional fields receive the defaults of Default.
package scenario
