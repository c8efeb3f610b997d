package scenario

// scenarioSchema constrains scenario files before they are decoded. The
// definition is closed, so misspelled keys are rejected.
const scenarioSchema = `
#Scenario: {
	name?: string

	// solver and space
	binary:   string & !=""
	pcs_file: string & !=""

	// benchmark
	instances:       string & !=""
	test_instances?: string

	// command construction
	prefix?:     string
	separator?:  string
	callstring?: string & =~"<instance>"
	script?:     string

	// budget
	cutoff?:              number & >0
	wallclock_limit?:     number & >=0
	evaluations?:         int & >=0
	repetitions?:         int & >=1
	seed?:                int & >=0
	validation_fraction?: number & >0 & <1
	num_procs?:           int & >=1
	memory_mb?:           int & >=1
	random_prob?:         number & >=0 & <=1
	max_attempts?:        int & >=0

	policies?:          [...string]
	watch_policies?:    bool
	disabled_policies?: [...string]
	store?:             string

	remote?: {
		host:              string & !=""
		port?:             int & >0 & <65536
		user:              string & !=""
		key_file?:         string
		password?:         string
		known_hosts_file?: string
		work_dir?:         string
		stage_instances?:  bool
	}
}
`
