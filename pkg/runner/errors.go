package runner

// ExecError is returned when a run could not be carried out at all, as
// opposed to a run that finished with a timeout.
type ExecError struct {
	// Op is the failing step, e.g. "build", "start", "connect", "stage".
	Op string

	Err error

	// IsTemporary marks errors worth retrying, such as dropped connections.
	IsTemporary bool

	// IsAuthError marks SSH authentication failures.
	IsAuthError bool
}

func (e *ExecError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

func (e *ExecError) Temporary() bool {
	return e.IsTemporary
}
