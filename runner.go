package daemon

import "context"

// Runner is the service body executed once the process is detached. Run is
// called exactly once per successful Start. The context is cancelled when the
// daemon receives a termination signal; Run should return promptly after that.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts an ordinary function to the Runner interface
type RunnerFunc func(ctx context.Context) error

// Run calls f(ctx)
func (f RunnerFunc) Run(ctx context.Context) error {
	return f(ctx)
}
