// Package app holds what the relayer binaries share: the Runner contract implemented by
// pkg/app/relayer, the categorised service errors and the chi HTTP plumbing.
package app

// Runner is a long-running process component. Run blocks until shutdown.
type Runner interface {
	Run() error
}
