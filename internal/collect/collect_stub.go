//go:build !linux

package collect

import "errors"

// ErrUnsupported reports that kernel-backed collection needs linux.
var ErrUnsupported = errors.New("facts collection requires linux")

// DefaultRouteLister returns nil: no kernel route source here.
func DefaultRouteLister() RouteLister { return nil }

func inNetns(name string, fn func() error) error {
	return ErrUnsupported
}
