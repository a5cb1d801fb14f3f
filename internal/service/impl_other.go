//go:build !linux && !windows

package service

import "fmt"

func newManager(backend string) (Manager, error) {
	if backend == "" {
		return nil, ErrUnsupported
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
}
