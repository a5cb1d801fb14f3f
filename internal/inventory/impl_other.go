//go:build !linux

package inventory

import (
	"context"

	"github.com/Hara602/usbGuard/internal/model"
)

type stubEnumerator struct{}

func newEnumerator() Enumerator { return stubEnumerator{} }

func (stubEnumerator) Enumerate(context.Context) (model.DeviceSnapshot, error) {
	return nil, ErrUnsupported
}
