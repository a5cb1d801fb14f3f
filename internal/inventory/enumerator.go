package inventory

import (
	"context"
	"errors"

	"github.com/Hara602/usbGuard/internal/model"
)

var ErrUnsupported = errors.New("usb enumeration not supported on this platform")

// Enumerator 查询当前连接的 USB 设备
type Enumerator interface {
	Enumerate(ctx context.Context) (model.DeviceSnapshot, error)
}

// EnumeratorFunc 把普通函数适配为 Enumerator
type EnumeratorFunc func(ctx context.Context) (model.DeviceSnapshot, error)

func (f EnumeratorFunc) Enumerate(ctx context.Context) (model.DeviceSnapshot, error) {
	return f(ctx)
}

// Annotator 为新插入的设备追加额外的输出行 (黑名单命中等)
type Annotator interface {
	Annotate(rec model.DeviceRecord) []string
}

// New 返回当前平台的实现
func New() Enumerator {
	return newEnumerator()
}
