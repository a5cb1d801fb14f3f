package watcher

import "errors"

var ErrUnsupported = errors.New("hotplug notifications not supported on this platform")

// HotplugWatcher 监听内核 USB 热插拔通知, 合并为唤醒信号
type HotplugWatcher interface {
	Start() (<-chan struct{}, error)
	Stop()
}

func New() HotplugWatcher {
	return newWatcher()
}

// notify 非阻塞发送; 已有未处理的信号时丢弃
func notify(ch chan<- struct{}) bool {
	select {
	case ch <- struct{}{}:
		return true
	default:
		return false
	}
}
