//go:build linux

package watcher

import (
	"sync"

	"github.com/Hara602/usbGuard/internal/sysutil"
	"github.com/pilebones/go-udev/netlink"
	"go.uber.org/zap"
)

type linuxWatcher struct {
	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

func newWatcher() HotplugWatcher {
	return &linuxWatcher{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
}

func (w *linuxWatcher) Start() (<-chan struct{}, error) {
	// 监听 UDEV 事件,连接 NETLINK_KOBJECT_UEVENT
	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return nil, err
	}

	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{Env: map[string]string{"SUBSYSTEM": "^usb$"}})

	// 创建一个队列用于接收事件
	queue := make(chan netlink.UEvent)
	errChan := make(chan error)
	quit := conn.Monitor(queue, errChan, rules)

	go func() {
		// 确保退出时关闭连接
		defer conn.Close()

		for {
			select {
			case <-w.stop:
				// 发送退出信号给 Monitor
				close(quit)
				return

			case err := <-errChan:
				// 忽略底层网络错误，继续尝试
				sysutil.Log.Debug("uevent monitor error", zap.Error(err))

			case uevent := <-queue:
				if uevent.Action == "add" || uevent.Action == "remove" {
					notify(w.wake)
				}
			}
		}
	}()
	return w.wake, nil
}

func (w *linuxWatcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}
