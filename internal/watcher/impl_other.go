//go:build !linux

package watcher

type stubWatcher struct{}

func newWatcher() HotplugWatcher                    { return stubWatcher{} }
func (stubWatcher) Start() (<-chan struct{}, error) { return nil, ErrUnsupported }
func (stubWatcher) Stop()                           {}
