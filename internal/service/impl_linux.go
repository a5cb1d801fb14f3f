//go:build linux

package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-systemd/v22/dbus"
)

func newManager(backend string) (Manager, error) {
	switch backend {
	case "", BackendSystemctl:
		return commandManager{bin: "systemctl"}, nil
	case BackendDBus:
		return dbusManager{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
}

// dbusManager 通过 systemd 的 D-Bus 接口提交 start/stop job 并等待结果
type dbusManager struct{}

func (dbusManager) StartService(ctx context.Context, name string) error {
	return runJob(ctx, name, func(conn *dbus.Conn, unit string, ch chan<- string) (int, error) {
		return conn.StartUnitContext(ctx, unit, "replace", ch)
	})
}

func (dbusManager) StopService(ctx context.Context, name string) error {
	return runJob(ctx, name, func(conn *dbus.Conn, unit string, ch chan<- string) (int, error) {
		return conn.StopUnitContext(ctx, unit, "replace", ch)
	})
}

type jobFunc func(conn *dbus.Conn, unit string, ch chan<- string) (int, error)

func runJob(ctx context.Context, name string, submit jobFunc) error {
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return fmt.Errorf("connect systemd: %w", err)
	}
	defer conn.Close()

	unit := unitName(name)
	ch := make(chan string, 1)
	if _, err := submit(conn, unit, ch); err != nil {
		return fmt.Errorf("submit job for %s: %w", unit, err)
	}
	select {
	case result := <-ch:
		if result != "done" {
			return fmt.Errorf("job for %s finished with result %q", unit, result)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// unitName "nginx" -> "nginx.service"
func unitName(name string) string {
	if strings.Contains(name, ".") {
		return name
	}
	return name + ".service"
}
