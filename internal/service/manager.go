package service

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// 服务控制后端
const (
	BackendSystemctl = "systemctl"
	BackendDBus      = "dbus"
	BackendSCM       = "scm"
)

var (
	ErrUnsupported    = errors.New("service control not supported on this platform")
	ErrUnknownBackend = errors.New("unknown service backend")
)

// Manager 启动/停止一个系统服务, 每个操作是一次外部调用
type Manager interface {
	StartService(ctx context.Context, name string) error
	StopService(ctx context.Context, name string) error
}

// NewManager backend 为空时使用当前平台的默认后端
func NewManager(backend string) (Manager, error) {
	return newManager(backend)
}

// commandManager 通过命令行工具控制服务, 例如 systemctl start <name>
type commandManager struct {
	bin string
}

func (m commandManager) StartService(ctx context.Context, name string) error {
	return m.run(ctx, "start", name)
}

func (m commandManager) StopService(ctx context.Context, name string) error {
	return m.run(ctx, "stop", name)
}

func (m commandManager) run(ctx context.Context, verb, name string) error {
	out, err := exec.CommandContext(ctx, m.bin, verb, name).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return fmt.Errorf("%s %s %s: %w", m.bin, verb, name, err)
		}
		return fmt.Errorf("%s %s %s: %w: %s", m.bin, verb, name, err, msg)
	}
	return nil
}
