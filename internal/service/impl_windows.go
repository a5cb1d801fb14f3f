//go:build windows

package service

import (
	"context"
	"fmt"

	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"
)

func newManager(backend string) (Manager, error) {
	switch backend {
	case "", BackendSCM:
		return scmManager{}, nil
	case "sc":
		return commandManager{bin: "sc"}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
}

// scmManager 通过服务控制管理器 (SCM) 启停服务
type scmManager struct{}

func (scmManager) StartService(_ context.Context, name string) error {
	return withService(name, func(s *mgr.Service) error {
		return s.Start()
	})
}

func (scmManager) StopService(_ context.Context, name string) error {
	return withService(name, func(s *mgr.Service) error {
		_, err := s.Control(svc.Stop)
		return err
	})
}

func withService(name string, fn func(s *mgr.Service) error) error {
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("connect service manager: %w", err)
	}
	defer m.Disconnect()

	s, err := m.OpenService(name)
	if err != nil {
		return fmt.Errorf("open service %s: %w", name, err)
	}
	defer s.Close()

	return fn(s)
}
