// Package loop 提供后台轮询 goroutine 的生命周期管理: 运行标志, 取消信号, 以及
// Stop 返回前保证工作 goroutine 已完全退出。
package loop

import (
	"context"
	"errors"
	"sync"
)

var ErrAlreadyRunning = errors.New("loop already running")

// State 控制器状态
type State uint8

const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	default:
		return "UNKNOWN"
	}
}

// Status 面向界面的状态: 未运行 / 运行中 / 已停止
type Status uint8

const (
	StatusNotRunning Status = iota
	StatusRunning
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusNotRunning:
		return "not running"
	case StatusRunning:
		return "running"
	case StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Supervisor 持有唯一的 worker 句柄 (done), 同一时刻最多一个 worker
type Supervisor struct {
	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

// Start 启动 worker 并立即返回; 已有 worker (运行中或正在退出) 时返回 ErrAlreadyRunning
func (s *Supervisor) Start(run func(ctx context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.state = StateRunning
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			if s.done == done {
				s.state = StateIdle
				s.done = nil
				s.cancel = nil
			}
			s.mu.Unlock()
			cancel()
		}()
		run(ctx)
	}()
	return nil
}

// Stop 发出取消信号并等待 worker 退出; 未启动或重复调用时直接返回
func (s *Supervisor) Stop() {
	s.mu.Lock()
	done := s.done
	if done == nil {
		s.mu.Unlock()
		return
	}
	s.state = StateStopping
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	<-done
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.state != StateIdle:
		return StatusRunning
	case s.stopped:
		return StatusStopped
	default:
		return StatusNotRunning
	}
}
