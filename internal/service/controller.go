package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Hara602/usbGuard/internal/loop"
	"github.com/Hara602/usbGuard/internal/model"
	"github.com/Hara602/usbGuard/internal/sink"
	"go.uber.org/zap"
)

// Controller 循环执行: 启动服务 -> 等待 -> 停止服务 -> 等待, 直到被取消
type Controller struct {
	mgr   Manager
	out   sink.Sink
	log   *zap.Logger
	sleep loop.SleepFunc

	lifecycle sync.Mutex
	sup       loop.Supervisor
	cycles    atomic.Int64
}

type Option func(*Controller)

// WithSleep 替换每秒一次的可中断 sleep, 测试中用于假时钟
func WithSleep(fn loop.SleepFunc) Option {
	return func(c *Controller) { c.sleep = fn }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Controller) { c.log = log }
}

func NewController(mgr Manager, out sink.Sink, opts ...Option) *Controller {
	c := &Controller{
		mgr:   mgr,
		out:   out,
		log:   zap.NewNop(),
		sleep: loop.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start 校验参数后启动 worker; 参数无效时不执行任何服务操作
func (c *Controller) Start(cfg model.ServiceCycleConfig) error {
	if err := cfg.Validate(); err != nil {
		c.out.Append(fmt.Sprintf("invalid service name or wait time: %v", err))
		c.log.Error("rejected service cycle config", zap.Error(err))
		return err
	}

	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if err := c.sup.Start(func(ctx context.Context) { c.run(ctx, cfg) }); err != nil {
		return err
	}
	c.log.Info("service cycle started",
		zap.String("service", cfg.ServiceName),
		zap.Int("run_seconds", cfg.RunDurationSeconds),
		zap.Int("post_stop_delay_seconds", cfg.PostStopDelaySeconds))
	return nil
}

// Stop 设置取消信号并等待 worker 退出; 未运行时直接返回
func (c *Controller) Stop() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.sup.State() == loop.StateIdle {
		return
	}
	c.sup.Stop()
	c.log.Info("service cycle stopped", zap.Int64("cycles", c.cycles.Load()))
}

func (c *Controller) State() loop.State   { return c.sup.State() }
func (c *Controller) Status() loop.Status { return c.sup.Status() }

// Cycles 完整执行 "启动, 等待 RunDurationSeconds, 停止" 的次数
func (c *Controller) Cycles() int64 { return c.cycles.Load() }

func (c *Controller) run(ctx context.Context, cfg model.ServiceCycleConfig) {
	name := cfg.ServiceName
	// 服务操作不随取消中断: 运行等待期间收到停止请求时仍会执行 stop
	actionCtx := context.WithoutCancel(ctx)

	for ctx.Err() == nil {
		c.out.Append("Starting service: " + name)
		c.start(actionCtx, name)

		c.out.Append(fmt.Sprintf("Waiting %d seconds", cfg.RunDurationSeconds))
		completed := loop.Ticks(ctx, cfg.RunDurationSeconds, c.sleep)

		c.out.Append("Stopping service: " + name)
		c.stop(actionCtx, name)

		if completed {
			c.cycles.Add(1)
			c.out.Append(fmt.Sprintf("Waiting %d seconds after stop", cfg.PostStopDelaySeconds))
			completed = loop.Ticks(ctx, cfg.PostStopDelaySeconds, c.sleep)
		}
		if !completed {
			c.out.Append("Service cycle cancelled")
			return
		}

		c.out.Append("Cycle complete, starting next cycle")
	}
}

func (c *Controller) start(ctx context.Context, name string) {
	err := loop.Guard(func() error { return c.mgr.StartService(ctx, name) })
	if err != nil {
		c.out.Append(fmt.Sprintf("Failed to start service %s: %v", name, err))
		c.log.Error("start service failed", zap.String("service", name), zap.Error(err))
		return
	}
	c.out.Append(fmt.Sprintf("Service %s started successfully", name))
}

func (c *Controller) stop(ctx context.Context, name string) {
	err := loop.Guard(func() error { return c.mgr.StopService(ctx, name) })
	if err != nil {
		c.out.Append(fmt.Sprintf("Failed to stop service %s: %v", name, err))
		c.log.Error("stop service failed", zap.String("service", name), zap.Error(err))
		return
	}
	c.out.Append(fmt.Sprintf("Service %s stopped successfully", name))
}
