package inventory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Hara602/usbGuard/internal/analysis"
	"github.com/Hara602/usbGuard/internal/loop"
	"github.com/Hara602/usbGuard/internal/model"
	"github.com/Hara602/usbGuard/internal/sink"
	"go.uber.org/zap"
)

// DefaultInterval 两次采样之间的间隔
const DefaultInterval = time.Second

// Poller 定时枚举 USB 设备, 与上一次快照比较并输出插拔事件
type Poller struct {
	enum      Enumerator
	out       sink.Sink
	log       *zap.Logger
	interval  time.Duration
	sleep     loop.SleepFunc
	annotator Annotator
	wake      <-chan struct{}

	lifecycle sync.Mutex
	sup       loop.Supervisor

	// snapshot 只由 worker 写入 (Start 中的基线除外, 此时 worker 尚未运行)
	mu       sync.Mutex
	snapshot model.DeviceSnapshot
}

type Option func(*Poller)

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithSleep 替换可中断 sleep, 测试中用于假时钟
func WithSleep(fn loop.SleepFunc) Option {
	return func(p *Poller) { p.sleep = fn }
}

func WithLogger(log *zap.Logger) Option {
	return func(p *Poller) { p.log = log }
}

func WithAnnotator(a Annotator) Option {
	return func(p *Poller) { p.annotator = a }
}

// WithWake 收到信号时立即开始下一次采样 (例如 udev 热插拔通知)
func WithWake(ch <-chan struct{}) Option {
	return func(p *Poller) { p.wake = ch }
}

func NewPoller(enum Enumerator, out sink.Sink, opts ...Option) *Poller {
	p := &Poller{
		enum:     enum,
		out:      out,
		log:      zap.NewNop(),
		interval: DefaultInterval,
		sleep:    loop.Sleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start 获取基线快照后启动 worker; 之前运行过则沿用最后一次快照
func (p *Poller) Start() error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	if p.sup.State() != loop.StateIdle {
		return loop.ErrAlreadyRunning
	}

	p.mu.Lock()
	primed := p.snapshot != nil
	p.mu.Unlock()
	if !primed {
		p.prime()
	}

	if err := p.sup.Start(p.run); err != nil {
		return err
	}
	p.log.Info("device poller started", zap.Duration("interval", p.interval))
	return nil
}

// Stop 阻塞直到 worker 退出; 未启动时直接返回
func (p *Poller) Stop() {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	if p.sup.State() == loop.StateIdle {
		return
	}
	p.sup.Stop()
	p.log.Info("device poller stopped")
}

func (p *Poller) State() loop.State   { return p.sup.State() }
func (p *Poller) Status() loop.Status { return p.sup.Status() }

// Devices 当前快照的副本, 按 ID 排序
func (p *Poller) Devices() []model.DeviceRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.DeviceRecord, 0, len(p.snapshot))
	for _, id := range p.snapshot.Keys() {
		out = append(out, p.snapshot[id])
	}
	return out
}

func (p *Poller) prime() {
	snapshot, err := p.enumerate(context.Background())
	if err != nil {
		// 基线获取失败: 第一次成功的采样将作为基线, 不产生事件
		p.out.Append(fmt.Sprintf("device enumeration failed: %v", err))
		p.log.Warn("baseline enumeration failed", zap.Error(err))
		return
	}
	p.mu.Lock()
	p.snapshot = snapshot
	p.mu.Unlock()
	p.log.Debug("baseline snapshot taken", zap.Int("devices", len(snapshot)))
}

func (p *Poller) run(ctx context.Context) {
	for {
		p.sample(ctx)
		if err := p.pause(ctx); err != nil {
			return
		}
	}
}

func (p *Poller) enumerate(ctx context.Context) (model.DeviceSnapshot, error) {
	var snapshot model.DeviceSnapshot
	err := loop.Guard(func() error {
		var err error
		snapshot, err = p.enum.Enumerate(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		snapshot = model.DeviceSnapshot{}
	}
	return snapshot, nil
}

func (p *Poller) sample(ctx context.Context) {
	next, err := p.enumerate(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.out.Append(fmt.Sprintf("device enumeration failed: %v", err))
		p.log.Warn("enumeration failed", zap.Error(err))
		return
	}

	p.mu.Lock()
	prev := p.snapshot
	p.snapshot = next
	p.mu.Unlock()

	if prev == nil {
		p.log.Debug("baseline snapshot taken", zap.Int("devices", len(next)))
		return
	}
	for _, ev := range model.Diff(prev, next) {
		p.emit(ev)
	}
}

func (p *Poller) emit(ev model.DeviceEvent) {
	dev := ev.Device
	switch ev.Kind {
	case model.Attached:
		p.log.Info("✅ USB Connected", zap.String("id", dev.ID), zap.String("name", dev.Name))
		p.out.Append("USB device attached: " + dev.Name)
		p.out.Append("Details:")
		for _, f := range dev.Fields() {
			p.out.Append(fmt.Sprintf("  %s: %s", f.Label, f.Value))
		}
		if dev.DeviceType == analysis.DeviceTypeBadUSB {
			p.log.Error("🚨 BADUSB DETECTED", zap.String("id", dev.ID), zap.String("pnp_id", dev.PNPID))
			p.out.Append("  Warning: possible BadUSB (storage + HID interfaces)")
		}
		if p.annotator != nil {
			for _, line := range p.annotator.Annotate(dev) {
				p.out.Append(line)
			}
		}
	case model.Detached:
		p.log.Info("❌ USB Removed", zap.String("id", dev.ID), zap.String("name", dev.Name))
		p.out.Append("USB device detached: " + dev.Name)
	}
}

// pause 等待一个采样间隔, 被取消时返回错误
func (p *Poller) pause(ctx context.Context) error {
	if p.wake == nil {
		return p.sleep(ctx, p.interval)
	}
	wctx, cancel := context.WithCancel(ctx)
	helper := make(chan struct{})
	go func() {
		defer close(helper)
		select {
		case <-p.wake:
			cancel()
		case <-wctx.Done():
		}
	}()
	err := p.sleep(wctx, p.interval)
	// 返回前等 helper 退出, 之后的通知留在 channel 中给下一次 pause
	cancel()
	<-helper
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		p.log.Debug("woken by hotplug notification")
	}
	return nil
}
