package inventory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Hara602/usbGuard/internal/analysis"
	"github.com/Hara602/usbGuard/internal/loop"
	"github.com/Hara602/usbGuard/internal/model"
	"github.com/Hara602/usbGuard/internal/sink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type step struct {
	snap  model.DeviceSnapshot
	err   error
	panic bool
}

// scripted 依次返回预设结果, 用完后重复最后一个
type scripted struct {
	mu    sync.Mutex
	steps []step
	calls int
}

func (s *scripted) Enumerate(ctx context.Context) (model.DeviceSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	st := s.steps[i]
	if st.panic {
		panic("enumerator exploded")
	}
	return st.snap.Clone(), st.err
}

func (s *scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// stepClock 每次 sleep 阻塞到测试推进一步或被取消
type stepClock struct {
	ch    chan struct{}
	calls atomic.Int32
}

func newStepClock() *stepClock { return &stepClock{ch: make(chan struct{})} }

func (c *stepClock) Sleep(ctx context.Context, d time.Duration) error {
	c.calls.Add(1)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ch:
		return nil
	}
}

func (c *stepClock) Advance() { c.ch <- struct{}{} }

func rec(id, name string) model.DeviceRecord {
	return model.DeviceRecord{
		ID:          id,
		Name:        name,
		Status:      "OK",
		Description: "USB device",
		PNPID:       `USB\VID_0001&PID_0002\` + id,
	}
}

func devices(recs ...model.DeviceRecord) model.DeviceSnapshot {
	s := model.DeviceSnapshot{}
	for _, r := range recs {
		s[r.ID] = r
	}
	return s
}

func waitSleeps(t *testing.T, c *stepClock, n int32) {
	t.Helper()
	require.Eventually(t, func() bool { return c.calls.Load() >= n }, 2*time.Second, time.Millisecond)
}

var (
	devA = rec("A", "Keyboard")
	devB = rec("B", "Flash Drive")
)

func TestPollerAttachThenDetach(t *testing.T) {
	enum := &scripted{steps: []step{
		{snap: devices(devA)},
		{snap: devices(devA, devB)},
		{snap: devices(devB)},
	}}
	clock := newStepClock()
	out := &sink.Recorder{}
	p := NewPoller(enum, out, WithSleep(clock.Sleep))

	require.NoError(t, p.Start())
	defer p.Stop()

	waitSleeps(t, clock, 1)
	assert.Equal(t, []string{
		"USB device attached: Flash Drive",
		"Details:",
		"  Name: Flash Drive",
		"  Status: OK",
		"  Description: USB device",
		"  DeviceID: B",
		`  PNPDeviceID: USB\VID_0001&PID_0002\B`,
	}, out.Lines())

	clock.Advance()
	waitSleeps(t, clock, 2)
	lines := out.Lines()
	assert.Equal(t, "USB device detached: Keyboard", lines[len(lines)-1])
	assert.Len(t, lines, 8)

	assert.Equal(t, []model.DeviceRecord{devB}, p.Devices())
}

func TestPollerNoEventsForBaselineDevices(t *testing.T) {
	enum := &scripted{steps: []step{{snap: devices(devA, devB)}}}
	clock := newStepClock()
	out := &sink.Recorder{}
	p := NewPoller(enum, out, WithSleep(clock.Sleep))

	require.NoError(t, p.Start())
	waitSleeps(t, clock, 1)
	clock.Advance()
	waitSleeps(t, clock, 2)
	p.Stop()

	assert.Empty(t, out.Lines())
	assert.Len(t, p.Devices(), 2)
}

func TestPollerAttachedBeforeDetachedInOneCycle(t *testing.T) {
	enum := &scripted{steps: []step{
		{snap: devices(devA)},
		{snap: devices(devB)},
	}}
	clock := newStepClock()
	out := &sink.Recorder{}
	p := NewPoller(enum, out, WithSleep(clock.Sleep))

	require.NoError(t, p.Start())
	waitSleeps(t, clock, 1)
	p.Stop()

	lines := out.Lines()
	require.Len(t, lines, 8)
	assert.Equal(t, "USB device attached: Flash Drive", lines[0])
	assert.Equal(t, "USB device detached: Keyboard", lines[7])
}

func TestPollerEnumerationFailureIsNotFatal(t *testing.T) {
	enum := &scripted{steps: []step{
		{snap: devices(devA)},
		{err: errors.New("sysfs unavailable")},
		{panic: true},
		{snap: devices(devA, devB)},
	}}
	clock := newStepClock()
	out := &sink.Recorder{}
	p := NewPoller(enum, out, WithSleep(clock.Sleep))

	require.NoError(t, p.Start())
	defer p.Stop()

	waitSleeps(t, clock, 1)
	assert.Equal(t, []string{"device enumeration failed: sysfs unavailable"}, out.Lines())

	clock.Advance()
	waitSleeps(t, clock, 2)
	assert.Contains(t, out.Lines()[1], "device enumeration failed: panic in external call")

	clock.Advance()
	waitSleeps(t, clock, 3)
	assert.Contains(t, out.Lines(), "USB device attached: Flash Drive")
	assert.Equal(t, loop.StateRunning, p.State())
}

func TestPollerBaselineFailure(t *testing.T) {
	enum := &scripted{steps: []step{
		{err: errors.New("busy")},
		{snap: devices(devA)},
		{snap: devices(devA, devB)},
	}}
	clock := newStepClock()
	out := &sink.Recorder{}
	p := NewPoller(enum, out, WithSleep(clock.Sleep))

	require.NoError(t, p.Start())
	defer p.Stop()

	// 第一次成功的采样作为基线, 不报告 devA
	waitSleeps(t, clock, 1)
	assert.Equal(t, []string{"device enumeration failed: busy"}, out.Lines())

	clock.Advance()
	waitSleeps(t, clock, 2)
	lines := out.Lines()
	assert.Equal(t, "USB device attached: Flash Drive", lines[1])
	assert.NotContains(t, lines, "USB device attached: Keyboard")
}

func TestPollerStopIdempotent(t *testing.T) {
	p := NewPoller(&scripted{steps: []step{{snap: devices()}}}, sink.Discard)
	p.Stop()
	p.Stop()
	assert.Equal(t, loop.StatusNotRunning, p.Status())
}

func TestPollerStartTwice(t *testing.T) {
	enum := &scripted{steps: []step{{snap: devices(devA)}}}
	clock := newStepClock()
	p := NewPoller(enum, sink.Discard, WithSleep(clock.Sleep))

	require.NoError(t, p.Start())
	assert.ErrorIs(t, p.Start(), loop.ErrAlreadyRunning)
	waitSleeps(t, clock, 1)
	p.Stop()

	// 基线 1 次 + 一次采样
	assert.Equal(t, 2, enum.Calls())
}

func TestPollerStopInterruptsInterval(t *testing.T) {
	enum := &scripted{steps: []step{{snap: devices(devA)}}}
	p := NewPoller(enum, sink.Discard, WithInterval(time.Hour))

	require.NoError(t, p.Start())
	require.Eventually(t, func() bool { return enum.Calls() >= 2 }, 2*time.Second, time.Millisecond)

	start := time.Now()
	p.Stop()
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, loop.StateIdle, p.State())
	assert.Equal(t, loop.StatusStopped, p.Status())
}

func TestPollerImmediateStop(t *testing.T) {
	enum := &scripted{steps: []step{{snap: devices(devA)}}}
	for i := 0; i < 20; i++ {
		p := NewPoller(enum, sink.Discard)
		require.NoError(t, p.Start())
		p.Stop()
		assert.Equal(t, loop.StateIdle, p.State())
	}
}

func TestPollerRestartReusesLastSnapshot(t *testing.T) {
	enum := &scripted{steps: []step{
		{snap: devices(devA)},
		{snap: devices(devA, devB)},
		{snap: devices(devB)},
	}}
	clock := newStepClock()
	out := &sink.Recorder{}
	p := NewPoller(enum, out, WithSleep(clock.Sleep))

	require.NoError(t, p.Start())
	waitSleeps(t, clock, 1)
	p.Stop()
	require.Equal(t, 2, enum.Calls())

	// 重启时不再获取基线
	require.NoError(t, p.Start())
	waitSleeps(t, clock, 2)
	p.Stop()

	assert.Equal(t, 3, enum.Calls())
	assert.Equal(t, "USB device detached: Keyboard", out.Lines()[len(out.Lines())-1])
}

type blockAll struct{}

func (blockAll) Annotate(r model.DeviceRecord) []string {
	return []string{"  Blocked: " + r.ID}
}

func TestPollerAnnotator(t *testing.T) {
	enum := &scripted{steps: []step{
		{snap: devices()},
		{snap: devices(devA)},
	}}
	clock := newStepClock()
	out := &sink.Recorder{}
	p := NewPoller(enum, out, WithSleep(clock.Sleep), WithAnnotator(blockAll{}))

	require.NoError(t, p.Start())
	waitSleeps(t, clock, 1)
	p.Stop()

	lines := out.Lines()
	require.Len(t, lines, 8)
	assert.Equal(t, "  Blocked: A", lines[7])
}

func TestPollerWake(t *testing.T) {
	enum := &scripted{steps: []step{
		{snap: devices()},
		{snap: devices()},
		{snap: devices(devA)},
	}}
	wake := make(chan struct{}, 1)
	out := &sink.Recorder{}
	p := NewPoller(enum, out, WithInterval(time.Hour), WithWake(wake))

	require.NoError(t, p.Start())
	defer p.Stop()
	require.Eventually(t, func() bool { return enum.Calls() >= 2 }, 2*time.Second, time.Millisecond)

	wake <- struct{}{}
	require.Eventually(t, func() bool { return enum.Calls() >= 3 }, 2*time.Second, time.Millisecond)
	assert.Eventually(t, func() bool {
		lines := out.Lines()
		return len(lines) > 0 && lines[0] == "USB device attached: Keyboard"
	}, 2*time.Second, time.Millisecond)
}

func TestPollerFlagsBadUSB(t *testing.T) {
	suspect := rec("C", "Composite")
	suspect.DeviceType = analysis.DeviceTypeBadUSB

	var calls atomic.Int32
	enum := EnumeratorFunc(func(ctx context.Context) (model.DeviceSnapshot, error) {
		if calls.Add(1) == 1 {
			return devices(), nil
		}
		return devices(devA, suspect), nil
	})
	core, logs := observer.New(zapcore.ErrorLevel)
	clock := newStepClock()
	out := &sink.Recorder{}
	p := NewPoller(enum, out, WithSleep(clock.Sleep), WithLogger(zap.New(core)), WithAnnotator(blockAll{}))

	require.NoError(t, p.Start())
	waitSleeps(t, clock, 1)
	p.Stop()

	lines := out.Lines()
	// devA: 7 行 + 注释; suspect: 7 行 + 警告 + 注释
	require.Len(t, lines, 17)
	assert.Equal(t, "  Blocked: A", lines[7])
	assert.Equal(t, "USB device attached: Composite", lines[8])
	assert.Equal(t, "  Warning: possible BadUSB (storage + HID interfaces)", lines[15])
	assert.Equal(t, "  Blocked: C", lines[16])

	entries := logs.FilterMessage("🚨 BADUSB DETECTED").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "C", entries[0].ContextMap()["id"])
}

func instant(ctx context.Context, d time.Duration) error { return ctx.Err() }

func blockUntilDone(ctx context.Context, d time.Duration) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestPauseReleasesWakeChannel(t *testing.T) {
	wake := make(chan struct{}, 1)
	p := NewPoller(&scripted{}, sink.Discard, WithSleep(instant), WithWake(wake))

	for i := 0; i < 50; i++ {
		require.NoError(t, p.pause(context.Background()))
	}
	// pause 返回后没有 goroutine 再读取 wake
	wake <- struct{}{}
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, wake, 1)

	// 留下的通知让下一次 pause 立即结束
	p = NewPoller(&scripted{}, sink.Discard, WithSleep(blockUntilDone), WithWake(wake))
	done := make(chan error, 1)
	go func() { done <- p.pause(context.Background()) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pause ignored pending wake")
	}
	assert.Len(t, wake, 0)
}

func TestPauseCancelled(t *testing.T) {
	wake := make(chan struct{})
	p := NewPoller(&scripted{}, sink.Discard, WithSleep(blockUntilDone), WithWake(wake))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.pause(ctx), context.Canceled)
}
