package loop

import (
	"context"
	"fmt"
	"time"
)

// Tick 可中断等待的粒度
const Tick = time.Second

// SleepFunc 可中断的 sleep, 被取消时返回 ctx.Err(); 测试中替换为假时钟
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep 默认实现
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Ticks 等待 n 个 Tick, 每个 Tick 前检查取消; 完整等待返回 true
func Ticks(ctx context.Context, n int, sleep SleepFunc) bool {
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			return false
		}
		if err := sleep(ctx, Tick); err != nil {
			return false
		}
	}
	return ctx.Err() == nil
}

// Guard 执行一次外部调用, panic 转为 error, 保证 worker 不会被外部故障终止
func Guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in external call: %v", r)
		}
	}()
	return fn()
}
