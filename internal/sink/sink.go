// Package sink 接收人类可读的日志行, 所有实现都可以在 worker goroutine 中调用。
package sink

import (
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sink 日志行的去处 (界面文本框, 控制台, 日志文件)
type Sink interface {
	Append(line string)
}

// Func 把普通函数适配为 Sink
type Func func(line string)

func (f Func) Append(line string) { f(line) }

// Discard 丢弃所有行
var Discard Sink = Func(func(string) {})

// Recorder 在内存中记录所有行
type Recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *Recorder) Append(line string) {
	r.mu.Lock()
	r.lines = append(r.lines, line)
	r.mu.Unlock()
}

// Lines 返回副本
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// TimeLayout 行前缀时间格式
const TimeLayout = "2006-01-02 15:04:05"

type writerSink struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// Writer 输出 "时间 - 内容" 格式的行
func Writer(w io.Writer) Sink {
	return &writerSink{w: w, now: time.Now}
}

func (s *writerSink) Append(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "%s - %s\n", s.now().Format(TimeLayout), line)
}

type loggerSink struct {
	log *zap.Logger
}

// Logger 把每一行写入 zap
func Logger(log *zap.Logger) Sink {
	return loggerSink{log: log}
}

func (s loggerSink) Append(line string) {
	s.log.Info(line)
}

type tee []Sink

// Tee 按顺序写入多个 Sink
func Tee(sinks ...Sink) Sink {
	return tee(sinks)
}

func (t tee) Append(line string) {
	for _, s := range t {
		s.Append(line)
	}
}
