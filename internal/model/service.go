package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidCycleConfig = errors.New("invalid service cycle config")

// ServiceCycleConfig 服务启停循环参数
type ServiceCycleConfig struct {
	ServiceName          string `yaml:"name"`
	RunDurationSeconds   int    `yaml:"run_seconds"`
	PostStopDelaySeconds int    `yaml:"post_stop_delay_seconds"`
}

// Validate 名称非空, 运行时间 > 0, 停止后等待 >= 0
func (c ServiceCycleConfig) Validate() error {
	switch {
	case strings.TrimSpace(c.ServiceName) == "":
		return fmt.Errorf("%w: empty service name", ErrInvalidCycleConfig)
	case c.RunDurationSeconds <= 0:
		return fmt.Errorf("%w: run duration must be > 0, got %d", ErrInvalidCycleConfig, c.RunDurationSeconds)
	case c.PostStopDelaySeconds < 0:
		return fmt.Errorf("%w: post-stop delay must be >= 0, got %d", ErrInvalidCycleConfig, c.PostStopDelaySeconds)
	}
	return nil
}

// ParseCycleConfig 解析用户输入; 无法解析的数字按 0 处理, 随后由 Validate 拒绝
func ParseCycleConfig(name, run, delay string) (ServiceCycleConfig, error) {
	cfg := ServiceCycleConfig{ServiceName: strings.TrimSpace(name)}
	r, errRun := strconv.Atoi(strings.TrimSpace(run))
	d, errDelay := strconv.Atoi(strings.TrimSpace(delay))
	if errRun == nil && errDelay == nil {
		cfg.RunDurationSeconds = r
		cfg.PostStopDelaySeconds = d
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
