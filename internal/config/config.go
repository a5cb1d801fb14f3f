// Package config 读取 agent 的 YAML 配置文件。
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Hara602/usbGuard/internal/model"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config agent 配置
//
//	log_level: info
//	devices:
//	  enabled: true
//	  interval: 1s
//	  hotplug: true
//	  blocklist_db: /var/lib/usbguard/rules.db
//	  block_empty_serial: false
//	service:
//	  name: svc1
//	  run_seconds: 10
//	  post_stop_delay_seconds: 5
//	  backend: systemctl
type Config struct {
	LogLevel string        `yaml:"log_level"`
	Devices  DevicesConfig `yaml:"devices"`
	Service  ServiceConfig `yaml:"service"`
}

type DevicesConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	Hotplug     bool          `yaml:"hotplug"`
	BlocklistDB string        `yaml:"blocklist_db"`
	// BlockEmptySerial 无序列号设备视为命中黑名单, 默认关闭
	BlockEmptySerial bool `yaml:"block_empty_serial"`
}

type ServiceConfig struct {
	model.ServiceCycleConfig `yaml:",inline"`
	Backend                  string `yaml:"backend"`
}

// Enabled 配置了服务名时在启动时自动开始循环
func (s ServiceConfig) Enabled() bool {
	return s.ServiceName != ""
}

func Default() Config {
	return Config{
		LogLevel: "info",
		Devices: DevicesConfig{
			Enabled:  true,
			Interval: time.Second,
		},
	}
}

// Load 在默认值之上读取 path; path 为空时只返回默认值
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	if c.Devices.Interval <= 0 {
		return fmt.Errorf("%w: devices.interval must be > 0", ErrInvalidConfig)
	}
	if c.Service.Enabled() {
		if err := c.Service.Validate(); err != nil {
			return fmt.Errorf("%w: service: %w", ErrInvalidConfig, err)
		}
	}
	return nil
}
