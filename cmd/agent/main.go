// agent 监控 USB 设备接入/移除, 并按周期启停一个系统服务。
//
// 用法:
//
//	agent [flags]
//
// 参数:
//
//	-config string        YAML 配置文件
//	-log-level string     日志级别: debug, info, warn, error
//	-console              交互式控制台 (默认开启)
//	-devices              启动时开始 USB 设备监控
//	-interval duration    设备采样间隔
//	-hotplug              收到 udev 热插拔通知时提前采样
//	-db string            SQLite 黑名单数据库
//	-block-empty-serial   无序列号设备视为命中黑名单
//	-service string       启动时循环的服务名
//	-run int              服务每轮运行秒数
//	-delay int            停止服务后等待秒数
//	-backend string       服务后端: systemctl, dbus (linux); scm, sc (windows)
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Hara602/usbGuard/internal/blackwhitelist"
	"github.com/Hara602/usbGuard/internal/config"
	"github.com/Hara602/usbGuard/internal/console"
	"github.com/Hara602/usbGuard/internal/inventory"
	"github.com/Hara602/usbGuard/internal/service"
	"github.com/Hara602/usbGuard/internal/sink"
	"github.com/Hara602/usbGuard/internal/sysutil"
	"github.com/Hara602/usbGuard/internal/watcher"
	"go.uber.org/zap"
)

var (
	configPath  = flag.String("config", "", "YAML configuration file")
	logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	interactive = flag.Bool("console", true, "Interactive console")
	devices     = flag.Bool("devices", true, "Start USB device monitoring at startup")
	interval    = flag.Duration("interval", inventory.DefaultInterval, "Device sampling interval")
	hotplug     = flag.Bool("hotplug", false, "Sample early on udev hotplug notifications")
	dbPath      = flag.String("db", "", "SQLite blocklist database")
	emptySerial = flag.Bool("block-empty-serial", false, "Treat devices without a serial number as blocked")
	serviceName = flag.String("service", "", "Service to cycle at startup")
	runSeconds  = flag.Int("run", 0, "Seconds the service stays running")
	delay       = flag.Int("delay", 0, "Seconds to wait after stopping the service")
	backend     = flag.String("backend", "", "Service backend: systemctl, dbus (linux); scm, sc (windows)")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	if err := sysutil.InitLogger(cfg.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer sysutil.Log.Sync()

	sysutil.Log.Info("🛡️ USB Guard Agent Starting...")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var con *console.Console
	var out sink.Sink
	if *interactive {
		con, err = console.New()
		if err != nil {
			sysutil.LogSugar.Fatalf("Console init failed: %v", err)
		}
		// 终端显示的同时保留一份结构化日志
		out = sink.Tee(sink.Writer(con.Stdout()), sink.Logger(sysutil.Log.Named("events")))
	} else {
		out = sink.Logger(sysutil.Log.Named("events"))
	}

	// 初始化核心模块 (依赖注入)
	pollerOpts := []inventory.Option{
		inventory.WithInterval(cfg.Devices.Interval),
		inventory.WithLogger(sysutil.Log.Named("inventory")),
	}

	comp := console.Components{}
	if cfg.Devices.BlocklistDB != "" {
		store, err := blackwhitelist.Open(cfg.Devices.BlocklistDB,
			blackwhitelist.WithLogger(sysutil.Log.Named("blocklist")),
			blackwhitelist.WithBlockEmptySerial(cfg.Devices.BlockEmptySerial),
		)
		if err != nil {
			sysutil.LogSugar.Fatalf("Blocklist init failed: %v", err)
		}
		defer store.Close()
		pollerOpts = append(pollerOpts, inventory.WithAnnotator(store))
		comp.Rules = store
	}

	if cfg.Devices.Hotplug {
		w := watcher.New()
		wake, err := w.Start()
		if err != nil {
			sysutil.Log.Warn("Hotplug notifications unavailable, polling only", zap.Error(err))
		} else {
			defer w.Stop()
			pollerOpts = append(pollerOpts, inventory.WithWake(wake))
		}
	}

	poller := inventory.NewPoller(inventory.New(), out, pollerOpts...)
	defer poller.Stop()
	comp.Devices = poller

	var ctrl *service.Controller
	mgr, err := service.NewManager(cfg.Service.Backend)
	if err != nil {
		sysutil.Log.Warn("Service control unavailable", zap.Error(err))
	} else {
		ctrl = service.NewController(mgr, out, service.WithLogger(sysutil.Log.Named("service")))
		defer ctrl.Stop()
		comp.Service = ctrl
	}

	// 启动
	if cfg.Devices.Enabled {
		if err := poller.Start(); err != nil {
			sysutil.Log.Error("Device monitoring failed to start", zap.Error(err))
		} else {
			out.Append("USB device monitoring started.")
		}
	}
	if cfg.Service.Enabled() && ctrl != nil {
		warnIfUnprivileged()
		if err := ctrl.Start(cfg.Service.ServiceCycleConfig); err != nil {
			sysutil.Log.Error("Service cycle failed to start", zap.Error(err))
		}
	}

	if con == nil {
		<-ctx.Done()
		sysutil.Log.Info("Shutting down...")
		return
	}

	con.Attach(comp)

	go func() {
		<-ctx.Done()
		con.Close()
	}()
	con.Run(ctx, cancel)
	sysutil.Log.Info("Shutting down...")
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return cfg, err
	}

	// 命令行参数覆盖配置文件
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "log-level":
			cfg.LogLevel = *logLevel
		case "devices":
			cfg.Devices.Enabled = *devices
		case "interval":
			cfg.Devices.Interval = *interval
		case "hotplug":
			cfg.Devices.Hotplug = *hotplug
		case "db":
			cfg.Devices.BlocklistDB = *dbPath
		case "block-empty-serial":
			cfg.Devices.BlockEmptySerial = *emptySerial
		case "service":
			cfg.Service.ServiceName = *serviceName
		case "run":
			cfg.Service.RunDurationSeconds = *runSeconds
		case "delay":
			cfg.Service.PostStopDelaySeconds = *delay
		case "backend":
			cfg.Service.Backend = *backend
		}
	})
	if *interactive && !isSet("log-level") && *configPath == "" {
		// 控制台模式下 zap 与提示符共用终端
		cfg.LogLevel = "warn"
	}
	return cfg, cfg.Validate()
}

func isSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// warnIfUnprivileged 启停系统服务通常需要 root 权限
func warnIfUnprivileged() {
	if uid := os.Geteuid(); uid > 0 {
		sysutil.Log.Warn("Not running as root, service start/stop may be denied", zap.Int("euid", uid))
	}
}
