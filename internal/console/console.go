// Package console 交互式命令行: 启停设备监控与服务循环, 并实时显示日志。
package console

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Hara602/usbGuard/internal/loop"
	"github.com/Hara602/usbGuard/internal/model"
	"github.com/chzyer/readline"
)

// DeviceLoop 控制台用到的 inventory.Poller 方法
type DeviceLoop interface {
	Start() error
	Stop()
	Status() loop.Status
	Devices() []model.DeviceRecord
}

// ServiceLoop 控制台用到的 service.Controller 方法
type ServiceLoop interface {
	Start(cfg model.ServiceCycleConfig) error
	Stop()
	Status() loop.Status
	Cycles() int64
}

// RuleStore 添加黑名单规则, 可选
type RuleStore interface {
	AddBlockRule(vid, pid, serial, reason string) error
}

// Components 为 nil 的成员对应命令不可用
type Components struct {
	Devices DeviceLoop
	Service ServiceLoop
	Rules   RuleStore
}

// Console agent 的交互模式
type Console struct {
	rl   *readline.Instance
	out  io.Writer
	comp Components
}

// New 创建 readline 提示符, Run 之前需调用 Attach
func New() (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "usbguard> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{rl: rl, out: rl.Stdout()}, nil
}

func newWithWriter(out io.Writer, comp Components) *Console {
	return &Console{out: out, comp: comp}
}

// Stdout 与 readline 输入协调的 writer, worker 的输出行写到这里
func (c *Console) Stdout() io.Writer {
	return c.out
}

func (c *Console) Attach(comp Components) {
	c.comp = comp
}

// Run 读取命令直到 quit, EOF 或 ctx 结束
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if quit := c.Execute(line); quit {
			cancel()
			return
		}
	}
}

// Execute 执行一行命令, 返回 true 表示应退出
func (c *Console) Execute(line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()
	case "devices", "d":
		c.cmdDevices(args)
	case "service", "s":
		c.cmdService(args)
	case "status":
		c.cmdStatus()
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Exiting...")
		return true
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
Commands:
  USB devices:
    devices start                          - Start USB device monitoring
    devices stop                           - Stop USB device monitoring
    devices list                           - List currently attached devices
    devices block <vid> <pid> <serial> [reason]
                                           - Add a blocklist rule

  Service cycle:
    service start <name> <run> <delay>     - Start/stop <name> every <run>+<delay> seconds
    service stop                           - Stop the cycle

  status                                   - Show monitor and cycle status
  quit                                     - Stop everything and exit`)
}

func (c *Console) cmdDevices(args []string) {
	if c.comp.Devices == nil {
		fmt.Fprintln(c.out, "USB device monitoring is disabled")
		return
	}
	if len(args) == 0 {
		fmt.Fprintln(c.out, "Usage: devices start|stop|list|block")
		return
	}
	switch args[0] {
	case "start":
		if err := c.comp.Devices.Start(); err != nil {
			fmt.Fprintf(c.out, "Cannot start USB monitoring: %v\n", err)
			return
		}
		fmt.Fprintln(c.out, "USB device monitoring started.")
	case "stop":
		c.comp.Devices.Stop()
		fmt.Fprintln(c.out, "USB device monitoring stopped.")
	case "list", "ls":
		devs := c.comp.Devices.Devices()
		if len(devs) == 0 {
			fmt.Fprintln(c.out, "No devices known (start monitoring first)")
			return
		}
		for _, d := range devs {
			fmt.Fprintf(c.out, "  %-30s %-12s %s\n", d.Name, d.Status, d.PNPID)
		}
	case "block":
		c.cmdBlock(args[1:])
	default:
		fmt.Fprintf(c.out, "Unknown devices command: %s\n", args[0])
	}
}

func (c *Console) cmdBlock(args []string) {
	if c.comp.Rules == nil {
		fmt.Fprintln(c.out, "No blocklist database configured")
		return
	}
	if len(args) < 3 {
		fmt.Fprintln(c.out, "Usage: devices block <vid> <pid> <serial> [reason]")
		return
	}
	reason := strings.Join(args[3:], " ")
	if err := c.comp.Rules.AddBlockRule(args[0], args[1], args[2], reason); err != nil {
		fmt.Fprintf(c.out, "Failed to add rule: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Blocked %s:%s serial %s\n", args[0], args[1], args[2])
}

func (c *Console) cmdService(args []string) {
	if c.comp.Service == nil {
		fmt.Fprintln(c.out, "Service control is disabled")
		return
	}
	if len(args) == 0 {
		fmt.Fprintln(c.out, "Usage: service start <name> <run> <delay> | service stop")
		return
	}
	switch args[0] {
	case "start":
		// 缺少的参数按空字符串处理, 随后被校验拒绝
		fields := append(args[1:], "", "", "")
		cfg, err := model.ParseCycleConfig(fields[0], fields[1], fields[2])
		if err != nil {
			fmt.Fprintf(c.out, "Invalid service name or wait time: %v\n", err)
			return
		}
		if err := c.comp.Service.Start(cfg); err != nil {
			fmt.Fprintf(c.out, "Cannot start service cycle: %v\n", err)
			return
		}
		fmt.Fprintf(c.out, "Status: %s\n", c.comp.Service.Status())
	case "stop":
		c.comp.Service.Stop()
		fmt.Fprintf(c.out, "Status: %s\n", c.comp.Service.Status())
	default:
		fmt.Fprintf(c.out, "Unknown service command: %s\n", args[0])
	}
}

func (c *Console) cmdStatus() {
	if c.comp.Devices != nil {
		fmt.Fprintf(c.out, "USB monitor:   %s (%d devices)\n", c.comp.Devices.Status(), len(c.comp.Devices.Devices()))
	}
	if c.comp.Service != nil {
		fmt.Fprintf(c.out, "Service cycle: %s (%d cycles)\n", c.comp.Service.Status(), c.comp.Service.Cycles())
	}
}

// Close 解除阻塞中的 Readline, 使 Run 返回
func (c *Console) Close() error {
	if c.rl == nil {
		return nil
	}
	return c.rl.Close()
}
