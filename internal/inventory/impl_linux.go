//go:build linux

package inventory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Hara602/usbGuard/internal/analysis"
	"github.com/Hara602/usbGuard/internal/model"
	"github.com/pilebones/go-udev/crawler"
	"github.com/pilebones/go-udev/netlink"
)

type udevEnumerator struct {
	matcher netlink.Matcher
}

func newEnumerator() Enumerator {
	// 只关心 USB 物理设备, 不包括接口 (usb_interface)
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Env: map[string]string{
			"SUBSYSTEM": "^usb$",
			"DEVTYPE":   "^usb_device$",
		},
	})
	return &udevEnumerator{matcher: rules}
}

// Enumerate 遍历 /sys/devices, 每个匹配的 kobject 生成一个 DeviceRecord
func (e *udevEnumerator) Enumerate(ctx context.Context) (model.DeviceSnapshot, error) {
	queue := make(chan crawler.Device)
	errs := make(chan error, 1)
	quit := crawler.ExistingDevices(queue, errs, e.matcher)

	snapshot := model.DeviceSnapshot{}
	for dev := range queue {
		if ctx.Err() != nil {
			// 通知 crawler 退出, 继续读取直到 queue 关闭
			select {
			case quit <- struct{}{}:
			default:
			}
			continue
		}
		rec := recordFromKObj(dev.KObj, dev.Env)
		snapshot[rec.ID] = rec
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case err := <-errs:
		return nil, fmt.Errorf("crawl /sys/devices: %w", err)
	default:
	}
	return snapshot, nil
}

func recordFromKObj(kobj string, env map[string]string) model.DeviceRecord {
	vid := readAttr(kobj, "idVendor")
	pid := readAttr(kobj, "idProduct")
	serial := readAttr(kobj, "serial")

	name := readAttr(kobj, "product")
	if name == "" {
		name = readAttr(kobj, "manufacturer")
	}
	if name == "" {
		name = env["DEVNAME"]
	}
	if name == "" {
		name = filepath.Base(kobj)
	}

	var status string
	switch readAttr(kobj, "authorized") {
	case "1":
		status = "OK"
	case "0":
		status = "Unauthorized"
	default:
		status = "Unknown"
	}

	class := analysis.Classify(kobj)
	return model.DeviceRecord{
		ID:          strings.TrimPrefix(kobj, "/sys"),
		Name:        name,
		Status:      status,
		Description: class.Description(),
		PNPID:       model.FormatPNPID(vid, pid, serial),
		DeviceType:  class.DeviceType(),
	}
}

func readAttr(dir, name string) string {
	b, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
