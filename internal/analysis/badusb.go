package analysis

import (
	"os"
	"path/filepath"
	"strings"
)

// USB 类代码
const (
	classHID     = "03"
	classStorage = "08"
	classHub     = "09"
	classVideo   = "0e"
	classAudio   = "01"
	classComm    = "02"
	classVendor  = "ff"
)

// DeviceTypeBadUSB 同时拥有存储和 HID 接口的设备
const DeviceTypeBadUSB = "BADUSB_SUSPECT"

// Classification 根据 sysfs 中的类代码对设备分类
type Classification struct {
	DeviceClass string
	Interfaces  []string // 每个接口的 bInterfaceClass
	HasStorage  bool
	HasHID      bool
}

// Suspect 如果一个 USB 设备树下同时拥有 08(存储) 和 03(HID) 接口，则判定为 BadUSB
func (c Classification) Suspect() bool {
	return c.HasStorage && c.HasHID
}

// DeviceType "BADUSB_SUSPECT", "udisk", "hub", "other"
func (c Classification) DeviceType() string {
	switch {
	case c.Suspect():
		return DeviceTypeBadUSB
	case c.HasStorage:
		return "udisk"
	case c.DeviceClass == classHub:
		return "hub"
	}
	return "other"
}

// Description 人类可读的描述
func (c Classification) Description() string {
	if c.Suspect() {
		return "USB composite device (storage + HID, BadUSB suspect)"
	}
	if c.DeviceClass == classHub {
		return "USB hub"
	}
	if c.HasStorage {
		return "USB mass storage device"
	}
	if c.HasHID {
		return "USB input device"
	}
	for _, class := range c.Interfaces {
		switch class {
		case classVideo:
			return "USB video device"
		case classAudio:
			return "USB audio device"
		case classComm:
			return "USB communications device"
		case classVendor:
			return "USB vendor-specific device"
		}
	}
	return "USB device"
}

// Classify 读取设备目录下 bDeviceClass 以及各接口目录 (例如 1-1:1.0) 的 bInterfaceClass
func Classify(sysPath string) Classification {
	c := Classification{DeviceClass: readClass(filepath.Join(sysPath, "bDeviceClass"))}
	files, err := os.ReadDir(sysPath)
	if err != nil {
		return c
	}
	for _, f := range files {
		if !strings.Contains(f.Name(), ":") {
			continue
		}
		classCode := readClass(filepath.Join(sysPath, f.Name(), "bInterfaceClass"))
		if classCode == "" {
			continue
		}
		c.Interfaces = append(c.Interfaces, classCode)
		if classCode == classHID {
			c.HasHID = true
		}
		if classCode == classStorage {
			c.HasStorage = true
		}
	}
	return c
}

func readClass(path string) string {
	content, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(string(content)))
}
