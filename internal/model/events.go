package model

import (
	"sort"
	"time"
)

// DeviceRecord 某一采样时刻的 USB 设备信息，构造后不再修改
type DeviceRecord struct {
	ID          string // 唯一键, e.g. /devices/pci0000:00/0000:00:14.0/usb1/1-2
	Name        string
	Status      string // "OK", "Unauthorized", "Unknown"
	Description string
	PNPID       string // USB\VID_046D&PID_C52B\serial
	DeviceType  string // 接口分类结果, 不参与 Fields 输出
}

// Field 输出时的一行属性
type Field struct {
	Label string
	Value string
}

// Fields 固定顺序: Name, Status, Description, DeviceID, PNPDeviceID
func (r DeviceRecord) Fields() []Field {
	return []Field{
		{"Name", r.Name},
		{"Status", r.Status},
		{"Description", r.Description},
		{"DeviceID", r.ID},
		{"PNPDeviceID", r.PNPID},
	}
}

// DeviceSnapshot 某一时刻所有已连接设备, ID -> DeviceRecord
type DeviceSnapshot map[string]DeviceRecord

// Clone 返回浅拷贝 (DeviceRecord 是值类型)
func (s DeviceSnapshot) Clone() DeviceSnapshot {
	if s == nil {
		return nil
	}
	out := make(DeviceSnapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Keys 排序后的键
func (s DeviceSnapshot) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EventKind 插拔类型
type EventKind uint8

const (
	Attached EventKind = iota + 1
	Detached
)

func (k EventKind) String() string {
	switch k {
	case Attached:
		return "attached"
	case Detached:
		return "detached"
	default:
		return "unknown"
	}
}

// DeviceEvent 硬件插拔事件
type DeviceEvent struct {
	Kind      EventKind
	Device    DeviceRecord
	TimeStamp time.Time
}

// Diff 比较两次快照: 先报告全部插入, 再报告全部拔出, 各自按键排序
func Diff(prev, next DeviceSnapshot) []DeviceEvent {
	now := time.Now()
	var events []DeviceEvent
	for _, id := range next.Keys() {
		if _, ok := prev[id]; !ok {
			events = append(events, DeviceEvent{Kind: Attached, Device: next[id], TimeStamp: now})
		}
	}
	for _, id := range prev.Keys() {
		if _, ok := next[id]; !ok {
			events = append(events, DeviceEvent{Kind: Detached, Device: prev[id], TimeStamp: now})
		}
	}
	return events
}
