package model

import (
	"fmt"
	"strings"
)

// FormatPNPID 生成 Windows 风格的 PNPDeviceID: USB\VID_046D&PID_C52B\serial
func FormatPNPID(vid, pid, serial string) string {
	id := fmt.Sprintf(`USB\VID_%s&PID_%s`, strings.ToUpper(vid), strings.ToUpper(pid))
	if serial != "" {
		id += `\` + serial
	}
	return id
}

// ParsePNPID 解析 FormatPNPID 的输出
func ParsePNPID(pnp string) (vid, pid, serial string, ok bool) {
	parts := strings.SplitN(pnp, `\`, 3)
	if len(parts) < 2 || !strings.EqualFold(parts[0], "USB") {
		return "", "", "", false
	}
	ids := strings.Split(parts[1], "&")
	if len(ids) != 2 {
		return "", "", "", false
	}
	vid, okVid := strings.CutPrefix(strings.ToUpper(ids[0]), "VID_")
	pid, okPid := strings.CutPrefix(strings.ToUpper(ids[1]), "PID_")
	if !okVid || !okPid {
		return "", "", "", false
	}
	if len(parts) == 3 {
		serial = parts[2]
	}
	return vid, pid, serial, true
}
