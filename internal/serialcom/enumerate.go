package serialcom

import (
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// PortDetail 系统即插即用清单中的串口设备
type PortDetail struct {
	Name         string `json:"name"`
	DisplayName  string `json:"display_name"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
}

// Enumerator 查询系统串口清单
type Enumerator interface {
	PortNames() ([]string, error)
	PortDetails() ([]PortDetail, error)
}

// SystemEnumerator 通过 go.bug.st/serial 查询系统串口
type SystemEnumerator struct{}

var _ Enumerator = SystemEnumerator{}

// DefaultEnumerator 包级辅助函数使用的枚举器
var DefaultEnumerator Enumerator = SystemEnumerator{}

// PortNames 返回系统串口名称
func (SystemEnumerator) PortNames() ([]string, error) {
	return serial.GetPortsList()
}

// PortDetails 返回系统串口详细信息
func (SystemEnumerator) PortDetails() ([]PortDetail, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}

	details := make([]PortDetail, 0, len(ports))
	for _, p := range ports {
		details = append(details, PortDetail{
			Name:         p.Name,
			DisplayName:  displayName(p.Product, p.Name),
			IsUSB:        p.IsUSB,
			VID:          p.VID,
			PID:          p.PID,
			SerialNumber: p.SerialNumber,
			Product:      p.Product,
		})
	}
	return details, nil
}

// displayName 拼出与设备管理器一致的名称，如 "USB Serial Device (COM3)"
func displayName(product, name string) string {
	if product == "" {
		return "(" + name + ")"
	}
	if strings.Contains(product, "("+name+")") {
		return product
	}
	return product + " (" + name + ")"
}

// ListPortNames 返回去重后的系统串口名称
func ListPortNames() ([]string, error) {
	return ListPortNamesFrom(DefaultEnumerator)
}

// ListPortNamesFrom 使用指定枚举器返回去重后的串口名称，保持原有顺序
func ListPortNamesFrom(e Enumerator) ([]string, error) {
	names, err := e.PortNames()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(names))
	unique := make([]string, 0, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		unique = append(unique, name)
	}
	return unique, nil
}

// ListPortDetails 返回名称中包含 "(COM" 的设备
func ListPortDetails() ([]PortDetail, error) {
	return ListPortDetailsFrom(DefaultEnumerator)
}

// ListPortDetailsFrom 使用指定枚举器返回 COM 设备
func ListPortDetailsFrom(e Enumerator) ([]PortDetail, error) {
	details, err := e.PortDetails()
	if err != nil {
		return nil, err
	}

	com := make([]PortDetail, 0, len(details))
	for _, d := range details {
		if strings.Contains(d.DisplayName, "(COM") {
			com = append(com, d)
		}
	}
	return com, nil
}

// DetailedPortStrings 返回 COM 设备的显示名称
func DetailedPortStrings(e Enumerator) ([]string, error) {
	details, err := ListPortDetailsFrom(e)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(details))
	for _, d := range details {
		names = append(names, d.DisplayName)
	}
	return names, nil
}

// SimplifyPortName 从 "Silicon Labs CP210x USB to UART Bridge (COM5)" 中取出 "COM5"。
// 括号缺失、顺序错误、内容少于4个字符或不含 "COM" 时返回 false。
func SimplifyPortName(detailed string) (string, bool) {
	start := strings.LastIndexByte(detailed, '(')
	end := strings.LastIndexByte(detailed, ')')
	if start == -1 || end == -1 || start >= end {
		return "", false
	}

	name := detailed[start+1 : end]
	if len(name) < 4 || !strings.Contains(name, "COM") {
		return "", false
	}
	return name, true
}
