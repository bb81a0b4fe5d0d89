package utils

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// HexString 大写十六进制，字节之间用空格分隔，如 "AA 0D 0A"
func HexString(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	return fmt.Sprintf("% X", data)
}

// ASCIIString 可打印字符原样保留，其余替换为 '.'
func ASCIIString(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))
	for _, c := range data {
		if c >= 0x20 && c <= 0x7e {
			b.WriteByte(c)
		} else {
			b.WriteByte('.')
		}
	}
	return b.String()
}

// ParseHex 解析十六进制字符串，允许空格、冒号、连字符分隔以及 0x 前缀
func ParseHex(text string) ([]byte, error) {
	cleaned := strings.NewReplacer(" ", "", ":", "", "-", "", "\t", "", "\n", "", "\r", "").Replace(text)
	cleaned = strings.ReplaceAll(strings.ReplaceAll(cleaned, "0x", ""), "0X", "")
	if len(cleaned)%2 != 0 {
		return nil, fmt.Errorf("odd length hex string: %q", text)
	}
	return hex.DecodeString(cleaned)
}
