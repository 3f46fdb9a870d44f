package types

import "strings"

// NormalizeID 规范化实例 ID
//
// 实例 ID 在比较、存储和展示前统一去除首尾空白并转为小写。
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
