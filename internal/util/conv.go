package util

import (
	"strconv"
)

// ToInt64 安全地把 interface{} 转换为 int64
// 兼容 Redis 返回的 int64 / float64 / uint64 / string
func ToInt64(v interface{}) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	case float64:
		return int64(x)
	case uint64:
		return int64(x)
	case string:
		if n, err := strconv.ParseInt(x, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(x, 64); err == nil {
			return int64(f)
		}
		return 0
	default:
		return 0
	}
}

// CeilDiv returns ceil(a/b) for b > 0.
func CeilDiv(a, b int64) int64 {
	if b <= 0 {
		return 0
	}
	q := a / b
	if a%b != 0 && (a > 0) == (b > 0) {
		q++
	}
	return q
}
