package engine

import (
	"math"
	"time"
)

// CalculateBackoffDelay 计算第 attempt 次尝试失败后的等待时间：
// baseDelay * multiplier^(attempt-1)，并受 maxDelay 限制（maxDelay <= 0 表示不限制）。
func CalculateBackoffDelay(baseDelay time.Duration, attempt int, multiplier float64, maxDelay time.Duration) time.Duration {
	if baseDelay <= 0 || attempt < 1 {
		return 0
	}
	if multiplier < 1 {
		multiplier = 1
	}

	factor := math.Pow(multiplier, float64(attempt-1))
	delay := float64(baseDelay) * factor

	// 应用最大延迟限制
	if maxDelay > 0 && delay > float64(maxDelay) {
		return maxDelay
	}
	if delay >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}
