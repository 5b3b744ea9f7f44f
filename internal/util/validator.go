package util

import (
	"fmt"
)

const MaxBreakCapacity = 50

// ValidateBreakCapacity 验证团队休息名额（0 到 50 之间）
func ValidateBreakCapacity(n int) error {
	if n < 0 {
		return fmt.Errorf("break capacity must not be negative, got %d", n)
	}
	if n > MaxBreakCapacity {
		return fmt.Errorf("break capacity too large, max %d, got %d", MaxBreakCapacity, n)
	}
	return nil
}

// ValidateSelfStatus 验证用户自己可以设置的状态（只允许 working / break）
func ValidateSelfStatus(status string) error {
	switch status {
	case "working", "break":
		return nil
	case "":
		return fmt.Errorf("status is empty")
	}
	return fmt.Errorf("invalid status %q, use \"working\" or \"break\"", status)
}
