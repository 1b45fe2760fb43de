package gsheet

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
)

// ==================== 错误分类 ====================

// RateLimitedError 配额/限流错误：按退避策略重试，次数耗尽后携带此错误浮出
// 上层按行/表级错误处理，不终止整次跑批
type RateLimitedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("gsheet: %s 限流，重试 %d 次后放弃: %v", e.Op, e.Attempts, e.Err)
}

func (e *RateLimitedError) Unwrap() error { return e.Err }

// TransportError 非配额类访问失败：立即浮出，不在网关层继续重试
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gsheet: %s 请求失败: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsRateLimited 远端是否在报配额限流
// Google API 的限流信号：429，或 403 且 reason 为 rateLimitExceeded 一族
func IsRateLimited(err error) bool {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return true
	}
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	if gerr.Code == http.StatusTooManyRequests {
		return true
	}
	if gerr.Code == http.StatusForbidden {
		for _, item := range gerr.Errors {
			reason := strings.ToLower(item.Reason)
			if strings.Contains(reason, "ratelimitexceeded") || strings.Contains(reason, "quotaexceeded") {
				return true
			}
		}
	}
	return false
}
