package gsheet

import (
	"context"
	"math/rand"
	"time"
)

// ==================== 指数退避 ====================

// Backoff 指数退避参数
// wait = min(Base * 2^(attempt-1), Cap) * jitter，jitter 均匀取自 [JitterLow, JitterHigh]
type Backoff struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
	JitterLow   float64
	JitterHigh  float64
}

// 读表是重操作，抖动拉宽、重试次数给满；列表是轻操作，窄抖动少重试
var (
	// ListBackoff 列工作表的退避策略
	ListBackoff = Backoff{Base: time.Second, Cap: 20 * time.Second, MaxAttempts: 5, JitterLow: 0.8, JitterHigh: 1.2}
	// ReadBackoff 读行数据的退避策略
	ReadBackoff = Backoff{Base: time.Second, Cap: 60 * time.Second, MaxAttempts: 20, JitterLow: 0.5, JitterHigh: 1.5}
)

// Delay 第 attempt 次失败后的等待时长（attempt 从 1 起）
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.Cap {
			d = b.Cap
			break
		}
	}
	if d > b.Cap {
		d = b.Cap
	}
	jitter := b.JitterLow + rand.Float64()*(b.JitterHigh-b.JitterLow)
	return time.Duration(float64(d) * jitter)
}

// sleep 可被 ctx 打断的协作式等待
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
