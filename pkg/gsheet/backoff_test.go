package gsheet

import (
	"context"
	"testing"
	"time"
)

func TestBackoff_DelayDoubles(t *testing.T) {
	b := Backoff{Base: time.Second, Cap: time.Minute, MaxAttempts: 10, JitterLow: 1.0, JitterHigh: 1.0}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
	}
	for _, c := range cases {
		if got := b.Delay(c.attempt); got != c.want {
			t.Errorf("Delay(%d) = %v, 期望 %v", c.attempt, got, c.want)
		}
	}
}

func TestBackoff_DelayCapped(t *testing.T) {
	b := Backoff{Base: time.Second, Cap: 5 * time.Second, MaxAttempts: 10, JitterLow: 1.0, JitterHigh: 1.0}

	if got := b.Delay(10); got != 5*time.Second {
		t.Errorf("Delay(10) = %v, 应该封顶在 %v", got, 5*time.Second)
	}
}

func TestBackoff_DelayJitterBounds(t *testing.T) {
	b := Backoff{Base: time.Second, Cap: time.Minute, MaxAttempts: 5, JitterLow: 0.5, JitterHigh: 1.5}

	for i := 0; i < 100; i++ {
		d := b.Delay(2)
		if d < time.Second || d > 3*time.Second {
			t.Fatalf("Delay(2) = %v, 抖动应落在 [1s, 3s]", d)
		}
	}
}

func TestBackoff_DelayBadAttempt(t *testing.T) {
	b := Backoff{Base: time.Second, Cap: time.Minute, MaxAttempts: 5, JitterLow: 1.0, JitterHigh: 1.0}

	if got := b.Delay(0); got != time.Second {
		t.Errorf("Delay(0) = %v, 非法 attempt 应按 1 处理", got)
	}
}

func TestSleep_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := sleep(ctx, 10*time.Second)
	if err == nil {
		t.Fatal("已取消的 ctx 应该让 sleep 立即报错")
	}
	if time.Since(start) > time.Second {
		t.Error("sleep 没有被 ctx 及时打断")
	}
}
