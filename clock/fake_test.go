package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/green-corridor/clock"
)

var epoch = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

func TestFakeAfterFuncOrder(t *testing.T) {
	c := clock.Fake(epoch)
	var fired []int
	c.AfterFunc(3*time.Second, func() { fired = append(fired, 3) })
	c.AfterFunc(time.Second, func() { fired = append(fired, 1) })
	stopped := c.AfterFunc(2*time.Second, func() { fired = append(fired, 2) })
	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())

	c.Advance(500 * time.Millisecond)
	assert.Empty(t, fired)

	c.Advance(5 * time.Second)
	assert.Equal(t, []int{1, 3}, fired)
	assert.Equal(t, 0, c.WaiterCount())
	assert.Equal(t, epoch.Add(5500*time.Millisecond), c.Now())
}

func TestFakeAfterFuncReschedulesFromCallback(t *testing.T) {
	c := clock.Fake(epoch)
	count := 0
	var schedule func()
	schedule = func() {
		count++
		if count < 3 {
			c.AfterFunc(time.Second, schedule)
		}
	}
	c.AfterFunc(time.Second, schedule)
	c.Advance(10 * time.Second)
	// 回调中注册的新定时器截止时间在目标时间之内，同一次Advance中继续触发
	assert.Equal(t, 3, count)
}

func TestFakeTicker(t *testing.T) {
	c := clock.Fake(epoch)
	ticker := c.NewTicker(time.Minute)
	defer ticker.Stop()

	c.Advance(30 * time.Second)
	select {
	case <-ticker.C:
		t.Fatal("ticker fired early")
	default:
	}

	c.Advance(30 * time.Second)
	select {
	case tick := <-ticker.C:
		assert.Equal(t, epoch.Add(time.Minute), tick)
	default:
		t.Fatal("ticker did not fire")
	}

	ticker.Stop()
	c.Advance(time.Hour)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestFakeNewTickerPanicsOnZero(t *testing.T) {
	assert.Panics(t, func() { clock.Fake(epoch).NewTicker(0) })
}
