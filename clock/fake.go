package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock 虚拟时钟
// 功能：时间只在调用Advance时前进，到期的AfterFunc回调在Advance中按截止时间顺序同步执行
// 说明：回调内不能再调用Advance，否则死锁；并发安全
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	waiters []*fakeWaiter
}

type fakeWaiter struct {
	deadline time.Time
	callback func()         // AfterFunc
	channel  chan time.Time // Ticker
	interval time.Duration  // 非0表示ticker，触发后按interval重新排期
	stopped  bool
	fired    bool
}

// Fake 创建以initial为起点的虚拟时钟
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *FakeClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// AfterFunc 注册d之后执行的回调
// 说明：d<=0时立即在调用方goroutine中执行f
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stopFunc: func() bool { return false }}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	w := &fakeWaiter{deadline: c.current.Add(d), callback: f}
	c.waiters = append(c.waiters, w)
	return &Timer{stopFunc: func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if w.stopped || w.fired {
			return false
		}
		w.stopped = true
		return true
	}}
}

func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	w := &fakeWaiter{deadline: c.current.Add(d), channel: ch, interval: d}
	c.waiters = append(c.waiters, w)
	return &Ticker{C: ch, stopFunc: func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		w.stopped = true
	}}
}

// Advance 时间前进d，并触发所有截止时间不晚于新时间的定时器
// 算法说明：
// 1. 更新当前时间
// 2. 循环取出到期的waiter，按截止时间排序后依次触发
// 3. ticker触发后按interval顺延，跨越多个周期时每个周期触发一次（通道满则丢弃）
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	target := c.current
	c.mu.Unlock()

	for {
		due := c.collectDue(target)
		if len(due) == 0 {
			return
		}
		sort.SliceStable(due, func(i, j int) bool {
			return due[i].deadline.Before(due[j].deadline)
		})
		for _, w := range due {
			if w.callback != nil {
				w.callback()
				continue
			}
			select {
			case w.channel <- w.deadline:
			default:
			}
		}
	}
}

// WaiterCount 返回尚未触发的定时器数量（含ticker）
func (c *FakeClock) WaiterCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

func (c *FakeClock) collectDue(target time.Time) []*fakeWaiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	var due []*fakeWaiter
	kept := c.waiters[:0]
	for _, w := range c.waiters {
		if w.stopped {
			continue
		}
		if w.deadline.After(target) {
			kept = append(kept, w)
			continue
		}
		// ticker的副本带着本次触发时间，原waiter顺延后留在列表中
		if w.interval > 0 {
			due = append(due, &fakeWaiter{deadline: w.deadline, channel: w.channel})
			w.deadline = w.deadline.Add(w.interval)
			kept = append(kept, w)
			continue
		}
		w.fired = true
		due = append(due, w)
	}
	for i := len(kept); i < len(c.waiters); i++ {
		c.waiters[i] = nil
	}
	c.waiters = kept
	return due
}
