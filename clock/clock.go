package clock

import "time"

// Clock 时间源
// 功能：抽象当前时间、定时回调与周期触发，生产环境使用Real()，测试使用Fake()推进虚拟时间
// 说明：租约到期、清扫周期、registry时间戳都必须经由Clock获取时间，不直接调用time包
type Clock interface {
	Now() time.Time                             // 当前时间
	AfterFunc(d time.Duration, f func()) *Timer // d之后调用f
	NewTicker(d time.Duration) *Ticker          // 周期触发器，d必须为正
	Since(t time.Time) time.Duration            // 距t经过的时长
}

// Timer 一次性定时器句柄
type Timer struct {
	stopFunc func() bool
}

// Stop 取消定时器
// 返回：true表示成功阻止了回调，false表示回调已触发或已被取消
func (t *Timer) Stop() bool { return t.stopFunc() }

// Ticker 周期触发器
// 说明：C的容量为1，消费方落后时丢弃多余的触发，与time.Ticker一致
type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

// Stop 停止触发，不关闭C
func (t *Ticker) Stop() { t.stopFunc() }
