package lease

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/tsinghua-fib-lab/green-corridor/clock"
	"github.com/tsinghua-fib-lab/green-corridor/entity"
)

// Sweeper 周期性回收过期租约
// 功能：按固定间隔全量扫描租约，删除expiresAt已过的条目，与快速回收定时器、显式释放相互独立
// 说明：只通过ILeaseManager回收租约，不直接修改通道或信号灯；发现租约已被删除时为no-op
type Sweeper struct {
	manager  entity.ILeaseManager
	clock    clock.Clock
	interval time.Duration

	runs atomic.Int64
}

// NewSweeper 创建清扫器
// 参数：manager-租约管理器，c-时间源，interval-清扫间隔（必须为正）
func NewSweeper(manager entity.ILeaseManager, c clock.Clock, interval time.Duration) *Sweeper {
	return &Sweeper{manager: manager, clock: c, interval: interval}
}

// Run 阻塞运行直到ctx取消
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()
	log.Infof("sweeper started, interval %v", s.interval)
	for {
		select {
		case <-ctx.Done():
			log.Info("sweeper stopped")
			return nil
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep 执行一次清扫
// 返回：本次回收的租约数量
// 说明：单次清扫中的panic被记录后丢弃，不影响进程与下一次清扫
func (s *Sweeper) Sweep() (n int) {
	defer s.runs.Add(1)
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("sweep cycle failed: %v", r)
			n = 0
		}
	}()
	n = s.manager.ReclaimExpired()
	if n > 0 {
		log.Infof("sweep reclaimed %d expired overrides", n)
	} else {
		log.Debug("sweep found no expired overrides")
	}
	return n
}

// Runs 已完成的清扫次数
func (s *Sweeper) Runs() int64 {
	return s.runs.Load()
}
