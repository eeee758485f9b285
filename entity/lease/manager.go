package lease

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/green-corridor/clock"
	"github.com/tsinghua-fib-lab/green-corridor/entity"
	"github.com/tsinghua-fib-lab/green-corridor/utils/container"
)

var log = logrus.WithField("module", "lease")

// Manager 信号灯覆盖租约管理器
// 功能：授予、续期、释放、回收租约，是唯一理解租约时长语义的地方
// 说明：
// 1. 租约本身存放在registry中，Manager只维护(到期时间, 租约键)最小堆与一个快速回收定时器
// 2. 定时器始终指向堆顶的最早到期时间，不为每个租约单独创建定时器
// 3. 每个租约键在堆中只有一个条目：续期时调整优先级，释放或回收时移除
// 4. 所有租约写操作以及信号灯的复位、删除在mu内串行，保证信号灯的覆盖显示与租约集合一致
// 5. 不仲裁多车争用同一信号灯：授予总是成功，最后授予者决定显示（已知限制）
type Manager struct {
	registry entity.IRegistry
	clock    clock.Clock
	sink     entity.IEventSink

	mu       sync.Mutex
	expiries *container.PriorityQueue[entity.LeaseKey]
	entries  map[entity.LeaseKey]*container.Item[entity.LeaseKey]
	timer    *clock.Timer
	timerAt  time.Time
}

var _ entity.ILeaseManager = (*Manager)(nil)

// NewManager 创建租约管理器
// 参数：registry-状态存储，c-时间源，sink-事件接收方（可为nil）
func NewManager(registry entity.IRegistry, c clock.Clock, sink entity.IEventSink) *Manager {
	if sink == nil {
		sink = entity.NopSink{}
	}
	return &Manager{
		registry: registry,
		clock:    c,
		sink:     sink,
		expiries: container.NewPriorityQueue[entity.LeaseKey](),
		entries:  make(map[entity.LeaseKey]*container.Item[entity.LeaseKey]),
	}
}

// Grant 授予或续期(signalID, vehicleID)的绿灯覆盖租约
// 功能：写入expiresAt=now+duration的租约并登记到期时间；到期前重复授予即续期
// 参数：signalID-信号灯ID，vehicleID-车辆ID，duration-租约时长
// 返回：写入的租约；参数非法时返回ErrValidation
// 说明：信号灯未登记时租约照常授予，只是没有显示状态可更新
func (m *Manager) Grant(signalID, vehicleID string, duration time.Duration) (entity.Lease, error) {
	if err := validateGrant(signalID, vehicleID, duration); err != nil {
		return entity.Lease{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.grantLocked(signalID, vehicleID, duration), nil
}

// GrantIfRegistered 仅当信号灯仍在registry中时授予租约
// 返回：信号灯不存在时返回ErrNotFound
// 说明：存在性检查与写入在同一把锁内，与DropSignal互斥，删除中的信号灯不会再获得租约
func (m *Manager) GrantIfRegistered(signalID, vehicleID string, duration time.Duration) (entity.Lease, error) {
	if err := validateGrant(signalID, vehicleID, duration); err != nil {
		return entity.Lease{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.registry.GetSignal(signalID); !ok {
		return entity.Lease{}, fmt.Errorf("%w: signal %s not found", entity.ErrNotFound, signalID)
	}
	return m.grantLocked(signalID, vehicleID, duration), nil
}

func validateGrant(signalID, vehicleID string, duration time.Duration) error {
	if signalID == "" || vehicleID == "" {
		return fmt.Errorf("%w: signal ID and vehicle ID are required", entity.ErrValidation)
	}
	if duration <= 0 {
		return fmt.Errorf("%w: override duration must be positive, got %v", entity.ErrValidation, duration)
	}
	return nil
}

func (m *Manager) grantLocked(signalID, vehicleID string, duration time.Duration) entity.Lease {
	now := m.clock.Now()
	key := entity.LeaseKey{SignalID: signalID, VehicleID: vehicleID}
	l := entity.Lease{
		LeaseID:   uuid.NewString(),
		SignalID:  signalID,
		VehicleID: vehicleID,
		State:     entity.LightGreen,
		StartTime: now,
		Duration:  duration.Seconds(),
		ExpiresAt: now.Add(duration),
	}
	if old, ok := m.registry.GetLease(key); ok {
		l.LeaseID = old.LeaseID
	}
	l = m.registry.PutLease(l)
	if it, ok := m.entries[key]; !ok || !m.expiries.Update(it, l.ExpiresAt.UnixNano()) {
		m.entries[key] = m.expiries.HeapPush(key, l.ExpiresAt.UnixNano())
	}
	m.showOverride(signalID, vehicleID, now)
	m.armLocked()

	log.Infof("signal %s overridden to GREEN for vehicle %s until %s", signalID, vehicleID, l.ExpiresAt.Format(time.RFC3339))
	m.sink.Publish(entity.NewEvent(entity.EventLeaseGranted, vehicleID, signalID, now, l))
	return l
}

// Release 释放租约
// 返回：true表示确实删除了租约；租约不存在（已到期或已释放）时为no-op
func (m *Manager) Release(signalID, vehicleID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.releaseLocked(entity.LeaseKey{SignalID: signalID, VehicleID: vehicleID}, entity.EventLeaseReleased)
}

// ResetSignal 复位信号灯：释放其上全部租约并恢复为无覆盖的红灯
// 返回：复位后的信号灯、释放的租约数；信号灯不存在时ok为false且不做任何修改
// 说明：释放与显示复位在同一把锁内完成，期间不会插入新的授予
func (m *Manager) ResetSignal(signalID string) (s entity.Signal, released int, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.registry.GetSignal(signalID); !ok {
		return entity.Signal{}, 0, false
	}
	released = m.releaseSignalLocked(signalID)
	now := m.clock.Now()
	s, ok = m.registry.UpdateSignal(signalID, func(s *entity.Signal) {
		s.CurrentState = entity.LightRed
		s.IsOverridden = false
		s.EmergencyVehicles = []string{}
		s.StateBeforeOverride = ""
		s.LastUpdate = now
	})
	return s, released, ok
}

// DropSignal 删除信号灯记录并释放其上全部租约
// 返回：释放的租约数；信号灯不存在时ok为false
// 说明：先删除记录再释放租约，整体在mu内完成，与GrantIfRegistered互斥
func (m *Manager) DropSignal(signalID string) (released int, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.registry.DeleteSignal(signalID) {
		return 0, false
	}
	return m.releaseSignalLocked(signalID), true
}

func (m *Manager) releaseSignalLocked(signalID string) int {
	n := 0
	for _, l := range m.registry.LeasesForSignal(signalID) {
		if m.releaseLocked(l.Key(), entity.EventLeaseReleased) {
			n++
		}
	}
	return n
}

// ReclaimDue 快速回收路径：弹出到期队列中已到期的条目并删除对应租约
// 说明：
// 1. 由定时器在最早到期时刻触发，也可直接调用
// 2. 删除前重新检查registry中的expiresAt，绕过Manager写入的租约不会被误删
func (m *Manager) ReclaimDue() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	now := m.clock.Now()
	n := 0
	for _, key := range m.expiries.PopUntil(now.UnixNano()) {
		delete(m.entries, key)
		if m.expireLocked(key, now) {
			n++
		}
	}
	m.armLocked()
	return n
}

// ReclaimExpired 全量扫描registry，删除所有已到期的租约
// 说明：不依赖到期队列，是快速路径丢失或未触发时的兜底
func (m *Manager) ReclaimExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	n := 0
	for _, l := range m.registry.Leases() {
		if l.Expired(now) && m.expireLocked(l.Key(), now) {
			n++
		}
	}
	m.armLocked()
	return n
}

// PendingExpiries 到期队列中的条目数，等于经Manager授予且尚未释放的租约数
func (m *Manager) PendingExpiries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expiries.Len()
}

func (m *Manager) releaseLocked(key entity.LeaseKey, event entity.EventType) bool {
	if !m.registry.DeleteLease(key) {
		return false
	}
	m.forgetLocked(key)
	m.armLocked()
	now := m.clock.Now()
	m.clearOverride(key.SignalID, key.VehicleID, now)
	log.Infof("signal %s released from override for vehicle %s", key.SignalID, key.VehicleID)
	m.sink.Publish(entity.NewEvent(event, key.VehicleID, key.SignalID, now, nil))
	return true
}

func (m *Manager) expireLocked(key entity.LeaseKey, now time.Time) bool {
	if !m.registry.DeleteLeaseIf(key, func(l entity.Lease) bool { return l.Expired(now) }) {
		return false
	}
	m.forgetLocked(key)
	m.clearOverride(key.SignalID, key.VehicleID, now)
	log.Infof("expired override removed: %s", key)
	m.sink.Publish(entity.NewEvent(entity.EventLeaseExpired, key.VehicleID, key.SignalID, now, nil))
	return true
}

// forgetLocked 从到期队列中移除租约键的条目
func (m *Manager) forgetLocked(key entity.LeaseKey) {
	if it, ok := m.entries[key]; ok {
		m.expiries.Remove(it)
		delete(m.entries, key)
	}
}

// armLocked 让定时器指向到期队列堆顶
func (m *Manager) armLocked() {
	_, next, ok := m.expiries.Peek()
	if !ok {
		if m.timer != nil {
			m.timer.Stop()
			m.timer = nil
		}
		return
	}
	at := time.Unix(0, next)
	if m.timer != nil && !m.timerAt.After(at) {
		return
	}
	if m.timer != nil {
		m.timer.Stop()
	}
	d := max(at.Sub(m.clock.Now()), time.Nanosecond)
	m.timerAt = at
	m.timer = m.clock.AfterFunc(d, func() { m.ReclaimDue() })
}

// showOverride 将信号灯显示为绿灯并记录持有车辆
func (m *Manager) showOverride(signalID, vehicleID string, now time.Time) {
	_, ok := m.registry.UpdateSignal(signalID, func(s *entity.Signal) {
		if !s.IsOverridden {
			s.StateBeforeOverride = s.CurrentState
		}
		s.IsOverridden = true
		s.CurrentState = entity.LightGreen
		if !lo.Contains(s.EmergencyVehicles, vehicleID) {
			s.EmergencyVehicles = append(s.EmergencyVehicles, vehicleID)
		}
		s.LastUpdate = now
	})
	if !ok {
		log.Debugf("override granted on unregistered signal %s", signalID)
	}
}

// clearOverride 移除持有车辆；最后一个租约释放后恢复覆盖前的灯色
func (m *Manager) clearOverride(signalID, vehicleID string, now time.Time) {
	remaining := len(m.registry.LeasesForSignal(signalID))
	m.registry.UpdateSignal(signalID, func(s *entity.Signal) {
		s.EmergencyVehicles = lo.Without(s.EmergencyVehicles, vehicleID)
		if remaining == 0 && s.IsOverridden {
			s.IsOverridden = false
			s.CurrentState = s.StateBeforeOverride
			if !s.CurrentState.Valid() {
				s.CurrentState = entity.LightRed
			}
			s.StateBeforeOverride = ""
		}
		s.LastUpdate = now
	})
}
