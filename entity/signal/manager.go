package signal

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/green-corridor/entity"
)

var log = logrus.WithField("module", "signal")

// Manager 信号灯清单管理
// 功能：登记、查询、手动设置、复位、删除信号灯
// 说明：复位与删除交给租约管理器在其锁内完成，保证覆盖显示与租约一致
type Manager struct {
	ctx       entity.ITaskContext
	corridors entity.ICorridorManager
}

var _ entity.ISignalManager = (*Manager)(nil)

func NewManager(ctx entity.ITaskContext, corridors entity.ICorridorManager) *Manager {
	return &Manager{ctx: ctx, corridors: corridors}
}

// Register 登记信号灯
// 功能：新信号灯以给定灯色（默认红灯）写入；已存在时更新位置与基础灯色
// 返回：登记后的信号灯；缺少ID、位置或灯色非法时返回ErrValidation
// 说明：已存在且处于覆盖中的信号灯，新灯色在覆盖结束后生效
func (m *Manager) Register(req entity.SignalRequest) (entity.Signal, error) {
	if req.SignalID == "" || req.Location == nil {
		return entity.Signal{}, fmt.Errorf("%w: signal ID and location are required", entity.ErrValidation)
	}
	if !req.Location.Valid() {
		return entity.Signal{}, fmt.Errorf("%w: location %v out of range", entity.ErrValidation, *req.Location)
	}
	state := req.CurrentState
	if state == "" {
		state = entity.LightRed
	}
	if !state.Valid() {
		return entity.Signal{}, fmt.Errorf("%w: invalid state %q, must be red, yellow or green", entity.ErrValidation, state)
	}

	now := m.ctx.Clock().Now()
	registry := m.ctx.Registry()
	s, added := registry.AddSignal(entity.Signal{
		SignalID:          req.SignalID,
		Location:          *req.Location,
		CurrentState:      state,
		EmergencyVehicles: []string{},
		LastUpdate:        now,
	})
	if !added {
		s, _ = registry.UpdateSignal(req.SignalID, func(s *entity.Signal) {
			s.Location = *req.Location
			if s.IsOverridden {
				s.StateBeforeOverride = state
			} else {
				s.CurrentState = state
			}
			s.LastUpdate = now
		})
	}
	log.Infof("signal initialized: %s at %v", s.SignalID, s.Location)
	return s, nil
}

// Signal 查询信号灯
func (m *Manager) Signal(id string) (entity.Signal, error) {
	s, ok := m.ctx.Registry().GetSignal(id)
	if !ok {
		return entity.Signal{}, notFound(id)
	}
	return s, nil
}

// Signals 全部信号灯，按ID排序
func (m *Manager) Signals() []entity.Signal {
	return m.ctx.Registry().Signals()
}

// SetState 手动设置灯色
// 说明：不影响租约，覆盖中的信号灯同样被改写
func (m *Manager) SetState(id string, state entity.LightState) (entity.Signal, error) {
	if !state.Valid() {
		return entity.Signal{}, fmt.Errorf("%w: invalid state %q, must be red, yellow or green", entity.ErrValidation, state)
	}
	now := m.ctx.Clock().Now()
	s, ok := m.ctx.Registry().UpdateSignal(id, func(s *entity.Signal) {
		s.CurrentState = state
		s.LastUpdate = now
	})
	if !ok {
		return entity.Signal{}, notFound(id)
	}
	log.Infof("signal %s state changed to %s", id, state)
	return s, nil
}

// Reset 复位信号灯：释放全部租约，恢复为无覆盖的红灯
func (m *Manager) Reset(id string) (entity.Signal, error) {
	s, released, ok := m.ctx.LeaseManager().ResetSignal(id)
	if !ok {
		return entity.Signal{}, notFound(id)
	}
	log.Infof("signal %s reset to normal operation, %d overrides released", id, released)
	return s, nil
}

// Delete 删除信号灯，同时释放其租约并从各通道窗口中移除
// 说明：记录删除与租约释放由租约管理器一次完成，之后再清理通道窗口
func (m *Manager) Delete(id string) error {
	released, ok := m.ctx.LeaseManager().DropSignal(id)
	if !ok {
		return notFound(id)
	}
	forgotten := 0
	if m.corridors != nil {
		forgotten = m.corridors.ForgetSignal(id)
	}
	log.Infof("signal deleted: %s, %d overrides released, removed from %d corridors", id, released, forgotten)
	return nil
}

func notFound(id string) error {
	return fmt.Errorf("%w: signal %s not found", entity.ErrNotFound, id)
}
