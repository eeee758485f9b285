package corridor

import (
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/green-corridor/entity"
)

// Manager 绿波通道协调器
// 功能：创建、推进、清除应急车辆的绿波通道，并提供单灯直接覆盖
// 说明：
// 1. 同一车辆的操作由keyedMutex串行，不同车辆之间并发执行
// 2. 通道记录与租约都存放在registry中，Manager本身不持有状态
// 3. affectedSignals只会收缩：位置更新只在当前窗口内选择前方信号灯
type Manager struct {
	ctx    entity.ITaskContext
	mapper entity.IRouteToSignals
	locks  *keyedMutex
}

var _ entity.ICorridorManager = (*Manager)(nil)

// NewManager 创建通道协调器
// 参数：ctx-任务上下文，mapper-路线到信号灯的映射策略
func NewManager(ctx entity.ITaskContext, mapper entity.IRouteToSignals) *Manager {
	return &Manager{
		ctx:    ctx,
		mapper: mapper,
		locks:  newKeyedMutex(),
	}
}

// CreateCorridor 创建绿波通道
// 功能：校验请求，计算路线上的信号灯并逐个授予覆盖租约
// 参数：req-车辆ID、车辆类型、路线（至少2个坐标点）与可选优先级
// 返回：新建的通道；请求非法返回ErrValidation，车辆已有活动通道返回ErrConflict
// 算法说明：
// 1. 映射策略给出至多signalCap个信号灯
// 2. 尚未登记的信号灯以对应路线坐标自动登记为红灯占位
// 3. 写入通道记录后为每个信号灯授予corridor.lease_duration时长的租约
// 4. 授予时信号灯已被删除的，从通道中去掉，保证affectedSignals都在registry中
func (m *Manager) CreateCorridor(req entity.CorridorRequest) (entity.Corridor, error) {
	if err := validateRequest(req); err != nil {
		return entity.Corridor{}, err
	}
	unlock := m.locks.Lock(req.VehicleID)
	defer unlock()

	registry := m.ctx.Registry()
	if existing, ok := registry.GetCorridor(req.VehicleID); ok && existing.Status == entity.CorridorActive {
		return entity.Corridor{}, fmt.Errorf("%w: vehicle %s already has an active corridor", entity.ErrConflict, req.VehicleID)
	}

	rc := m.ctx.RuntimeConfig()
	now := m.ctx.Clock().Now()
	signals := m.mapper.AffectedSignals(req.Route, rc.SignalCap)
	m.ensureSignals(signals, now)

	c := registry.PutCorridor(entity.Corridor{
		VehicleID:       req.VehicleID,
		VehicleType:     req.VehicleType,
		Route:           entity.Route{Coordinates: append([]entity.Location(nil), req.Route.Coordinates...)},
		Priority:        lo.Ternary(req.Priority == "", entity.DefaultPriority, req.Priority),
		Status:          entity.CorridorActive,
		AffectedSignals: entity.SignalIDs(signals),
		CurrentLocation: entity.VehicleLocation{Location: req.Route.Coordinates[0], Timestamp: now},
	})
	granted := make([]string, 0, len(c.AffectedSignals))
	for _, id := range c.AffectedSignals {
		if _, err := m.ctx.LeaseManager().GrantIfRegistered(id, c.VehicleID, rc.LeaseDuration); err != nil {
			if errors.Is(err, entity.ErrNotFound) {
				log.Warnf("signal %s deleted while creating corridor for vehicle %s, skipped", id, c.VehicleID)
				continue
			}
			log.Errorf("failed to grant override on %s for vehicle %s: %v", id, c.VehicleID, err)
			return entity.Corridor{}, fmt.Errorf("grant override on %s: %w", id, err)
		}
		granted = append(granted, id)
	}
	if len(granted) != len(c.AffectedSignals) {
		c, _ = registry.UpdateCorridor(c.VehicleID, func(c *entity.Corridor) {
			c.AffectedSignals = granted
		})
	}

	log.Infof("green corridor created for %s %s with %d signals", c.VehicleType, c.VehicleID, len(c.AffectedSignals))
	m.ctx.EventSink().Publish(entity.NewEvent(entity.EventCorridorCreated, c.VehicleID, "", now, c))
	return c, nil
}

// UpdateLocation 更新车辆位置并推进通道
// 功能：记录车辆位置，只保留前方至多windowSize个信号灯，其余立即释放
// 参数：vehicleID-车辆ID，loc-车辆位置（timestamp为空时取当前时间）
// 返回：位置更新结果；无活动通道返回ErrNotFound
// 算法说明：
// 1. 以路线上距车辆最近的坐标点序号为进度
// 2. 重新计算路线信号灯，取序号不小于进度且仍在当前窗口中的前windowSize个
// 3. 离开窗口的信号灯释放租约
// 4. 配置了arrival_radius且车辆已到达终点附近时，直接清除通道
func (m *Manager) UpdateLocation(vehicleID string, loc entity.VehicleLocation) (entity.LocationUpdateResult, error) {
	if vehicleID == "" {
		return entity.LocationUpdateResult{}, fmt.Errorf("%w: vehicle ID is required", entity.ErrValidation)
	}
	if !loc.Location.Valid() {
		return entity.LocationUpdateResult{}, fmt.Errorf("%w: invalid location %v", entity.ErrValidation, loc.Location)
	}
	unlock := m.locks.Lock(vehicleID)
	defer unlock()

	registry := m.ctx.Registry()
	c, ok := registry.GetCorridor(vehicleID)
	if !ok || c.Status != entity.CorridorActive {
		return entity.LocationUpdateResult{}, fmt.Errorf("%w: no active corridor found for vehicle %s", entity.ErrNotFound, vehicleID)
	}
	now := m.ctx.Clock().Now()
	if loc.Timestamp.IsZero() {
		loc.Timestamp = now
	}
	rc := m.ctx.RuntimeConfig()

	if rc.ArrivalRadius > 0 {
		dest := c.Route.Coordinates[len(c.Route.Coordinates)-1]
		if entity.Distance(loc.Location, dest) <= rc.ArrivalRadius {
			log.Infof("vehicle %s arrived at destination %v", vehicleID, dest)
			released := m.clearLocked(c, now)
			return entity.LocationUpdateResult{
				VehicleID: vehicleID,
				Location:  loc,
				Window:    []string{},
				Released:  released,
				Status:    entity.CorridorCleared,
			}, nil
		}
	}

	window := m.upcomingWindow(c, loc.Location, rc.SignalCap, rc.WindowSize)
	released := make([]string, 0)
	for _, id := range lo.Without(c.AffectedSignals, window...) {
		if m.ctx.LeaseManager().Release(id, vehicleID) {
			released = append(released, id)
		}
	}
	updated, ok := registry.UpdateCorridor(vehicleID, func(c *entity.Corridor) {
		c.AffectedSignals = window
		c.CurrentLocation = loc
	})
	if !ok {
		return entity.LocationUpdateResult{}, fmt.Errorf("%w: no active corridor found for vehicle %s", entity.ErrNotFound, vehicleID)
	}

	log.Infof("vehicle %s location updated to %v, %d signals ahead", vehicleID, loc.Location, len(window))
	m.ctx.EventSink().Publish(entity.NewEvent(entity.EventCorridorUpdated, vehicleID, "", now, updated))
	return entity.LocationUpdateResult{
		VehicleID:       vehicleID,
		Location:        loc,
		UpcomingSignals: len(window),
		Window:          window,
		Released:        released,
		Status:          entity.CorridorActive,
	}, nil
}

// ClearCorridor 清除车辆的绿波通道
// 说明：车辆没有通道时记录警告并直接返回，不视为错误
func (m *Manager) ClearCorridor(vehicleID string) error {
	if vehicleID == "" {
		return fmt.Errorf("%w: vehicle ID is required", entity.ErrValidation)
	}
	unlock := m.locks.Lock(vehicleID)
	defer unlock()

	c, ok := m.ctx.Registry().GetCorridor(vehicleID)
	if !ok {
		log.Warnf("no corridor found for vehicle %s", vehicleID)
		return nil
	}
	m.clearLocked(c, m.ctx.Clock().Now())
	return nil
}

// OverrideSignal 直接覆盖单个信号灯，与通道无关
// 参数：duration为0时使用override.default_duration
func (m *Manager) OverrideSignal(signalID, vehicleID string, duration time.Duration) (entity.Lease, error) {
	if duration == 0 {
		duration = m.ctx.RuntimeConfig().OverrideDuration
	}
	return m.ctx.LeaseManager().Grant(signalID, vehicleID, duration)
}

// Corridor 查询车辆的通道
func (m *Manager) Corridor(vehicleID string) (entity.Corridor, error) {
	c, ok := m.ctx.Registry().GetCorridor(vehicleID)
	if !ok {
		return entity.Corridor{}, fmt.Errorf("%w: no corridor found for vehicle %s", entity.ErrNotFound, vehicleID)
	}
	return c, nil
}

// Corridors 全部通道，按创建时间排序
func (m *Manager) Corridors() []entity.Corridor {
	return m.ctx.Registry().Corridors()
}

// ForgetSignal 将已删除的信号灯从所有通道窗口中移除
// 返回：受影响的通道数
// 说明：删除后又被重新登记并授予租约的信号灯（新建通道的占位）保留在该通道中
func (m *Manager) ForgetSignal(signalID string) int {
	registry := m.ctx.Registry()
	n := 0
	for _, c := range registry.Corridors() {
		if !lo.Contains(c.AffectedSignals, signalID) {
			continue
		}
		unlock := m.locks.Lock(c.VehicleID)
		_, registered := registry.GetSignal(signalID)
		_, leased := registry.GetLease(entity.LeaseKey{SignalID: signalID, VehicleID: c.VehicleID})
		if registered && leased {
			unlock()
			continue
		}
		if _, ok := registry.UpdateCorridor(c.VehicleID, func(c *entity.Corridor) {
			c.AffectedSignals = lo.Without(c.AffectedSignals, signalID)
		}); ok {
			n++
		}
		unlock()
	}
	return n
}

// clearLocked 释放通道的全部租约并删除通道，调用方持有车辆锁
// 说明：除窗口内的信号灯外，该车辆通过直接覆盖获得的租约也一并释放
func (m *Manager) clearLocked(c entity.Corridor, now time.Time) []string {
	leases := m.ctx.LeaseManager()
	released := make([]string, 0, len(c.AffectedSignals))
	for _, id := range c.AffectedSignals {
		if leases.Release(id, c.VehicleID) {
			released = append(released, id)
		}
	}
	for _, l := range m.ctx.Registry().LeasesForVehicle(c.VehicleID) {
		if leases.Release(l.SignalID, l.VehicleID) {
			released = append(released, l.SignalID)
		}
	}
	m.ctx.Registry().DeleteCorridor(c.VehicleID)

	c.Status = entity.CorridorCleared
	log.Infof("green corridor cleared for vehicle %s, %d overrides released", c.VehicleID, len(released))
	m.ctx.EventSink().Publish(entity.NewEvent(entity.EventCorridorCleared, c.VehicleID, "", now, c))
	return released
}

// upcomingWindow 计算车辆前方的信号灯窗口
func (m *Manager) upcomingWindow(c entity.Corridor, loc entity.Location, limit, size int) []string {
	progress := entity.NearestIndex(c.Route.Coordinates, loc)
	current := lo.SliceToMap(c.AffectedSignals, func(id string) (string, struct{}) { return id, struct{}{} })
	ahead := lo.Filter(m.mapper.AffectedSignals(c.Route, limit), func(rs entity.RouteSignal, _ int) bool {
		_, ok := current[rs.SignalID]
		return ok && rs.RouteIndex >= progress
	})
	ids := entity.SignalIDs(ahead)
	if len(ids) > size {
		ids = ids[:size]
	}
	return ids
}

// ensureSignals 为尚未登记的信号灯登记红灯占位
func (m *Manager) ensureSignals(signals []entity.RouteSignal, now time.Time) {
	registry := m.ctx.Registry()
	for _, rs := range signals {
		if _, added := registry.AddSignal(entity.Signal{
			SignalID:          rs.SignalID,
			Location:          rs.Location,
			CurrentState:      entity.LightRed,
			EmergencyVehicles: []string{},
			LastUpdate:        now,
		}); added {
			log.Infof("placeholder signal %s registered at %v", rs.SignalID, rs.Location)
		}
	}
}

func validateRequest(req entity.CorridorRequest) error {
	switch {
	case req.VehicleID == "":
		return fmt.Errorf("%w: vehicle ID is required", entity.ErrValidation)
	case req.VehicleType == "":
		return fmt.Errorf("%w: vehicle type is required", entity.ErrValidation)
	case len(req.Route.Coordinates) < 2:
		return fmt.Errorf("%w: route must have at least 2 coordinates", entity.ErrValidation)
	}
	for i, p := range req.Route.Coordinates {
		if !p.Valid() {
			return fmt.Errorf("%w: route coordinate %d %v out of range", entity.ErrValidation, i, p)
		}
	}
	return nil
}
