package entity

import "time"

// Manager依赖倒置

// entity/registry的依赖倒置，所有可变状态的唯一持有者
// 读接口返回副本；Update*在锁内对原值执行fn，键不存在时返回false
type IRegistry interface {
	PutSignal(s Signal) Signal
	AddSignal(s Signal) (Signal, bool) // 仅在不存在时写入
	GetSignal(id string) (Signal, bool)
	Signals() []Signal
	UpdateSignal(id string, fn func(*Signal)) (Signal, bool)
	DeleteSignal(id string) bool

	PutCorridor(c Corridor) Corridor
	GetCorridor(vehicleID string) (Corridor, bool)
	Corridors() []Corridor
	UpdateCorridor(vehicleID string, fn func(*Corridor)) (Corridor, bool)
	DeleteCorridor(vehicleID string) bool

	PutLease(l Lease) Lease
	GetLease(key LeaseKey) (Lease, bool)
	Leases() []Lease
	LeasesForSignal(signalID string) []Lease
	LeasesForVehicle(vehicleID string) []Lease
	DeleteLease(key LeaseKey) bool
	// 仅当pred对当前值成立时删除，判断与删除在同一把锁内
	DeleteLeaseIf(key LeaseKey, pred func(Lease) bool) bool
}

// entity/lease的依赖倒置
type ILeaseManager interface {
	Grant(signalID, vehicleID string, duration time.Duration) (Lease, error)             // 授予或续期
	GrantIfRegistered(signalID, vehicleID string, duration time.Duration) (Lease, error) // 信号灯已登记时才授予
	Release(signalID, vehicleID string) bool                                             // 释放，不存在时为no-op
	ResetSignal(signalID string) (s Signal, released int, ok bool)                       // 释放全部租约并复位为红灯
	DropSignal(signalID string) (released int, ok bool)                                  // 删除信号灯并释放全部租约
	ReclaimDue() int                                                                     // 到期队列快速回收
	ReclaimExpired() int                                                                 // 全量扫描回收
}

// 路线到信号灯的映射策略
// 返回按路线顺序排列、至多limit个的信号灯
type IRouteToSignals interface {
	Name() string
	AffectedSignals(route Route, limit int) []RouteSignal
}

// entity/corridor的依赖倒置
type ICorridorManager interface {
	CreateCorridor(req CorridorRequest) (Corridor, error)
	UpdateLocation(vehicleID string, loc VehicleLocation) (LocationUpdateResult, error)
	ClearCorridor(vehicleID string) error
	OverrideSignal(signalID, vehicleID string, duration time.Duration) (Lease, error)
	Corridor(vehicleID string) (Corridor, error)
	Corridors() []Corridor
	ForgetSignal(signalID string) int // 信号灯删除后从各通道窗口中移除
}

// entity/signal的依赖倒置
type ISignalManager interface {
	Register(req SignalRequest) (Signal, error)
	Signal(id string) (Signal, error)
	Signals() []Signal
	SetState(id string, state LightState) (Signal, error)
	Reset(id string) (Signal, error)
	Delete(id string) error
}
