package entity

import (
	"fmt"
	"time"

	"github.com/samber/lo"
)

// LightState 信号灯灯色
type LightState string

const (
	LightRed    LightState = "red"
	LightYellow LightState = "yellow"
	LightGreen  LightState = "green"
)

// Valid 是否为red/yellow/green之一
func (s LightState) Valid() bool {
	switch s {
	case LightRed, LightYellow, LightGreen:
		return true
	}
	return false
}

// Location WGS84经纬度坐标
type Location struct {
	Latitude  float64 `json:"latitude" yaml:"latitude" bson:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude" bson:"longitude"`
}

// Valid 经纬度是否在合法范围内
func (l Location) Valid() bool {
	return l.Latitude >= -90 && l.Latitude <= 90 && l.Longitude >= -180 && l.Longitude <= 180
}

func (l Location) String() string {
	return fmt.Sprintf("[%v, %v]", l.Latitude, l.Longitude)
}

// Signal 路口信号灯
type Signal struct {
	SignalID          string     `json:"signalId" yaml:"signal_id" bson:"signalId"`
	Location          Location   `json:"location" yaml:"location" bson:"location"`
	CurrentState      LightState `json:"currentState" yaml:"current_state,omitempty" bson:"currentState,omitempty"`
	IsOverridden      bool       `json:"isOverridden" yaml:"-" bson:"-"`
	EmergencyVehicles []string   `json:"emergencyVehicles" yaml:"-" bson:"-"` // 当前持有覆盖租约的车辆，按首次授予顺序
	LastUpdate        time.Time  `json:"lastUpdate" yaml:"-" bson:"-"`
	CreatedAt         time.Time  `json:"createdAt" yaml:"-" bson:"-"`
	UpdatedAt         time.Time  `json:"updatedAt" yaml:"-" bson:"-"`

	// 被覆盖前的灯色，最后一个租约释放时恢复
	StateBeforeOverride LightState `json:"-" yaml:"-" bson:"-"`
}

// Clone 深拷贝，registry对外只返回副本
func (s Signal) Clone() Signal {
	s.EmergencyVehicles = append(make([]string, 0, len(s.EmergencyVehicles)), s.EmergencyVehicles...)
	return s
}

// Route 车辆行驶路线
type Route struct {
	Coordinates []Location `json:"coordinates"`
}

// VehicleLocation 车辆上报的位置
type VehicleLocation struct {
	Location
	Heading   *float64  `json:"heading"`
	Speed     *float64  `json:"speed"`
	Timestamp time.Time `json:"timestamp"`
}

// CorridorStatus 绿波通道状态
type CorridorStatus string

const (
	CorridorActive  CorridorStatus = "active"
	CorridorCleared CorridorStatus = "cleared"
)

// DefaultPriority 未指定时的通道优先级
const DefaultPriority = "high"

// Corridor 一辆应急车辆的绿波通道
type Corridor struct {
	VehicleID       string          `json:"vehicleId"`
	VehicleType     string          `json:"vehicleType"`
	Route           Route           `json:"route"`
	Priority        string          `json:"priority"`
	Status          CorridorStatus  `json:"status"`
	AffectedSignals []string        `json:"affectedSignals"` // 车辆前方仍被预留的信号灯（窗口）
	CurrentLocation VehicleLocation `json:"currentLocation"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Clone 深拷贝
func (c Corridor) Clone() Corridor {
	c.Route.Coordinates = append(make([]Location, 0, len(c.Route.Coordinates)), c.Route.Coordinates...)
	c.AffectedSignals = append(make([]string, 0, len(c.AffectedSignals)), c.AffectedSignals...)
	return c
}

// LeaseKey 租约键，每个(信号灯, 车辆)至多一个租约
type LeaseKey struct {
	SignalID  string
	VehicleID string
}

func (k LeaseKey) String() string {
	return k.SignalID + "-" + k.VehicleID
}

// Lease 信号灯覆盖租约
type Lease struct {
	LeaseID   string     `json:"leaseId"`
	SignalID  string     `json:"signalId"`
	VehicleID string     `json:"vehicleId"`
	State     LightState `json:"state"`
	StartTime time.Time  `json:"startTime"`
	Duration  float64    `json:"duration"` // 秒
	ExpiresAt time.Time  `json:"expiresAt"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (l Lease) Key() LeaseKey {
	return LeaseKey{SignalID: l.SignalID, VehicleID: l.VehicleID}
}

// Expired 到期时间不晚于now即视为过期
// 说明：expiresAt恰好等于now时有意算作过期，快速回收定时器正是在到期时刻触发
func (l Lease) Expired(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}

// SignalRequest 登记信号灯的输入
type SignalRequest struct {
	SignalID     string     `json:"signalId"`
	Location     *Location  `json:"location"`
	CurrentState LightState `json:"currentState"` // 为空时为red
}

// CorridorRequest 创建绿波通道的输入
type CorridorRequest struct {
	VehicleID   string `json:"vehicleId"`
	VehicleType string `json:"vehicleType"`
	Route       Route  `json:"route"`
	Priority    string `json:"priority"`
}

// LocationUpdateResult 位置更新结果
type LocationUpdateResult struct {
	VehicleID       string          `json:"vehicleId"`
	Location        VehicleLocation `json:"location"`
	UpcomingSignals int             `json:"upcomingSignals"`
	Window          []string        `json:"window"`
	Released        []string        `json:"released"`
	Status          CorridorStatus  `json:"status"`
}

// RouteSignal 路线上的信号灯及其对应的路线坐标序号
type RouteSignal struct {
	SignalID   string
	RouteIndex int
	Location   Location
}

// SignalIDs 提取信号灯ID序列
func SignalIDs(rs []RouteSignal) []string {
	return lo.Map(rs, func(r RouteSignal, _ int) string { return r.SignalID })
}
