package corridor

import (
	"context"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/tsinghua-fib-lab/green-corridor/entity"
	"github.com/tsinghua-fib-lab/green-corridor/utils/rpcutil"
)

const ServiceName = "greencorridor.v1.CorridorService"

const (
	CreateCorridorProcedure = "/" + ServiceName + "/CreateCorridor"
	UpdateLocationProcedure = "/" + ServiceName + "/UpdateLocation"
	ClearCorridorProcedure  = "/" + ServiceName + "/ClearCorridor"
	OverrideSignalProcedure = "/" + ServiceName + "/OverrideSignal"
	GetCorridorProcedure    = "/" + ServiceName + "/GetCorridor"
)

type UpdateLocationRequest struct {
	VehicleID string                 `json:"vehicleId"`
	Location  entity.VehicleLocation `json:"location"`
}

type ClearCorridorRequest struct {
	VehicleID string `json:"vehicleId"`
}

type ClearCorridorResponse struct{}

type OverrideSignalRequest struct {
	SignalID  string  `json:"signalId"`
	VehicleID string  `json:"vehicleId"`
	Duration  float64 `json:"duration,omitempty"` // 秒，0表示默认时长
}

type GetCorridorRequest struct {
	VehicleID string `json:"vehicleId"`
}

// Mux 可注册http.Handler的路由（chi.Router、http.ServeMux均满足）
type Mux interface {
	Handle(pattern string, handler http.Handler)
}

// Register 将通道协调器注册为connect RPC服务
// 功能：每个过程单独挂载一个unary handler，使用JSON编解码
// 参数：mux-路由
func (m *Manager) Register(mux Mux, opts ...connect.HandlerOption) {
	opts = append(rpcutil.HandlerOptions(), opts...)
	mux.Handle(CreateCorridorProcedure, connect.NewUnaryHandler(CreateCorridorProcedure, m.CreateCorridorRPC, opts...))
	mux.Handle(UpdateLocationProcedure, connect.NewUnaryHandler(UpdateLocationProcedure, m.UpdateLocationRPC, opts...))
	mux.Handle(ClearCorridorProcedure, connect.NewUnaryHandler(ClearCorridorProcedure, m.ClearCorridorRPC, opts...))
	mux.Handle(OverrideSignalProcedure, connect.NewUnaryHandler(OverrideSignalProcedure, m.OverrideSignalRPC, opts...))
	mux.Handle(GetCorridorProcedure, connect.NewUnaryHandler(GetCorridorProcedure, m.GetCorridorRPC, opts...))
}

// CreateCorridorRPC RPC接口：创建绿波通道
func (m *Manager) CreateCorridorRPC(
	ctx context.Context, in *connect.Request[entity.CorridorRequest],
) (*connect.Response[entity.Corridor], error) {
	c, err := m.CreateCorridor(*in.Msg)
	if err != nil {
		return nil, rpcutil.Error(err)
	}
	return connect.NewResponse(&c), nil
}

// UpdateLocationRPC RPC接口：上报车辆位置
func (m *Manager) UpdateLocationRPC(
	ctx context.Context, in *connect.Request[UpdateLocationRequest],
) (*connect.Response[entity.LocationUpdateResult], error) {
	res, err := m.UpdateLocation(in.Msg.VehicleID, in.Msg.Location)
	if err != nil {
		return nil, rpcutil.Error(err)
	}
	return connect.NewResponse(&res), nil
}

// ClearCorridorRPC RPC接口：清除绿波通道
func (m *Manager) ClearCorridorRPC(
	ctx context.Context, in *connect.Request[ClearCorridorRequest],
) (*connect.Response[ClearCorridorResponse], error) {
	if err := m.ClearCorridor(in.Msg.VehicleID); err != nil {
		return nil, rpcutil.Error(err)
	}
	return connect.NewResponse(&ClearCorridorResponse{}), nil
}

// OverrideSignalRPC RPC接口：直接覆盖单个信号灯
func (m *Manager) OverrideSignalRPC(
	ctx context.Context, in *connect.Request[OverrideSignalRequest],
) (*connect.Response[entity.Lease], error) {
	req := in.Msg
	l, err := m.OverrideSignal(req.SignalID, req.VehicleID, time.Duration(req.Duration*float64(time.Second)))
	if err != nil {
		return nil, rpcutil.Error(err)
	}
	return connect.NewResponse(&l), nil
}

// GetCorridorRPC RPC接口：查询车辆的绿波通道
func (m *Manager) GetCorridorRPC(
	ctx context.Context, in *connect.Request[GetCorridorRequest],
) (*connect.Response[entity.Corridor], error) {
	c, err := m.Corridor(in.Msg.VehicleID)
	if err != nil {
		return nil, rpcutil.Error(err)
	}
	return connect.NewResponse(&c), nil
}
