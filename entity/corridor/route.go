package corridor

import (
	"fmt"
	"math"

	"github.com/tsinghua-fib-lab/green-corridor/entity"
	"github.com/tsinghua-fib-lab/green-corridor/utils/config"
)

// SequentialMapper 按路线顺序为前limit个坐标点生成占位信号灯
// 说明：第i个坐标点对应SIGNAL_00i，不查询registry，结果只取决于路线长度
type SequentialMapper struct{}

var _ entity.IRouteToSignals = SequentialMapper{}

func (SequentialMapper) Name() string { return config.MapperSequential }

func (SequentialMapper) AffectedSignals(route entity.Route, limit int) []entity.RouteSignal {
	n := min(len(route.Coordinates), max(limit, 0))
	res := make([]entity.RouteSignal, 0, n)
	for i := range n {
		res = append(res, entity.RouteSignal{
			SignalID:   fmt.Sprintf("SIGNAL_%03d", i+1),
			RouteIndex: i,
			Location:   route.Coordinates[i],
		})
	}
	return res
}

// NearestMapper 将路线坐标点匹配到半径内最近的已登记信号灯
// 功能：沿路线顺序逐点查找最近的信号灯，去重后至多返回limit个
// 说明：
// 1. 距离相同时取ID较小者，保证结果确定
// 2. 同一信号灯只在第一次匹配到的坐标点处出现
type NearestMapper struct {
	registry entity.IRegistry
	radius   float64 // 匹配半径（米）
}

var _ entity.IRouteToSignals = (*NearestMapper)(nil)

func NewNearestMapper(registry entity.IRegistry, radius float64) *NearestMapper {
	return &NearestMapper{registry: registry, radius: radius}
}

func (m *NearestMapper) Name() string { return config.MapperNearest }

func (m *NearestMapper) AffectedSignals(route entity.Route, limit int) []entity.RouteSignal {
	signals := m.registry.Signals() // 已按ID排序
	seen := make(map[string]struct{})
	res := make([]entity.RouteSignal, 0)
	for i, p := range route.Coordinates {
		if len(res) >= limit {
			break
		}
		best, bestDist := -1, math.Inf(1)
		for j, s := range signals {
			if d := entity.Distance(p, s.Location); d <= m.radius && d < bestDist {
				best, bestDist = j, d
			}
		}
		if best < 0 {
			continue
		}
		s := signals[best]
		if _, ok := seen[s.SignalID]; ok {
			continue
		}
		seen[s.SignalID] = struct{}{}
		res = append(res, entity.RouteSignal{SignalID: s.SignalID, RouteIndex: i, Location: s.Location})
	}
	return res
}

// NewMapper 按名称创建映射策略
func NewMapper(name string, registry entity.IRegistry, radius float64) (entity.IRouteToSignals, error) {
	switch name {
	case "", config.MapperSequential:
		return SequentialMapper{}, nil
	case config.MapperNearest:
		return NewNearestMapper(registry, radius), nil
	}
	return nil, fmt.Errorf("unknown corridor mapper %q", name)
}
