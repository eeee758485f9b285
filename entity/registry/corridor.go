package registry

import (
	"cmp"
	"slices"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/green-corridor/entity"
)

// PutCorridor 写入（或覆盖）车辆的绿波通道
// 说明：不检查同一车辆是否已有活动通道，这是coordinator的职责
func (r *Registry) PutCorridor(c entity.Corridor) entity.Corridor {
	now := r.clock.Now()
	r.corridorMu.Lock()
	defer r.corridorMu.Unlock()
	c = c.Clone()
	if old, ok := r.corridors[c.VehicleID]; ok {
		c.CreatedAt = old.CreatedAt
	} else {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	r.corridors[c.VehicleID] = c
	log.Debugf("corridor put: %s", c.VehicleID)
	return c.Clone()
}

func (r *Registry) GetCorridor(vehicleID string) (entity.Corridor, bool) {
	r.corridorMu.RLock()
	defer r.corridorMu.RUnlock()
	c, ok := r.corridors[vehicleID]
	if !ok {
		return entity.Corridor{}, false
	}
	return c.Clone(), true
}

// Corridors 全部通道，按创建时间、车辆ID排序
func (r *Registry) Corridors() []entity.Corridor {
	r.corridorMu.RLock()
	res := lo.MapToSlice(r.corridors, func(_ string, c entity.Corridor) entity.Corridor { return c.Clone() })
	r.corridorMu.RUnlock()
	slices.SortFunc(res, func(a, b entity.Corridor) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.VehicleID, b.VehicleID)
	})
	return res
}

func (r *Registry) UpdateCorridor(vehicleID string, fn func(*entity.Corridor)) (entity.Corridor, bool) {
	now := r.clock.Now()
	r.corridorMu.Lock()
	defer r.corridorMu.Unlock()
	c, ok := r.corridors[vehicleID]
	if !ok {
		return entity.Corridor{}, false
	}
	c = c.Clone()
	fn(&c)
	c.VehicleID = vehicleID
	c.UpdatedAt = now
	r.corridors[vehicleID] = c
	return c.Clone(), true
}

func (r *Registry) DeleteCorridor(vehicleID string) bool {
	r.corridorMu.Lock()
	defer r.corridorMu.Unlock()
	if _, ok := r.corridors[vehicleID]; !ok {
		return false
	}
	delete(r.corridors, vehicleID)
	return true
}
