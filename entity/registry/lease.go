package registry

import (
	"cmp"
	"slices"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/green-corridor/entity"
)

// PutLease 写入（或替换）租约，替换时保留原createdAt
func (r *Registry) PutLease(l entity.Lease) entity.Lease {
	now := r.clock.Now()
	r.leaseMu.Lock()
	defer r.leaseMu.Unlock()
	if old, ok := r.leases[l.Key()]; ok {
		l.CreatedAt = old.CreatedAt
	} else {
		l.CreatedAt = now
	}
	l.UpdatedAt = now
	r.leases[l.Key()] = l
	return l
}

func (r *Registry) GetLease(key entity.LeaseKey) (entity.Lease, bool) {
	r.leaseMu.RLock()
	defer r.leaseMu.RUnlock()
	l, ok := r.leases[key]
	return l, ok
}

// Leases 全部租约，按到期时间排序
func (r *Registry) Leases() []entity.Lease {
	return r.filterLeases(func(entity.Lease) bool { return true })
}

func (r *Registry) LeasesForSignal(signalID string) []entity.Lease {
	return r.filterLeases(func(l entity.Lease) bool { return l.SignalID == signalID })
}

func (r *Registry) LeasesForVehicle(vehicleID string) []entity.Lease {
	return r.filterLeases(func(l entity.Lease) bool { return l.VehicleID == vehicleID })
}

func (r *Registry) DeleteLease(key entity.LeaseKey) bool {
	return r.DeleteLeaseIf(key, func(entity.Lease) bool { return true })
}

func (r *Registry) DeleteLeaseIf(key entity.LeaseKey, pred func(entity.Lease) bool) bool {
	r.leaseMu.Lock()
	defer r.leaseMu.Unlock()
	l, ok := r.leases[key]
	if !ok || !pred(l) {
		return false
	}
	delete(r.leases, key)
	return true
}

func (r *Registry) filterLeases(pred func(entity.Lease) bool) []entity.Lease {
	r.leaseMu.RLock()
	res := lo.Filter(lo.Values(r.leases), func(l entity.Lease, _ int) bool { return pred(l) })
	r.leaseMu.RUnlock()
	slices.SortFunc(res, func(a, b entity.Lease) int {
		if c := a.ExpiresAt.Compare(b.ExpiresAt); c != 0 {
			return c
		}
		return compareKey(a.Key(), b.Key())
	})
	return res
}

func compareKey(a, b entity.LeaseKey) int {
	return cmp.Or(cmp.Compare(a.SignalID, b.SignalID), cmp.Compare(a.VehicleID, b.VehicleID))
}
