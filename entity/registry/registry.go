package registry

import (
	"cmp"
	"slices"
	"sync"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/green-corridor/clock"
	"github.com/tsinghua-fib-lab/green-corridor/entity"
)

var log = logrus.WithField("module", "registry")

// Registry 信号灯、绿波通道、覆盖租约三类数据的唯一持有者
// 功能：纯数据访问，不做任何业务校验；每个集合一把读写锁，单个键上的修改不会交错
// 说明：所有读接口返回深拷贝，调用方不能通过返回值修改内部状态
type Registry struct {
	clock clock.Clock

	signalMu sync.RWMutex
	signals  map[string]entity.Signal

	corridorMu sync.RWMutex
	corridors  map[string]entity.Corridor

	leaseMu sync.RWMutex
	leases  map[entity.LeaseKey]entity.Lease
}

var _ entity.IRegistry = (*Registry)(nil)

// New 创建空的Registry
// 参数：c-时间源，用于写入createdAt/updatedAt
func New(c clock.Clock) *Registry {
	return &Registry{
		clock:     c,
		signals:   make(map[string]entity.Signal),
		corridors: make(map[string]entity.Corridor),
		leases:    make(map[entity.LeaseKey]entity.Lease),
	}
}

// PutSignal 写入（或覆盖）信号灯
// 说明：覆盖已有信号灯时保留原createdAt
func (r *Registry) PutSignal(s entity.Signal) entity.Signal {
	now := r.clock.Now()
	r.signalMu.Lock()
	defer r.signalMu.Unlock()
	s = s.Clone()
	if old, ok := r.signals[s.SignalID]; ok {
		s.CreatedAt = old.CreatedAt
	} else {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	r.signals[s.SignalID] = s
	log.Debugf("signal put: %s", s.SignalID)
	return s.Clone()
}

// AddSignal 仅在信号灯不存在时写入
// 返回：已存在时返回原信号灯与false
func (r *Registry) AddSignal(s entity.Signal) (entity.Signal, bool) {
	now := r.clock.Now()
	r.signalMu.Lock()
	defer r.signalMu.Unlock()
	if old, ok := r.signals[s.SignalID]; ok {
		return old.Clone(), false
	}
	s = s.Clone()
	s.CreatedAt = now
	s.UpdatedAt = now
	r.signals[s.SignalID] = s
	log.Debugf("signal added: %s", s.SignalID)
	return s.Clone(), true
}

func (r *Registry) GetSignal(id string) (entity.Signal, bool) {
	r.signalMu.RLock()
	defer r.signalMu.RUnlock()
	s, ok := r.signals[id]
	if !ok {
		return entity.Signal{}, false
	}
	return s.Clone(), true
}

// Signals 全部信号灯，按ID排序
func (r *Registry) Signals() []entity.Signal {
	r.signalMu.RLock()
	res := lo.MapToSlice(r.signals, func(_ string, s entity.Signal) entity.Signal { return s.Clone() })
	r.signalMu.RUnlock()
	slices.SortFunc(res, func(a, b entity.Signal) int { return cmp.Compare(a.SignalID, b.SignalID) })
	return res
}

// UpdateSignal 对已存在的信号灯执行局部修改
// 返回：修改后的副本；键不存在时返回false且不调用fn
func (r *Registry) UpdateSignal(id string, fn func(*entity.Signal)) (entity.Signal, bool) {
	now := r.clock.Now()
	r.signalMu.Lock()
	defer r.signalMu.Unlock()
	s, ok := r.signals[id]
	if !ok {
		return entity.Signal{}, false
	}
	s = s.Clone()
	fn(&s)
	s.SignalID = id
	s.UpdatedAt = now
	r.signals[id] = s
	return s.Clone(), true
}

func (r *Registry) DeleteSignal(id string) bool {
	r.signalMu.Lock()
	defer r.signalMu.Unlock()
	if _, ok := r.signals[id]; !ok {
		return false
	}
	delete(r.signals, id)
	return true
}
