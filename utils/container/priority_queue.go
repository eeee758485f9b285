package container

import "container/heap"

// Item 优先队列中单个元素，HeapPush返回的句柄
type Item[T any] struct {
	Value    T     // 元素的值
	Priority int64 // 优先级（越小越优先），租约到期队列中为UnixNano
	index    int   // 项在堆中的索引，由heap.Interface方法维护
}

// priorityQueue 实现heap.Interface的最小堆
type priorityQueue[T any] []*Item[T]

func (pq priorityQueue[T]) Len() int { return len(pq) }

func (pq priorityQueue[T]) Less(i, j int) bool {
	return pq[i].Priority < pq[j].Priority
}

func (pq priorityQueue[T]) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue[T]) Push(x any) {
	n := len(*pq)
	item := x.(*Item[T])
	item.index = n
	*pq = append(*pq, item)
}

func (pq *priorityQueue[T]) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // 避免内存泄漏
	item.index = -1 // 为了安全起见
	*pq = old[0 : n-1]
	return item
}

// PriorityQueue 优先队列
// 功能：按优先级数值从小到大弹出元素，用于维护(到期时间, 租约键)的到期顺序
// 说明：非并发安全，调用方负责加锁
type PriorityQueue[T any] struct {
	queue priorityQueue[T]
}

// NewPriorityQueue 创建优先队列
func NewPriorityQueue[T any]() *PriorityQueue[T] {
	return &PriorityQueue[T]{queue: make(priorityQueue[T], 0)}
}

// Len 获取当前队列长度
func (q *PriorityQueue[T]) Len() int {
	return len(q.queue)
}

// Peek 查看优先级数值最小的元素但不移除
// 返回：value-元素值，priority-优先级，ok-队列非空
func (q *PriorityQueue[T]) Peek() (value T, priority int64, ok bool) {
	if len(q.queue) == 0 {
		return value, 0, false
	}
	top := q.queue[0]
	return top.Value, top.Priority, true
}

// HeapPush 加入元素并维护堆结构
// 返回：元素句柄，可用于Update与Remove
func (q *PriorityQueue[T]) HeapPush(value T, priority int64) *Item[T] {
	it := &Item[T]{
		Value:    value,
		Priority: priority,
	}
	heap.Push(&q.queue, it)
	return it
}

// Update 修改仍在队列中的元素的优先级
// 返回：元素已出队时返回false
func (q *PriorityQueue[T]) Update(it *Item[T], priority int64) bool {
	if it.index < 0 || it.index >= len(q.queue) || q.queue[it.index] != it {
		return false
	}
	it.Priority = priority
	heap.Fix(&q.queue, it.index)
	return true
}

// Remove 从队列中移除元素
// 返回：元素已出队时返回false
func (q *PriorityQueue[T]) Remove(it *Item[T]) bool {
	if it.index < 0 || it.index >= len(q.queue) || q.queue[it.index] != it {
		return false
	}
	heap.Remove(&q.queue, it.index)
	return true
}

// HeapPop 弹出优先级数值最小的元素
// 说明：队列为空时panic，调用前先检查Len或Peek
func (q *PriorityQueue[T]) HeapPop() (value T, priority int64) {
	item := heap.Pop(&q.queue).(*Item[T])
	return item.Value, item.Priority
}

// PopUntil 弹出所有优先级数值不大于limit的元素
// 功能：一次性取出所有已到期的元素，按优先级从小到大返回
func (q *PriorityQueue[T]) PopUntil(limit int64) []T {
	var res []T
	for len(q.queue) > 0 && q.queue[0].Priority <= limit {
		v, _ := q.HeapPop()
		res = append(res, v)
	}
	return res
}
