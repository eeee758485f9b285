package container_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/green-corridor/utils/container"
)

func TestPriorityQueueOrder(t *testing.T) {
	q := container.NewPriorityQueue[string]()
	_, _, ok := q.Peek()
	assert.False(t, ok)

	q.HeapPush("c", 30)
	q.HeapPush("a", 10)
	q.HeapPush("d", 40)
	q.HeapPush("b", 20)
	assert.Equal(t, 4, q.Len())

	v, p, ok := q.Peek()
	assert.True(t, ok)
	assert.Equal(t, "a", v)
	assert.Equal(t, int64(10), p)

	v, p = q.HeapPop()
	assert.Equal(t, "a", v)
	assert.Equal(t, int64(10), p)
	assert.Equal(t, 3, q.Len())
}

func TestPriorityQueuePopUntil(t *testing.T) {
	q := container.NewPriorityQueue[int]()
	for _, p := range []int64{5, 1, 9, 3, 7} {
		q.HeapPush(int(p), p)
	}
	assert.Equal(t, []int{1, 3, 5}, q.PopUntil(5))
	assert.Empty(t, q.PopUntil(6))
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, []int{7, 9}, q.PopUntil(100))
	assert.Equal(t, 0, q.Len())
}

func TestPriorityQueueUpdateRemove(t *testing.T) {
	q := container.NewPriorityQueue[string]()
	a := q.HeapPush("a", 10)
	b := q.HeapPush("b", 20)
	c := q.HeapPush("c", 30)

	assert.True(t, q.Update(a, 40))
	v, _, _ := q.Peek()
	assert.Equal(t, "b", v)

	assert.True(t, q.Remove(b))
	assert.False(t, q.Remove(b))
	assert.False(t, q.Update(b, 1))
	assert.Equal(t, 2, q.Len())

	v, p := q.HeapPop()
	assert.Equal(t, "c", v)
	assert.Equal(t, int64(30), p)
	// 已弹出的句柄不能再修改或移除
	assert.False(t, q.Remove(c))
	assert.Equal(t, []string{"a"}, q.PopUntil(100))
}
