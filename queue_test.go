package mediacore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoundedQueuePushPopOrder(t *testing.T) {
	t.Parallel()
	q := newBoundedQueue[int](2)

	assert.True(t, q.tryPush(1))
	assert.True(t, q.tryPush(2))
	assert.False(t, q.tryPush(3), "queue at capacity should reject further pushes")

	v, ok := q.tryPop()
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = q.tryPop()
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	_, ok = q.tryPop()
	assert.False(t, ok)
}

func TestBoundedQueueCapacityFloorsAtOne(t *testing.T) {
	t.Parallel()
	q := newBoundedQueue[int](0)
	assert.True(t, q.tryPush(1))
	assert.False(t, q.tryPush(2))
}

func TestBoundedQueuePeekLastAndClear(t *testing.T) {
	t.Parallel()
	q := newBoundedQueue[string](4)
	q.tryPush("a")
	q.tryPush("b")

	v, ok := q.peekLast()
	assert.True(t, ok)
	assert.Equal(t, "b", v)
	assert.Equal(t, 2, q.len())

	q.clear()
	assert.Equal(t, 0, q.len())
	_, ok = q.peekLast()
	assert.False(t, ok)
}

func TestBoundedQueueConcurrentPushPop(t *testing.T) {
	t.Parallel()
	q := newBoundedQueue[int](100)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			q.tryPush(v)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, q.len())
}
