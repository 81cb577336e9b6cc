package queue

import (
	"sync"
	"testing"

	"github.com/bzz-bot/bzz/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := New()

	_, ok := q.Peek()
	assert.False(t, ok)
	_, ok = q.Pop()
	assert.False(t, ok)

	q.Push(models.NewSystemTrigger(10))
	q.Push(models.NewSystemTrigger(20))
	q.Push(models.NewSystemTrigger(30))

	head, ok := q.Peek()
	require.True(t, ok)
	assert.Equal(t, 10, head.Intensity)
	assert.Equal(t, 3, q.Len(), "peek does not remove")

	for _, want := range []int{10, 20, 30} {
		got, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, want, got.Intensity)
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueue_SnapshotIsACopy(t *testing.T) {
	q := New()
	q.Push(models.NewSystemTrigger(1))

	snap := q.Snapshot()
	snap[0].Intensity = 99

	head, _ := q.Peek()
	assert.Equal(t, 1, head.Intensity)
}

func TestQueue_ConcurrentProducerConsumer(t *testing.T) {
	q := New()
	const n = 1000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			q.Push(models.NewSystemTrigger(i))
		}
	}()

	var got []int
	for len(got) < n {
		if tr, ok := q.Pop(); ok {
			got = append(got, tr.Intensity)
		}
	}
	wg.Wait()

	for i, v := range got {
		require.Equal(t, i, v)
	}
}
