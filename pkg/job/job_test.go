package job

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueueOrder(t *testing.T) {
	stop := make(chan struct{})
	wg := &sync.WaitGroup{}
	defer func() {
		close(stop)
		wg.Wait()
	}()

	q := NewQueue(stop, wg)
	q.Enqueue(&Job{ID: "a", Pipeline: "grace"})
	q.Enqueue(&Job{ID: "b", Pipeline: "grace"})
	q.Sync()
	assert.Equal(t, 2, q.Len())

	first := <-q.Ready()
	assert.Equal(t, ID("a"), first.ID)
	second := <-q.Ready()
	assert.Equal(t, ID("b"), second.ID)
	q.Sync()
	assert.Equal(t, 0, q.Len())
}

func TestQueueForEach(t *testing.T) {
	stop := make(chan struct{})
	wg := &sync.WaitGroup{}
	defer func() {
		close(stop)
		wg.Wait()
	}()

	q := NewQueue(stop, wg)
	q.Enqueue(&Job{ID: "a"})
	q.Enqueue(&Job{ID: "b"})
	q.Sync()

	var seen []ID
	q.ForEach(func(_ int, j *Job) bool {
		seen = append(seen, j.ID)
		return true
	})
	assert.Equal(t, []ID{"a", "b"}, seen)
}
