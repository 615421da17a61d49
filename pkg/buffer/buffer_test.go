package buffer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/tidewatch/metric"
)

func TestAppendAndDrain(t *testing.T) {
	ring, err := New[int](5)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		ring.Append(i)
	}
	assert.Equal(t, 3, ring.Size())
	assert.Equal(t, 5, ring.Capacity())

	drained := ring.DrainAll()
	assert.Equal(t, []int{1, 2, 3}, drained)
	assert.Equal(t, 0, ring.Size())
	assert.Nil(t, ring.DrainAll())
}

func TestDropOldestRetainsMostRecent(t *testing.T) {
	ring, err := New[int](3)
	require.NoError(t, err)

	for i := 1; i <= 7; i++ {
		ring.Append(i)
	}

	assert.Equal(t, 3, ring.Size())
	assert.Equal(t, []int{5, 6, 7}, ring.DrainAll())
	assert.Equal(t, int64(4), ring.Stats().Drops())
	assert.Equal(t, int64(7), ring.Stats().Appends())
}

func TestDropNewestDiscardsIncoming(t *testing.T) {
	var dropped []string
	ring, err := New[string](2,
		WithOverflowPolicy[string](DropNewest),
		WithDropCallback[string](func(s string) { dropped = append(dropped, s) }),
	)
	require.NoError(t, err)

	ring.Append("a")
	ring.Append("b")
	ring.Append("c")

	assert.Equal(t, []string{"a", "b"}, ring.Snapshot())
	assert.Equal(t, []string{"c"}, dropped)
}

func TestDropCallbackReceivesEvicted(t *testing.T) {
	var dropped []int
	ring, err := New[int](2, WithDropCallback[int](func(v int) { dropped = append(dropped, v) }))
	require.NoError(t, err)

	ring.Append(1)
	ring.Append(2)
	ring.Append(3)

	assert.Equal(t, []int{1}, dropped)
	assert.Equal(t, []int{2, 3}, ring.Snapshot())
}

func TestSnapshotDoesNotDrain(t *testing.T) {
	ring, err := New[int](4)
	require.NoError(t, err)

	ring.Append(10)
	ring.Append(20)

	assert.Equal(t, []int{10, 20}, ring.Snapshot())
	assert.Equal(t, 2, ring.Size())
}

func TestMinimumCapacity(t *testing.T) {
	ring, err := New[int](0)
	require.NoError(t, err)
	assert.Equal(t, 1, ring.Capacity())
}

// TestDrainAtomicUnderConcurrentAppend verifies that under concurrent
// appends and drains every item ends up in exactly one drained slice or in
// the final buffer, never both, never neither.
func TestDrainAtomicUnderConcurrentAppend(t *testing.T) {
	const (
		producers    = 4
		perProducer  = 500
		totalAppends = producers * perProducer
	)

	// Capacity >= total so nothing is dropped and accounting is exact.
	ring, err := New[int](totalAppends)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				ring.Append(base + i)
			}
		}(p * perProducer)
	}

	seen := make(map[int]int)
	var seenMu sync.Mutex
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			for _, v := range ring.DrainAll() {
				seenMu.Lock()
				seen[v]++
				seenMu.Unlock()
			}
		}
	}()

	wg.Wait()
	<-done

	for _, v := range ring.DrainAll() {
		seen[v]++
	}

	require.Len(t, seen, totalAppends)
	for v, count := range seen {
		require.Equal(t, 1, count, "item %d observed %d times", v, count)
	}
}

func TestBufferMetricsRegistration(t *testing.T) {
	registry := metric.NewRegistry()

	ring, err := New[int](2, WithMetrics[int](registry, "vessel_position"))
	require.NoError(t, err)
	ring.Append(1)

	// A second buffer with the same prefix conflicts.
	_, err = New[int](2, WithMetrics[int](registry, "vessel_position"))
	require.Error(t, err)

	// A different prefix registers cleanly.
	_, err = New[int](2, WithMetrics[int](registry, "news_item"))
	require.NoError(t, err)
}
