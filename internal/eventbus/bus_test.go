package eventbus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishAssignsMonotonicSequence(t *testing.T) {
	b := New(10, nil)
	s1 := b.Publish("task.submitted", "t1", nil)
	s2 := b.Publish("task.submitted", "t2", nil)
	assert.Equal(t, uint64(1), s1)
	assert.Equal(t, uint64(2), s2)
}

func TestSubscribeReplaysBacklogThenLive(t *testing.T) {
	b := New(10, nil)
	b.Publish("a", "", nil)
	b.Publish("b", "", nil)

	ch, cancel := b.Subscribe()
	defer cancel()

	b.Publish("c", "", nil)

	var got []string
	for i := 0; i < 3; i++ {
		env := <-ch
		got = append(got, env.Type)
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestSubscribeStrictlyIncreasingSequence(t *testing.T) {
	b := New(50, nil)
	for i := 0; i < 20; i++ {
		b.Publish("x", "", i)
	}
	ch, cancel := b.Subscribe()
	defer cancel()

	var last uint64
	for i := 0; i < 20; i++ {
		env := <-ch
		assert.Greater(t, env.Sequence, last)
		last = env.Sequence
	}
}

func TestRecentReturnsNewestLast(t *testing.T) {
	b := New(5, nil)
	for i := 0; i < 8; i++ {
		b.Publish("x", "", i)
	}
	recent := b.Recent(3)
	require.Len(t, recent, 3)
	assert.Equal(t, 7, recent[2].Payload)
	assert.Less(t, recent[0].Sequence, recent[1].Sequence)
	assert.Less(t, recent[1].Sequence, recent[2].Sequence)
}

func TestRingBufferWrapKeepsCapacityBound(t *testing.T) {
	b := New(4, nil)
	for i := 0; i < 10; i++ {
		b.Publish("x", "", i)
	}
	all := b.Recent(100)
	require.Len(t, all, 4)
	assert.Equal(t, 6, all[0].Payload) // oldest surviving entry
	assert.Equal(t, 9, all[3].Payload)
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	b := New(200, nil)
	ch, cancel := b.Subscribe()
	defer cancel()
	_ = ch // deliberately never drained

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < subscriberBufSize+50; i++ {
			b.Publish("x", "", i)
		}
	}()
	wg.Wait() // must complete without deadlock even though ch fills up
}

func TestConcurrentPublishTotalOrder(t *testing.T) {
	b := New(1000, nil)
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				b.Publish("x", "", nil)
			}
		}()
	}
	wg.Wait()
	recent := b.Recent(1000)
	require.Len(t, recent, 400)
	seen := make(map[uint64]bool)
	for _, env := range recent {
		assert.False(t, seen[env.Sequence], "duplicate sequence %d", env.Sequence)
		seen[env.Sequence] = true
	}
}
