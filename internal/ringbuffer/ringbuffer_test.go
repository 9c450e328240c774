package ringbuffer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushPopRoundTrip(t *testing.T) {
	rb := New()
	in := []float32{0.1, 0.2, 0.3}
	require.True(t, rb.Push(in))

	out := rb.Pop()
	assert.Equal(t, in, out)
	assert.Nil(t, rb.Pop())
}

func TestPopEmptyReturnsNil(t *testing.T) {
	rb := New()
	assert.Nil(t, rb.Pop())
}

func TestOverflowDropsAndCounts(t *testing.T) {
	rb := New()
	for i := 0; i < rb.Capacity(); i++ {
		require.True(t, rb.Push([]float32{float32(i)}))
	}
	assert.False(t, rb.Push([]float32{99}))
	assert.Equal(t, uint64(1), rb.DroppedFrames())
}

func TestSPSCConcurrentProducerConsumer(t *testing.T) {
	rb := New()
	const total = 5000

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			for !rb.Push([]float32{float32(i)}) {
				// retry until the consumer drains
			}
		}
	}()

	received := make([]float32, 0, total)
	go func() {
		defer wg.Done()
		for len(received) < total {
			if s := rb.Pop(); s != nil {
				received = append(received, s[0])
			}
		}
	}()

	wg.Wait()
	require.Len(t, received, total)
	for i, v := range received {
		assert.Equal(t, float32(i), v)
	}
}

func TestLenTracksOccupancy(t *testing.T) {
	rb := New()
	assert.Equal(t, 0, rb.Len())
	rb.Push([]float32{1})
	rb.Push([]float32{2})
	assert.Equal(t, 2, rb.Len())
	rb.Pop()
	assert.Equal(t, 1, rb.Len())
}
