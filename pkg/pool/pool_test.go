package pool

import (
	"sync"
	"testing"
)

func TestByteBufferPool(t *testing.T) {
	t.Run("get returns empty buffer", func(t *testing.T) {
		buf := GetByteBuffer()
		if len(buf) != 0 {
			t.Errorf("len = %d, want 0", len(buf))
		}
		PutByteBuffer(buf)
	})

	t.Run("reused buffer comes back empty", func(t *testing.T) {
		buf := GetByteBuffer()
		buf = append(buf, make([]byte, 2048)...)
		PutByteBuffer(buf)

		again := GetByteBuffer()
		defer PutByteBuffer(again)
		if len(again) != 0 {
			t.Errorf("len = %d, want 0", len(again))
		}
	})

	t.Run("oversized buffers are dropped", func(t *testing.T) {
		buf := make([]byte, 0, maxPooledBufferSize*2)
		PutByteBuffer(buf) // must not panic, must not pin memory
	})
}

func TestByteBufferPoolConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				buf := GetByteBuffer()
				buf = append(buf, "response"...)
				PutByteBuffer(buf)
			}
		}()
	}
	wg.Wait()
}
