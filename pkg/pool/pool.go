// Package pool provides object pooling for UrdDB to reduce allocations.
//
// Object pooling reuses allocated objects instead of creating new ones,
// reducing GC pressure for high-frequency operations. The hot path here is
// response encoding: every protocol reply marshals JSON into a byte buffer
// that lives for exactly one write, which is the textbook sync.Pool case.
//
// Pooled objects:
//   - Byte buffers (response encoding)
//
// Usage:
//
//	buf := pool.GetByteBuffer()
//	defer pool.PutByteBuffer(buf)
//
//	buf = append(buf, encoded...)
package pool

import "sync"

// maxPooledBufferSize keeps oversized buffers (large Query responses) out of
// the pool so one huge response doesn't pin memory forever.
const maxPooledBufferSize = 1 << 20

var byteBufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, 0, 4096)
		return &buf
	},
}

// GetByteBuffer returns a zero-length byte buffer from the pool. The buffer
// keeps whatever capacity it accumulated in earlier use. Call PutByteBuffer
// when done.
func GetByteBuffer() []byte {
	return (*byteBufferPool.Get().(*[]byte))[:0]
}

// PutByteBuffer returns a byte buffer to the pool. Buffers that grew past
// maxPooledBufferSize are dropped instead.
func PutByteBuffer(buf []byte) {
	if cap(buf) > maxPooledBufferSize {
		return
	}
	buf = buf[:0]
	byteBufferPool.Put(&buf)
}
