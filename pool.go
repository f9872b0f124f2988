package umqtt

import (
	"io"
	"sync"
)

// maxPooledBuffer bounds the capacity of encode buffers returned to the pool.
const maxPooledBuffer = 64 * 1024

var (
	bytesReaderPool = sync.Pool{
		New: func() any { return &bytesReader{} },
	}

	bytesBufferPool = sync.Pool{
		New: func() any { return &bytesBuffer{data: make([]byte, 0, DefaultBufferSize)} },
	}
)

// bytesReader reads a byte slice without copying it.
type bytesReader struct {
	data []byte
	pos  int
}

func (r *bytesReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

// bytesBuffer is an append-only encode target.
type bytesBuffer struct {
	data []byte
}

func (b *bytesBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *bytesBuffer) Bytes() []byte {
	return b.data
}

func (b *bytesBuffer) Len() int {
	return len(b.data)
}

func getBytesReader(data []byte) *bytesReader {
	r := bytesReaderPool.Get().(*bytesReader)
	r.data = data
	r.pos = 0
	return r
}

func putBytesReader(r *bytesReader) {
	if r == nil {
		return
	}
	r.data = nil
	r.pos = 0
	bytesReaderPool.Put(r)
}

func getBytesBuffer() *bytesBuffer {
	b := bytesBufferPool.Get().(*bytesBuffer)
	b.data = b.data[:0]
	return b
}

// putBytesBuffer returns b to the pool unless it grew past maxPooledBuffer.
func putBytesBuffer(b *bytesBuffer) {
	if b == nil || cap(b.data) > maxPooledBuffer {
		return
	}
	b.data = b.data[:0]
	bytesBufferPool.Put(b)
}
