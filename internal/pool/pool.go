// Package pool provides zero-allocation buffer and row management using
// sync.Pool. Sources allocate rows from a RowPool on the scan hot path and
// the engine hands them back once scoring is done.
package pool

import (
	"sync"

	"github.com/datagrade/datagrade/internal/model"
)

const (
	// DefaultBufferSize is the default size for byte buffers.
	DefaultBufferSize = 64 * 1024 // 64KB

	// DefaultValueCap is the per-row cell capacity preallocated for new rows.
	DefaultValueCap = 16
)

// ByteBuffer wraps a byte slice for pooled reuse.
type ByteBuffer struct {
	Data []byte
}

// Reset clears the buffer for reuse.
func (b *ByteBuffer) Reset() {
	b.Data = b.Data[:0]
}

// Grow ensures the buffer has at least n bytes of capacity.
func (b *ByteBuffer) Grow(n int) {
	if cap(b.Data) < n {
		b.Data = make([]byte, 0, n)
	}
}

// Write appends data to the buffer.
func (b *ByteBuffer) Write(p []byte) (int, error) {
	b.Data = append(b.Data, p...)
	return len(p), nil
}

// Len returns the current length of data in the buffer.
func (b *ByteBuffer) Len() int {
	return len(b.Data)
}

// Bytes returns the underlying byte slice.
func (b *ByteBuffer) Bytes() []byte {
	return b.Data
}

// BufferPool manages reusable byte buffers.
type BufferPool struct {
	pool sync.Pool
	size int
}

// NewBufferPool creates a new buffer pool with the specified buffer size.
func NewBufferPool(bufferSize int) *BufferPool {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	bp := &BufferPool{size: bufferSize}
	bp.pool.New = func() any {
		return &ByteBuffer{
			Data: make([]byte, 0, bufferSize),
		}
	}
	return bp
}

// Get retrieves a buffer from the pool.
func (p *BufferPool) Get() *ByteBuffer {
	return p.pool.Get().(*ByteBuffer)
}

// Put returns a buffer to the pool.
func (p *BufferPool) Put(buf *ByteBuffer) {
	buf.Reset()
	p.pool.Put(buf)
}

// RowPool manages reusable Row structs. Cell backing arrays survive reuse,
// so a source reading similarly sized rows stops allocating after warmup.
type RowPool struct {
	pool sync.Pool
}

// NewRowPool creates a new row pool.
func NewRowPool() *RowPool {
	rp := &RowPool{}
	rp.pool.New = func() any {
		return &model.Row{
			Values: make([][]byte, 0, DefaultValueCap),
		}
	}
	return rp
}

// Get retrieves a row from the pool.
func (p *RowPool) Get() *model.Row {
	return p.pool.Get().(*model.Row)
}

// Put returns a row to the pool.
func (p *RowPool) Put(r *model.Row) {
	r.Reset()
	p.pool.Put(r)
}

// Fill sizes the row's value slice to n cells, reusing cell buffers from a
// previous life. Every cell comes back length zero.
func Fill(r *model.Row, n int) {
	if cap(r.Values) < n {
		r.Values = make([][]byte, n)
		return
	}
	r.Values = r.Values[:n]
	for i := range r.Values {
		r.Values[i] = r.Values[i][:0]
	}
}
