// Package bufpool recycles fixed-capacity byte buffers.
package bufpool

import "sync"

// Pool hands out buffers of exactly Size bytes. Pointers are pooled so Put
// does not allocate.
type Pool struct {
	size int
	pool sync.Pool
}

func New(size int) *Pool {
	p := &Pool{size: size}
	p.pool.New = func() interface{} {
		b := make([]byte, size)
		return &b
	}
	return p
}

func (p *Pool) Size() int { return p.size }

// Get returns a buffer of length Size. Its contents are undefined.
func (p *Pool) Get() *[]byte {
	return p.pool.Get().(*[]byte)
}

// Put returns b for reuse. Buffers of a different capacity are discarded.
func (p *Pool) Put(b *[]byte) {
	if b == nil || cap(*b) != p.size {
		return
	}
	*b = (*b)[:p.size]
	p.pool.Put(b)
}
