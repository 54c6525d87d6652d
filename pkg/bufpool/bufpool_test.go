package bufpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPool_GetReturnsFullLength(t *testing.T) {
	p := New(1200)
	b := p.Get()
	assert.Len(t, *b, 1200)

	*b = (*b)[:10]
	p.Put(b)

	again := p.Get()
	assert.Len(t, *again, 1200, "Put restores the full length")
}

func TestPool_DiscardsForeignBuffers(t *testing.T) {
	p := New(16)
	foreign := make([]byte, 8)
	p.Put(&foreign)
	p.Put(nil)

	b := p.Get()
	assert.Equal(t, 16, cap(*b))
}
