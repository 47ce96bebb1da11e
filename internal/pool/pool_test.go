package pool_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/playout/internal/pool"
)

type slot struct {
	index int
	data  []int
}

func TestPool(t *testing.T) {
	tests := []struct {
		size   int
		allocs int
	}{
		{
			size:   1,
			allocs: 10,
		},
		{
			size:   100,
			allocs: 1000,
		},
	}
	for _, test := range tests {
		p := pool.New("test", test.size, func(s *slot, i int) {
			s.index = i
			s.data = make([]int, 16)
		})
		assert.Equal(t, test.size, p.Cap())
		for i := 0; i < test.allocs; i++ {
			s, idx := p.Get()
			assert.Equal(t, idx, s.index)
			assert.Equal(t, 16, len(s.data))
			assert.Equal(t, 1, p.InUse())
			p.Put(idx)
		}
		assert.Equal(t, 0, p.InUse())
		assert.Equal(t, 1, p.Peak())
	}
}

func TestExhausted(t *testing.T) {
	p := pool.New[slot]("exhaust", 2, nil)
	_, a := p.Get()
	_, b := p.Get()
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, p.Peak())

	defer func() {
		r := recover()
		err, ok := r.(error)
		assert.True(t, ok)
		assert.True(t, errors.Is(err, pool.ErrExhausted))
	}()
	p.Get()
}

func TestDoublePut(t *testing.T) {
	p := pool.New[slot]("double", 1, nil)
	_, i := p.Get()
	p.Put(i)
	assert.Panics(t, func() { p.Put(i) })
}
