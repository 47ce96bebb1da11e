// Package pool provides fixed capacity slot pools. All slots are allocated
// when the pool is created; Get hands out a slot index and never grows the
// backing storage, so pointers to slots stay valid for the pool lifetime.
package pool

import (
	"errors"
	"fmt"
	"sync"
)

// ErrExhausted is the panic value of Get when no slots are free.
var ErrExhausted = errors.New("pool exhausted")

// Fixed is a pool of cap slots of T.
type Fixed[T any] struct {
	name string

	m     sync.Mutex
	slots []T
	free  []int
	peak  int
}

// New creates a pool of size slots. init is called once per slot and can be
// used to preallocate slot internals.
func New[T any](name string, size int, init func(*T, int)) *Fixed[T] {
	p := &Fixed[T]{
		name:  name,
		slots: make([]T, size),
		free:  make([]int, size),
	}
	for i := range p.slots {
		// lowest indices are handed out first
		p.free[i] = size - 1 - i
		if init != nil {
			init(&p.slots[i], i)
		}
	}
	return p
}

// Get takes a free slot. It panics with ErrExhausted if all slots are in
// use: pools are sized at construction, running out is a sizing bug.
func (p *Fixed[T]) Get() (*T, int) {
	p.m.Lock()
	defer p.m.Unlock()
	n := len(p.free)
	if n == 0 {
		panic(fmt.Errorf("%s: %w (capacity %d)", p.name, ErrExhausted, len(p.slots)))
	}
	i := p.free[n-1]
	p.free = p.free[:n-1]
	if used := len(p.slots) - len(p.free); used > p.peak {
		p.peak = used
	}
	return &p.slots[i], i
}

// Put returns slot i to the pool.
func (p *Fixed[T]) Put(i int) {
	p.m.Lock()
	defer p.m.Unlock()
	if len(p.free) == len(p.slots) {
		panic(fmt.Sprintf("%s: slot %d released twice", p.name, i))
	}
	p.free = append(p.free, i)
}

// At returns slot i whether it is taken or not.
func (p *Fixed[T]) At(i int) *T {
	return &p.slots[i]
}

// Name of the pool.
func (p *Fixed[T]) Name() string {
	return p.name
}

// Cap returns the number of slots.
func (p *Fixed[T]) Cap() int {
	return len(p.slots)
}

// InUse returns the number of slots currently taken.
func (p *Fixed[T]) InUse() int {
	p.m.Lock()
	defer p.m.Unlock()
	return len(p.slots) - len(p.free)
}

// Peak returns the highest InUse value observed.
func (p *Fixed[T]) Peak() int {
	p.m.Lock()
	defer p.m.Unlock()
	return p.peak
}
