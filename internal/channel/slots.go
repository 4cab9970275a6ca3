package channel

import (
	"errors"
	"slices"
)

// MaxSlots is the number of player positions in a channel.
const MaxSlots = 6

var ErrExhausted = errors.New("slot pool exhausted")

// SlotPool hands out slot numbers lowest first. It is owned by a single
// session and is not safe for concurrent use.
type SlotPool struct {
	size int
	free []int
}

func NewSlotPool(size int) *SlotPool {
	p := &SlotPool{size: size, free: make([]int, 0, size)}
	for n := 1; n <= size; n++ {
		p.free = append(p.free, n)
	}
	return p
}

// Acquire returns the lowest free number. Callers check Available first;
// an empty pool panics.
func (p *SlotPool) Acquire() int {
	if len(p.free) == 0 {
		panic(ErrExhausted)
	}
	n := p.free[0]
	p.free = p.free[1:]
	return n
}

// Release returns a number to the pool. Unknown or already free numbers are
// ignored.
func (p *SlotPool) Release(n int) {
	if n < 1 || n > p.size {
		return
	}
	i, found := slices.BinarySearch(p.free, n)
	if found {
		return
	}
	p.free = slices.Insert(p.free, i, n)
}

func (p *SlotPool) Available() int { return len(p.free) }

func (p *SlotPool) Free() []int { return slices.Clone(p.free) }
