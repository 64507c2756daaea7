package hostbuf

import (
	"errors"
	"fmt"
	"math/bits"
	"sync"
)

// PoolStats tracks buffer pool statistics
type PoolStats struct {
	Allocations int64 // Get calls
	Reuses      int64 // buffers handed out again from the pool
	Misses      int64 // Get calls that had to allocate
	Evictions   int64 // idle buffers freed to stay under the limit
	IdleBytes   int64 // bytes held by idle buffers
}

// Pool recycles host buffers between runs. Storage is reserved in
// power-of-two size classes so a buffer can serve any layout of its class.
// A Pool is safe for concurrent use.
type Pool struct {
	mu       sync.Mutex
	idle     map[int][]*Buffer // size class -> idle buffers, oldest first
	active   map[*Buffer]int   // handed-out buffer -> size class
	maxBytes int64
	stats    PoolStats
}

// NewPool creates a pool that keeps at most maxBytes of idle storage.
// Zero means unlimited.
func NewPool(maxBytes int64) *Pool {
	return &Pool{
		idle:     make(map[int][]*Buffer),
		active:   make(map[*Buffer]int),
		maxBytes: maxBytes,
	}
}

// Get returns a zeroed buffer with the given layout, reusing idle storage of
// the same size class when there is one.
func (p *Pool) Get(elemSize int, extents ...int) (*Buffer, error) {
	count, native, err := shape(elemSize, extents)
	if err != nil {
		return nil, err
	}
	size := count * elemSize
	if size == 0 {
		return Allocate(elemSize, extents...)
	}
	class := sizeClass(size)

	p.mu.Lock()
	p.stats.Allocations++
	if free := p.idle[class]; len(free) > 0 {
		b := free[len(free)-1]
		p.idle[class] = free[:len(free)-1]
		p.stats.IdleBytes -= int64(b.Reserved())
		p.stats.Reuses++
		p.active[b] = class
		p.mu.Unlock()

		b.reshape(elemSize, count, native)
		return b, nil
	}
	p.stats.Misses++
	p.mu.Unlock()

	b, err := allocateReserve(elemSize, extents, class)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.active[b] = class
	p.mu.Unlock()
	return b, nil
}

// Put hands a buffer back. Buffers the pool did not hand out are released.
// The caller must not use b afterwards.
func (p *Pool) Put(b *Buffer) error {
	if b.Released() {
		return ErrReleased
	}
	p.mu.Lock()
	class, ok := p.active[b]
	if !ok {
		p.mu.Unlock()
		return b.Release()
	}
	delete(p.active, b)
	b.released = true

	var evicted []*Buffer
	if p.maxBytes > 0 {
		for p.stats.IdleBytes+int64(b.Reserved()) > p.maxBytes {
			victim := p.evictOldest()
			if victim == nil {
				break
			}
			evicted = append(evicted, victim)
		}
	}
	keep := p.maxBytes == 0 || p.stats.IdleBytes+int64(b.Reserved()) <= p.maxBytes
	if keep {
		p.idle[class] = append(p.idle[class], b)
		p.stats.IdleBytes += int64(b.Reserved())
	}
	p.mu.Unlock()

	var errs []error
	for _, v := range evicted {
		errs = append(errs, v.free())
	}
	if !keep {
		errs = append(errs, b.free())
	}
	return errors.Join(errs...)
}

// evictOldest drops the oldest idle buffer of the largest class. Called with
// p.mu held.
func (p *Pool) evictOldest() *Buffer {
	largest := -1
	for class, free := range p.idle {
		if len(free) > 0 && class > largest {
			largest = class
		}
	}
	if largest < 0 {
		return nil
	}
	free := p.idle[largest]
	victim := free[0]
	p.idle[largest] = free[1:]
	p.stats.IdleBytes -= int64(victim.Reserved())
	p.stats.Evictions++
	return victim
}

// Close frees every idle buffer. Buffers still handed out stay valid and are
// released when they are Put back.
func (p *Pool) Close() error {
	p.mu.Lock()
	idle := p.idle
	p.idle = make(map[int][]*Buffer)
	p.stats.IdleBytes = 0
	p.maxBytes = -1
	p.mu.Unlock()

	var errs []error
	for class, free := range idle {
		for _, b := range free {
			if err := b.free(); err != nil {
				errs = append(errs, fmt.Errorf("size class %d: %w", class, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// free releases the storage of a pooled buffer regardless of its released
// flag.
func (b *Buffer) free() error {
	b.released = false
	return b.Release()
}

// sizeClass rounds n up to the next power of two.
func sizeClass(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}
