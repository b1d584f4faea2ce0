// Package bufpool recycles the byte slices used for wire frames.
//
// Channel codecs allocate one buffer per inbound SASL frame and one per
// outbound wrapped chunk, and the LDAP reader allocates one per message.
// Those buffers are short lived, so they are drawn from size classes backed
// by sync.Pool:
//
//   - 4KB: bind requests and most LDAP responses
//   - 64KB: the default SASL maxbuf, so one negotiated frame fits
//   - 1MB: large search results
//
// Requests above the largest class are allocated directly and never pooled.
//
// Usage:
//
//	buf := bufpool.Get(n)
//	defer bufpool.Put(buf)
package bufpool

import (
	"sort"
	"sync"
)

// Default size classes.
const (
	MessageSize = 4 << 10
	FrameSize   = 64 << 10
	LargeSize   = 1 << 20
)

type class struct {
	size int
	pool sync.Pool
}

// Pool hands out buffers from a fixed set of size classes.
type Pool struct {
	classes []*class
}

// NewPool creates a pool with the given size classes. Non-positive and
// duplicate sizes are ignored; no sizes selects the defaults.
func NewPool(sizes ...int) *Pool {
	seen := make(map[int]bool, len(sizes))
	var uniq []int
	for _, s := range sizes {
		if s > 0 && !seen[s] {
			seen[s] = true
			uniq = append(uniq, s)
		}
	}
	if len(uniq) == 0 {
		uniq = []int{MessageSize, FrameSize, LargeSize}
	}
	sort.Ints(uniq)

	p := &Pool{classes: make([]*class, len(uniq))}
	for i, s := range uniq {
		c := &class{size: s}
		c.pool.New = func() any {
			b := make([]byte, c.size)
			return &b
		}
		p.classes[i] = c
	}
	return p
}

// Get returns a slice of length n. Its capacity is that of the smallest
// class holding n bytes, or exactly n above the largest class.
//
// The caller must hand the slice back with Put once no reference to it
// remains.
func (p *Pool) Get(n int) []byte {
	if n < 0 {
		n = 0
	}
	for _, c := range p.classes {
		if n <= c.size {
			b := *(c.pool.Get().(*[]byte))
			return b[:n]
		}
	}
	return make([]byte, n)
}

// Put recycles a slice obtained from Get. Slices whose capacity matches no
// class are left to the garbage collector.
func (p *Pool) Put(b []byte) {
	if b == nil {
		return
	}
	c := p.classFor(cap(b))
	if c == nil {
		return
	}
	full := b[:cap(b)]
	c.pool.Put(&full)
}

// Sizes lists the class sizes in ascending order.
func (p *Pool) Sizes() []int {
	out := make([]int, len(p.classes))
	for i, c := range p.classes {
		out[i] = c.size
	}
	return out
}

func (p *Pool) classFor(capacity int) *class {
	i := sort.Search(len(p.classes), func(i int) bool { return p.classes[i].size >= capacity })
	if i < len(p.classes) && p.classes[i].size == capacity {
		return p.classes[i]
	}
	return nil
}

var defaultPool = NewPool()

// Get returns a buffer of length n from the process-wide pool.
func Get(n int) []byte {
	return defaultPool.Get(n)
}

// Put returns b to the process-wide pool.
func Put(b []byte) {
	defaultPool.Put(b)
}
