package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/danmuck/qpnet/internal/protocol"
	"github.com/danmuck/qpnet/internal/protocol/frame"
)

var ErrPromisesFull = errors.New("session: no free pid")

// Promise is one request awaiting its response package.
type Promise struct {
	PID      uint16
	Type     protocol.MsgType
	QueuedAt time.Time

	once sync.Once
	done chan struct{}
	pkg  *frame.Package
	err  error
}

func (p *Promise) settle(pkg *frame.Package, err error) {
	p.once.Do(func() {
		p.pkg, p.err = pkg, err
		close(p.done)
	})
}

// Wait blocks until the promise settles or ctx ends.
func (p *Promise) Wait(ctx context.Context) (*frame.Package, error) {
	select {
	case <-p.done:
		return p.pkg, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Promises stores pending requests by pid.
type Promises struct {
	mu    sync.RWMutex
	next  uint16
	items map[uint16]*Promise
}

func NewPromises() *Promises {
	return &Promises{
		items: make(map[uint16]*Promise),
	}
}

// Add allocates the next free pid for a request of type tp.
func (ps *Promises) Add(tp protocol.MsgType, at time.Time) (*Promise, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if len(ps.items) > 0xFFFF {
		return nil, ErrPromisesFull
	}
	for {
		pid := ps.next
		ps.next++
		if _, used := ps.items[pid]; used {
			continue
		}
		p := &Promise{PID: pid, Type: tp, QueuedAt: at, done: make(chan struct{})}
		ps.items[pid] = p
		return p, nil
	}
}

// Resolve settles the promise matching pkg.PID. It reports false for
// responses nobody waits for.
func (ps *Promises) Resolve(pkg *frame.Package) bool {
	ps.mu.Lock()
	p, ok := ps.items[pkg.PID]
	delete(ps.items, pkg.PID)
	ps.mu.Unlock()
	if !ok {
		return false
	}
	p.settle(pkg, nil)
	return true
}

// Remove drops a promise without settling it.
func (ps *Promises) Remove(pid uint16) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	delete(ps.items, pid)
}

// FailAll settles every pending promise with err.
func (ps *Promises) FailAll(err error) int {
	ps.mu.Lock()
	items := ps.items
	ps.items = make(map[uint16]*Promise)
	ps.mu.Unlock()
	for _, p := range items {
		p.settle(nil, err)
	}
	return len(items)
}

func (ps *Promises) Get(pid uint16) (*Promise, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	p, ok := ps.items[pid]
	return p, ok
}

func (ps *Promises) Len() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.items)
}

func (ps *Promises) List() []*Promise {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	out := make([]*Promise, 0, len(ps.items))
	for _, p := range ps.items {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].PID < out[j].PID
	})
	return out
}
