// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import "sync"

// pump is a single-consumer work queue. Every observer notification
// runs on the pump goroutine, in submission order, so observers never
// see concurrent callbacks and never run on the sync loop's goroutine.
type pump struct {
	mu     sync.Mutex
	work   chan func()
	closed bool
	done   chan struct{}
}

func newPump() *pump {
	p := &pump{
		work: make(chan func(), 64),
		done: make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *pump) run() {
	defer close(p.done)
	for fn := range p.work {
		fn()
	}
}

// post enqueues fn for execution on the pump goroutine. Posting to a
// closed pump is a no-op.
func (p *pump) post(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.work <- fn
}

// close stops the pump after draining queued work. Blocks until the
// goroutine exits.
func (p *pump) close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.work)
	}
	p.mu.Unlock()
	<-p.done
}
