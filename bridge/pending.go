// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import "sync"

// pendingTable maps correlation ids to calls awaiting a response. A
// call leaves the table exactly once: whoever removes it settles it.
type pendingTable struct {
	mu     sync.Mutex
	calls  map[string]*Call
	closed bool
}

// add registers call. It fails once the table has been drained.
func (p *pendingTable) add(call *Call) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.calls[call.ID] = call
	return true
}

// remove takes the call for id out of the table.
func (p *pendingTable) remove(id string) (*Call, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	call, ok := p.calls[id]
	if ok {
		delete(p.calls, id)
	}
	return call, ok
}

// drain empties the table and refuses further adds.
func (p *pendingTable) drain() []*Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	calls := make([]*Call, 0, len(p.calls))
	for id, call := range p.calls {
		calls = append(calls, call)
		delete(p.calls, id)
	}
	return calls
}

func (p *pendingTable) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}
