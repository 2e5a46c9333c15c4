package search

import "sync"

// node is a search tree node stored as a chain of decisions back to the
// root. Workers rebuild the propagated state from the chain, so nodes stay
// small and can move freely between workers.
type node struct {
	parent *node
	dec    decision
	depth  int
	// bound is the lower bound inherited from the parent.
	bound Cost
}

func (n *node) child(d decision, bound Cost) *node {
	return &node{parent: n, dec: d, depth: n.depth + 1, bound: bound}
}

// worker owns a LIFO stack of open nodes. Other workers steal from the
// bottom, which holds the shallowest and usually largest subtrees.
type worker struct {
	id    int
	mu    sync.Mutex
	stack []*node
	cur   *node
	state *state
	path  []decision
}

func (w *worker) push(ns ...*node) {
	w.mu.Lock()
	w.stack = append(w.stack, ns...)
	w.mu.Unlock()
}

func (w *worker) pop() *node {
	w.mu.Lock()
	defer w.mu.Unlock()
	k := len(w.stack)
	if k == 0 {
		return nil
	}
	n := w.stack[k-1]
	w.stack[k-1] = nil
	w.stack = w.stack[:k-1]
	w.cur = n
	return n
}

func (w *worker) stealBottom() *node {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.stack) == 0 {
		return nil
	}
	n := w.stack[0]
	copy(w.stack, w.stack[1:])
	w.stack[len(w.stack)-1] = nil
	w.stack = w.stack[:len(w.stack)-1]
	return n
}

func (w *worker) setCurrent(n *node) {
	w.mu.Lock()
	w.cur = n
	w.mu.Unlock()
}

// minBound returns the smallest bound among the open and in-flight nodes.
func (w *worker) minBound() (Cost, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var (
		best  Cost
		found bool
	)
	if w.cur != nil {
		best, found = w.cur.bound, true
	}
	for _, n := range w.stack {
		if !found || n.bound.Less(best) {
			best, found = n.bound, true
		}
	}
	return best, found
}

func (w *worker) size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.stack)
}

// load rebuilds the worker state for n by replaying its decisions.
func (w *worker) load(n *node) {
	w.path = w.path[:0]
	for p := n; p.parent != nil; p = p.parent {
		w.path = append(w.path, p.dec)
	}
	w.state.reset()
	for i := len(w.path) - 1; i >= 0; i-- {
		w.state.apply(w.path[i])
	}
}

// next hands out the next node for w: its own stack first, then a stolen
// node. It blocks while other workers may still produce work and returns nil
// once the tree is exhausted or the run is stopped.
func (r *run) next(w *worker) *node {
	for {
		if r.stopped.Load() {
			return nil
		}
		if n := w.pop(); n != nil {
			return n
		}
		if n := r.steal(w); n != nil {
			w.setCurrent(n)
			return n
		}
		r.mu.Lock()
		if r.done || r.stopped.Load() {
			r.mu.Unlock()
			return nil
		}
		idle := r.idle.Add(1)
		if r.empty() {
			if int(idle) == len(r.workers) {
				r.done = true
				r.cond.Broadcast()
				r.mu.Unlock()
				return nil
			}
			r.cond.Wait()
		}
		r.idle.Add(-1)
		done := r.done
		r.mu.Unlock()
		if done {
			return nil
		}
	}
}

func (r *run) steal(w *worker) *node {
	k := len(r.workers)
	for i := 1; i < k; i++ {
		victim := r.workers[(w.id+i)%k]
		if n := victim.stealBottom(); n != nil {
			r.steals.Add(1)
			return n
		}
	}
	return nil
}

func (r *run) empty() bool {
	for _, w := range r.workers {
		if w.size() > 0 {
			return false
		}
	}
	return true
}

// publish makes freshly pushed nodes visible to idle workers.
func (r *run) publish(w *worker, ns ...*node) {
	w.push(ns...)
	if r.idle.Load() > 0 {
		r.mu.Lock()
		r.cond.Broadcast()
		r.mu.Unlock()
	}
}

// openBound is the smallest bound over every open or in-flight node.
func (r *run) openBound() (Cost, bool) {
	var (
		best  Cost
		found bool
	)
	for _, w := range r.workers {
		if c, ok := w.minBound(); ok && (!found || c.Less(best)) {
			best, found = c, true
		}
	}
	return best, found
}
