// Package queue provides the FIFO of run identifiers awaiting dispatch.
package queue

import "sync"

// PromptQueue is a strict FIFO over run ids. It is safe for concurrent use.
type PromptQueue struct {
	mu    sync.Mutex
	items []string
}

// New creates an empty queue.
func New() *PromptQueue {
	return &PromptQueue{}
}

// Enqueue appends runID at the tail.
func (q *PromptQueue) Enqueue(runID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, runID)
}

// Dequeue pops the oldest run id. ok is false when the queue is empty.
func (q *PromptQueue) Dequeue() (runID string, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return "", false
	}

	runID = q.items[0]
	q.items[0] = ""
	q.items = q.items[1:]

	return runID, true
}

// Remove drops every occurrence of runID and reports whether any was found.
func (q *PromptQueue) Remove(runID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.items[:0]
	found := false
	for _, id := range q.items {
		if id == runID {
			found = true
			continue
		}
		kept = append(kept, id)
	}
	clear(q.items[len(kept):])
	q.items = kept

	return found
}

// Len returns the number of queued run ids.
func (q *PromptQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

// Snapshot returns the queued run ids, oldest first.
func (q *PromptQueue) Snapshot() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]string, len(q.items))
	copy(out, q.items)

	return out
}
