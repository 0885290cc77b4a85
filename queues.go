package coro

import "container/list"

// runnableQueue is the strict-FIFO list of fibers waiting for their turn
// to run. Backed by container/list, following the teacher's fdDesc
// readers/writers convention (watcher.go) of using a doubly linked list
// for O(1) push-back / pop-front.
type runnableQueue struct {
	l list.List
}

func (q *runnableQueue) pushBack(f *Fiber) { q.l.PushBack(f) }

func (q *runnableQueue) popFront() *Fiber {
	e := q.l.Front()
	if e == nil {
		return nil
	}
	q.l.Remove(e)
	return e.Value.(*Fiber)
}

func (q *runnableQueue) len() int { return q.l.Len() }

// freeQueue accumulates fibers whose work has returned; the scheduler
// drains it at the top of every loop iteration (spec §4.2 step 1).
type freeQueue struct {
	l list.List
}

func (q *freeQueue) pushBack(f *Fiber) { q.l.PushBack(f) }

func (q *freeQueue) drain() []*Fiber {
	if q.l.Len() == 0 {
		return nil
	}
	out := make([]*Fiber, 0, q.l.Len())
	for e := q.l.Front(); e != nil; {
		next := e.Next()
		out = append(out, e.Value.(*Fiber))
		q.l.Remove(e)
		e = next
	}
	return out
}

// timeoutHeap is a container/heap min-heap ordered by WaitSpec.deadline.
// It holds both sleeping fibers and I/O-waiting fibers that were
// submitted with a deadline -- exactly the teacher's "timedHeap" (see
// watcher.go's 'timeouts timedHeap'), generalized to the fiber's WaitSpec
// instead of an aiocb.
type timeoutHeap []*Fiber

func (h timeoutHeap) Len() int { return len(h) }

func (h timeoutHeap) Less(i, j int) bool {
	return h[i].wait.deadline.Before(h[j].wait.deadline)
}

func (h timeoutHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *timeoutHeap) Push(x any) {
	f := x.(*Fiber)
	f.heapIndex = len(*h)
	*h = append(*h, f)
}

func (h *timeoutHeap) Pop() any {
	old := *h
	n := len(old)
	f := old[n-1]
	old[n-1] = nil
	f.heapIndex = -1
	*h = old[:n-1]
	return f
}
