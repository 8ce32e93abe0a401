package scheduler

// slot addresses a membership node in the scheduler's arena.
type slot int32

const nilSlot slot = -1

// node links one resident request into its queue.
type node struct {
	req        *Request
	prev, next slot
	queue      QueueIndex
}

// fifo is one ordered queue threaded through the arena.
type fifo struct {
	head, tail slot
	len        int
}

// store holds every queue of one scheduler instance. Nodes are recycled
// through a free list so steady-state append/remove does not allocate.
type store struct {
	nodes  []node
	free   slot
	queues []fifo
}

func newStore(numQueues int) *store {
	st := &store{
		free:   nilSlot,
		queues: make([]fifo, numQueues),
	}
	for i := range st.queues {
		st.queues[i] = fifo{head: nilSlot, tail: nilSlot}
	}
	return st
}

func (st *store) alloc() slot {
	if st.free != nilSlot {
		s := st.free
		st.free = st.nodes[s].next
		return s
	}
	st.nodes = append(st.nodes, node{})
	return slot(len(st.nodes) - 1)
}

func (st *store) release(s slot) {
	st.nodes[s] = node{prev: nilSlot, next: st.free}
	st.free = s
}

// append links req at the tail of queue q and returns its slot.
func (st *store) append(q QueueIndex, req *Request) slot {
	s := st.alloc()
	f := &st.queues[q]
	st.nodes[s] = node{req: req, prev: f.tail, next: nilSlot, queue: q}
	if f.tail != nilSlot {
		st.nodes[f.tail].next = s
	} else {
		f.head = s
	}
	f.tail = s
	f.len++
	return s
}

// front returns the head slot of q, or nilSlot.
func (st *store) front(q QueueIndex) slot {
	return st.queues[q].head
}

func (st *store) empty(q QueueIndex) bool {
	return st.queues[q].head == nilSlot
}

// unlink removes slot s from whichever queue holds it and returns the
// queue index and request it carried.
func (st *store) unlink(s slot) (QueueIndex, *Request) {
	n := st.nodes[s]
	f := &st.queues[n.queue]
	if n.prev != nilSlot {
		st.nodes[n.prev].next = n.next
	} else {
		f.head = n.next
	}
	if n.next != nilSlot {
		st.nodes[n.next].prev = n.prev
	} else {
		f.tail = n.prev
	}
	f.len--
	st.release(s)
	return n.queue, n.req
}
