package playout

// Element is a pipeline stage. Pull blocks until a message is available.
type Element interface {
	Pull() Msg
}

// Pusher accepts messages at a push boundary. Push blocks while the
// receiver is full.
type Pusher interface {
	Push(Msg)
}

// ElementFunc adapts a function to Element.
type ElementFunc func() Msg

// Pull calls f.
func (f ElementFunc) Pull() Msg {
	return f()
}

// pendingQueue holds messages an element has to deliver before pulling
// from upstream again, e.g. the remainder of a split message or a
// synthesized halt.
type pendingQueue struct {
	msgQueue
}

func (q *pendingQueue) next(upstream Element) Msg {
	if m := q.Dequeue(); m != nil {
		return m
	}
	return upstream.Pull()
}
