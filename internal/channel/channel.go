// Package channel holds the queues between the dispatcher and its
// buffered subscribers. Builds tagged debug get unbuffered queues, so
// every event waits for its subscriber and handler order is easy to follow.
package channel

// Receiver provides read access to a queue.
type Receiver[T any] interface {
	Receive() <-chan T
	Len() int
}

// Sender provides write access to a queue.
type Sender[T any] interface {
	// Send blocks until the value is queued.
	Send(T)
	// TrySend reports whether the value was queued without waiting for
	// room.
	TrySend(T) bool
}

// Channel combines read and write access.
type Channel[T any] interface {
	Receiver[T]
	Sender[T]
	Close()
}
