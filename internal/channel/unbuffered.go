package channel

// Unbuffered hands every value straight to the receiver.
type Unbuffered[T any] struct {
	ch chan T
}

func NewUnbuffered[T any]() *Unbuffered[T] {
	return &Unbuffered[T]{ch: make(chan T)}
}

func (u *Unbuffered[T]) Send(v T) { u.ch <- v }

// TrySend waits for the receiver like Send. There is no room to run out
// of, so nothing is ever dropped.
func (u *Unbuffered[T]) TrySend(v T) bool {
	u.ch <- v
	return true
}

func (u *Unbuffered[T]) Receive() <-chan T { return u.ch }

// Len is always 0.
func (u *Unbuffered[T]) Len() int { return 0 }

func (u *Unbuffered[T]) Close() { close(u.ch) }
