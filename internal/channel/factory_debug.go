//go:build debug

package channel

// New returns an unbuffered queue; size is ignored in debug builds.
func New[T any](size int) Channel[T] {
	return NewUnbuffered[T]()
}
