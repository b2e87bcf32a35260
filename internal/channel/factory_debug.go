//go:build debug

package channel

// New creates a new channel.
// In debug builds, this returns an unbuffered channel (ignores size) so that
// every delivery hands off synchronously and ordering bugs surface early.
func New[T any](size int) Channel[T] {
	return NewUnbuffered[T]()
}
