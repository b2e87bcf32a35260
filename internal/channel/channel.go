// Package channel provides generic channel interfaces for decoupled communication.
// Change streams are exposed as Receivers so tests can substitute a pre-filled
// channel for a live subscription.
package channel

// Receiver provides read access to a channel.
type Receiver[T any] interface {
	Receive() <-chan T
	Len() int
}

// Sender provides write access to a channel.
type Sender[T any] interface {
	Send(T)
	TrySend(T) bool
}

// Channel combines read and write access.
type Channel[T any] interface {
	Receiver[T]
	Sender[T]
	Close()
}

// Of returns a closed channel holding items in order. Receivers drain the
// items and then observe the close, which makes it a finite synthetic stream.
func Of[T any](items ...T) Channel[T] {
	b := NewBuffered[T](len(items))
	for _, item := range items {
		b.Send(item)
	}
	b.Close()
	return b
}
