package debugdir

// A Future carries the eventual result of one asynchronous file operation.
// It resolves exactly once; failures are delivered through the error return
// of Wait, never by panicking on the submitting goroutine.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{
		done: make(chan struct{}),
	}
}

func (f *Future[T]) resolve(value T, err error) {
	f.value = value
	f.err = err
	close(f.done)
}

// Wait blocks until the operation completes and returns its result.
func (f *Future[T]) Wait() (T, error) {
	<-f.done
	return f.value, f.err
}

// Done returns a channel that is closed once the result is available. It
// allows a select against other events without blocking on Wait.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}
