package store

import (
	"context"
	"sync"
)

// Feed serializes snapshot delivery for one subscription. Push never blocks;
// the callback runs on the feed's own goroutine in push order.
type Feed struct {
	fn     func(Snapshot)
	mu     sync.Mutex
	queue  []Snapshot
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

func NewFeed(ctx context.Context, fn func(Snapshot)) *Feed {
	f := &Feed{
		fn:     fn,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go f.run(ctx)
	return f
}

func (f *Feed) Push(snap Snapshot) {
	f.mu.Lock()
	f.queue = append(f.queue, snap)
	f.mu.Unlock()

	select {
	case f.signal <- struct{}{}:
	default:
	}
}

// Close stops delivery. It does not wait for a callback in flight, so it is
// safe to call from inside the callback.
func (f *Feed) Close() {
	f.once.Do(func() { close(f.done) })
}

func (f *Feed) Done() <-chan struct{} {
	return f.done
}

func (f *Feed) closed() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func (f *Feed) run(ctx context.Context) {
	for {
		select {
		case <-f.done:
			return
		case <-ctx.Done():
			f.Close()
			return
		case <-f.signal:
		}

		for {
			f.mu.Lock()
			if len(f.queue) == 0 {
				f.mu.Unlock()
				break
			}
			snap := f.queue[0]
			f.queue = f.queue[1:]
			f.mu.Unlock()

			if f.closed() {
				return
			}
			f.fn(snap)
		}
	}
}
