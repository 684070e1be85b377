package vidpipe

import (
	"context"
	"sync"
	"time"

	"github.com/dudk/vidpipe/metric"
)

// Bus delivers messages from pipeline to application.
// Every message is consumed exactly once.
type Bus struct {
	m        sync.Mutex
	queue    []Message
	wake     chan struct{} // closed and replaced on every post
	flushing bool
}

// NewBus returns empty bus.
func NewBus() *Bus {
	return &Bus{
		wake: make(chan struct{}),
	}
}

// Post puts message on the bus. It returns false if bus is flushing.
func (b *Bus) Post(m Message) bool {
	b.m.Lock()
	defer b.m.Unlock()
	if b.flushing {
		return false
	}
	b.queue = append(b.queue, m)
	metric.BusMessage(m.Type().String())
	close(b.wake)
	b.wake = make(chan struct{})
	return true
}

// Pop blocks until message matching mask is available or context is done.
// Messages which don't match the mask are popped and dropped.
func (b *Bus) Pop(ctx context.Context, mask MessageType) (Message, error) {
	for {
		b.m.Lock()
		m, ok := b.take(mask)
		wake := b.wake
		b.m.Unlock()
		if ok {
			return m, nil
		}
		select {
		case <-wake:
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

// TimedPop waits up to timeout for a message matching mask.
// Negative timeout waits forever, zero timeout doesn't wait at all.
func (b *Bus) TimedPop(timeout time.Duration, mask MessageType) (Message, bool) {
	if timeout == 0 {
		b.m.Lock()
		defer b.m.Unlock()
		return b.take(mask)
	}
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	m, err := b.Pop(ctx, mask)
	return m, err == nil
}

// take must be called with lock held.
func (b *Bus) take(mask MessageType) (Message, bool) {
	for len(b.queue) > 0 {
		m := b.queue[0]
		b.queue[0] = Message{}
		b.queue = b.queue[1:]
		if m.Type()&mask != 0 {
			return m, true
		}
	}
	return Message{}, false
}

// Messages returns channel which receives every message matching mask.
// Channel is closed when context is done.
func (b *Bus) Messages(ctx context.Context, mask MessageType) <-chan Message {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			m, err := b.Pop(ctx, mask)
			if err != nil {
				return
			}
			select {
			case out <- m:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// SetFlushing drops pending messages and makes bus refuse new ones
// until flushing is turned off.
func (b *Bus) SetFlushing(flushing bool) {
	b.m.Lock()
	defer b.m.Unlock()
	b.flushing = flushing
	if flushing {
		b.queue = nil
	}
}

// Len returns number of pending messages.
func (b *Bus) Len() int {
	b.m.Lock()
	defer b.m.Unlock()
	return len(b.queue)
}
