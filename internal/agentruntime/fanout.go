package agentruntime

import "sync"

// ActivityEvent is what a Subscribe stream delivers: the activity that was
// just processed and the snapshot produced as a result.
type ActivityEvent struct {
	Activity *AgentActivity
	Snapshot Snapshot
}

// Subscription is a single subscriber's bounded view onto an instance's
// activity stream. Delivery is drop-oldest once the buffer fills: a slow
// subscriber sees a gap, not backpressure on the instance. Lagged reports
// how many events were dropped by the time the channel closes.
type Subscription struct {
	C <-chan ActivityEvent

	ch      chan ActivityEvent
	mu      sync.Mutex
	lagged  uint64
	closed  bool
}

// Lagged reports how many events this subscriber missed due to buffer
// overflow. Stable only after the channel has closed.
func (s *Subscription) Lagged() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lagged
}

// Err reports ErrSubscriberLagged once the subscription has closed if any
// events were dropped along the way, nil otherwise (always nil while it is
// still open). Mirrors the final-error-after-close idiom subscribers expect
// from a bounded stream.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed && s.lagged > 0 {
		return ErrSubscriberLagged
	}

	return nil
}

func newSubscription(bufferSize int) *Subscription {
	ch := make(chan ActivityEvent, bufferSize)

	return &Subscription{
		C:  ch,
		ch: ch,
	}
}

// publish enqueues an event, dropping the oldest buffered event to make
// room if the subscriber's buffer is full. Never blocks.
func (s *Subscription) publish(ev ActivityEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	select {
	case s.ch <- ev:
		return
	default:
	}

	// Buffer full: drop the oldest entry, then retry once. Another
	// publisher can't race us here since publish is only ever called
	// while holding s.mu.
	select {
	case <-s.ch:
		s.lagged++
	default:
	}

	select {
	case s.ch <- ev:
	default:
		// Pathological: something else drained concurrently and
		// refilled faster than us. Count it as a drop rather than
		// spin.
		s.lagged++
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// fanout multiplexes one instance's activity stream to any number of
// subscribers, each with its own bounded, drop-oldest buffer. No replay:
// a new subscriber only sees events published after it subscribes.
type fanout struct {
	mu          sync.Mutex
	subscribers map[*Subscription]struct{}
	bufferSize  int
	closed      bool
}

func newFanout(bufferSize int) *fanout {
	return &fanout{
		subscribers: make(map[*Subscription]struct{}),
		bufferSize:  bufferSize,
	}
}

func (f *fanout) subscribe() *Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()

	sub := newSubscription(f.bufferSize)
	if f.closed {
		sub.close()
		return sub
	}

	f.subscribers[sub] = struct{}{}

	return sub
}

func (f *fanout) unsubscribe(sub *Subscription) {
	f.mu.Lock()
	delete(f.subscribers, sub)
	f.mu.Unlock()

	sub.close()
}

func (f *fanout) publish(ev ActivityEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for sub := range f.subscribers {
		sub.publish(ev)
	}
}

// closeAll closes every live subscription, e.g. once the owning instance
// terminates. Subsequent Subscribe calls still succeed but return an
// already-closed Subscription.
func (f *fanout) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	for sub := range f.subscribers {
		sub.close()
	}
	f.subscribers = make(map[*Subscription]struct{})
}
