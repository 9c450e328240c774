package chunker

import "sync"

// Broadcaster fans one stream of AudioFrames out to any number of
// subscribers. Mirrors the "broadcast channel with N subscribers" shape
// spec.md §4.3/§4.6 assumes; Go has no built-in broadcast channel so this
// is a small bespoke fan-out, grounded on the teacher's channel-of-channels
// wiring in cmd/assistant/main.go.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[int]chan AudioFrame
	next int
}

// NewBroadcaster returns an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan AudioFrame)}
}

// Subscribe registers a new receiver with the given buffer depth. Callers
// must call the returned unsubscribe func when done listening.
func (b *Broadcaster) Subscribe(buffer int) (<-chan AudioFrame, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan AudioFrame, buffer)
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
}

// Send delivers frame to every current subscriber without blocking; a
// subscriber whose buffer is full drops the frame (spec.md §4.3: "if no
// receivers, log and discard" generalizes to "a slow receiver never stalls
// the others").
func (b *Broadcaster) Send(frame AudioFrame) (delivered int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- frame:
			delivered++
		default:
		}
	}
	return delivered
}

// SubscriberCount reports the current number of live subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
