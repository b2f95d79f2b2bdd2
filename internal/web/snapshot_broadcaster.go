package web

import (
	"sync"

	"motionhub/internal/motion"
)

// SnapshotBroadcaster fans committed motion snapshots out to stream
// listeners. It keeps the most recent value so new subscribers get an
// immediate sample.
type SnapshotBroadcaster struct {
	mu       sync.RWMutex
	subs     map[int]chan motion.Snapshot
	nextID   int
	last     motion.Snapshot
	haveLast bool
}

func NewSnapshotBroadcaster() *SnapshotBroadcaster {
	return &SnapshotBroadcaster{
		subs: make(map[int]chan motion.Snapshot),
	}
}

func (b *SnapshotBroadcaster) Subscribe(buffer int) (int, <-chan motion.Snapshot) {
	if b == nil {
		return 0, nil
	}
	if buffer <= 0 {
		buffer = 2
	}
	ch := make(chan motion.Snapshot, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	last := b.last
	have := b.haveLast
	b.mu.Unlock()
	if have {
		select {
		case ch <- last:
		default:
		}
	}
	return id, ch
}

func (b *SnapshotBroadcaster) Unsubscribe(id int) {
	if b == nil {
		return
	}
	b.mu.Lock()
	ch, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Subscribers is the number of live subscriptions.
func (b *SnapshotBroadcaster) Subscribers() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish never blocks; a subscriber that is behind misses the sample.
func (b *SnapshotBroadcaster) Publish(snap motion.Snapshot) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- snap:
		default:
		}
	}
	b.last = snap
	b.haveLast = true
}
