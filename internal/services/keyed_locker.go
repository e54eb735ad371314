package services

import (
	"context"
	"sync"
)

// KeyedLocker serializes work per auction id inside one process. Different
// ids never contend, and waiting for a busy id honors ctx.
type KeyedLocker struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	sem  chan struct{}
	refs int
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{slots: make(map[string]*lockSlot)}
}

func (l *KeyedLocker) Lock(ctx context.Context, auctionID string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[auctionID]
	if !ok {
		slot = &lockSlot{sem: make(chan struct{}, 1)}
		l.slots[auctionID] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(auctionID, slot)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-slot.sem
			l.release(auctionID, slot)
		})
	}, nil
}

func (l *KeyedLocker) release(auctionID string, slot *lockSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, auctionID)
	}
}

// size is the number of ids currently held or waited on.
func (l *KeyedLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
