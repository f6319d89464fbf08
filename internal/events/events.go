package events

import (
	"context"
	"sync"
)

type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
	ActionFeed    Action = "feed"
)

// ListingChanged is published whenever the client learns a listing set moved.
type ListingChanged struct {
	ListingID string
	UserID    string
	Action    Action
}

type Publisher interface {
	PublishListingChanged(ctx context.Context, evt ListingChanged)
	SubscribeListingChanged() <-chan ListingChanged
}

type inMemory struct {
	buffer int
	mu     sync.RWMutex
	subs   []chan ListingChanged
}

// NewInMemory returns a publisher that copies every event to each
// subscriber's own buffered channel. Events published before a subscriber
// exists are not replayed to it.
func NewInMemory(buffer int) Publisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &inMemory{buffer: buffer}
}

// PublishListingChanged never blocks; a subscriber whose buffer is full
// misses the event.
func (m *inMemory) PublishListingChanged(_ context.Context, evt ListingChanged) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range m.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (m *inMemory) SubscribeListingChanged() <-chan ListingChanged {
	ch := make(chan ListingChanged, m.buffer)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}
