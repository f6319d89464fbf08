package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInMemory_DropsWhenFull(t *testing.T) {
	p := NewInMemory(1)
	sub := p.SubscribeListingChanged()
	p.PublishListingChanged(context.Background(), ListingChanged{ListingID: "1", Action: ActionCreated})
	p.PublishListingChanged(context.Background(), ListingChanged{ListingID: "2", Action: ActionDeleted})

	got := <-sub
	assert.Equal(t, "1", got.ListingID)
	select {
	case evt := <-sub:
		t.Fatalf("unexpected event %+v", evt)
	default:
	}
}

func TestInMemory_EverySubscriberGetsEveryEvent(t *testing.T) {
	p := NewInMemory(4)
	a := p.SubscribeListingChanged()
	b := p.SubscribeListingChanged()
	for _, id := range []string{"1", "2"} {
		p.PublishListingChanged(context.Background(), ListingChanged{ListingID: id, Action: ActionUpdated})
	}

	for _, sub := range []<-chan ListingChanged{a, b} {
		assert.Equal(t, "1", (<-sub).ListingID)
		assert.Equal(t, "2", (<-sub).ListingID)
	}
}

func TestInMemory_NoReplayForLateSubscriber(t *testing.T) {
	p := NewInMemory(4)
	p.PublishListingChanged(context.Background(), ListingChanged{ListingID: "early"})
	sub := p.SubscribeListingChanged()
	select {
	case evt := <-sub:
		t.Fatalf("unexpected event %+v", evt)
	default:
	}
}
