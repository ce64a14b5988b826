package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reddwarf-sh/reddwarf/pkg/resource"
)

func podKey(name string) resource.Key {
	return resource.NewKey(resource.FromAPIVersionKind("v1", "Pod"), "default", name)
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.Publish(&Event{Kind: Added, Key: podKey("p1"), CommitID: "c1"})

	select {
	case ev := <-sub.Events:
		assert.Equal(t, "c1", ev.CommitID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestEventMatchesScope(t *testing.T) {
	gvk := resource.FromAPIVersionKind("v1", "Pod")
	ev := Event{Key: resource.NewKey(gvk, "default", "p1")}

	assert.True(t, ev.Matches(gvk, "default"))
	assert.True(t, ev.Matches(gvk, ""))
	assert.False(t, ev.Matches(gvk, "kube-system"))
	assert.False(t, ev.Matches(resource.FromAPIVersionKind("v1", "Service"), ""))
}

func TestSubscriberOverflowClosesChannel(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()

	for i := 0; i < subscriberBufferSize+10; i++ {
		b.Publish(&Event{Kind: Modified, Key: podKey("p1"), CommitID: "c"})
	}

	require.True(t, sub.Overflowed())
	assert.Equal(t, 0, b.SubscriberCount())

	_, open := <-sub.Events
	// channel is closed once drained
	for open {
		_, open = <-sub.Events
	}
}

func TestUnsubscribeRemovesAndCloses(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()
	assert.Equal(t, 1, b.SubscriberCount())

	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())

	_, open := <-sub.Events
	assert.False(t, open)
}
