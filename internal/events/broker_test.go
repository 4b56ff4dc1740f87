package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBroker_PublishSubscribe(t *testing.T) {
	broker := NewMemoryBroker()
	ctx := context.Background()

	ch, cancel, err := broker.Subscribe(ctx, CollectionConsultations)
	require.NoError(t, err)
	defer cancel()

	err = broker.Publish(ctx, ChangeEventV1{
		Collection: CollectionConsultations,
		Op:         OpUpdated,
		RecordID:   "c-1",
		FieldGroup: "billing",
	})
	require.NoError(t, err)

	select {
	case got := <-ch:
		assert.Equal(t, "c-1", got.RecordID)
		assert.Equal(t, OpUpdated, got.Op)
		assert.NotEmpty(t, got.EventID, "publish should stamp an event id")
		assert.False(t, got.OccurredAt.IsZero(), "publish should stamp a timestamp")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestMemoryBroker_FiltersCollections(t *testing.T) {
	broker := NewMemoryBroker()
	ctx := context.Background()

	ch, cancel, err := broker.Subscribe(ctx, CollectionPatients)
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, broker.Publish(ctx, ChangeEventV1{Collection: CollectionConsultations, Op: OpCreated, RecordID: "c-1"}))
	require.NoError(t, broker.Publish(ctx, ChangeEventV1{Collection: CollectionPatients, Op: OpCreated, RecordID: "p-1"}))

	select {
	case got := <-ch:
		assert.Equal(t, CollectionPatients, got.Collection)
		assert.Equal(t, "p-1", got.RecordID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestMemoryBroker_SlowSubscriberDoesNotBlock(t *testing.T) {
	broker := NewMemoryBroker()
	ctx := context.Background()

	_, cancel, err := broker.Subscribe(ctx, CollectionConsultations)
	require.NoError(t, err)
	defer cancel()

	// Never drain the channel; publishing past the buffer must not stall.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			_ = broker.Publish(ctx, ChangeEventV1{Collection: CollectionConsultations, Op: OpUpdated, RecordID: "c-1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on slow subscriber")
	}
}

func TestMemoryBroker_CancelIdempotent(t *testing.T) {
	broker := NewMemoryBroker()

	_, cancel, err := broker.Subscribe(context.Background(), CollectionPatients)
	require.NoError(t, err)

	cancel()
	cancel() // must not panic on double close
}

func TestRedisBroker_PublishSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	broker := NewRedisBroker(client, nil)
	ctx := context.Background()

	ch, cancel, err := broker.Subscribe(ctx, CollectionAvailability)
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, broker.Publish(ctx, ChangeEventV1{
		Collection: CollectionAvailability,
		Op:         OpUpdated,
		RecordID:   "doc-9",
	}))

	select {
	case got := <-ch:
		assert.Equal(t, "doc-9", got.RecordID)
		assert.Equal(t, CollectionAvailability, got.Collection)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for redis event")
	}
}

func TestSubscribeRequiresCollection(t *testing.T) {
	broker := NewMemoryBroker()
	_, _, err := broker.Subscribe(context.Background())
	assert.Error(t, err)
}
