package publisher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "stampgate/pkg/platform/audit"
	"stampgate/pkg/platform/audit/store/memory"
)

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	event := audit.Event{
		Subject: "IRN0000000001ABCD",
		Action:  string(audit.EventReferenceIssued),
	}

	err := pub.Emit(context.Background(), event)
	require.NoError(t, err)

	events, err := pub.List(context.Background(), event.Subject)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventReferenceIssued), events[0].Action)
}

func TestPublisher_AsyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10))

	event := audit.Event{
		Subject: "IRN0000000002ABCD",
		Action:  string(audit.EventTransmissionSucceeded),
	}

	err := pub.Emit(context.Background(), event)
	require.NoError(t, err)

	// Close drains the buffer, so the event must be visible afterwards.
	pub.Close()

	events, err := store.ListBySubject(context.Background(), event.Subject)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventTransmissionSucceeded), events[0].Action)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	subject := "IRN0000000003ABCD"
	for range 10 {
		err := pub.Emit(context.Background(), audit.Event{
			Subject: subject,
			Action:  string(audit.EventStampIssued),
		})
		require.NoError(t, err)
	}

	pub.Close()

	events, err := store.ListBySubject(context.Background(), subject)
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}

func TestPublisher_BufferFull_DropsEvent(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	defer pub.Close()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pub.Emit(context.Background(), audit.Event{
				Subject: "IRN0000000004ABCD",
				Action:  string(audit.EventStampIssued),
			})
		}()
	}
	wg.Wait()
	// Drops are acceptable in async mode; the publisher must stay usable.
}

func TestPublisher_SetsTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{
		Subject: "IRN0000000005ABCD",
		Action:  string(audit.EventReferenceIssued),
	})
	require.NoError(t, err)

	events, err := store.ListBySubject(context.Background(), "IRN0000000005ABCD")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.WithinDuration(t, time.Now().UTC(), events[0].Timestamp, time.Minute)
	assert.NotZero(t, events[0].ID)
}
