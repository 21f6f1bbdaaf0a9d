package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := m.Subscribe(ctx, "trades")
	require.NoError(t, err)

	require.NoError(t, m.Publish(ctx, "trades", []byte("one")))
	require.NoError(t, m.Publish(ctx, "markets", []byte("other channel")))

	select {
	case got := <-ch:
		assert.Equal(t, []byte("one"), got)
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}
	select {
	case got := <-ch:
		t.Fatalf("unexpected message %q from another channel", got)
	default:
	}
}

func TestSubscribeClosesOnCancel(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := m.Subscribe(ctx, "trades")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel must be closed after cancel")
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}

	// Publishing to a channel with no subscribers left is a no-op.
	assert.NoError(t, m.Publish(context.Background(), "trades", []byte("late")))
}

func TestStreamAppendAndRead(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.StreamAppend(ctx, "audit", []byte("a")))
	require.NoError(t, m.StreamAppend(ctx, "audit", []byte("b")))
	require.NoError(t, m.StreamAppend(ctx, "audit", []byte("c")))

	all, err := m.StreamRead(ctx, "audit", "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []byte("a"), all[0].Payload)
	assert.Equal(t, []byte("c"), all[2].Payload)

	rest, err := m.StreamRead(ctx, "audit", all[0].ID, 0)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, []byte("b"), rest[0].Payload)

	limited, err := m.StreamRead(ctx, "audit", "", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestStreamReadOrdersNumerically(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	// Push the sequence past 9 so "10-0" sorts after "9-0".
	for i := 0; i < 12; i++ {
		require.NoError(t, m.StreamAppend(ctx, "audit", []byte{byte('a' + i)}))
	}

	rest, err := m.StreamRead(ctx, "audit", "9-0", 0)
	require.NoError(t, err)
	require.Len(t, rest, 3)
	assert.Equal(t, "10-0", rest[0].ID)
	assert.Equal(t, "12-0", rest[2].ID)
}

func TestStreamTrimsToMaxLen(t *testing.T) {
	m := NewMemory()
	m.maxLen = 5
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		require.NoError(t, m.StreamAppend(ctx, "audit", []byte{byte('0' + i)}))
	}

	all, err := m.StreamRead(ctx, "audit", "", 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "4-0", all[0].ID, "oldest entries are trimmed first")
}
