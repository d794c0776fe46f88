package relay

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/ironpulse/internal/protocol"
)

func TestGuardCheck(t *testing.T) {
	e := newTestEngine(t, DispatcherOptions{})
	e.setupChannel(t, "orders", "alice")
	ctx := context.Background()

	assert.True(t, e.guard.Check(ctx, "orders", "alice"))
	assert.False(t, e.guard.Check(ctx, "orders", "bob"))
	assert.False(t, e.guard.Check(ctx, "missing", "alice"))
}

func TestGuardCompactsOnlyProcessed(t *testing.T) {
	e := newTestEngine(t, DispatcherOptions{})
	e.setupChannel(t, "orders", "alice")
	ctx := context.Background()

	for _, body := range []string{"one", "two", "three"} {
		resp := e.mustSend(t, protocol.CmdStore, e.storePayload("orders", "text", body), "alice")
		require.Equal(t, protocol.AckDataReceived, resp.StatusCode())
	}
	require.NoError(t, e.messages.MarkProcessed(ctx, "orders", hex.EncodeToString([]byte("two"))))

	// A rejected check still compacts.
	assert.False(t, e.guard.Check(ctx, "orders", "bob"))

	all, err := e.db.SelectMany(ctx, "orders", []string{"uuid"}, nil, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending, err := e.messages.Pending(ctx, "orders", 0)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	count, err := e.messages.CountPending(ctx, "orders", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	count, err = e.messages.CountPending(ctx, "orders", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	n, err := e.guard.Compact(ctx, "orders")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGuardCompactMissingChannel(t *testing.T) {
	e := newTestEngine(t, DispatcherOptions{})
	_, err := e.guard.Compact(context.Background(), "missing")
	assert.Error(t, err)
}

func TestMessagesMarkProcessed(t *testing.T) {
	e := newTestEngine(t, DispatcherOptions{})
	e.setupChannel(t, "orders", "alice")
	ctx := context.Background()

	body := hex.EncodeToString([]byte("payload"))
	require.NoError(t, e.messages.Store(ctx, "orders", "text", body, e.hasher.Sum(body)))

	msg, err := e.messages.FetchOldestUnprocessed(ctx, "orders")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, body, msg.Body)
	assert.Equal(t, "text", msg.MessageType)
	assert.False(t, msg.Processed)

	require.NoError(t, e.messages.MarkProcessed(ctx, "orders", body))
	// Acking again still matches the row until it is compacted.
	require.NoError(t, e.messages.MarkProcessed(ctx, "orders", body))

	msg, err = e.messages.FetchOldestUnprocessed(ctx, "orders")
	require.NoError(t, err)
	assert.Nil(t, msg)

	_, err = e.guard.Compact(ctx, "orders")
	require.NoError(t, err)
	assert.ErrorIs(t, e.messages.MarkProcessed(ctx, "orders", body), ErrNotFound)
}

func TestRowConversions(t *testing.T) {
	assert.True(t, asBool(true))
	assert.True(t, asBool(int64(1)))
	assert.False(t, asBool(int64(0)))
	assert.False(t, asBool("true"))
	assert.Equal(t, "x", asString([]byte("x")))
	assert.Equal(t, "", asString(nil))
}
