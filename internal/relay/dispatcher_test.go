package relay

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/ironpulse/internal/protocol"
	"github.com/eldtechnologies/ironpulse/internal/store"
)

func TestDispatchStoreCheckAck(t *testing.T) {
	e := newTestEngine(t, DispatcherOptions{})
	e.setupChannel(t, "orders", "alice")

	resp := e.mustSend(t, protocol.CmdStore, e.storePayload("orders", "text", "hello"), "alice")
	assert.Equal(t, protocol.AckDataReceived, resp.StatusCode())

	resp = e.mustSend(t, protocol.CmdCheck, "orders", "alice")
	require.Equal(t, protocol.AckDataSent, resp.StatusCode())
	data, ok := resp.(protocol.DataResponse)
	require.True(t, ok)
	assert.Equal(t, hex.EncodeToString([]byte("hello")), data.Body)
	assert.True(t, e.hasher.Verify(data.Body, data.Hash))

	// Delivery is at-least-once until Ack.
	again := e.mustSend(t, protocol.CmdCheck, "orders", "alice")
	assert.Equal(t, resp.Encode(), again.Encode())

	resp = e.mustSend(t, protocol.CmdAck, protocol.EncodeAckPayload("orders", data.Body), "alice")
	assert.Equal(t, protocol.AckOk, resp.StatusCode())

	resp = e.mustSend(t, protocol.CmdCheck, "orders", "alice")
	assert.Equal(t, protocol.AckOk, resp.StatusCode())
	assert.Equal(t, "200", resp.Encode())
}

func TestDispatchCheckEmptyChannel(t *testing.T) {
	e := newTestEngine(t, DispatcherOptions{})
	e.setupChannel(t, "orders", "alice")

	resp := e.mustSend(t, protocol.CmdCheck, "orders", "alice")
	assert.Equal(t, protocol.AckOk, resp.StatusCode())
}

func TestDispatchUnregisteredClientIsRejected(t *testing.T) {
	e := newTestEngine(t, DispatcherOptions{})
	e.setupChannel(t, "orders", "alice")
	ctx := context.Background()

	resp := e.mustSend(t, protocol.CmdStore, e.storePayload("orders", "text", "intruder"), "mallory")
	assert.Equal(t, protocol.NoPermission, resp.StatusCode())

	pending, err := e.messages.Pending(ctx, "orders", 0)
	require.NoError(t, err)
	assert.Empty(t, pending, "rejected store must not insert")

	require.Equal(t, protocol.AckDataReceived,
		e.mustSend(t, protocol.CmdStore, e.storePayload("orders", "text", "hi"), "alice").StatusCode())

	resp = e.mustSend(t, protocol.CmdCheck, "orders", "mallory")
	assert.Equal(t, protocol.NoPermission, resp.StatusCode())

	pending, err = e.messages.Pending(ctx, "orders", 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestDispatchTamperedIntegrity(t *testing.T) {
	e := newTestEngine(t, DispatcherOptions{})
	e.setupChannel(t, "orders", "alice")

	line := protocol.EncodeRequest(e.hasher, protocol.CmdCheck, "orders", "alice")
	// Same signature, different client.
	forged := "Check/orders,mallory," + line[len("Check/orders,alice,"):]

	req, err := protocol.ParseRequest(forged, e.hasher)
	require.NoError(t, err)
	resp, err := e.dispatcher.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, protocol.SecurityFault, resp.StatusCode())
}

func TestDispatchUnknownCommand(t *testing.T) {
	e := newTestEngine(t, DispatcherOptions{})

	resp := e.mustSend(t, "Purge", "orders", "alice")
	assert.Equal(t, protocol.NoHandle, resp.StatusCode())

	// Known command without payload.
	resp = e.mustSend(t, protocol.CmdCheck, "", "alice")
	assert.Equal(t, protocol.NoHandle, resp.StatusCode())

	// Matching is case-sensitive.
	resp = e.mustSend(t, "check", "orders", "alice")
	assert.Equal(t, protocol.NoHandle, resp.StatusCode())
}

func TestDispatchDeleteTwice(t *testing.T) {
	e := newTestEngine(t, DispatcherOptions{})
	e.setupChannel(t, "orders", "alice")

	assert.Equal(t, protocol.AckOk, e.mustSend(t, protocol.CmdDeleteChannel, "orders", "alice").StatusCode())
	assert.Equal(t, protocol.NoHandle, e.mustSend(t, protocol.CmdDeleteChannel, "orders", "alice").StatusCode())

	// The channel is gone for every later command.
	assert.Equal(t, protocol.NoPermission, e.mustSend(t, protocol.CmdCheck, "orders", "alice").StatusCode())
	assert.Empty(t, e.journal.all())
}

func TestDispatchCreateTwice(t *testing.T) {
	e := newTestEngine(t, DispatcherOptions{})

	assert.Equal(t, protocol.AckDataReceived, e.mustSend(t, protocol.CmdCreateChannel, "orders", "alice").StatusCode())
	assert.Equal(t, protocol.NoHandle, e.mustSend(t, protocol.CmdCreateChannel, "orders", "alice").StatusCode())
	assert.Empty(t, e.journal.all(), "total failure is not a partial outcome")
}

func TestDispatchRejectsInvalidChannelNames(t *testing.T) {
	e := newTestEngine(t, DispatcherOptions{})

	for _, name := range []string{"bad_name", "", "drop table", `x";--`} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, protocol.NoHandle, e.mustSend(t, protocol.CmdCreateChannel, name, "alice").StatusCode())
		})
	}
}

func TestDispatchRegisterTwice(t *testing.T) {
	e := newTestEngine(t, DispatcherOptions{})
	e.setupChannel(t, "orders", "alice")

	resp := e.mustSend(t, protocol.CmdRegisterChannel, "orders", "alice")
	assert.Equal(t, protocol.NoHandle, resp.StatusCode())
}

func TestDispatchStorePayloadErrors(t *testing.T) {
	e := newTestEngine(t, DispatcherOptions{})
	e.setupChannel(t, "orders", "alice")

	t.Run("wrong field count", func(t *testing.T) {
		resp := e.mustSend(t, protocol.CmdStore, "orders_text_6869", "alice")
		assert.Equal(t, protocol.NoHandle, resp.StatusCode())
	})

	t.Run("hash mismatch", func(t *testing.T) {
		payload := "orders_text_6869_" + e.hasher.Sum("6868")
		resp := e.mustSend(t, protocol.CmdStore, payload, "alice")
		assert.Equal(t, protocol.NoHandle, resp.StatusCode())
	})

	t.Run("invalid hex aborts", func(t *testing.T) {
		payload := protocol.EncodeStorePayload(e.hasher, "orders", "text", "zz")
		resp, err := e.send(t, protocol.CmdStore, payload, "alice")
		assert.ErrorIs(t, err, protocol.ErrInvalidHex)
		assert.Nil(t, resp)
	})

	t.Run("missing channel", func(t *testing.T) {
		resp := e.mustSend(t, protocol.CmdStore, e.storePayload("nowhere", "text", "hi"), "alice")
		assert.Equal(t, protocol.NoPermission, resp.StatusCode())
	})

	pending, err := e.messages.Pending(context.Background(), "orders", 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDispatchStoreDuplicateBody(t *testing.T) {
	e := newTestEngine(t, DispatcherOptions{})
	e.setupChannel(t, "orders", "alice")

	payload := e.storePayload("orders", "text", "same")
	assert.Equal(t, protocol.AckDataReceived, e.mustSend(t, protocol.CmdStore, payload, "alice").StatusCode())
	assert.Equal(t, protocol.NoHandle, e.mustSend(t, protocol.CmdStore, payload, "alice").StatusCode())
}

func TestDispatchCheckCorruptedRow(t *testing.T) {
	e := newTestEngine(t, DispatcherOptions{})
	e.setupChannel(t, "orders", "alice")

	err := e.db.InsertRow(context.Background(), "orders", store.Row{
		"uuid":         e.hasher.Sum("00"),
		"message_type": "text",
		"body":         "ff",
		"processed":    false,
	})
	require.NoError(t, err)

	resp := e.mustSend(t, protocol.CmdCheck, "orders", "alice")
	assert.Equal(t, protocol.SecurityFault, resp.StatusCode())
}

func TestDispatchAck(t *testing.T) {
	t.Run("unknown body", func(t *testing.T) {
		e := newTestEngine(t, DispatcherOptions{})
		e.setupChannel(t, "orders", "alice")
		resp := e.mustSend(t, protocol.CmdAck, protocol.EncodeAckPayload("orders", "abcd"), "alice")
		assert.Equal(t, protocol.NoHandle, resp.StatusCode())
	})

	t.Run("malformed payload", func(t *testing.T) {
		e := newTestEngine(t, DispatcherOptions{})
		e.setupChannel(t, "orders", "alice")
		resp := e.mustSend(t, protocol.CmdAck, "orders", "alice")
		assert.Equal(t, protocol.NoHandle, resp.StatusCode())
	})

	t.Run("open by default", func(t *testing.T) {
		e := newTestEngine(t, DispatcherOptions{})
		e.setupChannel(t, "orders", "alice")
		body := hex.EncodeToString([]byte("hi"))
		require.Equal(t, protocol.AckDataReceived,
			e.mustSend(t, protocol.CmdStore, e.storePayload("orders", "text", "hi"), "alice").StatusCode())

		resp := e.mustSend(t, protocol.CmdAck, protocol.EncodeAckPayload("orders", body), "bob")
		assert.Equal(t, protocol.AckOk, resp.StatusCode())
	})

	t.Run("permission required", func(t *testing.T) {
		e := newTestEngine(t, DispatcherOptions{AckRequiresPermission: true})
		e.setupChannel(t, "orders", "alice")
		body := hex.EncodeToString([]byte("hi"))
		require.Equal(t, protocol.AckDataReceived,
			e.mustSend(t, protocol.CmdStore, e.storePayload("orders", "text", "hi"), "alice").StatusCode())

		resp := e.mustSend(t, protocol.CmdAck, protocol.EncodeAckPayload("orders", body), "bob")
		assert.Equal(t, protocol.NoPermission, resp.StatusCode())

		pending, err := e.messages.Pending(context.Background(), "orders", 0)
		require.NoError(t, err)
		assert.Len(t, pending, 1)

		resp = e.mustSend(t, protocol.CmdAck, protocol.EncodeAckPayload("orders", body), "alice")
		assert.Equal(t, protocol.AckOk, resp.StatusCode())
	})
}

func TestMetricCommand(t *testing.T) {
	assert.Equal(t, "Store", metricCommand(protocol.CmdStore))
	assert.Equal(t, "unknown", metricCommand("DROP TABLE"))
}
