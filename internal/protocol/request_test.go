package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/ironpulse/internal/crypto"
)

func newTestHasher(t *testing.T) *crypto.Hasher {
	t.Helper()
	h, err := crypto.NewHasher([]byte("test-key"))
	require.NoError(t, err)
	return h
}

func TestParseRequestData(t *testing.T) {
	h := newTestHasher(t)
	raw := "CreateChannel/orders,alice," + h.Sum("aliceCreateChannel/orders")

	req, err := ParseRequest(raw, h)
	require.NoError(t, err)

	data, ok := req.(DataRequest)
	require.True(t, ok, "expected DataRequest, got %T", req)
	assert.Equal(t, "CreateChannel", data.Command)
	assert.Equal(t, "orders", data.Payload)
	assert.Equal(t, "alice", data.ClientID)
	assert.True(t, data.IntegrityOK)
}

func TestParseRequestCode(t *testing.T) {
	h := newTestHasher(t)
	raw := "Ack,alice," + h.Sum("aliceAck")

	req, err := ParseRequest(raw, h)
	require.NoError(t, err)

	code, ok := req.(CodeRequest)
	require.True(t, ok, "expected CodeRequest, got %T", req)
	assert.Equal(t, "Ack", code.Command)
	assert.Equal(t, "alice", code.Client())
	assert.True(t, code.IntegrityValid())
}

func TestParseRequestIntegrityMismatchStillParses(t *testing.T) {
	h := newTestHasher(t)
	sum := []byte(h.Sum("aliceCheck/orders"))
	sum[0] ^= 0x01

	req, err := ParseRequest("Check/orders,alice,"+string(sum), h)
	require.NoError(t, err)
	assert.False(t, req.IntegrityValid())
	assert.Equal(t, "Check", req.Cmd())
}

func TestParseRequestIntegrityCoversClientID(t *testing.T) {
	h := newTestHasher(t)
	sum := h.Sum("aliceCheck/orders")

	req, err := ParseRequest("Check/orders,mallory,"+sum, h)
	require.NoError(t, err)
	assert.False(t, req.IntegrityValid())
}

func TestParseRequestMalformed(t *testing.T) {
	h := newTestHasher(t)
	for _, raw := range []string{"", "Check", "Check/orders,alice"} {
		_, err := ParseRequest(raw, h)
		assert.ErrorIs(t, err, ErrMalformedRequest, "input %q", raw)
	}
}

func TestParseRequestTrimsLineEnding(t *testing.T) {
	h := newTestHasher(t)
	raw := EncodeRequest(h, CmdCheck, "orders", "alice") + "\r\n"

	req, err := ParseRequest(raw, h)
	require.NoError(t, err)
	assert.True(t, req.IntegrityValid())
}

func TestParseRequestPayloadKeepsSlashes(t *testing.T) {
	h := newTestHasher(t)
	raw := EncodeRequest(h, "Store", "a/b", "alice")

	req, err := ParseRequest(raw, h)
	require.NoError(t, err)
	assert.Equal(t, "a/b", req.(DataRequest).Payload)
	assert.True(t, req.IntegrityValid())
}

func TestEncodeRequestRoundTrip(t *testing.T) {
	h := newTestHasher(t)
	cases := []struct {
		command, payload, client string
	}{
		{CmdCreateChannel, "orders", "alice"},
		{CmdStore, "orders_email_68656c6c6f_" + h.Sum("68656c6c6f"), "bob"},
		{CmdAck, "", "carol"},
	}
	for _, tc := range cases {
		req, err := ParseRequest(EncodeRequest(h, tc.command, tc.payload, tc.client), h)
		require.NoError(t, err)
		assert.True(t, req.IntegrityValid())
		assert.Equal(t, tc.command, req.Cmd())
		assert.Equal(t, tc.client, req.Client())
		if tc.payload == "" {
			assert.IsType(t, CodeRequest{}, req)
		} else {
			assert.Equal(t, tc.payload, req.(DataRequest).Payload)
		}
	}
}

func TestParseRequestWrongKey(t *testing.T) {
	h := newTestHasher(t)
	other, err := crypto.NewHasher([]byte("other-key"))
	require.NoError(t, err)

	req, err := ParseRequest(EncodeRequest(other, CmdCheck, "orders", "alice"), h)
	require.NoError(t, err)
	assert.False(t, req.IntegrityValid())
}
