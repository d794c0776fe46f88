package relay

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/ironpulse/internal/protocol"
)

func startTestServer(t *testing.T, e *testEngine, limiter *ConnLimiter, opts ServerOptions) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(e.dispatcher, e.hasher, limiter, zerolog.Nop(), opts)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not shut down")
		}
	})
	return ln.Addr().String()
}

// roundTrip writes one raw request and returns everything the server sent.
func roundTrip(t *testing.T, addr, raw string) string {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	_, err = io.WriteString(conn, raw)
	require.NoError(t, err)
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())

	out, err := io.ReadAll(conn)
	require.NoError(t, err)
	return string(out)
}

// dropped reports whether the server closed the connection without writing
// a response. The server may close before reading everything, so a reset is
// an acceptable outcome.
func dropped(t *testing.T, addr, raw string) bool {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	_, _ = io.WriteString(conn, raw)
	_ = conn.(*net.TCPConn).CloseWrite()
	out, _ := io.ReadAll(conn)
	return len(out) == 0
}

func TestServerRoundTrip(t *testing.T) {
	e := newTestEngine(t, DispatcherOptions{})
	addr := startTestServer(t, e, nil, ServerOptions{})

	sign := func(cmd, payload string) string {
		return protocol.EncodeRequest(e.hasher, cmd, payload, "alice")
	}

	assert.Equal(t, "201", roundTrip(t, addr, sign(protocol.CmdCreateChannel, "orders")))
	assert.Equal(t, "201", roundTrip(t, addr, sign(protocol.CmdRegisterChannel, "orders")))
	assert.Equal(t, "201", roundTrip(t, addr, sign(protocol.CmdStore, e.storePayload("orders", "text", "hello"))))

	line := roundTrip(t, addr, sign(protocol.CmdCheck, "orders"))
	resp, err := protocol.ParseResponse(line)
	require.NoError(t, err)
	require.Equal(t, protocol.AckDataSent, resp.StatusCode())
	data := resp.(protocol.DataResponse)
	assert.Equal(t, "68656c6c6f", data.Body)
	assert.True(t, e.hasher.Verify(data.Body, data.Hash))

	assert.Equal(t, "200", roundTrip(t, addr, sign(protocol.CmdAck, protocol.EncodeAckPayload("orders", data.Body))))
	assert.Equal(t, "200", roundTrip(t, addr, sign(protocol.CmdCheck, "orders")))
}

func TestServerTrailingNewline(t *testing.T) {
	e := newTestEngine(t, DispatcherOptions{})
	addr := startTestServer(t, e, nil, ServerOptions{})

	raw := protocol.EncodeRequest(e.hasher, protocol.CmdCreateChannel, "orders", "alice") + "\r\n"
	assert.Equal(t, "201", roundTrip(t, addr, raw))
}

func TestServerClosesWithoutResponse(t *testing.T) {
	e := newTestEngine(t, DispatcherOptions{})
	addr := startTestServer(t, e, nil, ServerOptions{MaxRequestBytes: 256})

	t.Run("malformed", func(t *testing.T) {
		assert.Empty(t, roundTrip(t, addr, "Check/orders"))
	})

	t.Run("too large", func(t *testing.T) {
		assert.True(t, dropped(t, addr, strings.Repeat("a", 1024)))
	})

	t.Run("invalid hex", func(t *testing.T) {
		payload := protocol.EncodeStorePayload(e.hasher, "orders", "text", "xyz1")
		raw := protocol.EncodeRequest(e.hasher, protocol.CmdStore, payload, "alice")
		assert.Empty(t, roundTrip(t, addr, raw))
	})
}

func TestServerSecurityFault(t *testing.T) {
	e := newTestEngine(t, DispatcherOptions{})
	addr := startTestServer(t, e, nil, ServerOptions{})

	assert.Equal(t, "520", roundTrip(t, addr, "CreateChannel/orders,alice,00ff"))
}

func TestServerRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	e := newTestEngine(t, DispatcherOptions{})
	limiter := NewConnLimiter(client, zerolog.Nop(), ConnLimiterConfig{Limit: 2, Window: time.Hour})
	addr := startTestServer(t, e, limiter, ServerOptions{})

	raw := protocol.EncodeRequest(e.hasher, "Nope", "x", "alice")
	assert.Equal(t, "500", roundTrip(t, addr, raw))
	assert.Equal(t, "500", roundTrip(t, addr, raw))
	assert.True(t, dropped(t, addr, raw), "third connection is dropped")
}

func TestServerStoreDeadlineStartsAfterRead(t *testing.T) {
	e := newTestEngine(t, DispatcherOptions{})
	addr := startTestServer(t, e, nil, ServerOptions{StoreTimeout: 200 * time.Millisecond, ReadTimeout: 5 * time.Second})

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	time.Sleep(400 * time.Millisecond)
	_, err = io.WriteString(conn, protocol.EncodeRequest(e.hasher, protocol.CmdCreateChannel, "orders", "alice"))
	require.NoError(t, err)
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())

	out, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, "201", string(out))

	names, err := e.registry.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"orders"}, names)
}

// flakyListener fails every Accept with a non-closed error.
type flakyListener struct {
	net.Listener
	calls atomic.Int64
}

func (l *flakyListener) Accept() (net.Conn, error) {
	l.calls.Add(1)
	return nil, errors.New("accept: too many open files")
}

func TestServerBacksOffOnAcceptErrors(t *testing.T) {
	e := newTestEngine(t, DispatcherOptions{})
	inner, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ln := &flakyListener{Listener: inner}

	srv := NewServer(e.dispatcher, e.hasher, nil, zerolog.Nop(), ServerOptions{})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, srv.Serve(ctx, ln))

	// 5+10+20+40ms fills the window; a hot loop would spin thousands of times.
	assert.Less(t, ln.calls.Load(), int64(10))
}

func TestNextAcceptDelay(t *testing.T) {
	var d time.Duration
	var got []time.Duration
	for i := 0; i < 10; i++ {
		d = nextAcceptDelay(d)
		got = append(got, d)
	}
	assert.Equal(t, 5*time.Millisecond, got[0])
	assert.Equal(t, 10*time.Millisecond, got[1])
	assert.Equal(t, time.Second, got[9])
}
