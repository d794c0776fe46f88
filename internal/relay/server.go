package relay

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/eldtechnologies/ironpulse/internal/crypto"
	"github.com/eldtechnologies/ironpulse/internal/metrics"
	"github.com/eldtechnologies/ironpulse/internal/protocol"
)

// ServerOptions bounds the resources used by the relay listener.
type ServerOptions struct {
	MaxConnections  int64
	MaxRequestBytes int64
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	StoreTimeout    time.Duration
}

func (o ServerOptions) withDefaults() ServerOptions {
	if o.MaxConnections <= 0 {
		o.MaxConnections = 64
	}
	if o.MaxRequestBytes <= 0 {
		o.MaxRequestBytes = 16 << 10
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 10 * time.Second
	}
	return o
}

// Server accepts relay connections. Each connection carries exactly one
// request terminated by EOF and receives at most one response line.
type Server struct {
	dispatcher *Dispatcher
	hasher     *crypto.Hasher
	limiter    *ConnLimiter
	opts       ServerOptions
	sem        *semaphore.Weighted
	logger     zerolog.Logger
	wg         sync.WaitGroup
}

// NewServer creates a relay server. limiter may be nil.
func NewServer(dispatcher *Dispatcher, hasher *crypto.Hasher, limiter *ConnLimiter, logger zerolog.Logger, opts ServerOptions) *Server {
	opts = opts.withDefaults()
	return &Server{
		dispatcher: dispatcher,
		hasher:     hasher,
		limiter:    limiter,
		opts:       opts,
		sem:        semaphore.NewWeighted(opts.MaxConnections),
		logger:     logger.With().Str("component", "relay").Logger(),
	}
}

// Serve accepts connections on ln until ctx is cancelled, then waits for
// in-flight connections to finish. The accept loop blocks while
// MaxConnections connections are being served.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer s.wg.Wait()

	s.logger.Info().
		Str("addr", ln.Addr().String()).
		Int64("max_connections", s.opts.MaxConnections).
		Msg("relay listening")

	var tempDelay time.Duration
	for {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return nil
		}
		conn, err := ln.Accept()
		if err != nil {
			s.sem.Release(1)
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			tempDelay = nextAcceptDelay(tempDelay)
			s.logger.Error().Err(err).Dur("retry_in", tempDelay).Msg("accept failed")
			select {
			case <-time.After(tempDelay):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		tempDelay = 0

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.sem.Release(1)
			s.handle(ctx, conn)
		}()
	}
}

// nextAcceptDelay doubles the pause after a failed Accept, from 5ms up to 1s.
func nextAcceptDelay(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > time.Second {
		d = time.Second
	}
	return d
}

// handle serves one connection.
func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	metrics.ConnectionsActive.Inc()
	defer metrics.ConnectionsActive.Dec()

	start := time.Now()
	ip := remoteIP(conn.RemoteAddr())
	logger := s.logger.With().
		Str("conn_id", crypto.NewConnID()).
		Str("remote_addr", conn.RemoteAddr().String()).
		Logger()

	if s.limiter != nil && !s.allow(ctx, ip) {
		metrics.ConnectionsTotal.WithLabelValues("rate_limited").Inc()
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	raw, err := io.ReadAll(io.LimitReader(conn, s.opts.MaxRequestBytes+1))
	if err != nil {
		metrics.ConnectionsTotal.WithLabelValues("aborted").Inc()
		logger.Warn().Err(err).Msg("reading request failed")
		return
	}
	if int64(len(raw)) > s.opts.MaxRequestBytes {
		metrics.ConnectionsTotal.WithLabelValues("too_large").Inc()
		logger.Warn().Int64("max_bytes", s.opts.MaxRequestBytes).Msg("request too large")
		return
	}

	req, err := protocol.ParseRequest(string(raw), s.hasher)
	if err != nil {
		metrics.ConnectionsTotal.WithLabelValues("malformed").Inc()
		logger.Warn().Err(err).Int("bytes", len(raw)).Msg("malformed request")
		return
	}

	logger = logger.With().Str("command", req.Cmd()).Str("client_id", req.Client()).Logger()

	// The store deadline starts once the request is in hand. In-flight
	// requests finish even when shutdown starts.
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.StoreTimeout)
	defer cancel()

	resp, err := s.dispatcher.Dispatch(opCtx, req)
	if err != nil {
		metrics.ConnectionsTotal.WithLabelValues("aborted").Inc()
		logger.Warn().Err(err).Msg("request aborted")
		return
	}

	_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	if _, err := io.WriteString(conn, resp.Encode()); err != nil {
		metrics.ConnectionsTotal.WithLabelValues("aborted").Inc()
		logger.Warn().Err(err).Msg("writing response failed")
		return
	}

	metrics.ConnectionsTotal.WithLabelValues("handled").Inc()
	logger.Info().
		Int("status", resp.StatusCode().Code()).
		Dur("latency", time.Since(start)).
		Msg("request completed")
}

// limiterTimeout bounds the admission check; the limiter fails open.
const limiterTimeout = time.Second

func (s *Server) allow(ctx context.Context, ip string) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), limiterTimeout)
	defer cancel()
	return s.limiter.Allow(ctx, ip)
}
