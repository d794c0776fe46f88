package relay

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/ironpulse/internal/crypto"
	"github.com/eldtechnologies/ironpulse/internal/metrics"
	"github.com/eldtechnologies/ironpulse/internal/protocol"
)

// DispatcherOptions tunes command handling.
type DispatcherOptions struct {
	// AckRequiresPermission runs the permission guard before Ack. Off by
	// default: only a client that received the exact body through Check can
	// build a matching Ack.
	AckRequiresPermission bool
}

// Dispatcher routes integrity-checked requests to the registry, guard and
// message store and produces exactly one response per request.
type Dispatcher struct {
	registry *Registry
	guard    *Guard
	messages *Messages
	hasher   *crypto.Hasher
	opts     DispatcherOptions
	logger   zerolog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(registry *Registry, guard *Guard, messages *Messages, hasher *crypto.Hasher, logger zerolog.Logger, opts DispatcherOptions) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		guard:    guard,
		messages: messages,
		hasher:   hasher,
		opts:     opts,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch handles one request. A non-nil error means the request is fatal
// to the connection and no response must be written.
func (d *Dispatcher) Dispatch(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	start := time.Now()
	resp, err := d.route(ctx, req)

	command := metricCommand(req.Cmd())
	metrics.CommandDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
	status := "fatal"
	if err == nil {
		status = resp.StatusCode().String()
	}
	metrics.CommandsTotal.WithLabelValues(command, status).Inc()

	return resp, err
}

func (d *Dispatcher) route(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	if !req.IntegrityValid() {
		d.logger.Warn().
			Str("command", req.Cmd()).
			Str("client_id", req.Client()).
			Msg("request integrity check failed")
		return protocol.Code(protocol.SecurityFault), nil
	}

	data, ok := req.(protocol.DataRequest)
	if !ok {
		// Every command carries a payload.
		return protocol.Code(protocol.NoHandle), nil
	}

	switch data.Command {
	case protocol.CmdCreateChannel:
		return d.createChannel(ctx, data), nil
	case protocol.CmdRegisterChannel:
		return d.registerChannel(ctx, data), nil
	case protocol.CmdDeleteChannel:
		return d.deleteChannel(ctx, data), nil
	case protocol.CmdStore:
		return d.store(ctx, data)
	case protocol.CmdCheck:
		return d.check(ctx, data), nil
	case protocol.CmdAck:
		return d.ack(ctx, data), nil
	default:
		return protocol.Code(protocol.NoHandle), nil
	}
}

func (d *Dispatcher) createChannel(ctx context.Context, req protocol.DataRequest) protocol.Response {
	outcome, err := d.registry.Create(ctx, req.Payload)
	if outcome != OutcomeComplete {
		d.logger.Warn().Err(err).Str("channel", req.Payload).Str("outcome", outcome.String()).Msg("create channel failed")
		return protocol.Code(protocol.NoHandle)
	}
	return protocol.Code(protocol.AckDataReceived)
}

func (d *Dispatcher) registerChannel(ctx context.Context, req protocol.DataRequest) protocol.Response {
	if err := d.registry.Register(ctx, req.Payload, req.ClientID); err != nil {
		d.logger.Warn().Err(err).Str("channel", req.Payload).Str("client_id", req.ClientID).Msg("register failed")
		return protocol.Code(protocol.NoHandle)
	}
	return protocol.Code(protocol.AckDataReceived)
}

func (d *Dispatcher) deleteChannel(ctx context.Context, req protocol.DataRequest) protocol.Response {
	outcome, err := d.registry.Drop(ctx, req.Payload)
	if outcome != OutcomeComplete {
		d.logger.Warn().Err(err).Str("channel", req.Payload).Str("outcome", outcome.String()).Msg("delete channel failed")
		return protocol.Code(protocol.NoHandle)
	}
	return protocol.Code(protocol.AckOk)
}

func (d *Dispatcher) store(ctx context.Context, req protocol.DataRequest) (protocol.Response, error) {
	p, err := protocol.ParseStorePayload(req.Payload)
	if err != nil {
		d.logger.Warn().Err(err).Str("client_id", req.ClientID).Msg("store payload rejected")
		return protocol.Code(protocol.NoHandle), nil
	}
	if !p.Verify(d.hasher) {
		d.logger.Warn().Str("channel", p.Channel).Str("client_id", req.ClientID).Msg("store payload hash mismatch")
		return protocol.Code(protocol.NoHandle), nil
	}
	// Malformed hex means a protocol-incompatible client.
	if err := protocol.ValidateHex(p.Body); err != nil {
		return nil, err
	}
	if !ValidChannelName(p.Channel) {
		return protocol.Code(protocol.NoHandle), nil
	}

	if !d.guard.Check(ctx, p.Channel, req.ClientID) {
		return protocol.Code(protocol.NoPermission), nil
	}
	if err := d.messages.Store(ctx, p.Channel, p.MessageType, p.Body, p.Hash); err != nil {
		d.logger.Error().Err(err).Str("channel", p.Channel).Msg("storing message failed")
		return protocol.Code(protocol.NoHandle), nil
	}
	d.logger.Debug().Str("channel", p.Channel).Str("uuid", p.Hash).Msg("message saved")
	return protocol.Code(protocol.AckDataReceived), nil
}

// check hands out one unprocessed message. Delivery is at-least-once: Check
// does not change the row, so the same message is returned on every call
// until a client acknowledges it with Ack.
func (d *Dispatcher) check(ctx context.Context, req protocol.DataRequest) protocol.Response {
	channel := req.Payload
	if !ValidChannelName(channel) {
		return protocol.Code(protocol.NoHandle)
	}
	if !d.guard.Check(ctx, channel, req.ClientID) {
		return protocol.Code(protocol.NoPermission)
	}

	msg, err := d.messages.FetchOldestUnprocessed(ctx, channel)
	if err != nil {
		d.logger.Error().Err(err).Str("channel", channel).Msg("reading message failed")
		return protocol.Code(protocol.NoHandle)
	}
	if msg == nil {
		return protocol.Code(protocol.AckOk)
	}

	if !d.hasher.Verify(msg.Body, msg.UUID) {
		d.logger.Error().
			Str("channel", channel).
			Str("uuid", msg.UUID).
			Msg("stored message failed integrity check")
		return protocol.Code(protocol.SecurityFault)
	}
	return protocol.DataSent(d.hasher, msg.Body)
}

func (d *Dispatcher) ack(ctx context.Context, req protocol.DataRequest) protocol.Response {
	p, err := protocol.ParseAckPayload(req.Payload)
	if err != nil || !ValidChannelName(p.Channel) {
		return protocol.Code(protocol.NoHandle)
	}
	if d.opts.AckRequiresPermission && !d.guard.Check(ctx, p.Channel, req.ClientID) {
		return protocol.Code(protocol.NoPermission)
	}
	if err := d.messages.MarkProcessed(ctx, p.Channel, p.Body); err != nil {
		d.logger.Warn().Err(err).Str("channel", p.Channel).Msg("ack failed")
		return protocol.Code(protocol.NoHandle)
	}
	return protocol.Code(protocol.AckOk)
}

// metricCommand keeps label cardinality bounded.
func metricCommand(cmd string) string {
	switch cmd {
	case protocol.CmdCreateChannel, protocol.CmdRegisterChannel, protocol.CmdDeleteChannel,
		protocol.CmdStore, protocol.CmdCheck, protocol.CmdAck:
		return cmd
	}
	return "unknown"
}
