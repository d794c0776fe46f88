// Package ironpulse provides a client for the IronPulse message relay.
package ironpulse

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/eldtechnologies/ironpulse/internal/crypto"
	"github.com/eldtechnologies/ironpulse/internal/protocol"
)

// ErrIntegrity is returned when a delivered message fails its hash check.
var ErrIntegrity = errors.New("response integrity check failed")

// StatusError is returned when the relay answers with an unexpected status.
type StatusError struct {
	Command string
	Status  protocol.Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ironpulse %s: %s (%d)", e.Command, e.Status, e.Status.Code())
}

// IsStatus reports whether err is a StatusError with the given status.
func IsStatus(err error, s protocol.Status) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == s
}

// Client is an IronPulse relay client. Every call opens one connection.
type Client struct {
	Addr      string
	ClientID  string
	ConfigDir string
	Hasher    *crypto.Hasher
	Timeout   time.Duration
}

// Config holds client configuration stored on disk.
type Config struct {
	Addr     string `json:"addr"`
	ClientID string `json:"client_id"`
}

// Delivery is a message handed out by Check.
type Delivery struct {
	Body    []byte
	HexBody string // pass to Ack
}

// NewClient creates a client for the relay at addr. Settings missing from the
// arguments are taken from the config dir, then from IRONPULSE_* variables.
// INTEGRITY_KEY overrides the stored key. A malformed key or config file is an
// error; a missing config dir is not.
func NewClient(addr, clientID string) (*Client, error) {
	configDir := os.Getenv("IRONPULSE_CONFIG")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".ironpulse")
	}

	c := &Client{
		Addr:      addr,
		ClientID:  clientID,
		ConfigDir: configDir,
		Timeout:   30 * time.Second,
	}
	if err := c.LoadConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load config from %s: %w", configDir, err)
	}

	if c.Addr == "" {
		c.Addr = os.Getenv("IRONPULSE_ADDR")
	}
	if c.Addr == "" {
		c.Addr = "127.0.0.1:9518"
	}
	if c.ClientID == "" {
		c.ClientID = os.Getenv("IRONPULSE_CLIENT_ID")
	}
	if key := os.Getenv("INTEGRITY_KEY"); key != "" {
		h, err := crypto.NewHasherFromHex(key)
		if err != nil {
			return nil, fmt.Errorf("INTEGRITY_KEY: %w", err)
		}
		c.Hasher = h
	}
	if c.Hasher == nil {
		c.Hasher, _ = crypto.NewHasher(nil)
	}
	return c, nil
}

// LoadConfig loads client settings and the integrity key from disk. Values
// already set on the client win.
func (c *Client) LoadConfig() error {
	data, err := os.ReadFile(filepath.Join(c.ConfigDir, "client.json"))
	if err != nil {
		return err
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return err
	}
	if c.Addr == "" {
		c.Addr = config.Addr
	}
	if c.ClientID == "" {
		c.ClientID = config.ClientID
	}

	keyData, err := os.ReadFile(filepath.Join(c.ConfigDir, "integrity.key"))
	if err != nil {
		return err
	}
	h, err := crypto.NewHasherFromHex(strings.TrimSpace(string(keyData)))
	if err != nil {
		return err
	}
	c.Hasher = h
	return nil
}

// SaveConfig saves client settings and the hex integrity key to disk.
func (c *Client) SaveConfig(keyHex string) error {
	if _, err := crypto.NewHasherFromHex(keyHex); err != nil {
		return fmt.Errorf("integrity key: %w", err)
	}
	if err := os.MkdirAll(c.ConfigDir, 0700); err != nil {
		return err
	}

	data, _ := json.MarshalIndent(Config{Addr: c.Addr, ClientID: c.ClientID}, "", "  ")
	if err := os.WriteFile(filepath.Join(c.ConfigDir, "client.json"), data, 0600); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.ConfigDir, "integrity.key"), []byte(keyHex), 0600)
}

// roundTrip sends one request and decodes the single response line.
func (c *Client) roundTrip(command, payload string) (protocol.Response, error) {
	conn, err := net.DialTimeout("tcp", c.Addr, c.Timeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if c.Timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(c.Timeout)); err != nil {
			return nil, err
		}
	}

	line := protocol.EncodeRequest(c.Hasher, command, payload, c.ClientID)
	if _, err := io.WriteString(conn, line); err != nil {
		return nil, err
	}
	// The relay reads until EOF.
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.CloseWrite(); err != nil {
			return nil, err
		}
	}

	out, err := io.ReadAll(conn)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("ironpulse %s: connection closed without response", command)
	}
	return protocol.ParseResponse(string(out))
}

// expect sends a request and fails unless the relay answers with want.
func (c *Client) expect(command, payload string, want protocol.Status) error {
	resp, err := c.roundTrip(command, payload)
	if err != nil {
		return err
	}
	if resp.StatusCode() != want {
		return &StatusError{Command: command, Status: resp.StatusCode()}
	}
	return nil
}

// CreateChannel creates a channel.
func (c *Client) CreateChannel(channel string) error {
	return c.expect(protocol.CmdCreateChannel, channel, protocol.AckDataReceived)
}

// RegisterChannel registers this client on a channel.
func (c *Client) RegisterChannel(channel string) error {
	return c.expect(protocol.CmdRegisterChannel, channel, protocol.AckDataReceived)
}

// DeleteChannel drops a channel and all its messages.
func (c *Client) DeleteChannel(channel string) error {
	return c.expect(protocol.CmdDeleteChannel, channel, protocol.AckOk)
}

// Store posts a message to a channel.
func (c *Client) Store(channel, messageType string, body []byte) error {
	payload := protocol.EncodeStorePayload(c.Hasher, channel, messageType, hex.EncodeToString(body))
	return c.expect(protocol.CmdStore, payload, protocol.AckDataReceived)
}

// Check fetches one pending message. It returns nil when the channel has
// nothing pending. Delivery is at-least-once: the same message is returned by
// every Check until it is acknowledged with Ack.
func (c *Client) Check(channel string) (*Delivery, error) {
	resp, err := c.roundTrip(protocol.CmdCheck, channel)
	if err != nil {
		return nil, err
	}

	switch r := resp.(type) {
	case protocol.DataResponse:
		if r.Status != protocol.AckDataSent {
			return nil, &StatusError{Command: protocol.CmdCheck, Status: r.Status}
		}
		if !c.Hasher.Verify(r.Body, r.Hash) {
			return nil, ErrIntegrity
		}
		body, err := hex.DecodeString(r.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIntegrity, err)
		}
		return &Delivery{Body: body, HexBody: r.Body}, nil
	default:
		if resp.StatusCode() == protocol.AckOk {
			return nil, nil
		}
		return nil, &StatusError{Command: protocol.CmdCheck, Status: resp.StatusCode()}
	}
}

// Ack marks a delivered message as processed.
func (c *Client) Ack(channel, hexBody string) error {
	return c.expect(protocol.CmdAck, protocol.EncodeAckPayload(channel, hexBody), protocol.AckOk)
}
