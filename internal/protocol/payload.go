package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/eldtechnologies/ironpulse/internal/crypto"
)

// payloadSeparator splits the fields of Store and Ack payloads.
const payloadSeparator = "_"

var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrInvalidHex       = errors.New("body is not valid hex")
)

// StorePayload is the decomposed payload of a Store request:
// channel_messageType_hexBody_hash.
type StorePayload struct {
	Channel     string
	MessageType string
	Body        string // hex encoded, persisted as is
	Hash        string
}

// ParseStorePayload splits a Store payload into its four fields.
func ParseStorePayload(payload string) (StorePayload, error) {
	parts := strings.Split(payload, payloadSeparator)
	if len(parts) != 4 {
		return StorePayload{}, fmt.Errorf("%w: store expects 4 fields, got %d", ErrMalformedPayload, len(parts))
	}
	return StorePayload{
		Channel:     parts[0],
		MessageType: parts[1],
		Body:        parts[2],
		Hash:        parts[3],
	}, nil
}

// Verify reports whether the hash field matches the hex encoded body.
func (p StorePayload) Verify(h *crypto.Hasher) bool {
	return h.Verify(p.Body, p.Hash)
}

// EncodeStorePayload builds a Store payload for a hex encoded body.
func EncodeStorePayload(h *crypto.Hasher, channel, messageType, hexBody string) string {
	return strings.Join([]string{channel, messageType, hexBody, h.Sum(hexBody)}, payloadSeparator)
}

// AckPayload is the decomposed payload of an Ack request: channel_messageBody.
type AckPayload struct {
	Channel string
	Body    string
}

// ParseAckPayload splits an Ack payload into its two fields.
func ParseAckPayload(payload string) (AckPayload, error) {
	parts := strings.Split(payload, payloadSeparator)
	if len(parts) != 2 {
		return AckPayload{}, fmt.Errorf("%w: ack expects 2 fields, got %d", ErrMalformedPayload, len(parts))
	}
	return AckPayload{Channel: parts[0], Body: parts[1]}, nil
}

// EncodeAckPayload builds an Ack payload.
func EncodeAckPayload(channel, hexBody string) string {
	return channel + payloadSeparator + hexBody
}

// ValidateHex checks that s is an even-length hex string without decoding it.
func ValidateHex(s string) error {
	if len(s)%2 != 0 {
		return fmt.Errorf("%w: odd length %d", ErrInvalidHex, len(s))
	}
	for i := 0; i < len(s); i++ {
		if !isHexDigit(s[i]) {
			return fmt.Errorf("%w: invalid byte %q at %d", ErrInvalidHex, s[i], i)
		}
	}
	return nil
}

func isHexDigit(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
