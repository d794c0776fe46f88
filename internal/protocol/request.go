// Package protocol implements the line-oriented wire format of the relay:
// request parsing with integrity verification, payload decomposition and
// response encoding.
package protocol

import (
	"errors"
	"strings"

	"github.com/eldtechnologies/ironpulse/internal/crypto"
)

// Command names accepted by the dispatcher. Matching is case-sensitive.
const (
	CmdCreateChannel   = "CreateChannel"
	CmdRegisterChannel = "RegisterChannel"
	CmdDeleteChannel   = "DeleteChannel"
	CmdStore           = "Store"
	CmdCheck           = "Check"
	CmdAck             = "Ack"
)

var ErrMalformedRequest = errors.New("malformed request")

// Request is a parsed wire request, either a CodeRequest or a DataRequest.
type Request interface {
	Cmd() string
	Client() string
	IntegrityValid() bool
}

// CodeRequest carries a command without payload.
type CodeRequest struct {
	Command     string
	ClientID    string
	IntegrityOK bool
}

func (r CodeRequest) Cmd() string          { return r.Command }
func (r CodeRequest) Client() string       { return r.ClientID }
func (r CodeRequest) IntegrityValid() bool { return r.IntegrityOK }

// DataRequest carries a command with a payload segment.
type DataRequest struct {
	Command     string
	Payload     string
	ClientID    string
	IntegrityOK bool
}

func (r DataRequest) Cmd() string          { return r.Command }
func (r DataRequest) Client() string       { return r.ClientID }
func (r DataRequest) IntegrityValid() bool { return r.IntegrityOK }

// ParseRequest decodes one raw request of the form
//
//	command[/payload],clientId,integrityHash
//
// The integrity hash is recomputed over clientId followed by the first field
// and compared with the received one. A mismatch does not fail parsing; it is
// reported through IntegrityValid. Fields beyond the third are ignored.
func ParseRequest(raw string, h *crypto.Hasher) (Request, error) {
	raw = strings.TrimRight(raw, "\r\n")
	fields := strings.Split(raw, ",")
	if len(fields) < 3 {
		return nil, ErrMalformedRequest
	}

	head, clientID, integrity := fields[0], fields[1], fields[2]
	ok := h.Verify(clientID+head, integrity)

	command, payload, hasPayload := strings.Cut(head, "/")
	if hasPayload {
		return DataRequest{
			Command:     command,
			Payload:     payload,
			ClientID:    clientID,
			IntegrityOK: ok,
		}, nil
	}
	return CodeRequest{
		Command:     command,
		ClientID:    clientID,
		IntegrityOK: ok,
	}, nil
}

// EncodeRequest renders a request line signed with h. An empty payload
// produces a request without payload segment.
func EncodeRequest(h *crypto.Hasher, command, payload, clientID string) string {
	head := command
	if payload != "" {
		head = command + "/" + payload
	}
	return head + "," + clientID + "," + h.Sum(clientID+head)
}
