package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/eldtechnologies/ironpulse/internal/crypto"
)

var ErrMalformedResponse = errors.New("malformed response")

// Response is rendered back to the client as a single line.
type Response interface {
	StatusCode() Status
	Encode() string
}

// CodeResponse carries a bare status.
type CodeResponse struct {
	Status Status
}

func (r CodeResponse) StatusCode() Status { return r.Status }

// Encode renders "statusCode".
func (r CodeResponse) Encode() string {
	return fmt.Sprintf("%d", r.Status.Code())
}

// DataResponse carries a status plus a body and its integrity hash.
type DataResponse struct {
	Status Status
	Body   string
	Hash   string
}

func (r DataResponse) StatusCode() Status { return r.Status }

// Encode renders "statusCode,body/hash".
func (r DataResponse) Encode() string {
	return fmt.Sprintf("%d,%s/%s", r.Status.Code(), r.Body, r.Hash)
}

// Code returns a bare status response.
func Code(s Status) Response {
	return CodeResponse{Status: s}
}

// DataSent returns an AckDataSent response for body, hashed with h.
func DataSent(h *crypto.Hasher, body string) Response {
	return DataResponse{Status: AckDataSent, Body: body, Hash: h.Sum(body)}
}

// ParseResponse decodes a response line as written by Encode.
func ParseResponse(line string) (Response, error) {
	line = strings.TrimRight(line, "\r\n")
	code, rest, hasData := strings.Cut(line, ",")
	status, ok := ParseStatus(code)
	if !ok {
		return nil, fmt.Errorf("%w: unknown status %q", ErrMalformedResponse, code)
	}
	if !hasData {
		return CodeResponse{Status: status}, nil
	}
	body, hash, ok := strings.Cut(rest, "/")
	if !ok {
		return nil, fmt.Errorf("%w: data without hash", ErrMalformedResponse)
	}
	return DataResponse{Status: status, Body: body, Hash: hash}, nil
}
