package crypto

import (
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

var (
	ErrKeyTooLong = errors.New("integrity key too long")
	ErrInvalidKey = errors.New("invalid integrity key")
)

// Hasher computes the keyed integrity digest used on the wire and as the
// message row key. The digest is BLAKE2b-256 in keyed mode, hex encoded.
// A nil or empty key yields the plain unkeyed digest.
type Hasher struct {
	key []byte
}

// NewHasher returns a Hasher for the given key.
func NewHasher(key []byte) (*Hasher, error) {
	if len(key) > blake2b.Size {
		return nil, fmt.Errorf("%w: max %d bytes, got %d", ErrKeyTooLong, blake2b.Size, len(key))
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Hasher{key: k}, nil
}

// NewHasherFromHex decodes a hex key and returns a Hasher for it.
func NewHasherFromHex(keyHex string) (*Hasher, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return NewHasher(key)
}

// Sum returns the hex digest of data.
func (h *Hasher) Sum(data string) string {
	mac, err := blake2b.New256(h.key)
	if err != nil {
		// key length is checked in NewHasher
		panic(err)
	}
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether sum is the digest of data.
func (h *Hasher) Verify(data, sum string) bool {
	expected := h.Sum(data)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(sum)) == 1
}
