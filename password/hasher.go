package password

import (
	"errors"
	"strings"
)

// ErrUnrecognizedHash is returned when no registered hasher understands a stored encoding.
var ErrUnrecognizedHash = errors.New("unrecognized password hash encoding")

// Hasher is a salted one-way password hash.
type Hasher interface {
	// Hash returns a self-describing encoding of password including its salt.
	Hash(password string) (string, error)
	// Verify reports whether password matches encoded. A malformed encoding
	// is an error, a mismatch is (false, nil).
	Verify(password, encoded string) (bool, error)
	// NeedsUpgrade reports whether encoded was produced with weaker parameters
	// than the hasher is configured for.
	NeedsUpgrade(encoded string) (bool, error)
	// Recognizes reports whether encoded belongs to this algorithm.
	Recognizes(encoded string) bool
}

// Chain hashes with a primary Hasher and verifies with whichever member
// recognizes the stored encoding. Inputs are trimmed of surrounding
// whitespace before hashing and verifying.
type Chain struct {
	primary Hasher
	members []Hasher
}

// NewChain builds a Chain. fallbacks are consulted only for verification and
// upgrade detection.
func NewChain(primary Hasher, fallbacks ...Hasher) *Chain {
	members := make([]Hasher, 0, len(fallbacks)+1)
	members = append(members, primary)
	for _, h := range fallbacks {
		if h != nil {
			members = append(members, h)
		}
	}
	return &Chain{primary: primary, members: members}
}

// Hash hashes the trimmed password with the primary hasher.
func (c *Chain) Hash(password string) (string, error) {
	return c.primary.Hash(strings.TrimSpace(password))
}

// Verify checks the trimmed password against encoded.
func (c *Chain) Verify(password, encoded string) (bool, error) {
	encoded = strings.TrimSpace(encoded)
	h := c.lookup(encoded)
	if h == nil {
		return false, ErrUnrecognizedHash
	}
	return h.Verify(strings.TrimSpace(password), encoded)
}

// NeedsUpgrade is true when encoded was produced by a fallback algorithm or
// with weaker parameters than the primary hasher uses.
func (c *Chain) NeedsUpgrade(encoded string) (bool, error) {
	encoded = strings.TrimSpace(encoded)
	if !c.primary.Recognizes(encoded) {
		if c.lookup(encoded) == nil {
			return false, ErrUnrecognizedHash
		}
		return true, nil
	}
	return c.primary.NeedsUpgrade(encoded)
}

// Recognizes reports whether any member understands encoded.
func (c *Chain) Recognizes(encoded string) bool {
	return c.lookup(strings.TrimSpace(encoded)) != nil
}

func (c *Chain) lookup(encoded string) Hasher {
	for _, h := range c.members {
		if h.Recognizes(encoded) {
			return h
		}
	}
	return nil
}
