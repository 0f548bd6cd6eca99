package secret

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"io"
	"math/big"
	"strings"
)

const (
	alphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	blockCount = 3
	blockSize  = 4
	separator  = '-'
	maxRetries = 8
)

// ErrGeneratorExhausted is returned when the generator keeps producing
// duplicate pairs, which only happens with a broken random source.
var ErrGeneratorExhausted = errors.New("secret generator produced duplicate tokens")

// Generator produces license keys and recovery codes.
type Generator struct {
	rand io.Reader
}

// New returns a Generator backed by crypto/rand.
func New() *Generator {
	return &Generator{rand: rand.Reader}
}

// NewWithReader returns a Generator that draws from r. Intended for tests.
func NewWithReader(r io.Reader) *Generator {
	return &Generator{rand: r}
}

// LicenseKey returns a fresh license key.
func (g *Generator) LicenseKey() (string, error) {
	return g.token()
}

// RecoveryCode returns a fresh recovery code.
func (g *Generator) RecoveryCode() (string, error) {
	return g.token()
}

// Pair returns a license key and a recovery code that differ from each other.
func (g *Generator) Pair() (licenseKey, recoveryCode string, err error) {
	for i := 0; i < maxRetries; i++ {
		licenseKey, err = g.LicenseKey()
		if err != nil {
			return "", "", err
		}
		recoveryCode, err = g.RecoveryCode()
		if err != nil {
			return "", "", err
		}
		if licenseKey != recoveryCode {
			return licenseKey, recoveryCode, nil
		}
	}
	return "", "", ErrGeneratorExhausted
}

// RecoveryCodeExcept returns a fresh recovery code that differs from
// licenseKey.
func (g *Generator) RecoveryCodeExcept(licenseKey string) (string, error) {
	for i := 0; i < maxRetries; i++ {
		code, err := g.RecoveryCode()
		if err != nil {
			return "", err
		}
		if !Matches(code, licenseKey) {
			return code, nil
		}
	}
	return "", ErrGeneratorExhausted
}

func (g *Generator) token() (string, error) {
	var b strings.Builder
	b.Grow(blockCount*blockSize + blockCount - 1)

	max := big.NewInt(int64(len(alphabet)))
	for block := 0; block < blockCount; block++ {
		if block > 0 {
			b.WriteByte(separator)
		}
		for i := 0; i < blockSize; i++ {
			n, err := rand.Int(g.rand, max)
			if err != nil {
				return "", err
			}
			b.WriteByte(alphabet[n.Int64()])
		}
	}
	return b.String(), nil
}

// Normalize trims surrounding whitespace and upper-cases s.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Matches reports whether supplied equals stored after normalization.
// An empty value on either side never matches.
func Matches(supplied, stored string) bool {
	a, b := Normalize(supplied), Normalize(stored)
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// MatchesAny reports whether supplied matches any of stored. Every candidate
// is compared so timing does not reveal which one matched.
func MatchesAny(supplied string, stored ...string) bool {
	matched := false
	for _, s := range stored {
		if Matches(supplied, s) {
			matched = true
		}
	}
	return matched
}

// ValidFormat reports whether s has the XXXX-XXXX-XXXX shape over A-Z0-9.
func ValidFormat(s string) bool {
	if len(s) != blockCount*blockSize+blockCount-1 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if (i+1)%(blockSize+1) == 0 {
			if s[i] != separator {
				return false
			}
			continue
		}
		if strings.IndexByte(alphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}
