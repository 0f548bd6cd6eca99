package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2Prefix = "$argon2id$"

// Lower bounds accepted both for configuration and for stored encodings.
const (
	minArgonMemoryKB   = 8 * 1024
	minArgonTime       = 1
	minArgonThreads    = 1
	minArgonSaltBytes  = 16
	minArgonKeyBytes   = 16
	argonParamsPattern = "m=%d,t=%d,p=%d"
)

var errMalformedArgon2 = errors.New("malformed argon2id encoding")

// Argon2Config holds the Argon2id cost parameters. Memory is in KiB.
type Argon2Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Config returns the parameters used when argon2id is selected
// without explicit tuning.
func DefaultArgon2Config() Argon2Config {
	return Argon2Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (c Argon2Config) validate() error {
	switch {
	case c.Memory < minArgonMemoryKB:
		return fmt.Errorf("argon2 memory must be >= %d KiB", minArgonMemoryKB)
	case c.Time < minArgonTime:
		return fmt.Errorf("argon2 time must be >= %d", minArgonTime)
	case c.Parallelism < minArgonThreads:
		return fmt.Errorf("argon2 parallelism must be >= %d", minArgonThreads)
	case c.SaltLength < minArgonSaltBytes:
		return fmt.Errorf("argon2 salt length must be >= %d", minArgonSaltBytes)
	case c.KeyLength < minArgonKeyBytes:
		return fmt.Errorf("argon2 key length must be >= %d", minArgonKeyBytes)
	}
	return nil
}

// Argon2 hashes passwords with Argon2id and stores them in PHC string form:
// $argon2id$v=19$m=<KiB>,t=<passes>,p=<threads>$<salt>$<key>.
type Argon2 struct {
	config Argon2Config
}

// NewArgon2 rejects parameters below the minimum safe costs.
func NewArgon2(cfg Argon2Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Argon2{config: cfg}, nil
}

// argonPHC is a decoded Argon2id PHC string.
type argonPHC struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	key     []byte
}

func (p argonPHC) String() string {
	return fmt.Sprintf("%sv=%d$"+argonParamsPattern+"$%s$%s",
		argon2Prefix,
		argon2.Version,
		p.memory, p.time, p.threads,
		base64.StdEncoding.EncodeToString(p.salt),
		base64.StdEncoding.EncodeToString(p.key),
	)
}

func (p argonPHC) derive(password string, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.threads, keyLen)
}

func decodeArgonPHC(encoded string) (argonPHC, error) {
	var out argonPHC

	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != "argon2id" {
		return out, errMalformedArgon2
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil {
		return out, fmt.Errorf("%w: version: %v", errMalformedArgon2, err)
	}
	if version != argon2.Version {
		return out, fmt.Errorf("%w: unsupported version %d", errMalformedArgon2, version)
	}

	if _, err := fmt.Sscanf(fields[3], argonParamsPattern, &out.memory, &out.time, &out.threads); err != nil {
		return out, fmt.Errorf("%w: parameters: %v", errMalformedArgon2, err)
	}
	if fmt.Sprintf(argonParamsPattern, out.memory, out.time, out.threads) != fields[3] {
		return out, fmt.Errorf("%w: parameters", errMalformedArgon2)
	}
	if out.memory < minArgonMemoryKB || out.time < minArgonTime || out.threads < minArgonThreads {
		return out, fmt.Errorf("%w: parameters below minimum", errMalformedArgon2)
	}

	var err error
	if out.salt, err = base64.StdEncoding.DecodeString(fields[4]); err != nil || len(out.salt) < minArgonSaltBytes {
		return out, fmt.Errorf("%w: salt", errMalformedArgon2)
	}
	if out.key, err = base64.StdEncoding.DecodeString(fields[5]); err != nil || len(out.key) == 0 {
		return out, fmt.Errorf("%w: key", errMalformedArgon2)
	}
	return out, nil
}

// Hash uses the raw bytes of password with no Unicode normalization.
func (a *Argon2) Hash(password string) (string, error) {
	p := argonPHC{
		memory:  a.config.Memory,
		time:    a.config.Time,
		threads: a.config.Parallelism,
		salt:    make([]byte, a.config.SaltLength),
	}
	if _, err := rand.Read(p.salt); err != nil {
		return "", err
	}
	p.key = p.derive(password, a.config.KeyLength)
	return p.String(), nil
}

func (a *Argon2) Verify(password, encoded string) (bool, error) {
	p, err := decodeArgonPHC(encoded)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(p.derive(password, uint32(len(p.key))), p.key) == 1, nil
}

// NeedsUpgrade reports true when any cost is below the configured one or the
// key length differs.
func (a *Argon2) NeedsUpgrade(encoded string) (bool, error) {
	p, err := decodeArgonPHC(encoded)
	if err != nil {
		return false, err
	}
	return p.memory < a.config.Memory ||
		p.time < a.config.Time ||
		p.threads < a.config.Parallelism ||
		uint32(len(p.key)) != a.config.KeyLength, nil
}

func (a *Argon2) Recognizes(encoded string) bool {
	return strings.HasPrefix(encoded, argon2Prefix)
}
