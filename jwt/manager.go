package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod names a supported token algorithm.
type SigningMethod string

const (
	MethodHS256   SigningMethod = "hs256"
	MethodEd25519 SigningMethod = "ed25519"
)

// Config configures a [Manager]. PrivateKey is the HMAC secret for hs256
// and the signing key for ed25519; a verify-only ed25519 manager needs just
// PublicKey.
type Config struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
}

type Manager struct {
	config Config
	method jwt.SigningMethod
}

// SessionClaims is the payload of a session token.
type SessionClaims struct {
	UID      int64  `json:"uid"`
	Username string `json:"usr"`
	Admin    bool   `json:"adm,omitempty"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}

	m := &Manager{config: cfg}
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, errors.New("hs256 requires a key of at least 32 bytes")
		}
		m.method = jwt.SigningMethodHS256
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key")
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
		m.method = jwt.SigningMethodEdDSA
	default:
		return nil, errors.New("unsupported signing method")
	}

	return m, nil
}

// CreateSession signs a token for the given account. Every token gets a
// fresh random jti.
func (m *Manager) CreateSession(uid int64, username string, admin bool, role string) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		UID:      uid,
		Username: username,
		Admin:    admin,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TTL)),
		},
	}

	key, err := m.signKey()
	if err != nil {
		return "", err
	}
	return jwt.NewWithClaims(m.method, claims).SignedString(key)
}

// ParseSession verifies signature, algorithm, issuer and expiry. It only
// proves the token was issued by this key; callers re-check the account.
func (m *Manager) ParseSession(tokenStr string) (*SessionClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	token, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.verifyKey()
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.UID <= 0 || claims.Username == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.IssuedAt != nil && claims.IssuedAt.Time.After(time.Now().Add(m.config.MaxFutureIAT)) {
		return nil, errors.New("token iat too far in the future")
	}

	return claims, nil
}

func (m *Manager) signKey() (interface{}, error) {
	if m.config.SigningMethod == MethodHS256 {
		return m.config.PrivateKey, nil
	}
	if len(m.config.PrivateKey) == 0 {
		return nil, errors.New("manager has no signing key")
	}
	return parseEdPrivateKey(m.config.PrivateKey)
}

func (m *Manager) verifyKey() (interface{}, error) {
	if m.config.SigningMethod == MethodHS256 {
		return m.config.PrivateKey, nil
	}
	return parseEdPublicKey(m.config.PublicKey)
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
