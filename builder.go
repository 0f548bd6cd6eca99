package codify

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/arturkam25/Codify/internal/limiters"
	"github.com/arturkam25/Codify/internal/locks"
	"github.com/arturkam25/Codify/jwt"
	"github.com/arturkam25/Codify/password"
	"github.com/arturkam25/Codify/secret"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A Builder can be used for one Build only.
type Builder struct {
	config    Config
	store     CredentialStore
	redis     redis.UniversalClient
	auditSink AuditSink
	logger    *slog.Logger
	secrets   *secret.Generator

	built bool
}

// New starts a Builder with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the credential store. It is required.
func (b *Builder) WithStore(store CredentialStore) *Builder {
	b.store = store
	return b
}

// WithRedis enables the distributed promotion lock and recovery throttling.
// Without it promotion is serialized in-process and recovery is not throttled.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the operational logger. The default discards everything.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithSecretGenerator replaces the crypto/rand backed generator. Tests use
// it to make license keys and recovery codes predictable.
func (b *Builder) WithSecretGenerator(g *secret.Generator) *Builder {
	b.secrets = g
	return b
}

func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.store == nil {
		return nil, errors.New("credential store required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	hasher, err := newHasher(cfg.Password)
	if err != nil {
		return nil, err
	}

	sessions, err := newSessionManager(cfg.Session, logger)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:   cfg,
		store:    b.store,
		policy:   newPolicy(cfg.Password),
		hasher:   hasher,
		secrets:  b.secrets,
		sessions: sessions,
		audit:    newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:  NewMetrics(cfg.Metrics),
		logger:   logger,
	}
	if engine.secrets == nil {
		engine.secrets = secret.New()
	}

	if b.redis != nil {
		engine.promotion = locks.NewRedisLocker(
			b.redis,
			cfg.Security.RedisPrefix,
			cfg.Security.PromotionLockTTL,
			cfg.Security.PromotionLockWait,
		)
		if cfg.Recovery.EnableThrottle {
			engine.recovery = limiters.NewRecoveryLimiter(b.redis, limiters.RecoveryConfig{
				Prefix:           cfg.Security.RedisPrefix,
				MaxAttempts:      cfg.Recovery.MaxAttempts,
				Window:           cfg.Recovery.Window,
				EnableIPThrottle: cfg.Recovery.EnableIPThrottle,
			})
		}
	} else {
		engine.promotion = locks.NewMutexLocker()
	}

	b.built = true

	return engine, nil
}

// newHasher builds a chain whose primary is the configured algorithm. The
// other algorithm stays available for verification so existing hashes keep
// working after a switch.
// newPolicy caps input length at bcrypt's limit when bcrypt stores new hashes.
func newPolicy(cfg PasswordConfig) password.Policy {
	p := password.Policy{MinLength: cfg.MinLength, Specials: cfg.Specials}
	if cfg.Algorithm == "bcrypt" {
		p.MaxBytes = password.BcryptMaxBytes
	}
	return p
}

func newHasher(cfg PasswordConfig) (*password.Chain, error) {
	bc, err := password.NewBcrypt(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	argonCfg := password.Argon2Config{
		Memory:      cfg.Memory,
		Time:        cfg.Time,
		Parallelism: cfg.Parallelism,
		SaltLength:  cfg.SaltLength,
		KeyLength:   cfg.KeyLength,
	}
	if cfg.Algorithm != "argon2id" && argonCfg.Memory == 0 {
		argonCfg = password.DefaultArgon2Config()
	}
	argon, err := password.NewArgon2(argonCfg)
	if err != nil {
		return nil, err
	}

	if cfg.Algorithm == "argon2id" {
		return password.NewChain(argon, bc), nil
	}
	return password.NewChain(bc, argon), nil
}

func newSessionManager(cfg SessionConfig, logger *slog.Logger) (*jwt.Manager, error) {
	key := cloneBytes(cfg.SigningKey)
	if cfg.SigningMethod == "hs256" && len(key) == 0 {
		key = make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return nil, fmt.Errorf("generate session key: %w", err)
		}
		logger.Warn("no session signing key configured; using an ephemeral key")
	}

	return jwt.NewManager(jwt.Config{
		TTL:           cfg.TTL,
		SigningMethod: jwt.SigningMethod(cfg.SigningMethod),
		PrivateKey:    key,
		PublicKey:     cloneBytes(cfg.PublicKey),
		Issuer:        cfg.Issuer,
	})
}
