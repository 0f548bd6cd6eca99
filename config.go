package codify

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/arturkam25/Codify/password"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the engine. Start from [DefaultConfig] or
// [LoadConfig]; the zero value does not validate.
type Config struct {
	Password PasswordConfig `yaml:"password"`
	Security SecurityConfig `yaml:"security"`
	Recovery RecoveryConfig `yaml:"recovery"`
	Session  SessionConfig  `yaml:"session"`
	Audit    AuditConfig    `yaml:"audit"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig selects the hashing algorithm and the strength policy.
type PasswordConfig struct {
	Algorithm  string `yaml:"algorithm"` // "bcrypt" (default) or "argon2id"
	BcryptCost int    `yaml:"bcrypt_cost"`

	Memory      uint32 `yaml:"argon2_memory"` // in KB
	Time        uint32 `yaml:"argon2_time"`
	Parallelism uint8  `yaml:"argon2_parallelism"`
	SaltLength  uint32 `yaml:"argon2_salt_length"`
	KeyLength   uint32 `yaml:"argon2_key_length"`

	MinLength int    `yaml:"min_length"`
	Specials  string `yaml:"specials"`

	// UpgradeOnLogin rehashes a stored hash after a successful login when it
	// was produced by the other algorithm or with weaker parameters.
	UpgradeOnLogin bool `yaml:"upgrade_on_login"`
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig governs lockout and the first-login promotion lock.
type SecurityConfig struct {
	MaxLoginAttempts int `yaml:"max_login_attempts"`

	// PromotionLockTTL bounds how long a crashed holder can block promotion.
	PromotionLockTTL  time.Duration `yaml:"promotion_lock_ttl"`
	PromotionLockWait time.Duration `yaml:"promotion_lock_wait"`
	RedisPrefix       string        `yaml:"redis_prefix"`
}

/*
====================================
RECOVERY CONFIG
====================================
*/

// RecoveryConfig throttles failed recovery attempts. Throttling needs a Redis
// client and is skipped without one.
type RecoveryConfig struct {
	EnableThrottle   bool          `yaml:"enable_throttle"`
	EnableIPThrottle bool          `yaml:"enable_ip_throttle"`
	MaxAttempts      int           `yaml:"max_attempts"`
	Window           time.Duration `yaml:"window"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures the signed session tokens issued at login.
// When SigningKey is empty for hs256, Build generates an ephemeral key and
// tokens stop verifying after a restart.
type SessionConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SigningMethod string        `yaml:"signing_method"` // "hs256" (default) or "ed25519"
	Issuer        string        `yaml:"issuer"`

	SigningKeyFile string `yaml:"signing_key_file"`
	PublicKeyFile  string `yaml:"public_key_file"`
	SigningKey     []byte `yaml:"-"`
	PublicKey      []byte `yaml:"-"`
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	argon := password.DefaultArgon2Config()
	return Config{
		Password: PasswordConfig{
			Algorithm:      "bcrypt",
			BcryptCost:     password.DefaultBcryptCost,
			Memory:         argon.Memory,
			Time:           argon.Time,
			Parallelism:    argon.Parallelism,
			SaltLength:     argon.SaltLength,
			KeyLength:      argon.KeyLength,
			MinLength:      password.DefaultMinLength,
			Specials:       password.DefaultSpecials,
			UpgradeOnLogin: true,
		},
		Security: SecurityConfig{
			MaxLoginAttempts:  3,
			PromotionLockTTL:  10 * time.Second,
			PromotionLockWait: 5 * time.Second,
			RedisPrefix:       "codify",
		},
		Recovery: RecoveryConfig{
			EnableThrottle:   true,
			EnableIPThrottle: true,
			MaxAttempts:      5,
			Window:           15 * time.Minute,
		},
		Session: SessionConfig{
			TTL:           12 * time.Hour,
			SigningMethod: "hs256",
			Issuer:        "codify",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// LoadConfig reads a YAML file on top of the defaults. Key files referenced
// by the session section are read relative to the working directory.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Session.SigningKeyFile != "" {
		key, err := os.ReadFile(cfg.Session.SigningKeyFile)
		if err != nil {
			return Config{}, fmt.Errorf("read signing key: %w", err)
		}
		cfg.Session.SigningKey = []byte(strings.TrimSpace(string(key)))
	}
	if cfg.Session.PublicKeyFile != "" {
		key, err := os.ReadFile(cfg.Session.PublicKeyFile)
		if err != nil {
			return Config{}, fmt.Errorf("read public key: %w", err)
		}
		cfg.Session.PublicKey = key
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Session.SigningKey = cloneBytes(cfg.Session.SigningKey)
	out.Session.PublicKey = cloneBytes(cfg.Session.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Password
	switch c.Password.Algorithm {
	case "bcrypt":
		if c.Password.BcryptCost < bcrypt.MinCost || c.Password.BcryptCost > bcrypt.MaxCost {
			return fmt.Errorf("Password BcryptCost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
		}
	case "argon2id":
		if c.Password.Memory < 8*1024 {
			return errors.New("Password Memory must be >= 8192 KB")
		}
		if c.Password.Time < 1 {
			return errors.New("Password Time must be >= 1")
		}
		if c.Password.Parallelism < 1 {
			return errors.New("Password Parallelism must be >= 1")
		}
		if c.Password.SaltLength < 16 {
			return errors.New("Password SaltLength must be >= 16")
		}
		if c.Password.KeyLength < 16 {
			return errors.New("Password KeyLength must be >= 16")
		}
	default:
		return errors.New("Password Algorithm must be 'bcrypt' or 'argon2id'")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.Specials == "" {
		return errors.New("Password Specials must not be empty")
	}

	// Security
	if c.Security.MaxLoginAttempts < 1 {
		return errors.New("Security MaxLoginAttempts must be >= 1")
	}
	if c.Security.PromotionLockTTL <= 0 {
		return errors.New("Security PromotionLockTTL must be > 0")
	}
	if c.Security.PromotionLockWait <= 0 {
		return errors.New("Security PromotionLockWait must be > 0")
	}

	// Recovery
	if c.Recovery.EnableThrottle {
		if c.Recovery.MaxAttempts < 1 {
			return errors.New("Recovery MaxAttempts must be >= 1 when throttling is enabled")
		}
		if c.Recovery.Window <= 0 {
			return errors.New("Recovery Window must be > 0 when throttling is enabled")
		}
	}

	// Session
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	switch c.Session.SigningMethod {
	case "hs256":
		if len(c.Session.SigningKey) > 0 && len(c.Session.SigningKey) < 32 {
			return errors.New("hs256 SigningKey must be at least 32 bytes")
		}
	case "ed25519":
		if len(c.Session.SigningKey) == 0 || len(c.Session.PublicKey) == 0 {
			return errors.New("ed25519 requires SigningKey and PublicKey")
		}
	default:
		return errors.New("unsupported Session signing method")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}
