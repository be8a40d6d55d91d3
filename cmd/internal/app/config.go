package app

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"studydeck/cmd/internal/auth/flow"
	"studydeck/cmd/internal/study"
)

// Credential backends accepted by STUDYDECK_CRED_BACKEND.
const (
	BackendBolt     = "bolt"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string
	LogColor  bool

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// Backend API.
	APIURL           string
	HTTPTimeout      time.Duration
	MaxResponseBytes int64
	MaxUploadBytes   int64
	LoginPath        string
	RegisterPath     string
	RefreshPath      string

	// Credential persistence.
	CredBackend string
	CredPath    string
	CredProfile string

	// RequireSealedCredentials refuses to start unless STUDYDECK_CRED_SEAL_KEY is set (>= 32 bytes).
	RequireSealedCredentials bool

	RedisAddr   string
	RedisPrefix string
	RedisTTL    time.Duration

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// Gate hardening: treat an access token whose exp claim has passed as absent.
	GateExpiryCheck bool
	GateClockSkew   time.Duration
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	paths := flow.DefaultConfig()

	return Config{
		HTTPAddr:  EnvString("STUDYDECK_HTTP_ADDR", "127.0.0.1:5173"),
		LogLevel:  EnvString("STUDYDECK_LOG_LEVEL", "info"),
		LogFormat: EnvString("STUDYDECK_LOG_FORMAT", "json"),
		LogColor:  EnvBool("STUDYDECK_LOG_COLOR", os.Getenv("NO_COLOR") == ""),

		ReadHeaderTimeout: EnvDuration("STUDYDECK_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("STUDYDECK_HTTP_READ_TIMEOUT", 60*time.Second),
		WriteTimeout:      EnvDuration("STUDYDECK_HTTP_WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:       EnvDuration("STUDYDECK_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    EnvInt("STUDYDECK_HTTP_MAX_HEADER_BYTES", 1<<20),

		APIURL:           EnvString("STUDYDECK_API_URL", "http://127.0.0.1:8000"),
		HTTPTimeout:      EnvDuration("STUDYDECK_HTTP_TIMEOUT", 30*time.Second),
		MaxResponseBytes: EnvInt64("STUDYDECK_MAX_RESPONSE_BYTES", 8<<20),
		MaxUploadBytes:   EnvInt64("STUDYDECK_MAX_UPLOAD_BYTES", study.DefaultMaxUploadBytes),
		LoginPath:        EnvString("STUDYDECK_LOGIN_PATH", paths.LoginPath),
		RegisterPath:     EnvString("STUDYDECK_REGISTER_PATH", paths.RegisterPath),
		RefreshPath:      EnvString("STUDYDECK_REFRESH_PATH", paths.RefreshPath),

		CredBackend: strings.ToLower(EnvString("STUDYDECK_CRED_BACKEND", BackendBolt)),
		CredPath:    EnvString("STUDYDECK_CRED_PATH", "~/.studydeck/credentials.db"),
		CredProfile: EnvString("STUDYDECK_CRED_PROFILE", "default"),

		RequireSealedCredentials: EnvBool("STUDYDECK_REQUIRE_SEALED_CREDENTIALS", false),

		RedisAddr:   EnvString("STUDYDECK_REDIS_ADDR", ""),
		RedisPrefix: EnvString("STUDYDECK_REDIS_PREFIX", "studydeck:credentials"),
		RedisTTL:    EnvDuration("STUDYDECK_REDIS_TTL", 0),

		DatabaseURL: EnvString("STUDYDECK_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("STUDYDECK_DB_MAX_CONNS", 4),
		DBMinConns:  EnvInt32("STUDYDECK_DB_MIN_CONNS", 0),

		GateExpiryCheck: EnvBool("STUDYDECK_GATE_EXPIRY_CHECK", false),
		GateClockSkew:   EnvDuration("STUDYDECK_GATE_CLOCK_SKEW", 30*time.Second),
	}
}

// FlowConfig returns the backend auth endpoint paths.
func (c Config) FlowConfig() flow.Config {
	return flow.Config{
		LoginPath:    c.LoginPath,
		RegisterPath: c.RegisterPath,
		RefreshPath:  c.RefreshPath,
	}
}

// Validate fails fast on configuration that cannot work.
func (c Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: STUDYDECK_API_URL must be an absolute http(s) URL, got %q", c.APIURL)
	}

	switch c.LogFormat {
	case "json", "pretty":
	default:
		return fmt.Errorf("config: STUDYDECK_LOG_FORMAT must be json or pretty, got %q", c.LogFormat)
	}

	switch c.CredBackend {
	case BackendBolt:
		if c.CredPath == "" {
			return errors.New("config: STUDYDECK_CRED_PATH is required for the bolt backend")
		}
	case BackendMemory:
	case BackendRedis:
		if c.RedisAddr == "" {
			return errors.New("config: STUDYDECK_REDIS_ADDR is required for the redis backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: STUDYDECK_DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("config: unknown STUDYDECK_CRED_BACKEND %q", c.CredBackend)
	}

	for name, p := range map[string]string{
		"STUDYDECK_LOGIN_PATH":    c.LoginPath,
		"STUDYDECK_REGISTER_PATH": c.RegisterPath,
		"STUDYDECK_REFRESH_PATH":  c.RefreshPath,
	} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("config: %s must start with /, got %q", name, p)
		}
	}
	return nil
}

// expandHome resolves a leading "~/" against the user's home directory.
func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home dir: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
