// Package config loads cachegate's startup configuration from a YAML file or
// from environment variables, and never changes it afterward.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Auth holds the presign keypair and the optional static bearer token.
type Auth struct {
	PublicKey   string `yaml:"public_key"`
	PrivateKey  string `yaml:"private_key"`
	BearerToken string `yaml:"bearer_token"`
}

// Cache holds the byte-bounded LRU's tunables.
type Cache struct {
	TTLSeconds int   `yaml:"ttl_seconds"`
	MaxBytes   int64 `yaml:"max_bytes"`
}

// TTL returns the cache TTL as a time.Duration, defaulting to 60s if unset.
func (c Cache) TTL() time.Duration {
	if c.TTLSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.TTLSeconds) * time.Second
}

// StoreVariant discriminates between the S3 and Azure store adapters.
type StoreVariant string

const (
	VariantS3    StoreVariant = "s3"
	VariantAzure StoreVariant = "azure"
)

// Store is a single entry of the `stores` config map: one bucket_id's
// adapter descriptor.
type Store struct {
	Variant StoreVariant `yaml:"variant"`

	// S3 fields
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Endpoint  string `yaml:"endpoint"`
	AllowHTTP bool   `yaml:"allow_http"`

	// Azure fields
	Container        string `yaml:"container"`
	ConnectionString string `yaml:"connection_string"`
}

// Config is the immutable, fully-resolved startup configuration.
type Config struct {
	Listen string           `yaml:"listen"`
	Auth   Auth             `yaml:"auth"`
	Cache  Cache            `yaml:"cache"`
	Stores map[string]Store `yaml:"stores"`

	RateLimitEnabled     bool `yaml:"-"`
	RateLimitRPM         int  `yaml:"-"`
	RateLimitBurst       int  `yaml:"-"`
	RequestTimeoutSecond int  `yaml:"-"`
}

// RequestTimeout returns the configured per-request timeout, defaulting to
// 30s if unset or non-positive.
func (c Config) RequestTimeout() time.Duration {
	if c.RequestTimeoutSecond <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.RequestTimeoutSecond) * time.Second
}

// Load resolves configuration from the single positional CLI argument:
// either a path to a YAML config file, or the literal string "env", in
// which case every field is sourced from environment variables. .env is
// loaded best-effort first, matching the gateway's bootstrap behavior, so
// local development can rely on a dotfile without exporting vars manually.
func Load(arg string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// Absence of a .env file is normal in production; only log would be
		// noisy here, so this is silently ignored like most .env loaders.
		_ = err
	}

	if arg == "" || arg == "env" {
		return loadFromEnv()
	}
	return loadFromFile(arg)
}

func loadFromFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyEnvOverrides(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFromEnv() (*Config, error) {
	cfg := Config{
		Listen: getEnv("CACHEGATE_LISTEN", ":8080"),
		Auth: Auth{
			PublicKey:   os.Getenv("CACHEGATE_AUTH_PUBLIC_KEY"),
			PrivateKey:  os.Getenv("CACHEGATE_AUTH_PRIVATE_KEY"),
			BearerToken: os.Getenv("CACHEGATE_AUTH_BEARER_TOKEN"),
		},
		Cache: Cache{
			TTLSeconds: getEnvAsInt("CACHEGATE_CACHE_TTL_SECONDS", 60),
			MaxBytes:   getEnvAsInt64("CACHEGATE_CACHE_MAX_BYTES", 256<<20),
		},
		RateLimitEnabled:     getEnvAsBool("CACHEGATE_RATE_LIMIT_ENABLED", false),
		RateLimitRPM:         getEnvAsInt("CACHEGATE_RATE_LIMIT_RPM", 600),
		RateLimitBurst:       getEnvAsInt("CACHEGATE_RATE_LIMIT_BURST", 100),
		RequestTimeoutSecond: getEnvAsInt("CACHEGATE_REQUEST_TIMEOUT_SECONDS", 30),
	}

	stores, err := storesFromEnv()
	if err != nil {
		return nil, err
	}
	cfg.Stores = stores

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// storesFromEnv reads CACHEGATE_STORES as a comma-separated list of bucket
// ids, then one CACHEGATE_STORE_<ID>_* group per id. This mirrors the
// gateway's per-feature env-var grouping (e.g. RATE_LIMIT_<TIER>_RPM) rather
// than inventing a nested env encoding.
func storesFromEnv() (map[string]Store, error) {
	idsRaw := os.Getenv("CACHEGATE_STORES")
	if idsRaw == "" {
		return map[string]Store{}, nil
	}
	stores := make(map[string]Store)
	for _, id := range strings.Split(idsRaw, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		prefix := "CACHEGATE_STORE_" + strings.ToUpper(id) + "_"
		variant := StoreVariant(strings.ToLower(os.Getenv(prefix + "VARIANT")))
		switch variant {
		case VariantS3:
			stores[id] = Store{
				Variant:   VariantS3,
				Bucket:    os.Getenv(prefix + "BUCKET"),
				Region:    os.Getenv(prefix + "REGION"),
				AccessKey: os.Getenv(prefix + "ACCESS_KEY"),
				SecretKey: os.Getenv(prefix + "SECRET_KEY"),
				Endpoint:  os.Getenv(prefix + "ENDPOINT"),
				AllowHTTP: getEnvAsBool(prefix+"ALLOW_HTTP", false),
			}
		case VariantAzure:
			stores[id] = Store{
				Variant:          VariantAzure,
				Container:        os.Getenv(prefix + "CONTAINER"),
				ConnectionString: os.Getenv(prefix + "CONNECTION_STRING"),
			}
		default:
			return nil, fmt.Errorf("config: store %q has unknown or missing variant %q", id, variant)
		}
	}
	return stores, nil
}

// applyEnvOverrides lets environment variables win over file values, the
// same override order the gateway's env-first getters assume.
func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("CACHEGATE_LISTEN"); ok {
		cfg.Listen = v
	}
	if v, ok := os.LookupEnv("CACHEGATE_AUTH_PUBLIC_KEY"); ok {
		cfg.Auth.PublicKey = v
	}
	if v, ok := os.LookupEnv("CACHEGATE_AUTH_PRIVATE_KEY"); ok {
		cfg.Auth.PrivateKey = v
	}
	if v, ok := os.LookupEnv("CACHEGATE_AUTH_BEARER_TOKEN"); ok {
		cfg.Auth.BearerToken = v
	}
	if v := getEnvAsInt("CACHEGATE_CACHE_TTL_SECONDS", 0); v > 0 {
		cfg.Cache.TTLSeconds = v
	}
	if v := getEnvAsInt64("CACHEGATE_CACHE_MAX_BYTES", 0); v > 0 {
		cfg.Cache.MaxBytes = v
	}
	cfg.RateLimitEnabled = getEnvAsBool("CACHEGATE_RATE_LIMIT_ENABLED", cfg.RateLimitEnabled)
	cfg.RateLimitRPM = getEnvAsInt("CACHEGATE_RATE_LIMIT_RPM", cfg.RateLimitRPM)
	cfg.RateLimitBurst = getEnvAsInt("CACHEGATE_RATE_LIMIT_BURST", cfg.RateLimitBurst)
	cfg.RequestTimeoutSecond = getEnvAsInt("CACHEGATE_REQUEST_TIMEOUT_SECONDS", cfg.RequestTimeoutSecond)
}

func validate(cfg *Config) error {
	if cfg.Auth.PublicKey == "" || cfg.Auth.PrivateKey == "" {
		return fmt.Errorf("config: auth.public_key and auth.private_key are required")
	}
	if cfg.Cache.MaxBytes <= 0 {
		return fmt.Errorf("config: cache.max_bytes must be positive")
	}
	if len(cfg.Stores) == 0 {
		return fmt.Errorf("config: at least one store must be configured")
	}
	for id, s := range cfg.Stores {
		switch s.Variant {
		case VariantS3:
			if s.Bucket == "" {
				return fmt.Errorf("config: store %q: bucket is required", id)
			}
		case VariantAzure:
			if s.Container == "" || s.ConnectionString == "" {
				return fmt.Errorf("config: store %q: container and connection_string are required", id)
			}
		default:
			return fmt.Errorf("config: store %q: unknown variant %q", id, s.Variant)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvAsInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvAsBool(key string, fallback bool) bool {
	v := strings.ToLower(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v == "true" || v == "1"
}
