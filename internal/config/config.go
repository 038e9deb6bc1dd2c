package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Store         StoreConfig
	LLM           LLMConfig
	Cache         CacheConfig
	Resolver      ResolverConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// StoreConfig selects the relational store the pipeline executes against.
// Driver must be one of the registered database/sql drivers: sqlite, pgx, duckdb.
type StoreConfig struct {
	Driver string
	DSN    string
}

type LLMConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// CacheConfig points at the Redis backend for resolved responses.
// An empty Address disables caching entirely.
type CacheConfig struct {
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

// ResolverConfig bounds the resolution pipeline: RetryBudget is the number of
// correction rounds after the first generation attempt, RetrievalK the number
// of schema tables retrieved as prompt context.
type ResolverConfig struct {
	RetryBudget    int
	RetrievalK     int
	ResolveTimeout time.Duration
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

// LogValue renders a startup summary of the configuration. API keys, the
// cache password, and the store DSN are omitted.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("profile", string(c.Profile)),
		slog.String("http_addr", c.HTTP.Address),
		slog.String("store_driver", c.Store.Driver),
		slog.String("llm_model", c.LLM.Model),
		slog.Bool("cache_enabled", c.Cache.Address != ""),
		slog.Duration("cache_ttl", c.Cache.TTL),
		slog.Int("retry_budget", c.Resolver.RetryBudget),
		slog.Int("retrieval_k", c.Resolver.RetrievalK),
		slog.Bool("auth_required", c.Auth.Required),
	)
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("SQLPILOT_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid SQLPILOT_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	env := envReader{lookup: lookup}
	env.stringVar(&cfg.Service.Name, "SQLPILOT_SERVICE_NAME")
	env.stringVar(&cfg.HTTP.Address, "SQLPILOT_HTTP_ADDR")
	env.durationVar(&cfg.HTTP.ReadTimeout, "SQLPILOT_HTTP_READ_TIMEOUT")
	env.durationVar(&cfg.HTTP.WriteTimeout, "SQLPILOT_HTTP_WRITE_TIMEOUT")
	env.durationVar(&cfg.HTTP.IdleTimeout, "SQLPILOT_HTTP_IDLE_TIMEOUT")
	env.stringVar(&cfg.Store.Driver, "SQLPILOT_STORE_DRIVER")
	env.stringVar(&cfg.Store.DSN, "SQLPILOT_STORE_DSN")
	env.stringVar(&cfg.LLM.BaseURL, "SQLPILOT_LLM_BASE_URL")
	env.stringVar(&cfg.LLM.APIKey, "SQLPILOT_LLM_API_KEY")
	env.stringVar(&cfg.LLM.Model, "SQLPILOT_LLM_MODEL")
	env.floatVar(&cfg.LLM.Temperature, "SQLPILOT_LLM_TEMPERATURE")
	env.durationVar(&cfg.LLM.Timeout, "SQLPILOT_LLM_TIMEOUT")
	env.stringVar(&cfg.Cache.Address, "SQLPILOT_CACHE_ADDR")
	env.stringVar(&cfg.Cache.Password, "SQLPILOT_CACHE_PASSWORD")
	env.intVar(&cfg.Cache.DB, "SQLPILOT_CACHE_DB")
	env.durationVar(&cfg.Cache.TTL, "SQLPILOT_CACHE_TTL")
	env.intVar(&cfg.Resolver.RetryBudget, "SQLPILOT_RETRY_BUDGET")
	env.intVar(&cfg.Resolver.RetrievalK, "SQLPILOT_RETRIEVAL_K")
	env.durationVar(&cfg.Resolver.ResolveTimeout, "SQLPILOT_RESOLVE_TIMEOUT")
	env.boolVar(&cfg.Observability.LogJSON, "SQLPILOT_LOG_JSON")
	env.levelVar(&cfg.Observability.LogLevel, "SQLPILOT_LOG_LEVEL")
	env.boolVar(&cfg.Auth.Required, "SQLPILOT_AUTH_REQUIRED")
	env.stringVar(&cfg.Auth.StaticKeys, "SQLPILOT_AUTH_STATIC_KEYS")
	if err := env.err(); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Service.Name == "" {
		return errors.New("service name is required")
	}
	if c.HTTP.Address == "" {
		return errors.New("http address is required")
	}
	if !isKnownDriver(c.Store.Driver) {
		return fmt.Errorf("invalid SQLPILOT_STORE_DRIVER: %q", c.Store.Driver)
	}
	if c.Store.DSN == "" {
		return errors.New("store dsn is required")
	}
	if c.Resolver.RetryBudget < 0 {
		return errors.New("invalid SQLPILOT_RETRY_BUDGET: must be >= 0")
	}
	if c.Resolver.RetrievalK < 1 {
		return errors.New("invalid SQLPILOT_RETRIEVAL_K: must be >= 1")
	}
	if c.Cache.TTL <= 0 {
		return errors.New("invalid SQLPILOT_CACHE_TTL: must be > 0")
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "sqlpilot-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 150 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    "ecommerce.db",
		},
		LLM: LLMConfig{
			BaseURL:     "https://api.openai.com",
			Model:       "gpt-5",
			Temperature: 0.1,
			Timeout:     15 * time.Second,
		},
		Cache: CacheConfig{
			Address: "",
			DB:      0,
			TTL:     time.Hour,
		},
		Resolver: ResolverConfig{
			RetryBudget:    2,
			RetrievalK:     3,
			ResolveTimeout: 2 * time.Minute,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
		Auth: AuthConfig{
			Required:   false,
			StaticKeys: "",
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Auth.Required = false
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func isKnownDriver(driver string) bool {
	switch driver {
	case "sqlite", "pgx", "duckdb":
		return true
	default:
		return false
	}
}

// envReader applies environment overrides onto a Config, collecting every
// malformed value instead of stopping at the first.
type envReader struct {
	lookup LookupFunc
	errs   []error
}

func (r *envReader) stringVar(dst *string, key string) {
	if raw, ok := r.lookup(key); ok {
		*dst = strings.TrimSpace(raw)
	}
}

func (r *envReader) intVar(dst *int, key string) {
	parseVar(r, dst, key, strconv.Atoi)
}

func (r *envReader) floatVar(dst *float64, key string) {
	parseVar(r, dst, key, func(raw string) (float64, error) {
		return strconv.ParseFloat(raw, 64)
	})
}

func (r *envReader) boolVar(dst *bool, key string) {
	parseVar(r, dst, key, strconv.ParseBool)
}

func (r *envReader) durationVar(dst *time.Duration, key string) {
	parseVar(r, dst, key, time.ParseDuration)
}

func (r *envReader) levelVar(dst *slog.Level, key string) {
	parseVar(r, dst, key, parseLogLevel)
}

func (r *envReader) err() error {
	return errors.Join(r.errs...)
}

func parseVar[T any](r *envReader, dst *T, key string, parse func(string) (T, error)) {
	raw, ok := r.lookup(key)
	if !ok {
		return
	}
	value, err := parse(strings.TrimSpace(raw))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: %w", key, err))
		return
	}
	*dst = value
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown level %q", raw)
	}
}
