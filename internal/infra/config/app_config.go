// Package config manages application configuration loading and validation.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envStorefrontDomain = "STOREFRONT_DOMAIN"
	envStorefrontToken  = "STOREFRONT_ACCESS_TOKEN"
	envAssistantKey     = "ASSISTANT_API_KEY"
	envDatabaseDSN      = "STOREFRONT_DATABASE_DSN"
)

// APIServerConfig configures the storefront's HTTP surface.
type APIServerConfig struct {
	Addr string `yaml:"addr"`
}

// StorefrontConfig describes the remote commerce Storefront API.
type StorefrontConfig struct {
	Domain            string        `yaml:"domain"`
	APIVersion        string        `yaml:"apiVersion"`
	AccessToken       string        `yaml:"accessToken"`
	Channel           string        `yaml:"channel"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	Burst             int           `yaml:"burst"`
}

// Enabled reports whether a remote store has been configured.
func (c StorefrontConfig) Enabled() bool {
	return strings.TrimSpace(c.Domain) != ""
}

// Endpoint returns the GraphQL endpoint for the configured store.
func (c StorefrontConfig) Endpoint() string {
	domain := strings.TrimRight(strings.TrimSpace(c.Domain), "/")
	if !strings.Contains(domain, "://") {
		domain = "https://" + domain
	}
	return fmt.Sprintf("%s/api/%s/graphql.json", domain, c.APIVersion)
}

func (c *StorefrontConfig) applyDefaults() {
	c.Domain = strings.TrimSpace(c.Domain)
	if c.Domain == "" {
		c.Domain = strings.TrimSpace(os.Getenv(envStorefrontDomain))
	}
	c.AccessToken = strings.TrimSpace(c.AccessToken)
	if c.AccessToken == "" {
		c.AccessToken = strings.TrimSpace(os.Getenv(envStorefrontToken))
	}
	c.APIVersion = strings.TrimSpace(c.APIVersion)
	if c.APIVersion == "" {
		c.APIVersion = "2025-07"
	}
	c.Channel = strings.TrimSpace(c.Channel)
	if c.Channel == "" {
		c.Channel = "online_store"
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 4
	}
	if c.Burst <= 0 {
		c.Burst = 4
	}
}

func (c StorefrontConfig) validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.AccessToken == "" {
		return fmt.Errorf("accessToken required when domain is set")
	}
	if _, err := url.Parse(c.Endpoint()); err != nil {
		return fmt.Errorf("invalid domain %q: %w", c.Domain, err)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be >0")
	}
	return nil
}

// CartConfig controls cart persistence keys and checkout behaviour.
type CartConfig struct {
	StorageKey      string        `yaml:"storageKey"`
	DemoStorageKey  string        `yaml:"demoStorageKey"`
	CheckoutTimeout time.Duration `yaml:"checkoutTimeout"`
	DefaultCurrency string        `yaml:"defaultCurrency"`
	// SessionIdleTimeout is how long an unused session stays cached before
	// its carts are flushed and released.
	SessionIdleTimeout   time.Duration `yaml:"sessionIdleTimeout"`
	SessionSweepInterval time.Duration `yaml:"sessionSweepInterval"`
}

func (c *CartConfig) applyDefaults() {
	c.StorageKey = strings.TrimSpace(c.StorageKey)
	if c.StorageKey == "" {
		c.StorageKey = "shopify-cart-storage"
	}
	c.DemoStorageKey = strings.TrimSpace(c.DemoStorageKey)
	if c.DemoStorageKey == "" {
		c.DemoStorageKey = "demo-cart-storage"
	}
	if c.CheckoutTimeout <= 0 {
		c.CheckoutTimeout = 20 * time.Second
	}
	if c.SessionIdleTimeout <= 0 {
		c.SessionIdleTimeout = 30 * time.Minute
	}
	if c.SessionSweepInterval <= 0 {
		c.SessionSweepInterval = time.Minute
	}
	c.DefaultCurrency = strings.ToUpper(strings.TrimSpace(c.DefaultCurrency))
	if c.DefaultCurrency == "" {
		c.DefaultCurrency = "USD"
	}
}

func (c CartConfig) validate() error {
	if c.StorageKey == c.DemoStorageKey {
		return fmt.Errorf("storageKey and demoStorageKey must differ")
	}
	if c.CheckoutTimeout <= 0 {
		return fmt.Errorf("checkoutTimeout must be >0")
	}
	return nil
}

// FileStorageConfig configures the file snapshot backend.
type FileStorageConfig struct {
	Dir string `yaml:"dir"`
}

// RedisConfig configures the Redis snapshot backend.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	DB        int           `yaml:"db"`
	Password  string        `yaml:"password"`
	KeyPrefix string        `yaml:"keyPrefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// DatabaseConfig controls PostgreSQL connectivity and migration behaviour.
type DatabaseConfig struct {
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"maxConns"`
	MinConns          int32         `yaml:"minConns"`
	MaxConnLifetime   time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime   time.Duration `yaml:"maxConnIdleTime"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod"`
	RunMigrations     bool          `yaml:"runMigrations"`
}

func (c *DatabaseConfig) applyDefaults() {
	c.DSN = strings.TrimSpace(c.DSN)
	if c.DSN == "" {
		c.DSN = strings.TrimSpace(os.Getenv(envDatabaseDSN))
	}
	if c.DSN == "" {
		c.DSN = "postgresql://localhost:5432/storefront"
	}
	if c.MaxConns <= 0 {
		c.MaxConns = 8
	}
	if c.MinConns <= 0 {
		c.MinConns = 1
	}
	if c.MinConns > c.MaxConns {
		c.MinConns = c.MaxConns
	}
	if c.MaxConnLifetime <= 0 {
		c.MaxConnLifetime = 30 * time.Minute
	}
	if c.MaxConnIdleTime <= 0 {
		c.MaxConnIdleTime = 5 * time.Minute
	}
	if c.HealthCheckPeriod <= 0 {
		c.HealthCheckPeriod = 30 * time.Second
	}
}

func (c DatabaseConfig) validate() error {
	if strings.TrimSpace(c.DSN) == "" {
		return fmt.Errorf("dsn required")
	}
	if c.MaxConns <= 0 {
		return fmt.Errorf("maxConns must be >0")
	}
	if c.MinConns < 0 {
		return fmt.Errorf("minConns must be >=0")
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("minConns must be <= maxConns")
	}
	if c.MaxConnLifetime <= 0 {
		return fmt.Errorf("maxConnLifetime must be >0")
	}
	if c.MaxConnIdleTime <= 0 {
		return fmt.Errorf("maxConnIdleTime must be >0")
	}
	if c.HealthCheckPeriod <= 0 {
		return fmt.Errorf("healthCheckPeriod must be >0")
	}
	return nil
}

// StorageConfig selects and configures the snapshot backend.
type StorageConfig struct {
	Driver   StorageDriver     `yaml:"driver"`
	File     FileStorageConfig `yaml:"file"`
	Redis    RedisConfig       `yaml:"redis"`
	Database DatabaseConfig    `yaml:"database"`
}

func (c *StorageConfig) applyDefaults() {
	c.Driver = normalizeDriver(string(c.Driver))
	c.File.Dir = strings.TrimSpace(c.File.Dir)
	if c.File.Dir == "" {
		c.File.Dir = "data/carts"
	}
	c.File.Dir = filepath.Clean(c.File.Dir)
	c.Redis.Addr = strings.TrimSpace(c.Redis.Addr)
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if !strings.Contains(c.Redis.Addr, ":") && !strings.Contains(c.Redis.Addr, "://") {
		c.Redis.Addr += ":6379"
	}
	c.Redis.KeyPrefix = strings.TrimSpace(c.Redis.KeyPrefix)
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "storefront:"
	}
	c.Database.applyDefaults()
}

func (c StorageConfig) validate() error {
	switch c.Driver {
	case StorageMemory:
	case StorageFile:
		if c.File.Dir == "" {
			return fmt.Errorf("file dir required")
		}
	case StorageRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis addr required")
		}
		if c.Redis.DB < 0 {
			return fmt.Errorf("redis db must be >=0")
		}
		if c.Redis.TTL < 0 {
			return fmt.Errorf("redis ttl must be >=0")
		}
	case StoragePostgres:
		if err := c.Database.validate(); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	default:
		return fmt.Errorf("driver must be one of memory, file, redis, postgres")
	}
	return nil
}

// AssistantConfig configures the chat gateway proxy.
type AssistantConfig struct {
	GatewayURL   string        `yaml:"gatewayURL"`
	APIKey       string        `yaml:"apiKey"`
	Model        string        `yaml:"model"`
	SystemPrompt string        `yaml:"systemPrompt"`
	Timeout      time.Duration `yaml:"timeout"`
}

// Enabled reports whether a gateway has been configured.
func (c AssistantConfig) Enabled() bool {
	return strings.TrimSpace(c.GatewayURL) != ""
}

func (c *AssistantConfig) applyDefaults() {
	c.GatewayURL = strings.TrimSpace(c.GatewayURL)
	c.APIKey = strings.TrimSpace(c.APIKey)
	if c.APIKey == "" {
		c.APIKey = strings.TrimSpace(os.Getenv(envAssistantKey))
	}
	c.Model = strings.TrimSpace(c.Model)
	if c.Model == "" {
		c.Model = "google/gemini-2.5-flash"
	}
	c.SystemPrompt = strings.TrimSpace(c.SystemPrompt)
	if c.SystemPrompt == "" {
		c.SystemPrompt = defaultSystemPrompt
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
}

func (c AssistantConfig) validate() error {
	if !c.Enabled() {
		return nil
	}
	parsed, err := url.Parse(c.GatewayURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("gatewayURL must be an absolute URL")
	}
	if c.APIKey == "" {
		return fmt.Errorf("apiKey required when gatewayURL is set")
	}
	return nil
}

const defaultSystemPrompt = "You are the concierge of a fine jewelry house. " +
	"Help customers choose rings, necklaces, earrings and bracelets, explain materials and care, " +
	"and keep answers short and warm."

// TelemetryConfig configures OTLP exporters (metrics only).
type TelemetryConfig struct {
	OTLPEndpoint  string `yaml:"otlpEndpoint"`
	ServiceName   string `yaml:"serviceName"`
	OTLPInsecure  bool   `yaml:"otlpInsecure"`
	EnableMetrics bool   `yaml:"enableMetrics"`
}

// AppConfig is the unified storefront configuration sourced from YAML.
type AppConfig struct {
	Environment Environment      `yaml:"environment"`
	APIServer   APIServerConfig  `yaml:"apiServer"`
	Storefront  StorefrontConfig `yaml:"storefront"`
	Cart        CartConfig       `yaml:"cart"`
	Storage     StorageConfig    `yaml:"storage"`
	Assistant   AssistantConfig  `yaml:"assistant"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
}

// Default returns a normalised configuration suitable for local development.
func Default() AppConfig {
	cfg := AppConfig{
		Environment: EnvDev,
		APIServer:   APIServerConfig{Addr: ":8080"},
		Telemetry:   TelemetryConfig{ServiceName: "storefront"},
	}
	_ = cfg.normalise()
	return cfg
}

// Load reads and validates an AppConfig from the provided YAML file.
func Load(ctx context.Context, configPath string) (AppConfig, error) {
	_ = ctx

	reader, closer, err := openConfigFile(configPath)
	if err != nil {
		return AppConfig{}, err
	}
	defer closer()

	bytes, err := io.ReadAll(reader)
	if err != nil {
		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(bytes, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.normalise(); err != nil {
		return AppConfig{}, err
	}

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// LoadOrDefault loads the configuration at configPath, falling back to Default
// when the file does not exist. The boolean reports whether the file was read.
func LoadOrDefault(ctx context.Context, configPath string) (AppConfig, bool, error) {
	cfg, err := Load(ctx, configPath)
	if err == nil {
		return cfg, true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		fallback := Default()
		if vErr := fallback.Validate(); vErr != nil {
			return AppConfig{}, false, vErr
		}
		return fallback, false, nil
	}
	return AppConfig{}, false, err
}

func (c *AppConfig) normalise() error {
	c.Environment = Environment(strings.ToLower(strings.TrimSpace(string(c.Environment))))
	if c.Environment == "" {
		c.Environment = EnvDev
	}
	c.APIServer.Addr = strings.TrimSpace(c.APIServer.Addr)
	if c.APIServer.Addr == "" {
		c.APIServer.Addr = ":8080"
	}
	c.Telemetry.OTLPEndpoint = strings.TrimSpace(c.Telemetry.OTLPEndpoint)
	c.Telemetry.ServiceName = strings.TrimSpace(c.Telemetry.ServiceName)
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "storefront"
	}

	c.Storefront.applyDefaults()
	c.Cart.applyDefaults()
	c.Storage.applyDefaults()
	c.Assistant.applyDefaults()
	return nil
}

// Validate performs semantic validation on the configuration.
func (c AppConfig) Validate() error {
	switch c.Environment {
	case EnvDev, EnvStaging, EnvProd:
	default:
		return fmt.Errorf("environment must be one of dev, staging, prod")
	}

	if strings.TrimSpace(c.APIServer.Addr) == "" {
		return fmt.Errorf("apiServer addr required")
	}
	if err := c.Storefront.validate(); err != nil {
		return fmt.Errorf("storefront: %w", err)
	}
	if err := c.Cart.validate(); err != nil {
		return fmt.Errorf("cart: %w", err)
	}
	if err := c.Storage.validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Assistant.validate(); err != nil {
		return fmt.Errorf("assistant: %w", err)
	}
	if strings.TrimSpace(c.Telemetry.ServiceName) == "" {
		return fmt.Errorf("telemetry serviceName required")
	}
	return nil
}

func openConfigFile(path string) (io.Reader, func(), error) {
	candidate := strings.TrimSpace(path)
	candidate = filepath.Clean(candidate)

	file, err := os.Open(candidate) // #nosec G304 -- path is operator controlled.
	if err != nil {
		return nil, nil, fmt.Errorf("open app config: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}
