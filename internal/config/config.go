// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Dashboard   DashboardConfig   `mapstructure:"dashboard"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Crawler     CrawlerConfig     `mapstructure:"crawler"`
	Headless    HeadlessConfig    `mapstructure:"headless"`
	Mosva       MosvaConfig       `mapstructure:"mosva"`
	Media       MediaConfig       `mapstructure:"media"`
	Enrichment  EnrichmentConfig  `mapstructure:"enrichment"`
	Marketplace MarketplaceConfig `mapstructure:"marketplace"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Publisher   PublisherConfig   `mapstructure:"publisher"`
	Progress    ProgressConfig    `mapstructure:"progress"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// DashboardConfig controls the REST and WebSocket listener.
type DashboardConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	AutoRefreshSeconds int    `mapstructure:"auto_refresh"`
	ErrorRefreshSecs   int    `mapstructure:"error_refresh"`
	RequestTimeoutSecs int    `mapstructure:"request_timeout"`
}

// Addr joins host and port for http.Server.
func (d DashboardConfig) Addr() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs fetch politeness and session scheduling.
type CrawlerConfig struct {
	MaxWorkers       int      `mapstructure:"max_workers"`
	RateLimitDelay   float64  `mapstructure:"rate_limit_delay"`
	UserAgent        string   `mapstructure:"user_agent"`
	RespectRobots    bool     `mapstructure:"respect_robots"`
	TimeoutSeconds   int      `mapstructure:"timeout_seconds"`
	MaxRetries       int      `mapstructure:"max_retries"`
	BackoffInitialMs int      `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int      `mapstructure:"backoff_max_ms"`
	MaxBodyBytes     int      `mapstructure:"max_body_bytes"`
	QueueDepth       int      `mapstructure:"queue_depth"`
	SessionWorkers   int      `mapstructure:"session_workers"`
	BlockedDomains   []string `mapstructure:"blocked_domains"`
}

// Delay converts RateLimitDelay seconds to a duration.
func (c CrawlerConfig) Delay() time.Duration {
	return time.Duration(c.RateLimitDelay * float64(time.Second))
}

// HeadlessConfig configures the chromedp renderer.
type HeadlessConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	MaxParallel       int  `mapstructure:"max_parallel"`
	NavTimeoutSeconds int  `mapstructure:"nav_timeout_seconds"`
	PromotionThresh   int  `mapstructure:"promotion_threshold"`
	ScrollPasses      int  `mapstructure:"scroll_passes"`
}

// MosvaConfig points at the scraped member directory.
type MosvaConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// MediaConfig bounds photo and document collection.
type MediaConfig struct {
	MaxPhotosPerVessel int      `mapstructure:"max_photos_per_vessel"`
	MaxFileBytes       int64    `mapstructure:"max_file_bytes"`
	Prefix             string   `mapstructure:"prefix"`
	TrustedHosts       []string `mapstructure:"trusted_hosts"`
}

// EnrichmentConfig controls IMO lookups.
type EnrichmentConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
	SkipAfterFailures int           `mapstructure:"skip_after_failures"`
	SkipCooldown      time.Duration `mapstructure:"skip_cooldown"`
}

// MarketplaceConfig toggles the listing sync phase.
type MarketplaceConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// StorageConfig selects the media blob backend.
type StorageConfig struct {
	Backend string             `mapstructure:"backend"`
	Local   LocalStorageConfig `mapstructure:"local"`
	GCS     GCSStorageConfig   `mapstructure:"gcs"`
	Minio   MinioStorageConfig `mapstructure:"minio"`
}

// LocalStorageConfig writes blobs under a directory.
type LocalStorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// GCSStorageConfig writes blobs to a Cloud Storage bucket.
type GCSStorageConfig struct {
	Bucket string `mapstructure:"bucket"`
}

// MinioStorageConfig writes blobs to an S3-compatible endpoint.
type MinioStorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// CacheConfig selects the IMO lookup cache.
type CacheConfig struct {
	Backend string      `mapstructure:"backend"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig addresses the Redis cache.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// DatabaseConfig controls access to PostgreSQL.
type DatabaseConfig struct {
	DSN         string `mapstructure:"dsn"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	Name        string `mapstructure:"name"`
	SSLMode     string `mapstructure:"sslmode"`
	MaxConns    int    `mapstructure:"max_conns"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// ConnString returns DSN, or assembles one from the discrete fields. It is
// empty when neither is configured.
func (d DatabaseConfig) ConnString() string {
	if d.DSN != "" {
		return d.DSN
	}
	if d.Host == "" {
		return ""
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Name,
	}
	if d.User != "" {
		if d.Password != "" {
			u.User = url.UserPassword(d.User, d.Password)
		} else {
			u.User = url.User(d.User)
		}
	}
	if d.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{d.SSLMode}}.Encode()
	}
	return u.String()
}

// PublisherConfig selects where vessel and session events are published.
type PublisherConfig struct {
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ProgressConfig tunes the progress hub batching.
type ProgressConfig struct {
	BufferSize     int `mapstructure:"buffer_size"`
	MaxBatchEvents int `mapstructure:"max_batch_events"`
	MaxBatchWaitMs int `mapstructure:"max_batch_wait_ms"`
}

// LoggingConfig selects the zap flavor and level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Env names kept from earlier deployments.
var legacyEnv = map[string]string{
	"crawler.max_workers":      "OSV_MAX_WORKERS",
	"crawler.rate_limit_delay": "OSV_RATE_LIMIT",
	"dashboard.host":           "DASHBOARD_HOST",
	"dashboard.port":           "DASHBOARD_PORT",
	"logging.level":            "LOG_LEVEL",
	"mosva.data_dir":           "OSV_DATA_DIR",
	"storage.local.base_dir":   "OSV_MEDIA_DIR",
	"database.dsn":             "DATABASE_URL",
}

// Load builds a Config from .env, disk and the environment.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("OSV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dashboard.host", "0.0.0.0")
	v.SetDefault("dashboard.port", 8000)
	v.SetDefault("dashboard.auto_refresh", 30)
	v.SetDefault("dashboard.error_refresh", 60)
	v.SetDefault("dashboard.request_timeout", 30)
	v.SetDefault("crawler.max_workers", 4)
	v.SetDefault("crawler.rate_limit_delay", 1.5)
	v.SetDefault("crawler.user_agent", "Mozilla/5.0 (compatible; osv-discovery/1.0)")
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.timeout_seconds", 30)
	v.SetDefault("crawler.max_retries", 3)
	v.SetDefault("crawler.backoff_initial_ms", 250)
	v.SetDefault("crawler.backoff_max_ms", 5000)
	v.SetDefault("crawler.max_body_bytes", 10<<20)
	v.SetDefault("crawler.queue_depth", 16)
	v.SetDefault("crawler.session_workers", 1)
	v.SetDefault("crawler.blocked_domains", []string{
		"facebook.com", "linkedin.com", "twitter.com", "x.com",
		"instagram.com", "youtube.com", "*.google.com",
	})
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("headless.scroll_passes", 2)
	v.SetDefault("mosva.data_dir", "./data")
	v.SetDefault("media.max_photos_per_vessel", 5)
	v.SetDefault("media.max_file_bytes", 25<<20)
	v.SetDefault("media.prefix", "vessels")
	v.SetDefault("media.trusted_hosts", []string{"shipspotting.com", "marinetraffic.com", "vesselfinder.com"})
	v.SetDefault("enrichment.enabled", true)
	v.SetDefault("enrichment.cache_ttl", 24*time.Hour)
	v.SetDefault("enrichment.skip_after_failures", 5)
	v.SetDefault("enrichment.skip_cooldown", 10*time.Minute)
	v.SetDefault("marketplace.enabled", true)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local.base_dir", "./media")
	v.SetDefault("storage.minio.use_ssl", true)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.key_prefix", "osv:imo:")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "require")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.auto_migrate", false)
	v.SetDefault("publisher.backend", "memory")
	v.SetDefault("publisher.topic", "osv-discovery-events")
	v.SetDefault("progress.buffer_size", 4096)
	v.SetDefault("progress.max_batch_events", 200)
	v.SetDefault("progress.max_batch_wait_ms", 500)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Dashboard.Port <= 0 {
		return fmt.Errorf("dashboard.port must be > 0")
	}
	if c.Dashboard.AutoRefreshSeconds <= 0 {
		return fmt.Errorf("dashboard.auto_refresh must be > 0")
	}
	if c.Crawler.MaxWorkers <= 0 {
		return fmt.Errorf("crawler.max_workers must be > 0")
	}
	if c.Crawler.RateLimitDelay < 0 {
		return fmt.Errorf("crawler.rate_limit_delay must be >= 0")
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.timeout_seconds must be > 0")
	}
	if c.Crawler.SessionWorkers <= 0 {
		return fmt.Errorf("crawler.session_workers must be > 0")
	}
	if c.Crawler.QueueDepth <= 0 {
		return fmt.Errorf("crawler.queue_depth must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Media.MaxPhotosPerVessel < 0 {
		return fmt.Errorf("media.max_photos_per_vessel must be >= 0")
	}
	switch c.Storage.Backend {
	case "local", "memory":
	case "gcs":
		if c.Storage.GCS.Bucket == "" {
			return fmt.Errorf("storage.gcs.bucket must be set for the gcs backend")
		}
	case "minio":
		if c.Storage.Minio.Endpoint == "" || c.Storage.Minio.Bucket == "" {
			return fmt.Errorf("storage.minio.endpoint and storage.minio.bucket must be set for the minio backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of local|gcs|minio|memory, got %q", c.Storage.Backend)
	}
	switch c.Cache.Backend {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("cache.backend must be one of memory|redis|none, got %q", c.Cache.Backend)
	}
	switch c.Publisher.Backend {
	case "memory", "none":
	case "pubsub":
		if c.Publisher.ProjectID == "" || c.Publisher.Topic == "" {
			return fmt.Errorf("publisher.project_id and publisher.topic must be set for the pubsub backend")
		}
	default:
		return fmt.Errorf("publisher.backend must be one of memory|pubsub|none, got %q", c.Publisher.Backend)
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// FetchTimeout converts the crawler timeout to a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}
