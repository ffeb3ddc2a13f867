package config

import (
	"fmt"
	"math"
	"os"
	"reflect"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	YtDlp    YtDlpConfig    `yaml:"ytdlp"`
	Store    StoreConfig    `yaml:"store"`
	Auth     AuthConfig     `yaml:"auth"`
	Download DownloadConfig `yaml:"download"`
	History  HistoryConfig  `yaml:"history"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host           string        `yaml:"host" envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port           int           `yaml:"port" envconfig:"SERVER_PORT" default:"5000"`
	ReadTimeout    time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout   time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT" default:"60m"`
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"SERVER_REQUEST_TIMEOUT" default:"60m"`
}

// YtDlpConfig holds the external media tool configuration.
type YtDlpConfig struct {
	ExecutablePath string        `yaml:"executable_path" envconfig:"YTDLP_PATH" default:"yt-dlp"`
	FFmpegPath     string        `yaml:"ffmpeg_path" envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	ScratchPath    string        `yaml:"scratch_path" envconfig:"YTDLP_SCRATCH_PATH" default:"/data/downloads"`
	Timeout        time.Duration `yaml:"timeout" envconfig:"YTDLP_TIMEOUT" default:"30m"`
	InfoTimeout    time.Duration `yaml:"info_timeout" envconfig:"YTDLP_INFO_TIMEOUT" default:"2m"`

	// ScratchMinFree is the free space below which the service reports
	// itself not ready, e.g. "512MiB" or "2GB".
	ScratchMinFree string `yaml:"scratch_min_free" envconfig:"YTDLP_SCRATCH_MIN_FREE" default:"512MiB"`
}

// MinFreeBytes parses ScratchMinFree. An empty value means no minimum.
func (c *YtDlpConfig) MinFreeBytes() (int64, error) {
	if c.ScratchMinFree == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(c.ScratchMinFree)
	if err != nil {
		return 0, fmt.Errorf("parse YTDLP_SCRATCH_MIN_FREE: %w", err)
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("YTDLP_SCRATCH_MIN_FREE %q is too large", c.ScratchMinFree)
	}
	return int64(n), nil
}

// StoreConfig holds object store configuration.
type StoreConfig struct {
	// Backend selects the binding: s3 (direct MinIO/S3 client), http (sibling
	// storage service) or memory.
	Backend         string `yaml:"backend" envconfig:"STORE_BACKEND" default:"s3"`
	Endpoint        string `yaml:"endpoint" envconfig:"MINIO_ENDPOINT" default:"minio:9000"`
	AccessKeyID     string `yaml:"access_key_id" envconfig:"MINIO_ROOT_USER"`
	SecretAccessKey string `yaml:"secret_access_key" envconfig:"MINIO_ROOT_PASSWORD"`
	Region          string `yaml:"region" envconfig:"STORE_REGION" default:"us-east-1"`
	UseSSL          bool   `yaml:"use_ssl" envconfig:"STORE_USE_SSL" default:"false"`
	ServiceURL      string `yaml:"service_url" envconfig:"STORE_SERVICE_URL" default:"http://minioservice:5000"`
	Bucket          string `yaml:"bucket" envconfig:"STORE_BUCKET" default:"my-bucket"`

	Timeout       time.Duration `yaml:"timeout" envconfig:"STORE_TIMEOUT" default:"10m"`
	MaxAttempts   int           `yaml:"max_attempts" envconfig:"STORE_MAX_ATTEMPTS" default:"3"`
	RetryDelay    time.Duration `yaml:"retry_delay" envconfig:"STORE_RETRY_DELAY" default:"500ms"`
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" envconfig:"STORE_MAX_RETRY_DELAY" default:"5s"`

	// MissOnCheckError treats a failing existence check as a cache miss
	// instead of aborting the download.
	MissOnCheckError bool `yaml:"miss_on_check_error" envconfig:"STORE_MISS_ON_CHECK_ERROR" default:"false"`
}

// AuthConfig holds bearer token validation configuration.
type AuthConfig struct {
	// Mode selects the validator: jwt (local HMAC verification), remote
	// (auth service /auth/me) or none (every premium request is rejected).
	Mode         string        `yaml:"mode" envconfig:"AUTH_MODE" default:"jwt"`
	JWTSecret    string        `yaml:"jwt_secret" envconfig:"JWT_SECRET"`
	JWTIssuer    string        `yaml:"jwt_issuer" envconfig:"JWT_ISSUER"`
	JWTAudience  string        `yaml:"jwt_audience" envconfig:"JWT_AUDIENCE"`
	ServiceURL   string        `yaml:"service_url" envconfig:"AUTH_SERVICE_URL" default:"http://authservice:5000"`
	Timeout      time.Duration `yaml:"timeout" envconfig:"AUTH_TIMEOUT" default:"10s"`
	AdminRole    string        `yaml:"admin_role" envconfig:"AUTH_ADMIN_ROLE" default:"Admin"`
	PremiumRoles []string      `yaml:"premium_roles" envconfig:"AUTH_PREMIUM_ROLES"`
}

// DownloadConfig holds orchestration configuration.
type DownloadConfig struct {
	// SerializeByKey holds a per-key lock across check, download and upload.
	SerializeByKey bool `yaml:"serialize_by_key" envconfig:"DOWNLOAD_SERIALIZE_BY_KEY" default:"true"`
}

// HistoryConfig holds download history configuration.
type HistoryConfig struct {
	RingBufferSize int    `yaml:"ring_buffer_size" envconfig:"HISTORY_RING_SIZE" default:"1000"`
	SQLitePath     string `yaml:"sqlite_path" envconfig:"HISTORY_SQLITE_PATH"`
	RetentionDays  int    `yaml:"retention_days" envconfig:"HISTORY_RETENTION_DAYS" default:"30"`
}

// Load reads configuration from file and environment variables.
// Precedence is environment, then file, then default tags.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Defaults plus environment; kept aside so the environment can be
	// laid back over the file.
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		env := *cfg
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
		overlayEnv(reflect.ValueOf(cfg).Elem(), reflect.ValueOf(env))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// overlayEnv copies into dst every field of src whose envconfig variable is
// present in the environment.
func overlayEnv(dst, src reflect.Value) {
	t := dst.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Type.Kind() == reflect.Struct {
			overlayEnv(dst.Field(i), src.Field(i))
			continue
		}
		name := field.Tag.Get("envconfig")
		if name == "" {
			continue
		}
		if _, ok := os.LookupEnv(name); ok {
			dst.Field(i).Set(src.Field(i))
		}
	}
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.YtDlp.ExecutablePath == "" {
		return fmt.Errorf("YTDLP_PATH is required")
	}
	if c.YtDlp.ScratchPath == "" {
		return fmt.Errorf("YTDLP_SCRATCH_PATH is required")
	}
	if c.Store.Bucket == "" {
		return fmt.Errorf("STORE_BUCKET is required")
	}
	if _, err := c.YtDlp.MinFreeBytes(); err != nil {
		return err
	}

	switch c.Store.Backend {
	case "s3":
		if c.Store.Endpoint == "" {
			return fmt.Errorf("MINIO_ENDPOINT is required for the s3 backend")
		}
		if c.Store.AccessKeyID == "" || c.Store.SecretAccessKey == "" {
			return fmt.Errorf("MINIO_ROOT_USER and MINIO_ROOT_PASSWORD are required for the s3 backend")
		}
	case "http":
		if c.Store.ServiceURL == "" {
			return fmt.Errorf("STORE_SERVICE_URL is required for the http backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}

	switch c.Auth.Mode {
	case "jwt":
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required for jwt auth mode")
		}
	case "remote":
		if c.Auth.ServiceURL == "" {
			return fmt.Errorf("AUTH_SERVICE_URL is required for remote auth mode")
		}
	case "none":
	default:
		return fmt.Errorf("unknown AUTH_MODE %q", c.Auth.Mode)
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
