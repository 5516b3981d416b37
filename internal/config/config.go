package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StorageInMemory = "in-memory"
	StoragePostgres = "postgres"
	StorageMongo    = "mongo"

	UploadLocal = "local"
	UploadS3    = "s3"
)

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type StorageConfig struct {
	Type          string `mapstructure:"type"`
	DatabaseURL   string `mapstructure:"database_url"`
	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type UploadConfig struct {
	Type      string `mapstructure:"type"`
	LocalPath string `mapstructure:"local_path"`
	BaseURL   string `mapstructure:"base_url"`
	S3Region  string `mapstructure:"s3_region"`
	S3Bucket  string `mapstructure:"s3_bucket"`
}

type FeedConfig struct {
	CommentPageSize int `mapstructure:"comment_page_size"`
	ReplyPageSize   int `mapstructure:"reply_page_size"`
}

type ReconcileConfig struct {
	Schedule string `mapstructure:"schedule"`
}

type SessionConfig struct {
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	EvictSchedule string        `mapstructure:"evict_schedule"`
}

type PrefsConfig struct {
	Dir string `mapstructure:"dir"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Prefs     PrefsConfig     `mapstructure:"prefs"`
	Session   SessionConfig   `mapstructure:"session"`
	Debug     bool            `mapstructure:"debug"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("storage.type", StorageInMemory)
	v.SetDefault("storage.database_url", "")
	v.SetDefault("storage.mongo_uri", "")
	v.SetDefault("storage.mongo_database", "crewfeed")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("upload.type", UploadLocal)
	v.SetDefault("upload.local_path", "./uploads")
	v.SetDefault("upload.base_url", "http://localhost:8080/uploads")
	v.SetDefault("upload.s3_region", "us-east-1")
	v.SetDefault("upload.s3_bucket", "")
	v.SetDefault("feed.comment_page_size", 10)
	v.SetDefault("feed.reply_page_size", 5)
	v.SetDefault("reconcile.schedule", "@every 60m")
	v.SetDefault("prefs.dir", "./prefs")
	v.SetDefault("session.idle_timeout", "30m")
	v.SetDefault("session.evict_schedule", "@every 1m")
	v.SetDefault("debug", false)
}

// Load reads settings.toml from searchPaths (default "." and ".."), then
// CREWFEED_* environment variables, after loading an optional .env file.
// A missing settings file is not an error.
func Load(searchPaths ...string) (*Config, error) {
	_ = godotenv.Load()

	if len(searchPaths) == 0 {
		searchPaths = []string{".", ".."}
	}
	v := viper.New()
	for _, p := range searchPaths {
		v.AddConfigPath(p)
	}
	v.SetConfigName("settings")
	v.SetConfigType("toml")
	v.SetEnvPrefix("CREWFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("unable to read settings: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode settings: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings a backend needs before it is started.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case StorageInMemory:
	case StoragePostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("storage.database_url is required for postgres storage")
		}
	case StorageMongo:
		if c.Storage.MongoURI == "" {
			return errors.New("storage.mongo_uri is required for mongo storage")
		}
	default:
		return fmt.Errorf("unknown storage type %q", c.Storage.Type)
	}
	if c.Storage.Type != StorageInMemory && c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required outside in-memory mode")
	}

	switch c.Upload.Type {
	case UploadLocal:
	case UploadS3:
		if c.Upload.S3Bucket == "" {
			return errors.New("upload.s3_bucket is required for s3 uploads")
		}
	default:
		return fmt.Errorf("unknown upload type %q", c.Upload.Type)
	}

	if c.Session.IdleTimeout <= 0 {
		return errors.New("session.idle_timeout must be positive")
	}
	if c.Feed.CommentPageSize <= 0 || c.Feed.ReplyPageSize <= 0 {
		return errors.New("feed page sizes must be positive")
	}
	return nil
}
