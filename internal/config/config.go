// Package config loads faceswap settings from defaults, an optional YAML
// file and the process environment, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ConfigFileEnv names the environment variable pointing at an optional YAML file.
const ConfigFileEnv = "FACE_SWAP_CONFIG"

// Transport names accepted in remote.transport.
const (
	TransportGradio = "gradio"
	TransportGRPC   = "grpc"
)

type Config struct {
	Remote   RemoteConfig   `mapstructure:"remote"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
}

type RemoteConfig struct {
	SpaceID     string        `mapstructure:"space_id"`
	APIName     string        `mapstructure:"api_name"`
	Transport   string        `mapstructure:"transport"`
	GRPCAddr    string        `mapstructure:"grpc_addr"`
	HFToken     string        `mapstructure:"hf_token"`
	HubURL      string        `mapstructure:"hub_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	TempDir     string        `mapstructure:"temp_dir"`
	DownloadDir string        `mapstructure:"download_dir"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
	JWTSecret       string        `mapstructure:"jwt_secret"`
	JWTAudience     string        `mapstructure:"jwt_audience"`
	JWTLeeway       time.Duration `mapstructure:"jwt_leeway"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	ResultTTL time.Duration `mapstructure:"result_ttl"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// key -> environment variable
var envBindings = map[string]string{
	"remote.space_id":         "FACE_SWAP_SPACE_ID",
	"remote.api_name":         "FACE_SWAP_API_NAME",
	"remote.transport":        "FACE_SWAP_TRANSPORT",
	"remote.grpc_addr":        "FACE_SWAP_GRPC_ADDR",
	"remote.hf_token":         "HF_TOKEN",
	"remote.hub_url":          "FACE_SWAP_HUB_URL",
	"remote.timeout":          "FACE_SWAP_TIMEOUT",
	"remote.temp_dir":         "FACE_SWAP_TEMP_DIR",
	"remote.download_dir":     "FACE_SWAP_DOWNLOAD_DIR",
	"server.addr":             "FACE_SWAP_ADDR",
	"server.shutdown_timeout": "FACE_SWAP_SHUTDOWN_TIMEOUT",
	"server.max_upload_bytes": "FACE_SWAP_MAX_UPLOAD",
	"server.jwt_secret":       "JWT_SECRET",
	"server.jwt_audience":     "JWT_AUDIENCE",
	"server.jwt_leeway":       "JWT_LEEWAY",
	"database.dsn":            "DATABASE_DSN",
	"redis.addr":              "REDIS_ADDR",
	"redis.result_ttl":        "FACE_SWAP_RESULT_TTL",
	"log.level":               "LOG_LEVEL",
	"log.development":         "LOG_DEVELOPMENT",
}

func setDefaults(v *viper.Viper) {
	tmp := os.TempDir()

	v.SetDefault("remote.space_id", "tonyassi/face-swap")
	v.SetDefault("remote.api_name", "/swap_faces")
	v.SetDefault("remote.transport", TransportGradio)
	v.SetDefault("remote.grpc_addr", "faceswap:50051")
	v.SetDefault("remote.hf_token", "")
	v.SetDefault("remote.hub_url", "https://huggingface.co")
	v.SetDefault("remote.timeout", 2*time.Minute)
	v.SetDefault("remote.temp_dir", tmp)
	v.SetDefault("remote.download_dir", filepath.Join(tmp, "faceswap-downloads"))

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.max_upload_bytes", 10<<20)
	v.SetDefault("server.jwt_secret", "dev-secret")
	v.SetDefault("server.jwt_audience", "")
	v.SetDefault("server.jwt_leeway", 30*time.Second)

	v.SetDefault("database.dsn", "host=postgres user=postgres password=postgres dbname=faceswap port=5432 sslmode=disable")

	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("redis.result_ttl", 10*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// NewViper returns a viper instance with defaults and env bindings applied.
// If FACE_SWAP_CONFIG is set the referenced YAML file is read as well.
func NewViper() (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if path := strings.TrimSpace(os.Getenv(ConfigFileEnv)); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return v, nil
}

// Parse decodes and validates the settings held by v.
func Parse(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load is NewViper followed by Parse.
func Load() (*Config, error) {
	v, err := NewViper()
	if err != nil {
		return nil, err
	}
	return Parse(v)
}

func (c *Config) validate() error {
	c.Remote.Transport = strings.ToLower(strings.TrimSpace(c.Remote.Transport))
	switch c.Remote.Transport {
	case TransportGradio, TransportGRPC:
	default:
		return fmt.Errorf("unknown remote transport %q", c.Remote.Transport)
	}
	if strings.TrimSpace(c.Remote.SpaceID) == "" {
		return fmt.Errorf("remote.space_id must not be empty")
	}
	if strings.TrimSpace(c.Remote.APIName) == "" {
		return fmt.Errorf("remote.api_name must not be empty")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be positive")
	}
	return nil
}
