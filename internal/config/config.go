// Package config loads the service configuration from the environment.
// A .env file in the working directory is read first when present; real
// environment variables always win.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full configuration of the api and worker binaries.
type Config struct {
	HTTPPort       string
	RequestTimeout time.Duration
	CORSOrigins    []string

	Render  RenderConfig
	Storage StorageConfig

	// DatabaseURL and RedisAddr enable async render jobs when both are set.
	DatabaseURL string
	RedisAddr   string
	QueueName   string
}

// RenderConfig drives the render workflow.
type RenderConfig struct {
	ScratchDir    string
	RendererBin   string
	Quality       string
	Timeout       time.Duration
	MaxConcurrent int
}

// StorageConfig selects and configures the storage provider.
type StorageConfig struct {
	Provider string

	S3 S3Config

	LocalRoot          string
	LocalPublicBaseURL string

	GDrive GDriveConfig
}

type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Bucket          string
	Endpoint        string
	PublicBaseURL   string
}

type GDriveConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	FolderID     string
}

// AsyncEnabled reports whether the job queue can be wired.
func (c Config) AsyncEnabled() bool {
	return c.DatabaseURL != "" && c.RedisAddr != ""
}

// Load reads .env (if any) and the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		HTTPPort:       Env("HTTP_PORT", "8001"),
		RequestTimeout: DurationEnv("REQUEST_TIMEOUT", 15*time.Minute),
		CORSOrigins:    CSVEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:8000"}),
		Render: RenderConfig{
			ScratchDir:    Env("RENDER_SCRATCH_DIR", filepath.Join(os.TempDir(), "manimrender")),
			RendererBin:   Env("RENDERER_BIN", "manim"),
			Quality:       Env("RENDER_QUALITY", "low"),
			Timeout:       DurationEnv("RENDER_TIMEOUT", 10*time.Minute),
			MaxConcurrent: IntEnv("RENDER_MAX_CONCURRENT", 2),
		},
		Storage: StorageConfig{
			Provider: strings.ToLower(Env("STORAGE_PROVIDER", "s3")),
			S3: S3Config{
				AccessKeyID:     Env("AWS_ACCESS_KEY_ID", ""),
				SecretAccessKey: Env("AWS_SECRET_ACCESS_KEY", ""),
				Region:          Env("AWS_REGION", "us-east-1"),
				Bucket:          Env("S3_BUCKET_NAME", ""),
				Endpoint:        Env("S3_ENDPOINT", ""),
				PublicBaseURL:   Env("S3_PUBLIC_BASE_URL", ""),
			},
			LocalRoot:          Env("STORAGE_LOCAL_ROOT", "./data"),
			LocalPublicBaseURL: Env("STORAGE_PUBLIC_BASE_URL", ""),
			GDrive: GDriveConfig{
				ClientID:     Env("GDRIVE_CLIENT_ID", ""),
				ClientSecret: Env("GDRIVE_CLIENT_SECRET", ""),
				RefreshToken: Env("GDRIVE_REFRESH_TOKEN", ""),
				FolderID:     Env("GDRIVE_FOLDER_ID", ""),
			},
		},
		DatabaseURL: Env("DATABASE_URL", ""),
		RedisAddr:   Env("REDIS_ADDR", ""),
		QueueName:   Env("RENDER_QUEUE_NAME", "manimrender:jobs"),
	}

	if cfg.Storage.LocalPublicBaseURL == "" {
		cfg.Storage.LocalPublicBaseURL = "http://localhost:" + cfg.HTTPPort + "/videos/content?key="
	}

	return cfg, cfg.Validate()
}

// Validate checks the settings every binary depends on.
func (c Config) Validate() error {
	if c.Render.MaxConcurrent < 1 {
		return fmt.Errorf("RENDER_MAX_CONCURRENT must be at least 1, got %d", c.Render.MaxConcurrent)
	}
	if strings.TrimSpace(c.Render.ScratchDir) == "" {
		return fmt.Errorf("RENDER_SCRATCH_DIR must not be empty")
	}
	switch c.Storage.Provider {
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("S3_BUCKET_NAME is required for the s3 storage provider")
		}
	case "localfs":
		if c.Storage.LocalRoot == "" {
			return fmt.Errorf("STORAGE_LOCAL_ROOT is required for the localfs storage provider")
		}
	case "gdrive":
		g := c.Storage.GDrive
		if g.ClientID == "" || g.ClientSecret == "" || g.RefreshToken == "" {
			return fmt.Errorf("GDRIVE_CLIENT_ID, GDRIVE_CLIENT_SECRET and GDRIVE_REFRESH_TOKEN are required for the gdrive storage provider")
		}
	default:
		return fmt.Errorf("unknown storage provider: %s", c.Storage.Provider)
	}
	return nil
}

func Env(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

// BoolEnv reads an env var as bool. If empty or invalid, returns def.
func BoolEnv(k string, def bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(k)))
	if err != nil {
		return def
	}
	return b
}

// IntEnv reads an env var as int. If empty or invalid, returns def.
func IntEnv(k string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(k)))
	if err != nil {
		return def
	}
	return n
}

// DurationEnv accepts Go durations ("90s", "10m") or plain seconds.
func DurationEnv(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

func CSVEnv(k string, def []string) []string {
	raw := strings.TrimSpace(os.Getenv(k))
	if raw == "" {
		return def
	}
	out := make([]string, 0)
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
