package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server ServerConfig
	S3     S3Config
	App    AppConfig
}

type ServerConfig struct {
	Host           string
	Port           string
	AllowedOrigins []string
}

type S3Config struct {
	Enabled         bool
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string
	Region          string
	SyncOnStart     bool
}

type AppConfig struct {
	RootDir        string
	DataDir        string
	AssetsDir      string
	ScreenshotsDir string
	StoreFile      string
	MaxUploadSize  int64
	MaxUploadFiles int
	AllowedTypes   []string
	AutosaveDelay  time.Duration
	SearchDelay    time.Duration
}

// StorePath is the JSON snapshot file.
func (a AppConfig) StorePath() string {
	return filepath.Join(a.DataDir, a.StoreFile)
}

func Load() (*Config, error) {
	// A missing .env is normal; the environment alone is enough.
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("SERVER_HOST", "localhost")
	v.SetDefault("SERVER_PORT", "3019")
	v.SetDefault("CORS_ALLOWED_ORIGINS", []string{"*"})
	v.SetDefault("S3_ENABLED", false)
	v.SetDefault("S3_ENDPOINT", "http://localhost:9000")
	v.SetDefault("S3_ACCESS_KEY_ID", "minioadmin")
	v.SetDefault("S3_SECRET_ACCESS_KEY", "minioadmin")
	v.SetDefault("S3_USE_SSL", false)
	v.SetDefault("S3_BUCKET_NAME", "screenshot-notes")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_SYNC_ON_START", false)
	v.SetDefault("APP_ROOT_DIR", ".")
	v.SetDefault("APP_DATA_DIR", "./data")
	v.SetDefault("APP_ASSETS_DIR", "./assets")
	v.SetDefault("APP_SCREENSHOTS_DIR", "./assets/screenshots")
	v.SetDefault("APP_STORE_FILE", "screenshots.json")
	v.SetDefault("APP_MAX_UPLOAD_SIZE", 10*1024*1024) // 10MB
	v.SetDefault("APP_MAX_UPLOAD_FILES", 10)
	v.SetDefault("APP_ALLOWED_TYPES", []string{"image/jpeg", "image/png", "image/gif", "image/webp", "image/bmp"})
	v.SetDefault("APP_AUTOSAVE_DELAY", time.Second)
	v.SetDefault("APP_SEARCH_DELAY", 300*time.Millisecond)

	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("SERVER_HOST"),
			Port:           v.GetString("SERVER_PORT"),
			AllowedOrigins: v.GetStringSlice("CORS_ALLOWED_ORIGINS"),
		},
		S3: S3Config{
			Enabled:         v.GetBool("S3_ENABLED"),
			Endpoint:        v.GetString("S3_ENDPOINT"),
			AccessKeyID:     v.GetString("S3_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("S3_SECRET_ACCESS_KEY"),
			UseSSL:          v.GetBool("S3_USE_SSL"),
			BucketName:      v.GetString("S3_BUCKET_NAME"),
			Region:          v.GetString("S3_REGION"),
			SyncOnStart:     v.GetBool("S3_SYNC_ON_START"),
		},
		App: AppConfig{
			RootDir:        v.GetString("APP_ROOT_DIR"),
			DataDir:        v.GetString("APP_DATA_DIR"),
			AssetsDir:      v.GetString("APP_ASSETS_DIR"),
			ScreenshotsDir: v.GetString("APP_SCREENSHOTS_DIR"),
			StoreFile:      v.GetString("APP_STORE_FILE"),
			MaxUploadSize:  v.GetInt64("APP_MAX_UPLOAD_SIZE"),
			MaxUploadFiles: v.GetInt("APP_MAX_UPLOAD_FILES"),
			AllowedTypes:   v.GetStringSlice("APP_ALLOWED_TYPES"),
			AutosaveDelay:  v.GetDuration("APP_AUTOSAVE_DELAY"),
			SearchDelay:    v.GetDuration("APP_SEARCH_DELAY"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := createDirs(cfg); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.App.MaxUploadSize <= 0 {
		return fmt.Errorf("APP_MAX_UPLOAD_SIZE must be positive, got %d", c.App.MaxUploadSize)
	}
	if c.App.MaxUploadFiles <= 0 {
		return fmt.Errorf("APP_MAX_UPLOAD_FILES must be positive, got %d", c.App.MaxUploadFiles)
	}
	if len(c.App.AllowedTypes) == 0 {
		return fmt.Errorf("APP_ALLOWED_TYPES must not be empty")
	}
	if c.App.StoreFile == "" {
		return fmt.Errorf("APP_STORE_FILE must not be empty")
	}
	if c.S3.Enabled && c.S3.BucketName == "" {
		return fmt.Errorf("S3_BUCKET_NAME is required when S3_ENABLED is set")
	}
	return nil
}

func createDirs(cfg *Config) error {
	dirs := []string{
		cfg.App.DataDir,
		cfg.App.AssetsDir,
		cfg.App.ScreenshotsDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
