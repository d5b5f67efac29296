package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultMaxPixels bounds decoded uploads to roughly a 50 megapixel photo.
const DefaultMaxPixels = 50_000_000

const (
	DefaultLLMURL   = "https://api.groq.com/openai/v1/chat/completions"
	DefaultLLMModel = "meta-llama/llama-4-maverick-17b-128e-instruct"
	DefaultSecret   = "default_secret"
)

type Config struct {
	Server   ServerConfig
	LLM      LLMConfig
	Detector DetectorConfig
	S3       S3Config
	App      AppConfig
	Log      LogConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LLMConfig struct {
	APIURL  string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type DetectorConfig struct {
	CascadePath  string
	ScaleFactor  float64
	MinNeighbors int
	MaxPixels    int64
}

type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string
	Region          string
}

type AppConfig struct {
	SecretKey      string
	MaxUploadSize  int64
	MaxFormSize    int64
	ArchiveEnabled bool
}

type LogConfig struct {
	Level string
}

// Load reads an optional .env file and then the process environment.
func Load(envFiles ...string) (*Config, error) {
	// A missing .env is the normal case in containers.
	_ = godotenv.Load(envFiles...)

	v := viper.New()

	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", "5000")
	v.SetDefault("SERVER_READ_TIMEOUT", 15*time.Second)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 90*time.Second)
	v.SetDefault("GROQ_API_KEY", "")
	v.SetDefault("LLM_API_URL", DefaultLLMURL)
	v.SetDefault("LLM_MODEL", DefaultLLMModel)
	v.SetDefault("LLM_TIMEOUT", 30*time.Second)
	v.SetDefault("DETECTOR_CASCADE_PATH", "")
	v.SetDefault("DETECTOR_SCALE_FACTOR", 1.1)
	v.SetDefault("DETECTOR_MIN_NEIGHBORS", 5)
	v.SetDefault("DETECTOR_MAX_PIXELS", DefaultMaxPixels)
	v.SetDefault("S3_ENDPOINT", "http://localhost:9000")
	v.SetDefault("S3_ACCESS_KEY_ID", "minioadmin")
	v.SetDefault("S3_SECRET_ACCESS_KEY", "minioadmin")
	v.SetDefault("S3_USE_SSL", false)
	v.SetDefault("S3_BUCKET_NAME", "detections")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("SECRET_KEY", DefaultSecret)
	v.SetDefault("APP_MAX_UPLOAD_SIZE", 16*1024*1024) // 16MB
	v.SetDefault("APP_MAX_FORM_SIZE", 5*1024*1024)    // 5MB
	v.SetDefault("ARCHIVE_ENABLED", false)
	v.SetDefault("LOG_LEVEL", "info")

	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host:         v.GetString("SERVER_HOST"),
			Port:         v.GetString("SERVER_PORT"),
			ReadTimeout:  v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("SERVER_WRITE_TIMEOUT"),
		},
		LLM: LLMConfig{
			APIURL:  v.GetString("LLM_API_URL"),
			APIKey:  v.GetString("GROQ_API_KEY"),
			Model:   v.GetString("LLM_MODEL"),
			Timeout: v.GetDuration("LLM_TIMEOUT"),
		},
		Detector: DetectorConfig{
			CascadePath:  v.GetString("DETECTOR_CASCADE_PATH"),
			ScaleFactor:  v.GetFloat64("DETECTOR_SCALE_FACTOR"),
			MinNeighbors: v.GetInt("DETECTOR_MIN_NEIGHBORS"),
			MaxPixels:    v.GetInt64("DETECTOR_MAX_PIXELS"),
		},
		S3: S3Config{
			Endpoint:        v.GetString("S3_ENDPOINT"),
			AccessKeyID:     v.GetString("S3_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("S3_SECRET_ACCESS_KEY"),
			UseSSL:          v.GetBool("S3_USE_SSL"),
			BucketName:      v.GetString("S3_BUCKET_NAME"),
			Region:          v.GetString("S3_REGION"),
		},
		App: AppConfig{
			SecretKey:      v.GetString("SECRET_KEY"),
			MaxUploadSize:  v.GetInt64("APP_MAX_UPLOAD_SIZE"),
			MaxFormSize:    v.GetInt64("APP_MAX_FORM_SIZE"),
			ArchiveEnabled: v.GetBool("ARCHIVE_ENABLED"),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects values that would make the service unusable. A missing API
// key is not an error here: calls fail at the remote end instead.
func (c *Config) Validate() error {
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be positive, got %s", c.LLM.Timeout)
	}
	if c.Detector.ScaleFactor <= 1 {
		return fmt.Errorf("DETECTOR_SCALE_FACTOR must be greater than 1, got %v", c.Detector.ScaleFactor)
	}
	if c.Detector.MinNeighbors < 0 {
		return fmt.Errorf("DETECTOR_MIN_NEIGHBORS must not be negative, got %d", c.Detector.MinNeighbors)
	}
	if c.Detector.MaxPixels <= 0 {
		return fmt.Errorf("DETECTOR_MAX_PIXELS must be positive, got %d", c.Detector.MaxPixels)
	}
	if c.App.MaxUploadSize <= 0 || c.App.MaxFormSize <= 0 {
		return fmt.Errorf("upload limits must be positive")
	}
	if c.Server.WriteTimeout > 0 && c.Server.WriteTimeout <= c.LLM.Timeout {
		return fmt.Errorf("SERVER_WRITE_TIMEOUT (%s) must exceed LLM_TIMEOUT (%s)", c.Server.WriteTimeout, c.LLM.Timeout)
	}
	return nil
}
