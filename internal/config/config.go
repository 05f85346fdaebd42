package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/viper"
)

const (
	envPrefix  = "PIXELCUT"
	envCfgFile = "PIXELCUT_CONFIG"
)

type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Log       LogConfig       `mapstructure:"log"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Rembg     RembgConfig     `mapstructure:"rembg"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Batch     BatchConfig     `mapstructure:"batch"`
}

type APIConfig struct {
	Addr           string        `mapstructure:"addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	PresignExpiry  time.Duration `mapstructure:"presign_expiry"`
	TrustedProxies []string      `mapstructure:"trusted_proxies"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type FetchConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	MaxBytes  int64         `mapstructure:"max_bytes"`
	UserAgent string        `mapstructure:"user_agent"`
}

// RembgConfig points at the inference server. An empty endpoint disables
// background removal and images pass through unchanged.
type RembgConfig struct {
	Endpoint            string        `mapstructure:"endpoint"`
	Timeout             time.Duration `mapstructure:"timeout"`
	Concurrency         int           `mapstructure:"concurrency"`
	Model               string        `mapstructure:"model"`
	AlphaMatting        bool          `mapstructure:"alpha_matting"`
	ForegroundThreshold int           `mapstructure:"foreground_threshold"`
	BackgroundThreshold int           `mapstructure:"background_threshold"`
	ErodeSize           int           `mapstructure:"erode_size"`
	PostProcessMask     bool          `mapstructure:"post_process_mask"`
	// Passthrough allows running without an endpoint; images then keep
	// their background.
	Passthrough         bool          `mapstructure:"passthrough"`
}

type PipelineConfig struct {
	Filter         string `mapstructure:"filter"`
	PNGCompression string `mapstructure:"png_compression"`
}

type QueueConfig struct {
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	Name          string `mapstructure:"name"`
	MaxRetry      int    `mapstructure:"max_retry"`
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

type WorkerConfig struct {
	Concurrency    int           `mapstructure:"concurrency"`
	MaxActiveJobs  int           `mapstructure:"max_active_jobs"`
	JobTimeout     time.Duration `mapstructure:"job_timeout"`
	LocalOutputDir string        `mapstructure:"local_output_dir"`
	MetricsAddr    string        `mapstructure:"metrics_addr"`
}

type StorageConfig struct {
	Endpoint     string `mapstructure:"endpoint"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	Bucket       string `mapstructure:"bucket"`
	UseSSL       bool   `mapstructure:"use_ssl"`
	Region       string `mapstructure:"region"`
	OutputPrefix string `mapstructure:"output_prefix"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type TelemetryConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	Exporter     string `mapstructure:"exporter"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	Rate    float64 `mapstructure:"rate"`
	Burst   int     `mapstructure:"burst"`
	Prefix  string  `mapstructure:"prefix"`
}

type WebhookConfig struct {
	Secret     string        `mapstructure:"secret"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

type BatchConfig struct {
	InputDir  string `mapstructure:"input_dir"`
	OutputDir string `mapstructure:"output_dir"`
	Width     int    `mapstructure:"width"`
	Height    int    `mapstructure:"height"`
	Padding   int    `mapstructure:"padding"`
	BgColor   string `mapstructure:"bgcolor"`
}

// New returns a viper instance with every default registered, environment
// overrides enabled and the optional config file named by PIXELCUT_CONFIG
// read in.
func New() (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := strings.TrimSpace(os.Getenv(envCfgFile)); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	return v, nil
}

// Parse decodes v into a Config.
func Parse(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Worker.MaxActiveJobs < 1 {
		cfg.Worker.MaxActiveJobs = 1
	}
	if cfg.Rembg.Concurrency < 1 {
		cfg.Rembg.Concurrency = 1
	}
	return cfg, nil
}

func Load() (Config, error) {
	v, err := New()
	if err != nil {
		return Config{}, err
	}
	return Parse(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.addr", ":5000")
	v.SetDefault("api.request_timeout", 2*time.Minute)
	v.SetDefault("api.allowed_origins", []string{"*"})
	v.SetDefault("api.presign_expiry", 15*time.Minute)
	v.SetDefault("api.trusted_proxies", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.max_bytes", int64(25<<20))
	v.SetDefault("fetch.user_agent", "pixelcut/1.0")

	v.SetDefault("rembg.endpoint", "")
	v.SetDefault("rembg.timeout", 60*time.Second)
	v.SetDefault("rembg.concurrency", 1)
	v.SetDefault("rembg.model", "u2net")
	v.SetDefault("rembg.alpha_matting", true)
	v.SetDefault("rembg.foreground_threshold", 255)
	v.SetDefault("rembg.background_threshold", 0)
	v.SetDefault("rembg.erode_size", 5)
	v.SetDefault("rembg.post_process_mask", true)
	v.SetDefault("rembg.passthrough", false)

	v.SetDefault("pipeline.filter", "lanczos")
	v.SetDefault("pipeline.png_compression", "default")

	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.redis_password", "")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.name", "default")
	v.SetDefault("queue.max_retry", 3)

	v.SetDefault("worker.concurrency", max(2, runtime.NumCPU()))
	v.SetDefault("worker.max_active_jobs", max(1, runtime.NumCPU()/2))
	v.SetDefault("worker.job_timeout", 5*time.Minute)
	v.SetDefault("worker.local_output_dir", "")
	v.SetDefault("worker.metrics_addr", ":9091")

	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.access_key", "minioadmin")
	v.SetDefault("storage.secret_key", "minioadmin")
	v.SetDefault("storage.bucket", "pixelcut-jobs")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.region", "")
	v.SetDefault("storage.output_prefix", "outputs")

	v.SetDefault("database.dsn", "")

	v.SetDefault("telemetry.service_name", "pixelcut")
	v.SetDefault("telemetry.exporter", "none")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", true)

	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.rate", 5.0)
	v.SetDefault("ratelimit.burst", 10)
	v.SetDefault("ratelimit.prefix", "pixelcut:ratelimit")

	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.timeout", 5*time.Second)
	v.SetDefault("webhook.max_retries", 3)

	v.SetDefault("batch.input_dir", "/app/input")
	v.SetDefault("batch.output_dir", "/app/output")
	v.SetDefault("batch.width", 0)
	v.SetDefault("batch.height", 0)
	v.SetDefault("batch.padding", 0)
	v.SetDefault("batch.bgcolor", "")
}
