package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database     DatabaseConfig
	Scheduler    SchedulerConfig
	Generator    GeneratorConfig
	Dispatch     DispatchConfig
	Verification VerificationConfig
	Publisher    PublisherConfig
	S3           S3Config
	DBPath       string
	LogLevel     string
	Platforms    map[string]*PlatformConfig
}

type DatabaseConfig struct {
	URL string
}

type SchedulerConfig struct {
	Cron     string
	Interval time.Duration
}

type GeneratorConfig struct {
	HorizonDays   int
	LockTTL       time.Duration
	BatchSize     int
	DefaultJitter int // seconds
}

type DispatchConfig struct {
	BatchSize         int
	MaxRetries        int
	BackoffBase       time.Duration
	BackoffCap        time.Duration
	ProcessingTimeout time.Duration
	PublishSlots      int // concurrent publish batches across all instances
	SlotTTL           time.Duration
}

type VerificationConfig struct {
	Delay     time.Duration
	BatchSize int
	ProbeLive bool // also probe the agent portal page before confirming
}

type PublisherConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// PlatformConfig is loaded from config/platforms/*.yaml, one file per
// publishing target.
type PlatformConfig struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Path        string `yaml:"path"` // publish endpoint path on the upload-post service
	AspectRatio string `yaml:"aspect_ratio"`
	RateLimitMS int    `yaml:"rate_limit_ms"`
	MaxCaption  int    `yaml:"max_caption"`
	Enabled     bool   `yaml:"enabled"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Scheduler: SchedulerConfig{
			Cron: os.Getenv("SCHEDULE_CRON"),
		},
		Generator: GeneratorConfig{
			HorizonDays:   getEnvInt("GENERATOR_HORIZON_DAYS", 14),
			LockTTL:       getEnvDuration("GENERATOR_LOCK_TTL", 10*time.Minute),
			BatchSize:     getEnvInt("GENERATOR_BATCH_SIZE", 100),
			DefaultJitter: getEnvInt("GENERATOR_JITTER_SECONDS", 1800),
		},
		Dispatch: DispatchConfig{
			BatchSize:         getEnvInt("DISPATCH_BATCH_SIZE", 50),
			MaxRetries:        getEnvInt("DISPATCH_MAX_RETRIES", 3),
			BackoffBase:       getEnvDuration("DISPATCH_BACKOFF_BASE", 10*time.Minute),
			BackoffCap:        getEnvDuration("DISPATCH_BACKOFF_CAP", 6*time.Hour),
			ProcessingTimeout: getEnvDuration("DISPATCH_PROCESSING_TIMEOUT", 30*time.Minute),
			PublishSlots:      getEnvInt("DISPATCH_PUBLISH_SLOTS", 2),
			SlotTTL:           getEnvDuration("DISPATCH_SLOT_TTL", 30*time.Minute),
		},
		Verification: VerificationConfig{
			Delay:     getEnvDuration("VERIFICATION_DELAY", 15*time.Minute),
			BatchSize: getEnvInt("VERIFICATION_BATCH_SIZE", 50),
			ProbeLive: os.Getenv("VERIFICATION_PROBE_LIVE") == "true",
		},
		Publisher: PublisherConfig{
			BaseURL: os.Getenv("UPLOAD_POST_URL"),
			APIKey:  os.Getenv("UPLOAD_POST_API_KEY"),
			Timeout: getEnvDuration("UPLOAD_POST_TIMEOUT", 30*time.Second),
		},
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		},
		DBPath:    getEnv("DB_PATH", "poster.db"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		Platforms: make(map[string]*PlatformConfig),
	}

	if interval := os.Getenv("SCHEDULE_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err == nil {
			cfg.Scheduler.Interval = d
		}
	}

	if err := cfg.loadPlatformConfigs(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadPlatformConfigs() error {
	configDir := "config/platforms"
	entries, err := os.ReadDir(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		path := filepath.Join(configDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		var platform PlatformConfig
		if err := yaml.Unmarshal(data, &platform); err != nil {
			return err
		}

		c.Platforms[platform.ID] = &platform
	}

	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
