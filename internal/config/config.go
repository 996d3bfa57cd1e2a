package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RateLimitRule kapasitas bucket + interval refill penuh untuk satu service
type RateLimitRule struct {
	Capacity       int           `yaml:"capacity"`
	RefillInterval time.Duration `yaml:"refillInterval"`
}

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	Scan struct {
		// Concurrency ukuran worker pool per batch
		Concurrency       int           `yaml:"concurrency"`
		PerAccountTimeout time.Duration `yaml:"perAccountTimeout"`
		BatchTimeout      time.Duration `yaml:"batchTimeout"`
	} `yaml:"scan"`

	RateLimit struct {
		// Default dipakai service yang tidak punya rule sendiri
		Default RateLimitRule `yaml:"default"`
		// Services rule per external API (throttle ceiling beda-beda)
		Services    map[string]RateLimitRule `yaml:"services"`
		WaitTimeout time.Duration            `yaml:"waitTimeout"`
	} `yaml:"rateLimit"`

	Events struct {
		WebhookURL string `yaml:"webhookUrl"`
		QueueSize  int    `yaml:"queueSize"`
	} `yaml:"events"`

	Credentials struct {
		// Key hex/base64 untuk AES-256-GCM, 32 byte setelah decode
		KeyBase64 string `yaml:"keyBase64"`
	} `yaml:"credentials"`

	OpenAI struct {
		APIKey string `yaml:"apiKey"`
		Model  string `yaml:"model"`
	} `yaml:"openai"`

	Auth struct {
		// APIKeys map tenant -> API key
		APIKeys map[string]string `yaml:"apiKeys"`
	} `yaml:"auth"`
}

// Load baca file config.yaml
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Scan.Concurrency <= 0 {
		c.Scan.Concurrency = 4
	}
	if c.Scan.PerAccountTimeout <= 0 {
		c.Scan.PerAccountTimeout = 10 * time.Minute
	}
	if c.RateLimit.Default.Capacity <= 0 {
		c.RateLimit.Default = RateLimitRule{Capacity: 60, RefillInterval: time.Minute}
	}
	if c.RateLimit.WaitTimeout <= 0 {
		c.RateLimit.WaitTimeout = 30 * time.Second
	}
	if c.Events.QueueSize <= 0 {
		c.Events.QueueSize = 256
	}
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}
