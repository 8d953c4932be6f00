package core

import (
	"time"
)

const (
	DefaultGetTimeout       = 30 * time.Second
	DefaultPutTimeout       = 5 * time.Minute
	DefaultInferenceTimeout = 120 * time.Second
	DefaultMaxTokens        = 50
)

type Config struct {
	Store     StoreConfig     `mapstructure:"store"`
	Transport TransportConfig `mapstructure:"transport"`
	Inference InferenceConfig `mapstructure:"inference"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Batch     BatchConfig     `mapstructure:"batch"`
}

type StoreConfig struct {
	BaseURL string `mapstructure:"base_url"` // filer root, e.g. http://127.0.0.1:8888
}

type TransportConfig struct {
	GetTimeout time.Duration `mapstructure:"get_timeout"`
	PutTimeout time.Duration `mapstructure:"put_timeout"`
}

type InferenceConfig struct {
	URL      string        `mapstructure:"url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	RetryMax int           `mapstructure:"retry_max"`
}

type CatalogConfig struct {
	Dir string `mapstructure:"dir"` // empty disables the local catalog
}

type BatchConfig struct {
	Concurrency int     `mapstructure:"concurrency"`
	RateLimit   float64 `mapstructure:"rate_limit"` // requests per second, 0 = unlimited
	MaxTokens   int     `mapstructure:"max_tokens"`
	Compress    bool    `mapstructure:"compress"`
	ZstdLevel   int     `mapstructure:"zstd_level"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{BaseURL: "http://127.0.0.1:8888"},
		Transport: TransportConfig{
			GetTimeout: DefaultGetTimeout,
			PutTimeout: DefaultPutTimeout,
		},
		Inference: InferenceConfig{
			URL:     "http://127.0.0.1:8081",
			Timeout: DefaultInferenceTimeout,
		},
		Batch: BatchConfig{
			Concurrency: 1,
			MaxTokens:   DefaultMaxTokens,
			ZstdLevel:   3,
		},
	}
}
