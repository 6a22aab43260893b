// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that call
// external providers.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with provider requests
	// (e.g. "price-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// AIProvider identifies the text-generation provider adapter. The adapter
// is selected once at startup; nothing branches on it per call.
type AIProvider string

const (
	ProviderAnthropic AIProvider = "anthropic"
	ProviderOpenAI    AIProvider = "openai"
)

// AIConfig holds settings for the AI fallback extractor.
type AIConfig struct {
	HTTPConfig `yaml:",inline"`

	// Provider selects the adapter: anthropic or openai.
	Provider AIProvider `json:"provider" yaml:"provider"`

	// Model is the provider model identifier.
	Model string `json:"model" yaml:"model"`

	// APIKey is the provider credential. Required: the extractor refuses
	// to construct without it.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxRetries is the number of retry attempts for rate-limited calls
	// (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// BatchSize is the number of items enumerated in one batch prompt
	// (default 5).
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// PricePer1KTokens is the provider price per thousand tokens, in the
	// provider's billing currency (default 0.002).
	PricePer1KTokens float64 `json:"price_per_1k_tokens" yaml:"price_per_1k_tokens"`

	// CurrencyRate converts the provider's billing currency into the
	// reporting currency (default 1.0).
	CurrencyRate float64 `json:"currency_rate" yaml:"currency_rate"`
}

// EmbeddingConfig holds settings for the embedding pass of the enrichment
// pipeline.
type EmbeddingConfig struct {
	HTTPConfig `yaml:",inline"`

	// Model is the embedding model identifier.
	Model string `json:"model" yaml:"model"`

	// APIKey is the embedding provider credential.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// SubBatchSize caps the number of texts per provider call (default
	// and maximum 100).
	SubBatchSize int `json:"sub_batch_size" yaml:"sub_batch_size"`

	// SubBatchDelay is the fixed pause between consecutive provider calls
	// (default 1s).
	SubBatchDelay time.Duration `json:"sub_batch_delay" yaml:"sub_batch_delay"`
}

// CacheBackend selects the cache store implementation.
type CacheBackend string

const (
	CacheMemory CacheBackend = "memory"
	CacheFile   CacheBackend = "file"
	CacheSQLite CacheBackend = "sqlite"
)

// CacheConfig holds settings for the AI and embedding caches.
type CacheConfig struct {
	// Backend selects the store: memory, file, or sqlite (default file).
	Backend CacheBackend `json:"backend" yaml:"backend"`

	// Dir is the directory holding the cache files (default "cache").
	Dir string `json:"dir" yaml:"dir"`
}

// PipelineConfig holds settings for the enrichment pipeline.
type PipelineConfig struct {
	// BatchSize is the number of records parsed per coordinator chunk
	// (default 5).
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// SkipEmbeddings disables the embedding pass.
	SkipEmbeddings bool `json:"skip_embeddings" yaml:"skip_embeddings"`
}

// EngineConfig groups all component configurations.
type EngineConfig struct {
	AI        AIConfig        `json:"ai" yaml:"ai"`
	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`
	Pipeline  PipelineConfig  `json:"pipeline" yaml:"pipeline"`
}
