// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the price-engine CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/price-engine/internal/secrets"
	"github.com/pdiddy/price-engine/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// rootCmd is the base command for the price-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "price-engine",
	Short: "Normalize supplier price lists into canonical metric units",
	Long: `price-engine converts free-text supplier product descriptions into a
canonical metric quantity, metric unit, and price per metric unit, so
heterogeneous price lists become comparable.

A deterministic pattern catalog handles the regular notation; items it
cannot resolve go to a cost-bounded AI fallback behind a content-addressed
cache. The enrich command runs the full pipeline including semantic
embeddings and a run report.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./price-engine.yaml or ~/.config/price-engine/config.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("price-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "price-engine"))
		}
	}

	viper.SetEnvPrefix("PRICE_ENGINE")
	viper.AutomaticEnv()

	viper.SetDefault("ai.provider", string(types.ProviderAnthropic))
	viper.SetDefault("ai.model", "claude-3-5-haiku-latest")
	viper.SetDefault("ai.max_retries", 3)
	viper.SetDefault("ai.batch_size", 5)
	viper.SetDefault("ai.price_per_1k_tokens", 0.002)
	viper.SetDefault("ai.currency_rate", 1.0)
	viper.SetDefault("ai.timeout", "60s")
	viper.SetDefault("embedding.model", "text-embedding-3-small")
	viper.SetDefault("embedding.sub_batch_size", 100)
	viper.SetDefault("embedding.sub_batch_delay", "1s")
	viper.SetDefault("embedding.timeout", "60s")
	viper.SetDefault("cache.backend", string(types.CacheFile))
	viper.SetDefault("cache.dir", "cache")
	viper.SetDefault("pipeline.batch_size", 5)

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// engineConfig assembles the typed configuration from viper, filling
// credentials from the secrets directory when the config leaves them
// empty.
func engineConfig() types.EngineConfig {
	cfg := types.EngineConfig{
		AI: types.AIConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   viper.GetDuration("ai.timeout"),
				UserAgent: "price-engine/" + version,
			},
			Provider:         types.AIProvider(viper.GetString("ai.provider")),
			Model:            viper.GetString("ai.model"),
			APIKey:           viper.GetString("ai.api_key"),
			MaxRetries:       viper.GetInt("ai.max_retries"),
			BatchSize:        viper.GetInt("ai.batch_size"),
			PricePer1KTokens: viper.GetFloat64("ai.price_per_1k_tokens"),
			CurrencyRate:     viper.GetFloat64("ai.currency_rate"),
		},
		Embedding: types.EmbeddingConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   viper.GetDuration("embedding.timeout"),
				UserAgent: "price-engine/" + version,
			},
			Model:         viper.GetString("embedding.model"),
			APIKey:        viper.GetString("embedding.api_key"),
			SubBatchSize:  viper.GetInt("embedding.sub_batch_size"),
			SubBatchDelay: viper.GetDuration("embedding.sub_batch_delay"),
		},
		Cache: types.CacheConfig{
			Backend: types.CacheBackend(viper.GetString("cache.backend")),
			Dir:     viper.GetString("cache.dir"),
		},
		Pipeline: types.PipelineConfig{
			BatchSize:      viper.GetInt("pipeline.batch_size"),
			SkipEmbeddings: viper.GetBool("pipeline.skip_embeddings"),
		},
	}

	if cfg.AI.APIKey == "" {
		switch cfg.AI.Provider {
		case types.ProviderOpenAI:
			cfg.AI.APIKey = secrets.Key(loadedSecrets, "openai-api-key")
		default:
			cfg.AI.APIKey = secrets.Key(loadedSecrets, "anthropic-api-key")
		}
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = secrets.Key(loadedSecrets, "openai-api-key")
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 60 * time.Second
	}
	if cfg.Embedding.Timeout <= 0 {
		cfg.Embedding.Timeout = 60 * time.Second
	}
	return cfg
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
