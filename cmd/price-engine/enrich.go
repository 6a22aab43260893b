// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/price-engine/internal/cache"
	"github.com/pdiddy/price-engine/internal/enrich"
	"github.com/pdiddy/price-engine/internal/fallback"
	"github.com/pdiddy/price-engine/internal/hybrid"
	"github.com/pdiddy/price-engine/internal/pattern"
	"github.com/pdiddy/price-engine/pkg/types"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Normalize and embed a full price list",
	Long: `Enrich reads a JSON or YAML price list of {name, price, unit} records,
normalizes every record through the pattern catalog with AI fallback,
attaches semantic embeddings, and writes the enriched list plus a run
report.

Without --ai the pipeline is deterministic-only and needs no credentials.`,
	RunE: runEnrich,
}

func init() {
	enrichCmd.Flags().String("input", "", "price list file (.json or .yaml), required")
	enrichCmd.Flags().String("output", "output/enriched.json", "enriched output file")
	enrichCmd.Flags().String("report", "output/report.json", "run report file")
	enrichCmd.Flags().Int("batch-size", 0, "records per parsing chunk (default from config)")
	enrichCmd.Flags().Bool("ai", true, "escalate unresolved items to the AI fallback")
	enrichCmd.Flags().Bool("no-embeddings", false, "skip the embedding pass")

	rootCmd.AddCommand(enrichCmd)
}

func runEnrich(cmd *cobra.Command, args []string) error {
	input, _ := cmd.Flags().GetString("input")
	if input == "" {
		return fmt.Errorf("--input is required")
	}
	output, _ := cmd.Flags().GetString("output")
	reportPath, _ := cmd.Flags().GetString("report")
	useAI, _ := cmd.Flags().GetBool("ai")
	noEmbeddings, _ := cmd.Flags().GetBool("no-embeddings")

	cfg := engineConfig()
	if batchSize, _ := cmd.Flags().GetInt("batch-size"); batchSize > 0 {
		cfg.Pipeline.BatchSize = batchSize
	}
	if noEmbeddings {
		cfg.Pipeline.SkipEmbeddings = true
	}

	records, err := loadRecords(input)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "loaded %d records from %s\n", len(records), input)

	var extractor *fallback.Extractor
	if useAI {
		store, err := newAICache(cfg.Cache)
		if err != nil {
			return err
		}
		defer store.Close()

		extractor, err = fallback.New(cfg.AI, store, os.Stderr)
		if err != nil {
			return err
		}
	}

	var embedder enrich.EmbeddingBackend
	var embedStore cache.Store[[]float64]
	if !cfg.Pipeline.SkipEmbeddings {
		if cfg.Embedding.APIKey == "" {
			return fmt.Errorf("embedding API key is required; pass --no-embeddings for a deterministic run")
		}
		embedder = enrich.NewOpenAIEmbeddingClient(cfg.Embedding)
		embedStore, err = newEmbeddingCache(cfg.Cache)
		if err != nil {
			return err
		}
		defer embedStore.Close()
	}

	coord := hybrid.New(pattern.New(), extractor, os.Stderr)
	pipeline := enrich.New(coord, embedder, embedStore, cfg.Pipeline, cfg.Embedding)

	enriched, err := pipeline.Enrich(context.Background(), records, os.Stdout)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := pipeline.SaveResults(output, enriched); err != nil {
		return err
	}

	report := pipeline.Report(enriched)
	if err := pipeline.SaveReport(reportPath, report); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "\nparsed %d/%d (%.1f%%), output %s, report %s\n",
		report.Summary.SuccessfullyParsed, report.Summary.TotalProducts,
		report.Summary.SuccessRate*100, output, reportPath)
	return nil
}

// loadRecords reads a price list from a JSON or YAML file.
func loadRecords(path string) ([]types.InputRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading input %s: %w", path, err)
	}

	var records []types.InputRecord
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("parsing YAML input %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("parsing JSON input %s: %w", path, err)
		}
	}
	return records, nil
}

// newAICache builds the AI resolution cache for the configured backend.
func newAICache(cfg types.CacheConfig) (cache.Store[types.AIParseEntry], error) {
	switch cfg.Backend {
	case types.CacheMemory:
		return cache.NewMemory[types.AIParseEntry](), nil
	case types.CacheSQLite:
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
		return cache.NewSQLite[types.AIParseEntry](filepath.Join(cfg.Dir, "ai_cache.db"))
	case types.CacheFile, "":
		return cache.NewFile[types.AIParseEntry](filepath.Join(cfg.Dir, "ai_cache.json"), os.Stderr), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q: use memory, file, or sqlite", cfg.Backend)
	}
}

// newEmbeddingCache builds the name-keyed vector cache, kept in a separate
// store from the AI cache.
func newEmbeddingCache(cfg types.CacheConfig) (cache.Store[[]float64], error) {
	switch cfg.Backend {
	case types.CacheMemory:
		return cache.NewMemory[[]float64](), nil
	case types.CacheSQLite:
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
		return cache.NewSQLite[[]float64](filepath.Join(cfg.Dir, "embedding_cache.db"))
	case types.CacheFile, "":
		return cache.NewFile[[]float64](filepath.Join(cfg.Dir, "embedding_cache.json"), os.Stderr), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q: use memory, file, or sqlite", cfg.Backend)
	}
}
