// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package enrich is the composition root of the normalization engine: it
// chunks raw price-list records through the hybrid coordinator, attaches
// semantic embeddings from a separately cached provider, and serializes
// the output and a run report.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pdiddy/price-engine/internal/cache"
	"github.com/pdiddy/price-engine/internal/hybrid"
	"github.com/pdiddy/price-engine/pkg/types"
)

// maxEmbedBatch caps texts per embedding call, the provider's documented
// limit.
const maxEmbedBatch = 100

const (
	defaultChunkSize     = 5
	defaultSubBatchDelay = time.Second
)

// Pipeline drives a full enrichment run. Provider calls are blocking and
// sequential; batching is the only throughput technique, to respect
// provider rate limits and bound per-run cost.
type Pipeline struct {
	coord    *hybrid.Coordinator
	embedder EmbeddingBackend
	store    cache.Store[[]float64]

	chunkSize    int
	subBatchSize int
	delay        time.Duration
}

// New builds a pipeline. embedder may be nil to skip the embedding pass;
// store holds name-keyed vectors and may be nil when embedder is nil.
func New(coord *hybrid.Coordinator, embedder EmbeddingBackend, store cache.Store[[]float64], cfg types.PipelineConfig, ecfg types.EmbeddingConfig) *Pipeline {
	p := &Pipeline{
		coord:        coord,
		embedder:     embedder,
		store:        store,
		chunkSize:    cfg.BatchSize,
		subBatchSize: ecfg.SubBatchSize,
		delay:        ecfg.SubBatchDelay,
	}
	if p.chunkSize <= 0 {
		p.chunkSize = defaultChunkSize
	}
	if p.subBatchSize <= 0 || p.subBatchSize > maxEmbedBatch {
		p.subBatchSize = maxEmbedBatch
	}
	if p.delay <= 0 {
		p.delay = defaultSubBatchDelay
	}
	if cfg.SkipEmbeddings {
		p.embedder = nil
	}
	if p.store == nil {
		p.store = cache.NewMemory[[]float64]()
	}
	return p
}

// Enrich parses all records chunk by chunk, then attaches embeddings in a
// separate pass. No per-item or per-batch provider failure escapes:
// failed items stay unresolved and failed embeddings become empty
// vectors. Progress is written to w.
func (p *Pipeline) Enrich(ctx context.Context, records []types.InputRecord, w io.Writer) ([]types.EnrichedProduct, error) {
	parsed := make([]types.ParsedProduct, 0, len(records))
	chunks := (len(records) + p.chunkSize - 1) / p.chunkSize

	for i := 0; i < len(records); i += p.chunkSize {
		end := min(i+p.chunkSize, len(records))
		chunk := p.coord.ParseBatch(ctx, records[i:end])
		parsed = append(parsed, chunk...)

		resolved := 0
		for _, pp := range chunk {
			if pp.Resolved() {
				resolved++
			}
		}
		fmt.Fprintf(w, "chunk %d/%d: parsed %d/%d\n", i/p.chunkSize+1, chunks, resolved, len(chunk))
	}

	if p.embedder != nil {
		if err := p.embedAll(ctx, parsed, w); err != nil {
			return nil, err
		}
	}

	enriched := make([]types.EnrichedProduct, len(parsed))
	for i, pp := range parsed {
		vec, ok := p.store.Get(pp.OriginalName)
		if !ok {
			vec = []float64{}
		}
		enriched[i] = types.EnrichedProduct{ParsedProduct: pp, Embedding: vec}
	}
	return enriched, nil
}

// embedAll fetches vectors for every distinct uncached name in sub-batches,
// pausing a fixed delay between provider calls. A failed sub-batch is a
// warning; its names surface as empty vectors and stay uncached so the
// next run retries them. The cache is persisted once after the full pass.
func (p *Pipeline) embedAll(ctx context.Context, parsed []types.ParsedProduct, w io.Writer) error {
	var missing []string
	seen := make(map[string]bool)
	for _, pp := range parsed {
		if seen[pp.OriginalName] {
			continue
		}
		seen[pp.OriginalName] = true
		if _, ok := p.store.Get(pp.OriginalName); !ok {
			missing = append(missing, pp.OriginalName)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	fmt.Fprintf(w, "embedding %d new names\n", len(missing))

	for i := 0; i < len(missing); i += p.subBatchSize {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.delay):
			}
		}

		batch := missing[i:min(i+p.subBatchSize, len(missing))]
		vectors, err := p.embedder.Embed(ctx, batch)
		if err != nil {
			fmt.Fprintf(w, "warning: embedding batch at %d: %v\n", i, err)
			continue
		}
		for j, name := range batch {
			p.store.Put(name, vectors[j])
		}
	}

	if err := p.store.Flush(); err != nil {
		fmt.Fprintf(w, "warning: persisting embedding cache: %v\n", err)
	}
	return nil
}

// SaveResults writes the enriched list as indented JSON.
func (p *Pipeline) SaveResults(path string, products []types.EnrichedProduct) error {
	data, err := json.MarshalIndent(products, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling results: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing results %s: %w", path, err)
	}
	return nil
}

// Report aggregates counts by parsing method and metric unit together with
// the coordinator's statistics.
func (p *Pipeline) Report(products []types.EnrichedProduct) types.Report {
	summary := types.ReportSummary{
		TotalProducts:  len(products),
		ParsingMethods: make(map[string]int),
		MetricUnits:    make(map[string]int),
	}
	for _, pp := range products {
		summary.ParsingMethods[pp.ParsingMethod]++
		if pp.MetricUnit != nil {
			summary.MetricUnits[string(*pp.MetricUnit)]++
		}
		if pp.Resolved() {
			summary.SuccessfullyParsed++
		}
	}
	if summary.TotalProducts > 0 {
		summary.SuccessRate = float64(summary.SuccessfullyParsed) / float64(summary.TotalProducts)
	}

	return types.Report{
		Summary: summary,
		Details: types.ReportDetails{HybridStats: p.coord.Stats()},
	}
}

// SaveReport writes the run report as indented JSON.
func (p *Pipeline) SaveReport(path string, report types.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report %s: %w", path, err)
	}
	return nil
}
