// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fallback resolves products the deterministic pattern catalog
// could not, by asking a text-generation provider. Every resolution is
// remembered in a content-addressed cache so an identical product never
// costs a second network call, and request counts, token usage, and
// estimated spend are tracked per extractor.
package fallback

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pdiddy/price-engine/internal/cache"
	"github.com/pdiddy/price-engine/pkg/types"
)

// Output budgets and sampling for the two call shapes.
const (
	singleMaxTokens = 100
	batchMaxTokens  = 500
	temperature     = 0.1

	defaultBatchSize = 5
)

// Confidence assigned per parsing path: clean JSON, degraded line scan,
// and per-line batch recovery.
const (
	confJSON       = 0.85
	confLineScan   = 0.75
	confBatchLines = 0.80
)

// Extractor wraps a ProviderClient behind a cache and a batching layer.
type Extractor struct {
	cfg    types.AIConfig
	client ProviderClient
	store  cache.Store[types.AIParseEntry]
	warn   io.Writer

	requests      int
	totalTokens   int
	estimatedCost float64
	cacheHits     int
}

// New builds an extractor with the provider adapter named by cfg. A
// missing credential is a construction-time error: there is no silent
// no-op fallback. Callers that only need the deterministic matcher must
// not construct an Extractor at all.
func New(cfg types.AIConfig, store cache.Store[types.AIParseEntry], warn io.Writer) (*Extractor, error) {
	client, err := NewProviderClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithClient(cfg, client, store, warn)
}

// NewWithClient is New with an injected provider client, for tests and
// custom transports.
func NewWithClient(cfg types.AIConfig, client ProviderClient, store cache.Store[types.AIParseEntry], warn io.Writer) (*Extractor, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("AI provider API key is required for the fallback extractor")
	}
	if store == nil {
		store = cache.NewMemory[types.AIParseEntry]()
	}
	if warn == nil {
		warn = io.Discard
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	return &Extractor{cfg: cfg, client: client, store: store, warn: warn}, nil
}

// BatchSize is the number of items callers should enumerate per batch
// prompt.
func (e *Extractor) BatchSize() int { return e.cfg.BatchSize }

// cacheKey digests the normalized (name, price, unit) triple.
func cacheKey(name string, price float64, unit string) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(name)))
	h.Write([]byte("|"))
	h.Write([]byte(strconv.FormatFloat(price, 'g', -1, 64)))
	h.Write([]byte("|"))
	h.Write([]byte(strings.ToLower(unit)))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// ParseProduct resolves one product. A cache hit costs no network call.
// A provider or parse failure is returned as an error; the caller treats
// the item as unresolved and continues.
func (e *Extractor) ParseProduct(ctx context.Context, rec types.InputRecord) (*types.AIParseEntry, error) {
	key := cacheKey(rec.Name, rec.Price, rec.Unit)
	if entry, ok := e.store.Get(key); ok {
		e.cacheHits++
		return &entry, nil
	}

	prompt, err := renderSinglePrompt(rec)
	if err != nil {
		return nil, fmt.Errorf("rendering prompt: %w", err)
	}

	resp, err := e.client.Complete(ctx, CompletionRequest{
		System:      systemPrompt,
		Prompt:      prompt,
		MaxTokens:   singleMaxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return nil, err
	}
	e.account(resp.TokensUsed)

	entry, ok := e.parseSingle(resp.Text)
	if !ok {
		return nil, fmt.Errorf("unparsable provider response for %q", rec.Name)
	}

	e.store.Put(key, entry)
	e.flush()
	return &entry, nil
}

// parseSingle tries the clean JSON path first, then the degraded line
// scan with reduced confidence.
func (e *Extractor) parseSingle(text string) (types.AIParseEntry, bool) {
	if w, ok := parseEntryJSON(text); ok {
		return types.AIParseEntry{
			MetricUnit:       types.MetricUnit(w.MetricUnit),
			PriceCoefficient: w.PriceCoefficient,
			Confidence:       confJSON,
		}, true
	}
	if w, ok := parseEntryLines(text); ok {
		return types.AIParseEntry{
			MetricUnit:       types.MetricUnit(w.MetricUnit),
			PriceCoefficient: w.PriceCoefficient,
			Confidence:       confLineScan,
		}, true
	}
	return types.AIParseEntry{}, false
}

// BatchResult pairs an input record with its resolution; Entry is nil for
// items the provider did not resolve.
type BatchResult struct {
	Record types.InputRecord
	Entry  *types.AIParseEntry
}

// ParseBatch resolves a list of products with at most one provider call:
// cached items attach immediately and the uncached remainder is enumerated
// in a single batch prompt. The returned slice is aligned to the input
// order. A provider error leaves the uncached entries nil and is returned
// alongside the partial results.
func (e *Extractor) ParseBatch(ctx context.Context, records []types.InputRecord) ([]BatchResult, error) {
	results := make([]BatchResult, len(records))
	var pending []int

	for i, rec := range records {
		results[i].Record = rec
		if entry, ok := e.store.Get(cacheKey(rec.Name, rec.Price, rec.Unit)); ok {
			e.cacheHits++
			entryCopy := entry
			results[i].Entry = &entryCopy
			continue
		}
		pending = append(pending, i)
	}

	if len(pending) == 0 {
		return results, nil
	}

	items := make([]types.InputRecord, len(pending))
	for j, i := range pending {
		items[j] = records[i]
	}

	prompt, err := renderBatchPrompt(items)
	if err != nil {
		return results, fmt.Errorf("rendering batch prompt: %w", err)
	}

	resp, err := e.client.Complete(ctx, CompletionRequest{
		System:      systemPrompt,
		Prompt:      prompt,
		MaxTokens:   batchMaxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return results, err
	}
	e.account(resp.TokensUsed)

	conf := confJSON
	wires, ok := parseBatchArray(resp.Text, len(items))
	if !ok {
		wires = parseBatchLines(resp.Text, len(items))
		conf = confBatchLines
	}

	for j, w := range wires {
		if w == nil {
			continue
		}
		entry := types.AIParseEntry{
			MetricUnit:       types.MetricUnit(w.MetricUnit),
			PriceCoefficient: w.PriceCoefficient,
			Confidence:       conf,
		}
		e.store.Put(cacheKey(items[j].Name, items[j].Price, items[j].Unit), entry)
		results[pending[j]].Entry = &entry
	}
	e.flush()

	return results, nil
}

// flush persists the cache best-effort: I/O failures are warnings, never
// errors, and the in-memory cache keeps serving the run.
func (e *Extractor) flush() {
	if err := e.store.Flush(); err != nil {
		fmt.Fprintf(e.warn, "warning: persisting AI cache: %v\n", err)
	}
}

// account books one provider call.
func (e *Extractor) account(tokens int) {
	e.requests++
	e.totalTokens += tokens
	e.estimatedCost += float64(tokens) / 1000 * e.pricePer1K() * e.currencyRate()
}

func (e *Extractor) pricePer1K() float64 {
	if e.cfg.PricePer1KTokens > 0 {
		return e.cfg.PricePer1KTokens
	}
	return 0.002
}

func (e *Extractor) currencyRate() float64 {
	if e.cfg.CurrencyRate > 0 {
		return e.cfg.CurrencyRate
	}
	return 1.0
}

// Stats reports totals and per-request averages for the run so far.
func (e *Extractor) Stats() types.CostStats {
	s := types.CostStats{
		TotalRequests: e.requests,
		TotalTokens:   e.totalTokens,
		EstimatedCost: e.estimatedCost,
		CacheHits:     e.cacheHits,
	}
	if e.requests > 0 {
		s.AvgTokensPerRequest = float64(e.totalTokens) / float64(e.requests)
		s.AvgCostPerRequest = e.estimatedCost / float64(e.requests)
	}
	return s
}
