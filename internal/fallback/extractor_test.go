// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fallback

import (
	"context"
	"math"
	"testing"

	"github.com/pdiddy/price-engine/internal/cache"
	"github.com/pdiddy/price-engine/pkg/types"
)

// mockClient replays canned completions and records every request.
type mockClient struct {
	responses []CompletionResponse
	err       error
	calls     int
	requests  []CompletionRequest
}

func (m *mockClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	m.calls++
	m.requests = append(m.requests, req)
	if m.err != nil {
		return CompletionResponse{}, m.err
	}
	i := m.calls - 1
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	return m.responses[i], nil
}

func testConfig() types.AIConfig {
	return types.AIConfig{Provider: types.ProviderAnthropic, Model: "test-model", APIKey: "test-key"}
}

func newTestExtractor(t *testing.T, client ProviderClient) *Extractor {
	t.Helper()
	e, err := NewWithClient(testConfig(), client, cache.NewMemory[types.AIParseEntry](), nil)
	if err != nil {
		t.Fatalf("NewWithClient: %v", err)
	}
	return e
}

func TestNewWithClientRequiresAPIKey(t *testing.T) {
	cfg := testConfig()
	cfg.APIKey = ""
	_, err := NewWithClient(cfg, &mockClient{}, nil, nil)
	if err == nil {
		t.Fatal("expected an error for a missing API key")
	}
}

func TestParseProductJSONResponse(t *testing.T) {
	client := &mockClient{responses: []CompletionResponse{
		{Text: `Вот результат: {"metric_unit": "м3", "price_coefficient": 0.036}`, TokensUsed: 80},
	}}
	e := newTestExtractor(t, client)

	entry, err := e.ParseProduct(context.Background(), types.InputRecord{Name: "Газобетон D500", Price: 150, Unit: "шт"})
	if err != nil {
		t.Fatalf("ParseProduct: %v", err)
	}
	if entry.MetricUnit != types.UnitCubicMeter {
		t.Errorf("MetricUnit = %q, want м3", entry.MetricUnit)
	}
	if entry.PriceCoefficient != 0.036 {
		t.Errorf("PriceCoefficient = %v, want 0.036", entry.PriceCoefficient)
	}
	if entry.Confidence != confJSON {
		t.Errorf("Confidence = %v, want %v", entry.Confidence, confJSON)
	}
	if client.calls != 1 {
		t.Errorf("provider calls = %d, want 1", client.calls)
	}
	if got := client.requests[0].MaxTokens; got != singleMaxTokens {
		t.Errorf("MaxTokens = %d, want %d", got, singleMaxTokens)
	}
}

func TestParseProductLineScanFallback(t *testing.T) {
	client := &mockClient{responses: []CompletionResponse{
		{Text: "metric_unit: м2\nprice_coefficient: 1,5 (примерно)", TokensUsed: 60},
	}}
	e := newTestExtractor(t, client)

	entry, err := e.ParseProduct(context.Background(), types.InputRecord{Name: "Линолеум", Price: 300, Unit: "рулон"})
	if err != nil {
		t.Fatalf("ParseProduct: %v", err)
	}
	if entry.MetricUnit != types.UnitSquareMeter {
		t.Errorf("MetricUnit = %q, want м2", entry.MetricUnit)
	}
	if entry.PriceCoefficient != 1.5 {
		t.Errorf("PriceCoefficient = %v, want 1.5", entry.PriceCoefficient)
	}
	if entry.Confidence != confLineScan {
		t.Errorf("Confidence = %v, want %v (degraded path)", entry.Confidence, confLineScan)
	}
}

func TestParseProductUnparsableResponse(t *testing.T) {
	client := &mockClient{responses: []CompletionResponse{
		{Text: "не могу определить", TokensUsed: 20},
	}}
	e := newTestExtractor(t, client)

	if _, err := e.ParseProduct(context.Background(), types.InputRecord{Name: "Товар", Price: 1, Unit: "шт"}); err == nil {
		t.Fatal("expected an error for an unparsable response")
	}
}

// An identical (name, price, unit) triple never costs a second network
// call once resolved.
func TestParseProductCacheIdempotence(t *testing.T) {
	client := &mockClient{responses: []CompletionResponse{
		{Text: `{"metric_unit": "кг", "price_coefficient": 25}`, TokensUsed: 50},
	}}
	e := newTestExtractor(t, client)
	rec := types.InputRecord{Name: "Цемент М500", Price: 400, Unit: "мешок"}

	first, err := e.ParseProduct(context.Background(), rec)
	if err != nil {
		t.Fatalf("first ParseProduct: %v", err)
	}
	second, err := e.ParseProduct(context.Background(), rec)
	if err != nil {
		t.Fatalf("second ParseProduct: %v", err)
	}

	if client.calls != 1 {
		t.Fatalf("provider calls = %d, want 1 (second lookup must hit the cache)", client.calls)
	}
	if *first != *second {
		t.Errorf("cached entry %+v differs from original %+v", *second, *first)
	}
	if hits := e.Stats().CacheHits; hits != 1 {
		t.Errorf("CacheHits = %d, want 1", hits)
	}
}

// Case differences in name and unit map to the same cache key.
func TestParseProductCacheKeyNormalization(t *testing.T) {
	client := &mockClient{responses: []CompletionResponse{
		{Text: `{"metric_unit": "кг", "price_coefficient": 25}`, TokensUsed: 50},
	}}
	e := newTestExtractor(t, client)

	if _, err := e.ParseProduct(context.Background(), types.InputRecord{Name: "Цемент М500", Price: 400, Unit: "Мешок"}); err != nil {
		t.Fatalf("ParseProduct: %v", err)
	}
	if _, err := e.ParseProduct(context.Background(), types.InputRecord{Name: "ЦЕМЕНТ м500", Price: 400, Unit: "мешок"}); err != nil {
		t.Fatalf("ParseProduct: %v", err)
	}
	if client.calls != 1 {
		t.Errorf("provider calls = %d, want 1", client.calls)
	}
}

// A batch of k unresolved items costs exactly one provider call.
func TestParseBatchSingleProviderCall(t *testing.T) {
	client := &mockClient{responses: []CompletionResponse{
		{Text: `[{"metric_unit": "м3", "price_coefficient": 0.036},
			{"metric_unit": "кг", "price_coefficient": 25},
			{"metric_unit": "шт", "price_coefficient": 1}]`, TokensUsed: 200},
	}}
	e := newTestExtractor(t, client)

	records := []types.InputRecord{
		{Name: "Газобетон D500", Price: 150, Unit: "шт"},
		{Name: "Цемент в мешках", Price: 400, Unit: "мешок"},
		{Name: "Ведро строительное", Price: 90, Unit: "шт"},
	}
	results, err := e.ParseBatch(context.Background(), records)
	if err != nil {
		t.Fatalf("ParseBatch: %v", err)
	}
	if client.calls != 1 {
		t.Fatalf("provider calls = %d, want 1 for the whole batch", client.calls)
	}
	if got := client.requests[0].MaxTokens; got != batchMaxTokens {
		t.Errorf("MaxTokens = %d, want %d", got, batchMaxTokens)
	}
	if len(results) != len(records) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(records))
	}
	for i, res := range results {
		if res.Record.Name != records[i].Name {
			t.Errorf("results[%d] is %q, want %q (order must be preserved)", i, res.Record.Name, records[i].Name)
		}
		if res.Entry == nil {
			t.Errorf("results[%d].Entry is nil", i)
		}
	}
	if results[1].Entry.MetricUnit != types.UnitKilogram || results[1].Entry.PriceCoefficient != 25 {
		t.Errorf("results[1].Entry = %+v, want кг/25", *results[1].Entry)
	}
}

// Cached items are attached without entering the batch prompt; a fully
// cached batch costs zero calls.
func TestParseBatchUsesCache(t *testing.T) {
	client := &mockClient{responses: []CompletionResponse{
		{Text: `{"metric_unit": "л", "price_coefficient": 10}`, TokensUsed: 40},
		{Text: `[{"metric_unit": "кг", "price_coefficient": 5}]`, TokensUsed: 60},
	}}
	e := newTestExtractor(t, client)

	cached := types.InputRecord{Name: "Грунтовка", Price: 500, Unit: "канистра"}
	if _, err := e.ParseProduct(context.Background(), cached); err != nil {
		t.Fatalf("priming ParseProduct: %v", err)
	}

	fresh := types.InputRecord{Name: "Шпатлёвка", Price: 250, Unit: "мешок"}
	results, err := e.ParseBatch(context.Background(), []types.InputRecord{cached, fresh})
	if err != nil {
		t.Fatalf("ParseBatch: %v", err)
	}
	if client.calls != 2 {
		t.Fatalf("provider calls = %d, want 2 (one priming, one batch)", client.calls)
	}
	if results[0].Entry == nil || results[0].Entry.MetricUnit != types.UnitLiter {
		t.Errorf("cached results[0].Entry = %+v, want л", results[0].Entry)
	}
	if results[1].Entry == nil || results[1].Entry.MetricUnit != types.UnitKilogram {
		t.Errorf("results[1].Entry = %+v, want кг", results[1].Entry)
	}

	// Everything is cached now: a repeat batch makes no calls.
	if _, err := e.ParseBatch(context.Background(), []types.InputRecord{cached, fresh}); err != nil {
		t.Fatalf("repeat ParseBatch: %v", err)
	}
	if client.calls != 2 {
		t.Errorf("provider calls = %d after repeat batch, want still 2", client.calls)
	}
}

// A short or partially invalid array leaves the unmatched tail nil
// instead of failing the whole batch.
func TestParseBatchShortArrayPadded(t *testing.T) {
	client := &mockClient{responses: []CompletionResponse{
		{Text: `[{"metric_unit": "м2", "price_coefficient": 3}]`, TokensUsed: 70},
	}}
	e := newTestExtractor(t, client)

	results, err := e.ParseBatch(context.Background(), []types.InputRecord{
		{Name: "Фанера", Price: 900, Unit: "лист"},
		{Name: "Непонятный товар", Price: 10, Unit: "шт"},
	})
	if err != nil {
		t.Fatalf("ParseBatch: %v", err)
	}
	if results[0].Entry == nil {
		t.Fatal("results[0].Entry is nil")
	}
	if results[1].Entry != nil {
		t.Errorf("results[1].Entry = %+v, want nil for the unanswered item", *results[1].Entry)
	}
}

// When no array is present, per-line objects are accepted in order with
// the reduced batch confidence.
func TestParseBatchLineFallback(t *testing.T) {
	client := &mockClient{responses: []CompletionResponse{
		{Text: "{\"metric_unit\": \"м3\", \"price_coefficient\": 0.045}\n{\"metric_unit\": \"кг\", \"price_coefficient\": 50}", TokensUsed: 90},
	}}
	e := newTestExtractor(t, client)

	results, err := e.ParseBatch(context.Background(), []types.InputRecord{
		{Name: "Пеноблок", Price: 200, Unit: "шт"},
		{Name: "Щебень", Price: 700, Unit: "мешок"},
	})
	if err != nil {
		t.Fatalf("ParseBatch: %v", err)
	}
	for i, res := range results {
		if res.Entry == nil {
			t.Fatalf("results[%d].Entry is nil", i)
		}
		if res.Entry.Confidence != confBatchLines {
			t.Errorf("results[%d].Confidence = %v, want %v", i, res.Entry.Confidence, confBatchLines)
		}
	}
	if results[0].Entry.PriceCoefficient != 0.045 {
		t.Errorf("results[0].PriceCoefficient = %v, want 0.045", results[0].Entry.PriceCoefficient)
	}
}

// A provider failure returns the error with cached entries still attached.
func TestParseBatchProviderError(t *testing.T) {
	primer := &mockClient{responses: []CompletionResponse{
		{Text: `{"metric_unit": "шт", "price_coefficient": 1}`, TokensUsed: 30},
	}}
	store := cache.NewMemory[types.AIParseEntry]()
	e, err := NewWithClient(testConfig(), primer, store, nil)
	if err != nil {
		t.Fatalf("NewWithClient: %v", err)
	}
	cached := types.InputRecord{Name: "Ведро", Price: 90, Unit: "шт"}
	if _, err := e.ParseProduct(context.Background(), cached); err != nil {
		t.Fatalf("priming ParseProduct: %v", err)
	}

	failing, err := NewWithClient(testConfig(), &mockClient{err: context.DeadlineExceeded}, store, nil)
	if err != nil {
		t.Fatalf("NewWithClient: %v", err)
	}
	results, err := failing.ParseBatch(context.Background(), []types.InputRecord{
		cached,
		{Name: "Неизвестный", Price: 5, Unit: "шт"},
	})
	if err == nil {
		t.Fatal("expected the provider error to surface")
	}
	if results[0].Entry == nil {
		t.Error("cached results[0].Entry lost on provider failure")
	}
	if results[1].Entry != nil {
		t.Error("results[1].Entry set despite provider failure")
	}
}

func TestStatsAccounting(t *testing.T) {
	client := &mockClient{responses: []CompletionResponse{
		{Text: `{"metric_unit": "кг", "price_coefficient": 25}`, TokensUsed: 100},
		{Text: `{"metric_unit": "л", "price_coefficient": 10}`, TokensUsed: 300},
	}}
	cfg := testConfig()
	cfg.PricePer1KTokens = 0.01
	cfg.CurrencyRate = 2.0
	e, err := NewWithClient(cfg, client, cache.NewMemory[types.AIParseEntry](), nil)
	if err != nil {
		t.Fatalf("NewWithClient: %v", err)
	}

	ctx := context.Background()
	if _, err := e.ParseProduct(ctx, types.InputRecord{Name: "Цемент", Price: 400, Unit: "мешок"}); err != nil {
		t.Fatalf("ParseProduct: %v", err)
	}
	if _, err := e.ParseProduct(ctx, types.InputRecord{Name: "Грунтовка", Price: 500, Unit: "шт"}); err != nil {
		t.Fatalf("ParseProduct: %v", err)
	}

	s := e.Stats()
	if s.TotalRequests != 2 {
		t.Errorf("TotalRequests = %d, want 2", s.TotalRequests)
	}
	if s.TotalTokens != 400 {
		t.Errorf("TotalTokens = %d, want 400", s.TotalTokens)
	}
	// 400 tokens at 0.01 per 1K, rate 2.0.
	if math.Abs(s.EstimatedCost-0.008) > 1e-9 {
		t.Errorf("EstimatedCost = %v, want 0.008", s.EstimatedCost)
	}
	if s.AvgTokensPerRequest != 200 {
		t.Errorf("AvgTokensPerRequest = %v, want 200", s.AvgTokensPerRequest)
	}
}

func TestBatchSizeDefault(t *testing.T) {
	e := newTestExtractor(t, &mockClient{})
	if e.BatchSize() != defaultBatchSize {
		t.Errorf("BatchSize = %d, want %d", e.BatchSize(), defaultBatchSize)
	}

	cfg := testConfig()
	cfg.BatchSize = 12
	e2, err := NewWithClient(cfg, &mockClient{}, nil, nil)
	if err != nil {
		t.Fatalf("NewWithClient: %v", err)
	}
	if e2.BatchSize() != 12 {
		t.Errorf("BatchSize = %d, want 12", e2.BatchSize())
	}
}
