// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types holds the shared domain and configuration types of the
// price normalization engine.
package types

// MetricUnit is one of the fixed canonical output units. Every resolved
// product is expressed in exactly one of these regardless of the unit
// label the supplier used.
type MetricUnit string

const (
	UnitCubicMeter  MetricUnit = "м3"
	UnitSquareMeter MetricUnit = "м2"
	UnitKilogram    MetricUnit = "кг"
	UnitLiter       MetricUnit = "л"
	UnitMeter       MetricUnit = "м"
	UnitPiece       MetricUnit = "шт"
)

// MatchKind tags the outcome of a parsing attempt so consumers branch on
// the kind instead of comparing confidence floats to thresholds.
type MatchKind string

const (
	// MatchResolved means a pattern (or the AI fallback) produced a usable
	// physical quantity in a canonical unit.
	MatchResolved MatchKind = "resolved"

	// MatchAmbiguous means a dimension triple was recognized but its unit
	// of measurement cannot be inferred from the text alone. The product
	// carries the шт/1.0 placeholder and NeedsAIVerification.
	MatchAmbiguous MatchKind = "ambiguous"

	// MatchNone means no pattern matched and the AI fallback (if any) did
	// not resolve the item.
	MatchNone MatchKind = "none"
)

// MethodNoParsing is the ParsingMethod of an unresolved product.
const MethodNoParsing = "no_parsing"

// MethodAIFallback is the ParsingMethod of a product resolved by the AI
// fallback extractor.
const MethodAIFallback = "ai_fallback"

// InputRecord is one raw supplier price-list row.
type InputRecord struct {
	Name  string  `json:"name" yaml:"name"`
	Price float64 `json:"price" yaml:"price"`
	Unit  string  `json:"unit" yaml:"unit"`
}

// ParsedProduct is the normalized result for one input record. The three
// Original* fields are copied from the input and never changed; the rest
// describe the derived metric quantity and its provenance. Nullable fields
// are pointers so an unresolved product serializes with explicit nulls.
type ParsedProduct struct {
	OriginalName  string  `json:"original_name" yaml:"original_name"`
	OriginalPrice float64 `json:"original_price" yaml:"original_price"`
	OriginalUnit  string  `json:"original_unit" yaml:"original_unit"`

	// MetricUnit is the canonical unit, nil while unresolved.
	MetricUnit *MetricUnit `json:"metric_unit" yaml:"metric_unit"`

	// Quantity is the amount of MetricUnit one original sales unit
	// contains. Strictly positive whenever MetricUnit is set.
	Quantity *float64 `json:"quantity" yaml:"quantity"`

	// PricePerUnit is OriginalPrice / Quantity.
	PricePerUnit *float64 `json:"price_per_unit" yaml:"price_per_unit"`

	// PriceCoefficient equals Quantity. Kept as a distinct field because
	// downstream consumers treat it as a price multiplier.
	PriceCoefficient *float64 `json:"price_coefficient" yaml:"price_coefficient"`

	// ParsingMethod names the pattern or AI path that produced the result,
	// or "no_parsing".
	ParsingMethod string `json:"parsing_method" yaml:"parsing_method"`

	// Confidence is in [0,1].
	Confidence float64 `json:"confidence" yaml:"confidence"`

	// NeedsAIVerification is set on ambiguous dimension matches whose
	// placeholder шт/1.0 result should be double-checked.
	NeedsAIVerification bool `json:"needs_ai_verification" yaml:"needs_ai_verification"`

	// Kind is the tagged outcome variant.
	Kind MatchKind `json:"match_kind" yaml:"match_kind"`
}

// Resolved reports whether any parsing path produced a result.
func (p *ParsedProduct) Resolved() bool {
	return p.ParsingMethod != MethodNoParsing
}

// EnrichedProduct is a ParsedProduct augmented with a semantic embedding
// vector. The pipeline copies the parsed fields; it never mutates the
// ParsedProduct it was built from.
type EnrichedProduct struct {
	ParsedProduct `yaml:",inline"`

	// Embedding is empty when the embedding provider failed or was skipped.
	Embedding []float64 `json:"embedding" yaml:"embedding"`
}

// AIParseEntry is the cached result of one AI fallback resolution. It is
// both the cache value and the wire-adjacent shape the provider is asked
// to produce.
type AIParseEntry struct {
	MetricUnit       MetricUnit `json:"metric_unit" yaml:"metric_unit"`
	PriceCoefficient float64    `json:"price_coefficient" yaml:"price_coefficient"`
	Confidence       float64    `json:"confidence" yaml:"confidence"`
}

// CostStats accumulates AI provider spend for one extractor instance.
type CostStats struct {
	TotalRequests int     `json:"total_requests" yaml:"total_requests"`
	TotalTokens   int     `json:"total_tokens" yaml:"total_tokens"`
	EstimatedCost float64 `json:"estimated_cost" yaml:"estimated_cost"`
	CacheHits     int     `json:"cache_hits" yaml:"cache_hits"`

	AvgTokensPerRequest float64 `json:"avg_tokens_per_request" yaml:"avg_tokens_per_request"`
	AvgCostPerRequest   float64 `json:"avg_cost_per_request" yaml:"avg_cost_per_request"`
}

// HybridStats aggregates coordinator outcomes across a run.
type HybridStats struct {
	Total        int `json:"total" yaml:"total"`
	RegexSuccess int `json:"regex_success" yaml:"regex_success"`
	AIFallback   int `json:"ai_fallback" yaml:"ai_fallback"`
	TotalFailed  int `json:"total_failed" yaml:"total_failed"`

	RegexSuccessRate float64 `json:"regex_success_rate" yaml:"regex_success_rate"`
	AIFallbackRate   float64 `json:"ai_fallback_rate" yaml:"ai_fallback_rate"`
	TotalSuccessRate float64 `json:"total_success_rate" yaml:"total_success_rate"`

	// AICost is present when the coordinator carries an AI extractor.
	AICost *CostStats `json:"ai_cost,omitempty" yaml:"ai_cost,omitempty"`
}

// ReportSummary is the top-level section of the run report.
type ReportSummary struct {
	TotalProducts      int            `json:"total_products" yaml:"total_products"`
	SuccessfullyParsed int            `json:"successfully_parsed" yaml:"successfully_parsed"`
	SuccessRate        float64        `json:"success_rate" yaml:"success_rate"`
	ParsingMethods     map[string]int `json:"parsing_methods" yaml:"parsing_methods"`
	MetricUnits        map[string]int `json:"metric_units" yaml:"metric_units"`
}

// ReportDetails carries the coordinator statistics.
type ReportDetails struct {
	HybridStats HybridStats `json:"hybrid_stats" yaml:"hybrid_stats"`
}

// Report is the serialized run summary written next to the enriched output.
type Report struct {
	Summary ReportSummary `json:"summary" yaml:"summary"`
	Details ReportDetails `json:"details" yaml:"details"`
}
