// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package hybrid orchestrates the deterministic pattern catalog and the AI
// fallback extractor, attributing every result to the path that produced
// it and exposing aggregate success statistics.
package hybrid

import (
	"context"
	"fmt"
	"io"

	"github.com/pdiddy/price-engine/internal/fallback"
	"github.com/pdiddy/price-engine/internal/pattern"
	"github.com/pdiddy/price-engine/pkg/types"
)

// Coordinator tries the pattern matcher first and escalates only items the
// matcher could not parse at all. An ambiguous pattern result still counts
// as a regex result and is NOT escalated here; its NeedsAIVerification
// flag is left for downstream consumers to act on.
type Coordinator struct {
	matcher   *pattern.Matcher
	extractor *fallback.Extractor
	warn      io.Writer

	total        int
	regexSuccess int
	aiFallback   int
	totalFailed  int
}

// New builds a coordinator. extractor may be nil for deterministic-only
// operation; warn receives per-item AI failure notices.
func New(matcher *pattern.Matcher, extractor *fallback.Extractor, warn io.Writer) *Coordinator {
	if matcher == nil {
		matcher = pattern.New()
	}
	if warn == nil {
		warn = io.Discard
	}
	return &Coordinator{matcher: matcher, extractor: extractor, warn: warn}
}

// ParseProduct normalizes one record. Any pattern result short-circuits
// the AI path; only a "no_parsing" outcome consults the extractor. An AI
// failure is logged and the unresolved product returned as-is, never an
// error.
func (c *Coordinator) ParseProduct(ctx context.Context, name string, price float64, unit string) types.ParsedProduct {
	c.total++

	p := c.matcher.Parse(name, price, unit)
	if p.Resolved() {
		c.regexSuccess++
		return p
	}

	if c.extractor == nil {
		c.totalFailed++
		return p
	}

	entry, err := c.extractor.ParseProduct(ctx, types.InputRecord{Name: name, Price: price, Unit: unit})
	if err != nil {
		fmt.Fprintf(c.warn, "warning: AI fallback for %q: %v\n", name, err)
		c.totalFailed++
		return p
	}

	applyEntry(&p, entry)
	c.aiFallback++
	return p
}

// ParseBatch normalizes a list of records, preserving input order. The
// pattern matcher runs over the full list first; the unresolved subset is
// submitted as one AI batch call and the results are spliced back by
// original name, first unresolved occurrence wins. Two items sharing an
// identical name can therefore swap results; callers needing exact
// attribution should deduplicate upstream.
func (c *Coordinator) ParseBatch(ctx context.Context, records []types.InputRecord) []types.ParsedProduct {
	out := make([]types.ParsedProduct, len(records))
	var unresolved []types.InputRecord

	for i, rec := range records {
		c.total++
		out[i] = c.matcher.Parse(rec.Name, rec.Price, rec.Unit)
		if out[i].Resolved() {
			c.regexSuccess++
		} else {
			unresolved = append(unresolved, rec)
		}
	}

	if len(unresolved) == 0 {
		return out
	}
	if c.extractor == nil {
		c.totalFailed += len(unresolved)
		return out
	}

	results, err := c.extractor.ParseBatch(ctx, unresolved)
	if err != nil {
		fmt.Fprintf(c.warn, "warning: AI fallback batch: %v\n", err)
	}

	for _, res := range results {
		if res.Entry == nil {
			continue
		}
		for i := range out {
			if out[i].Resolved() || out[i].OriginalName != res.Record.Name {
				continue
			}
			applyEntry(&out[i], res.Entry)
			c.aiFallback++
			break
		}
	}

	for i := range out {
		if !out[i].Resolved() {
			c.totalFailed++
		}
	}
	return out
}

// applyEntry converts an AI resolution into the product's quantity fields.
func applyEntry(p *types.ParsedProduct, entry *types.AIParseEntry) {
	mu := entry.MetricUnit
	qty := entry.PriceCoefficient
	perUnit := p.OriginalPrice / qty
	coeff := qty

	p.MetricUnit = &mu
	p.Quantity = &qty
	p.PricePerUnit = &perUnit
	p.PriceCoefficient = &coeff
	p.ParsingMethod = types.MethodAIFallback
	p.Confidence = entry.Confidence
	p.Kind = types.MatchResolved
}

// Stats reports counts and rates for the run so far, including the
// embedded extractor's cost stats when present.
func (c *Coordinator) Stats() types.HybridStats {
	s := types.HybridStats{
		Total:        c.total,
		RegexSuccess: c.regexSuccess,
		AIFallback:   c.aiFallback,
		TotalFailed:  c.totalFailed,
	}
	if c.total > 0 {
		s.RegexSuccessRate = float64(c.regexSuccess) / float64(c.total)
		s.AIFallbackRate = float64(c.aiFallback) / float64(c.total)
		s.TotalSuccessRate = float64(c.regexSuccess+c.aiFallback) / float64(c.total)
	}
	if c.extractor != nil {
		cost := c.extractor.Stats()
		s.AICost = &cost
	}
	return s
}
