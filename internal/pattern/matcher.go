// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pattern normalizes free-text supplier product descriptions into
// canonical metric quantities with a fixed-priority catalog of deterministic
// text rules. It makes no external calls and never returns an error: a rule
// whose numbers do not survive conversion simply yields to the next rule.
package pattern

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdiddy/price-engine/pkg/types"
)

// Regex fragments shared by the rule catalog. num captures one decimal
// number with either separator; sep matches the dimension delimiters that
// occur in supplier texts (Latin x, Cyrillic х, ×, *); eow ends a unit
// token so that "л" does not fire inside "лет" or "линолеум".
const (
	num = `(\d+(?:[.,]\d+)?)`
	sep = `\s*[xх×*]\s*`
	eow = `(?:[^а-яёa-z0-9]|$)`

	// eowM additionally rejects the superscripts so a bare "м" does not
	// swallow the start of "м²"/"м³".
	eowM = `(?:[^а-яёa-z0-9²³]|$)`
)

// rule is one catalog entry. convert derives the quantity from the capture
// groups; returning false falls through to the next rule. Ambiguous rules
// have no convert: the matched digits are not turned into a physical
// quantity because their unit (mm vs cm) cannot be read off the text.
type rule struct {
	method     string
	re         *regexp.Regexp
	confidence float64
	ambiguous  bool
	convert    func(groups []string) (types.MetricUnit, float64, bool)
}

// Matcher holds the compiled rule catalog. Priority order is the only
// tie-break between rules; there is no scoring.
type Matcher struct {
	rules []rule
}

// New compiles the rule catalog.
func New() *Matcher {
	one := func(unit types.MetricUnit, scale float64) func([]string) (types.MetricUnit, float64, bool) {
		return func(g []string) (types.MetricUnit, float64, bool) {
			n, ok := parseNum(g[0])
			if !ok || n*scale <= 0 {
				return "", 0, false
			}
			return unit, n * scale, true
		}
	}

	return &Matcher{rules: []rule{
		{
			method:     "direct_volume",
			re:         regexp.MustCompile(`(?i)` + num + `\s*(?:м[3³]|куб\.?\s*м)`),
			confidence: 0.95,
			convert:    one(types.UnitCubicMeter, 1),
		},
		{
			method:     "direct_volume_liters",
			re:         regexp.MustCompile(`(?i)` + num + `\s*(?:литр[а-яё]*|л)` + eow),
			confidence: 0.95,
			convert:    one(types.UnitLiter, 1),
		},
		{
			method:     "direct_area",
			re:         regexp.MustCompile(`(?i)` + num + `\s*(?:м[2²]|кв\.?\s*м)`),
			confidence: 0.95,
			convert:    one(types.UnitSquareMeter, 1),
		},
		{
			method:     "direct_weight_kg",
			re:         regexp.MustCompile(`(?i)` + num + `\s*кг` + eow),
			confidence: 0.95,
			convert:    one(types.UnitKilogram, 1),
		},
		{
			method:     "direct_weight_tons",
			re:         regexp.MustCompile(`(?i)` + num + `\s*(?:тонн[а-яё]*|т)` + eow),
			confidence: 0.95,
			convert:    one(types.UnitKilogram, 1000),
		},
		{
			method:     "direct_weight_grams",
			re:         regexp.MustCompile(`(?i)` + num + `\s*(?:грамм[а-яё]*|гр|г)` + eow),
			confidence: 0.95,
			convert:    one(types.UnitKilogram, 0.001),
		},
		{
			method:     "direct_volume_ml",
			re:         regexp.MustCompile(`(?i)` + num + `\s*мл` + eow),
			confidence: 0.95,
			convert:    one(types.UnitLiter, 0.001),
		},
		{
			method:     "roll_length",
			re:         regexp.MustCompile(`(?i)` + num + `\s*м\s+в\s+рулоне`),
			confidence: 0.9,
			convert:    one(types.UnitMeter, 1),
		},
		{
			// L×W×T in millimeters with sheet-range thickness: a single
			// digit or 10-49. Thickness 50 is outside both this range and
			// the volume range below and falls through.
			method:     "sheet_area_dimensions",
			re:         regexp.MustCompile(`(?i)` + num + sep + num + sep + `([1-4]?\d)\s*мм` + eow),
			confidence: 0.9,
			convert: func(g []string) (types.MetricUnit, float64, bool) {
				l, okL := parseNum(g[0])
				w, okW := parseNum(g[1])
				if !okL || !okW {
					return "", 0, false
				}
				q := round6(l / 1000 * (w / 1000))
				if q <= 0 {
					return "", 0, false
				}
				return types.UnitSquareMeter, q, true
			},
		},
		{
			// L×W×T in millimeters with block-range thickness: 51-99 or
			// three and more digits.
			method:     "volume_dimensions",
			re:         regexp.MustCompile(`(?i)` + num + sep + num + sep + `(5[1-9]|[6-9]\d|\d{3,})\s*мм` + eow),
			confidence: 0.9,
			convert: func(g []string) (types.MetricUnit, float64, bool) {
				l, okL := parseNum(g[0])
				w, okW := parseNum(g[1])
				t, okT := parseNum(g[2])
				if !okL || !okW || !okT {
					return "", 0, false
				}
				q := round6(l / 1000 * (w / 1000) * (t / 1000))
				if q <= 0 {
					return "", 0, false
				}
				return types.UnitCubicMeter, q, true
			},
		},
		{
			method:     "volume_dimensions_m",
			re:         regexp.MustCompile(`(?i)` + num + sep + num + sep + num + `\s*м` + eowM),
			confidence: 0.9,
			convert: func(g []string) (types.MetricUnit, float64, bool) {
				l, okL := parseNum(g[0])
				w, okW := parseNum(g[1])
				h, okH := parseNum(g[2])
				if !okL || !okW || !okH {
					return "", 0, false
				}
				q := round6(l * w * h)
				if q <= 0 {
					return "", 0, false
				}
				return types.UnitCubicMeter, q, true
			},
		},
		{
			method:     "area_dimensions",
			re:         regexp.MustCompile(`(?i)` + num + sep + num + `\s*(мм|м)` + eowM),
			confidence: 0.9,
			convert: func(g []string) (types.MetricUnit, float64, bool) {
				l, okL := parseNum(g[0])
				w, okW := parseNum(g[1])
				if !okL || !okW {
					return "", 0, false
				}
				if strings.EqualFold(g[2], "мм") {
					l /= 1000
					w /= 1000
				}
				q := round6(l * w)
				if q <= 0 {
					return "", 0, false
				}
				return types.UnitSquareMeter, q, true
			},
		},
		{
			// Roofing rolls are habitually listed as bare "1х10" pairs.
			method:     "roofing_material",
			re:         regexp.MustCompile(`(?i)рубероид.*?` + num + sep + num),
			confidence: 0.8,
			convert: func(g []string) (types.MetricUnit, float64, bool) {
				l, okL := parseNum(g[0])
				w, okW := parseNum(g[1])
				if !okL || !okW {
					return "", 0, false
				}
				q := round6(l * w)
				if q <= 0 {
					return "", 0, false
				}
				return types.UnitSquareMeter, q, true
			},
		},
		{
			method:     "brick_dimensions",
			re:         regexp.MustCompile(`(?i)кирпич.*?` + num + sep + num + sep + num),
			confidence: 0.5,
			ambiguous:  true,
		},
		{
			method:     "gas_concrete_dimensions",
			re:         regexp.MustCompile(`(?i)газобетон.*?` + num + sep + num + sep + num),
			confidence: 0.5,
			ambiguous:  true,
		},
		{
			method:     "ambiguous_dimensions",
			re:         regexp.MustCompile(`(?i)\(\s*` + num + sep + num + sep + num + `\s*\)`),
			confidence: 0.4,
			ambiguous:  true,
		},
		{
			method:     "dimensions_without_unit",
			re:         regexp.MustCompile(`(?i)` + num + sep + num + sep + num + `\s*(?:[^м\s0-9]|$)`),
			confidence: 0.3,
			ambiguous:  true,
		},
	}}
}

// Parse normalizes one (name, price, unit) triple. The first rule whose
// match survives numeric conversion wins. When no rule matches, the result
// carries ParsingMethod "no_parsing", zero confidence, and nil quantity
// fields.
func (m *Matcher) Parse(name string, price float64, unit string) types.ParsedProduct {
	p := types.ParsedProduct{
		OriginalName:  name,
		OriginalPrice: price,
		OriginalUnit:  unit,
		ParsingMethod: types.MethodNoParsing,
		Kind:          types.MatchNone,
	}

	for _, r := range m.rules {
		g := r.re.FindStringSubmatch(name)
		if g == nil {
			continue
		}

		if r.ambiguous {
			fillAmbiguous(&p, r.method, r.confidence)
			return p
		}

		mu, qty, ok := r.convert(g[1:])
		if !ok {
			continue
		}
		fillResolved(&p, r.method, r.confidence, mu, qty)
		return p
	}

	return p
}

func fillResolved(p *types.ParsedProduct, method string, conf float64, mu types.MetricUnit, qty float64) {
	perUnit := p.OriginalPrice / qty
	coeff := qty

	p.MetricUnit = &mu
	p.Quantity = &qty
	p.PricePerUnit = &perUnit
	p.PriceCoefficient = &coeff
	p.ParsingMethod = method
	p.Confidence = conf
	p.Kind = types.MatchResolved
}

// fillAmbiguous records the шт/1.0 placeholder for a dimension triple whose
// unit of measurement cannot be determined from the text.
func fillAmbiguous(p *types.ParsedProduct, method string, conf float64) {
	mu := types.UnitPiece
	qty := 1.0
	perUnit := p.OriginalPrice
	coeff := 1.0

	p.MetricUnit = &mu
	p.Quantity = &qty
	p.PricePerUnit = &perUnit
	p.PriceCoefficient = &coeff
	p.ParsingMethod = method
	p.Confidence = conf
	p.NeedsAIVerification = true
	p.Kind = types.MatchAmbiguous
}

// parseNum converts one captured number, normalizing the decimal comma.
func parseNum(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
