// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fallback

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/pdiddy/price-engine/pkg/types"
)

// systemPrompt fixes the provider's role for both the single and batch
// paths. The domain texts are Russian supplier price lists, so the prompt
// speaks Russian too.
const systemPrompt = `Ты — система нормализации строительных прайс-листов. ` +
	`По названию товара, цене и единице измерения ты определяешь каноническую ` +
	`метрическую единицу (м3, м2, кг, л, м или шт) и коэффициент пересчёта.`

// singlePromptTmpl asks for exactly one JSON object for one product.
var singlePromptTmpl = template.Must(template.New("single").Parse(`Определи метрическую единицу и коэффициент для товара.

Товар: {{.Name}}
Цена: {{.Price}}
Единица: {{.Unit}}

price_coefficient — сколько метрических единиц содержится в одной исходной
единице продажи (например, объём одного блока в м3). Всегда больше нуля.

Ответь ТОЛЬКО одним JSON-объектом без пояснений:
{"metric_unit": "м3", "price_coefficient": 0.036}
`))

// batchPromptTmpl enumerates several products and asks for a positionally
// aligned JSON array.
var batchPromptTmpl = template.Must(template.New("batch").Parse(`Определи метрическую единицу и коэффициент для каждого товара.

{{range $i, $p := .Items}}{{$i}}. Товар: {{$p.Name}}; Цена: {{$p.Price}}; Единица: {{$p.Unit}}
{{end}}
price_coefficient — сколько метрических единиц содержится в одной исходной
единице продажи. Всегда больше нуля.

Ответь ТОЛЬКО JSON-массивом, по одному объекту на товар, в том же порядке:
[{"metric_unit": "м3", "price_coefficient": 0.036}, ...]
`))

func renderSinglePrompt(rec types.InputRecord) (string, error) {
	var buf bytes.Buffer
	if err := singlePromptTmpl.Execute(&buf, rec); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func renderBatchPrompt(items []types.InputRecord) (string, error) {
	var buf bytes.Buffer
	if err := batchPromptTmpl.Execute(&buf, struct{ Items []types.InputRecord }{items}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// entryWire is the object shape the provider is asked to produce.
type entryWire struct {
	MetricUnit       string  `json:"metric_unit"`
	PriceCoefficient float64 `json:"price_coefficient"`
}

func (w entryWire) valid() bool {
	return w.MetricUnit != "" && w.PriceCoefficient > 0
}

// parseEntryJSON locates the first balanced {...} object in text and
// decodes it. Returns false when there is no object or it fails
// validation.
func parseEntryJSON(text string) (entryWire, bool) {
	obj, ok := balancedSlice(text, '{', '}')
	if !ok {
		return entryWire{}, false
	}
	var w entryWire
	if err := json.Unmarshal([]byte(obj), &w); err != nil || !w.valid() {
		return entryWire{}, false
	}
	return w, true
}

// parseEntryLines is the degraded path for responses that ignored the JSON
// instruction: it scans lines for "metric_unit:" and "price_coefficient:"
// tokens.
func parseEntryLines(text string) (entryWire, bool) {
	var w entryWire
	for _, line := range strings.Split(text, "\n") {
		lower := strings.ToLower(line)
		switch {
		case strings.Contains(lower, "metric_unit"):
			w.MetricUnit = tokenValue(line)
		case strings.Contains(lower, "price_coefficient"):
			fmt.Sscanf(strings.Map(keepNumeric, tokenValue(line)), "%f", &w.PriceCoefficient)
		}
	}
	if !w.valid() {
		return entryWire{}, false
	}
	return w, true
}

// parseBatchArray locates the first balanced [...] array and decodes it as
// a positionally aligned response for n items. A shorter array is padded
// with misses; a longer one is truncated.
func parseBatchArray(text string, n int) ([]*entryWire, bool) {
	arr, ok := balancedSlice(text, '[', ']')
	if !ok {
		return nil, false
	}
	var wires []entryWire
	if err := json.Unmarshal([]byte(arr), &wires); err != nil {
		return nil, false
	}

	out := make([]*entryWire, n)
	for i := range wires {
		if i >= n {
			break
		}
		if wires[i].valid() {
			w := wires[i]
			out[i] = &w
		}
	}
	return out, true
}

// parseBatchLines scans the response line by line for individual JSON
// objects, accepting as many as parse in order and padding the rest.
func parseBatchLines(text string, n int) []*entryWire {
	out := make([]*entryWire, n)
	i := 0
	for _, line := range strings.Split(text, "\n") {
		if i >= n {
			break
		}
		w, ok := parseEntryJSON(line)
		if !ok {
			continue
		}
		out[i] = &w
		i++
	}
	return out
}

// balancedSlice returns the first substring delimited by a balanced
// open/close pair.
func balancedSlice(text string, open, close byte) (string, bool) {
	start := strings.IndexByte(text, open)
	if start < 0 {
		return "", false
	}
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// tokenValue extracts the value part of a "key: value" line, trimming
// JSON punctuation.
func tokenValue(line string) string {
	_, value, found := strings.Cut(line, ":")
	if !found {
		return ""
	}
	return strings.Trim(strings.TrimSpace(value), `"',{} `)
}

// keepNumeric drops everything but digits and separators so coefficients
// like "0,036 (м3)" still scan.
func keepNumeric(r rune) rune {
	switch {
	case r >= '0' && r <= '9', r == '.', r == '-':
		return r
	case r == ',':
		return '.'
	}
	return -1
}
