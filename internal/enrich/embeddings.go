// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/pdiddy/price-engine/internal/httputil"
	"github.com/pdiddy/price-engine/pkg/types"
)

// openaiEmbeddingsURL is the embeddings endpoint. Package-level var for
// test substitution.
var openaiEmbeddingsURL = "https://api.openai.com/v1/embeddings"

// EmbeddingBackend turns a list of texts into one vector per text, in the
// same order. Implementations accept at most 100 texts per call.
type EmbeddingBackend interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// OpenAIEmbeddingClient calls the OpenAI Embeddings API.
type OpenAIEmbeddingClient struct {
	APIKey     string
	Model      string
	Client     *http.Client
	MaxRetries int
}

// NewOpenAIEmbeddingClient builds the adapter from config.
func NewOpenAIEmbeddingClient(cfg types.EmbeddingConfig) *OpenAIEmbeddingClient {
	return &OpenAIEmbeddingClient{
		APIKey: cfg.APIKey,
		Model:  cfg.Model,
		Client: &http.Client{Timeout: cfg.Timeout},
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []embeddingDatum `json:"data"`
}

type embeddingDatum struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

// Embed requests one vector per input text. Results are reordered by the
// response index field, which the API is allowed to permute.
func (c *OpenAIEmbeddingClient) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	body, err := json.Marshal(embeddingRequest{Model: c.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, openaiEmbeddingsURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := httputil.DoWithRetry(ctx, c.Client, req, c.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("calling embeddings API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embeddings API returned %d: %s", resp.StatusCode, string(raw))
	}

	var er embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("decoding embeddings response: %w", err)
	}
	if len(er.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings API returned %d vectors for %d texts", len(er.Data), len(texts))
	}

	sort.Slice(er.Data, func(i, j int) bool { return er.Data[i].Index < er.Data[j].Index })

	vectors := make([][]float64, len(texts))
	for i, d := range er.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}
