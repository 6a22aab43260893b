// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package enrich

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEmbedReordersByIndex(t *testing.T) {
	var gotReq embeddingRequest
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		// Deliberately permuted: the client must reorder by index.
		json.NewEncoder(w).Encode(embeddingResponse{Data: []embeddingDatum{
			{Index: 1, Embedding: []float64{2, 2}},
			{Index: 0, Embedding: []float64{1, 1}},
		}})
	}))
	defer server.Close()

	orig := openaiEmbeddingsURL
	openaiEmbeddingsURL = server.URL
	defer func() { openaiEmbeddingsURL = orig }()

	client := &OpenAIEmbeddingClient{APIKey: "secret", Model: "test-embed", Client: server.Client()}
	vectors, err := client.Embed(context.Background(), []string{"первый", "второй"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q, want Bearer secret", gotAuth)
	}
	if gotReq.Model != "test-embed" || len(gotReq.Input) != 2 {
		t.Errorf("request = %+v", gotReq)
	}
	if vectors[0][0] != 1 || vectors[1][0] != 2 {
		t.Errorf("vectors = %v, want index order restored", vectors)
	}
}

func TestEmbedCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embeddingResponse{Data: []embeddingDatum{
			{Index: 0, Embedding: []float64{1}},
		}})
	}))
	defer server.Close()

	orig := openaiEmbeddingsURL
	openaiEmbeddingsURL = server.URL
	defer func() { openaiEmbeddingsURL = orig }()

	client := &OpenAIEmbeddingClient{APIKey: "k", Model: "m", Client: server.Client()}
	if _, err := client.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected an error when the vector count differs from the text count")
	}
}

func TestEmbedErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "invalid_api_key"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	orig := openaiEmbeddingsURL
	openaiEmbeddingsURL = server.URL
	defer func() { openaiEmbeddingsURL = orig }()

	client := &OpenAIEmbeddingClient{APIKey: "bad", Model: "m", Client: server.Client()}
	if _, err := client.Embed(context.Background(), []string{"a"}); err == nil {
		t.Fatal("expected an error for a 401 response")
	}
}
