// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package oracle provides semantic similarity backends for the align
// and verify stages. The pipeline runs fully without one; an oracle
// only sharpens scores.
package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIOracle scores text similarity as the cosine of embedding
// vectors from the OpenAI embeddings endpoint.
//
// Thread Safety:
//
//	Safe for concurrent use; the underlying client is.
type OpenAIOracle struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewOpenAIOracle builds an oracle from the environment.
//
// The API key comes from OPENAI_API_KEY or, failing that, the container
// secret at /run/secrets/openai_api_key. OPENAI_EMBED_MODEL overrides
// the default embedding model.
func NewOpenAIOracle() (*OpenAIOracle, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		raw, err := os.ReadFile(secretPath)
		if err != nil {
			slog.Error("OPENAI_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
		apiKey = strings.TrimSpace(string(raw))
		slog.Info("Read the OpenAI API Key from Podman Secrets")
	}

	model := openai.EmbeddingModel(os.Getenv("OPENAI_EMBED_MODEL"))
	if model == "" {
		model = openai.SmallEmbedding3
		slog.Warn("OPENAI_EMBED_MODEL not set, defaulting to text-embedding-3-small")
	}
	slog.Info("Initializing embedding oracle", "model", model)
	return &OpenAIOracle{client: openai.NewClient(apiKey), model: model}, nil
}

// Similarity embeds both texts in one request and returns their cosine
// similarity clamped to [0, 1].
func (o *OpenAIOracle) Similarity(ctx context.Context, a, b string) (float64, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: o.model,
		Input: []string{a, b},
	})
	if err != nil {
		return 0, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) != 2 {
		return 0, fmt.Errorf("expected 2 embeddings, got %d", len(resp.Data))
	}
	cos := cosine(resp.Data[0].Embedding, resp.Data[1].Embedding)
	// Cosine of embeddings can be slightly negative; scores are [0,1].
	return math.Max(0, math.Min(1, cos)), nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
