// Package embedding provides vector embedding generation for semantic matching.
//
// Defines a Provider interface with OpenAI-compatible, Ollama and noop
// implementations, the deterministic text-composition rules for tenders and
// profiles, and a content-addressed cache that sits in front of any provider.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"

	"github.com/pgvector/pgvector-go"
)

// Sentinel errors per the provider contract. ErrUpstreamUnavailable is
// retriable; ErrInputInvalid is not.
var (
	ErrUpstreamUnavailable = errors.New("embedding: upstream unavailable")
	ErrInputInvalid        = errors.New("embedding: invalid input")
)

// MaxInputBytes bounds a single composed text. Longer inputs are rejected as
// invalid rather than silently truncated at this layer; composition truncates
// earlier with its own limit.
const MaxInputBytes = 32 * 1024

// Provider generates vector embeddings from text.
type Provider interface {
	// Embed generates a single L2-normalized embedding vector from text.
	Embed(ctx context.Context, text string) (pgvector.Vector, error)

	// EmbedBatch generates embeddings for multiple texts. Partial failures
	// are reported per index via *BatchError.
	EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error)

	// Dimensions returns the embedding vector dimensionality.
	Dimensions() int
}

// BatchError reports per-index failures of an EmbedBatch call. Indices
// without an error have a valid vector in the returned slice.
type BatchError struct {
	Errs []error // index-aligned with the input; nil entries succeeded
}

func (e *BatchError) Error() string {
	n := 0
	for _, err := range e.Errs {
		if err != nil {
			n++
		}
	}
	return fmt.Sprintf("embedding: batch failed for %d of %d inputs", n, len(e.Errs))
}

// Unwrap exposes the first failure for errors.Is checks.
func (e *BatchError) Unwrap() error {
	for _, err := range e.Errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func validateInput(text string) error {
	if text == "" {
		return fmt.Errorf("%w: empty text", ErrInputInvalid)
	}
	if len(text) > MaxInputBytes {
		return fmt.Errorf("%w: text exceeds %d bytes", ErrInputInvalid, MaxInputBytes)
	}
	return nil
}

// normalize L2-normalizes a raw embedding in place. Zero vectors pass
// through unchanged.
func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	inv := 1 / math.Sqrt(sum)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) * inv)
	}
	return vec
}

// OpenAIProvider generates embeddings using an OpenAI-compatible API.
type OpenAIProvider struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
	dimensions int
}

// NewOpenAIProvider creates an OpenAI-compatible embedding provider.
// endpoint may be empty to use the OpenAI API; dimensions must match the
// model's output size.
func NewOpenAIProvider(endpoint, apiKey, model string, dimensions int) *OpenAIProvider {
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1/embeddings"
	}
	return &OpenAIProvider{
		endpoint:   endpoint,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{},
		dimensions: dimensions,
	}
}

// Dimensions returns the embedding vector size.
func (p *OpenAIProvider) Dimensions() int {
	return p.dimensions
}

type openAIRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Embed generates a single embedding.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) (pgvector.Vector, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return pgvector.Vector{}, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts in a single API call.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for _, t := range texts {
		if err := validateInput(t); err != nil {
			return nil, err
		}
	}

	reqBody, err := json.Marshal(openAIRequest{Input: texts, Model: p.model})
	if err != nil {
		return nil, fmt.Errorf("embedding: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("embedding: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUpstreamUnavailable, err)
	}

	var result openAIResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: unmarshal response: %v", ErrUpstreamUnavailable, err)
	}

	if result.Error != nil {
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, fmt.Errorf("%w: %s: %s", ErrInputInvalid, result.Error.Type, result.Error.Message)
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrUpstreamUnavailable, result.Error.Type, result.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	// Ensure results are in input order.
	vecs := make([]pgvector.Vector, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding: invalid index %d in response", d.Index)
		}
		vecs[d.Index] = pgvector.NewVector(normalize(d.Embedding))
	}
	return vecs, nil
}

// NoopProvider returns zero vectors. Used when no provider is configured.
type NoopProvider struct {
	dims int
}

// NewNoopProvider creates a provider that returns zero vectors.
func NewNoopProvider(dims int) *NoopProvider {
	return &NoopProvider{dims: dims}
}

// Dimensions returns the embedding vector size.
func (p *NoopProvider) Dimensions() int {
	return p.dims
}

// Embed returns a zero vector.
func (p *NoopProvider) Embed(_ context.Context, text string) (pgvector.Vector, error) {
	if err := validateInput(text); err != nil {
		return pgvector.Vector{}, err
	}
	return pgvector.NewVector(make([]float32, p.dims)), nil
}

// EmbedBatch returns zero vectors.
func (p *NoopProvider) EmbedBatch(_ context.Context, texts []string) ([]pgvector.Vector, error) {
	vecs := make([]pgvector.Vector, len(texts))
	for i, t := range texts {
		if err := validateInput(t); err != nil {
			return nil, err
		}
		vecs[i] = pgvector.NewVector(make([]float32, p.dims))
	}
	return vecs, nil
}
