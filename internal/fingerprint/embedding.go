package fingerprint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

const (
	defaultEmbeddingURL = "http://localhost:8000"
	defaultEmbeddingDim = 512
)

// EmbeddingClient talks to the remote embedding server. It is a long-lived
// handle created once at startup and passed explicitly into the pipeline;
// concurrent batches may share it without locking.
type EmbeddingClient struct {
	baseURL string
	dim     int
	client  *http.Client
}

// NewEmbeddingClient creates a new embedding client.
func NewEmbeddingClient(baseURL string, dim int) *EmbeddingClient {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	if dim <= 0 {
		dim = defaultEmbeddingDim
	}
	return &EmbeddingClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		dim:     dim,
		client:  &http.Client{},
	}
}

// Dim returns the embedding dimension the client expects from the server.
func (c *EmbeddingClient) Dim() int {
	return c.dim
}

type readyResponse struct {
	Ready bool `json:"ready"`
}

// Ready probes the embedding server. Any transport or decoding failure is
// treated as not-ready; the caller decides whether to fail the batch or run
// without the embedding tier.
func (c *EmbeddingClient) Ready(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ready", nil)
	if err != nil {
		return false
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var ready readyResponse
	if err := json.NewDecoder(resp.Body).Decode(&ready); err != nil {
		return false
	}
	return ready.Ready
}

// batchEmbedRequest carries a batch of preprocessed CHW tensors.
type batchEmbedRequest struct {
	Inputs [][]float32 `json:"inputs"`
	Shape  []int       `json:"shape"`
}

type batchEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Dim        int         `json:"dim"`
	Model      string      `json:"model"`
}

// EmbedBatch sends a batch of preprocessed tensors to the embedding server and
// returns one L2-normalized vector per input, in input order.
func (c *EmbeddingClient) EmbedBatch(ctx context.Context, tensors [][]float32) ([][]float32, error) {
	if len(tensors) == 0 {
		return nil, nil
	}
	for i, t := range tensors {
		if len(t) != TensorLen {
			return nil, fmt.Errorf("tensor %d has length %d, want %d", i, len(t), TensorLen)
		}
	}

	reqBody, err := json.Marshal(batchEmbedRequest{
		Inputs: tensors,
		Shape:  []int{len(tensors), TensorChannels, TensorSize, TensorSize},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed/batch", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var embResp batchEmbedResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(embResp.Embeddings) != len(tensors) {
		return nil, fmt.Errorf("server returned %d embeddings for %d inputs", len(embResp.Embeddings), len(tensors))
	}

	for i, emb := range embResp.Embeddings {
		if len(emb) != c.dim {
			return nil, fmt.Errorf("embedding %d has dimension %d, want %d", i, len(emb), c.dim)
		}
		l2Normalize(emb)
	}

	return embResp.Embeddings, nil
}

// l2Normalize scales the vector to unit length in place. The epsilon guards
// against division by zero for degenerate all-zero vectors.
func l2Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum) + 1e-12
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}
