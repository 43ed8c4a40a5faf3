package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/BDSE37/Podwise-sub002/internal/errs"
)

// httpEmbeddingRequest mirrors the OpenAI-compatible /embeddings payload
// the BGE-M3 service speaks, matching the corpus's provider-client
// convention (model, input).
type httpEmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type httpEmbeddingData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type httpEmbeddingResponse struct {
	Data []httpEmbeddingData `json:"data"`
}

// HTTPProvider is a BGE-M3-compatible embedding provider reached over a
// plain OpenAI-style /embeddings endpoint.
type HTTPProvider struct {
	name       string
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	httpClient *http.Client
}

// NewHTTPProvider creates an HTTPProvider. name identifies the provider
// in logs and error journal records (e.g. "bge-m3").
func NewHTTPProvider(name, baseURL, apiKey, model string, dimensions int, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPProvider{
		name: name, baseURL: baseURL, apiKey: apiKey, model: model, dimensions: dimensions,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProvider) Name() string    { return p.name }
func (p *HTTPProvider) Dimensions() int { return p.dimensions }

// Health probes the provider by encoding a single short string.
func (p *HTTPProvider) Health(ctx context.Context) error {
	_, err := p.Encode(ctx, []string{"ok"})
	return err
}

// Encode posts texts to the provider's /embeddings endpoint and returns
// one vector per input, in order.
func (p *HTTPProvider) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(httpEmbeddingRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, errs.Wrap(errs.DataError, "embedding.provider_encode", err, "marshal embedding request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, errs.Wrap(errs.ConfigError, "embedding.provider_encode", err, "build embedding request")
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.ResourceError, "embedding.provider_encode", err, "embedding provider unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		kind := errs.ResourceError
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			kind = errs.DataError
		}
		return nil, errs.New(kind, "embedding.provider_encode", fmt.Sprintf("embedding provider returned %d: %s", resp.StatusCode, string(body)))
	}

	var decoded httpEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errs.Wrap(errs.DataError, "embedding.provider_encode", err, "decode embedding response")
	}
	if len(decoded.Data) != len(texts) {
		return nil, errs.New(errs.DataError, "embedding.provider_encode", "embedding provider returned a mismatched vector count")
	}

	out := make([][]float32, len(texts))
	for _, d := range decoded.Data {
		if d.Index < 0 || d.Index >= len(out) {
			continue
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
