package rag

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

// chatRequest is the OpenAI-compatible chat payload shared by both
// generator backends.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// HTTPGenerator is a plain net/http chat-completion client, grounded on
// the same provider-client shape used elsewhere in this stack for
// embeddings: a thin wrapper posting an OpenAI-compatible payload.
type HTTPGenerator struct {
	name       string
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewHTTPGenerator builds an HTTPGenerator. timeout defaults to 30s.
func NewHTTPGenerator(name, baseURL, apiKey, model string, timeout time.Duration) *HTTPGenerator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPGenerator{
		name:       name,
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name identifies this generator backend, used in L6's labeled fusion
// sections.
func (g *HTTPGenerator) Name() string { return g.name }

// Generate produces a single completion for prompt.
func (g *HTTPGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	payload := chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", errs.Wrap(errs.DataError, "rag.generate", err, "marshal chat request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", errs.Wrap(errs.DataError, "rag.generate", err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", errs.Wrap(errs.ResourceError, "rag.generate", err, "call generator endpoint")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		kind := errs.ResourceError
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			kind = errs.DataError
		}
		return "", errs.New(kind, "rag.generate", fmt.Sprintf("generator %s returned status %d: %s", g.name, resp.StatusCode, string(raw)))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", errs.Wrap(errs.DataError, "rag.generate", err, "decode response")
	}
	if len(decoded.Choices) == 0 {
		return "", errs.New(errs.DataError, "rag.generate", fmt.Sprintf("generator %s returned no choices", g.name))
	}
	return decoded.Choices[0].Message.Content, nil
}
