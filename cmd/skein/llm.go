package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/skeinflow/skein/internal/llm"
	"github.com/skeinflow/skein/pkg/schema"
)

// httpLLMClient posts turn requests to an external model endpoint that
// speaks the llm.Request / llm.Response JSON shapes.
type httpLLMClient struct {
	endpoint string
	model    string
	client   *http.Client
}

func newLLMClient(cfg Config) llm.Client {
	if cfg.LLMEndpoint == "" {
		return llm.ClientFunc(func(ctx context.Context, req llm.Request) (*llm.Response, error) {
			return nil, schema.NewError(schema.ErrCodeConfig,
				"no LLM endpoint configured, set SKEIN_LLM_URL")
		})
	}
	return &httpLLMClient{
		endpoint: cfg.LLMEndpoint,
		model:    cfg.LLMModel,
		client:   &http.Client{Timeout: 120 * time.Second},
	}
}

func (c *httpLLMClient) Call(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if req.Model == "" {
		req.Model = c.model
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal llm request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build llm request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call llm endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"llm endpoint returned %d: %s", resp.StatusCode, string(data))
	}

	var out llm.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode llm response: %w", err)
	}
	return &out, nil
}
