// Package llm defines the capability boundary to the external language
// model collaborator. The engine and dispatcher never construct a client;
// they consume one that is injected at wiring time.
package llm

import "context"

// Request is the JSON-serializable payload sent to the model.
type Request struct {
	System   string         `json:"system,omitempty"`
	Prompt   string         `json:"prompt"`
	Model    string         `json:"model,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Response is the model's structured output.
type Response struct {
	Text  string         `json:"text"`
	Model string         `json:"model,omitempty"`
	Usage map[string]any `json:"usage,omitempty"`
}

// Client is the injected callLLM capability.
type Client interface {
	Call(ctx context.Context, req Request) (*Response, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, req Request) (*Response, error)

func (f ClientFunc) Call(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}
