// Package modelclient is the narrow model-client abstraction the instrumentation
// core depends on: generate(system, user, timeout) -> text + token counts, plus
// cost accounting. It is intentionally much smaller than a full chat-completions
// client, since the core only ever needs single-shot, non-streaming, tool-free
// text generation for script repair prompts.
package modelclient

import (
	"context"
	"fmt"

	"github.com/danshapiro/telescribe/internal/providerspec"
)

// Request is one generation call.
type Request struct {
	Provider     string
	Model        string
	SystemPrompt string
	UserPrompt   string
}

func (r Request) Validate() error {
	if r.Model == "" {
		return &ConfigurationError{Message: "request missing model"}
	}
	if r.UserPrompt == "" {
		return &ConfigurationError{Message: "request missing user prompt"}
	}
	return nil
}

// Response is the result of a generation call.
type Response struct {
	Text             string
	InputTokens      int
	OutputTokens     int
	CostUSD          float64
	StopReason       string
}

// Adapter is implemented once per provider backend.
type Adapter interface {
	Name() string
	Generate(ctx context.Context, req Request) (Response, error)
}

// Middleware wraps a Generate call, e.g. for logging or budget enforcement.
type Middleware func(next GenerateFunc) GenerateFunc

type GenerateFunc func(ctx context.Context, req Request) (Response, error)

// Client is a registry of provider adapters plus a middleware chain, mirroring
// this engine's provider-registry client shape generalized from
// chat-completions to single-shot generation.
type Client struct {
	adapters        map[string]Adapter
	defaultProvider string
	middleware      []Middleware
}

func NewClient() *Client {
	return &Client{adapters: map[string]Adapter{}}
}

func (c *Client) Register(a Adapter) {
	if c.adapters == nil {
		c.adapters = map[string]Adapter{}
	}
	c.adapters[a.Name()] = a
	if c.defaultProvider == "" {
		c.defaultProvider = a.Name()
	}
}

func (c *Client) SetDefaultProvider(name string) {
	c.defaultProvider = name
}

// Use appends middleware, applied in registration order around the call.
func (c *Client) Use(mw ...Middleware) {
	c.middleware = append(c.middleware, mw...)
}

func (c *Client) Generate(ctx context.Context, req Request) (Response, error) {
	if err := req.Validate(); err != nil {
		return Response{}, err
	}
	prov := req.Provider
	if prov == "" {
		prov = c.defaultProvider
	}
	if prov == "" {
		return Response{}, &ConfigurationError{Message: "no provider specified and no default provider configured"}
	}
	prov = providerspec.CanonicalProviderKey(prov)
	adapter, ok := c.adapters[prov]
	if !ok {
		return Response{}, &ConfigurationError{Message: fmt.Sprintf("unknown provider: %s", prov)}
	}
	req.Provider = prov

	base := func(ctx context.Context, req Request) (Response, error) {
		return adapter.Generate(ctx, req)
	}
	handler := applyMiddleware(base, c.middleware)
	return handler(ctx, req)
}

func applyMiddleware(base GenerateFunc, mw []Middleware) GenerateFunc {
	handler := base
	for i := len(mw) - 1; i >= 0; i-- {
		handler = mw[i](handler)
	}
	return handler
}
