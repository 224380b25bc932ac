package modelclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/danshapiro/telescribe/internal/providerspec"
)

// HTTPAdapter is a single Adapter implementation driving the two protocols
// it supports for single-shot text generation: OpenAI-style chat
// completions (zai in the builtin table) or Anthropic's messages API
// (anthropic, kimi). Which one a given provider speaks is read straight from
// its providerspec.APISpec, so a new builtin provider speaking one of these
// two protocols needs only a providerspec table entry, no new adapter code.
// Builtin providers on any other protocol (openai, google) get a
// ConfigurationError from Generate.
type HTTPAdapter struct {
	ProviderKey string
	Spec        providerspec.APISpec
	APIKey      string // resolved once at construction, never read from config directly
	HTTPClient  *http.Client
}

// NewHTTPAdapter resolves ProviderKey's builtin providerspec.Spec and reads
// its API key from the provider's default environment variable (or the
// apiKeyEnvOverride, when non-empty).
func NewHTTPAdapter(providerKey, apiKeyEnvOverride string) (*HTTPAdapter, error) {
	spec, ok := providerspec.Builtin(providerKey)
	if !ok || spec.API == nil {
		return nil, fmt.Errorf("modelclient: no builtin API spec for provider %q", providerKey)
	}
	envVar := spec.API.DefaultAPIKeyEnv
	if apiKeyEnvOverride != "" {
		envVar = apiKeyEnvOverride
	}
	key := os.Getenv(envVar)
	if key == "" {
		return nil, &ConfigurationError{Message: fmt.Sprintf("missing API key: environment variable %s is unset", envVar)}
	}
	return &HTTPAdapter{
		ProviderKey: providerspec.CanonicalProviderKey(providerKey),
		Spec:        *spec.API,
		APIKey:      key,
		HTTPClient:  &http.Client{Timeout: 120 * time.Second},
	}, nil
}

func (a *HTTPAdapter) Name() string { return a.ProviderKey }

func (a *HTTPAdapter) Generate(ctx context.Context, req Request) (Response, error) {
	switch a.Spec.Protocol {
	case providerspec.ProtocolOpenAIChatCompletions:
		return a.generateChatCompletions(ctx, req)
	case providerspec.ProtocolAnthropicMessages:
		return a.generateAnthropicMessages(ctx, req)
	default:
		return Response{}, &ConfigurationError{Message: fmt.Sprintf("unsupported protocol for single-shot generation: %s", a.Spec.Protocol)}
	}
}

type chatCompletionsRequest struct {
	Model    string            `json:"model"`
	Messages []chatMessage     `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (a *HTTPAdapter) generateChatCompletions(ctx context.Context, req Request) (Response, error) {
	body := chatCompletionsRequest{
		Model: req.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
	}
	var out chatCompletionsResponse
	if err := a.postJSON(ctx, a.Spec.DefaultPath, map[string]string{"Authorization": "Bearer " + a.APIKey}, body, &out); err != nil {
		return Response{}, err
	}
	if len(out.Choices) == 0 {
		return Response{}, ErrorFromHTTPStatus(a.ProviderKey, 502, "empty choices array in response", nil)
	}
	return Response{
		Text:         out.Choices[0].Message.Content,
		InputTokens:  out.Usage.PromptTokens,
		OutputTokens: out.Usage.CompletionTokens,
		StopReason:   out.Choices[0].FinishReason,
	}, nil
}

type anthropicMessagesRequest struct {
	Model     string          `json:"model"`
	System    string          `json:"system,omitempty"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []chatMessage   `json:"messages"`
}

type anthropicMessagesResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (a *HTTPAdapter) generateAnthropicMessages(ctx context.Context, req Request) (Response, error) {
	body := anthropicMessagesRequest{
		Model:     req.Model,
		System:    req.SystemPrompt,
		MaxTokens: 4096,
		Messages:  []chatMessage{{Role: "user", Content: req.UserPrompt}},
	}
	headers := map[string]string{
		"x-api-key":         a.APIKey,
		"anthropic-version": "2023-06-01",
	}
	var out anthropicMessagesResponse
	if err := a.postJSON(ctx, a.Spec.DefaultPath, headers, body, &out); err != nil {
		return Response{}, err
	}
	if len(out.Content) == 0 {
		return Response{}, ErrorFromHTTPStatus(a.ProviderKey, 502, "empty content array in response", nil)
	}
	var text strings.Builder
	for _, c := range out.Content {
		text.WriteString(c.Text)
	}
	return Response{
		Text:         text.String(),
		InputTokens:  out.Usage.InputTokens,
		OutputTokens: out.Usage.OutputTokens,
		StopReason:   out.StopReason,
	}, nil
}

func (a *HTTPAdapter) postJSON(ctx context.Context, path string, headers map[string]string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("modelclient: marshal request: %w", err)
	}
	url := strings.TrimRight(a.Spec.DefaultBaseURL, "/") + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("modelclient: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := a.HTTPClient.Do(httpReq)
	if err != nil {
		return NewRequestTimeoutError(a.ProviderKey, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("modelclient: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var retryAfter *time.Duration
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			retryAfter = ParseRetryAfter(ra, time.Now())
		}
		return ErrorFromHTTPStatus(a.ProviderKey, resp.StatusCode, string(respBody), retryAfter)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("modelclient: decode response: %w", err)
	}
	return nil
}
