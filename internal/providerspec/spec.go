// Package providerspec is the builtin provider table the HTTP model client
// resolves against: one APISpec per provider (protocol, base URL, default
// path, API-key environment variable), plus alias resolution so a config
// file can write "gemini" or "z-ai" and still hit the canonical entry.
package providerspec

import (
	"strings"
	"sync"
)

// APIProtocol names a provider's request/response wire shape.
type APIProtocol string

const (
	ProtocolOpenAIResponses       APIProtocol = "openai_responses"
	ProtocolOpenAIChatCompletions APIProtocol = "openai_chat_completions"
	ProtocolAnthropicMessages     APIProtocol = "anthropic_messages"
	ProtocolGoogleGenerateContent APIProtocol = "google_generate_content"
)

// APISpec is everything an HTTP adapter needs to call a provider.
type APISpec struct {
	Protocol           APIProtocol
	DefaultBaseURL     string
	DefaultPath        string
	DefaultAPIKeyEnv   string
	ProviderOptionsKey string
	ProfileFamily      string
}

// Spec is one builtin provider entry: its canonical key, any aliases it's
// also known by, its API wiring, and an ordered list of fallback providers.
// Nothing in this module reads Failover; the retry orchestrator escalates
// through its own configured model chain instead.
type Spec struct {
	Key      string
	Aliases  []string
	API      *APISpec
	Failover []string
}

var (
	providerAliasOnce  sync.Once
	providerAliasIndex map[string]string
)

func providerAliases() map[string]string {
	providerAliasOnce.Do(func() {
		providerAliasIndex = providerAliasIndexFromBuiltins(Builtins())
	})
	return providerAliasIndex
}

func providerAliasIndexFromBuiltins(specs map[string]Spec) map[string]string {
	out := map[string]string{}
	for rawKey, spec := range specs {
		key := strings.ToLower(strings.TrimSpace(rawKey))
		if key == "" {
			continue
		}
		out[key] = key
		for _, rawAlias := range spec.Aliases {
			alias := strings.ToLower(strings.TrimSpace(rawAlias))
			if alias != "" {
				out[alias] = key
			}
		}
	}
	return out
}

// CanonicalProviderKey normalizes a user-supplied provider name (trimmed,
// lowercased, alias-resolved). Unknown keys pass through unchanged so a
// caller can still register a non-builtin provider under its own name.
func CanonicalProviderKey(in string) string {
	key := strings.ToLower(strings.TrimSpace(in))
	if key == "" {
		return ""
	}
	if canonical, ok := providerAliases()[key]; ok {
		return canonical
	}
	return key
}

// CanonicalizeProviderList canonicalizes and dedupes a list of provider
// names, preserving first-seen order.
func CanonicalizeProviderList(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, raw := range in {
		key := CanonicalProviderKey(raw)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
