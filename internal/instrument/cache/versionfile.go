package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// apiVersionBundle is the payload stamped into the cache root's .version
// file. Its shape and the bundle-ID derivation below follow a common
// content-addressed-registry-bundle pattern: hash a versioned JSON document
// into a short, sweepable ID. Here the "registry" being versioned is the
// runtime-utility API surface the cache's Script Records were generated
// against.
type apiVersionBundle struct {
	RuntimeUtilityAPIVersion string            `json:"runtime_utility_api_version"`
	SnippetSynthesisVersion  string            `json:"snippet_synthesis_version"`
	Languages                map[string]string `json:"languages"` // language -> grammar/runtime revision tag
}

// VersionBundleID computes a stable "telescribe-cache-v1#<sha256 prefix>"
// identifier for the current API-version bundle, the same way a content-
// addressed registry derives its own versioned identifier for an event-schema
// registry. version_sweep compares a cache entry's stored bundle ID
// against this value and evicts on mismatch.
func VersionBundleID(runtimeUtilityAPIVersion, snippetSynthesisVersion string, languageRevisions map[string]string) (bundleID string, sha256hex string, err error) {
	bundle := apiVersionBundle{
		RuntimeUtilityAPIVersion: runtimeUtilityAPIVersion,
		SnippetSynthesisVersion:  snippetSynthesisVersion,
		Languages:                languageRevisions,
	}
	b, err := json.Marshal(bundle)
	if err != nil {
		return "", "", err
	}
	sum := sha256.Sum256(b)
	hexSum := hex.EncodeToString(sum[:])
	return fmt.Sprintf("telescribe-cache-v1#%s", hexSum[:12]), hexSum, nil
}
