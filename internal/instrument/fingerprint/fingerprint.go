// Package fingerprint computes the Script Cache's content-addressed keys.
//
// Two hash functions are used for two different jobs, mirroring the split
// between a hot, high-frequency path and a durable, content-addressed one
// that a content-addressed registry typically draws between its durable
// bundle IDs and its higher-throughput lookup keys: BLAKE3 (github.com/zeebo/blake3) computes the
// per-construct Fingerprint, since it runs once per construct and a file may
// contain thousands of them; crypto/sha256 stamps the durable, rarely
// recomputed cache-root version file (see cache/versionfile.go), where
// cross-tool interoperability of the hash matters more than raw speed.
package fingerprint

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/danshapiro/telescribe/internal/instrument/model"
)

var collapseWhitespace = regexp.MustCompile(`[ \t]+`)

// NormalizeBody collapses runs of horizontal whitespace and trims each line,
// producing the stable text Fingerprint hashes over. It does not attempt
// full comment stripping for every language; callers that need
// language-aware comment removal do it before calling NormalizeBody.
func NormalizeBody(body string) string {
	lines := strings.Split(body, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		trimmed := strings.TrimSpace(l)
		if trimmed == "" {
			continue
		}
		out = append(out, collapseWhitespace.ReplaceAllString(trimmed, " "))
	}
	return strings.Join(out, "\n")
}

// Compute derives a Fingerprint from:
// language, construct kind, normalized body, snippet-synthesis version, and
// runtime-utility API version. Equal inputs always yield equal output.
func Compute(lang model.Language, kind model.ConstructKind, normalizedBody string, snippetVersion, runtimeAPIVersion string) model.Fingerprint {
	h := blake3.New()
	fmt.Fprintf(h, "lang=%s\nkind=%s\nsnippet_version=%s\nruntime_api_version=%s\nbody=%s",
		lang, kind, snippetVersion, runtimeAPIVersion, normalizedBody)
	sum := h.Sum(nil)
	return model.Fingerprint(fmt.Sprintf("%s-%s#%s", lang, kind, hex.EncodeToString(sum)[:16]))
}
