package script

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/danshapiro/telescribe/internal/instrument/model"
)

// hashLine fingerprints a single line's content with any trailing CR/LF
// removed (indentation and other whitespace are kept). crypto/sha256 (not
// the fingerprint package's blake3) is used here deliberately: anchor
// fingerprints are small, infrequent (one per operation, not one per
// construct-fingerprint computation) and get written into cached Script
// Records that outlive a single process, so cross-tool stability of the
// hash matters more than throughput - the same tradeoff a durable,
// content-addressed registry makes for its own bundle IDs.
func hashLine(line string) string {
	sum := sha256.Sum256([]byte(strings.TrimRight(line, "\r\n")))
	return hex.EncodeToString(sum[:])[:16]
}

// ComputeAnchor builds an Anchor for 1-indexed line `lineNum` against the
// given file lines (0-indexed slice).
func ComputeAnchor(lines []string, lineNum int) model.Anchor {
	idx := lineNum - 1
	if idx < 0 || idx >= len(lines) {
		return model.Anchor{Line: lineNum, LineHash: ""}
	}
	return model.Anchor{Line: lineNum, LineHash: hashLine(lines[idx])}
}

// AnchorMatches reports whether an Anchor's fingerprint still matches the
// current content at its recorded line.
func AnchorMatches(lines []string, a model.Anchor) bool {
	idx := a.Line - 1
	if idx < 0 || idx >= len(lines) {
		return false
	}
	return hashLine(lines[idx]) == a.LineHash
}
