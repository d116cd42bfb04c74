package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/router-for-me/ModelGovernor/internal/models"
	"github.com/tidwall/sjson"
)

// Fingerprint derives the deterministic cache key for a request. The content
// and recognized options are folded into a canonical JSON document with a
// fixed key order, so identical inputs always hash identically. The hash is
// an optimization boundary, not a correctness one.
func Fingerprint(scope models.Scope, content string, options models.Options) string {
	doc := "{}"
	doc, _ = sjson.Set(doc, "provider", strings.ToLower(strings.TrimSpace(scope.Provider)))
	doc, _ = sjson.Set(doc, "model", strings.ToLower(strings.TrimSpace(scope.Model)))
	doc, _ = sjson.Set(doc, "content", strings.TrimSpace(content))
	if options.MaxOutputTokens > 0 {
		doc, _ = sjson.Set(doc, "max_output_tokens", options.MaxOutputTokens)
	}
	if options.Temperature > 0 {
		doc, _ = sjson.Set(doc, "temperature", options.Temperature)
	}
	if options.TopP > 0 {
		doc, _ = sjson.Set(doc, "top_p", options.TopP)
	}
	if strings.TrimSpace(options.Stop) != "" {
		doc, _ = sjson.Set(doc, "stop", strings.TrimSpace(options.Stop))
	}
	sum := sha256.Sum256([]byte(doc))
	return hex.EncodeToString(sum[:])
}
