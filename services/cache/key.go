package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/upb/llm-router/models"
)

// Fingerprint computes the deterministic cache key for a request against
// a resolved model. The resolved model is part of the key because the same
// capability can resolve to a different primary model after a catalog
// reload; caching happens after resolution, never before.
//
// Fields are length-prefixed so distinct message lists can never collide
// by concatenation.
func Fingerprint(messages []models.Message, temperature *float64, modelID string) string {
	h := sha256.New()

	writeField := func(s string) {
		h.Write([]byte(strconv.Itoa(len(s))))
		h.Write([]byte{':'})
		h.Write([]byte(s))
	}

	writeField(modelID)
	if temperature != nil {
		writeField(strconv.FormatFloat(*temperature, 'g', -1, 64))
	} else {
		writeField("default")
	}
	for _, m := range messages {
		writeField(m.Role)
		writeField(m.Content)
	}

	return hex.EncodeToString(h.Sum(nil))
}
