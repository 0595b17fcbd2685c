package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// BodyHash returns the hex sha256 of a normalized request body. Normalization
// trims surrounding whitespace so transport-level padding does not change the
// fingerprint.
func BodyHash(body []byte) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(string(body))))
	return hex.EncodeToString(sum[:])
}

// EventKey builds the deterministic dedup key for an inbound delivery:
// two deliveries describing the same occurrence collide even when transport
// metadata differs, while distinct occurrences never do.
func EventKey(eventType, remoteID, bodyHash string) string {
	return eventType + ":" + remoteID + ":" + bodyHash
}
