// Package batch implements the per-batch processing algorithm (spec §4.4):
// resolve transformer, transform, validate, aggregate, audit, upsert.
package batch

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/coolbox13/omfietser-processor/pkg/template"
)

// ContentHash computes a stable fingerprint of a canonical record (spec §8
// property 7: "two canonical records equal under deep value comparison
// (ignoring field order) produce the same content_hash"). encoding/json
// already serializes Go maps with keys sorted lexicographically, so two
// records differing only in field order or optional-field insertion order
// hash identically.
func ContentHash(record template.Record) (string, error) {
	normalized := normalize(record)
	payload, err := json.Marshal(normalized)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// normalize produces a plain map with numeric values widened to float64, so
// int/int32/int64/float32/float64 variants of the same number serialize
// identically. Strings and other values are left as they are.
func normalize(record template.Record) map[string]interface{} {
	out := make(map[string]interface{}, len(record))
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out[k] = normalizeValue(record[k])
	}
	return out
}

func normalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	default:
		return val
	}
}
