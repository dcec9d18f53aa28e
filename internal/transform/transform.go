// Package transform holds the per-shop transformers that map a raw
// scraped row onto the canonical 32-field template (spec §4.2).
//
// The registry below keeps the shape of the teacher's pkg/plugin registry
// and internal/workload/factory.Factory — register-by-name, get-by-name,
// list — but drops runtime .so plugin loading: the five shops supported by
// spec §4.2 are known at compile time, so a static map is enough and avoids
// the unsafe-load surface the teacher's dynamic plugin system carries for
// a problem this domain doesn't have.
package transform

import (
	"fmt"
	"sync"

	"github.com/coolbox13/omfietser-processor/internal/domain"
	"github.com/coolbox13/omfietser-processor/pkg/template"
)

// Outcome is the typed result a Transformer returns instead of throwing
// (spec §4.2: "A transformer MUST NOT throw to signal recoverable
// conditions").
type Outcome struct {
	Record     template.Record
	ExternalID string
	Err        *domain.ProcessingError
}

// Transformer maps one raw row onto a canonical record for a single shop.
type Transformer interface {
	// ShopType is the value this transformer handles, e.g. "ah".
	ShopType() string
	// Transform runs the mapping. It never panics to signal a recoverable
	// failure; recoverable conditions come back as Outcome.Err.
	Transform(raw domain.RawRow) Outcome
}

// Registry is the static, compile-time registry of shop transformers.
type Registry struct {
	mu    sync.RWMutex
	byType map[string]Transformer
}

// NewRegistry builds a registry pre-loaded with the five built-in
// transformers (spec §4.2's shop table).
func NewRegistry() *Registry {
	r := &Registry{byType: make(map[string]Transformer)}
	for _, t := range []Transformer{
		NewAH(),
		NewJumbo(),
		NewAldi(),
		NewPlus(),
		NewKruidvat(),
	} {
		r.Register(t)
	}
	return r
}

// Register adds or replaces a transformer for its shop type.
func (r *Registry) Register(t Transformer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[t.ShopType()] = t
}

// Get resolves the transformer for a shop type. A missing shop is a fatal
// initialization error for the Batch Adapter (spec §4.4 step 1), not a
// per-row outcome, so it returns a plain error.
func (r *Registry) Get(shopType string) (Transformer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byType[shopType]
	if !ok {
		return nil, fmt.Errorf("transform: no transformer registered for shop type %q", shopType)
	}
	return t, nil
}

// List returns the shop types currently registered, in no particular
// order. No HTTP route, /health included, calls it.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byType))
	for shop := range r.byType {
		out = append(out, shop)
	}
	return out
}

// validationError builds the {error, severity} half of an Outcome for a
// VALIDATION_ERROR raised during extraction, before the record even exists
// to run through the Template Validator.
func validationError(shopType, message string, requiredFieldMissing bool) *domain.ProcessingError {
	return &domain.ProcessingError{
		ShopType:     shopType,
		ErrorType:    domain.ErrValidation,
		ErrorMessage: message,
		Severity:     domain.SeverityFor(domain.ErrValidation, requiredFieldMissing),
	}
}

// firstNonEmptyString extracts the first non-empty string-or-numeric value
// found in raw under any of keys, implementing the "first non-empty wins"
// rule of spec §4.2's external-id table. Raw JSON numbers decode as
// float64; both forms are accepted and rendered without a decimal point
// when the value is integral.
func firstNonEmptyString(raw map[string]interface{}, keys ...string) (string, bool) {
	for _, key := range keys {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			if val != "" {
				return val, true
			}
		case float64:
			return formatNumericID(val), true
		case int:
			return fmt.Sprintf("%d", val), true
		case int64:
			return fmt.Sprintf("%d", val), true
		}
	}
	return "", false
}

func formatNumericID(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%v", v)
}

func stringField(raw map[string]interface{}, key string) (string, bool) {
	v, ok := raw[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func floatField(raw map[string]interface{}, key string) (float64, bool) {
	v, ok := raw[key]
	if !ok || v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	}
	return 0, false
}

func boolField(raw map[string]interface{}, key string) (bool, bool) {
	v, ok := raw[key]
	if !ok || v == nil {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}
