// Package template declares the canonical 32-field product record (spec
// §3.1) and the structural validator that enforces zero-drift schema
// compliance (spec §4.1). It is the one package every shop transformer
// and the compliance auditor depend on.
//
// Validation is a single linear pass over a static field table; presence
// lookups use a set for O(1) membership, exactly the style the teacher's
// internal/config.validateConfig uses for its own field-by-field checks.
package template

import (
	"fmt"
	"sort"
)

// Kind enumerates the type classes a template field may take.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBoolean
	KindStringOrNull
	KindOptionalNumber
	KindOptionalString
	KindOptionalBoolean
)

// FieldSpec describes one cell of the 32-field taxonomy (spec §3.1).
type FieldSpec struct {
	Name     string
	Kind     Kind
	Required bool // not set in Fields; presence rules follow Kind (only optional kinds may be absent)
}

// optional reports whether the field may be absent from a record entirely.
func (k Kind) optional() bool {
	switch k {
	case KindOptionalNumber, KindOptionalString, KindOptionalBoolean:
		return true
	default:
		return false
	}
}

func (k Kind) nullable() bool {
	return k == KindStringOrNull
}

// Fields is the static 32-field table, in the taxonomy order of spec §3.1.
var Fields = []FieldSpec{
	{Name: "unified_id", Kind: KindString},
	{Name: "shop_type", Kind: KindString},
	{Name: "title", Kind: KindString},
	{Name: "main_category", Kind: KindStringOrNull},
	{Name: "brand", Kind: KindString},
	{Name: "image_url", Kind: KindString},
	{Name: "sales_unit_size", Kind: KindString},
	{Name: "quantity_amount", Kind: KindNumber},
	{Name: "quantity_unit", Kind: KindString},
	{Name: "default_quantity_amount", Kind: KindOptionalNumber},
	{Name: "default_quantity_unit", Kind: KindOptionalString},
	{Name: "price_before_bonus", Kind: KindNumber},
	{Name: "current_price", Kind: KindNumber},
	{Name: "unit_price", Kind: KindOptionalNumber},
	{Name: "unit_price_unit", Kind: KindOptionalString},
	{Name: "is_promotion", Kind: KindBoolean},
	{Name: "promotion_type", Kind: KindString},
	{Name: "promotion_mechanism", Kind: KindString},
	{Name: "promotion_start_date", Kind: KindStringOrNull},
	{Name: "promotion_end_date", Kind: KindStringOrNull},
	{Name: "parsed_promotion_effective_unit_price", Kind: KindOptionalNumber},
	{Name: "parsed_promotion_required_quantity", Kind: KindOptionalNumber},
	{Name: "parsed_promotion_total_price", Kind: KindOptionalNumber},
	{Name: "parsed_promotion_is_multi_purchase_required", Kind: KindOptionalBoolean},
	{Name: "normalized_quantity_amount", Kind: KindOptionalNumber},
	{Name: "normalized_quantity_unit", Kind: KindOptionalString},
	{Name: "conversion_factor", Kind: KindOptionalNumber},
	{Name: "price_per_standard_unit", Kind: KindOptionalNumber},
	{Name: "current_price_per_standard_unit", Kind: KindOptionalNumber},
	{Name: "discount_absolute", Kind: KindOptionalNumber},
	{Name: "discount_percentage", Kind: KindOptionalNumber},
	{Name: "is_active", Kind: KindBoolean},
}

// fieldSet is the O(1) membership lookup used by validate.
var fieldSet map[string]FieldSpec

func init() {
	fieldSet = make(map[string]FieldSpec, len(Fields))
	for _, f := range Fields {
		fieldSet[f.Name] = f
	}
	if len(Fields) != 32 {
		panic(fmt.Sprintf("template: field table must declare exactly 32 fields, got %d", len(Fields)))
	}
}

// Record is the canonical product record: a plain map keyed by field name,
// mirroring the wire shape the Storage Contract and webhook payloads use.
type Record map[string]interface{}

// defaultFor returns the default value a required/nullable field takes
// when newTemplate is not given a value for it (spec §3.1 "Default" column).
func defaultFor(spec FieldSpec) interface{} {
	switch spec.Name {
	case "unified_id", "brand", "image_url", "sales_unit_size", "quantity_unit":
		return ""
	case "quantity_amount", "price_before_bonus", "current_price":
		return 0.0
	case "is_promotion":
		return false
	case "promotion_type", "promotion_mechanism":
		return "none"
	case "is_active":
		return true
	case "main_category", "promotion_start_date", "promotion_end_date":
		return nil
	default:
		return nil
	}
}

// NewTemplate returns a record whose required and nullable fields are
// populated (from partial or defaults); optional fields are included only
// when partial supplies them (spec §4.1).
func NewTemplate(partial Record) Record {
	out := make(Record, len(Fields))
	for _, spec := range Fields {
		if v, ok := partial[spec.Name]; ok {
			out[spec.Name] = v
			continue
		}
		if spec.Kind.optional() {
			continue // optional and unsupplied: stays absent
		}
		out[spec.Name] = defaultFor(spec)
	}
	return out
}

// EnsureComplete behaves like NewTemplate but accepts any map-shaped input
// and never mutates it.
func EnsureComplete(anything map[string]interface{}) Record {
	partial := make(Record, len(anything))
	for k, v := range anything {
		partial[k] = v
	}
	return NewTemplate(partial)
}

// ValidateOptions controls validate's strictness (spec §4.1).
type ValidateOptions struct {
	AllowExtras bool
	CheckTypes  bool
}

// Report is the result of a single validate pass.
type Report struct {
	OK         bool
	Missing    []string
	Extras     []string
	TypeErrors []string
	Score      float64
}

// Validate runs the single linear pass over the static field table.
func Validate(record Record, opts ValidateOptions) Report {
	var report Report
	seen := make(map[string]bool, len(record))

	for key := range record {
		seen[key] = true
		if _, known := fieldSet[key]; !known {
			report.Extras = append(report.Extras, key)
		}
	}

	typeErrCount := 0
	for _, spec := range Fields {
		v, present := record[spec.Name]
		switch {
		case !present && spec.Kind.optional():
			// absence is valid for optional fields
		case !present:
			report.Missing = append(report.Missing, spec.Name)
		default:
			if opts.CheckTypes && !compatible(spec.Kind, v) {
				report.TypeErrors = append(report.TypeErrors, spec.Name)
				typeErrCount++
			}
		}
	}

	sort.Strings(report.Missing)
	sort.Strings(report.Extras)
	sort.Strings(report.TypeErrors)

	report.OK = len(report.Missing) == 0 && len(report.TypeErrors) == 0 &&
		(opts.AllowExtras || len(report.Extras) == 0)

	present := 32 - len(report.Missing)
	report.Score = float64(present-typeErrCount) / 32.0
	if report.Score < 0 {
		report.Score = 0
	}
	return report
}

// compatible checks a leaf value against its declared kind. Arrays,
// functions, and objects are never valid at leaf positions; null is
// distinct from absence and only accepted where the kind says so.
func compatible(kind Kind, v interface{}) bool {
	if v == nil {
		return kind == KindStringOrNull
	}
	switch kind {
	case KindString, KindOptionalString:
		_, ok := v.(string)
		return ok
	case KindStringOrNull:
		_, ok := v.(string)
		return ok
	case KindNumber, KindOptionalNumber:
		switch v.(type) {
		case float64, float32, int, int32, int64:
			return true
		default:
			return false
		}
	case KindBoolean, KindOptionalBoolean:
		_, ok := v.(bool)
		return ok
	default:
		return false
	}
}

// DriftReport summarizes field presence/issue rates across many records.
type DriftReport struct {
	TotalRecords   int
	PresenceCounts map[string]int
	PresenceRates  map[string]float64
	TopIssues      []IssueCount
}

// IssueCount names a field and how often it was the cause of a violation.
type IssueCount struct {
	Field string
	Count int
}

// Drift computes per-field presence counts/rates and the top-N most
// frequent issues across a slice of records (spec §4.1).
func Drift(records []Record, topN int) DriftReport {
	counts := make(map[string]int, len(Fields))
	issues := make(map[string]int, len(Fields))

	for _, rec := range records {
		report := Validate(rec, ValidateOptions{AllowExtras: true, CheckTypes: true})
		for _, spec := range Fields {
			if _, ok := rec[spec.Name]; ok {
				counts[spec.Name]++
			}
		}
		for _, m := range report.Missing {
			issues[m]++
		}
		for _, t := range report.TypeErrors {
			issues[t]++
		}
	}

	rates := make(map[string]float64, len(Fields))
	total := len(records)
	for _, spec := range Fields {
		if total == 0 {
			rates[spec.Name] = 0
			continue
		}
		rates[spec.Name] = float64(counts[spec.Name]) / float64(total)
	}

	top := make([]IssueCount, 0, len(issues))
	for field, count := range issues {
		top = append(top, IssueCount{Field: field, Count: count})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Field < top[j].Field
	})
	if topN > 0 && len(top) > topN {
		top = top[:topN]
	}

	return DriftReport{
		TotalRecords:   total,
		PresenceCounts: counts,
		PresenceRates:  rates,
		TopIssues:      top,
	}
}
