package template

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewTemplateFillsRequiredAndDefaults(t *testing.T) {
	rec := NewTemplate(Record{"title": "Milk 1L", "shop_type": "ah"})

	require.Equal(t, "Milk 1L", rec["title"])
	require.Equal(t, "ah", rec["shop_type"])
	require.Equal(t, "", rec["brand"])
	require.Equal(t, false, rec["is_promotion"])
	require.Equal(t, "none", rec["promotion_type"])
	require.Equal(t, true, rec["is_active"])

	_, hasOptional := rec["unit_price"]
	require.False(t, hasOptional, "unsupplied optional field must stay absent")
}

func TestNewTemplateKeepsSuppliedOptionalFields(t *testing.T) {
	rec := NewTemplate(Record{"unit_price": 1.23})
	require.Equal(t, 1.23, rec["unit_price"])
}

func TestValidatePassesForCompleteTemplate(t *testing.T) {
	rec := NewTemplate(Record{"title": "x", "shop_type": "ah"})
	report := Validate(rec, ValidateOptions{AllowExtras: false, CheckTypes: true})

	require.True(t, report.OK)
	require.Equal(t, 1.0, report.Score)
	require.Empty(t, report.Missing)
}

func TestValidateReportsMissingRequiredField(t *testing.T) {
	rec := NewTemplate(Record{"title": "x", "shop_type": "ah"})
	delete(rec, "current_price")

	report := Validate(rec, ValidateOptions{CheckTypes: true})
	require.False(t, report.OK)
	require.Contains(t, report.Missing, "current_price")
}

func TestValidateRejectsExtrasUnlessAllowed(t *testing.T) {
	rec := NewTemplate(Record{"title": "x", "shop_type": "ah"})
	rec["foo"] = "bar"

	strict := Validate(rec, ValidateOptions{AllowExtras: false, CheckTypes: true})
	require.False(t, strict.OK)
	require.Contains(t, strict.Extras, "foo")

	lenient := Validate(rec, ValidateOptions{AllowExtras: true, CheckTypes: true})
	require.True(t, lenient.OK)
}

func TestValidateDistinguishesNullFromAbsent(t *testing.T) {
	rec := NewTemplate(Record{"title": "x", "shop_type": "ah"})
	rec["main_category"] = nil
	report := Validate(rec, ValidateOptions{CheckTypes: true})
	require.True(t, report.OK)

	delete(rec, "main_category")
	report = Validate(rec, ValidateOptions{CheckTypes: true})
	require.Contains(t, report.Missing, "main_category")
}

func TestValidateCatchesWrongLeafType(t *testing.T) {
	rec := NewTemplate(Record{"title": "x", "shop_type": "ah"})
	rec["current_price"] = "not a number"

	report := Validate(rec, ValidateOptions{CheckTypes: true})
	require.False(t, report.OK)
	require.Contains(t, report.TypeErrors, "current_price")
}

func TestEnsureCompleteDoesNotMutateInput(t *testing.T) {
	input := map[string]interface{}{"title": "x"}
	_ = EnsureComplete(input)
	require.Len(t, input, 1)
}

func TestDriftSummarizesPresenceAcrossRecords(t *testing.T) {
	complete := NewTemplate(Record{"title": "x", "shop_type": "ah"})
	incomplete := NewTemplate(Record{"title": "y", "shop_type": "ah"})
	delete(incomplete, "brand")

	report := Drift([]Record{complete, incomplete}, 5)
	require.Equal(t, 2, report.TotalRecords)
	require.Equal(t, 0.5, report.PresenceRates["brand"])
	require.NotEmpty(t, report.TopIssues)
	require.Equal(t, "brand", report.TopIssues[0].Field)
}
