package batch_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coolbox13/omfietser-processor/internal/batch"
	"github.com/coolbox13/omfietser-processor/internal/domain"
	"github.com/coolbox13/omfietser-processor/internal/storage"
	"github.com/coolbox13/omfietser-processor/internal/transform"
)

func newAdapter() (*batch.Adapter, storage.Contract) {
	registry := transform.NewRegistry()
	adapter := batch.NewAdapter(registry, nil)
	contract := storage.NewMemoryContract(storage.NewMemory())
	return adapter, contract
}

func ahRow(id string, raw map[string]interface{}) domain.RawRow {
	return domain.RawRow{ID: id, ShopType: "ah", RawData: raw}
}

// extraFieldTransformer wraps a built-in transformer and adds a field the
// canonical template does not declare to every record it emits.
type extraFieldTransformer struct{ inner transform.Transformer }

func (e extraFieldTransformer) ShopType() string { return e.inner.ShopType() }

func (e extraFieldTransformer) Transform(raw domain.RawRow) transform.Outcome {
	out := e.inner.Transform(raw)
	if out.Record != nil {
		out.Record["foo"] = "unexpected extra field"
	}
	return out
}

func newAdapterWithExtraField() (*batch.Adapter, storage.Contract) {
	registry := transform.NewRegistry()
	registry.Register(extraFieldTransformer{inner: transform.NewAH()})
	return batch.NewAdapter(registry, nil), storage.NewMemoryContract(storage.NewMemory())
}

// S1: happy path, single valid row produces one processed record.
func TestProcessBatchHappyPathProducesProcessedRow(t *testing.T) {
	adapter, contract := newAdapter()
	raw := map[string]interface{}{
		"webshopId":              "1010",
		"title":                  "Heinz Tomato Ketchup",
		"brand":                  "Heinz",
		"salesUnitSize":          "570ML",
		"mainCategory":           "Sauces",
		"currentPrice":           2.49,
		"orderAvailabilityStatus": "IN_ASSORTMENT",
	}

	result, err := adapter.ProcessBatch(context.Background(), batch.Descriptor{
		JobID:         "job-1",
		ShopType:      "ah",
		SchemaVersion: "v1",
	}, []domain.RawRow{ahRow("raw-1", raw)}, contract)

	require.NoError(t, err)
	require.Equal(t, 1, result.Success)
	require.Equal(t, 0, result.Failed)
	require.Len(t, result.ProcessedProducts, 1)
	require.Equal(t, "ah_1010_v1", result.ProcessedProducts[0].UnifiedID)
	require.Equal(t, "Heinz Tomato Ketchup", result.ProcessedProducts[0].Record["title"])
}

// S2: a row missing its required title field becomes a VALIDATION_ERROR
// and does not block the rest of the batch.
func TestProcessBatchMissingRequiredFieldIsValidationError(t *testing.T) {
	adapter, contract := newAdapter()
	bad := map[string]interface{}{"webshopId": "2020"}
	good := map[string]interface{}{"webshopId": "2021", "title": "Something"}

	result, err := adapter.ProcessBatch(context.Background(), batch.Descriptor{
		JobID:         "job-2",
		ShopType:      "ah",
		SchemaVersion: "v1",
	}, []domain.RawRow{ahRow("raw-2", bad), ahRow("raw-3", good)}, contract)

	require.NoError(t, err)
	require.Equal(t, 1, result.Success)
	require.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	require.Equal(t, domain.ErrValidation, result.Errors[0].ErrorType)
	require.Equal(t, domain.SeverityHigh, result.Errors[0].Severity)
}

// S4: a transformer that emits an extra field fails the whole batch when
// structure is enforced, but passes through (with a compliance report) when
// it is not.
func TestProcessBatchStructureEnforcementFailsWholeBatch(t *testing.T) {
	adapter, contract := newAdapterWithExtraField()
	raw := map[string]interface{}{
		"webshopId":    "3030",
		"title":        "Widget",
		"currentPrice": 1.00,
		"foo":          "unexpected extra field",
	}

	result, err := adapter.ProcessBatch(context.Background(), batch.Descriptor{
		JobID:            "job-3",
		ShopType:         "ah",
		SchemaVersion:    "v1",
		EnforceStructure: true,
	}, []domain.RawRow{ahRow("raw-4", raw)}, contract)

	require.NoError(t, err)
	require.Equal(t, 0, result.Success)
	require.Equal(t, 1, result.Failed)
	require.Empty(t, result.ProcessedProducts)
}

func TestProcessBatchStructureViolationIsReportedWhenNotEnforced(t *testing.T) {
	adapter, contract := newAdapterWithExtraField()
	raw := map[string]interface{}{
		"webshopId":    "3031",
		"title":        "Widget",
		"currentPrice": 1.00,
		"foo":          "unexpected extra field",
	}

	result, err := adapter.ProcessBatch(context.Background(), batch.Descriptor{
		JobID:            "job-4",
		ShopType:         "ah",
		SchemaVersion:    "v1",
		EnforceStructure: false,
	}, []domain.RawRow{ahRow("raw-5", raw)}, contract)

	require.NoError(t, err)
	require.Equal(t, 1, result.Success)
	require.Equal(t, 0, result.Failed)
	require.Equal(t, 1, result.Compliance.Violations)
	require.Less(t, result.Compliance.ComplianceRate, 1.0)
}

// Unknown shop type is a fatal initialization error, not a per-row outcome.
func TestProcessBatchUnknownShopTypeReturnsError(t *testing.T) {
	adapter, contract := newAdapter()
	_, err := adapter.ProcessBatch(context.Background(), batch.Descriptor{
		JobID:    "job-5",
		ShopType: "does-not-exist",
	}, []domain.RawRow{ahRow("raw-6", map[string]interface{}{})}, contract)

	require.Error(t, err)
}

// Re-upserting an identical row is deduped (spec §8 property 2).
func TestProcessBatchDedupesIdenticalRowOnRetry(t *testing.T) {
	adapter, contract := newAdapter()
	raw := map[string]interface{}{
		"webshopId":    "4040",
		"title":        "Stable Product",
		"currentPrice": 5.00,
	}

	desc := batch.Descriptor{JobID: "job-6", ShopType: "ah", SchemaVersion: "v1"}
	rows := []domain.RawRow{ahRow("raw-7", raw)}

	first, err := adapter.ProcessBatch(context.Background(), desc, rows, contract)
	require.NoError(t, err)
	require.Equal(t, 0, first.Deduped)

	second, err := adapter.ProcessBatch(context.Background(), desc, rows, contract)
	require.NoError(t, err)
	require.Equal(t, 1, second.Deduped)
}
