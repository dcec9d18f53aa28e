package transform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coolbox13/omfietser-processor/internal/domain"
	"github.com/coolbox13/omfietser-processor/pkg/template"
)

func TestRegistryResolvesAllFiveBuiltins(t *testing.T) {
	reg := NewRegistry()
	for _, shop := range []string{"ah", "jumbo", "aldi", "plus", "kruidvat"} {
		tr, err := reg.Get(shop)
		require.NoError(t, err)
		require.Equal(t, shop, tr.ShopType())
	}
	require.ElementsMatch(t, []string{"ah", "jumbo", "aldi", "plus", "kruidvat"}, reg.List())
}

func TestRegistryGetUnknownShopIsFatalError(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Get("bol")
	require.Error(t, err)
}

func TestAHTransformProducesCanonicalRecord(t *testing.T) {
	raw := domain.RawRow{
		ShopType: "ah",
		RawData: map[string]interface{}{
			"webshopId":               1010.0,
			"title":                   "Milk 1L",
			"currentPrice":            1.29,
			"priceBeforeBonus":        1.49,
			"brand":                   "B",
			"salesUnitSize":           "1l",
			"shopType":                "AH",
			"images":                  []interface{}{map[string]interface{}{"url": "u", "width": 300.0}},
			"mainCategory":            "Dairy",
			"orderAvailabilityStatus": "IN_ASSORTMENT",
		},
		ScrapedAt: time.Now(),
	}

	out := NewAH().Transform(raw)
	require.Nil(t, out.Err)
	require.Equal(t, "1010", out.ExternalID)
	require.Equal(t, "Milk 1L", out.Record["title"])
	require.Equal(t, 1.29, out.Record["current_price"])
	require.Equal(t, 1.49, out.Record["price_before_bonus"])
	require.Equal(t, "u", out.Record["image_url"])
	require.Equal(t, true, out.Record["is_active"])
	require.Equal(t, false, out.Record["is_promotion"])
	require.Equal(t, "none", out.Record["promotion_type"])

	report := template.Validate(out.Record, template.ValidateOptions{CheckTypes: true})
	require.True(t, report.OK, "missing=%v typeErrors=%v", report.Missing, report.TypeErrors)
}

func TestAHTransformMissingExternalIDIsValidationError(t *testing.T) {
	raw := domain.RawRow{RawData: map[string]interface{}{"title": "No ID"}}
	out := NewAH().Transform(raw)
	require.NotNil(t, out.Err)
	require.Equal(t, domain.ErrValidation, out.Err.ErrorType)
	require.Equal(t, domain.SeverityHigh, out.Err.Severity)
}

func TestAHTransformBonusSetsPromotionFields(t *testing.T) {
	raw := domain.RawRow{
		RawData: map[string]interface{}{
			"webshopId":        "2020",
			"title":            "Bread",
			"currentPrice":     2.0,
			"priceBeforeBonus": 2.5,
			"bonusPrice":       1.5,
			"bonusMechanism":   "1+1",
		},
	}
	out := NewAH().Transform(raw)
	require.Nil(t, out.Err)
	require.Equal(t, true, out.Record["is_promotion"])
	require.Equal(t, 1.5, out.Record["current_price"])
	require.Equal(t, "1+1", out.Record["promotion_mechanism"])
}

func TestJumboTransformFallsBackToSkuForExternalID(t *testing.T) {
	raw := domain.RawRow{
		RawData: map[string]interface{}{
			"sku":   "sku-123",
			"title": "Pasta",
			"price": 0.99,
		},
	}
	out := NewJumbo().Transform(raw)
	require.Nil(t, out.Err)
	require.Equal(t, "sku-123", out.ExternalID)
	require.Equal(t, 0.99, out.Record["current_price"])
}

func TestAldiTransformOnlyFlagsPromotionWhenOldPriceHigher(t *testing.T) {
	raw := domain.RawRow{
		RawData: map[string]interface{}{
			"articleNumber": "A1",
			"name":          "Cheese",
			"price":         3.0,
			"oldPrice":      3.0,
		},
	}
	out := NewAldi().Transform(raw)
	require.Nil(t, out.Err)
	require.Equal(t, false, out.Record["is_promotion"])
}

func TestPlusTransformRequiresTitle(t *testing.T) {
	raw := domain.RawRow{RawData: map[string]interface{}{"productNumber": "P1"}}
	out := NewPlus().Transform(raw)
	require.NotNil(t, out.Err)
	require.Equal(t, "P1", out.ExternalID)
}

func TestKruidvatTransformFlagsPromotionOnPriceDrop(t *testing.T) {
	raw := domain.RawRow{
		RawData: map[string]interface{}{
			"productId": "K1",
			"name":      "Shampoo",
			"price":     4.5,
			"wasPrice":  6.0,
		},
	}
	out := NewKruidvat().Transform(raw)
	require.Nil(t, out.Err)
	require.Equal(t, true, out.Record["is_promotion"])
	require.Equal(t, 6.0, out.Record["price_before_bonus"])
	require.Equal(t, 4.5, out.Record["current_price"])
}
