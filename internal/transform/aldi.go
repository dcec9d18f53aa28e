package transform

import (
	"github.com/coolbox13/omfietser-processor/internal/domain"
	"github.com/coolbox13/omfietser-processor/pkg/template"
)

// Aldi maps Aldi raw rows onto the canonical template.
type Aldi struct{}

// NewAldi constructs the Aldi transformer.
func NewAldi() *Aldi { return &Aldi{} }

// ShopType implements Transformer.
func (Aldi) ShopType() string { return "aldi" }

// Transform implements Transformer (spec §4.2: external id = articleNumber).
func (t Aldi) Transform(raw domain.RawRow) Outcome {
	if raw.RawData == nil {
		return Outcome{Err: validationError("aldi", "raw_data is not an object", true)}
	}

	externalID, ok := firstNonEmptyString(raw.RawData, "articleNumber")
	if !ok {
		return Outcome{Err: validationError("aldi", "external_id could not be extracted from articleNumber", true)}
	}

	name, ok := stringField(raw.RawData, "name")
	if !ok || name == "" {
		return Outcome{ExternalID: externalID, Err: validationError("aldi", "required field name missing or empty", true)}
	}

	partial := template.Record{
		"shop_type": "aldi",
		"title":     name,
	}

	if brand, ok := stringField(raw.RawData, "brandName"); ok {
		partial["brand"] = brand
	}
	if packaging, ok := stringField(raw.RawData, "packagingUnit"); ok {
		partial["sales_unit_size"] = packaging
	}
	if category, ok := stringField(raw.RawData, "categoryName"); ok {
		partial["main_category"] = category
	}
	if imageURL, ok := stringField(raw.RawData, "image"); ok {
		partial["image_url"] = imageURL
	}
	if price, ok := floatField(raw.RawData, "price"); ok {
		partial["current_price"] = price
		partial["price_before_bonus"] = price
	}

	applyAldiAvailability(raw.RawData, partial)
	applyAldiPromotion(raw.RawData, partial)

	return Outcome{Record: template.NewTemplate(partial), ExternalID: externalID}
}

func applyAldiAvailability(raw map[string]interface{}, partial template.Record) {
	inStock, ok := boolField(raw, "inStock")
	if !ok {
		return
	}
	partial["is_active"] = inStock
}

func applyAldiPromotion(raw map[string]interface{}, partial template.Record) {
	oldPrice, hasOld := floatField(raw, "oldPrice")
	if !hasOld {
		return
	}
	price, _ := floatField(raw, "price")
	if oldPrice <= price {
		return
	}
	partial["is_promotion"] = true
	partial["price_before_bonus"] = oldPrice
	partial["current_price"] = price
	partial["promotion_type"] = "discount"
	partial["promotion_mechanism"] = "price_drop"
	if start, ok := stringField(raw, "discountStartDate"); ok {
		partial["promotion_start_date"] = start
	}
	if end, ok := stringField(raw, "discountEndDate"); ok {
		partial["promotion_end_date"] = end
	}
}
