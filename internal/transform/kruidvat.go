package transform

import (
	"github.com/coolbox13/omfietser-processor/internal/domain"
	"github.com/coolbox13/omfietser-processor/pkg/template"
)

// Kruidvat maps Kruidvat raw rows onto the canonical template.
type Kruidvat struct{}

// NewKruidvat constructs the Kruidvat transformer.
func NewKruidvat() *Kruidvat { return &Kruidvat{} }

// ShopType implements Transformer.
func (Kruidvat) ShopType() string { return "kruidvat" }

// Transform implements Transformer (spec §4.2: external id = productId).
func (t Kruidvat) Transform(raw domain.RawRow) Outcome {
	if raw.RawData == nil {
		return Outcome{Err: validationError("kruidvat", "raw_data is not an object", true)}
	}

	externalID, ok := firstNonEmptyString(raw.RawData, "productId")
	if !ok {
		return Outcome{Err: validationError("kruidvat", "external_id could not be extracted from productId", true)}
	}

	name, ok := stringField(raw.RawData, "name")
	if !ok || name == "" {
		return Outcome{ExternalID: externalID, Err: validationError("kruidvat", "required field name missing or empty", true)}
	}

	partial := template.Record{
		"shop_type": "kruidvat",
		"title":     name,
	}

	if brand, ok := stringField(raw.RawData, "brand"); ok {
		partial["brand"] = brand
	}
	if contentUnit, ok := stringField(raw.RawData, "contentUnit"); ok {
		partial["sales_unit_size"] = contentUnit
	}
	if category, ok := stringField(raw.RawData, "category"); ok {
		partial["main_category"] = category
	}
	if imageURL, ok := stringField(raw.RawData, "primaryImage"); ok {
		partial["image_url"] = imageURL
	}
	if price, ok := floatField(raw.RawData, "price"); ok {
		partial["current_price"] = price
		partial["price_before_bonus"] = price
	}

	applyKruidvatAvailability(raw.RawData, partial)
	applyKruidvatPromotion(raw.RawData, partial)

	return Outcome{Record: template.NewTemplate(partial), ExternalID: externalID}
}

func applyKruidvatAvailability(raw map[string]interface{}, partial template.Record) {
	buyable, ok := boolField(raw, "buyable")
	if !ok {
		return
	}
	partial["is_active"] = buyable
}

func applyKruidvatPromotion(raw map[string]interface{}, partial template.Record) {
	wasPrice, hasWas := floatField(raw, "wasPrice")
	if !hasWas {
		return
	}
	price, _ := floatField(raw, "price")
	if wasPrice <= price {
		return
	}
	partial["is_promotion"] = true
	partial["price_before_bonus"] = wasPrice
	partial["current_price"] = price
	partial["promotion_type"] = "discount"
	if mechanism, ok := stringField(raw, "promotionText"); ok {
		partial["promotion_mechanism"] = mechanism
	} else {
		partial["promotion_mechanism"] = "discount"
	}
	if start, ok := stringField(raw, "promotionStartDate"); ok {
		partial["promotion_start_date"] = start
	}
	if end, ok := stringField(raw, "promotionEndDate"); ok {
		partial["promotion_end_date"] = end
	}
}
