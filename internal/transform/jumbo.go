package transform

import (
	"github.com/coolbox13/omfietser-processor/internal/domain"
	"github.com/coolbox13/omfietser-processor/pkg/template"
)

// Jumbo maps Jumbo raw rows onto the canonical template.
type Jumbo struct{}

// NewJumbo constructs the Jumbo transformer.
func NewJumbo() *Jumbo { return &Jumbo{} }

// ShopType implements Transformer.
func (Jumbo) ShopType() string { return "jumbo" }

// Transform implements Transformer (spec §4.2: external id = productId, then sku).
func (t Jumbo) Transform(raw domain.RawRow) Outcome {
	if raw.RawData == nil {
		return Outcome{Err: validationError("jumbo", "raw_data is not an object", true)}
	}

	externalID, ok := firstNonEmptyString(raw.RawData, "productId", "sku")
	if !ok {
		return Outcome{Err: validationError("jumbo", "external_id could not be extracted from productId or sku", true)}
	}

	title, ok := stringField(raw.RawData, "title")
	if !ok || title == "" {
		return Outcome{ExternalID: externalID, Err: validationError("jumbo", "required field title missing or empty", true)}
	}

	partial := template.Record{
		"shop_type": "jumbo",
		"title":     title,
	}

	if brand, ok := stringField(raw.RawData, "brand"); ok {
		partial["brand"] = brand
	}
	if quantity, ok := stringField(raw.RawData, "quantity"); ok {
		partial["sales_unit_size"] = quantity
	}
	if category, ok := stringField(raw.RawData, "category"); ok {
		partial["main_category"] = category
	}
	if imageURL, ok := stringField(raw.RawData, "imageUrl"); ok {
		partial["image_url"] = imageURL
	}
	if price, ok := floatField(raw.RawData, "price"); ok {
		partial["current_price"] = price
		partial["price_before_bonus"] = price
	}
	if unitPrice, ok := floatField(raw.RawData, "unitPrice"); ok {
		partial["unit_price"] = unitPrice
	}
	if unitPriceUnit, ok := stringField(raw.RawData, "unitPriceUnit"); ok {
		partial["unit_price_unit"] = unitPriceUnit
	}

	applyJumboAvailability(raw.RawData, partial)
	applyJumboPromotion(raw.RawData, partial)

	return Outcome{Record: template.NewTemplate(partial), ExternalID: externalID}
}

func applyJumboAvailability(raw map[string]interface{}, partial template.Record) {
	available, ok := boolField(raw, "available")
	if !ok {
		return
	}
	partial["is_active"] = available
}

func applyJumboPromotion(raw map[string]interface{}, partial template.Record) {
	promoPrice, hasPromo := floatField(raw, "promoPrice")
	if !hasPromo {
		return
	}
	partial["is_promotion"] = true
	if price, ok := floatField(raw, "price"); ok {
		partial["price_before_bonus"] = price
	}
	partial["current_price"] = promoPrice
	partial["promotion_type"] = "discount"
	if label, ok := stringField(raw, "promotionLabel"); ok {
		partial["promotion_mechanism"] = label
	} else {
		partial["promotion_mechanism"] = "promo"
	}
	if start, ok := stringField(raw, "promoStartDate"); ok {
		partial["promotion_start_date"] = start
	}
	if end, ok := stringField(raw, "promoEndDate"); ok {
		partial["promotion_end_date"] = end
	}
}
