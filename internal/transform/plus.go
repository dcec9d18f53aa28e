package transform

import (
	"github.com/coolbox13/omfietser-processor/internal/domain"
	"github.com/coolbox13/omfietser-processor/pkg/template"
)

// Plus maps Plus raw rows onto the canonical template.
type Plus struct{}

// NewPlus constructs the Plus transformer.
func NewPlus() *Plus { return &Plus{} }

// ShopType implements Transformer.
func (Plus) ShopType() string { return "plus" }

// Transform implements Transformer (spec §4.2: external id = productNumber).
func (t Plus) Transform(raw domain.RawRow) Outcome {
	if raw.RawData == nil {
		return Outcome{Err: validationError("plus", "raw_data is not an object", true)}
	}

	externalID, ok := firstNonEmptyString(raw.RawData, "productNumber")
	if !ok {
		return Outcome{Err: validationError("plus", "external_id could not be extracted from productNumber", true)}
	}

	title, ok := stringField(raw.RawData, "title")
	if !ok || title == "" {
		return Outcome{ExternalID: externalID, Err: validationError("plus", "required field title missing or empty", true)}
	}

	partial := template.Record{
		"shop_type": "plus",
		"title":     title,
	}

	if brand, ok := stringField(raw.RawData, "brand"); ok {
		partial["brand"] = brand
	}
	if contentSize, ok := stringField(raw.RawData, "contentSize"); ok {
		partial["sales_unit_size"] = contentSize
	}
	if category, ok := stringField(raw.RawData, "productCategory"); ok {
		partial["main_category"] = category
	}
	if imageURL, ok := stringField(raw.RawData, "imageUrl"); ok {
		partial["image_url"] = imageURL
	}
	if price, ok := floatField(raw.RawData, "salePrice"); ok {
		partial["current_price"] = price
		partial["price_before_bonus"] = price
	}
	if unitPrice, ok := floatField(raw.RawData, "pricePerUnit"); ok {
		partial["unit_price"] = unitPrice
	}
	if unitPriceUnit, ok := stringField(raw.RawData, "pricePerUnitLabel"); ok {
		partial["unit_price_unit"] = unitPriceUnit
	}

	applyPlusAvailability(raw.RawData, partial)
	applyPlusPromotion(raw.RawData, partial)

	return Outcome{Record: template.NewTemplate(partial), ExternalID: externalID}
}

func applyPlusAvailability(raw map[string]interface{}, partial template.Record) {
	orderable, ok := boolField(raw, "orderable")
	if !ok {
		return
	}
	partial["is_active"] = orderable
}

func applyPlusPromotion(raw map[string]interface{}, partial template.Record) {
	regularPrice, hasRegular := floatField(raw, "regularPrice")
	if !hasRegular {
		return
	}
	salePrice, _ := floatField(raw, "salePrice")
	if regularPrice <= salePrice {
		return
	}
	partial["is_promotion"] = true
	partial["price_before_bonus"] = regularPrice
	partial["current_price"] = salePrice
	partial["promotion_type"] = "discount"
	if label, ok := stringField(raw, "offerLabel"); ok {
		partial["promotion_mechanism"] = label
	} else {
		partial["promotion_mechanism"] = "offer"
	}
	if start, ok := stringField(raw, "offerStartDate"); ok {
		partial["promotion_start_date"] = start
	}
	if end, ok := stringField(raw, "offerEndDate"); ok {
		partial["promotion_end_date"] = end
	}
}
