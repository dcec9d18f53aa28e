package transform

import (
	"github.com/coolbox13/omfietser-processor/internal/domain"
	"github.com/coolbox13/omfietser-processor/pkg/template"
)

// AH maps Albert Heijn raw rows onto the canonical template.
type AH struct{}

// NewAH constructs the Albert Heijn transformer.
func NewAH() *AH { return &AH{} }

// ShopType implements Transformer.
func (AH) ShopType() string { return "ah" }

// Transform implements Transformer (spec §4.2, external id = webshopId).
func (t AH) Transform(raw domain.RawRow) Outcome {
	if raw.RawData == nil {
		return Outcome{Err: validationError("ah", "raw_data is not an object", true)}
	}

	externalID, ok := firstNonEmptyString(raw.RawData, "webshopId")
	if !ok {
		return Outcome{Err: validationError("ah", "external_id could not be extracted from webshopId", true)}
	}

	title, ok := stringField(raw.RawData, "title")
	if !ok || title == "" {
		return Outcome{ExternalID: externalID, Err: validationError("ah", "required field title missing or empty", true)}
	}

	partial := template.Record{
		"shop_type": "ah",
		"title":     title,
	}

	if brand, ok := stringField(raw.RawData, "brand"); ok {
		partial["brand"] = brand
	}
	if salesUnitSize, ok := stringField(raw.RawData, "salesUnitSize"); ok {
		partial["sales_unit_size"] = salesUnitSize
	}
	if mainCategory, ok := stringField(raw.RawData, "mainCategory"); ok {
		partial["main_category"] = mainCategory
	}
	if imageURL, ok := firstImageURL(raw.RawData); ok {
		partial["image_url"] = imageURL
	}
	if price, ok := floatField(raw.RawData, "currentPrice"); ok {
		partial["current_price"] = price
	}
	if priceBefore, ok := floatField(raw.RawData, "priceBeforeBonus"); ok {
		partial["price_before_bonus"] = priceBefore
	} else if price, ok := floatField(raw.RawData, "currentPrice"); ok {
		partial["price_before_bonus"] = price
	}

	applyAHAvailability(raw.RawData, partial)
	applyAHPromotion(raw.RawData, partial)

	return Outcome{Record: template.NewTemplate(partial), ExternalID: externalID}
}

func applyAHAvailability(raw map[string]interface{}, partial template.Record) {
	status, ok := stringField(raw, "orderAvailabilityStatus")
	if !ok {
		return
	}
	partial["is_active"] = status == "IN_ASSORTMENT"
}

func applyAHPromotion(raw map[string]interface{}, partial template.Record) {
	bonusPrice, hasBonus := floatField(raw, "bonusPrice")
	if !hasBonus {
		return
	}
	partial["is_promotion"] = true
	partial["current_price"] = bonusPrice
	partial["promotion_type"] = "discount"
	if mechanism, ok := stringField(raw, "bonusMechanism"); ok {
		partial["promotion_mechanism"] = mechanism
	} else {
		partial["promotion_mechanism"] = "bonus"
	}
	if start, ok := stringField(raw, "bonusStartDate"); ok {
		partial["promotion_start_date"] = start
	}
	if end, ok := stringField(raw, "bonusEndDate"); ok {
		partial["promotion_end_date"] = end
	}
}

func firstImageURL(raw map[string]interface{}) (string, bool) {
	imgs, ok := raw["images"].([]interface{})
	if !ok || len(imgs) == 0 {
		return "", false
	}
	first, ok := imgs[0].(map[string]interface{})
	if !ok {
		return "", false
	}
	url, ok := first["url"].(string)
	return url, ok
}
