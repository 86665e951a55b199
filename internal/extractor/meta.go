package extractor

import (
	"strings"

	"price-radar/internal/model"

	"github.com/PuerkitoBio/goquery"
)

// 每个字段按固定顺序取第一个非空的 meta 属性。
var metaFields = map[string][]string{
	"name":        {"og:title", "twitter:title", "title"},
	"price":       {"product:price:amount", "og:price:amount", "price"},
	"currency":    {"product:price:currency", "og:price:currency", "priceCurrency"},
	"brand":       {"product:brand", "og:brand", "brand"},
	"image":       {"og:image", "twitter:image", "image"},
	"description": {"og:description", "twitter:description", "description"},
	"gtin":        {"product:gtin", "og:gtin", "gtin"},
	"ean":         {"product:ean", "og:ean", "ean"},
	"sku":         {"product:retailer_item_id", "product:sku", "sku"},
}

// extractMetaTags 读取商品相关的 meta 标签（property 或 name 属性均可）。
func extractMetaTags(doc *goquery.Document, _ string) *model.ExtractedProduct {
	values := make(map[string]string)
	doc.Find("meta").Each(func(_ int, sel *goquery.Selection) {
		key, ok := sel.Attr("property")
		if !ok || key == "" {
			key, _ = sel.Attr("name")
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			return
		}
		content := strings.TrimSpace(sel.AttrOr("content", ""))
		if content == "" {
			return
		}
		if _, exists := values[key]; !exists {
			values[key] = content
		}
	})

	pick := func(field string) string {
		for _, key := range metaFields[field] {
			if v, ok := values[key]; ok {
				return v
			}
		}
		return ""
	}

	p := &model.ExtractedProduct{Availability: true}
	p.Name = pick("name")
	p.Brand = pick("brand")
	p.ImageURL = pick("image")
	p.Description = pick("description")
	p.GTIN = pick("gtin")
	p.EAN = pick("ean")
	p.SKU = pick("sku")
	p.Currency = pick("currency")
	if raw := pick("price"); raw != "" {
		if price, ok := parsePrice(raw); ok {
			p.Price = price
			if p.Currency == "" {
				p.Currency = currencyFromSymbol(raw)
			}
		}
	}

	if p.Name == "" && p.Price.IsZero() {
		return nil
	}
	return p
}
