package extractor

import (
	"strings"

	"price-radar/internal/model"

	"github.com/PuerkitoBio/goquery"
)

// extractMicrodata 解析 schema.org 微数据标注的 Product 节点及其子属性。
func extractMicrodata(doc *goquery.Document, _ string) *model.ExtractedProduct {
	scope := doc.Find(`[itemtype*="schema.org/Product"]`).First()
	if scope.Length() == 0 {
		return nil
	}

	prop := func(name string) string {
		var value string
		scope.Find(`[itemprop="` + name + `"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			value = itempropValue(sel)
			return value == ""
		})
		return value
	}

	p := &model.ExtractedProduct{Availability: true}
	p.Name = prop("name")
	p.Brand = prop("brand")
	p.ImageURL = prop("image")
	p.Description = prop("description")
	p.GTIN = firstNonEmpty(prop("gtin13"), prop("gtin14"), prop("gtin12"), prop("gtin8"), prop("gtin"))
	p.EAN = prop("ean")
	p.SKU = firstNonEmpty(prop("sku"), prop("mpn"))
	p.Currency = prop("priceCurrency")

	if raw := prop("price"); raw != "" {
		if price, ok := parsePrice(raw); ok {
			p.Price = price
			if p.Currency == "" {
				p.Currency = currencyFromSymbol(raw)
			}
		}
	}
	if availability := prop("availability"); strings.Contains(availability, "OutOfStock") {
		p.Availability = false
	}

	if p.Name == "" && p.Price.IsZero() {
		return nil
	}
	return p
}

// itemprop 的取值位置依元素类型而异：content 属性、链接地址或文本。
func itempropValue(sel *goquery.Selection) string {
	if content, ok := sel.Attr("content"); ok && strings.TrimSpace(content) != "" {
		return strings.TrimSpace(content)
	}
	switch goquery.NodeName(sel) {
	case "img":
		return strings.TrimSpace(sel.AttrOr("src", ""))
	case "a", "link":
		return strings.TrimSpace(sel.AttrOr("href", ""))
	case "meta":
		return ""
	}
	return strings.TrimSpace(sel.Text())
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
