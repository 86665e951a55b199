package extractor

import (
	"encoding/json"
	"strconv"
	"strings"

	"price-radar/internal/model"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
)

// extractStructuredData 解析内嵌的 JSON-LD Product 块，多个报价取最低正价。
func extractStructuredData(doc *goquery.Document, _ string) *model.ExtractedProduct {
	var result *model.ExtractedProduct
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		var payload any
		if err := json.Unmarshal([]byte(sel.Text()), &payload); err != nil {
			return true // 单块损坏不影响其余块
		}
		if product := findProductNode(payload); product != nil {
			result = productFromJSONLD(product)
			return result == nil
		}
		return true
	})
	return result
}

// findProductNode 在对象、数组与 @graph 中递归寻找 @type=Product 的节点。
func findProductNode(node any) map[string]any {
	switch v := node.(type) {
	case map[string]any:
		if hasType(v, "Product") {
			return v
		}
		if graph, ok := v["@graph"]; ok {
			return findProductNode(graph)
		}
	case []any:
		for _, item := range v {
			if found := findProductNode(item); found != nil {
				return found
			}
		}
	}
	return nil
}

func hasType(node map[string]any, want string) bool {
	switch t := node["@type"].(type) {
	case string:
		return strings.EqualFold(t, want)
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && strings.EqualFold(s, want) {
				return true
			}
		}
	}
	return false
}

func productFromJSONLD(node map[string]any) *model.ExtractedProduct {
	p := &model.ExtractedProduct{Availability: true}
	p.Name = stringField(node, "name")
	p.Description = stringField(node, "description")
	p.ImageURL = imageField(node["image"])
	p.Brand = brandField(node["brand"])
	p.SKU = stringField(node, "sku")
	for _, key := range []string{"gtin13", "gtin14", "gtin12", "gtin8", "gtin"} {
		if v := stringField(node, key); v != "" {
			p.GTIN = v
			break
		}
	}
	if v := stringField(node, "ean"); v != "" {
		p.EAN = v
	}

	price, currency, available := lowestOffer(node["offers"])
	p.Price = price
	p.Currency = currency
	if !available {
		p.Availability = false
	}
	if p.Name == "" && p.Price.IsZero() {
		return nil
	}
	return p
}

// lowestOffer 汇总单个或多个 offer，返回最低正价与其币种。
func lowestOffer(offers any) (decimal.Decimal, string, bool) {
	best := decimal.Zero
	currency := ""
	available := true

	consider := func(offer map[string]any) {
		raw := stringField(offer, "price")
		if raw == "" {
			raw = stringField(offer, "lowPrice")
		}
		price, ok := parsePrice(raw)
		if !ok {
			return
		}
		if best.IsZero() || price.LessThan(best) {
			best = price
			currency = stringField(offer, "priceCurrency")
		}
		if availability := stringField(offer, "availability"); strings.Contains(availability, "OutOfStock") {
			available = false
		}
	}

	switch v := offers.(type) {
	case map[string]any:
		consider(v)
	case []any:
		for _, item := range v {
			if offer, ok := item.(map[string]any); ok {
				consider(offer)
			}
		}
	}
	return best, currency, available
}

// stringField 容忍数值类型的字段取值。
func stringField(node map[string]any, key string) string {
	switch v := node[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func imageField(v any) string {
	switch img := v.(type) {
	case string:
		return strings.TrimSpace(img)
	case []any:
		for _, item := range img {
			if s, ok := item.(string); ok && s != "" {
				return strings.TrimSpace(s)
			}
		}
	case map[string]any:
		return stringField(img, "url")
	}
	return ""
}

func brandField(v any) string {
	switch b := v.(type) {
	case string:
		return strings.TrimSpace(b)
	case map[string]any:
		return stringField(b, "name")
	}
	return ""
}
