package extractor

import (
	"regexp"
	"strings"

	"price-radar/internal/gtin"
	"price-radar/internal/model"

	"github.com/PuerkitoBio/goquery"
)

// 启发式兜底用的知名品牌表，匹配商品名中的整词。
var knownBrands = []string{
	"Nike", "Adidas", "Puma", "New Balance", "Asics",
	"Apple", "Samsung", "Sony", "LG", "Huawei", "Xiaomi", "Google",
	"Lego", "Bosch", "Siemens", "Philips", "Dyson", "Logitech",
	"Levi's", "Zara", "H&M", "Uniqlo", "Patagonia", "The North Face",
}

var nameSelectors = []string{
	"h1",
	`[class*="product-title"]`,
	`[class*="product-name"]`,
	`[class*="item-title"]`,
	`[id*="product-title"]`,
}

var priceSelectors = []string{
	`[class*="price"]`,
	`[id*="price"]`,
	`[data-price]`,
}

var imageSelectors = []string{
	`img[class*="product"]`,
	`[class*="product-image"] img`,
	`[class*="gallery"] img`,
	`#landingImage`,
	`main img`,
}

// 过时价格样式（划线价、原价）不作为当前售价。
var stalePriceClassRe = regexp.MustCompile(`(?i)(old|was|strike|list|before|original|compare)`)

var priceTextRe = regexp.MustCompile(`(?:[$€£¥]\s*\d[\d.,\s]*|\d[\d.,\s]*\s*[$€£¥])`)

var placeholderImageRe = regexp.MustCompile(`(?i)(placeholder|sprite|blank|pixel|loading|spacer|1x1)`)

// extractHeuristic 基于选择器与正则的模式匹配兜底策略。
func extractHeuristic(doc *goquery.Document, _ string) *model.ExtractedProduct {
	p := &model.ExtractedProduct{Availability: true}

	p.Name = heuristicName(doc)
	if raw := heuristicPriceText(doc); raw != "" {
		if price, ok := parsePrice(raw); ok {
			p.Price = price
			p.Currency = currencyFromSymbol(raw)
		}
	}
	p.Brand = heuristicBrand(doc, p.Name)
	p.ImageURL = heuristicImage(doc)

	if html, err := doc.Html(); err == nil {
		// 条码可能藏在任意属性或脚本里，对整个文档做 Luhn 扫描。
		if candidates := gtin.FindCandidates(html, 1); len(candidates) > 0 {
			p.GTIN = candidates[0]
		}
	}

	if p.Name == "" && p.Price.IsZero() {
		return nil
	}
	return p
}

func heuristicName(doc *goquery.Document) string {
	for _, selector := range nameSelectors {
		if text := collapse(doc.Find(selector).First().Text()); len(text) >= 3 {
			return text
		}
	}
	title := collapse(doc.Find("title").First().Text())
	// 去掉 "商品名 | 站点名" 一类的尾巴。
	for _, sep := range []string{" | ", " – ", " - "} {
		if idx := strings.Index(title, sep); idx > 0 {
			title = title[:idx]
			break
		}
	}
	return title
}

func heuristicPriceText(doc *goquery.Document) string {
	var found string
	for _, selector := range priceSelectors {
		doc.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			class := sel.AttrOr("class", "") + " " + sel.AttrOr("id", "")
			if stalePriceClassRe.MatchString(class) {
				return true
			}
			if attr := strings.TrimSpace(sel.AttrOr("data-price", "")); attr != "" {
				found = attr
				return false
			}
			if match := priceTextRe.FindString(sel.Text()); match != "" {
				found = match
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	return ""
}

func heuristicBrand(doc *goquery.Document, name string) string {
	for _, selector := range []string{`[class*="brand"]`, `[itemprop="brand"]`, `[data-brand]`} {
		sel := doc.Find(selector).First()
		if attr := strings.TrimSpace(sel.AttrOr("data-brand", "")); attr != "" {
			return attr
		}
		if text := collapse(sel.Text()); text != "" && len(text) <= 40 {
			return text
		}
	}
	lowerName := strings.ToLower(name)
	for _, brand := range knownBrands {
		if strings.Contains(lowerName, strings.ToLower(brand)) {
			return brand
		}
	}
	return ""
}

func heuristicImage(doc *goquery.Document) string {
	for _, selector := range imageSelectors {
		var src string
		doc.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			candidate := strings.TrimSpace(sel.AttrOr("src", ""))
			if candidate == "" || placeholderImageRe.MatchString(candidate) {
				return true
			}
			src = candidate
			return false
		})
		if src != "" {
			return src
		}
	}
	return ""
}
