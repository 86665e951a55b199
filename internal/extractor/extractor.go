// Package extractor 对单个 HTML 文档执行四级提取策略，取完整度最高的合法候选。
package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"price-radar/internal/gtin"
	"price-radar/internal/model"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
)

// ErrNoProduct 表示四个策略均未产出合法候选。
var ErrNoProduct = errors.New("no valid product candidate")

// strategy 是无状态纯函数，各自独立解析文档，失败返回 nil。
type strategy struct {
	name string
	fn   func(doc *goquery.Document, pageURL string) *model.ExtractedProduct
}

// 固定优先级顺序，仅作平分时的先后提示，最终按完整度评分取胜者。
var strategies = []strategy{
	{"structured_data", extractStructuredData},
	{"meta_tags", extractMetaTags},
	{"microdata", extractMicrodata},
	{"heuristic", extractHeuristic},
}

// Extract 运行全部策略并返回归一化后的最优候选。
func Extract(html []byte, pageURL string) (*model.ExtractedProduct, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var best *model.ExtractedProduct
	bestScore := -1
	for _, s := range strategies {
		candidate := s.fn(doc, pageURL)
		if candidate == nil || !validCandidate(candidate) {
			continue
		}
		candidate.Method = s.name
		if score := completeness(candidate); score > bestScore {
			best = candidate
			bestScore = score
		}
	}
	if best == nil {
		return nil, ErrNoProduct
	}

	normalize(best, pageURL)
	return best, nil
}

// 合法候选至少要有 3 字符以上的名称与正价格。
func validCandidate(p *model.ExtractedProduct) bool {
	return len(strings.TrimSpace(p.Name)) >= 3 && p.Price.IsPositive()
}

// completeness 评分：正价格 +10，品牌 +3，图片 +2,条码 +2，币种 +1。
func completeness(p *model.ExtractedProduct) int {
	score := 0
	if p.Price.IsPositive() {
		score += 10
	}
	if strings.TrimSpace(p.Brand) != "" {
		score += 3
	}
	if strings.TrimSpace(p.ImageURL) != "" {
		score += 2
	}
	if p.GTIN != "" || p.EAN != "" || p.SKU != "" {
		score += 2
	}
	if strings.TrimSpace(p.Currency) != "" {
		score += 1
	}
	return score
}

var whitespaceRe = regexp.MustCompile(`\s+`)

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// normalize 清洗胜出候选：压缩空白、校验条码、补默认币种。
func normalize(p *model.ExtractedProduct, pageURL string) {
	p.Name = collapse(p.Name)
	p.Brand = collapse(p.Brand)
	p.Description = collapse(p.Description)
	p.GTIN = gtin.Normalize(p.GTIN)
	p.EAN = gtin.Normalize(p.EAN)
	p.SKU = strings.TrimSpace(p.SKU)
	if p.Currency == "" {
		p.Currency = defaultCurrency(pageURL)
	}
	if p.Attributes == nil {
		p.Attributes = map[string]string{}
	}
}

// defaultCurrency 按站点域名后缀猜测币种，未知时取 USD。
func defaultCurrency(pageURL string) string {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "USD"
	}
	host := strings.ToLower(parsed.Hostname())
	switch {
	case strings.HasSuffix(host, ".de"), strings.HasSuffix(host, ".fr"),
		strings.HasSuffix(host, ".it"), strings.HasSuffix(host, ".es"),
		strings.HasSuffix(host, ".nl"):
		return "EUR"
	case strings.HasSuffix(host, ".co.uk"), strings.HasSuffix(host, ".uk"):
		return "GBP"
	case strings.HasSuffix(host, ".ca"):
		return "CAD"
	case strings.HasSuffix(host, ".co.jp"), strings.HasSuffix(host, ".jp"):
		return "JPY"
	default:
		return "USD"
	}
}

var priceDigitsRe = regexp.MustCompile(`\d[\d.,\s]*`)

// parsePrice 解析常见价格写法，兼容 1,299.99 与 1.299,99 两种千分位习惯。
func parsePrice(raw string) (decimal.Decimal, bool) {
	match := priceDigitsRe.FindString(raw)
	if match == "" {
		return decimal.Zero, false
	}
	cleaned := strings.ReplaceAll(strings.TrimSpace(match), " ", "")

	lastDot := strings.LastIndex(cleaned, ".")
	lastComma := strings.LastIndex(cleaned, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		// 靠后的是小数分隔符，另一个是千分位。
		if lastComma > lastDot {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case lastComma >= 0:
		// 只有逗号：两位小数按小数点处理，否则当千分位。
		if len(cleaned)-lastComma-1 == 2 {
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}

// currencyFromSymbol 从价格文本中的符号识别币种。
func currencyFromSymbol(raw string) string {
	switch {
	case strings.Contains(raw, "€"):
		return "EUR"
	case strings.Contains(raw, "£"):
		return "GBP"
	case strings.Contains(raw, "¥"):
		return "JPY"
	case strings.Contains(raw, "$"):
		return "USD"
	default:
		return ""
	}
}
