// Package merchant 维护静态商家目录、搜索构造与比价匹配评分。
package merchant

import (
	"fmt"
	"net/url"
	"strings"
)

// Merchant 是一个已知商家的静态配置，不落库。
type Merchant struct {
	ID                string
	Name              string
	Domains           []string
	SupportsSearch    bool
	SupportsGTIN      bool
	Countries         []string
	SearchURLTemplate string   // %s 占位，填入转义后的查询串
	linkPatterns      []string // 商品详情页 URL 的路径特征
}

// Search 是对单个商家的一次搜索计划。
type Search struct {
	MerchantID string
	SearchURL  string
	Query      string
	Confidence string // exact | strong | weak
}

const maxSearches = 5

// registry 按固定顺序列出商家，顺序决定截断到 maxSearches 时谁先入选。
var registry = []Merchant{
	{
		ID: "amazon", Name: "Amazon",
		Domains:           []string{"amazon.com", "amazon.de", "amazon.co.uk"},
		SupportsSearch:    true,
		SupportsGTIN:      true,
		Countries:         []string{"US", "DE", "GB"},
		SearchURLTemplate: "https://www.amazon.com/s?k=%s",
		linkPatterns:      []string{"/dp/", "/gp/product/"},
	},
	{
		ID: "ebay", Name: "eBay",
		Domains:           []string{"ebay.com", "ebay.de"},
		SupportsSearch:    true,
		SupportsGTIN:      true,
		Countries:         []string{"US", "DE"},
		SearchURLTemplate: "https://www.ebay.com/sch/i.html?_nkw=%s",
		linkPatterns:      []string{"/itm/"},
	},
	{
		ID: "walmart", Name: "Walmart",
		Domains:           []string{"walmart.com"},
		SupportsSearch:    true,
		SupportsGTIN:      false,
		Countries:         []string{"US"},
		SearchURLTemplate: "https://www.walmart.com/search?q=%s",
		linkPatterns:      []string{"/ip/"},
	},
	{
		ID: "bestbuy", Name: "Best Buy",
		Domains:           []string{"bestbuy.com"},
		SupportsSearch:    true,
		SupportsGTIN:      false,
		Countries:         []string{"US", "CA"},
		SearchURLTemplate: "https://www.bestbuy.com/site/searchpage.jsp?st=%s",
		linkPatterns:      []string{"/site/", ".p?"},
	},
	{
		ID: "target", Name: "Target",
		Domains:           []string{"target.com"},
		SupportsSearch:    true,
		SupportsGTIN:      false,
		Countries:         []string{"US"},
		SearchURLTemplate: "https://www.target.com/s?searchTerm=%s",
		linkPatterns:      []string{"/p/"},
	},
	{
		ID: "otto", Name: "OTTO",
		Domains:           []string{"otto.de"},
		SupportsSearch:    true,
		SupportsGTIN:      true,
		Countries:         []string{"DE"},
		SearchURLTemplate: "https://www.otto.de/suche/%s/",
		linkPatterns:      []string{"/p/"},
	},
	{
		ID: "bol", Name: "bol.com",
		Domains:           []string{"bol.com"},
		SupportsSearch:    true,
		SupportsGTIN:      true,
		Countries:         []string{"NL", "BE"},
		SearchURLTemplate: "https://www.bol.com/nl/nl/s/?searchtext=%s",
		linkPatterns:      []string{"/p/"},
	},
}

// All 返回全部已知商家。
func All() []Merchant {
	return registry
}

// Lookup 按 ID 查商家。
func Lookup(id string) (Merchant, bool) {
	for _, m := range registry {
		if m.ID == id {
			return m, true
		}
	}
	return Merchant{}, false
}

// Target 描述要去其他商家比价的目标商品。
type Target struct {
	Name  string
	Brand string
	GTIN  string
}

// BuildSearches 为可搜索商家各生成一次搜索计划，跳过商品来源店铺，
// 最多返回 maxSearches 条。查询优先用 GTIN，否则用 品牌+名称。
func BuildSearches(target Target, originStore string) []Search {
	var searches []Search
	origin := strings.ToLower(strings.TrimSpace(originStore))
	for _, m := range registry {
		if !m.SupportsSearch || m.SearchURLTemplate == "" {
			continue
		}
		if m.ID == origin || matchesDomain(m, origin) {
			continue
		}

		query := target.GTIN
		if query == "" {
			query = strings.TrimSpace(target.Brand + " " + target.Name)
		}
		if query == "" {
			continue
		}

		searches = append(searches, Search{
			MerchantID: m.ID,
			SearchURL:  fmt.Sprintf(m.SearchURLTemplate, url.QueryEscape(query)),
			Query:      query,
			Confidence: confidence(target, m, query),
		})
		if len(searches) == maxSearches {
			break
		}
	}
	return searches
}

// confidence 标注搜索可信度：GTIN 搜索为 exact，带品牌为 strong，其余 weak。
func confidence(target Target, m Merchant, query string) string {
	if target.GTIN != "" && m.SupportsGTIN {
		return "exact"
	}
	if target.Brand != "" && strings.Contains(strings.ToLower(query), strings.ToLower(target.Brand)) {
		return "strong"
	}
	return "weak"
}

func matchesDomain(m Merchant, origin string) bool {
	if origin == "" {
		return false
	}
	for _, d := range m.Domains {
		if strings.Contains(origin, d) || strings.Contains(d, origin) {
			return true
		}
	}
	return false
}
