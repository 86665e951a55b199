package merchant

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const maxCandidateLinks = 10

// ExtractProductLinks 从商家搜索结果页提取商品详情页链接。
// 相对链接按 searchURL 补全，非本商家域名的链接丢弃，去重后最多返回 10 条。
func ExtractProductLinks(html []byte, m Merchant, searchURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	base, err := url.Parse(searchURL)
	if err != nil {
		return nil, fmt.Errorf("parse search url: %w", err)
	}

	seen := make(map[string]bool)
	var links []string
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		resolved := resolveLink(base, href)
		if resolved == "" || !isProductLink(m, resolved) {
			return true
		}
		if seen[resolved] {
			return true
		}
		seen[resolved] = true
		links = append(links, resolved)
		return len(links) < maxCandidateLinks
	})
	return links, nil
}

func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	// 跟踪参数和片段不参与去重。
	resolved.Fragment = ""
	return resolved.String()
}

// isProductLink 按商家的路径特征判定详情页链接，并校验域名归属。
func isProductLink(m Merchant, link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(u.Host, "www.")
	ours := false
	for _, d := range m.Domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			ours = true
			break
		}
	}
	if !ours {
		return false
	}
	target := u.Path
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	for _, pattern := range m.linkPatterns {
		if strings.Contains(target, pattern) {
			return true
		}
	}
	return false
}
