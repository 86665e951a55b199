package merchant

import (
	"math"
	"strings"
	"testing"

	"price-radar/internal/model"

	"github.com/shopspring/decimal"
)

func TestBuildSearchesWithGTIN(t *testing.T) {
	t.Parallel()

	target := Target{Name: "Air Zoom Pegasus 40", Brand: "Nike", GTIN: "4006381333932"}
	searches := BuildSearches(target, "amazon")

	if len(searches) != 5 {
		t.Fatalf("expected searches capped at 5, got %d", len(searches))
	}
	for _, s := range searches {
		if s.MerchantID == "amazon" {
			t.Fatalf("origin store must be excluded, got %+v", s)
		}
		if s.Query != target.GTIN {
			t.Fatalf("expected gtin query, got %q", s.Query)
		}
		m, ok := Lookup(s.MerchantID)
		if !ok {
			t.Fatalf("unknown merchant %q in search plan", s.MerchantID)
		}
		want := "weak" // gtin query carries no brand text
		if m.SupportsGTIN {
			want = "exact"
		}
		if s.Confidence != want {
			t.Fatalf("merchant %s: expected confidence %s, got %s", s.MerchantID, want, s.Confidence)
		}
		if !strings.Contains(s.SearchURL, target.GTIN) {
			t.Fatalf("expected gtin in search url, got %s", s.SearchURL)
		}
	}
}

func TestBuildSearchesWithoutGTIN(t *testing.T) {
	t.Parallel()

	searches := BuildSearches(Target{Name: "Air Zoom Pegasus 40", Brand: "Nike"}, "runshop")
	if len(searches) == 0 {
		t.Fatalf("expected searches for text query")
	}
	for _, s := range searches {
		if s.Query != "Nike Air Zoom Pegasus 40" {
			t.Fatalf("expected brand+name query, got %q", s.Query)
		}
		if s.Confidence != "strong" {
			t.Fatalf("brand in query should be strong, got %s", s.Confidence)
		}
	}

	// 无品牌无 GTIN 的查询只能是 weak。
	searches = BuildSearches(Target{Name: "kettle"}, "")
	if len(searches) == 0 || searches[0].Confidence != "weak" {
		t.Fatalf("expected weak confidence, got %+v", searches)
	}
}

func TestExtractProductLinks(t *testing.T) {
	t.Parallel()

	page := `<html><body>
		<a href="/help/contact">Contact</a>
		<a href="https://www.amazon.com/dp/B0TEST0001">Result 1</a>
		<a href="/gp/product/B0TEST0002?ref=sr_2">Result 2</a>
		<a href="https://www.amazon.com/dp/B0TEST0001#reviews">Duplicate of 1</a>
		<a href="https://tracker.example.com/dp/B0EVIL">Off-domain</a>
		<a href="javascript:void(0)">Noise</a>
	</body></html>`

	amazon, _ := Lookup("amazon")
	links, err := ExtractProductLinks([]byte(page), amazon, "https://www.amazon.com/s?k=kettle")
	if err != nil {
		t.Fatalf("ExtractProductLinks error: %v", err)
	}

	want := []string{
		"https://www.amazon.com/dp/B0TEST0001",
		"https://www.amazon.com/gp/product/B0TEST0002?ref=sr_2",
	}
	if len(links) != len(want) {
		t.Fatalf("expected %d links, got %v", len(want), links)
	}
	for i := range want {
		if links[i] != want[i] {
			t.Fatalf("link %d: expected %s, got %s", i, want[i], links[i])
		}
	}
}

func TestExtractProductLinksCap(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	sb.WriteString("<html><body>")
	for i := 0; i < 15; i++ {
		sb.WriteString(`<a href="/itm/item-` + string(rune('a'+i)) + `">x</a>`)
	}
	sb.WriteString("</body></html>")

	ebay, _ := Lookup("ebay")
	links, err := ExtractProductLinks([]byte(sb.String()), ebay, "https://www.ebay.com/sch/i.html?_nkw=x")
	if err != nil {
		t.Fatalf("ExtractProductLinks error: %v", err)
	}
	if len(links) != 10 {
		t.Fatalf("expected cap of 10 links, got %d", len(links))
	}
}

func TestScoreGTINShortCircuit(t *testing.T) {
	t.Parallel()

	target := Target{Name: "completely different name", Brand: "OtherBrand", GTIN: "4006381333932"}
	candidate := &model.ExtractedProduct{Name: "unrelated listing", GTIN: "4006381333932"}
	if got := Score(target, candidate); got != 100 {
		t.Fatalf("expected 100 on gtin equality, got %f", got)
	}
}

func TestScoreFuzzyAcceptAndReject(t *testing.T) {
	t.Parallel()

	// 名称相似度 0.95（编辑距离 1 / 长度 20），品牌相同，有正价：
	// 47.5 + 30 + 10 = 87.5，过线。
	target := Target{Name: "nike air pegasus 40s", Brand: "Nike"}
	candidate := &model.ExtractedProduct{
		Name:  "nike air pegasus 40x",
		Brand: "nike",
		Price: decimal.RequireFromString("89.99"),
	}
	got := Score(target, candidate)
	if got != 87.5 {
		t.Fatalf("expected 87.5, got %f", got)
	}
	if !Accept(got) {
		t.Fatalf("expected %f to be accepted", got)
	}

	// 名称相似度 0.3（编辑距离 7 / 长度 10），无品牌无价：15 分，拒绝。
	got = Score(Target{Name: "red kettle"}, &model.ExtractedProduct{Name: "fan heater"})
	if math.Abs(got-15) > 1e-9 {
		t.Fatalf("expected 15, got %f", got)
	}
	if Accept(got) {
		t.Fatalf("expected %f to be rejected", got)
	}
}
