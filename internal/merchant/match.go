package merchant

import (
	"strings"

	"price-radar/internal/model"

	"github.com/agnivade/levenshtein"
)

// 接受搜索结果为同一商品的最低匹配分。
const acceptScore = 60.0

// Score 对比目标商品与搜索结果提取出的候选，返回 0-100 匹配分。
// GTIN 完全相等直接记 100；否则 名称相似度×50 + 品牌相同 30 + 有正价 10。
func Score(target Target, candidate *model.ExtractedProduct) float64 {
	if target.GTIN != "" && candidate.GTIN == target.GTIN {
		return 100
	}

	score := 50 * nameSimilarity(target.Name, candidate.Name)
	if target.Brand != "" && strings.EqualFold(target.Brand, candidate.Brand) {
		score += 30
	}
	if candidate.Price.IsPositive() {
		score += 10
	}
	return score
}

// Accept 判定匹配分是否达到入库阈值。
func Accept(score float64) bool {
	return score >= acceptScore
}

// nameSimilarity = 1 - 编辑距离/较长串长度，按小写比较。
func nameSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	longer := len([]rune(a))
	if l := len([]rune(b)); l > longer {
		longer = l
	}
	dist := levenshtein.ComputeDistance(a, b)
	if dist >= longer {
		return 0
	}
	return 1 - float64(dist)/float64(longer)
}
