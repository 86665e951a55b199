// Package taxonomy 把自由文本的类目/品牌/名称映射到固定类目树，并推断商品属性。
package taxonomy

import (
	"regexp"
	"strings"
)

// Category 是归一化结果，Subcategory 可为空。
type Category struct {
	Category    string
	Subcategory string
}

type categoryRule struct {
	keywords []string
	result   Category
}

// 类目文本与名称共用的关键词表，靠前的规则优先。
var categoryRules = []categoryRule{
	{[]string{"sneaker", "running shoe", "trainers", "shoe", "schuh"}, Category{"footwear", "sneakers"}},
	{[]string{"boot", "stiefel"}, Category{"footwear", "boots"}},
	{[]string{"sandal", "slipper"}, Category{"footwear", "sandals"}},
	{[]string{"t-shirt", "tee", "shirt", "top", "hoodie", "sweater", "pullover"}, Category{"apparel", "tops"}},
	{[]string{"jeans", "trousers", "pants", "shorts", "hose"}, Category{"apparel", "bottoms"}},
	{[]string{"jacket", "coat", "parka", "jacke"}, Category{"apparel", "outerwear"}},
	{[]string{"dress", "skirt", "kleid"}, Category{"apparel", "dresses"}},
	{[]string{"smartphone", "phone", "iphone", "handy"}, Category{"electronics", "phones"}},
	{[]string{"laptop", "notebook", "macbook", "ultrabook"}, Category{"electronics", "laptops"}},
	{[]string{"tablet", "ipad"}, Category{"electronics", "tablets"}},
	{[]string{"headphone", "earbud", "earphone", "kopfhörer", "speaker", "soundbar"}, Category{"electronics", "audio"}},
	{[]string{"television", "monitor", "fernseher", " tv"}, Category{"electronics", "tv"}},
	{[]string{"console", "playstation", "nintendo", "xbox"}, Category{"electronics", "gaming"}},
	{[]string{"smartwatch", "watch", "uhr"}, Category{"accessories", "watches"}},
	{[]string{"backpack", "handbag", "bag", "tasche", "wallet"}, Category{"accessories", "bags"}},
	{[]string{"sunglasses", "brille"}, Category{"accessories", "eyewear"}},
	{[]string{"perfume", "fragrance", "eau de"}, Category{"beauty", "fragrance"}},
	{[]string{"shampoo", "lotion", "cream", "serum"}, Category{"beauty", "skincare"}},
	{[]string{"kettle", "toaster", "blender", "mixer", "coffee", "espresso"}, Category{"home", "kitchen"}},
	{[]string{"sofa", "couch", "armchair", "table", "desk", "shelf", "regal"}, Category{"home", "furniture"}},
	{[]string{"vacuum", "staubsauger", "air purifier", "fan"}, Category{"home", "appliances"}},
	{[]string{"lego", "puzzle", "doll", "plush", "toy"}, Category{"toys", ""}},
	{[]string{"dumbbell", "yoga", "fitness", "bike", "fahrrad"}, Category{"sports", "equipment"}},
	{[]string{"novel", "paperback", "hardcover", "book"}, Category{"media", "books"}},
}

// 品牌主营类目提示，类目文本缺失时先于名称关键词生效。
var brandHints = map[string]Category{
	"nike":        {"footwear", "sneakers"},
	"adidas":      {"footwear", "sneakers"},
	"puma":        {"footwear", "sneakers"},
	"new balance": {"footwear", "sneakers"},
	"asics":       {"footwear", "sneakers"},
	"apple":       {"electronics", ""},
	"samsung":     {"electronics", ""},
	"sony":        {"electronics", ""},
	"lg":          {"electronics", ""},
	"bosch":       {"home", "appliances"},
	"philips":     {"home", "appliances"},
	"dyson":       {"home", "appliances"},
	"logitech":    {"electronics", "peripherals"},
	"lego":        {"toys", "building"},
	"zara":        {"apparel", ""},
	"h&m":         {"apparel", ""},
	"uniqlo":      {"apparel", ""},
	"levi's":      {"apparel", "bottoms"},
}

// Normalizer 持有查找表，纯函数无内部状态。
type Normalizer struct{}

// New 创建 Normalizer。
func New() *Normalizer {
	return &Normalizer{}
}

// Categorize 按优先级依次咨询类目文本、品牌提示、商品名称。
func (n *Normalizer) Categorize(categoryText, brand, name string) Category {
	if c, ok := matchRules(categoryText); ok {
		return c
	}
	if c, ok := brandHints[strings.ToLower(strings.TrimSpace(brand))]; ok {
		return c
	}
	if c, ok := matchRules(name); ok {
		return c
	}
	return Category{}
}

func matchRules(text string) (Category, bool) {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return Category{}, false
	}
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.result, true
			}
		}
	}
	return Category{}, false
}

var (
	storageRe = regexp.MustCompile(`(?i)\b(\d+)\s?(tb|gb)\b`)
	memoryRe  = regexp.MustCompile(`(?i)\b(\d+)\s?gb\s?ram\b`)
	sizeRe    = regexp.MustCompile(`(?i)\bsize\s?(\d+(?:[.,]\d)?)\b`)
)

var colorWords = []string{
	"black", "white", "red", "blue", "navy", "green", "grey", "gray",
	"pink", "yellow", "purple", "brown", "beige", "orange", "silver", "gold",
}

var materialWords = []string{
	"leather", "suede", "cotton", "wool", "polyester", "canvas", "silk",
	"denim", "linen", "stainless steel", "aluminium", "aluminum", "wood", "glass",
}

var fitWords = []string{"slim", "skinny", "regular", "loose", "relaxed", "oversized", "tapered"}

// 顺序敏感：women 含 men，必须先查女款与童款。
var genderRules = []struct {
	value string
	words []string
}{
	{"unisex", []string{"unisex"}},
	{"kids", []string{"kids", "children", "kinder", "junior", "boys", "girls"}},
	{"female", []string{"women", "womens", "damen", "ladies", "female"}},
	{"male", []string{"men", "mens", "herren", "male"}},
}

// InferAttributes 从名称、品牌与描述的拼接文本中按关键词表推断属性。
func (n *Normalizer) InferAttributes(name, brand, description string) map[string]string {
	text := " " + strings.ToLower(strings.Join([]string{name, brand, description}, " ")) + " "
	attrs := make(map[string]string)

	for _, color := range colorWords {
		if containsWord(text, color) {
			if color == "gray" {
				color = "grey"
			}
			attrs["color"] = color
			break
		}
	}

	// 内存匹配优先，避免 "8GB RAM" 被当成存储容量。
	if m := memoryRe.FindStringSubmatch(text); m != nil {
		attrs["memory"] = m[1] + "GB"
		text = memoryRe.ReplaceAllString(text, " ")
	}
	if m := storageRe.FindStringSubmatch(text); m != nil {
		attrs["storage"] = m[1] + strings.ToUpper(m[2])
	}

genderLoop:
	for _, rule := range genderRules {
		for _, word := range rule.words {
			if containsWord(text, word) {
				attrs["gender"] = rule.value
				break genderLoop
			}
		}
	}

	for _, material := range materialWords {
		if containsWord(text, material) {
			attrs["material"] = material
			break
		}
	}

	for _, fit := range fitWords {
		if containsWord(text, fit) {
			attrs["fit"] = fit
			break
		}
	}

	if m := sizeRe.FindStringSubmatch(text); m != nil {
		attrs["size"] = strings.ReplaceAll(m[1], ",", ".")
	}

	return attrs
}

// containsWord 做整词匹配，逐个命中位置检查两侧边界。
func containsWord(text, word string) bool {
	for offset := 0; ; {
		idx := strings.Index(text[offset:], word)
		if idx < 0 {
			return false
		}
		idx += offset
		start := idx == 0 || !isAlnum(text[idx-1])
		endIdx := idx + len(word)
		end := endIdx >= len(text) || !isAlnum(text[endIdx])
		if start && end {
			return true
		}
		offset = idx + 1
	}
}

func isAlnum(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
