package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// CanonicalProduct 表示一个去重后的真实商品，与销售渠道无关。
// 唯一性依赖标识符链（GTIN > EAN > 店铺 SKU > 名称+品牌）尽力维护，
// 并发提交同一新标识符时仍可能产生重复（无数据库唯一约束）。
type CanonicalProduct struct {
	ID            string            `gorm:"primaryKey" json:"id"`
	CanonicalName string            `gorm:"index" json:"canonical_name"`
	Brand         string            `json:"brand,omitempty"`
	GTIN          string            `gorm:"column:gtin;index" json:"gtin,omitempty"`
	EAN           string            `gorm:"column:ean;index" json:"ean,omitempty"`
	Category      string            `json:"category,omitempty"`
	Subcategory   string            `json:"subcategory,omitempty"`
	ImageURL      string            `json:"image_url,omitempty"`
	Attributes    datatypes.JSONMap `json:"attributes"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// StoreProduct 表示某个商家对一个标准商品的具体挂牌，按 ProductURL 去重。
type StoreProduct struct {
	ID         string            `gorm:"primaryKey" json:"id"`
	ProductID  string            `gorm:"index" json:"product_id"`
	Store      string            `gorm:"index" json:"store"`
	StoreSKU   string            `gorm:"column:store_sku" json:"store_sku,omitempty"`
	ProductURL string            `gorm:"index" json:"product_url"`
	Metadata   datatypes.JSONMap `json:"metadata"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Price 是只追加的价格观测记录，一行对应一次观测，永不更新。
type Price struct {
	ID             uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	StoreProductID string          `gorm:"index" json:"store_product_id"`
	Price          decimal.Decimal `gorm:"type:decimal(12,2)" json:"price"`
	Currency       string          `json:"currency"`
	Availability   bool            `json:"availability"`
	Timestamp      time.Time       `gorm:"index" json:"timestamp"`
}

// URLCacheEntry 提供 URL 到商品的 O(1) 映射，每次成功提取后刷新，24 小时过期。
type URLCacheEntry struct {
	URL       string    `gorm:"primaryKey" json:"url"`
	ProductID string    `json:"product_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ProductSimilarity 是商品相似度边，双向各写一条，分数区间 [0,1]。
type ProductSimilarity struct {
	SourceProductID  string  `gorm:"primaryKey" json:"source_product_id"`
	SimilarProductID string  `gorm:"primaryKey" json:"similar_product_id"`
	SimilarityScore  float64 `json:"similarity_score"`
	MatchReason      string  `json:"match_reason"`
}

// ExtractedProduct 是提取器输出的候选商品，字段允许部分缺失。
type ExtractedProduct struct {
	Name         string            `json:"name"`
	Brand        string            `json:"brand,omitempty"`
	Price        decimal.Decimal   `json:"price"`
	Currency     string            `json:"currency,omitempty"`
	ImageURL     string            `json:"image_url,omitempty"`
	Description  string            `json:"description,omitempty"`
	GTIN         string            `json:"gtin,omitempty"`
	EAN          string            `json:"ean,omitempty"`
	SKU          string            `json:"sku,omitempty"`
	Category     string            `json:"category,omitempty"`
	Availability bool              `json:"availability"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	Method       string            `json:"method,omitempty"`
}

// HasIdentifier 判断候选是否携带任一条码标识。
func (p ExtractedProduct) HasIdentifier() bool {
	return p.GTIN != "" || p.EAN != "" || p.SKU != ""
}
