// Package storage 封装 SQLite 数据库访问，是管线唯一的强一致共享资源。
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"price-radar/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store 负责标准商品、店铺挂牌、价格、URL 缓存与相似度边的读写。
type Store struct {
	db *gorm.DB
}

// NewStore 创建 Store 并自动迁移数据表。
func NewStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.AutoMigrate(
		&model.CanonicalProduct{},
		&model.StoreProduct{},
		&model.Price{},
		&model.URLCacheEntry{},
		&model.ProductSimilarity{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate models: %w", err)
	}

	return &Store{db: db}, nil
}

// Close 关闭底层数据库连接。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	return nil
}

// CreateCanonicalProduct 写入新的标准商品。
func (s *Store) CreateCanonicalProduct(ctx context.Context, p *model.CanonicalProduct) error {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("create canonical product: %w", err)
	}
	return nil
}

// GetCanonicalProduct 按 ID 查询标准商品，未找到返回 nil。
func (s *Store) GetCanonicalProduct(ctx context.Context, id string) (*model.CanonicalProduct, error) {
	var p model.CanonicalProduct
	err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get canonical product: %w", err)
	}
	return &p, nil
}

// FindByGTIN 精确匹配 GTIN。
func (s *Store) FindByGTIN(ctx context.Context, code string) (*model.CanonicalProduct, error) {
	return s.findOne(ctx, "gtin = ?", code)
}

// FindByEAN 精确匹配 EAN。
func (s *Store) FindByEAN(ctx context.Context, code string) (*model.CanonicalProduct, error) {
	return s.findOne(ctx, "ean = ?", code)
}

func (s *Store) findOne(ctx context.Context, query string, args ...any) (*model.CanonicalProduct, error) {
	var p model.CanonicalProduct
	err := s.db.WithContext(ctx).First(&p, append([]any{query}, args...)...).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find canonical product: %w", err)
	}
	return &p, nil
}

// FindByStoreSKU 通过店铺挂牌反查标准商品。
func (s *Store) FindByStoreSKU(ctx context.Context, store, sku string) (*model.CanonicalProduct, error) {
	var sp model.StoreProduct
	err := s.db.WithContext(ctx).First(&sp, "store = ? AND store_sku = ?", store, sku).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find store product by sku: %w", err)
	}
	return s.GetCanonicalProduct(ctx, sp.ProductID)
}

// FindByNameBrand 大小写与空白不敏感地匹配名称+品牌。
func (s *Store) FindByNameBrand(ctx context.Context, name, brand string) (*model.CanonicalProduct, error) {
	return s.findOne(ctx,
		"LOWER(TRIM(canonical_name)) = ? AND LOWER(TRIM(brand)) = ?",
		strings.ToLower(strings.TrimSpace(name)),
		strings.ToLower(strings.TrimSpace(brand)),
	)
}

// ListCanonicalProducts 返回除指定 ID 外的全部标准商品，用于相似度计算。
func (s *Store) ListCanonicalProducts(ctx context.Context, excludeID string) ([]model.CanonicalProduct, error) {
	var products []model.CanonicalProduct
	q := s.db.WithContext(ctx).Model(&model.CanonicalProduct{})
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Find(&products).Error; err != nil {
		return nil, fmt.Errorf("list canonical products: %w", err)
	}
	return products, nil
}

// CreateSimilarities 批量写入相似度边，主键冲突时覆盖分数。
func (s *Store) CreateSimilarities(ctx context.Context, edges []model.ProductSimilarity) error {
	if len(edges) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_product_id"}, {Name: "similar_product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"similarity_score", "match_reason"}),
	}).Create(&edges).Error
	if err != nil {
		return fmt.Errorf("create similarities: %w", err)
	}
	return nil
}

// ListSimilarities 返回一个商品的全部出边。
func (s *Store) ListSimilarities(ctx context.Context, productID string) ([]model.ProductSimilarity, error) {
	var edges []model.ProductSimilarity
	if err := s.db.WithContext(ctx).Where("source_product_id = ?", productID).Find(&edges).Error; err != nil {
		return nil, fmt.Errorf("list similarities: %w", err)
	}
	return edges, nil
}

// GetStoreProductByURL 按挂牌 URL 查询，未找到返回 nil。
func (s *Store) GetStoreProductByURL(ctx context.Context, url string) (*model.StoreProduct, error) {
	var sp model.StoreProduct
	err := s.db.WithContext(ctx).First(&sp, "product_url = ?", url).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get store product by url: %w", err)
	}
	return &sp, nil
}

// CreateStoreProduct 写入新的店铺挂牌。
func (s *Store) CreateStoreProduct(ctx context.Context, sp *model.StoreProduct) error {
	if err := s.db.WithContext(ctx).Create(sp).Error; err != nil {
		return fmt.Errorf("create store product: %w", err)
	}
	return nil
}

// AddPrice 追加一条价格观测，价格序列只增不改。
func (s *Store) AddPrice(ctx context.Context, price *model.Price) error {
	if err := s.db.WithContext(ctx).Create(price).Error; err != nil {
		return fmt.Errorf("add price: %w", err)
	}
	return nil
}

// ListPricesByProduct 返回一个标准商品名下全部挂牌的价格观测，按时间倒序。
func (s *Store) ListPricesByProduct(ctx context.Context, productID string, limit int) ([]model.Price, error) {
	if limit <= 0 {
		limit = 50
	}
	var prices []model.Price
	err := s.db.WithContext(ctx).
		Joins("JOIN store_products ON store_products.id = prices.store_product_id").
		Where("store_products.product_id = ?", productID).
		Order("prices.timestamp DESC").
		Limit(limit).
		Find(&prices).Error
	if err != nil {
		return nil, fmt.Errorf("list prices: %w", err)
	}
	return prices, nil
}

// UpsertURLCache 写入或刷新 URL→商品 映射，24 小时后过期。
func (s *Store) UpsertURLCache(ctx context.Context, url, productID string, now time.Time) error {
	entry := model.URLCacheEntry{
		URL:       url,
		ProductID: productID,
		CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "url"}},
		DoUpdates: clause.AssignmentColumns([]string{"product_id", "created_at", "expires_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("upsert url cache: %w", err)
	}
	return nil
}

// GetURLCache 查询未过期的 URL 映射，过期条目视同未命中。
func (s *Store) GetURLCache(ctx context.Context, url string, now time.Time) (*model.URLCacheEntry, error) {
	var entry model.URLCacheEntry
	err := s.db.WithContext(ctx).First(&entry, "url = ?", url).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get url cache: %w", err)
	}
	if now.After(entry.ExpiresAt) {
		return nil, nil
	}
	return &entry, nil
}
