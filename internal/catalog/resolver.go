// Package catalog 实现标准商品的查找与创建（实体消歧）及相似度维护。
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"price-radar/internal/cache"
	"price-radar/internal/model"
	"price-radar/internal/taxonomy"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// ErrInvalidProduct 表示提取数据缺少可用名称，重试不会改变结果。
var ErrInvalidProduct = errors.New("extracted product missing usable name")

// 相似度边的持久化阈值。
const similarityThreshold = 0.4

// Store 定义解析器需要的目录读写能力。
type Store interface {
	FindByGTIN(ctx context.Context, code string) (*model.CanonicalProduct, error)
	FindByEAN(ctx context.Context, code string) (*model.CanonicalProduct, error)
	FindByStoreSKU(ctx context.Context, store, sku string) (*model.CanonicalProduct, error)
	FindByNameBrand(ctx context.Context, name, brand string) (*model.CanonicalProduct, error)
	CreateCanonicalProduct(ctx context.Context, p *model.CanonicalProduct) error
	ListCanonicalProducts(ctx context.Context, excludeID string) ([]model.CanonicalProduct, error)
	CreateSimilarities(ctx context.Context, edges []model.ProductSimilarity) error
}

// Resolver 按标识符优先级链去重：GTIN > EAN > 店铺 SKU > 名称+品牌。
type Resolver struct {
	store      Store
	normalizer *taxonomy.Normalizer
	identity   cache.Store
	locker     Locker
	logger     *logrus.Logger
	newID      func() string
	now        func() time.Time
}

// NewResolver 创建解析器，locker 为空时创建路径不加锁（保留并发竞态）。
func NewResolver(store Store, normalizer *taxonomy.Normalizer, identity cache.Store, locker Locker, logger *logrus.Logger) *Resolver {
	if normalizer == nil {
		normalizer = taxonomy.New()
	}
	if locker == nil {
		locker = NoopLocker{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Resolver{
		store:      store,
		normalizer: normalizer,
		identity:   identity,
		locker:     locker,
		logger:     logger,
		newID:      uuid.NewString,
		now:        time.Now,
	}
}

// Resolve 返回提取候选对应的标准商品，必要时创建。第二个返回值表示是否新建。
//
// 查找与创建之间没有数据库级唯一约束，同一新标识符的并发提交在未配置
// locker 时可能各自创建一条记录；配置 locker 后按标识符键串行化创建。
func (r *Resolver) Resolve(ctx context.Context, extracted model.ExtractedProduct, sourceURL, store string) (*model.CanonicalProduct, bool, error) {
	if len(strings.TrimSpace(extracted.Name)) < 3 {
		return nil, false, ErrInvalidProduct
	}

	if found, err := r.lookup(ctx, extracted, store); err != nil {
		return nil, false, err
	} else if found != nil {
		r.cacheIdentity(ctx, found)
		return found, false, nil
	}

	release, err := r.locker.Lock(ctx, r.identityKey(extracted, store))
	if err != nil {
		// 拿不到锁不阻断创建，只是失去串行化保护。
		r.logger.Warn("identity lock unavailable: " + err.Error())
	} else {
		defer release()
		// 锁内复查，吸收等锁期间其他工作协程完成的创建。
		if found, err := r.lookup(ctx, extracted, store); err != nil {
			return nil, false, err
		} else if found != nil {
			r.cacheIdentity(ctx, found)
			return found, false, nil
		}
	}

	created, err := r.create(ctx, extracted)
	if err != nil {
		return nil, false, err
	}
	r.cacheIdentity(ctx, created)

	// 相似度计算尽力而为，失败不影响创建结果。
	if err := r.computeSimilarities(ctx, created); err != nil {
		r.logger.WithFields(logrus.Fields{
			"product_id": created.ID,
		}).Warn("similarity computation failed: " + err.Error())
	}
	return created, true, nil
}

func (r *Resolver) lookup(ctx context.Context, extracted model.ExtractedProduct, store string) (*model.CanonicalProduct, error) {
	if extracted.GTIN != "" {
		if found, err := r.store.FindByGTIN(ctx, extracted.GTIN); err != nil || found != nil {
			return found, err
		}
	}
	if extracted.EAN != "" {
		if found, err := r.store.FindByEAN(ctx, extracted.EAN); err != nil || found != nil {
			return found, err
		}
	}
	if extracted.SKU != "" && store != "" {
		if found, err := r.store.FindByStoreSKU(ctx, store, extracted.SKU); err != nil || found != nil {
			return found, err
		}
	}
	if extracted.Brand != "" {
		if found, err := r.store.FindByNameBrand(ctx, extracted.Name, extracted.Brand); err != nil || found != nil {
			return found, err
		}
	}
	return nil, nil
}

func (r *Resolver) create(ctx context.Context, extracted model.ExtractedProduct) (*model.CanonicalProduct, error) {
	cat := r.normalizer.Categorize(extracted.Category, extracted.Brand, extracted.Name)
	attrs := r.normalizer.InferAttributes(extracted.Name, extracted.Brand, extracted.Description)
	// 提取到的显式属性覆盖推断值。
	for k, v := range extracted.Attributes {
		attrs[k] = v
	}

	attrMap := datatypes.JSONMap{}
	for k, v := range attrs {
		attrMap[k] = v
	}

	now := r.now()
	p := &model.CanonicalProduct{
		ID:            r.newID(),
		CanonicalName: extracted.Name,
		Brand:         extracted.Brand,
		GTIN:          extracted.GTIN,
		EAN:           extracted.EAN,
		Category:      cat.Category,
		Subcategory:   cat.Subcategory,
		ImageURL:      extracted.ImageURL,
		Attributes:    attrMap,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := r.store.CreateCanonicalProduct(ctx, p); err != nil {
		return nil, fmt.Errorf("create canonical product: %w", err)
	}
	return p, nil
}

// computeSimilarities 与目录中其余商品逐一比较并持久化双向边。
func (r *Resolver) computeSimilarities(ctx context.Context, created *model.CanonicalProduct) error {
	others, err := r.store.ListCanonicalProducts(ctx, created.ID)
	if err != nil {
		return err
	}

	var edges []model.ProductSimilarity
	for _, other := range others {
		score, reasons := similarity(created, &other)
		if score <= similarityThreshold {
			continue
		}
		reason := strings.Join(reasons, ",")
		edges = append(edges,
			model.ProductSimilarity{SourceProductID: created.ID, SimilarProductID: other.ID, SimilarityScore: score, MatchReason: reason},
			model.ProductSimilarity{SourceProductID: other.ID, SimilarProductID: created.ID, SimilarityScore: score, MatchReason: reason},
		)
	}
	return r.store.CreateSimilarities(ctx, edges)
}

// similarity 评分：同类目 +0.3（同子类目再 +0.2），同品牌 +0.2，
// 属性键值重合比例最多 +0.3。
func similarity(a, b *model.CanonicalProduct) (float64, []string) {
	score := 0.0
	var reasons []string

	if a.Category != "" && strings.EqualFold(a.Category, b.Category) {
		score += 0.3
		reasons = append(reasons, "same_category")
		if a.Subcategory != "" && strings.EqualFold(a.Subcategory, b.Subcategory) {
			score += 0.2
			reasons = append(reasons, "same_subcategory")
		}
	}
	if a.Brand != "" && strings.EqualFold(a.Brand, b.Brand) {
		score += 0.2
		reasons = append(reasons, "same_brand")
	}
	if frac := attributeOverlap(a.Attributes, b.Attributes); frac > 0 {
		score += 0.3 * frac
		reasons = append(reasons, "similar_attributes")
	}

	sort.Strings(reasons)
	return score, reasons
}

func attributeOverlap(a, b datatypes.JSONMap) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	larger := len(a)
	if len(b) > larger {
		larger = len(b)
	}
	matches := 0
	for key, av := range a {
		if bv, ok := b[key]; ok && fmt.Sprint(av) == fmt.Sprint(bv) {
			matches++
		}
	}
	return float64(matches) / float64(larger)
}

// identityKey 取创建路径要串行化的标识符，与查找链同序。
func (r *Resolver) identityKey(extracted model.ExtractedProduct, store string) string {
	switch {
	case extracted.GTIN != "":
		return "product_lock:gtin:" + extracted.GTIN
	case extracted.EAN != "":
		return "product_lock:ean:" + extracted.EAN
	case extracted.SKU != "" && store != "":
		return "product_lock:sku:" + store + ":" + extracted.SKU
	default:
		return "product_lock:name:" + strings.ToLower(strings.TrimSpace(extracted.Brand)+"|"+strings.TrimSpace(extracted.Name))
	}
}

func (r *Resolver) cacheIdentity(ctx context.Context, p *model.CanonicalProduct) {
	if r.identity == nil {
		return
	}
	if err := r.identity.SetJSON(ctx, cache.IdentityKey(p.ID), p, cache.TTLIdentity); err != nil {
		r.logger.Warn("cache product identity: " + err.Error())
	}
}
