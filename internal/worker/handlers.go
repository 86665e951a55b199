package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"price-radar/internal/cache"
	"price-radar/internal/extractor"
	"price-radar/internal/fetcher"
	"price-radar/internal/merchant"
	"price-radar/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// 每个搜索结果页最多深入提取的候选数。
const maxCandidateExtractions = 3

func defaultExtract(html []byte, pageURL string) (*model.ExtractedProduct, error) {
	return extractor.Extract(html, pageURL)
}

// handleExtract 处理一次 URL/HTML 提交：取页面、提取、解析标准商品、
// 落库并级联商家解析任务。任何失败都先清掉 URL 的 processing 标记，
// 避免同一 URL 的后续提交被永久卡住。
func (p *Pool) handleExtract(ctx context.Context, job *model.Job) error {
	var payload model.ExtractPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return permanent(fmt.Errorf("decode extract payload: %w", err))
	}

	product, created, err := p.runExtract(ctx, payload)
	if err != nil {
		p.clearProcessingMarker(ctx, payload.URL)
		return err
	}

	if _, err := p.queue.Enqueue(ctx, model.JobResolveMerchant, model.ResolvePayload{
		ProductID:     product.ID,
		ProductName:   product.CanonicalName,
		Brand:         product.Brand,
		GTIN:          product.GTIN,
		EAN:           product.EAN,
		OriginalStore: storeFromURL(payload.URL),
		OriginalURL:   payload.URL,
	}, ""); err != nil {
		// 商品已落库，这里失败只损失比价覆盖，不回滚提取结果。
		p.logger.WithFields(logrus.Fields{"product_id": product.ID}).Warn("enqueue resolve_merchants: " + err.Error())
	}

	p.queue.Complete(ctx, job.ID, map[string]any{
		"product_id": product.ID,
		"created":    created,
	})
	return nil
}

func (p *Pool) runExtract(ctx context.Context, payload model.ExtractPayload) (*model.CanonicalProduct, bool, error) {
	store := storeFromURL(payload.URL)

	var extracted *model.ExtractedProduct
	switch {
	case payload.ExtractedData != nil:
		extracted = payload.ExtractedData
	default:
		html := []byte(payload.HTML)
		if len(html) == 0 {
			body, err := p.fetch.FetchWithRetry(ctx, payload.URL, fetcher.Options{})
			if err != nil {
				return nil, false, fmt.Errorf("fetch %s: %w", payload.URL, err)
			}
			html = body
		}
		candidate, err := p.extract(html, payload.URL)
		if err != nil {
			return nil, false, fmt.Errorf("extract %s: %w", payload.URL, err)
		}
		extracted = candidate
	}

	product, created, err := p.resolver.Resolve(ctx, *extracted, payload.URL, store)
	if err != nil {
		return nil, false, fmt.Errorf("resolve product: %w", err)
	}

	if err := p.persistListing(ctx, product, extracted, payload.URL, store); err != nil {
		return nil, false, err
	}

	p.writeExtractionCaches(ctx, payload.URL, product, extracted, store)
	return product, created, nil
}

// persistListing 确保挂牌存在并追加一次价格观测，再刷新 URL 映射。
func (p *Pool) persistListing(ctx context.Context, product *model.CanonicalProduct, extracted *model.ExtractedProduct, pageURL, store string) error {
	if pageURL == "" {
		return nil
	}
	sp, err := p.store.GetStoreProductByURL(ctx, pageURL)
	if err != nil {
		return fmt.Errorf("lookup listing: %w", err)
	}
	if sp == nil {
		now := p.now()
		sp = &model.StoreProduct{
			ID:         p.newID(),
			ProductID:  product.ID,
			Store:      store,
			StoreSKU:   extracted.SKU,
			ProductURL: pageURL,
			Metadata:   datatypes.JSONMap{"extraction_method": extracted.Method},
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := p.store.CreateStoreProduct(ctx, sp); err != nil {
			return fmt.Errorf("create listing: %w", err)
		}
	}

	if extracted.Price.IsPositive() {
		if err := p.store.AddPrice(ctx, &model.Price{
			StoreProductID: sp.ID,
			Price:          extracted.Price,
			Currency:       extracted.Currency,
			Availability:   extracted.Availability,
			Timestamp:      p.now(),
		}); err != nil {
			return fmt.Errorf("add price: %w", err)
		}
		p.refreshPriceCache(ctx, product.ID)
	}

	if err := p.store.UpsertURLCache(ctx, pageURL, product.ID, p.now()); err != nil {
		return fmt.Errorf("upsert url cache: %w", err)
	}
	return nil
}

// handleResolve 为标准商品规划跨商家搜索，每个商家一条 fetch_prices 任务。
func (p *Pool) handleResolve(ctx context.Context, job *model.Job) error {
	var payload model.ResolvePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return permanent(fmt.Errorf("decode resolve payload: %w", err))
	}

	searches := merchant.BuildSearches(merchant.Target{
		Name:  payload.ProductName,
		Brand: payload.Brand,
		GTIN:  payload.GTIN,
	}, payload.OriginalStore)

	enqueued := 0
	for _, s := range searches {
		if _, err := p.queue.Enqueue(ctx, model.JobFetchPrices, model.FetchPricesPayload{
			ProductID:   payload.ProductID,
			MerchantID:  s.MerchantID,
			SearchURL:   s.SearchURL,
			ProductName: payload.ProductName,
			Brand:       payload.Brand,
			GTIN:        payload.GTIN,
			Confidence:  s.Confidence,
		}, ""); err != nil {
			return fmt.Errorf("enqueue fetch_prices for %s: %w", s.MerchantID, err)
		}
		enqueued++
	}

	p.queue.Complete(ctx, job.ID, map[string]any{
		"product_id": payload.ProductID,
		"merchants":  enqueued,
	})
	return nil
}

// handleFetchPrices 抓取商家搜索页，对前几个候选详情页重跑提取并评分，
// 记录第一个过线的价格。全部候选不过线不算失败，以 found:false 完成。
func (p *Pool) handleFetchPrices(ctx context.Context, job *model.Job) error {
	var payload model.FetchPricesPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return permanent(fmt.Errorf("decode fetch prices payload: %w", err))
	}
	m, ok := merchant.Lookup(payload.MerchantID)
	if !ok {
		return permanent(fmt.Errorf("unknown merchant %q", payload.MerchantID))
	}

	searchCtx, cancel := context.WithTimeout(ctx, searchFetchTimeout)
	body, err := p.fetch.FetchWithRetry(searchCtx, payload.SearchURL, fetcher.Options{MaxRetries: 1})
	cancel()
	if err != nil {
		return fmt.Errorf("fetch search page: %w", err)
	}

	links, err := merchant.ExtractProductLinks(body, m, payload.SearchURL)
	if err != nil {
		return fmt.Errorf("extract search links: %w", err)
	}

	target := merchant.Target{Name: payload.ProductName, Brand: payload.Brand, GTIN: payload.GTIN}
	examined := 0
	for _, link := range links {
		if examined == maxCandidateExtractions {
			break
		}
		examined++

		page, err := p.fetch.FetchWithRetry(ctx, link, fetcher.Options{})
		if err != nil {
			p.logger.WithFields(logrus.Fields{"url": link}).Warn("candidate fetch failed: " + err.Error())
			continue
		}
		candidate, err := p.extract(page, link)
		if err != nil {
			continue
		}

		score := merchant.Score(target, candidate)
		if !merchant.Accept(score) {
			continue
		}

		if err := p.recordMatch(ctx, payload, m, link, candidate); err != nil {
			return err
		}
		p.queue.Complete(ctx, job.ID, map[string]any{
			"found":    true,
			"score":    score,
			"merchant": m.ID,
			"url":      link,
		})
		return nil
	}

	p.queue.Complete(ctx, job.ID, map[string]any{"found": false, "merchant": m.ID})
	return nil
}

// recordMatch 以 URL 为去重键复用或新建挂牌，并追加价格观测。
func (p *Pool) recordMatch(ctx context.Context, payload model.FetchPricesPayload, m merchant.Merchant, link string, candidate *model.ExtractedProduct) error {
	sp, err := p.store.GetStoreProductByURL(ctx, link)
	if err != nil {
		return fmt.Errorf("lookup matched listing: %w", err)
	}
	if sp == nil {
		now := p.now()
		sp = &model.StoreProduct{
			ID:         p.newID(),
			ProductID:  payload.ProductID,
			Store:      m.ID,
			StoreSKU:   candidate.SKU,
			ProductURL: link,
			Metadata:   datatypes.JSONMap{"confidence": payload.Confidence},
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := p.store.CreateStoreProduct(ctx, sp); err != nil {
			return fmt.Errorf("create matched listing: %w", err)
		}
	}

	if err := p.store.AddPrice(ctx, &model.Price{
		StoreProductID: sp.ID,
		Price:          candidate.Price,
		Currency:       candidate.Currency,
		Availability:   candidate.Availability,
		Timestamp:      p.now(),
	}); err != nil {
		return fmt.Errorf("add matched price: %w", err)
	}

	p.refreshPriceCache(ctx, payload.ProductID)
	return nil
}

// refreshPriceCache 用持久层最新观测刷新 prices: 缓存，失败只记日志。
func (p *Pool) refreshPriceCache(ctx context.Context, productID string) {
	prices, err := p.store.ListPricesByProduct(ctx, productID, 50)
	if err != nil {
		p.logger.WithFields(logrus.Fields{"product_id": productID}).Warn("list prices for cache: " + err.Error())
		return
	}
	if err := p.cache.SetJSON(ctx, cache.PricesKey(productID), prices, cache.TTLPrices); err != nil {
		p.logger.WithFields(logrus.Fields{"product_id": productID}).Warn("refresh price cache: " + err.Error())
	}
}

func (p *Pool) writeExtractionCaches(ctx context.Context, pageURL string, product *model.CanonicalProduct, extracted *model.ExtractedProduct, store string) {
	if pageURL == "" {
		return
	}
	if err := p.cache.SetString(ctx, cache.URLStateKey(pageURL), "done", cache.TTLDone); err != nil {
		p.logger.Warn("mark url done: " + err.Error())
	}
	record := map[string]any{
		"product_id": product.ID,
		"product":    extracted,
		"store":      store,
		"method":     extracted.Method,
		"timestamp":  p.now().UTC().Format(time.RFC3339),
	}
	if err := p.cache.SetJSON(ctx, cache.ExtractionKey(pageURL), record, cache.TTLExtraction); err != nil {
		p.logger.Warn("cache extraction result: " + err.Error())
	}
}

func (p *Pool) clearProcessingMarker(ctx context.Context, pageURL string) {
	if pageURL == "" {
		return
	}
	if err := p.cache.Delete(ctx, cache.URLStateKey(pageURL)); err != nil {
		p.logger.Warn("clear url processing marker: " + err.Error())
	}
}

// storeFromURL 把来源 URL 归一成店铺标识，取主机名去 www 后的首段。
func storeFromURL(pageURL string) string {
	parsed, err := url.Parse(pageURL)
	if err != nil || parsed.Hostname() == "" {
		return "unknown"
	}
	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	if i := strings.Index(host, "."); i > 0 {
		return host[:i]
	}
	return host
}
