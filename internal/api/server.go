// Package api 暴露提交与查询接口，队列之上的薄 HTTP 边界层。
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"price-radar/internal/cache"
	"price-radar/internal/catalog"
	"price-radar/internal/model"
)

// JobQueue 抽象队列接口。
type JobQueue interface {
	Enqueue(ctx context.Context, typ model.JobType, payload any, id string) (string, error)
	Status(ctx context.Context, id string) (model.JobStatus, bool, error)
}

// Resolver 抽象同步解析接口，供扩展直传路径使用。
type Resolver interface {
	Resolve(ctx context.Context, extracted model.ExtractedProduct, sourceURL, store string) (*model.CanonicalProduct, bool, error)
}

// Catalog 抽象存储读写接口。
type Catalog interface {
	GetURLCache(ctx context.Context, url string, now time.Time) (*model.URLCacheEntry, error)
	UpsertURLCache(ctx context.Context, url, productID string, now time.Time) error
	ListPricesByProduct(ctx context.Context, productID string, limit int) ([]model.Price, error)
	GetCanonicalProduct(ctx context.Context, id string) (*model.CanonicalProduct, error)
}

// SubmitURLRequest 表示 URL 提交请求。
type SubmitURLRequest struct {
	URL    string `json:"url"`
	UserID string `json:"user_id,omitempty"`
}

// SubmitHTMLRequest 表示粘贴 HTML 的提交请求。
type SubmitHTMLRequest struct {
	URL    string `json:"url"`
	HTML   string `json:"html"`
	UserID string `json:"user_id,omitempty"`
}

// ExtensionRequest 表示浏览器扩展的同步直传请求。
type ExtensionRequest struct {
	URL           string                 `json:"url"`
	ExtractedData model.ExtractedProduct `json:"extracted_data"`
	UserID        string                 `json:"user_id,omitempty"`
}

type server struct {
	queue    JobQueue
	resolver Resolver
	store    Catalog
	cache    cache.Store
	now      func() time.Time
}

// NewHandler 构造 HTTP 多路复用器。
func NewHandler(queue JobQueue, resolver Resolver, store Catalog, cacheStore cache.Store) http.Handler {
	s := &server{queue: queue, resolver: resolver, store: store, cache: cacheStore, now: time.Now}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/products/submit-url", s.submitURL)
	mux.HandleFunc("/products/submit-html", s.submitHTML)
	mux.HandleFunc("/products/extension", s.extension)
	mux.HandleFunc("/products/jobs/", s.jobStatus)
	mux.HandleFunc("/products/", s.productPrices)
	return mux
}

// submitURL 入队一次 URL 提取。24h 内已处理过的 URL 直接命中缓存返回，
// 正在处理中的 URL 不重复入队。
func (s *server) submitURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req SubmitURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if !validURL(req.URL) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid url"})
		return
	}

	ctx := r.Context()
	stateKey := cache.URLStateKey(req.URL)
	state, ok, err := s.cache.GetString(ctx, stateKey)
	if err == nil && ok {
		switch state {
		case "done":
			if entry, err := s.store.GetURLCache(ctx, req.URL, s.now()); err == nil && entry != nil {
				writeJSON(w, http.StatusOK, map[string]any{
					"job_id":     nil,
					"status":     "completed",
					"product_id": entry.ProductID,
					"cached":     true,
				})
				return
			}
			// 缓存标记尚在但持久映射已过期，按新提交处理。
		case "processing":
			writeJSON(w, http.StatusAccepted, map[string]any{
				"job_id": nil,
				"status": "processing",
				"cached": false,
			})
			return
		}
	}

	jobID, err := s.queue.Enqueue(ctx, model.JobExtractProduct, model.ExtractPayload{
		URL:    req.URL,
		UserID: req.UserID,
		Source: "url_fetch",
	}, "")
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	// 标记写失败无碍，只会少一次去重。
	_ = s.cache.SetString(ctx, stateKey, "processing", cache.TTLProcessing)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": jobID,
		"status": "queued",
		"cached": false,
	})
}

// submitHTML 入队一次 HTML 粘贴提取，跳过抓取阶段。
func (s *server) submitHTML(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req SubmitHTMLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if !validURL(req.URL) || strings.TrimSpace(req.HTML) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url and html are required"})
		return
	}

	jobID, err := s.queue.Enqueue(r.Context(), model.JobExtractProduct, model.ExtractPayload{
		URL:    req.URL,
		UserID: req.UserID,
		HTML:   req.HTML,
		Source: "html_paste",
	}, "")
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"job_id": jobID, "status": "queued"})
}

// extension 是绕过队列的同步路径：扩展已在页面里完成提取，服务端只做
// 解析与落库。客户端数据无名称属于不可重试的校验失败，直接 400。
func (s *server) extension(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req ExtensionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if !validURL(req.URL) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid url"})
		return
	}

	ctx := r.Context()
	product, _, err := s.resolver.Resolve(ctx, req.ExtractedData, req.URL, storeFromHost(req.URL))
	if err != nil {
		if errors.Is(err, catalog.ErrInvalidProduct) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if err := s.store.UpsertURLCache(ctx, req.URL, product.ID, s.now()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product_id": product.ID, "status": "completed"})
}

// jobStatus 返回任务当前状态，状态记录过期或不存在时报 404。
func (s *server) jobStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	jobID := strings.TrimPrefix(r.URL.Path, "/products/jobs/")
	if jobID == "" || strings.Contains(jobID, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	st, ok, err := s.queue.Status(r.Context(), jobID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id": jobID,
		"status": st.Status,
		"data":   st.Data,
	})
}

// productPrices 处理 GET /products/{id}/prices，先读缓存再落存储。
func (s *server) productPrices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/products/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "prices" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	productID := parts[0]
	ctx := r.Context()

	var prices []model.Price
	if ok, err := s.cache.GetJSON(ctx, cache.PricesKey(productID), &prices); err == nil && ok {
		writeJSON(w, http.StatusOK, map[string]any{"product_id": productID, "prices": prices, "cached": true})
		return
	}

	product, err := s.store.GetCanonicalProduct(ctx, productID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if product == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
		return
	}
	prices, err = s.store.ListPricesByProduct(ctx, productID, 50)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	_ = s.cache.SetJSON(ctx, cache.PricesKey(productID), prices, cache.TTLPrices)
	writeJSON(w, http.StatusOK, map[string]any{"product_id": productID, "prices": prices, "cached": false})
}

func validURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

func storeFromHost(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Hostname() == "" {
		return "extension"
	}
	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	if i := strings.Index(host, "."); i > 0 {
		return host[:i]
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
