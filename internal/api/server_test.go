package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"price-radar/internal/cache"
	"price-radar/internal/catalog"
	"price-radar/internal/model"

	"github.com/shopspring/decimal"
)

func TestSubmitURLEnqueues(t *testing.T) {
	t.Parallel()

	q := &stubQueue{nextID: "job-1"}
	c := cache.NewMemoryStore()
	h := NewHandler(q, &stubResolver{}, &stubCatalog{}, c)

	req := httptest.NewRequest(http.MethodPost, "/products/submit-url",
		strings.NewReader(`{"url":"https://www.runshop.com/p/1"}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if q.enqueues != 1 {
		t.Fatalf("expected one enqueue, got %d", q.enqueues)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["job_id"] != "job-1" || resp["status"] != "queued" {
		t.Fatalf("unexpected response %v", resp)
	}

	// 入队后该 URL 已标记 processing，重复提交不再入队。
	req = httptest.NewRequest(http.MethodPost, "/products/submit-url",
		strings.NewReader(`{"url":"https://www.runshop.com/p/1"}`))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted || q.enqueues != 1 {
		t.Fatalf("expected dedup without enqueue, code=%d enqueues=%d", w.Code, q.enqueues)
	}
}

func TestSubmitURLCachedFastPath(t *testing.T) {
	t.Parallel()

	q := &stubQueue{}
	c := cache.NewMemoryStore()
	st := &stubCatalog{urlEntry: &model.URLCacheEntry{URL: "https://www.runshop.com/p/1", ProductID: "cp-1"}}
	h := NewHandler(q, &stubResolver{}, st, c)

	if err := c.SetString(context.Background(), cache.URLStateKey("https://www.runshop.com/p/1"), "done", cache.TTLDone); err != nil {
		t.Fatalf("seed marker: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/products/submit-url",
		strings.NewReader(`{"url":"https://www.runshop.com/p/1"}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["cached"] != true || resp["product_id"] != "cp-1" {
		t.Fatalf("expected cached hit, got %v", resp)
	}
	if q.enqueues != 0 {
		t.Fatalf("cached hit must not enqueue, got %d", q.enqueues)
	}
}

func TestSubmitURLRejectsBadURL(t *testing.T) {
	t.Parallel()

	h := NewHandler(&stubQueue{}, &stubResolver{}, &stubCatalog{}, cache.NewMemoryStore())
	req := httptest.NewRequest(http.MethodPost, "/products/submit-url", strings.NewReader(`{"url":"not a url"}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestSubmitHTML(t *testing.T) {
	t.Parallel()

	q := &stubQueue{nextID: "job-2"}
	h := NewHandler(q, &stubResolver{}, &stubCatalog{}, cache.NewMemoryStore())

	body := `{"url":"https://www.runshop.com/p/2","html":"<html><body>x</body></html>"}`
	req := httptest.NewRequest(http.MethodPost, "/products/submit-html", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if q.lastType != model.JobExtractProduct {
		t.Fatalf("expected extract job, got %s", q.lastType)
	}
	var payload model.ExtractPayload
	if err := json.Unmarshal(q.lastPayload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Source != "html_paste" || payload.HTML == "" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestExtensionSynchronousResolve(t *testing.T) {
	t.Parallel()

	r := &stubResolver{product: &model.CanonicalProduct{ID: "cp-5"}}
	st := &stubCatalog{}
	h := NewHandler(&stubQueue{}, r, st, cache.NewMemoryStore())

	body := `{"url":"https://www.runshop.com/p/5","extracted_data":{"name":"Air Zoom Pegasus 40","price":"129.99"}}`
	req := httptest.NewRequest(http.MethodPost, "/products/extension", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if st.urlUpserts != 1 {
		t.Fatalf("expected url cache upsert, got %d", st.urlUpserts)
	}

	// 无可用名称的直传数据立即 400，不走重试。
	r.err = catalog.ErrInvalidProduct
	req = httptest.NewRequest(http.MethodPost, "/products/extension",
		strings.NewReader(`{"url":"https://www.runshop.com/p/6","extracted_data":{"name":"ab"}}`))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid product, got %d", w.Code)
	}
}

func TestJobStatus(t *testing.T) {
	t.Parallel()

	q := &stubQueue{status: model.JobStatus{Status: model.JobCompleted, Data: map[string]any{"product_id": "cp-1"}}}
	h := NewHandler(q, &stubResolver{}, &stubCatalog{}, cache.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/products/jobs/job-1", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	q.statusMiss = true
	req = httptest.NewRequest(http.MethodGet, "/products/jobs/missing", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown job, got %d", w.Code)
	}
}

func TestProductPricesCacheFallback(t *testing.T) {
	t.Parallel()

	prices := []model.Price{{StoreProductID: "sp-1", Price: decimal.RequireFromString("44.99"), Currency: "EUR"}}
	st := &stubCatalog{product: &model.CanonicalProduct{ID: "cp-3"}, prices: prices}
	c := cache.NewMemoryStore()
	h := NewHandler(&stubQueue{}, &stubResolver{}, st, c)

	req := httptest.NewRequest(http.MethodGet, "/products/cp-3/prices", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if st.priceLists != 1 {
		t.Fatalf("expected storage fallback, got %d calls", st.priceLists)
	}

	// 第二次命中刚写入的缓存，不再查存储。
	req = httptest.NewRequest(http.MethodGet, "/products/cp-3/prices", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK || st.priceLists != 1 {
		t.Fatalf("expected cache hit, code=%d calls=%d", w.Code, st.priceLists)
	}

	req = httptest.NewRequest(http.MethodGet, "/products/nosuch/prices", nil)
	w = httptest.NewRecorder()
	st.product = nil
	h.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown product, got %d", w.Code)
	}
}

// --- stubs ---

type stubQueue struct {
	nextID      string
	enqueues    int
	lastType    model.JobType
	lastPayload json.RawMessage
	status      model.JobStatus
	statusMiss  bool
}

func (q *stubQueue) Enqueue(_ context.Context, typ model.JobType, payload any, _ string) (string, error) {
	q.enqueues++
	q.lastType = typ
	q.lastPayload, _ = json.Marshal(payload)
	return q.nextID, nil
}

func (q *stubQueue) Status(context.Context, string) (model.JobStatus, bool, error) {
	if q.statusMiss {
		return model.JobStatus{}, false, nil
	}
	return q.status, true, nil
}

type stubResolver struct {
	product *model.CanonicalProduct
	err     error
}

func (r *stubResolver) Resolve(context.Context, model.ExtractedProduct, string, string) (*model.CanonicalProduct, bool, error) {
	if r.err != nil {
		return nil, false, r.err
	}
	return r.product, true, nil
}

type stubCatalog struct {
	urlEntry   *model.URLCacheEntry
	product    *model.CanonicalProduct
	prices     []model.Price
	urlUpserts int
	priceLists int
}

func (c *stubCatalog) GetURLCache(context.Context, string, time.Time) (*model.URLCacheEntry, error) {
	return c.urlEntry, nil
}

func (c *stubCatalog) UpsertURLCache(context.Context, string, string, time.Time) error {
	c.urlUpserts++
	return nil
}

func (c *stubCatalog) ListPricesByProduct(context.Context, string, int) ([]model.Price, error) {
	c.priceLists++
	return c.prices, nil
}

func (c *stubCatalog) GetCanonicalProduct(context.Context, string) (*model.CanonicalProduct, error) {
	return c.product, nil
}
