package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobType 标识三类管线任务。
type JobType string

const (
	JobExtractProduct  JobType = "extract_product"
	JobResolveMerchant JobType = "resolve_merchants"
	JobFetchPrices     JobType = "fetch_prices"
)

// JobState 是任务状态机取值。
// queued -> processing -> {completed | queued(重试) | failed | permanent_fail}
// failed 与 permanent_fail 对调用方都是终态失败信号。
type JobState string

const (
	JobQueued        JobState = "queued"
	JobProcessing    JobState = "processing"
	JobCompleted     JobState = "completed"
	JobFailed        JobState = "failed"
	JobPermanentFail JobState = "permanent_fail"
)

// Job 是队列传输记录，只存在于队列与独立的状态记录中。
type Job struct {
	ID          string          `json:"id"`
	Type        JobType         `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	CreatedAt   time.Time       `json:"created_at"`
}

// JobStatus 按任务 ID 记录当前状态，写入缓存层，24 小时过期。
type JobStatus struct {
	Status    JobState       `json:"status"`
	Data      map[string]any `json:"data,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ExtractPayload 对应 extract_product 任务。
type ExtractPayload struct {
	URL           string            `json:"url"`
	UserID        string            `json:"user_id,omitempty"`
	HTML          string            `json:"html,omitempty"`
	Source        string            `json:"source"` // url_fetch | html_paste | extension
	ExtractedData *ExtractedProduct `json:"extracted_data,omitempty"`
}

// ResolvePayload 对应 resolve_merchants 任务。
type ResolvePayload struct {
	ProductID     string `json:"product_id"`
	ProductName   string `json:"product_name"`
	Brand         string `json:"brand,omitempty"`
	GTIN          string `json:"gtin,omitempty"`
	EAN           string `json:"ean,omitempty"`
	OriginalStore string `json:"original_store"`
	OriginalURL   string `json:"original_url"`
}

// FetchPricesPayload 对应 fetch_prices 任务。
type FetchPricesPayload struct {
	ProductID   string `json:"product_id"`
	MerchantID  string `json:"merchant_id"`
	SearchURL   string `json:"search_url"`
	ProductName string `json:"product_name"`
	Brand       string `json:"brand,omitempty"`
	GTIN        string `json:"gtin,omitempty"`
	Confidence  string `json:"confidence"` // exact | strong | weak
}

// DecodePayload 按任务类型解码 payload，未知类型报错。
func (j Job) DecodePayload() (any, error) {
	switch j.Type {
	case JobExtractProduct:
		var p ExtractPayload
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode extract payload: %w", err)
		}
		return p, nil
	case JobResolveMerchant:
		var p ResolvePayload
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode resolve payload: %w", err)
		}
		return p, nil
	case JobFetchPrices:
		var p FetchPricesPayload
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode fetch prices payload: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown job type %q", j.Type)
	}
}
