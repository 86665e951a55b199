// Package fetcher 提供面向第三方商城页面的抓取客户端，带重试与反爬头部伪装。
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrBlocked 表示重试耗尽后仍被目标站点拒绝。
var ErrBlocked = errors.New("request blocked after retries")

const defaultMaxRetries = 2

// 固定 UA 池，每次请求随机取一个。
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// 已知拒绝无 Referer 请求的站点，按域名片段匹配。
var spoofedReferers = map[string]string{
	"amazon":  "https://www.google.com/",
	"walmart": "https://www.google.com/",
	"bestbuy": "https://www.google.com/",
	"zalando": "https://www.bing.com/",
}

// Options 控制单次抓取行为。
type Options struct {
	Referer    string
	MaxRetries int
}

// Client 封装 http.Client，注入点便于测试替换传输与时钟。
type Client struct {
	client *http.Client
	logger *logrus.Logger
	pickUA func() string
	sleep  func(time.Duration)
}

// New 创建抓取客户端，client 为空时使用 15s 超时的默认客户端。
func New(client *http.Client, logger *logrus.Logger) *Client {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		client: client,
		logger: logger,
		pickUA: func() string { return userAgents[rand.Intn(len(userAgents))] },
		sleep:  time.Sleep,
	}
}

// FetchWithRetry 抓取页面正文。403 与网络错误按 1s×(attempt+1) 退避重试，
// 每次重试换一套头部；其余非 200 状态不重试直接返回错误。
func (c *Client) FetchWithRetry(ctx context.Context, pageURL string, opts Options) ([]byte, error) {
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			c.sleep(time.Duration(attempt) * time.Second)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return nil, fmt.Errorf("new request: %w", err)
		}
		c.applyHeaders(req, pageURL, opts)

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			c.logger.WithFields(logrus.Fields{
				"url":     pageURL,
				"attempt": attempt + 1,
			}).Warn("fetch network error: " + err.Error())
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusForbidden {
			lastErr = fmt.Errorf("status 403")
			c.logger.WithFields(logrus.Fields{
				"url":     pageURL,
				"attempt": attempt + 1,
			}).Warn("fetch forbidden, rotating headers")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		if readErr != nil {
			return nil, fmt.Errorf("read body: %w", readErr)
		}
		if len(body) == 0 {
			return nil, fmt.Errorf("empty body from %s", pageURL)
		}
		return body, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrBlocked, lastErr)
}

func (c *Client) applyHeaders(req *http.Request, pageURL string, opts Options) {
	req.Header.Set("User-Agent", c.pickUA())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,de;q=0.7")
	// identity 避免手工处理压缩正文。
	req.Header.Set("Accept-Encoding", "identity")

	referer := opts.Referer
	if referer == "" {
		referer = refererFor(pageURL)
	}
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
}

func refererFor(pageURL string) string {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())
	for fragment, referer := range spoofedReferers {
		if strings.Contains(host, fragment) {
			return referer
		}
	}
	return ""
}
