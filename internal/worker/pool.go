// Package worker 实现按队列类型分组的消费循环与三类任务处理器。
package worker

import (
	"context"
	"errors"
	"time"

	"price-radar/internal/cache"
	"price-radar/internal/catalog"
	"price-radar/internal/fetcher"
	"price-radar/internal/model"
	"price-radar/internal/queue"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	defaultWorkersPerType = 3
	defaultPollInterval   = time.Second
	searchFetchTimeout    = 10 * time.Second
)

// JobQueue 定义工作协程需要的队列能力。
type JobQueue interface {
	Enqueue(ctx context.Context, typ model.JobType, payload any, id string) (string, error)
	Dequeue(ctx context.Context, typ model.JobType) (*model.Job, error)
	Complete(ctx context.Context, id string, result map[string]any)
	Fail(ctx context.Context, id string, cause string, canRetry bool)
	Retry(ctx context.Context, job *model.Job, cause error) error
}

// Fetcher 抽象页面抓取，测试中以脚本化实现替换。
type Fetcher interface {
	FetchWithRetry(ctx context.Context, pageURL string, opts fetcher.Options) ([]byte, error)
}

// Resolver 抽象标准商品解析。
type Resolver interface {
	Resolve(ctx context.Context, extracted model.ExtractedProduct, sourceURL, store string) (*model.CanonicalProduct, bool, error)
}

// Storage 定义处理器需要的持久层子集。
type Storage interface {
	GetStoreProductByURL(ctx context.Context, url string) (*model.StoreProduct, error)
	CreateStoreProduct(ctx context.Context, sp *model.StoreProduct) error
	AddPrice(ctx context.Context, price *model.Price) error
	ListPricesByProduct(ctx context.Context, productID string, limit int) ([]model.Price, error)
	UpsertURLCache(ctx context.Context, url, productID string, now time.Time) error
}

// Pool 按队列类型各启动固定数量的消费循环，随 ctx 取消协同退出。
type Pool struct {
	queue    JobQueue
	fetch    Fetcher
	resolver Resolver
	store    Storage
	cache    cache.Store
	logger   *logrus.Logger

	extract        func(html []byte, pageURL string) (*model.ExtractedProduct, error)
	workersPerType int
	pollInterval   time.Duration
	now            func() time.Time
	newID          func() string
}

// NewPool 创建工作池，workersPerType<=0 时取默认值 3。
func NewPool(q JobQueue, fetch Fetcher, resolver Resolver, store Storage, cacheStore cache.Store, logger *logrus.Logger, workersPerType int) *Pool {
	if workersPerType <= 0 {
		workersPerType = defaultWorkersPerType
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Pool{
		queue:          q,
		fetch:          fetch,
		resolver:       resolver,
		store:          store,
		cache:          cacheStore,
		logger:         logger,
		extract:        defaultExtract,
		workersPerType: workersPerType,
		pollInterval:   defaultPollInterval,
		now:            time.Now,
		newID:          uuid.NewString,
	}
}

// Run 启动全部消费循环并阻塞到 ctx 取消。循环在完成手头任务后退出，
// 不做任务中途打断。
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, typ := range []model.JobType{model.JobExtractProduct, model.JobResolveMerchant, model.JobFetchPrices} {
		for i := 0; i < p.workersPerType; i++ {
			typ := typ
			g.Go(func() error { return p.loop(ctx, typ) })
		}
	}
	return g.Wait()
}

func (p *Pool) loop(ctx context.Context, typ model.JobType) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		job, err := p.queue.Dequeue(ctx, typ)
		if errors.Is(err, queue.ErrEmpty) {
			p.wait(ctx)
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.WithFields(logrus.Fields{"type": typ}).Error("dequeue failed: " + err.Error())
			p.wait(ctx)
			continue
		}
		p.handle(ctx, job)
	}
}

func (p *Pool) wait(ctx context.Context) {
	timer := time.NewTimer(p.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// handle 分发任务并把处理器错误折算为重试或永久失败，绝不向循环抛出。
func (p *Pool) handle(ctx context.Context, job *model.Job) {
	var err error
	switch job.Type {
	case model.JobExtractProduct:
		err = p.handleExtract(ctx, job)
	case model.JobResolveMerchant:
		err = p.handleResolve(ctx, job)
	case model.JobFetchPrices:
		err = p.handleFetchPrices(ctx, job)
	default:
		err = permanent(errors.New("unknown job type " + string(job.Type)))
	}
	if err == nil {
		return
	}

	p.logger.WithFields(logrus.Fields{
		"job_id":  job.ID,
		"type":    job.Type,
		"attempt": job.Attempts,
	}).Warn("job handler failed: " + err.Error())

	if isPermanent(err) {
		p.queue.Fail(ctx, job.ID, err.Error(), false)
		return
	}
	if rerr := p.queue.Retry(ctx, job, err); rerr != nil {
		p.logger.WithFields(logrus.Fields{"job_id": job.ID}).Error("retry enqueue failed: " + rerr.Error())
	}
}

// permanentError 标记重试不会改变结果的失败（坏数据、未知类型）。
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return permanentError{err: err} }

func isPermanent(err error) bool {
	var pe permanentError
	return errors.As(err, &pe) || errors.Is(err, catalog.ErrInvalidProduct)
}
