// Package queue 实现三类任务的持久化队列与状态跟踪，投递语义为至少一次。
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"price-radar/internal/cache"
	"price-radar/internal/model"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrEmpty 表示本次阻塞等待内没有任务。
var ErrEmpty = errors.New("queue empty")

// 出队阻塞上限，调用方循环即可。
const popTimeout = time.Second

const defaultMaxAttempts = 3

// Queue 组合传输层与状态缓存，状态机见 model.JobState。
type Queue struct {
	broker      Broker
	status      cache.Store
	logger      *logrus.Logger
	maxAttempts int
	now         func() time.Time
	newID       func() string
}

// New 创建队列，maxAttempts<=0 时取默认值 3。
func New(broker Broker, status cache.Store, logger *logrus.Logger, maxAttempts int) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Queue{
		broker:      broker,
		status:      status,
		logger:      logger,
		maxAttempts: maxAttempts,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

func queueName(typ model.JobType) string { return "jobs:" + string(typ) }

// Enqueue 序列化任务入队并写入初始 queued 状态，id 为空时自动生成。
func (q *Queue) Enqueue(ctx context.Context, typ model.JobType, payload any, id string) (string, error) {
	if id == "" {
		id = q.newID()
	}
	rawPayload, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	job := model.Job{
		ID:          id,
		Type:        typ,
		Payload:     rawPayload,
		Attempts:    0,
		MaxAttempts: q.maxAttempts,
		CreatedAt:   q.now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}
	if err := q.broker.Push(ctx, queueName(typ), raw); err != nil {
		return "", fmt.Errorf("push job: %w", err)
	}
	q.writeStatus(ctx, id, model.JobQueued, map[string]any{"type": string(typ)})
	return id, nil
}

// Dequeue 阻塞至多 1s 取一个任务，取到即计入一次尝试并标记 processing。
// 若消费方在 complete/fail 前崩溃，任务已离开列表而状态停留在
// processing，这是已知缺口（无超时回收器），投递保持至少一次。
func (q *Queue) Dequeue(ctx context.Context, typ model.JobType) (*model.Job, error) {
	raw, ok, err := q.broker.Pop(ctx, queueName(typ), popTimeout)
	if err != nil {
		return nil, fmt.Errorf("pop job: %w", err)
	}
	if !ok {
		return nil, ErrEmpty
	}
	var job model.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	job.Attempts++
	q.writeStatus(ctx, job.ID, model.JobProcessing, map[string]any{
		"type":    string(job.Type),
		"attempt": job.Attempts,
	})
	return &job, nil
}

// Complete 标记任务完成并附带结果。
func (q *Queue) Complete(ctx context.Context, id string, result map[string]any) {
	q.writeStatus(ctx, id, model.JobCompleted, result)
}

// Fail 标记任务失败，canRetry=false 时进入 permanent_fail 终态。
func (q *Queue) Fail(ctx context.Context, id string, cause string, canRetry bool) {
	state := model.JobFailed
	if !canRetry {
		state = model.JobPermanentFail
	}
	q.writeStatus(ctx, id, state, map[string]any{"error": cause})
}

// Retry 在尝试次数未耗尽时原样重新入队，否则转入永久失败。
func (q *Queue) Retry(ctx context.Context, job *model.Job, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if job.Attempts >= job.MaxAttempts {
		q.logger.WithFields(logrus.Fields{
			"job_id":   job.ID,
			"type":     job.Type,
			"attempts": job.Attempts,
		}).Error("job attempts exhausted: " + msg)
		q.Fail(ctx, job.ID, msg, false)
		return nil
	}

	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job for retry: %w", err)
	}
	if err := q.broker.Push(ctx, queueName(job.Type), raw); err != nil {
		return fmt.Errorf("push retry: %w", err)
	}
	q.writeStatus(ctx, job.ID, model.JobQueued, map[string]any{
		"type":    string(job.Type),
		"attempt": job.Attempts,
		"error":   msg,
	})
	return nil
}

// Status 读取任务当前状态，不存在或已过期时返回 ok=false。
func (q *Queue) Status(ctx context.Context, id string) (model.JobStatus, bool, error) {
	var st model.JobStatus
	ok, err := q.status.GetJSON(ctx, cache.JobStatusKey(id), &st)
	if err != nil {
		return model.JobStatus{}, false, fmt.Errorf("read job status: %w", err)
	}
	return st, ok, nil
}

// 状态写入尽力而为，失败只记日志，不阻断任务流转。
func (q *Queue) writeStatus(ctx context.Context, id string, state model.JobState, data map[string]any) {
	st := model.JobStatus{Status: state, Data: data, UpdatedAt: q.now()}
	if err := q.status.SetJSON(ctx, cache.JobStatusKey(id), st, cache.TTLJobStatus); err != nil {
		q.logger.WithFields(logrus.Fields{
			"job_id": id,
			"state":  state,
		}).Error("write job status: " + err.Error())
	}
}
