package cloudsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/save-hub/save-hub/internal/cache"
	"github.com/save-hub/save-hub/internal/logging"
	"github.com/save-hub/save-hub/internal/remote"
)

// ErrQueueFull 表示上传队列已满，本次复制任务被丢弃。
var ErrQueueFull = errors.New("upload queue full")

// UploadJob 描述一次待复制的条目。Target 在入队时从当时的配置快照捕获，
// 队列中的任务不随后续配置变更改道。
type UploadJob struct {
	ID      string
	Locator cache.Locator
	Target  remote.Target
	Notify  chan<- UploadResult
}

// UploadResult 是可选的完成通知。Notify 通道应带缓冲；
// 投递采用非阻塞发送，接收迟缓时结果被丢弃而不是拖住 worker。
type UploadResult struct {
	JobID   string
	Locator cache.Locator
	Err     error
}

// UploaderStats 暴露队列计数，供诊断端与测试观察。
type UploaderStats struct {
	Enqueued  uint64 `json:"enqueued"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
	Pending   int    `json:"pending"`
}

// UploaderOptions 是 NewUploader 的构造参数。
type UploaderOptions struct {
	Store     cache.Store
	Provider  remote.Provider
	Logger    *logrus.Logger
	Workers   int
	QueueSize int
}

// Uploader 用有界队列加固定 worker 池执行后台复制。入队永不阻塞：
// 队列满时任务被丢弃并告警，本地写入的结果不受影响。
type Uploader struct {
	store    cache.Store
	provider remote.Provider
	log      *logrus.Logger

	jobs chan UploadJob
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
	stats  UploaderStats
}

// NewUploader 启动 worker 池并返回 Uploader。
func NewUploader(opts UploaderOptions) *Uploader {
	workers := opts.Workers
	if workers <= 0 {
		workers = 2
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}

	u := &Uploader{
		store:    opts.Store,
		provider: opts.Provider,
		log:      opts.Logger,
		jobs:     make(chan UploadJob, queueSize),
	}
	for i := 0; i < workers; i++ {
		u.wg.Add(1)
		go u.worker()
	}
	return u
}

// Enqueue 将任务放入队列，立即返回是否接收。队列满或已关闭时返回 false，
// 并通过 Notify（若有）投递 ErrQueueFull。
func (u *Uploader) Enqueue(job UploadJob) bool {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	u.mu.Lock()
	if u.closed {
		u.stats.Dropped++
		u.mu.Unlock()
		u.dropped(job)
		return false
	}

	select {
	case u.jobs <- job:
		u.stats.Enqueued++
		u.mu.Unlock()
		return true
	default:
		u.stats.Dropped++
		u.mu.Unlock()
		u.dropped(job)
		return false
	}
}

// Close 停止接收新任务并等待在途任务完成。
func (u *Uploader) Close() {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return
	}
	u.closed = true
	close(u.jobs)
	u.mu.Unlock()

	u.wg.Wait()
}

// Stats 返回当前队列计数快照。
func (u *Uploader) Stats() UploaderStats {
	u.mu.Lock()
	defer u.mu.Unlock()

	st := u.stats
	st.Pending = len(u.jobs)
	return st
}

func (u *Uploader) worker() {
	defer u.wg.Done()
	for job := range u.jobs {
		start := time.Now()
		err := u.process(job)
		u.finish(job, err, time.Since(start))
	}
}

// process 读取条目当前内容并整体 PUT 到远端。同名条目的多次写入
// 在网络上自由竞争，远端最终内容由最后完成的上传决定。
func (u *Uploader) process(job UploadJob) error {
	ctx := context.Background()

	result, err := u.store.Get(ctx, job.Locator)
	if err != nil {
		return fmt.Errorf("read local entry: %w", err)
	}
	defer result.Reader.Close()

	if err := u.provider.EnsureDir(ctx, job.Target, job.Locator.AppID); err != nil {
		// 目录创建失败不终止上传，让 PUT 自己见分晓。
		if u.log != nil {
			fields := logging.FileFields("remote_mkcol", job.Locator.AppID, job.Locator.Name)
			fields["job_id"] = job.ID
			u.log.WithFields(fields).Warnf("远端目录创建失败: %v", err)
		}
	}

	return u.provider.Upload(ctx, job.Target, job.Locator.AppID, job.Locator.Name, result.Reader, result.Entry.SizeBytes)
}

func (u *Uploader) finish(job UploadJob, err error, elapsed time.Duration) {
	u.mu.Lock()
	if err != nil {
		u.stats.Failed++
	} else {
		u.stats.Completed++
	}
	u.mu.Unlock()

	if u.log != nil {
		fields := logging.FileFields("upload", job.Locator.AppID, job.Locator.Name)
		fields["job_id"] = job.ID
		fields["elapsed_ms"] = elapsed.Milliseconds()
		if err != nil {
			// 传输失败只记录，调用方早已拿到本地写入的结果。
			u.log.WithFields(fields).Warnf("上传失败: %v", err)
		} else {
			u.log.WithFields(fields).Info("上传完成")
		}
	}

	u.notify(job, err)
}

func (u *Uploader) dropped(job UploadJob) {
	if u.log != nil {
		fields := logging.FileFields("upload", job.Locator.AppID, job.Locator.Name)
		fields["job_id"] = job.ID
		u.log.WithFields(fields).Warn("上传队列已满，任务被丢弃")
	}
	u.notify(job, ErrQueueFull)
}

func (u *Uploader) notify(job UploadJob, err error) {
	if job.Notify == nil {
		return
	}
	select {
	case job.Notify <- UploadResult{JobID: job.ID, Locator: job.Locator, Err: err}:
	default:
	}
}
