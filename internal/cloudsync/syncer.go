package cloudsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/save-hub/save-hub/internal/cache"
	"github.com/save-hub/save-hub/internal/config"
	"github.com/save-hub/save-hub/internal/logging"
	"github.com/save-hub/save-hub/internal/remote"
)

var (
	// ErrNotManaged 表示该 appID 不在当前作用域内，任何磁盘或网络操作都未发生。
	ErrNotManaged = errors.New("app not managed")

	// ErrOutOfRange 表示枚举下标超出本次列表长度。
	ErrOutOfRange = errors.New("entry index out of range")

	// ErrRemoteDisabled 表示未配置远端地址，无法执行远端操作。
	ErrRemoteDisabled = errors.New("remote endpoint not configured")

	// ErrNotImplemented 标记声明而未实现的扩展点。
	ErrNotImplemented = errors.New("not implemented")
)

// Options 是 New 的构造参数，全部字段必填（Logger 可空表示静默）。
type Options struct {
	Source   config.Source
	Store    cache.Store
	Provider remote.Provider
	Uploader *Uploader
	Logger   *logrus.Logger
}

// Syncer 是同步编排器：写操作本地落盘后把复制任务交给 Uploader，
// 读未命中时同步回源一次。所有作用域判定都在操作发生时根据
// 最新配置重新求值。
type Syncer struct {
	source   config.Source
	store    cache.Store
	provider remote.Provider
	uploader *Uploader
	log      *logrus.Logger
}

// New 组装 Syncer。
func New(opts Options) (*Syncer, error) {
	if opts.Source == nil {
		return nil, errors.New("config source required")
	}
	if opts.Store == nil {
		return nil, errors.New("store required")
	}
	if opts.Provider == nil {
		return nil, errors.New("provider required")
	}
	if opts.Uploader == nil {
		return nil, errors.New("uploader required")
	}
	return &Syncer{
		source:   opts.Source,
		store:    opts.Store,
		provider: opts.Provider,
		uploader: opts.Uploader,
		log:      opts.Logger,
	}, nil
}

// Write 本地写入成功即返回，复制在后台进行，调用方永远看不到远端结果。
func (s *Syncer) Write(ctx context.Context, appID uint32, name string, data []byte) error {
	return s.WriteNotify(ctx, appID, name, data, nil)
}

// WriteNotify 与 Write 相同，额外在复制结束时向 notify 投递结果。
// notify 应带缓冲，投递是非阻塞的。
func (s *Syncer) WriteNotify(ctx context.Context, appID uint32, name string, data []byte, notify chan<- UploadResult) error {
	sc, ok := s.scope(appID)
	if !ok {
		return ErrNotManaged
	}

	locator := cache.Locator{AppID: appID, Name: name}
	entry, err := s.store.Write(ctx, locator, data)
	if err != nil {
		s.logFileError("write", locator, err)
		return err
	}

	// 本地已落盘；入队失败只丢复制，不影响本次写入的结果。
	s.uploader.Enqueue(UploadJob{
		ID:      uuid.NewString(),
		Locator: locator,
		Target:  s.target(sc),
		Notify:  notify,
	})

	if s.log != nil {
		fields := logging.FileFields("write", appID, name)
		fields["size"] = entry.SizeBytes
		s.log.WithFields(fields).Debug("本地写入完成，已调度上传")
	}
	return nil
}

// Read 将条目内容拷入 buf。本地未命中时同步下载一次，成功落盘后重读一次；
// 下载失败只记录，最终以未找到返回。
func (s *Syncer) Read(ctx context.Context, appID uint32, name string, buf []byte) (int, error) {
	sc, ok := s.scope(appID)
	if !ok {
		return 0, ErrNotManaged
	}

	locator := cache.Locator{AppID: appID, Name: name}
	n, err := s.store.Read(ctx, locator, buf)
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		s.logFileError("read", locator, err)
		return 0, err
	}

	data, err := s.provider.Download(ctx, s.target(sc), appID, name)
	if err != nil {
		if s.log != nil {
			fields := logging.FileFields("download", appID, name)
			if errors.Is(err, remote.ErrNotFound) {
				s.log.WithFields(fields).Debug("远端亦无此条目")
			} else {
				s.log.WithFields(fields).Warnf("远端下载失败: %v", err)
			}
		}
		return 0, cache.ErrNotFound
	}

	if _, err := s.store.Write(ctx, locator, data); err != nil {
		s.logFileError("download", locator, err)
		return 0, err
	}

	if s.log != nil {
		fields := logging.FileFields("download", appID, name)
		fields["size"] = len(data)
		s.log.WithFields(fields).Info("远端回源完成")
	}
	return s.store.Read(ctx, locator, buf)
}

// Delete 删除本地条目，返回是否真的删除了文件。远端内容不动。
func (s *Syncer) Delete(ctx context.Context, appID uint32, name string) (bool, error) {
	if _, ok := s.scope(appID); !ok {
		return false, ErrNotManaged
	}

	locator := cache.Locator{AppID: appID, Name: name}
	removed, err := s.store.Remove(ctx, locator)
	if err != nil {
		s.logFileError("delete", locator, err)
		return false, err
	}
	return removed, nil
}

// Exists 只做本地存在性检查，从不触发远端回源。
func (s *Syncer) Exists(ctx context.Context, appID uint32, name string) (bool, error) {
	if _, ok := s.scope(appID); !ok {
		return false, ErrNotManaged
	}

	_, err := s.store.Stat(ctx, cache.Locator{AppID: appID, Name: name})
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Size 返回条目字节数。
func (s *Syncer) Size(ctx context.Context, appID uint32, name string) (int64, error) {
	if _, ok := s.scope(appID); !ok {
		return 0, ErrNotManaged
	}

	entry, err := s.store.Stat(ctx, cache.Locator{AppID: appID, Name: name})
	if err != nil {
		return 0, err
	}
	return entry.SizeBytes, nil
}

// Timestamp 返回条目最后一次本地写入的修改时间。
func (s *Syncer) Timestamp(ctx context.Context, appID uint32, name string) (time.Time, error) {
	if _, ok := s.scope(appID); !ok {
		return time.Time{}, ErrNotManaged
	}

	entry, err := s.store.Stat(ctx, cache.Locator{AppID: appID, Name: name})
	if err != nil {
		return time.Time{}, err
	}
	return entry.ModTime, nil
}

// Count 返回应用目录下的条目数。
func (s *Syncer) Count(ctx context.Context, appID uint32) (int, error) {
	if _, ok := s.scope(appID); !ok {
		return 0, ErrNotManaged
	}

	entries, err := s.store.List(ctx, appID)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// EntryAt 返回按文件名升序排列的第 index 个条目。下标只在一次完整的
// 枚举过程内稳定，目录变动后应从 0 重新开始。
func (s *Syncer) EntryAt(ctx context.Context, appID uint32, index int) (cache.Entry, error) {
	if _, ok := s.scope(appID); !ok {
		return cache.Entry{}, ErrNotManaged
	}

	entries, err := s.store.List(ctx, appID)
	if err != nil {
		return cache.Entry{}, err
	}
	if index < 0 || index >= len(entries) {
		return cache.Entry{}, ErrOutOfRange
	}
	return entries[index], nil
}

// List 返回应用目录下全部条目，按文件名升序。
func (s *Syncer) List(ctx context.Context, appID uint32) ([]cache.Entry, error) {
	if _, ok := s.scope(appID); !ok {
		return nil, ErrNotManaged
	}
	return s.store.List(ctx, appID)
}

// SyncAll 是全量对账的扩展点：它需要远端列表能力，当前传输层未建模，
// 调用方不应依赖它补齐从未单独读写过的条目。
func (s *Syncer) SyncAll(ctx context.Context, appID uint32) error {
	return fmt.Errorf("sync all for app %d: %w", appID, ErrNotImplemented)
}

// Ping 校验远端可达性与凭证。只要求配置了端点，不要求 Enabled。
func (s *Syncer) Ping(ctx context.Context) error {
	sc := s.syncConfig()
	if sc.WebDAVUrl == "" {
		return ErrRemoteDisabled
	}

	err := s.provider.Ping(ctx, s.target(sc))
	if s.log != nil {
		fields := logging.RemoteFields("ping", sc.Provider, sc.AuthMode())
		if err != nil {
			fields["error"] = err.Error()
			s.log.WithFields(fields).Warn("远端连通性检查失败")
		} else {
			s.log.WithFields(fields).Info("远端连通性检查通过")
		}
	}
	return err
}

// Push 同步上传一个条目，绕过后台队列，供 CLI 与运维操作使用。
func (s *Syncer) Push(ctx context.Context, appID uint32, name string) error {
	sc, ok := s.scope(appID)
	if !ok {
		return ErrNotManaged
	}

	locator := cache.Locator{AppID: appID, Name: name}
	result, err := s.store.Get(ctx, locator)
	if err != nil {
		return err
	}
	defer result.Reader.Close()

	target := s.target(sc)
	if err := s.provider.EnsureDir(ctx, target, appID); err != nil {
		if s.log != nil {
			s.log.WithFields(logging.FileFields("remote_mkcol", appID, name)).Warnf("远端目录创建失败: %v", err)
		}
	}
	return s.provider.Upload(ctx, target, appID, name, result.Reader, result.Entry.SizeBytes)
}

// Pull 同步下载一个条目并落盘，供 CLI 与运维操作使用。
func (s *Syncer) Pull(ctx context.Context, appID uint32, name string) error {
	sc, ok := s.scope(appID)
	if !ok {
		return ErrNotManaged
	}

	data, err := s.provider.Download(ctx, s.target(sc), appID, name)
	if err != nil {
		return err
	}
	_, err = s.store.Write(ctx, cache.Locator{AppID: appID, Name: name}, data)
	return err
}

// Stats 透出上传队列计数。
func (s *Syncer) Stats() UploaderStats {
	return s.uploader.Stats()
}

// Store 暴露底层存储只读信息（根目录、枚举），供诊断端使用。
func (s *Syncer) Store() cache.Store {
	return s.store
}

// Close 等待队列中的复制任务完成后关闭 worker 池。
func (s *Syncer) Close() {
	s.uploader.Close()
}

func (s *Syncer) syncConfig() config.SyncConfig {
	cfg := s.source.Current()
	if cfg == nil {
		return config.SyncConfig{}
	}
	return cfg.CloudSync
}

// scope 取最新配置并判定 appID 是否受管。
func (s *Syncer) scope(appID uint32) (config.SyncConfig, bool) {
	sc := s.syncConfig()
	return sc, sc.Handles(appID)
}

func (s *Syncer) target(sc config.SyncConfig) remote.Target {
	return remote.Target{
		BaseURL:  sc.WebDAVUrl,
		Username: sc.Username,
		Password: sc.Password,
	}
}

func (s *Syncer) logFileError(action string, locator cache.Locator, err error) {
	if s.log == nil {
		return
	}
	fields := logging.FileFields(action, locator.AppID, locator.Name)
	s.log.WithFields(fields).Errorf("本地操作失败: %v", err)
}
