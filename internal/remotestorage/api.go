package remotestorage

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/save-hub/save-hub/internal/cache"
	"github.com/save-hub/save-hub/internal/cloudsync"
	"github.com/save-hub/save-hub/internal/logging"
)

// API 把同步编排器适配成远端存储原语的调用习惯：失败一律折叠为
// -1/0/false 哨兵，作用域外与文件缺失对调用方不可区分，真实原因只进日志。
type API struct {
	syncer *cloudsync.Syncer
	log    *logrus.Logger
}

// New constructs the drop-in facade over the given syncer.
func New(syncer *cloudsync.Syncer, log *logrus.Logger) *API {
	return &API{syncer: syncer, log: log}
}

// Disabled 构造一个停用状态的兼容层：任何调用都返回失败哨兵。
// 初始化失败只在这里报告一次，之后的调用不再重复告警。
func Disabled(reason error, log *logrus.Logger) *API {
	if log != nil && reason != nil {
		log.WithFields(logrus.Fields{
			"action": "cloudsync_init",
			"error":  reason.Error(),
		}).Error("缓存目录初始化失败，云存档在本进程内停用")
	}
	return &API{log: log}
}

// Enabled 报告兼容层背后是否挂着可用的编排器。
func (a *API) Enabled() bool {
	return a.syncer != nil
}

// FileWrite 本地写入并调度一次异步上传，失败返回 false。
func (a *API) FileWrite(appID uint32, name string, data []byte) bool {
	if a.syncer == nil {
		return false
	}
	if err := a.syncer.Write(context.Background(), appID, name, data); err != nil {
		a.collapse("file_write", appID, name, err)
		return false
	}
	return true
}

// FileRead 读取至多 len(buf) 字节并返回实际读取数；未命中（含远端回源
// 失败）与作用域外统一返回 -1。
func (a *API) FileRead(appID uint32, name string, buf []byte) int32 {
	if a.syncer == nil {
		return -1
	}
	n, err := a.syncer.Read(context.Background(), appID, name, buf)
	if err != nil {
		a.collapse("file_read", appID, name, err)
		return -1
	}
	return int32(n)
}

// FileDelete 删除本地条目；条目本就不存在或作用域外都返回 false。
func (a *API) FileDelete(appID uint32, name string) bool {
	if a.syncer == nil {
		return false
	}
	removed, err := a.syncer.Delete(context.Background(), appID, name)
	if err != nil {
		a.collapse("file_delete", appID, name, err)
		return false
	}
	return removed
}

// FileExists 只做本地存在性检查，从不触发远端回源。
func (a *API) FileExists(appID uint32, name string) bool {
	if a.syncer == nil {
		return false
	}
	ok, err := a.syncer.Exists(context.Background(), appID, name)
	if err != nil {
		a.collapse("file_exists", appID, name, err)
		return false
	}
	return ok
}

// GetFileSize 返回条目大小（字节），缺失或作用域外返回 -1。
func (a *API) GetFileSize(appID uint32, name string) int32 {
	if a.syncer == nil {
		return -1
	}
	size, err := a.syncer.Size(context.Background(), appID, name)
	if err != nil {
		a.collapse("file_size", appID, name, err)
		return -1
	}
	return int32(size)
}

// GetFileTimestamp 返回最后一次本地写入的 Unix 秒，缺失或作用域外返回 0。
func (a *API) GetFileTimestamp(appID uint32, name string) int64 {
	if a.syncer == nil {
		return 0
	}
	ts, err := a.syncer.Timestamp(context.Background(), appID, name)
	if err != nil {
		a.collapse("file_timestamp", appID, name, err)
		return 0
	}
	return ts.Unix()
}

// GetFileCount 返回该应用当前缓存的条目数，作用域外返回 0。
func (a *API) GetFileCount(appID uint32) int32 {
	if a.syncer == nil {
		return 0
	}
	count, err := a.syncer.Count(context.Background(), appID)
	if err != nil {
		a.collapse("file_count", appID, "", err)
		return 0
	}
	return int32(count)
}

// GetFileNameAndSize 返回按文件名升序第 index 个条目的名字和大小。
// 下标只在一次完整的枚举过程内稳定；越界、缺失或作用域外返回 ("", 0)。
func (a *API) GetFileNameAndSize(appID uint32, index int) (string, int32) {
	if a.syncer == nil {
		return "", 0
	}
	entry, err := a.syncer.EntryAt(context.Background(), appID, index)
	if err != nil {
		a.collapse("file_enumerate", appID, "", err)
		return "", 0
	}
	return entry.Locator.Name, int32(entry.SizeBytes)
}

// collapse 在把失败折叠为哨兵之前记录真实原因。作用域外、未命中与
// 越界属于预期路径，只记 debug；其余是真实故障，记 warn。
func (a *API) collapse(action string, appID uint32, name string, err error) {
	if a.log == nil {
		return
	}
	fields := logging.FileFields(action, appID, name)
	fields["error"] = err.Error()
	entry := a.log.WithFields(fields)
	if errors.Is(err, cloudsync.ErrNotManaged) ||
		errors.Is(err, cloudsync.ErrOutOfRange) ||
		errors.Is(err, cache.ErrNotFound) {
		entry.Debug("按调用约定折叠为失败哨兵")
		return
	}
	entry.Warn("本地存储操作失败")
}
