package cache

import (
	"context"
	"errors"
	"io"
	"time"
)

// Store 负责管理本地存档缓存的读写。磁盘布局遵循：
//
//	<BaseDir>/<AppID>/<Name>    # 实际存档内容
//
// 每个条目仅由内容文件组成，文件的 ModTime/Size 由文件系统提供。
// 所有方法共享一把进程级互斥锁，锁内只做本地磁盘操作。
type Store interface {
	// Write 将内容原子地写入条目（临时文件 + rename），失败时清理临时文件。
	Write(ctx context.Context, locator Locator, data []byte) (*Entry, error)

	// Read 将条目内容拷入 buf 并返回实际拷贝的字节数。内容长于 buf 时
	// 只拷贝前 len(buf) 字节，截断不视为错误。条目不存在返回 ErrNotFound。
	Read(ctx context.Context, locator Locator, buf []byte) (int, error)

	// Remove 删除条目文件。文件本就不存在时返回 removed=false 且无错误。
	Remove(ctx context.Context, locator Locator) (removed bool, err error)

	// Stat 返回条目的大小与修改时间。不存在返回 ErrNotFound。
	Stat(ctx context.Context, locator Locator) (*Entry, error)

	// List 返回 appID 目录下全部普通文件条目，按文件名字节序升序排列。
	// 目录不存在视为空集而非错误。
	List(ctx context.Context, appID uint32) ([]Entry, error)

	// Get 返回可流式读取的条目内容。句柄在锁外读取也安全：写入走
	// rename，已打开的句柄仍指向旧 inode 的完整快照。
	Get(ctx context.Context, locator Locator) (*ReadResult, error)

	// Apps 返回缓存根目录下存在条目目录的全部 appID，升序排列。
	Apps(ctx context.Context) ([]uint32, error)

	// BaseDir 返回缓存根目录的绝对路径。
	BaseDir() string
}

// Locator 唯一定位一个存档条目（应用 + 文件名）。Name 必须是单段文件名，
// 不含路径分隔符。
type Locator struct {
	AppID uint32
	Name  string
}

// Entry 表示一个存档条目的元信息，包含绝对文件路径及文件信息。
type Entry struct {
	Locator   Locator `json:"locator"`
	FilePath  string  `json:"file_path"`
	SizeBytes int64   `json:"size_bytes"`
	ModTime   time.Time
}

// ReadResult 组合 Entry 与内容 Reader，便于上传器直接流式读取。
type ReadResult struct {
	Entry  Entry
	Reader io.ReadSeekCloser
}

// ErrNotFound 表示条目不存在。
var ErrNotFound = errors.New("cache entry not found")

// ErrInvalidName 表示条目文件名不合法（空、多段路径或遍历序列）。
var ErrInvalidName = errors.New("invalid entry name")
