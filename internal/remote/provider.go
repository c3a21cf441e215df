package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
)

// Target 描述一次远端操作的目的地：基础地址与可选凭证。
// Provider 自身无状态，Target 在每次调用时由最新配置派生。
type Target struct {
	BaseURL  string
	Username string
	Password string
}

// HasCredentials 表示 Target 是否携带完整凭证对。
func (t Target) HasCredentials() bool {
	return t.Username != "" && t.Password != ""
}

// AuthMode 输出 `credentialed` 或 `anonymous`，供日志字段使用。
func (t Target) AuthMode() string {
	if t.HasCredentials() {
		return "credentialed"
	}
	return "anonymous"
}

// Provider 是远端存储后端的最小按文件操作集合。实现必须无状态：
// 同一实例可被任意多个 goroutine 并发使用，所有可变输入都通过参数传入。
type Provider interface {
	// EnsureDir 在远端创建 appID 对应的集合/目录。目录可能已存在，
	// 调用方应将任何错误视为非致命并仅记录日志。
	EnsureDir(ctx context.Context, target Target, appID uint32) error

	// Upload 将 body 全量写入远端条目。成功的唯一定义是没有传输层错误；
	// 调用方不得把结果回传给最初发起写入的调用者。
	Upload(ctx context.Context, target Target, appID uint32, name string, body io.Reader, size int64) error

	// Download 取回远端条目内容。只有 HTTP 200 且正文非空才算命中，
	// 其余情况返回 ErrNotFound 或 *StatusError，由调用方记录后吞掉。
	Download(ctx context.Context, target Target, appID uint32, name string) ([]byte, error)

	// Ping 校验远端可达性与凭证有效性，供 CLI 与诊断使用。
	Ping(ctx context.Context, target Target) error
}

// Metadata 记录一个 provider 的静态信息，供配置校验和诊断端使用。
type Metadata struct {
	Key         string
	Description string
	Protocols   []string
}

// Options 是 provider 工厂的构造参数，由组合根注入共享资源。
type Options struct {
	HTTPClient *http.Client
	Logger     *logrus.Logger
}

// Factory 根据注入的共享资源构造 Provider 实例。
type Factory func(Options) Provider

// ErrNotFound 表示远端不存在该条目（含 200 空正文的退化情况）。
var ErrNotFound = errors.New("remote entry not found")

// ErrUnauthorized 表示远端拒绝了当前凭证。
var ErrUnauthorized = errors.New("remote credentials rejected")

// StatusError 携带远端返回的非预期 HTTP 状态码。
type StatusError struct {
	Op     string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote %s: unexpected status %d", e.Op, e.Status)
}
