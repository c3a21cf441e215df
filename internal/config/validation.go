package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/save-hub/save-hub/internal/remote"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动进程。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.RemoteTimeout.DurationValue() <= 0 {
		return newFieldError("Global.RemoteTimeout", "必须大于 0")
	}
	if g.UploadWorkers <= 0 {
		return newFieldError("Global.UploadWorkers", "必须大于 0")
	}
	if g.UploadQueueSize <= 0 {
		return newFieldError("Global.UploadQueueSize", "必须大于 0")
	}
	if g.DiagnosticsPort < 0 || g.DiagnosticsPort > 65535 {
		return newFieldError("Global.DiagnosticsPort", "必须在 0-65535，0 表示关闭")
	}
	if g.LogMaxSize <= 0 {
		return newFieldError("Global.LogMaxSize", "必须大于 0")
	}
	if g.LogMaxBackups < 0 {
		return newFieldError("Global.LogMaxBackups", "不能为负数")
	}

	s := &c.CloudSync

	if (s.Username == "") != (s.Password == "") {
		return newFieldError(syncField("Username/Password"), "必须同时提供或同时留空")
	}

	normalized := strings.ToLower(strings.TrimSpace(s.Provider))
	if normalized == "" {
		normalized = remote.DefaultProviderKey()
	}
	s.Provider = normalized
	if _, ok := remote.Resolve(normalized); !ok {
		return newFieldError(syncField("Provider"), fmt.Sprintf("未注册 provider: %s（可用: %s）", normalized, strings.Join(remote.Keys(), "|")))
	}

	// 开启同步但 URL 留空是合法配置：作用域解析会视为未启用，
	// 因此仅在 URL 非空时校验格式。
	if s.WebDAVUrl != "" {
		if err := validateEndpoint(s.WebDAVUrl); err != nil {
			return fmt.Errorf("%s: %w", syncField("WebDAVUrl"), err)
		}
	}

	return nil
}

func validateEndpoint(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，端点: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("端点缺少 Host: %s", raw)
	}
	return nil
}
