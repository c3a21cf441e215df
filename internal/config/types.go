package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述进程级运行参数：日志、缓存根目录与上传调度。
type GlobalConfig struct {
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	CachePath       string   `mapstructure:"CachePath"`
	RemoteTimeout   Duration `mapstructure:"RemoteTimeout"`
	UploadWorkers   int      `mapstructure:"UploadWorkers"`
	UploadQueueSize int      `mapstructure:"UploadQueueSize"`
	DiagnosticsPort int      `mapstructure:"DiagnosticsPort"`
}

// SyncConfig 决定云同步是否启用、走哪个远端 provider、凭证与受管应用集合。
// AppIDs 为空视为接管全部应用。
type SyncConfig struct {
	Enabled   bool     `mapstructure:"Enabled"`
	Provider  string   `mapstructure:"Provider"`
	WebDAVUrl string   `mapstructure:"WebDAVUrl"`
	Username  string   `mapstructure:"Username"`
	Password  string   `mapstructure:"Password"`
	AppIDs    []uint32 `mapstructure:"AppIDs"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global    GlobalConfig `mapstructure:",squash"`
	CloudSync SyncConfig   `mapstructure:"CloudSync"`
}

// Handles 判定 appID 是否由本子系统接管：要求已启用且配置了远端地址；
// AppIDs 非空时要求成员匹配。纯函数，每次调用前都会被重新求值。
func (s SyncConfig) Handles(appID uint32) bool {
	if !s.Enabled || strings.TrimSpace(s.WebDAVUrl) == "" {
		return false
	}
	if len(s.AppIDs) == 0 {
		return true
	}
	for _, id := range s.AppIDs {
		if id == appID {
			return true
		}
	}
	return false
}

// HasCredentials 表示是否配置了完整的远端凭证对。
func (s SyncConfig) HasCredentials() bool {
	return s.Username != "" && s.Password != ""
}

// AuthMode 输出 `credentialed` 或 `anonymous`，供日志字段使用。
func (s SyncConfig) AuthMode() string {
	if s.HasCredentials() {
		return "credentialed"
	}
	return "anonymous"
}

// Source 以“每次调用读取最新配置”的契约向调用方提供配置快照。
// 子系统自身从不跨操作缓存快照，由实现方决定刷新方式。
type Source interface {
	Current() *Config
}

// Static 将一份固定配置包装成 Source，适合 CLI 单次命令与测试。
type Static struct {
	cfg *Config
}

// NewStatic 构造固定配置源。
func NewStatic(cfg *Config) *Static {
	return &Static{cfg: cfg}
}

// Current 返回构造时的配置。
func (s *Static) Current() *Config {
	return s.cfg
}
