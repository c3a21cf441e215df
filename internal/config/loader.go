package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/save-hub/save-hub/internal/remote"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

// newViper 构造绑定到配置文件的 viper 实例，供一次性加载与热更新复用。
func newViper(path string) (*viper.Viper, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}
	return v, nil
}

// decode 将 viper 当前内容解析为 Config，并完成默认值填充与语义校验。
func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applySyncDefaults(&cfg.CloudSync)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Global.CachePath != "" {
		abs, err := filepath.Abs(cfg.Global.CachePath)
		if err != nil {
			return nil, fmt.Errorf("无法解析缓存目录: %w", err)
		}
		cfg.Global.CachePath = abs
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("CachePath", "")
	v.SetDefault("RemoteTimeout", "30s")
	v.SetDefault("UploadWorkers", 2)
	v.SetDefault("UploadQueueSize", 64)
	v.SetDefault("DiagnosticsPort", 0)
	v.SetDefault("CloudSync.Enabled", false)
	v.SetDefault("CloudSync.Provider", remote.DefaultProviderKey())
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.RemoteTimeout.DurationValue() == 0 {
		g.RemoteTimeout = Duration(30 * time.Second)
	}
	if g.UploadWorkers == 0 {
		g.UploadWorkers = 2
	}
	if g.UploadQueueSize == 0 {
		g.UploadQueueSize = 64
	}
}

func applySyncDefaults(s *SyncConfig) {
	if trimmed := strings.TrimSpace(s.Provider); trimmed == "" {
		s.Provider = remote.DefaultProviderKey()
	} else {
		s.Provider = strings.ToLower(trimmed)
	}
	s.WebDAVUrl = strings.TrimSpace(s.WebDAVUrl)
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
