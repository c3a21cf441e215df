package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// FileFields 提供 app_id/file 字段，供本地缓存与同步日志复用。
func FileFields(action string, appID uint32, name string) logrus.Fields {
	return logrus.Fields{
		"action": action,
		"app_id": appID,
		"file":   name,
	}
}

// RemoteFields 输出 provider/auth_mode 字段，描述一次远端存储操作。
// 凭证永不入日志，鉴权方式仅通过 auth_mode 区分。
func RemoteFields(action, provider, authMode string) logrus.Fields {
	return logrus.Fields{
		"action":    action,
		"provider":  provider,
		"auth_mode": authMode,
	}
}
