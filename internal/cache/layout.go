package cache

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// DefaultBaseDir 按 XDG Base Directory 约定推导缓存根目录：
// 优先 $XDG_DATA_HOME/save-hub/cloudsync，其次 $HOME/.local/share/save-hub/cloudsync，
// 两者均未设置时返回错误，由调用方决定降级策略。
func DefaultBaseDir() (string, error) {
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, "save-hub", "cloudsync"), nil
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".local", "share", "save-hub", "cloudsync"), nil
	}
	return "", errors.New("neither XDG_DATA_HOME nor HOME is set")
}

// tempPrefix 是原子写入期间临时文件的保留前缀，条目名不得占用，
// 否则崩溃残留的临时文件会与真实条目混淆。
const tempPrefix = ".save-"

// CleanName 校验条目文件名：必须是不含路径分隔符与 NUL 的单段名称，
// 不得为 "." 或 ".."，也不得以保留的临时文件前缀开头。
// 合法时原样返回，否则返回 ErrInvalidName。
func CleanName(name string) (string, error) {
	if name == "" {
		return "", ErrInvalidName
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return "", ErrInvalidName
	}
	if name == "." || name == ".." {
		return "", ErrInvalidName
	}
	if strings.HasPrefix(name, tempPrefix) {
		return "", ErrInvalidName
	}
	return name, nil
}
