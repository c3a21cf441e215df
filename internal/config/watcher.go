package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Watcher 持有最近一次成功加载的配置，并监听配置文件变更热更新。
// 热更新失败时沿用旧配置，只记录告警。
type Watcher struct {
	mu      sync.RWMutex
	current *Config
	v       *viper.Viper
	log     *logrus.Logger
}

// Watch 加载配置文件并开启变更监听，返回实现 Source 的 Watcher。
func Watch(path string, log *logrus.Logger) (*Watcher, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	w := &Watcher{current: cfg, v: v, log: log}
	v.OnConfigChange(func(in fsnotify.Event) {
		w.reload(in.Name)
	})
	v.WatchConfig()
	return w, nil
}

// Current 返回最近一次成功加载的配置。
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *Watcher) reload(file string) {
	cfg, err := decode(w.v)
	if err != nil {
		if w.log != nil {
			w.log.WithFields(logrus.Fields{
				"action": "config_reload",
				"file":   file,
			}).Warnf("配置热更新失败，沿用旧配置: %v", err)
		}
		return
	}

	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()

	if w.log != nil {
		w.log.WithFields(logrus.Fields{
			"action": "config_reload",
			"file":   file,
		}).Info("配置热更新完成")
	}
}
