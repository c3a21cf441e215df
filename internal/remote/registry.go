package remote

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

const defaultProviderKey = "webdav"

var globalRegistry = newRegistry()

// Registration 将 provider 的静态元数据与工厂函数绑定在一起。
type Registration struct {
	Metadata Metadata
	Factory  Factory
}

type registry struct {
	mu        sync.RWMutex
	providers map[string]Registration
}

func newRegistry() *registry {
	return &registry{providers: make(map[string]Registration)}
}

// Register 将 provider 加入全局注册表，重复键会返回错误。
func Register(reg Registration) error {
	return globalRegistry.register(reg)
}

// MustRegister 在注册失败时 panic，适合 provider 包的 init() 中调用。
func MustRegister(reg Registration) {
	if err := Register(reg); err != nil {
		panic(err)
	}
}

// Resolve 返回指定键的注册信息。
func Resolve(key string) (Registration, bool) {
	return globalRegistry.resolve(key)
}

// New 构造指定键的 Provider 实例，未注册的键返回错误。
func New(key string, opts Options) (Provider, error) {
	reg, ok := Resolve(key)
	if !ok {
		return nil, fmt.Errorf("provider %s is not registered", key)
	}
	return reg.Factory(opts), nil
}

// List 返回按键排序的 provider 元数据列表。
func List() []Metadata {
	return globalRegistry.list()
}

// Keys 返回所有已注册 provider 的键值，供配置校验和诊断使用。
func Keys() []string {
	items := List()
	result := make([]string, len(items))
	for i, meta := range items {
		result[i] = meta.Key
	}
	return result
}

// DefaultProviderKey 返回内置 webdav provider 的键值。
func DefaultProviderKey() string {
	return defaultProviderKey
}

func (r *registry) normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func (r *registry) register(reg Registration) error {
	if reg.Metadata.Key == "" {
		return fmt.Errorf("provider key is required")
	}
	key := r.normalizeKey(reg.Metadata.Key)
	if key == "" {
		return fmt.Errorf("provider key is required")
	}
	if reg.Factory == nil {
		return fmt.Errorf("provider %s has no factory", key)
	}
	reg.Metadata.Key = key

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[key]; exists {
		return fmt.Errorf("provider %s already registered", key)
	}
	r.providers[key] = reg
	return nil
}

func (r *registry) resolve(key string) (Registration, bool) {
	if key == "" {
		return Registration{}, false
	}
	normalized := r.normalizeKey(key)

	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.providers[normalized]
	return reg, ok
}

func (r *registry) list() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.providers) == 0 {
		return nil
	}

	keys := make([]string, 0, len(r.providers))
	for key := range r.providers {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := make([]Metadata, 0, len(keys))
	for _, key := range keys {
		result = append(result, r.providers[key].Metadata)
	}
	return result
}
