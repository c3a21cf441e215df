package webdav

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/save-hub/save-hub/internal/remote"
)

// remoteNamespace 是远端目录树的固定首段，将本进程写入的内容与
// 服务器上其他数据隔离开。
const remoteNamespace = "save-hub"

// Shared HTTP transport tunings，复用长连接并集中配置超时。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   100,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// NewHTTPClient 返回共享 http.Client，用于全部远端请求。
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: defaultTransport.Clone(),
	}
}

// New 构造 WebDAV provider。未注入 HTTP 客户端时使用默认超时的共享客户端。
func New(opts remote.Options) remote.Provider {
	client := opts.HTTPClient
	if client == nil {
		client = NewHTTPClient(0)
	}
	return &provider{client: client, log: opts.Logger}
}

// provider 无状态：端点与凭证全部来自每次调用传入的 Target。
type provider struct {
	client *http.Client
	log    *logrus.Logger
}

func (p *provider) EnsureDir(ctx context.Context, target remote.Target, appID uint32) error {
	// 集合可能已存在，MKCOL 的状态码不影响后续上传，只有传输层
	// 失败才向上返回。
	for _, collection := range []string{
		p.namespaceURL(target),
		p.collectionURL(target, appID),
	} {
		status, err := p.do(ctx, target, "MKCOL", collection, nil, 0, nil)
		if err != nil {
			return fmt.Errorf("mkcol %s: %w", collection, err)
		}
		if p.log != nil && status != http.StatusCreated {
			p.log.WithFields(logrus.Fields{
				"action": "remote_mkcol",
				"url":    collection,
				"status": status,
			}).Debug("集合已存在或创建未生效")
		}
	}
	return nil
}

func (p *provider) Upload(ctx context.Context, target remote.Target, appID uint32, name string, body io.Reader, size int64) error {
	entry := p.entryURL(target, appID, name)
	status, err := p.do(ctx, target, http.MethodPut, entry, body, size, nil)
	if err != nil {
		return fmt.Errorf("put %s: %w", entry, err)
	}

	switch {
	case status/100 == 2:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return remote.ErrUnauthorized
	default:
		return &remote.StatusError{Op: "upload", Status: status}
	}
}

func (p *provider) Download(ctx context.Context, target remote.Target, appID uint32, name string) ([]byte, error) {
	entry := p.entryURL(target, appID, name)

	req, err := p.newRequest(ctx, target, http.MethodGet, entry, nil, 0, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", entry, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, remote.ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, remote.ErrUnauthorized
	default:
		return nil, &remote.StatusError{Op: "download", Status: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body %s: %w", entry, err)
	}
	// 部分服务器对不存在的条目返回 200 空正文，同样视为未命中。
	if len(data) == 0 {
		return nil, remote.ErrNotFound
	}
	return data, nil
}

func (p *provider) Ping(ctx context.Context, target remote.Target) error {
	namespace := p.namespaceURL(target)
	headers := map[string]string{"Depth": "0"}

	status, err := p.do(ctx, target, "PROPFIND", namespace, nil, 0, headers)
	if err != nil {
		return fmt.Errorf("propfind %s: %w", namespace, err)
	}

	switch {
	case status/100 == 2:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return remote.ErrUnauthorized
	case status == http.StatusNotFound:
		// 命名空间集合尚未创建，补一次 MKCOL 即视为可达。
	default:
		return &remote.StatusError{Op: "ping", Status: status}
	}

	status, err = p.do(ctx, target, "MKCOL", namespace, nil, 0, nil)
	if err != nil {
		return fmt.Errorf("mkcol %s: %w", namespace, err)
	}
	switch {
	case status/100 == 2:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return remote.ErrUnauthorized
	default:
		return &remote.StatusError{Op: "ping", Status: status}
	}
}

// do 发送请求并返回状态码，正文被读空后丢弃，连接得以复用。
func (p *provider) do(ctx context.Context, target remote.Target, method, rawURL string, body io.Reader, size int64, headers map[string]string) (int, error) {
	req, err := p.newRequest(ctx, target, method, rawURL, body, size, headers)
	if err != nil {
		return 0, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (p *provider) newRequest(ctx context.Context, target remote.Target, method, rawURL string, body io.Reader, size int64, headers map[string]string) (*http.Request, error) {
	if body == nil {
		body = http.NoBody
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	if size > 0 {
		req.ContentLength = size
	}
	if target.HasCredentials() {
		req.SetBasicAuth(target.Username, target.Password)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	return req, nil
}

func (p *provider) namespaceURL(target remote.Target) string {
	return normalizeEndpoint(target.BaseURL) + remoteNamespace + "/"
}

func (p *provider) collectionURL(target remote.Target, appID uint32) string {
	return fmt.Sprintf("%s%s/%d/", normalizeEndpoint(target.BaseURL), remoteNamespace, appID)
}

func (p *provider) entryURL(target remote.Target, appID uint32, name string) string {
	return fmt.Sprintf("%s%s/%d/%s", normalizeEndpoint(target.BaseURL), remoteNamespace, appID, url.PathEscape(name))
}

// normalizeEndpoint 将端点收敛为以单个斜杠结尾的形式，容忍配置中
// 缺失或多余的结尾斜杠。
func normalizeEndpoint(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/") + "/"
}
