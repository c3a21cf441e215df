// Package webdav 实现基于 WebDAV 的远端存储 provider：MKCOL 创建集合、
// PUT 上传、GET 下载，支持可选的 Basic Auth 凭证。
package webdav

import (
	"github.com/save-hub/save-hub/internal/remote"
)

func init() {
	remote.MustRegister(remote.Registration{
		Metadata: remote.Metadata{
			Key:         "webdav",
			Description: "WebDAV remote storage speaking MKCOL/PUT/GET with optional basic auth",
			Protocols: []string{
				"http",
				"https",
			},
		},
		Factory: New,
	})
}
