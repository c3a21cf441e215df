package integration

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/save-hub/save-hub/internal/cache"
	"github.com/save-hub/save-hub/internal/cloudsync"
	"github.com/save-hub/save-hub/internal/config"
	"github.com/save-hub/save-hub/internal/remote"
	"github.com/save-hub/save-hub/internal/remote/webdav"
	"github.com/save-hub/save-hub/internal/remotestorage"
)

// syncedConfig 返回一份指向给定端点的启用配置，作用域限定在 appIDs。
// 单 worker 保证上传按入队顺序执行，断言请求序列时不受并发干扰。
func syncedConfig(endpoint string, appIDs ...uint32) *config.Config {
	return &config.Config{
		Global: config.GlobalConfig{
			RemoteTimeout:   config.Duration(2 * time.Second),
			UploadWorkers:   1,
			UploadQueueSize: 16,
		},
		CloudSync: config.SyncConfig{
			Enabled:   true,
			Provider:  "webdav",
			WebDAVUrl: endpoint,
			Username:  "alice",
			Password:  "wonderland",
			AppIDs:    appIDs,
		},
	}
}

// buildSyncStack 按主程序的装配顺序（配置源 → 本地缓存 → provider →
// 上传队列 → 编排器 → 外观）搭一套完整同步栈，测试结束时关闭队列。
func buildSyncStack(t *testing.T, source config.Source) (*remotestorage.API, *cloudsync.Syncer, cache.Store) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store, err := cache.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("store error: %v", err)
	}

	cfg := source.Current()
	provider, err := remote.New(cfg.CloudSync.Provider, remote.Options{
		HTTPClient: webdav.NewHTTPClient(cfg.Global.RemoteTimeout.DurationValue()),
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("provider error: %v", err)
	}

	uploader := cloudsync.NewUploader(cloudsync.UploaderOptions{
		Store:     store,
		Provider:  provider,
		Logger:    logger,
		Workers:   cfg.Global.UploadWorkers,
		QueueSize: cfg.Global.UploadQueueSize,
	})

	syncer, err := cloudsync.New(cloudsync.Options{
		Source:   source,
		Store:    store,
		Provider: provider,
		Uploader: uploader,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("syncer error: %v", err)
	}
	t.Cleanup(syncer.Close)

	return remotestorage.New(syncer, logger), syncer, store
}
