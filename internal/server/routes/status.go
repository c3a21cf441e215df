package routes

import (
	"context"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/save-hub/save-hub/internal/cache"
	"github.com/save-hub/save-hub/internal/cloudsync"
	"github.com/save-hub/save-hub/internal/config"
	"github.com/save-hub/save-hub/internal/server"
	"github.com/save-hub/save-hub/internal/version"
)

// RegisterStatusRoutes 暴露 /-/status 诊断接口，供运维查询同步配置、
// 上传队列水位与各应用的本地缓存占用。凭证永不出现在响应里。
func RegisterStatusRoutes(app *fiber.App, logger *logrus.Logger, source config.Source, syncer *cloudsync.Syncer) {
	if app == nil || source == nil || syncer == nil {
		return
	}

	app.Get("/-/status", func(c fiber.Ctx) error {
		ctx := c.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		cacheStats, err := collectCacheStats(ctx, syncer.Store())
		if err != nil {
			if logger != nil {
				logger.WithFields(logrus.Fields{
					"action":     "status",
					"request_id": server.RequestID(c),
					"error":      err.Error(),
				}).Warn("缓存统计失败")
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "cache_stats_failed"})
		}

		cfg := source.Current()
		return c.JSON(statusPayload{
			Version: version.Version,
			Sync:    encodeSyncConfig(cfg.CloudSync),
			Queue:   syncer.Stats(),
			Cache:   cacheStats,
		})
	})
}

type statusPayload struct {
	Version string                  `json:"version"`
	Sync    syncPayload             `json:"sync"`
	Queue   cloudsync.UploaderStats `json:"queue"`
	Cache   cachePayload            `json:"cache"`
}

type syncPayload struct {
	Enabled  bool     `json:"enabled"`
	Provider string   `json:"provider"`
	Endpoint string   `json:"endpoint"`
	AuthMode string   `json:"auth_mode"`
	AppIDs   []uint32 `json:"app_ids,omitempty"`
}

type cachePayload struct {
	BaseDir string            `json:"base_dir"`
	Apps    []appCachePayload `json:"apps"`
}

type appCachePayload struct {
	AppID uint32 `json:"app_id"`
	Files int    `json:"files"`
	Bytes int64  `json:"bytes"`
}

func encodeSyncConfig(sc config.SyncConfig) syncPayload {
	return syncPayload{
		Enabled:  sc.Enabled,
		Provider: sc.Provider,
		Endpoint: sc.WebDAVUrl,
		AuthMode: sc.AuthMode(),
		AppIDs:   append([]uint32(nil), sc.AppIDs...),
	}
}

func collectCacheStats(ctx context.Context, store cache.Store) (cachePayload, error) {
	payload := cachePayload{BaseDir: store.BaseDir()}

	apps, err := store.Apps(ctx)
	if err != nil {
		return payload, err
	}
	for _, appID := range apps {
		entries, err := store.List(ctx, appID)
		if err != nil {
			return payload, err
		}
		item := appCachePayload{AppID: appID, Files: len(entries)}
		for _, entry := range entries {
			item.Bytes += entry.SizeBytes
		}
		payload.Apps = append(payload.Apps, item)
	}
	return payload, nil
}
