package routes

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/proxycache/internal/cache"
	"github.com/any-hub/proxycache/internal/proxy"
	"github.com/any-hub/proxycache/internal/version"
)

// StatsSource 提供请求计数快照，*proxy.Stats 满足该接口。
type StatsSource interface {
	Snapshot() proxy.StatsSnapshot
}

// RegisterDiagnosticsRoutes 暴露 /-/status 与 /-/cache 诊断接口，供运维查询计数与缓存状态。
func RegisterDiagnosticsRoutes(app *fiber.App, store cache.Store, stats StatsSource) {
	if app == nil || store == nil {
		return
	}

	app.Get("/-/status", func(c fiber.Ctx) error {
		return c.JSON(encodeStatus(store, stats))
	})

	app.Get("/-/cache", func(c fiber.Ctx) error {
		host := strings.TrimSpace(c.Query("host"))
		if host == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "host_required"})
		}
		path := c.Query("path")
		if path == "" {
			path = "/"
		}

		ctx := c.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		key := store.KeyFor(host, path)
		result, err := store.Lookup(ctx, key)
		if err != nil {
			if errors.Is(err, cache.ErrKeyOutsideRoot) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "key_outside_root"})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "cache_lookup_failed"})
		}
		return c.JSON(encodeLookup(key, result))
	})
}

type statusPayload struct {
	Version      string `json:"version"`
	CacheRoot    string `json:"cache_root"`
	Requests     int64  `json:"requests"`
	Hits         int64  `json:"hits"`
	Misses       int64  `json:"misses"`
	OriginErrors int64  `json:"origin_errors"`
	Malformed    int64  `json:"malformed"`
	Stored       int64  `json:"stored"`
	StoreErrors  int64  `json:"store_errors"`
}

type metaPayload struct {
	CachedAt  int64 `json:"cached_at"`
	ExpiresAt int64 `json:"expires_at"`
	MaxAge    int64 `json:"max_age"`
}

type lookupPayload struct {
	Key       string       `json:"key"`
	Hit       bool         `json:"hit"`
	Reason    string       `json:"reason,omitempty"`
	SizeBytes int64        `json:"size_bytes"`
	ModTime   string       `json:"mod_time,omitempty"`
	Meta      *metaPayload `json:"meta,omitempty"`
}

func encodeStatus(store cache.Store, stats StatsSource) statusPayload {
	var snap proxy.StatsSnapshot
	if stats != nil {
		snap = stats.Snapshot()
	}
	return statusPayload{
		Version:      version.Full(),
		CacheRoot:    store.Root(),
		Requests:     snap.Requests,
		Hits:         snap.Hits,
		Misses:       snap.Misses,
		OriginErrors: snap.OriginErrors,
		Malformed:    snap.Malformed,
		Stored:       snap.Stored,
		StoreErrors:  snap.StoreErrors,
	}
}

func encodeLookup(key cache.Key, result cache.LookupResult) lookupPayload {
	payload := lookupPayload{
		Key: key.Path,
		Hit: result.Hit,
	}
	if !result.Hit {
		payload.Reason = string(result.Reason)
		return payload
	}

	entry := result.Entry
	payload.SizeBytes = entry.SizeBytes
	if !entry.ModTime.IsZero() {
		payload.ModTime = entry.ModTime.UTC().Format(time.RFC3339)
	}
	if entry.Meta != nil {
		payload.Meta = &metaPayload{
			CachedAt:  entry.Meta.CachedAt,
			ExpiresAt: entry.Meta.ExpiresAt,
			MaxAge:    entry.Meta.MaxAge,
		}
	}
	return payload
}
