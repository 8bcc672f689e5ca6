package proxy

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/proxycache/internal/cache"
	"github.com/any-hub/proxycache/internal/classify"
	"github.com/any-hub/proxycache/internal/logging"
	"github.com/any-hub/proxycache/internal/origin"
	"github.com/any-hub/proxycache/internal/uri"
)

// Fetcher 抽象回源操作，测试中可替换为桩实现。
type Fetcher interface {
	Fetch(ctx context.Context, req uri.ParsedRequest) (*origin.Response, error)
}

// Handler 负责 orchestrate “解析请求 → 查缓存 → 回源 → 判定缓存策略 → 回写客户端并落盘” 的全流程。
// 同一时刻只处理一个请求，调用方负责串行化。
type Handler struct {
	fetcher Fetcher
	logger  *logrus.Logger
	store   cache.Store
	writer  cache.PolicyWriter
	stats   *Stats
}

// NewHandler constructs a proxy handler with shared fetcher/logger/store.
func NewHandler(fetcher Fetcher, logger *logrus.Logger, store cache.Store) *Handler {
	return NewHandlerWithClock(fetcher, logger, store, time.Now)
}

// NewHandlerWithClock 与 NewHandler 相同，但允许注入写入元数据时使用的时钟。
func NewHandlerWithClock(fetcher Fetcher, logger *logrus.Logger, store cache.Store, clock cache.Clock) *Handler {
	if logger == nil {
		logger = logging.NewDiscard()
	}
	return &Handler{
		fetcher: fetcher,
		logger:  logger,
		store:   store,
		writer:  cache.NewPolicyWriter(store, clock),
		stats:   &Stats{},
	}
}

// Stats 返回处理器累计的请求计数。
func (h *Handler) Stats() *Stats {
	return h.stats
}

// Handle 实现 server.ProxyHandler，仅返回请求级错误。
func (h *Handler) Handle(ctx context.Context, raw []byte, w io.Writer) error {
	return h.Serve(ctx, raw, w).Err
}

// Serve 处理一次客户端请求并把响应字节写入 w。任何阶段出错都会输出结构化日志；
// 回源失败时不向客户端写任何内容。
func (h *Handler) Serve(ctx context.Context, raw []byte, w io.Writer) Outcome {
	started := time.Now()
	out := Outcome{
		RequestID: uuid.NewString(),
		State:     StateParseRequest,
	}
	h.stats.requests.Add(1)

	req, err := uri.ParseRequest(raw)
	if err != nil {
		h.stats.malformed.Add(1)
		out.Err = err
		h.logResult(&out, started)
		return out
	}
	out.Request = req

	out.State = StateCheckCache
	out.Key = h.store.KeyFor(req.Hostname, req.ResourcePath)
	result, err := h.store.Lookup(ctx, out.Key)
	if err != nil {
		h.logger.WithError(err).
			WithFields(h.requestFields(&out)).
			Warn("cache_lookup_failed")
		result = cache.Miss(out.Key, cache.MissUnreadable)
	}

	if result.Hit {
		h.serveCache(&out, result.Entry, w)
	} else {
		out.MissReason = result.Reason
		h.fetchAndRelay(ctx, &out, w)
	}
	h.logResult(&out, started)
	return out
}

func (h *Handler) serveCache(out *Outcome, entry cache.Entry, w io.Writer) {
	h.stats.hits.Add(1)
	out.State = StateCacheHit
	out.CacheHit = true

	n, err := w.Write(entry.Payload)
	out.BytesWritten = n
	if err != nil {
		out.Err = err
		return
	}
	out.State = StateDone
}

func (h *Handler) fetchAndRelay(ctx context.Context, out *Outcome, w io.Writer) {
	h.stats.misses.Add(1)
	out.State = StateFetchOrigin

	h.logger.WithFields(h.requestFields(out)).
		WithField("origin_request", string(origin.BuildRequest(out.Request))).
		Debug("origin_request")

	resp, err := h.fetcher.Fetch(ctx, out.Request)
	if err != nil {
		h.stats.originErrors.Add(1)
		out.Err = err
		return
	}

	out.State = StateClassify
	classification := classify.Classify(resp.Raw)
	out.StatusCode = classification.StatusCode
	out.Location = classification.Location

	out.State = StateDecideCaching
	out.Decision = h.writer.Decide(classification.StatusCode, classification.MaxAge)

	out.State = StateRelayAndStore
	n, relayErr := w.Write(resp.Raw)
	out.BytesWritten = n

	// 落盘与客户端回写相互独立：客户端断开不影响写缓存，写缓存失败也不影响已发送的字节。
	if out.Decision.Store && h.writer.Enabled() {
		if err := h.writer.Write(ctx, out.Key, resp.Raw, out.Decision); err != nil {
			h.stats.storeErrors.Add(1)
			h.logger.WithError(err).
				WithFields(h.requestFields(out)).
				Warn("cache_write_failed")
		} else {
			h.stats.stored.Add(1)
			out.Stored = true
		}
	}

	if relayErr != nil {
		out.Err = relayErr
		return
	}
	out.State = StateDone
}

func (h *Handler) requestFields(out *Outcome) logrus.Fields {
	fields := logging.RequestFields(
		out.RequestID,
		out.Request.Method,
		out.Request.Hostname,
		out.Request.ResourcePath,
		out.CacheHit,
	)
	if out.Key.Path != "" {
		fields["cache_key"] = out.Key.Path
	}
	return fields
}

func (h *Handler) logResult(out *Outcome, started time.Time) {
	fields := h.requestFields(out)
	fields["action"] = "proxy"
	fields["state"] = string(out.State)
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	fields["bytes_written"] = out.BytesWritten
	if out.MissReason != "" {
		fields["miss_reason"] = string(out.MissReason)
	}
	if out.StatusCode != 0 {
		fields["upstream_status"] = out.StatusCode
		fields["cache_decision"] = out.Decision.Reason
		fields["cache_stored"] = out.Stored
	}
	if out.Location != "" {
		fields["redirect_location"] = out.Location
	}
	if out.Decision.Meta != nil {
		fields["max_age"] = out.Decision.Meta.MaxAge
	}

	if out.Err != nil {
		fields["error"] = out.Err.Error()
		switch {
		case errors.Is(out.Err, uri.ErrMalformedRequest):
			h.logger.WithFields(fields).Warn("request_malformed")
		case out.State == StateFetchOrigin:
			h.logger.WithFields(fields).Error("origin_failed")
		default:
			h.logger.WithFields(fields).Error("proxy_failed")
		}
		return
	}
	h.logger.WithFields(fields).Info("proxy_complete")
}
