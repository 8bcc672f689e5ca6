package cache

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// ErrStoreUnavailable 表示未注入缓存存储实例。
var ErrStoreUnavailable = errors.New("cache store unavailable")

// Decision 描述一次回源响应是否写入缓存，以及写入时附带的元数据。
type Decision struct {
	Store  bool
	Reason string
	Meta   *Meta
}

const (
	ReasonTemporaryRedirect = "temporary_redirect"
	ReasonWithTTL           = "max_age"
	ReasonNoTTL             = "no_max_age"
)

// PolicyWriter 封装缓存写入策略：除 302 外一律缓存，带 max-age 的响应写入 TTL 元数据。
type PolicyWriter struct {
	store Store
	now   Clock
}

// NewPolicyWriter 构造策略写入器，clock 为空时使用 time.Now。
func NewPolicyWriter(store Store, clock Clock) PolicyWriter {
	if clock == nil {
		clock = time.Now
	}
	return PolicyWriter{
		store: store,
		now:   clock,
	}
}

// Enabled 返回当前是否具备缓存写入能力。
func (w PolicyWriter) Enabled() bool {
	return w.store != nil
}

// Decide 根据状态码与 max-age 给出缓存决策，不触碰磁盘。
func (w PolicyWriter) Decide(statusCode int, maxAge *int64) Decision {
	if statusCode == http.StatusFound {
		return Decision{Reason: ReasonTemporaryRedirect}
	}
	if maxAge == nil {
		return Decision{Store: true, Reason: ReasonNoTTL}
	}
	meta := NewMeta(w.now(), *maxAge)
	return Decision{Store: true, Reason: ReasonWithTTL, Meta: &meta}
}

// Write 按决策写入缓存；Decision.Store 为 false 时直接返回。
func (w PolicyWriter) Write(ctx context.Context, key Key, payload []byte, decision Decision) error {
	if !decision.Store {
		return nil
	}
	if w.store == nil {
		return ErrStoreUnavailable
	}
	return w.store.Store(ctx, key, payload, decision.Meta)
}
