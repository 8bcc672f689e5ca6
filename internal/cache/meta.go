package cache

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const metaSuffix = ".meta"

// Meta 是 .meta 文件的内存表示，时间均为 Unix 秒。ExpiresAt == CachedAt + MaxAge。
type Meta struct {
	CachedAt  int64 `json:"cached_at"`
	ExpiresAt int64 `json:"expires_at"`
	MaxAge    int64 `json:"max_age"`
}

// ErrMetaNoExpiry 表示元数据中缺少 expires_at 行。
var ErrMetaNoExpiry = errors.New("meta missing expires_at")

// NewMeta 以 now 为缓存时刻构建元数据。cached_at + max_age 溢出时 expires_at 取 math.MaxInt64，视为永不过期。
func NewMeta(now time.Time, maxAge int64) Meta {
	cachedAt := now.Unix()
	expiresAt := int64(math.MaxInt64)
	if maxAge <= math.MaxInt64-cachedAt {
		expiresAt = cachedAt + maxAge
	}
	return Meta{
		CachedAt:  cachedAt,
		ExpiresAt: expiresAt,
		MaxAge:    maxAge,
	}
}

// Expired 仅在 now 严格晚于 expires_at 时返回 true。
func (m Meta) Expired(now time.Time) bool {
	return now.Unix() > m.ExpiresAt
}

// Encode 输出三行文本：cached_at / expires_at / max_age。
func (m Meta) Encode() []byte {
	return []byte(fmt.Sprintf("cached_at: %d\nexpires_at: %d\nmax_age: %d\n", m.CachedAt, m.ExpiresAt, m.MaxAge))
}

// ParseMeta 解析 .meta 内容。新鲜度只取决于 expires_at：它缺失或非法时返回错误，
// cached_at 与 max_age 非法时保留零值。未知行被忽略。
func ParseMeta(data []byte) (Meta, error) {
	var (
		meta      Meta
		hasExpiry bool
	)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		name, raw, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		var target *int64
		switch strings.TrimSpace(name) {
		case "cached_at":
			target = &meta.CachedAt
		case "expires_at":
			target = &meta.ExpiresAt
			hasExpiry = true
		case "max_age":
			target = &meta.MaxAge
		default:
			continue
		}
		value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			if target == &meta.ExpiresAt {
				return Meta{}, fmt.Errorf("parse expires_at: %w", err)
			}
			continue
		}
		*target = value
	}
	if err := scanner.Err(); err != nil {
		return Meta{}, err
	}
	if !hasExpiry {
		return Meta{}, ErrMetaNoExpiry
	}
	return meta, nil
}
