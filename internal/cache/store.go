package cache

import (
	"context"
	"errors"
	"time"
)

// Store 负责管理磁盘缓存的读写。磁盘布局遵循：
//
//	<StoragePath>/<hostname><resourcePath>        # 原始响应字节
//	<StoragePath>/<hostname><resourcePath>.meta   # 可选 TTL 元数据
//
// resourcePath 以 "/" 结尾时追加固定文件名 default。
type Store interface {
	// KeyFor 根据主机名与资源路径计算缓存键，结果只依赖输入。
	KeyFor(hostname, resourcePath string) Key

	// Lookup 返回命中或未命中（缺失/过期/不可读）。仅在 ctx 取消或键越出根目录时返回 error；
	// 元数据损坏按 fail-open 处理，只记录告警。
	Lookup(ctx context.Context, key Key) (LookupResult, error)

	// Store 原地覆盖写入正文（后写者胜出，不做 rename），meta 非空时同时写 .meta 文件。
	// 元数据写入失败不会使调用失败。
	Store(ctx context.Context, key Key, payload []byte, meta *Meta) error

	// Root 返回缓存根目录的绝对路径。
	Root() string
}

// Clock 返回当前时间，便于测试注入。
type Clock func() time.Time

// Key 唯一定位一个缓存条目。Path 为正文文件的绝对路径。
type Key struct {
	Hostname     string `json:"hostname"`
	ResourcePath string `json:"resource_path"`
	Path         string `json:"path"`
}

// MetaPath 返回与正文相伴的元数据文件路径。
func (k Key) MetaPath() string {
	return k.Path + metaSuffix
}

// MissReason 描述未命中的原因，供日志与诊断输出。
type MissReason string

const (
	MissAbsent     MissReason = "absent"
	MissExpired    MissReason = "expired"
	MissUnreadable MissReason = "unreadable"
)

// Entry 表示一次缓存命中结果。
type Entry struct {
	Key       Key       `json:"key"`
	Payload   []byte    `json:"-"`
	Meta      *Meta     `json:"meta,omitempty"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`
}

// LookupResult 是 Hit/Miss 二选一的查询结果，Hit 为 false 时 Reason 给出原因。
type LookupResult struct {
	Hit    bool
	Reason MissReason
	Entry  Entry
}

// Miss 构造未命中结果。
func Miss(key Key, reason MissReason) LookupResult {
	return LookupResult{Reason: reason, Entry: Entry{Key: key}}
}

// Hit 构造命中结果。
func Hit(entry Entry) LookupResult {
	return LookupResult{Hit: true, Entry: entry}
}

// ErrKeyOutsideRoot 表示缓存键解析后落在缓存根目录之外。
var ErrKeyOutsideRoot = errors.New("cache key resolves outside storage root")
