package proxy

import "sync/atomic"

// Stats 统计请求结果，诊断端口与退出日志共享同一实例。
type Stats struct {
	requests     atomic.Int64
	hits         atomic.Int64
	misses       atomic.Int64
	originErrors atomic.Int64
	malformed    atomic.Int64
	stored       atomic.Int64
	storeErrors  atomic.Int64
}

// StatsSnapshot 是 Stats 的只读副本。
type StatsSnapshot struct {
	Requests     int64 `json:"requests"`
	Hits         int64 `json:"hits"`
	Misses       int64 `json:"misses"`
	OriginErrors int64 `json:"origin_errors"`
	Malformed    int64 `json:"malformed"`
	Stored       int64 `json:"stored"`
	StoreErrors  int64 `json:"store_errors"`
}

// Snapshot 返回当前计数。各计数分别原子读取，彼此之间不保证一致。
func (s *Stats) Snapshot() StatsSnapshot {
	if s == nil {
		return StatsSnapshot{}
	}
	return StatsSnapshot{
		Requests:     s.requests.Load(),
		Hits:         s.hits.Load(),
		Misses:       s.misses.Load(),
		OriginErrors: s.originErrors.Load(),
		Malformed:    s.malformed.Load(),
		Stored:       s.stored.Load(),
		StoreErrors:  s.storeErrors.Load(),
	}
}
