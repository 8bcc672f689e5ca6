package proxy

import (
	"github.com/any-hub/proxycache/internal/cache"
	"github.com/any-hub/proxycache/internal/uri"
)

// State 是单个请求在编排状态机中的阶段。
type State string

const (
	StateParseRequest  State = "parse_request"
	StateCheckCache    State = "check_cache"
	StateCacheHit      State = "cache_hit"
	StateFetchOrigin   State = "fetch_origin"
	StateClassify      State = "classify"
	StateDecideCaching State = "decide_caching"
	StateRelayAndStore State = "relay_and_store"
	StateDone          State = "done"
)

// Outcome 记录一次请求的最终状态，用于日志、统计与测试断言。
// Err 非空时 State 停留在出错的阶段。
type Outcome struct {
	RequestID    string
	Request      uri.ParsedRequest
	Key          cache.Key
	State        State
	CacheHit     bool
	MissReason   cache.MissReason
	StatusCode   int
	Location     string
	Decision     cache.Decision
	Stored       bool
	BytesWritten int
	Err          error
}
