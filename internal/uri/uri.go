package uri

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedRequest 表示请求行不足 method/target/version 三段。
var ErrMalformedRequest = errors.New("malformed request line")

// ParsedRequest 是一次客户端请求解析后的只读结果。
type ParsedRequest struct {
	Method       string
	RawTarget    string
	Version      string
	Hostname     string
	ResourcePath string
}

var schemePrefixes = []string{"/http://", "/https://", "http://", "https://"}

// Parse 按空白切分请求行，剥离协议前缀与 "/.." 片段后拆出主机名与资源路径。
func Parse(requestLine string) (ParsedRequest, error) {
	parts := strings.Fields(requestLine)
	if len(parts) < 3 {
		return ParsedRequest{}, fmt.Errorf("%w: %q", ErrMalformedRequest, requestLine)
	}

	target := stripScheme(parts[1])
	target = strings.ReplaceAll(target, "/..", "")

	hostname, suffix, found := strings.Cut(target, "/")
	resource := "/"
	if found {
		resource += suffix
	}

	return ParsedRequest{
		Method:       parts[0],
		RawTarget:    parts[1],
		Version:      parts[2],
		Hostname:     hostname,
		ResourcePath: resource,
	}, nil
}

// ParseRequest 从客户端发送的原始字节中取出首行再交给 Parse。
func ParseRequest(raw []byte) (ParsedRequest, error) {
	line := raw
	if idx := bytes.IndexByte(raw, '\n'); idx >= 0 {
		line = raw[:idx]
	}
	return Parse(strings.ToValidUTF8(string(line), "\uFFFD"))
}

// stripScheme 最多移除一次 "/?http(s)://" 前缀，大小写敏感。
func stripScheme(target string) string {
	for _, prefix := range schemePrefixes {
		if strings.HasPrefix(target, prefix) {
			return target[len(prefix):]
		}
	}
	return target
}

// String 以 "METHOD host/path" 形式输出，便于日志定位。
func (r ParsedRequest) String() string {
	return r.Method + " " + r.Hostname + r.ResourcePath
}
