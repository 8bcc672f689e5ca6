// Package classify inspects raw origin responses. It never fails: bytes are
// decoded permissively, an unparsable status line counts as 200, and missing
// or malformed headers simply leave Location and MaxAge unset.
package classify

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

var maxAgePattern = regexp.MustCompile(`max-age=(\d+)`)

// Classification 汇总缓存策略需要的响应信息。
type Classification struct {
	StatusCode int
	Headers    Header
	// Location 仅在 301/302 时提取，空串表示无重定向目标。
	Location string
	// MaxAge 为 nil 表示响应未声明 max-age。
	MaxAge *int64
}

// IsRedirect 报告状态码是否为 301 或 302。
func (c Classification) IsRedirect() bool {
	return c.StatusCode == http.StatusMovedPermanently || c.StatusCode == http.StatusFound
}

// Classify 解析状态码、重定向地址与 Cache-Control max-age。
func Classify(raw []byte) Classification {
	text := strings.ToValidUTF8(string(raw), "\uFFFD")
	lines := strings.Split(text, "\r\n")

	result := Classification{
		StatusCode: parseStatus(lines[0]),
		Headers:    parseHeader(lines[1:]),
	}

	if result.IsRedirect() {
		if location, ok := result.Headers.Get("Location"); ok {
			result.Location = location
		}
	}
	result.MaxAge = maxAge(result.Headers)
	return result
}

// parseStatus 取状态行按单个空格切分后的第二段，失败时回退 200。
func parseStatus(line string) int {
	parts := strings.Split(line, " ")
	if len(parts) < 2 {
		return http.StatusOK
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return http.StatusOK
	}
	return code
}

// maxAge 返回第一个携带 max-age=<digits> 的 Cache-Control 头中的秒数。
func maxAge(header Header) *int64 {
	for _, value := range header.Values("Cache-Control") {
		match := maxAgePattern.FindStringSubmatch(value)
		if match == nil {
			continue
		}
		seconds, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			continue
		}
		return &seconds
	}
	return nil
}
