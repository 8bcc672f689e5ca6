package classify

import "strings"

// Field 是一行响应头，Name 保留原始大小写。
type Field struct {
	Name  string
	Value string
}

// Header 按出现顺序保存响应头，查询时大小写不敏感。
type Header []Field

// Get 返回第一个同名头的值。
func (h Header) Get(name string) (string, bool) {
	for _, field := range h {
		if strings.EqualFold(field.Name, name) {
			return field.Value, true
		}
	}
	return "", false
}

// Values 返回所有同名头的值，保持原始顺序。
func (h Header) Values(name string) []string {
	var values []string
	for _, field := range h {
		if strings.EqualFold(field.Name, name) {
			values = append(values, field.Value)
		}
	}
	return values
}

// parseHeader 解析状态行之后、首个空行之前的头部行；没有冒号的行被跳过。
func parseHeader(lines []string) Header {
	header := make(Header, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		header = append(header, Field{Name: name, Value: strings.TrimSpace(value)})
	}
	return header
}
