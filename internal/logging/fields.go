package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供请求 ID/方法/目标主机/资源路径与命中状态字段，供代理请求日志复用。
func RequestFields(requestID, method, hostname, resourcePath string, cacheHit bool) logrus.Fields {
	fields := logrus.Fields{
		"method":    method,
		"hostname":  hostname,
		"resource":  resourcePath,
		"cache_hit": cacheHit,
	}
	if requestID != "" {
		fields["request_id"] = requestID
	}
	return fields
}

// CacheFields 描述一次缓存读写涉及的条目位置。
func CacheFields(action, key string) logrus.Fields {
	return logrus.Fields{
		"action":    action,
		"cache_key": key,
	}
}
