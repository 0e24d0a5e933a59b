package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// EntryFields 提供缓存条目的 key/uri/state 字段，供 cache 与 fetch 日志复用。
func EntryFields(key, uri, state string) logrus.Fields {
	return logrus.Fields{
		"cache_key": key,
		"uri":       uri,
		"state":     state,
	}
}

// RequestFields 提供请求 ID 与命中状态字段，供 HTTP 访问日志复用。
func RequestFields(requestID, uri string, cacheHit bool) logrus.Fields {
	fields := logrus.Fields{
		"uri":       uri,
		"cache_hit": cacheHit,
	}
	if requestID != "" {
		fields["request_id"] = requestID
	}
	return fields
}
