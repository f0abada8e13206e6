package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供策略/来源/命中状态字段，供代理请求日志复用。
func RequestFields(requestID, method, identity, strategy, source string, cacheHit bool) logrus.Fields {
	fields := logrus.Fields{
		"action":    "proxy",
		"method":    method,
		"identity":  identity,
		"strategy":  strategy,
		"source":    source,
		"cache_hit": cacheHit,
	}
	if requestID != "" {
		fields["request_id"] = requestID
	}
	return fields
}

// StoreFields 描述一次存储操作，StorageFailure 日志统一使用。
func StoreFields(action, store, identity string) logrus.Fields {
	return logrus.Fields{
		"action":   action,
		"store":    store,
		"identity": identity,
	}
}
