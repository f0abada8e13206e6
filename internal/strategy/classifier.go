package strategy

import (
	"path"
	"strings"

	"github.com/offline-hub/offline-hub/internal/config"
)

// Classifier 将请求映射到唯一的缓存策略，不做任何 I/O。
type Classifier struct {
	apiPrefix    string
	staticPrefix string
	staticExts   map[string]struct{}
}

// NewClassifier 基于路由配置构造分类器；空字段回落到默认值。
func NewClassifier(cfg config.RoutingConfig) *Classifier {
	c := &Classifier{
		apiPrefix:    cfg.APIPrefix,
		staticPrefix: cfg.StaticPrefix,
		staticExts:   make(map[string]struct{}),
	}
	if c.apiPrefix == "" {
		c.apiPrefix = "/api/"
	}
	if c.staticPrefix == "" {
		c.staticPrefix = "/static/"
	}
	exts := cfg.StaticExtensions
	if len(exts) == 0 {
		exts = config.DefaultStaticExtensions()
	}
	for _, ext := range exts {
		c.staticExts[strings.TrimPrefix(ext, ".")] = struct{}{}
	}
	return c
}

// Classify 按顺序匹配：API 前缀、静态前缀或扩展名、导航请求，最后回落到 network-first。
func (c *Classifier) Classify(req Request) Kind {
	p := requestPath(req)
	if strings.HasPrefix(p, c.apiPrefix) {
		return NetworkFirst
	}
	if strings.HasPrefix(p, c.staticPrefix) || c.isStaticExtension(p) {
		return CacheFirst
	}
	if req.Mode == ModeNavigate {
		return StaleWhileRevalidate
	}
	return NetworkFirst
}

func (c *Classifier) isStaticExtension(p string) bool {
	ext := path.Ext(p)
	if ext == "" {
		return false
	}
	// URL 路径区分大小写，/APP.JS 不是静态资源。
	_, ok := c.staticExts[ext[1:]]
	return ok
}

func requestPath(req Request) string {
	if req.URL == nil {
		return "/"
	}
	if req.URL.Path == "" {
		return "/"
	}
	return req.URL.Path
}

func acceptsHTML(values []string) bool {
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			mediaType := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
			if strings.EqualFold(mediaType, "text/html") {
				return true
			}
		}
	}
	return false
}

func defaultRouting() config.RoutingConfig {
	return config.RoutingConfig{
		APIPrefix:        "/api/",
		StaticPrefix:     "/static/",
		StaticExtensions: config.DefaultStaticExtensions(),
	}
}
