package proxy

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/offline-hub/offline-hub/internal/cache"
	"github.com/offline-hub/offline-hub/internal/logging"
	"github.com/offline-hub/offline-hub/internal/server"
	"github.com/offline-hub/offline-hub/internal/strategy"
)

const (
	headerStrategy = "X-Offline-Hub-Strategy"
	headerSource   = "X-Offline-Hub-Source"
	headerCacheHit = "X-Offline-Hub-Cache-Hit"
	bypassStrategy = "bypass"
)

// Executor 对单个请求运行缓存策略。
type Executor interface {
	Execute(ctx context.Context, req strategy.Request) (strategy.Result, error)
}

// Forwarder 透传不参与缓存的请求。
type Forwarder interface {
	Forward(ctx context.Context, method string, target *url.URL, header http.Header, body []byte) (cache.Payload, error)
}

// Options 描述 Handler 的依赖。
type Options struct {
	Executor  Executor
	Forwarder Forwarder
	Upstream  *url.URL
	Logger    *logrus.Logger
}

// Handler 把每个入站请求变成一次策略执行：GET 走缓存策略，其余方法直接透传上游。
type Handler struct {
	executor  Executor
	forwarder Forwarder
	upstream  *url.URL
	logger    *logrus.Logger
}

// NewHandler constructs a proxy handler bound to a single upstream origin.
func NewHandler(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handler{
		executor:  opts.Executor,
		forwarder: opts.Forwarder,
		upstream:  opts.Upstream,
		logger:    logger,
	}
}

// Handle 实现 server.ProxyHandler。
func (h *Handler) Handle(c fiber.Ctx) error {
	started := time.Now()
	requestID := server.RequestID(c)
	target := h.resolveUpstreamURL(c)
	header := requestHeaders(c)

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if c.Method() != fiber.MethodGet {
		return h.bypass(ctx, c, target, header, requestID, started)
	}

	req := strategy.Request{
		URL:    target,
		Mode:   strategy.ModeFromHeaders(c.Method(), header),
		Header: header,
	}
	result, err := h.executor.Execute(ctx, req)
	if err != nil {
		h.logResult(c, requestID, target, "", "", 0, false, started, err)
		return h.writeError(c, fiber.StatusBadRequest, "invalid_request", requestID)
	}

	c.Set(headerStrategy, result.Kind.String())
	c.Set(headerSource, string(result.Source))
	c.Set(headerCacheHit, strconv.FormatBool(result.CacheHit()))

	if !result.Usable {
		h.logResult(c, requestID, target, result.Kind.String(), string(result.Source), fiber.StatusGatewayTimeout, false, started, nil)
		return h.writeError(c, fiber.StatusGatewayTimeout, "no_usable_response", requestID)
	}

	h.logResult(c, requestID, target, result.Kind.String(), string(result.Source), result.Payload.Status, result.CacheHit(), started, nil)
	return writePayload(c, result.Payload, requestID)
}

func (h *Handler) bypass(ctx context.Context, c fiber.Ctx, target *url.URL, header http.Header, requestID string, started time.Time) error {
	body := append([]byte(nil), c.Body()...)
	payload, err := h.forwarder.Forward(ctx, c.Method(), target, header, body)
	source := string(strategy.SourceNetwork)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"action":     "bypass",
			"method":     c.Method(),
			"upstream":   target.String(),
			"request_id": requestID,
		}).WithError(err).Warn("bypass_failed")
		payload = cache.Offline()
		source = string(strategy.SourceOffline)
	}

	c.Set(headerStrategy, bypassStrategy)
	c.Set(headerSource, source)
	c.Set(headerCacheHit, "false")
	h.logResult(c, requestID, target, bypassStrategy, source, payload.Status, false, started, nil)
	return writePayload(c, payload, requestID)
}

func (h *Handler) resolveUpstreamURL(c fiber.Ctx) *url.URL {
	uri := c.Request().URI()
	clean := string(uri.Path())
	if clean == "" {
		clean = "/"
	}
	target := *h.upstream
	target.Path = strings.TrimRight(h.upstream.Path, "/") + clean
	target.RawPath = ""
	target.RawQuery = string(uri.QueryString())
	target.Fragment = ""
	return &target
}

func requestHeaders(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	// 交给 http.Transport 自行协商压缩，缓存中只保存解码后的正文。
	header.Del("Accept-Encoding")
	return header
}

func writePayload(c fiber.Ctx, payload cache.Payload, requestID string) error {
	for key, values := range payload.Header {
		if server.IsHopByHopHeader(key) || strings.EqualFold(key, "Content-Length") {
			continue
		}
		for _, value := range values {
			c.Response().Header.Add(key, value)
		}
	}
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	return c.Status(payload.Status).Send(payload.Body)
}

func (h *Handler) writeError(c fiber.Ctx, status int, code, requestID string) error {
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *Handler) logResult(
	c fiber.Ctx,
	requestID string,
	target *url.URL,
	strategyKey string,
	source string,
	status int,
	cacheHit bool,
	started time.Time,
	err error,
) {
	fields := logging.RequestFields(requestID, c.Method(), target.String(), strategyKey, source, cacheHit)
	fields["status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("proxy_failed")
		return
	}
	h.logger.WithFields(fields).Info("proxy_complete")
}
