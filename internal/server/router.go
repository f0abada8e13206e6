package server

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ProxyHandler describes the component that answers intercepted requests.
// It allows injecting fake handlers during tests.
type ProxyHandler interface {
	Handle(fiber.Ctx) error
}

// ProxyHandlerFunc adapts a function to the ProxyHandler interface.
type ProxyHandlerFunc func(fiber.Ctx) error

// Handle makes ProxyHandlerFunc satisfy ProxyHandler.
func (f ProxyHandlerFunc) Handle(c fiber.Ctx) error {
	return f(c)
}

// ReadinessGate reports whether the worker has claimed traffic.
type ReadinessGate interface {
	Ready() bool
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger *logrus.Logger
	Gate   ReadinessGate
	Proxy  ProxyHandler
}

const contextKeyRequestID = "_offlinehub_request_id"

// NewApp builds a Fiber application with request-ID and readiness middleware.
// Paths under /-/ skip the proxy so diagnostics routes can be registered later.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Gate == nil {
		return nil, errors.New("readiness gate is required")
	}
	if opts.Proxy == nil {
		return nil, errors.New("proxy handler is required")
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts))

	app.All("/*", func(c fiber.Ctx) error {
		if isDiagnosticsPath(string(c.Request().URI().Path())) {
			return c.Next()
		}
		return opts.Proxy.Handle(c)
	})

	return app, nil
}

// requestContextMiddleware 生成请求 ID，并在 worker 激活前拒绝拦截请求。
func requestContextMiddleware(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		if isDiagnosticsPath(string(c.Request().URI().Path())) {
			return c.Next()
		}
		if !opts.Gate.Ready() {
			return renderNotActive(c, opts.Logger, reqID)
		}
		return c.Next()
	}
}

func renderNotActive(c fiber.Ctx, logger *logrus.Logger, requestID string) error {
	logger.WithFields(logrus.Fields{
		"action":     "gate",
		"path":       string(c.Request().URI().Path()),
		"request_id": requestID,
	}).Warn("worker not active")

	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": "worker_not_active",
	})
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
