package server

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/amv-media/amvcache/internal/cache"
)

// MediaCache describes the cache operations used by the HTTP front. It allows
// injecting a Manager configured for tests.
type MediaCache interface {
	GetCacheKeyed(uri, key string, listener cache.ProgressFunc) (*cache.Handle, error)
	Peek(uri string) (*cache.Handle, bool, error)
	PeekKey(key string) (*cache.Handle, bool, error)
	Stats() (cache.Stats, error)
	Snapshot() ([]cache.EntryInfo, error)
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger *logrus.Logger
	Cache  MediaCache
	// ResolveTimeout 限制 /media 等待下载的时长，0 表示使用默认值。
	ResolveTimeout time.Duration
	// Metrics 非空时暴露 /-/metrics。
	Metrics prometheus.Gatherer
}

const (
	contextKeyRequestID = "_amvcache_request_id"

	defaultResolveTimeout = 5 * time.Minute
)

// NewApp builds a Fiber application with request-ID middleware, media routes
// and cache diagnostics.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Cache == nil {
		return nil, errors.New("media cache is required")
	}
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = defaultResolveTimeout
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware())

	h := &mediaHandler{
		cache:   opts.Cache,
		logger:  opts.Logger,
		timeout: opts.ResolveTimeout,
	}
	app.Get("/media", h.serve)
	app.Post("/-/prefetch", h.prefetch)
	app.Get("/-/cache", h.diagnostics)
	app.Delete("/-/cache", h.invalidate)
	if opts.Metrics != nil {
		app.Get("/-/metrics", h.refreshGauges, adaptor.HTTPHandler(promhttp.HandlerFor(opts.Metrics, promhttp.HandlerOpts{})))
	}

	return app, nil
}

// requestContextMiddleware 为每个请求生成请求 ID 并写入响应头。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
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
