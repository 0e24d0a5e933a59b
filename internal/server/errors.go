package server

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/amv-media/amvcache/internal/cache"
)

// statusFor 将缓存错误映射为 HTTP 状态码与错误码。
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, cache.ErrInvalidKey):
		return fiber.StatusBadRequest, "invalid_uri"
	case errors.Is(err, cache.ErrNotInitialized), errors.Is(err, cache.ErrClosed):
		return fiber.StatusServiceUnavailable, "cache_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout, "resolve_timeout"
	case errors.Is(err, cache.ErrStorage):
		return fiber.StatusInsufficientStorage, "storage_failed"
	case errors.Is(err, cache.ErrNetwork):
		return fiber.StatusBadGateway, "upstream_failed"
	case errors.Is(err, cache.ErrEntryBusy):
		return fiber.StatusConflict, "entry_busy"
	case errors.Is(err, cache.ErrInvalidated):
		return fiber.StatusGone, "entry_invalidated"
	default:
		return fiber.StatusInternalServerError, "internal_error"
	}
}

func writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}
