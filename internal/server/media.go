package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/amv-media/amvcache/internal/cache"
	"github.com/amv-media/amvcache/internal/logging"
)

type mediaHandler struct {
	cache   MediaCache
	logger  *logrus.Logger
	timeout time.Duration
}

// serve 通过缓存解析 uri 并回传本地文件，未命中时等待下载完成。
func (h *mediaHandler) serve(c fiber.Ctx) error {
	started := time.Now()
	requestID := RequestID(c)
	uri := c.Query("uri")

	handle, err := h.cache.GetCacheKeyed(uri, c.Query("key"), nil)
	if err != nil {
		return h.fail(c, uri, requestID, false, started, err)
	}
	c.Set("X-Amv-Cache-Key", handle.Key().String())
	hit := handle.State() == cache.StateReady

	// 固定到文件打开之后，避免交付与 Open 之间被并发完成的下载淘汰。
	if err := handle.AddRef(); err != nil {
		return h.fail(c, uri, requestID, hit, started, err)
	}
	defer handle.Release()

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	localPath, err := handle.File(ctx)
	if err != nil {
		return h.fail(c, uri, requestID, hit, started, err)
	}
	c.Set("X-Amv-Cache-Hit", strconv.FormatBool(hit))

	file, err := os.Open(localPath)
	if err != nil {
		// 文件在交付后被淘汰，按存储错误处理，客户端可直接重试。
		return h.fail(c, uri, requestID, hit, started, fmt.Errorf("%w: %w", cache.ErrStorage, err))
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return h.fail(c, uri, requestID, hit, started, fmt.Errorf("%w: %w", cache.ErrStorage, err))
	}
	if contentType := inferContentType(handle.URI()); contentType != "" {
		c.Set(fiber.HeaderContentType, contentType)
	}
	c.Response().Header.SetContentLength(int(info.Size()))
	c.Status(fiber.StatusOK)

	if c.Method() == http.MethodHead {
		h.logResult(uri, requestID, fiber.StatusOK, hit, started, nil)
		return nil
	}

	_, err = io.Copy(c.Response().BodyWriter(), file)
	h.logResult(uri, requestID, fiber.StatusOK, hit, started, err)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, fmt.Sprintf("read cache failed: %v", err))
	}
	return nil
}

// prefetch 在后台解析 uri，立即返回 202。
func (h *mediaHandler) prefetch(c fiber.Ctx) error {
	started := time.Now()
	requestID := RequestID(c)
	uri := c.Query("uri")

	handle, err := h.cache.GetCacheKeyed(uri, c.Query("key"), nil)
	if err != nil {
		return h.fail(c, uri, requestID, false, started, err)
	}
	state := handle.State()
	handle.GetFile(func(hd *cache.Handle, _ string, err error) {
		fields := logging.RequestFields(requestID, hd.URI(), state == cache.StateReady)
		fields["action"] = "prefetch"
		fields["elapsed_ms"] = time.Since(started).Milliseconds()
		if err != nil {
			h.logger.WithFields(fields).WithError(err).Warn("prefetch_failed")
			return
		}
		h.logger.WithFields(fields).Info("prefetch_complete")
	})

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"key":   handle.Key().String(),
		"state": state.String(),
	})
}

// diagnostics 暴露缓存统计与条目快照，供排障使用。
func (h *mediaHandler) diagnostics(c fiber.Ctx) error {
	stats, err := h.cache.Stats()
	if err != nil {
		status, code := statusFor(err)
		return writeError(c, status, code)
	}
	entries, err := h.cache.Snapshot()
	if err != nil {
		status, code := statusFor(err)
		return writeError(c, status, code)
	}
	return c.JSON(fiber.Map{
		"stats":   stats,
		"entries": entries,
	})
}

// refreshGauges 在抓取指标前重新统计条目状态，统计失败不影响抓取。
func (h *mediaHandler) refreshGauges(c fiber.Ctx) error {
	if _, err := h.cache.Stats(); err != nil {
		h.logger.WithError(err).WithField("action", "metrics").Debug("stats_unavailable")
	}
	return c.Next()
}

// invalidate 移除 uri 对应条目及其文件。
func (h *mediaHandler) invalidate(c fiber.Ctx) error {
	started := time.Now()
	requestID := RequestID(c)
	uri := c.Query("uri")

	var (
		handle *cache.Handle
		ok     bool
		err    error
	)
	if key := c.Query("key"); key != "" {
		handle, ok, err = h.cache.PeekKey(key)
	} else {
		handle, ok, err = h.cache.Peek(uri)
	}
	if err != nil {
		return h.fail(c, uri, requestID, false, started, err)
	}
	if !ok {
		return writeError(c, fiber.StatusNotFound, "entry_not_found")
	}
	if err := handle.Invalidate(); err != nil {
		if errors.Is(err, cache.ErrEntryBusy) {
			return writeError(c, fiber.StatusConflict, "entry_busy")
		}
		return h.fail(c, uri, requestID, false, started, err)
	}

	fields := logging.RequestFields(requestID, uri, false)
	fields["action"] = "invalidate"
	h.logger.WithFields(fields).Info("cache_invalidated")
	return c.JSON(fiber.Map{"invalidated": handle.Key().String()})
}

func (h *mediaHandler) fail(c fiber.Ctx, uri, requestID string, hit bool, started time.Time, err error) error {
	status, code := statusFor(err)
	h.logResult(uri, requestID, status, hit, started, err)
	return writeError(c, status, code)
}

func (h *mediaHandler) logResult(uri, requestID string, status int, hit bool, started time.Time, err error) {
	fields := logging.RequestFields(requestID, uri, hit)
	fields["action"] = "media"
	fields["status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("media_failed")
		return
	}
	h.logger.WithFields(fields).Info("media_complete")
}

// inferContentType 根据 URI 路径扩展名推断类型，缓存文件名本身不带扩展名。
func inferContentType(uri string) string {
	parsed, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	ext := strings.ToLower(path.Ext(parsed.Path))
	switch ext {
	case "":
		return ""
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".m4a":
		return "audio/mp4"
	case ".mp3":
		return "audio/mpeg"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	case ".ts":
		return "video/mp2t"
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	default:
		return mime.TypeByExtension(ext)
	}
}
