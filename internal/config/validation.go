package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
		return newFieldError("Global.LogLevel", "无法识别的日志级别")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.Capacity <= 0 {
		return newFieldError("Global.Capacity", "必须大于 0")
	}
	if g.MaxWorkers <= 0 {
		return newFieldError("Global.MaxWorkers", "必须大于 0")
	}
	switch g.CallbackMode {
	case CallbackInline, CallbackAsync:
	default:
		return newFieldError("Global.CallbackMode", "仅支持 inline/async")
	}
	if g.ConnectTimeout.DurationValue() <= 0 {
		return newFieldError("Global.ConnectTimeout", "必须大于 0")
	}
	if g.ResponseHeaderTimeout.DurationValue() <= 0 {
		return newFieldError("Global.ResponseHeaderTimeout", "必须大于 0")
	}
	if g.DownloadTimeout.DurationValue() < 0 {
		return newFieldError("Global.DownloadTimeout", "不能为负数")
	}
	if g.ResolveTimeout.DurationValue() <= 0 {
		return newFieldError("Global.ResolveTimeout", "必须大于 0")
	}
	if g.RateLimitBytesPerSec < 0 {
		return newFieldError("Global.RateLimitBytesPerSec", "不能为负数")
	}

	if c.S3.Enabled() {
		if err := validateEndpoint(c.S3.Endpoint); err != nil {
			return fmt.Errorf("%s: %w", s3Field("Endpoint"), err)
		}
		if (c.S3.AccessKey == "") != (c.S3.SecretKey == "") {
			return newFieldError(s3Field("AccessKey/SecretKey"), "必须同时提供或同时留空")
		}
	}

	return nil
}

// validateEndpoint 要求 host[:port] 形式，minio 客户端不接受协议头。
func validateEndpoint(raw string) error {
	if strings.Contains(raw, "://") {
		return errors.New("Endpoint 不应包含协议头，请使用 Secure 控制 https")
	}
	if strings.Contains(raw, "/") {
		return errors.New("Endpoint 不允许包含路径")
	}
	if _, err := url.Parse("//" + raw); err != nil {
		return err
	}
	return nil
}
