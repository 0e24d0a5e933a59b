package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// 回调投递方式。
const (
	CallbackInline = "inline"
	CallbackAsync  = "async"
)

// GlobalConfig 描述缓存服务的运行时行为。
type GlobalConfig struct {
	ListenPort            int      `mapstructure:"ListenPort"`
	LogLevel              string   `mapstructure:"LogLevel"`
	LogFilePath           string   `mapstructure:"LogFilePath"`
	LogMaxSize            int      `mapstructure:"LogMaxSize"`
	LogMaxBackups         int      `mapstructure:"LogMaxBackups"`
	LogCompress           bool     `mapstructure:"LogCompress"`
	StoragePath           string   `mapstructure:"StoragePath"`
	Capacity              int      `mapstructure:"Capacity"`
	MaxWorkers            int      `mapstructure:"MaxWorkers"`
	CallbackMode          string   `mapstructure:"CallbackMode"`
	ConnectTimeout        Duration `mapstructure:"ConnectTimeout"`
	ResponseHeaderTimeout Duration `mapstructure:"ResponseHeaderTimeout"`
	DownloadTimeout       Duration `mapstructure:"DownloadTimeout"`
	ResolveTimeout        Duration `mapstructure:"ResolveTimeout"`
	RateLimitBytesPerSec  int64    `mapstructure:"RateLimitBytesPerSec"`
}

// S3Config 配置 s3:// 源，Endpoint 为空表示不启用。
type S3Config struct {
	Endpoint  string `mapstructure:"Endpoint"`
	AccessKey string `mapstructure:"AccessKey"`
	SecretKey string `mapstructure:"SecretKey"`
	Region    string `mapstructure:"Region"`
	Secure    bool   `mapstructure:"Secure"`
}

// Enabled 表示是否配置了 S3 兼容源。
func (s S3Config) Enabled() bool {
	return strings.TrimSpace(s.Endpoint) != ""
}

// HasCredentials 表示是否提供了完整的访问凭证。
func (s S3Config) HasCredentials() bool {
	return s.AccessKey != "" && s.SecretKey != ""
}

// AuthMode 输出 `credentialed` 或 `anonymous`，供日志字段使用。
func (s S3Config) AuthMode() string {
	if s.HasCredentials() {
		return "credentialed"
	}
	return "anonymous"
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	S3     S3Config     `mapstructure:"S3"`
}

// SourceModes 返回已启用的下载源摘要，例如 http、s3:credentialed。
func (c *Config) SourceModes() []string {
	modes := []string{"http", "https"}
	if c != nil && c.S3.Enabled() {
		modes = append(modes, "s3:"+c.S3.AuthMode())
	}
	return modes
}
