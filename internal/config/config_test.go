package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(testConfigPath(t, "valid.toml"))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Global.ListenPort != 5080 {
		t.Fatalf("ListenPort 应当被解析，得到 %d", cfg.Global.ListenPort)
	}
	if !filepath.IsAbs(cfg.Global.StoragePath) {
		t.Fatalf("StoragePath 应转换为绝对路径: %s", cfg.Global.StoragePath)
	}
	if cfg.Global.Capacity != 5 || cfg.Global.MaxWorkers != 2 {
		t.Fatalf("Capacity/MaxWorkers 解析错误: %+v", cfg.Global)
	}
	if cfg.Global.CallbackMode != CallbackAsync {
		t.Fatalf("CallbackMode 应为 async，得到 %s", cfg.Global.CallbackMode)
	}
	if cfg.Global.ConnectTimeout.DurationValue() != 10*time.Second {
		t.Fatalf("ConnectTimeout 解析错误: %s", cfg.Global.ConnectTimeout.DurationValue())
	}
	if cfg.Global.ResolveTimeout.DurationValue() != 2*time.Minute {
		t.Fatalf("纯数字秒值应被识别，得到 %s", cfg.Global.ResolveTimeout.DurationValue())
	}
	if cfg.Global.ResponseHeaderTimeout.DurationValue() != time.Minute {
		t.Fatalf("ResponseHeaderTimeout 应该自动填充默认值")
	}
	if !cfg.S3.Enabled() || cfg.S3.AuthMode() != "credentialed" {
		t.Fatalf("S3 段应被解析: %+v", cfg.S3)
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	if _, err := Load(testConfigPath(t, "missing.toml")); err == nil {
		t.Fatalf("不合法的配置应返回错误")
	}
}

func TestValidateEnforcesListenPortRange(t *testing.T) {
	cfg := validConfig()
	cfg.Global.ListenPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("ListenPort 超出范围应当报错")
	}
}

func TestValidateReportsFieldErrors(t *testing.T) {
	testCases := []struct {
		name  string
		field string
		edit  func(*Config)
	}{
		{"capacity", "Global.Capacity", func(c *Config) { c.Global.Capacity = 0 }},
		{"workers", "Global.MaxWorkers", func(c *Config) { c.Global.MaxWorkers = -1 }},
		{"callback mode", "Global.CallbackMode", func(c *Config) { c.Global.CallbackMode = "ui-thread" }},
		{"log level", "Global.LogLevel", func(c *Config) { c.Global.LogLevel = "loud" }},
		{"rate limit", "Global.RateLimitBytesPerSec", func(c *Config) { c.Global.RateLimitBytesPerSec = -5 }},
		{"s3 keys", "S3.AccessKey/SecretKey", func(c *Config) {
			c.S3 = S3Config{Endpoint: "minio.local:9000", AccessKey: "only-access"}
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.edit(cfg)
			err := cfg.Validate()
			var fieldErr FieldError
			if !errors.As(err, &fieldErr) {
				t.Fatalf("期望 FieldError，得到 %v", err)
			}
			if fieldErr.Field != tc.field {
				t.Fatalf("期望字段 %s，得到 %s", tc.field, fieldErr.Field)
			}
		})
	}
}

func TestValidateRejectsS3EndpointWithScheme(t *testing.T) {
	cfg := validConfig()
	cfg.S3 = S3Config{Endpoint: "https://minio.local:9000"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("带协议头的 Endpoint 应当报错")
	}
}

func TestSourceModes(t *testing.T) {
	cfg := validConfig()
	if got := cfg.SourceModes(); len(got) != 2 {
		t.Fatalf("未配置 S3 时只应有 http/https，得到 %v", got)
	}
	cfg.S3 = S3Config{Endpoint: "minio.local:9000"}
	got := cfg.SourceModes()
	if got[len(got)-1] != "s3:anonymous" {
		t.Fatalf("期望 s3:anonymous，得到 %v", got)
	}
}

func validConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			ListenPort:            5000,
			LogLevel:              "info",
			StoragePath:           "./data",
			Capacity:              3,
			MaxWorkers:            2,
			CallbackMode:          CallbackInline,
			ConnectTimeout:        Duration(30 * time.Second),
			ResponseHeaderTimeout: Duration(60 * time.Second),
			ResolveTimeout:        Duration(time.Minute),
		},
	}
}
