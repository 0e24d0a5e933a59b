package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/amv-media/amvcache/internal/config"
)

func TestConfigureDefaultsToStdout(t *testing.T) {
	logger, err := InitLogger(config.GlobalConfig{LogLevel: "info"})
	if err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	if logger.Out != os.Stdout {
		t.Fatalf("未指定文件时应输出到 stdout")
	}
}

func TestInitLoggerFallbackOnPermissionDenied(t *testing.T) {
	dir := t.TempDir()
	blocked := filepath.Join(dir, "blocked")
	if err := os.Mkdir(blocked, 0o755); err != nil {
		t.Fatalf("创建目录失败: %v", err)
	}
	if err := os.Chmod(blocked, 0o000); err != nil {
		t.Fatalf("设置目录权限失败: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(blocked, 0o755) })

	cfg := config.GlobalConfig{
		LogLevel:    "info",
		LogFilePath: filepath.Join(blocked, "sub", "amvcache.log"),
	}
	logger, err := InitLogger(cfg)
	if err != nil {
		t.Fatalf("初始化不应失败: %v", err)
	}
	if logger.Out != os.Stdout {
		t.Fatalf("fallback 时应退回 stdout")
	}
}

func TestConfigureCreatesRotatingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "amvcache.log")
	cfg := config.GlobalConfig{LogLevel: "debug", LogFilePath: path}
	logger, err := InitLogger(cfg)
	if err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	logger.Info("test")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("预期创建日志文件: %v", err)
	}
}

func TestInitLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := InitLogger(config.GlobalConfig{LogLevel: "chatty"}); err == nil {
		t.Fatalf("未知日志级别应返回错误")
	}
}

func TestRequestFieldsOmitsEmptyRequestID(t *testing.T) {
	fields := RequestFields("", "https://media.example.com/a.mp4", true)
	if _, ok := fields["request_id"]; ok {
		t.Fatalf("空请求 ID 不应写入字段")
	}
	if fields["cache_hit"] != true {
		t.Fatalf("cache_hit 字段缺失")
	}
	fields = RequestFields("req-1", "u", false)
	if fields["request_id"] != "req-1" {
		t.Fatalf("request_id 字段缺失")
	}
}

func TestServiceHookAddsFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "amvcache.log")
	logger, err := InitLogger(config.GlobalConfig{LogLevel: "info", LogFilePath: path})
	if err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	logger.WithFields(EntryFields("k", "u", "ready")).Info("cache_hit")
	if closer, ok := logger.Out.(interface{ Close() error }); ok {
		_ = closer.Close()
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取日志失败: %v", err)
	}
	for _, want := range []string{`"service":"amvcache"`, `"cache_key":"k"`, `"state":"ready"`} {
		if !strings.Contains(string(raw), want) {
			t.Fatalf("日志缺少 %s: %s", want, raw)
		}
	}
}
