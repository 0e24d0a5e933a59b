package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseCLIFlagsPriority(t *testing.T) {
	t.Setenv("AMV_CACHE_CONFIG", "/tmp/env.toml")

	opts, err := parseCLIFlags([]string{})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/env.toml" {
		t.Fatalf("应优先使用环境变量，得到 %s", opts.configPath)
	}

	opts, err = parseCLIFlags([]string{"--config", "/tmp/flag.toml"})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/flag.toml" {
		t.Fatalf("flag 应高于环境变量，得到 %s", opts.configPath)
	}
}

func TestRunCheckConfigSuccess(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{configPath: configFixture(t, "valid.toml"), checkOnly: true})
	if code != 0 {
		t.Fatalf("期望退出码 0，得到 %d", code)
	}
}

func TestRunCheckConfigFailure(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{configPath: configFixture(t, "missing.toml"), checkOnly: true})
	if code == 0 {
		t.Fatalf("无效配置应返回非零退出码")
	}
}

func TestRunVersionOutput(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{showVersion: true})
	if code != 0 {
		t.Fatalf("version 模式应成功退出，得到 %d", code)
	}
	if !strings.Contains(stdOut.(*bytes.Buffer).String(), "amvcache") {
		t.Fatalf("version 输出应包含 amvcache 标识")
	}
}

func TestParseCLIFlagsFetch(t *testing.T) {
	opts, err := parseCLIFlags([]string{"-fetch", "https://media.example.com/a.mp4"})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.fetchURI != "https://media.example.com/a.mp4" {
		t.Fatalf("fetch 参数未生效，得到 %s", opts.fetchURI)
	}
	if _, err := parseCLIFlags([]string{"-unknown"}); err == nil {
		t.Fatalf("未知参数应报错")
	}
}

func TestRunFetchPrintsLocalPath(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("clip"))
	}))
	t.Cleanup(upstream.Close)

	storage := filepath.Join(t.TempDir(), "storage")
	configPath := writeConfigFile(t, fmt.Sprintf(`
LogLevel = "error"
StoragePath = "%s"
Capacity = 2
`, storage))

	useBufferWriters(t)
	code := run(cliOptions{configPath: configPath, fetchURI: upstream.URL + "/clip.mp4"})
	if code != 0 {
		t.Fatalf("期望退出码 0，得到 %d (stderr=%s)", code, stdErrBuffer().String())
	}
	path := strings.TrimSpace(stdOutBuffer().String())
	lines := strings.Split(path, "\n")
	path = lines[len(lines)-1]
	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取缓存文件失败: %v", err)
	}
	if string(body) != "clip" {
		t.Fatalf("缓存内容不符: %s", string(body))
	}
	if filepath.Dir(path) != storage {
		t.Fatalf("缓存文件应位于 %s，得到 %s", storage, path)
	}
}

func TestRunFetchInvalidURI(t *testing.T) {
	configPath := writeConfigFile(t, fmt.Sprintf(`
LogLevel = "error"
StoragePath = "%s"
`, filepath.Join(t.TempDir(), "storage")))

	useBufferWriters(t)
	if code := run(cliOptions{configPath: configPath, fetchURI: "ftp://media.example.com/a.mp4"}); code != 2 {
		t.Fatalf("无效 URI 应返回 2，得到 %d", code)
	}
}
