package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/amv-media/amvcache/internal/cache"
	"github.com/amv-media/amvcache/internal/config"
	"github.com/amv-media/amvcache/internal/fetch"
	"github.com/amv-media/amvcache/internal/logging"
	"github.com/amv-media/amvcache/internal/metrics"
	"github.com/amv-media/amvcache/internal/server"
	"github.com/amv-media/amvcache/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
	fetchURI    string
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["capacity"] = cfg.Global.Capacity
		fields["sources"] = cfg.SourceModes()
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序为“配置 → 下载器 → 缓存 Manager → Fiber server”，
	// 所有请求共享同一个 Manager 与下载 worker 池。
	downloader, err := newDownloader(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化下载器失败: %v\n", err)
		return 1
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	manager := cache.New(cache.Options{
		Downloader:   downloader,
		Logger:       logger,
		MaxWorkers:   cfg.Global.MaxWorkers,
		CallbackMode: cache.CallbackMode(cfg.Global.CallbackMode),
		Metrics:      metrics.NewMetrics(reg),
	})
	if err := manager.Initialize(cfg.Global.StoragePath, cfg.Global.Capacity); err != nil {
		fmt.Fprintf(stdErr, "初始化缓存目录失败: %v\n", err)
		return 1
	}
	defer manager.Close()

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["storage_path"] = cfg.Global.StoragePath
	fields["capacity"] = cfg.Global.Capacity
	fields["sources"] = cfg.SourceModes()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if opts.fetchURI != "" {
		return fetchOnce(manager, opts.fetchURI, cfg.Global.ResolveTimeout.DurationValue())
	}

	if err := startHTTPServer(cfg, manager, reg, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("amvcache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
		fetchURI   string
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 AMV_CACHE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")
	fs.StringVar(&fetchURI, "fetch", "", "解析单个 URI 到本地文件并输出路径后退出")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("AMV_CACHE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
		fetchURI:    fetchURI,
	}, nil
}

func newDownloader(cfg *config.Config, logger *logrus.Logger) (*fetch.Downloader, error) {
	opts := fetch.Options{
		HTTPClient: fetch.NewHTTPClient(fetch.ClientOptions{
			ConnectTimeout:        cfg.Global.ConnectTimeout.DurationValue(),
			ResponseHeaderTimeout: cfg.Global.ResponseHeaderTimeout.DurationValue(),
			Timeout:               cfg.Global.DownloadTimeout.DurationValue(),
		}),
		RateLimitBytesPerSec: cfg.Global.RateLimitBytesPerSec,
		Logger:               logger,
	}
	if cfg.S3.Enabled() {
		client, err := fetch.NewS3Client(fetch.S3Options{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Region:    cfg.S3.Region,
			Secure:    cfg.S3.Secure,
		})
		if err != nil {
			return nil, err
		}
		opts.S3 = client
	}
	return fetch.New(opts), nil
}

// fetchOnce 解析单个 URI，成功时把本地路径写到 stdout。
func fetchOnce(manager *cache.Manager, uri string, timeout time.Duration) int {
	handle, err := manager.GetCache(uri, nil)
	if err != nil {
		fmt.Fprintf(stdErr, "无效的 URI: %v\n", err)
		return 2
	}

	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	path, err := handle.File(ctx)
	if err != nil {
		fmt.Fprintf(stdErr, "下载失败: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdOut, path)
	return 0
}

func startHTTPServer(cfg *config.Config, manager *cache.Manager, reg *prometheus.Registry, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:         logger,
		Cache:          manager,
		ResolveTimeout: cfg.Global.ResolveTimeout.DurationValue(),
		Metrics:        reg,
	})
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
