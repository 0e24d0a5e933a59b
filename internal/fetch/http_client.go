package fetch

import (
	"net"
	"net/http"
	"time"
)

// ClientOptions 控制共享 http.Client 的超时。
type ClientOptions struct {
	// ConnectTimeout 建连超时，默认 30s。
	ConnectTimeout time.Duration
	// ResponseHeaderTimeout 等待响应头的超时，默认 60s。
	ResponseHeaderTimeout time.Duration
	// Timeout 单次下载整体超时，0 表示不限制（大文件下载常见）。
	Timeout time.Duration
}

// Shared HTTP transport tunings，复用长连接并集中配置超时。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   16,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
}

// NewHTTPClient 返回共享 http.Client，用于所有 http/https 源下载。
func NewHTTPClient(opts ClientOptions) *http.Client {
	connect := 30 * time.Second
	if opts.ConnectTimeout > 0 {
		connect = opts.ConnectTimeout
	}
	header := 60 * time.Second
	if opts.ResponseHeaderTimeout > 0 {
		header = opts.ResponseHeaderTimeout
	}

	transport := defaultTransport.Clone()
	transport.ResponseHeaderTimeout = header
	transport.DialContext = (&net.Dialer{
		Timeout:   connect,
		KeepAlive: 30 * time.Second,
	}).DialContext

	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
	}
}
