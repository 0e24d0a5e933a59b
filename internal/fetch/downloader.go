package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/amv-media/amvcache/internal/logging"
	"github.com/amv-media/amvcache/internal/storage"
)

// Request 描述一次下载：源 URI、落盘文件名与目标存储。
type Request struct {
	URI    string
	Name   string
	Target storage.Backend
	// Progress 在每次写入后回调，total 未知时为 -1。
	Progress func(received, total int64)
}

// Result 描述已提交到缓存根目录的文件。
type Result struct {
	Path      string
	SizeBytes int64
}

// Options 构造 Downloader 所需的依赖，HTTPClient 为空时使用默认超时。
type Options struct {
	HTTPClient *http.Client
	// S3 为空时 s3:// 源不可用。
	S3 *minio.Client
	// RateLimitBytesPerSec 为 0 表示不限速。
	RateLimitBytesPerSec int64
	Logger               *logrus.Logger
}

// Downloader 将远端资源下载到缓存根目录，自身不做重试。
type Downloader struct {
	client  *http.Client
	s3      *minio.Client
	limiter *rate.Limiter
	logger  *logrus.Logger
}

// source 打开一个远端资源的正文流，size 未知时为 -1。
type source interface {
	open(ctx context.Context, target *url.URL) (io.ReadCloser, int64, error)
}

// New constructs a Downloader sharing one HTTP client, optional S3 client and throttle.
func New(opts Options) *Downloader {
	client := opts.HTTPClient
	if client == nil {
		client = NewHTTPClient(ClientOptions{})
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	d := &Downloader{
		client: client,
		s3:     opts.S3,
		logger: logger,
	}
	if opts.RateLimitBytesPerSec > 0 {
		burst := int(opts.RateLimitBytesPerSec)
		if burst < copyBufferSize {
			burst = copyBufferSize
		}
		d.limiter = rate.NewLimiter(rate.Limit(opts.RateLimitBytesPerSec), burst)
	}
	return d
}

// Fetch 下载 req.URI 到临时文件并 rename 为 req.Name；失败时清理临时文件并返回 *Error。
func (d *Downloader) Fetch(ctx context.Context, req Request) (Result, error) {
	if req.Target == nil {
		return Result{}, errors.New("fetch target required")
	}
	started := time.Now()

	target, err := url.Parse(req.URI)
	if err != nil {
		return Result{}, networkError(req.URI, err)
	}
	src, err := d.sourceFor(target)
	if err != nil {
		return Result{}, networkError(req.URI, err)
	}

	body, size, err := src.open(ctx, target)
	if err != nil {
		d.logFailure(req, started, err)
		return Result{}, err
	}
	defer body.Close()

	if err := ensureSpace(req.Target, size); err != nil {
		err = storageError(req.URI, err)
		d.logFailure(req, started, err)
		return Result{}, err
	}

	tempFile, err := req.Target.CreateTemp()
	if err != nil {
		err = storageError(req.URI, err)
		d.logFailure(req, started, err)
		return Result{}, err
	}
	tempName := tempFile.Name()

	copied := copyWithProgress(ctx, tempFile, body, size, d.limiter, req.Progress)
	closeErr := tempFile.Close()
	switch {
	case copied.writeErr != nil:
		err = storageError(req.URI, copied.writeErr)
	case copied.readErr != nil:
		err = networkError(req.URI, copied.readErr)
	case closeErr != nil:
		err = storageError(req.URI, closeErr)
	case size >= 0 && copied.written != size:
		err = networkError(req.URI, fmt.Errorf("short body: got %d of %d bytes", copied.written, size))
	}
	if err != nil {
		os.Remove(tempName)
		d.logFailure(req, started, err)
		return Result{}, err
	}

	obj, err := req.Target.Commit(tempName, req.Name)
	if err != nil {
		err = storageError(req.URI, err)
		d.logFailure(req, started, err)
		return Result{}, err
	}

	fields := logging.EntryFields(req.Name, req.URI, "downloaded")
	fields["action"] = "fetch"
	fields["size_bytes"] = obj.SizeBytes
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	d.logger.WithFields(fields).Debug("fetch_complete")

	return Result{Path: obj.Path, SizeBytes: obj.SizeBytes}, nil
}

func (d *Downloader) sourceFor(target *url.URL) (source, error) {
	switch strings.ToLower(target.Scheme) {
	case "http", "https":
		return httpSource{client: d.client}, nil
	case "s3":
		if d.s3 == nil {
			return nil, fmt.Errorf("%w: s3 source not configured", ErrUnsupportedScheme)
		}
		return s3Source{client: d.s3}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, target.Scheme)
	}
}

// ensureSpace 在已知长度时预先检查剩余空间，避免写到一半才失败。
func ensureSpace(target storage.Backend, size int64) error {
	if size <= 0 {
		return nil
	}
	avail, err := target.Available()
	if err != nil || avail < 0 {
		return nil
	}
	if size > avail {
		return fmt.Errorf("%w: need %d bytes, %d available", ErrInsufficientSpace, size, avail)
	}
	return nil
}

func (d *Downloader) logFailure(req Request, started time.Time, err error) {
	fields := logging.EntryFields(req.Name, req.URI, "failed")
	fields["action"] = "fetch"
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	var fe *Error
	if errors.As(err, &fe) {
		fields["error_kind"] = string(fe.Kind)
		if fe.StatusCode != 0 {
			fields["upstream_status"] = fe.StatusCode
		}
	}
	d.logger.WithFields(fields).WithError(err).Warn("fetch_failed")
}
