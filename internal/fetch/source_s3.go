package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Options 描述 S3 兼容源的连接参数，Endpoint 为 host[:port]。
type S3Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Secure    bool
}

// NewS3Client 构造 minio 客户端；未提供凭证时以匿名方式访问公开桶。
func NewS3Client(opts S3Options) (*minio.Client, error) {
	if strings.TrimSpace(opts.Endpoint) == "" {
		return nil, errors.New("s3 endpoint required")
	}
	return minio.New(opts.Endpoint, &minio.Options{
		// 空凭证时 minio 自动退化为匿名签名。
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.Secure,
		Region: opts.Region,
	})
}

// s3Source 处理 s3://bucket/object 形式的 URI。
type s3Source struct {
	client *minio.Client
}

func (s s3Source) open(ctx context.Context, target *url.URL) (io.ReadCloser, int64, error) {
	uri := target.String()
	bucket := target.Host
	object := strings.TrimPrefix(target.Path, "/")
	if bucket == "" || object == "" {
		return nil, 0, networkError(uri, errors.New("s3 uri must be s3://bucket/object"))
	}

	info, err := s.client.StatObject(ctx, bucket, object, minio.StatObjectOptions{})
	if err != nil {
		return nil, 0, s3Error(uri, err)
	}

	obj, err := s.client.GetObject(ctx, bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, s3Error(uri, err)
	}
	return obj, info.Size, nil
}

func s3Error(uri string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode != 0 && resp.StatusCode != http.StatusOK {
		return &Error{Kind: KindNetwork, URI: uri, StatusCode: resp.StatusCode, Err: err}
	}
	return networkError(uri, err)
}
