package fetch

import (
	"errors"
	"fmt"
	"syscall"
)

// Kind 区分下载失败的来源，供缓存层与 HTTP 层映射状态码。
type Kind string

const (
	KindNetwork Kind = "network"
	KindStorage Kind = "storage"
)

var (
	// ErrNetwork 覆盖不可达、超时、非 2xx 响应与对象不存在等上游问题。
	ErrNetwork = errors.New("network error")
	// ErrStorage 覆盖写入失败与磁盘空间不足。
	ErrStorage = errors.New("storage error")
	// ErrInsufficientSpace 表示响应体大于根目录剩余空间。
	ErrInsufficientSpace = errors.New("insufficient storage space")
	// ErrUnsupportedScheme 表示没有可处理该 URI 协议的下载源。
	ErrUnsupportedScheme = errors.New("unsupported uri scheme")
)

// Error 记录一次失败的下载，errors.Is 同时匹配 Kind 对应的哨兵错误与底层原因。
type Error struct {
	Kind       Kind
	URI        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %s: upstream status %d", e.URI, e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URI, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	errs := []error{e.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func (e *Error) sentinel() error {
	if e.Kind == KindStorage {
		return ErrStorage
	}
	return ErrNetwork
}

func networkError(uri string, err error) error {
	return &Error{Kind: KindNetwork, URI: uri, Err: err}
}

func statusError(uri string, status int) error {
	return &Error{Kind: KindNetwork, URI: uri, StatusCode: status}
}

func storageError(uri string, err error) error {
	if errors.Is(err, syscall.ENOSPC) {
		err = fmt.Errorf("%w: %w", ErrInsufficientSpace, err)
	}
	return &Error{Kind: KindStorage, URI: uri, Err: err}
}
