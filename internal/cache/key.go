package cache

import (
	"fmt"
	"net/url"
	"strings"
)

// Key 是规范化后的 URI，作为条目的唯一标识。
type Key string

func (k Key) String() string {
	return string(k)
}

// NormalizeKey 校验并规范化 URI：协议仅限 http/https/s3，协议与主机小写，去掉 fragment。
func NormalizeKey(raw string) (Key, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty uri", ErrInvalidKey)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case "http", "https", "s3":
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidKey, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host in %q", ErrInvalidKey, raw)
	}
	if scheme == "s3" && strings.Trim(u.Path, "/") == "" {
		return "", fmt.Errorf("%w: missing object in %q", ErrInvalidKey, raw)
	}

	u.Scheme = scheme
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return Key(u.String()), nil
}

// resolveKey 返回条目使用的键：explicit 非空时直接作为键（例如签名 URL 的稳定标识），
// 否则由 uri 规范化得到。uri 总是需要通过校验，因为下载使用它。
func resolveKey(uri, explicit string) (Key, string, error) {
	normalized, err := NormalizeKey(uri)
	if err != nil {
		return "", "", err
	}
	if explicit == "" {
		return normalized, string(normalized), nil
	}
	key, err := ExplicitKey(explicit)
	if err != nil {
		return "", "", err
	}
	return key, string(normalized), nil
}

// ExplicitKey 校验调用方指定的键：去掉首尾空白后不能为空。
func ExplicitKey(raw string) (Key, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	return Key(raw), nil
}
