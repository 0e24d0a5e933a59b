package cache

import (
	"errors"

	"github.com/amv-media/amvcache/internal/fetch"
)

var (
	// ErrNotInitialized 表示在 Initialize 之前调用了缓存操作。
	ErrNotInitialized = errors.New("cache manager not initialized")
	// ErrAlreadyInitialized 表示以不同参数重复初始化。
	ErrAlreadyInitialized = errors.New("cache manager already initialized with different settings")
	// ErrInvalidCapacity 表示容量不是正整数。
	ErrInvalidCapacity = errors.New("cache capacity must be positive")
	// ErrInvalidKey 表示 URI 无法规范化为缓存键。
	ErrInvalidKey = errors.New("invalid cache key")
	// ErrClosed 表示 Manager 已关闭。
	ErrClosed = errors.New("cache manager closed")
	// ErrInvalidated 表示句柄对应的条目已被 Invalidate。
	ErrInvalidated = errors.New("cache entry invalidated")
	// ErrEntryBusy 表示条目正在下载或投递回调，暂不能移除。
	ErrEntryBusy = errors.New("cache entry busy")
	// ErrExists 表示 PutFile 的目标键已存在。
	ErrExists = errors.New("cache entry already exists")
)

// 下载失败的两类错误，与 fetch 包共用哨兵以便 errors.Is 判断。
var (
	ErrNetwork = fetch.ErrNetwork
	ErrStorage = fetch.ErrStorage
)
