package storage

import (
	"errors"
	"os"
	"time"
)

// Backend 描述缓存根目录上的文件操作，所有名称均为 NameFor 生成的扁平文件名。
type Backend interface {
	// Root 返回缓存根目录的绝对路径。
	Root() string

	// NameFor 将缓存键映射为确定性的文件名，重启后可复用已下载的文件。
	NameFor(key string) string

	// Path 返回 name 对应的绝对路径，不检查文件是否存在。
	Path(name string) string

	// Stat 返回文件信息；不存在或为目录时返回 ErrNotFound。
	Stat(name string) (Object, error)

	// Exists 判断 name 对应的正文文件是否存在。
	Exists(name string) bool

	// CreateTemp 在根目录内创建临时文件，调用方负责写入后 Commit 或删除。
	CreateTemp() (*os.File, error)

	// Commit 通过 rename 将临时文件原子地放到 name 位置。
	Commit(tempPath, name string) (Object, error)

	// Import 将已有的本地文件纳入缓存，move=true 时优先 rename，否则复制。
	Import(src, name string, move bool) (Object, error)

	// Remove 删除正文文件，文件不存在不视为错误。
	Remove(name string) error

	// Touch 更新文件的访问/修改时间，用于重启后的近期性判断。
	Touch(name string, t time.Time) error

	// List 枚举根目录下的缓存文件，忽略临时文件与子目录。
	List() ([]Object, error)

	// Available 返回根目录所在磁盘的可用字节数，无法获取时返回 -1。
	Available() (int64, error)
}

// Object 描述一个已落盘的缓存文件。
type Object struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`
}

// ErrNotFound 表示缓存文件不存在。
var ErrNotFound = errors.New("cache file not found")

const tempPrefix = ".download-"
