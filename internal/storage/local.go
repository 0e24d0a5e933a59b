package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// NewLocal 以 basePath 为根目录构建磁盘存储，整个缓存实例复用一份。
func NewLocal(basePath string) (*Local, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	return &Local{
		basePath: abs,
		locks:    make(map[string]*entryLock),
		space:    availableBytes,
	}, nil
}

// Local 通过 entryLock 避免同一文件名并发 rename/删除。
type Local struct {
	basePath string

	mu    sync.Mutex
	locks map[string]*entryLock

	space func(path string) (int64, error)
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

var _ Backend = (*Local)(nil)

func (s *Local) Root() string {
	return s.basePath
}

func (s *Local) NameFor(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func (s *Local) Path(name string) string {
	return filepath.Join(s.basePath, name)
}

func (s *Local) Stat(name string) (Object, error) {
	filePath, err := s.path(name)
	if err != nil {
		return Object{}, err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Object{}, ErrNotFound
		}
		return Object{}, err
	}
	if info.IsDir() {
		return Object{}, ErrNotFound
	}

	return Object{
		Name:      name,
		Path:      filePath,
		SizeBytes: info.Size(),
		ModTime:   info.ModTime(),
	}, nil
}

func (s *Local) Exists(name string) bool {
	_, err := s.Stat(name)
	return err == nil
}

func (s *Local) CreateTemp() (*os.File, error) {
	return os.CreateTemp(s.basePath, tempPrefix+"*")
}

func (s *Local) Commit(tempPath, name string) (Object, error) {
	unlock := s.lockEntry(name)
	defer unlock()

	filePath, err := s.path(name)
	if err != nil {
		os.Remove(tempPath)
		return Object{}, err
	}
	if err := os.Rename(tempPath, filePath); err != nil {
		os.Remove(tempPath)
		return Object{}, err
	}
	return s.Stat(name)
}

func (s *Local) Import(src, name string, move bool) (Object, error) {
	if move {
		unlock := s.lockEntry(name)
		filePath, err := s.path(name)
		if err == nil {
			err = os.Rename(src, filePath)
		}
		unlock()
		if err == nil {
			return s.Stat(name)
		}
		// 跨设备等 rename 失败时退回复制，复制成功后再删除源文件。
	}

	in, err := os.Open(src)
	if err != nil {
		return Object{}, err
	}
	defer in.Close()

	tempFile, err := s.CreateTemp()
	if err != nil {
		return Object{}, err
	}
	tempName := tempFile.Name()

	_, err = io.Copy(tempFile, in)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return Object{}, err
	}

	obj, err := s.Commit(tempName, name)
	if err != nil {
		return Object{}, err
	}
	if move {
		in.Close()
		_ = os.Remove(src)
	}
	return obj, nil
}

func (s *Local) Remove(name string) error {
	unlock := s.lockEntry(name)
	defer unlock()

	filePath, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Local) Touch(name string, t time.Time) error {
	filePath, err := s.path(name)
	if err != nil {
		return err
	}
	return os.Chtimes(filePath, t, t)
}

func (s *Local) List() ([]Object, error) {
	dirEntries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, err
	}

	objects := make([]Object, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() || strings.HasPrefix(de.Name(), tempPrefix) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		objects = append(objects, Object{
			Name:      de.Name(),
			Path:      filepath.Join(s.basePath, de.Name()),
			SizeBytes: info.Size(),
			ModTime:   info.ModTime(),
		})
	}
	return objects, nil
}

func (s *Local) Available() (int64, error) {
	return s.space(s.basePath)
}

func (s *Local) lockEntry(name string) func() {
	s.mu.Lock()
	lock := s.locks[name]
	if lock == nil {
		lock = &entryLock{}
		s.locks[name] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, name)
		}
		s.mu.Unlock()
	}
}

func (s *Local) path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid cache file name %q", name)
	}
	return filepath.Join(s.basePath, name), nil
}
