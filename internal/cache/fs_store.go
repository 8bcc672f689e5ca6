package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/proxycache/internal/logging"
)

// defaultResourceName 为以 "/" 结尾的资源提供具体文件名。
const defaultResourceName = "default"

// NewStore 以 basePath 为根目录构建磁盘缓存，整站复用一份实例。
func NewStore(basePath string, logger *logrus.Logger) (Store, error) {
	return NewStoreWithClock(basePath, logger, time.Now)
}

// NewStoreWithClock 与 NewStore 相同，但允许注入时钟以控制过期判断。
func NewStoreWithClock(basePath string, logger *logrus.Logger, clock Clock) (Store, error) {
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

	if logger == nil {
		logger = logging.NewDiscard()
	}
	if clock == nil {
		clock = time.Now
	}

	return &fileStore{
		basePath: abs,
		logger:   logger,
		now:      clock,
		locks:    make(map[string]*entryLock),
	}, nil
}

// fileStore 通过 entryLock 串行化同一缓存键的写入，读取不加锁。
type fileStore struct {
	basePath string
	logger   *logrus.Logger
	now      Clock

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

func (s *fileStore) Root() string {
	return s.basePath
}

func (s *fileStore) KeyFor(hostname, resourcePath string) Key {
	if !strings.HasPrefix(resourcePath, "/") {
		resourcePath = "/" + resourcePath
	}
	rel := hostname + resourcePath
	if strings.HasSuffix(rel, "/") {
		rel += defaultResourceName
	}
	return Key{
		Hostname:     hostname,
		ResourcePath: resourcePath,
		Path:         s.basePath + string(filepath.Separator) + filepath.FromSlash(rel),
	}
}

func (s *fileStore) Lookup(ctx context.Context, key Key) (LookupResult, error) {
	select {
	case <-ctx.Done():
		return LookupResult{}, ctx.Err()
	default:
	}

	if err := s.checkContained(key); err != nil {
		return LookupResult{}, err
	}

	info, err := os.Stat(key.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Miss(key, MissAbsent), nil
		}
		s.warn("cache_stat_failed", key, err)
		return Miss(key, MissUnreadable), nil
	}
	if info.IsDir() {
		return Miss(key, MissAbsent), nil
	}

	meta := s.readMeta(key)
	if meta != nil && meta.Expired(s.now()) {
		return Miss(key, MissExpired), nil
	}

	payload, err := os.ReadFile(key.Path)
	if err != nil {
		s.warn("cache_read_failed", key, err)
		return Miss(key, MissUnreadable), nil
	}

	return Hit(Entry{
		Key:       key,
		Payload:   payload,
		Meta:      meta,
		SizeBytes: int64(len(payload)),
		ModTime:   info.ModTime(),
	}), nil
}

func (s *fileStore) Store(ctx context.Context, key Key, payload []byte, meta *Meta) error {
	unlock := s.lockEntry(key.Path)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.checkContained(key); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(key.Path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	if err := os.WriteFile(key.Path, payload, 0o644); err != nil {
		return fmt.Errorf("write cache payload: %w", err)
	}

	if meta == nil {
		// 旧条目的 .meta 若残留会让无 TTL 的新正文提前过期。
		if err := os.Remove(key.MetaPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.warn("cache_meta_remove_failed", key, err)
		}
		return nil
	}
	if err := os.WriteFile(key.MetaPath(), meta.Encode(), 0o644); err != nil {
		s.warn("cache_meta_write_failed", key, err)
	}
	return nil
}

// readMeta 读取并解析 .meta；文件缺失返回 nil，读取或解析失败记录告警后同样返回 nil（fail-open）。
func (s *fileStore) readMeta(key Key) *Meta {
	data, err := os.ReadFile(key.MetaPath())
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.warn("cache_meta_unreadable", key, err)
		}
		return nil
	}
	meta, err := ParseMeta(data)
	if err != nil {
		s.warn("cache_meta_invalid", key, err)
		return nil
	}
	return &meta
}

func (s *fileStore) checkContained(key Key) error {
	if key.Path == "" {
		return fmt.Errorf("%w: empty key", ErrKeyOutsideRoot)
	}
	clean := filepath.Clean(key.Path)
	if !strings.HasPrefix(clean, s.basePath+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s", ErrKeyOutsideRoot, key.Path)
	}
	return nil
}

func (s *fileStore) warn(action string, key Key, err error) {
	s.logger.WithFields(logging.CacheFields(action, key.Path)).WithError(err).Warn(action)
}

func (s *fileStore) lockEntry(path string) func() {
	s.mu.Lock()
	lock := s.locks[path]
	if lock == nil {
		lock = &entryLock{}
		s.locks[path] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, path)
		}
		s.mu.Unlock()
	}
}
