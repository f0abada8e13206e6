package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const entrySuffix = ".resp"

// NewDiskRegistry 以 basePath 为根目录构建磁盘缓存，每个存储对应一个子目录：
//
//	<StoragePath>/<StoreName>/<sha256(identity)>.resp    # HTTP/1.1 报文
func NewDiskRegistry(basePath string) (Registry, error) {
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

	return &diskRegistry{
		basePath: abs,
		locks:    make(map[string]*entryLock),
		now:      time.Now,
	}, nil
}

// diskRegistry 通过 entryLock 避免同一条目并发写入，同时复用 basePath。
type diskRegistry struct {
	basePath string
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

type fileStore struct {
	name     string
	dir      string
	registry *diskRegistry
}

func (r *diskRegistry) Open(ctx context.Context, name string) (Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateStoreName(name); err != nil {
		return nil, err
	}
	dir := filepath.Join(r.basePath, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store %s: %w", name, err)
	}
	return &fileStore{name: name, dir: dir, registry: r}, nil
}

func (r *diskRegistry) Names(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(r.basePath)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (r *diskRegistry) Delete(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := validateStoreName(name); err != nil {
		return false, err
	}
	dir := filepath.Join(r.basePath, name)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	// 先改名再删除，避免删除过程中被 Names 看到残缺目录。
	doomed := filepath.Join(r.basePath, fmt.Sprintf(".deleting-%s-%d", name, r.now().UnixNano()))
	if err := os.Rename(dir, doomed); err != nil {
		return false, err
	}
	if err := os.RemoveAll(doomed); err != nil {
		return true, err
	}
	return true, nil
}

func (r *diskRegistry) Close() error {
	return nil
}

func (s *fileStore) Name() string {
	return s.name
}

func (s *fileStore) Get(ctx context.Context, id Identity) (Payload, error) {
	select {
	case <-ctx.Done():
		return Payload{}, ctx.Err()
	default:
	}

	raw, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Payload{}, ErrNotFound
		}
		return Payload{}, err
	}
	return DecodePayload(raw)
}

func (s *fileStore) Put(ctx context.Context, id Identity, payload Payload) error {
	unlock := s.registry.lockEntry(s.name, id)
	defer unlock()

	snapshot := payload
	if snapshot.StoredAt.IsZero() {
		snapshot.StoredAt = s.registry.now().UTC()
	}
	encoded, err := EncodePayload(snapshot)
	if err != nil {
		return err
	}

	// 存储可能在 Activate 期间被整体删除，这里不自动重建目录。
	if _, err := os.Stat(s.dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrStoreClosed
		}
		return err
	}

	tempFile, err := os.CreateTemp(s.dir, ".cache-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = copyWithContext(ctx, tempFile, bytes.NewReader(encoded))
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}

	if err := os.Rename(tempName, s.path(id)); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

func (s *fileStore) Len(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, ErrStoreClosed
		}
		return 0, err
	}
	count := 0
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), entrySuffix) {
			count++
		}
	}
	return count, nil
}

func (s *fileStore) path(id Identity) string {
	sum := sha256.Sum256([]byte(id))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+entrySuffix)
}

func (r *diskRegistry) lockEntry(store string, id Identity) func() {
	key := store + "::" + string(id)
	r.mu.Lock()
	lock := r.locks[key]
	if lock == nil {
		lock = &entryLock{}
		r.locks[key] = lock
	}
	lock.refs++
	r.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		r.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(r.locks, key)
		}
		r.mu.Unlock()
	}
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
