package cache

import (
	"fmt"
	"path/filepath"
	"strings"
)

// 支持的存储驱动。
const (
	DriverMemory = "memory"
	DriverDisk   = "disk"
	DriverSQLite = "sqlite"
)

// sqliteFileName 是 sqlite 驱动在 StoragePath 下使用的数据库文件名。
const sqliteFileName = "offline-hub.db"

// NewRegistry 根据驱动名构建 Registry，StoragePath 对 memory 驱动无意义。
func NewRegistry(driver, storagePath string) (Registry, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverMemory:
		return NewMemoryRegistry(), nil
	case "", DriverDisk:
		return NewDiskRegistry(storagePath)
	case DriverSQLite:
		return NewSQLiteRegistry(filepath.Join(storagePath, sqliteFileName))
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", driver)
	}
}

func validateStoreName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidStoreName
	}
	if strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %s", ErrInvalidStoreName, name)
	}
	return nil
}
