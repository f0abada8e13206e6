package cache

import (
	"context"
	"errors"
)

// Store 是一个具名缓存容器，Identity → Payload。
// 写入为按键整体覆盖，多个写入方并发时最后一次写入生效，不会出现部分写入。
type Store interface {
	// Name 返回带版本号的存储名，例如 palace-static-v1.2。
	Name() string

	// Get 返回条目副本，不存在时返回 ErrNotFound。
	Get(ctx context.Context, id Identity) (Payload, error)

	// Put 以快照副本覆盖条目；StoredAt 为空时由实现填充当前时间。
	Put(ctx context.Context, id Identity, payload Payload) error

	// Len 返回当前条目数，仅供诊断使用。
	Len(ctx context.Context) (int, error)
}

// Registry 取代全局具名缓存命名空间，由 generation.Manager 持有并显式传递。
type Registry interface {
	// Open 打开（不存在时创建）具名存储。
	Open(ctx context.Context, name string) (Store, error)

	// Names 列出所有已存在存储的名称，按字典序排列。
	Names(ctx context.Context) ([]string, error)

	// Delete 删除整个存储，返回是否真的删除了内容。
	Delete(ctx context.Context, name string) (bool, error)

	// Close 释放底层资源。
	Close() error
}

var (
	// ErrNotFound 表示缓存不存在。
	ErrNotFound = errors.New("cache entry not found")
	// ErrStoreClosed 表示 Registry 已关闭，或存储已被删除后仍被访问。
	ErrStoreClosed = errors.New("cache store closed")
	// ErrInvalidStoreName 表示存储名为空或包含非法字符。
	ErrInvalidStoreName = errors.New("invalid cache store name")
)
