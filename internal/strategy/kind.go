package strategy

import "sort"

// Kind 表示一种缓存策略。
type Kind string

const (
	CacheFirst           Kind = "cache-first"
	NetworkFirst         Kind = "network-first"
	StaleWhileRevalidate Kind = "stale-while-revalidate"
)

// Role 表示策略写入的逻辑存储。
type Role string

const (
	RoleStatic  Role = "static"
	RoleRuntime Role = "runtime"
)

// Profile 记录策略的静态信息，供诊断端输出。
type Profile struct {
	Kind        Kind   `json:"key"`
	Description string `json:"description"`
	TargetStore Role   `json:"target_store"`
	Background  bool   `json:"background_revalidation"`
}

var profiles = map[Kind]Profile{
	CacheFirst: {
		Kind:        CacheFirst,
		Description: "serve from cache without touching the network; fetch and store on miss",
		TargetStore: RoleStatic,
	},
	NetworkFirst: {
		Kind:        NetworkFirst,
		Description: "fetch fresh and store; fall back to cache, then to 503 Offline",
		TargetStore: RoleRuntime,
	},
	StaleWhileRevalidate: {
		Kind:        StaleWhileRevalidate,
		Description: "serve cached copy immediately while revalidating in the background",
		TargetStore: RoleRuntime,
		Background:  true,
	},
}

// String 返回策略键。
func (k Kind) String() string {
	return string(k)
}

// Target 返回策略写入的逻辑存储。
func (k Kind) Target() Role {
	return profiles[k].TargetStore
}

// Profiles 返回按键排序的策略列表。
func Profiles() []Profile {
	result := make([]Profile, 0, len(profiles))
	for _, profile := range profiles {
		result = append(result, profile)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Kind < result[j].Kind
	})
	return result
}
