package routes

import (
	"context"

	"github.com/gofiber/fiber/v3"

	"github.com/offline-hub/offline-hub/internal/cache"
	"github.com/offline-hub/offline-hub/internal/generation"
	"github.com/offline-hub/offline-hub/internal/strategy"
)

// RegisterStatusRoutes 暴露 /-/status 与 /-/stores 诊断接口，供运维确认当前代与存储状态。
func RegisterStatusRoutes(app *fiber.App, manager *generation.Manager) {
	if app == nil || manager == nil {
		return
	}

	app.Get("/-/status", func(c fiber.Ctx) error {
		return c.JSON(encodeStatus(c.Context(), manager))
	})

	app.Get("/-/stores", func(c fiber.Ctx) error {
		names, err := manager.Registry().Names(c.Context())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "store_list_failed"})
		}
		return c.JSON(fiber.Map{"stores": encodeStoreList(names, manager.Names())})
	})
}

type statusPayload struct {
	Namespace      string                      `json:"namespace"`
	Generation     string                      `json:"generation"`
	State          generation.State            `json:"state"`
	SkipWaiting    bool                        `json:"skip_waiting"`
	Claimed        bool                        `json:"claimed"`
	Stores         []storePayload              `json:"stores"`
	Strategies     []strategy.Profile          `json:"strategies"`
	LastActivation generation.ActivationReport `json:"last_activation"`
}

type storePayload struct {
	Name    string        `json:"name"`
	Role    strategy.Role `json:"role,omitempty"`
	Current bool          `json:"current"`
	Entries *int          `json:"entries,omitempty"`
}

func encodeStatus(ctx context.Context, manager *generation.Manager) statusPayload {
	names := manager.Names()
	return statusPayload{
		Namespace:   names.Namespace,
		Generation:  names.Tag,
		State:       manager.State(),
		SkipWaiting: manager.SkipWaiting(),
		Claimed:     manager.Claimed(),
		Stores: []storePayload{
			encodeCurrentStore(ctx, names.Static(), strategy.RoleStatic, manager.Static()),
			encodeCurrentStore(ctx, names.Runtime(), strategy.RoleRuntime, manager.Runtime()),
		},
		Strategies:     strategy.Profiles(),
		LastActivation: manager.LastActivation(),
	}
}

func encodeCurrentStore(ctx context.Context, name string, role strategy.Role, store cache.Store) storePayload {
	payload := storePayload{Name: name, Role: role, Current: true}
	if store == nil {
		return payload
	}
	if n, err := store.Len(ctx); err == nil {
		payload.Entries = &n
	}
	return payload
}

func encodeStoreList(names []string, current generation.Names) []storePayload {
	result := make([]storePayload, 0, len(names))
	for _, name := range names {
		item := storePayload{Name: name, Current: current.Current(name)}
		switch name {
		case current.Static():
			item.Role = strategy.RoleStatic
		case current.Runtime():
			item.Role = strategy.RoleRuntime
		}
		result = append(result, item)
	}
	return result
}
