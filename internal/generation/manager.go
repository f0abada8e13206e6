package generation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/offline-hub/offline-hub/internal/cache"
	"github.com/offline-hub/offline-hub/internal/logging"
)

// State 是 worker 生命周期状态。
type State string

const (
	StateParsed     State = "parsed"
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateActivating State = "activating"
	StateActivated  State = "activated"
	StateRedundant  State = "redundant"
)

// Populator 把清单写入 STATIC 存储，任何失败都必须保证未写入或可整体丢弃。
type Populator interface {
	Populate(ctx context.Context, store cache.Store) error
}

// ActivationReport 汇总一次激活清理的结果。
type ActivationReport struct {
	Deleted []string          `json:"deleted"`
	Kept    []string          `json:"kept"`
	Failed  map[string]string `json:"failed,omitempty"`
}

// Manager 持有存储注册表，并按生命周期交出当前代的存储。
type Manager struct {
	registry  cache.Registry
	names     Names
	populator Populator
	logger    *logrus.Logger

	mu          sync.RWMutex
	state       State
	skipWaiting bool
	claimed     bool
	static      cache.Store
	runtime     cache.Store
	report      ActivationReport
}

// NewManager 构造 Manager；populator 为空时安装只创建 STATIC 存储。
func NewManager(registry cache.Registry, names Names, populator Populator, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Manager{
		registry:  registry,
		names:     names,
		populator: populator,
		logger:    logger,
		state:     StateParsed,
	}
}

// Install 打开当前 STATIC 存储并整体写入清单；失败时删除残留存储并进入 redundant。
func (m *Manager) Install(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateParsed && m.state != StateRedundant {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("%w: install from %s", ErrInvalidTransition, state)
	}
	m.state = StateInstalling
	m.mu.Unlock()

	start := time.Now()
	name := m.names.Static()
	existed := m.exists(ctx, name)
	static, err := m.registry.Open(ctx, name)
	if err == nil && m.populator != nil {
		err = m.populator.Populate(ctx, static)
	}
	if err != nil {
		// 之前安装完成的同名存储保持原样，只丢弃本次新建的存储。
		if !existed {
			m.discard(ctx, name)
		}
		m.setState(StateRedundant)
		m.logger.WithFields(logging.StoreFields("install", name, "")).
			WithError(err).Error("install_failed")
		return &BootstrapError{Store: name, Err: err}
	}

	m.mu.Lock()
	m.static = static
	m.state = StateInstalled
	m.skipWaiting = true
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"action":     "install",
		"store":      name,
		"generation": m.names.Tag,
		"elapsed_ms": time.Since(start).Milliseconds(),
	}).Info("install_complete")
	return nil
}

// Activate 删除所有非当前代的存储（单个删除失败只记录），随后接管流量。
func (m *Manager) Activate(ctx context.Context) (ActivationReport, error) {
	m.mu.Lock()
	if m.state != StateInstalled {
		state := m.state
		m.mu.Unlock()
		return ActivationReport{}, fmt.Errorf("%w (state %s)", ErrNotInstalled, state)
	}
	m.state = StateActivating
	m.mu.Unlock()

	report := m.cleanup(ctx)

	runtime, err := m.registry.Open(ctx, m.names.Runtime())
	if err != nil {
		m.setState(StateInstalled)
		return report, fmt.Errorf("open runtime store: %w", err)
	}

	m.mu.Lock()
	m.runtime = runtime
	m.report = report
	m.state = StateActivated
	m.claimed = true
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"action":     "activate",
		"generation": m.names.Tag,
		"deleted":    len(report.Deleted),
		"kept":       len(report.Kept),
		"failed":     len(report.Failed),
	}).Info("activate_complete")
	return report, nil
}

func (m *Manager) cleanup(ctx context.Context) ActivationReport {
	report := ActivationReport{Deleted: []string{}, Kept: []string{}}
	names, err := m.registry.Names(ctx)
	if err != nil {
		m.logger.WithFields(logrus.Fields{"action": "activate"}).
			WithError(err).Warn("store_enumeration_failed")
		return report
	}
	for _, name := range names {
		if m.names.Current(name) {
			report.Kept = append(report.Kept, name)
			continue
		}
		deleted, err := m.registry.Delete(ctx, name)
		if err != nil {
			if report.Failed == nil {
				report.Failed = make(map[string]string)
			}
			report.Failed[name] = err.Error()
			m.logger.WithFields(logging.StoreFields("activate", name, "")).
				WithError(err).Warn("store_delete_failed")
			continue
		}
		if deleted {
			report.Deleted = append(report.Deleted, name)
			m.logger.WithFields(logging.StoreFields("activate", name, "")).Info("store_deleted")
		}
	}
	return report
}

// exists 报告 name 是否已在注册表中；无法枚举时按已存在处理，避免误删。
func (m *Manager) exists(ctx context.Context, name string) bool {
	names, err := m.registry.Names(ctx)
	if err != nil {
		return true
	}
	for _, existing := range names {
		if existing == name {
			return true
		}
	}
	return false
}

func (m *Manager) discard(ctx context.Context, name string) {
	if _, err := m.registry.Delete(context.WithoutCancel(ctx), name); err != nil {
		m.logger.WithFields(logging.StoreFields("install", name, "")).
			WithError(err).Warn("store_discard_failed")
	}
}

func (m *Manager) setState(state State) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

// State 返回当前生命周期状态。
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// SkipWaiting 报告安装成功后是否跳过等待阶段。
func (m *Manager) SkipWaiting() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.skipWaiting
}

// Claimed 报告是否已接管现有会话。
func (m *Manager) Claimed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.claimed
}

// Ready 报告是否可以拦截请求。
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateActivated && m.claimed
}

// Static 返回当前 STATIC 存储；安装成功前为 nil。
func (m *Manager) Static() cache.Store {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.static
}

// Runtime 返回当前 RUNTIME 存储；激活前为 nil。
func (m *Manager) Runtime() cache.Store {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runtime
}

// Names 返回命名规则。
func (m *Manager) Names() Names {
	return m.names
}

// Registry 返回底层注册表，仅供诊断端列出存储。
func (m *Manager) Registry() cache.Registry {
	return m.registry
}

// LastActivation 返回最近一次激活的清理报告。
func (m *Manager) LastActivation() ActivationReport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.report
}
