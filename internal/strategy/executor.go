package strategy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/offline-hub/offline-hub/internal/cache"
	"github.com/offline-hub/offline-hub/internal/logging"
)

// Fetcher 执行真实的网络请求，并把响应完整物化为 Payload。
// 只有传输层失败返回 error；非 2xx 状态作为正常 Payload 返回。
type Fetcher interface {
	Fetch(ctx context.Context, target *url.URL, header http.Header) (cache.Payload, error)
}

// Source 描述结果来自哪里。
type Source string

const (
	SourceNetwork Source = "network"
	SourceCache   Source = "cache"
	SourceOffline Source = "offline"
	SourceNone    Source = "none"
)

// Result 是一次策略执行的唯一返回值。
type Result struct {
	Payload cache.Payload
	Source  Source
	Kind    Kind
	// Usable 为 false 仅出现在 stale-while-revalidate 缓存缺失且网络失败时。
	Usable bool
}

// CacheHit 报告结果是否由缓存提供。
func (r Result) CacheHit() bool {
	return r.Source == SourceCache
}

// Options 描述 Executor 的依赖。Static/Runtime 必须是当前代的存储。
type Options struct {
	Classifier *Classifier
	Static     cache.Store
	Runtime    cache.Store
	Network    Fetcher
	Logger     *logrus.Logger
}

// Executor 对分类后的请求运行对应策略。
type Executor struct {
	classifier *Classifier
	static     cache.Store
	runtime    cache.Store
	network    Fetcher
	logger     *logrus.Logger

	pending sync.WaitGroup
}

var errMissingDependency = errors.New("strategy executor missing dependency")

// NewExecutor 校验依赖并构造执行器。
func NewExecutor(opts Options) (*Executor, error) {
	switch {
	case opts.Static == nil:
		return nil, fmt.Errorf("%w: static store", errMissingDependency)
	case opts.Runtime == nil:
		return nil, fmt.Errorf("%w: runtime store", errMissingDependency)
	case opts.Network == nil:
		return nil, fmt.Errorf("%w: network fetcher", errMissingDependency)
	}
	classifier := opts.Classifier
	if classifier == nil {
		classifier = NewClassifier(defaultRouting())
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Executor{
		classifier: classifier,
		static:     opts.Static,
		runtime:    opts.Runtime,
		network:    opts.Network,
		logger:     logger,
	}, nil
}

// Classify 暴露分类结果，代理层用它输出诊断头。
func (e *Executor) Classify(req Request) Kind {
	return e.classifier.Classify(req)
}

// Execute 分类请求并运行对应策略。只有请求本身无法构成缓存键时才返回 error。
func (e *Executor) Execute(ctx context.Context, req Request) (Result, error) {
	id, err := cache.IdentityOf(req.URL)
	if err != nil {
		return Result{}, err
	}
	// 后台重验证可能在调用方返回后继续读取请求头。
	req.Header = req.Header.Clone()

	kind := e.classifier.Classify(req)
	switch kind {
	case CacheFirst:
		return e.cacheFirst(ctx, req, id), nil
	case StaleWhileRevalidate:
		return e.staleWhileRevalidate(ctx, req, id), nil
	default:
		return e.networkFirst(ctx, req, id), nil
	}
}

// Wait 阻塞直到所有已发起的存储写入与后台重验证结束。
func (e *Executor) Wait() {
	e.pending.Wait()
}

func (e *Executor) cacheFirst(ctx context.Context, req Request, id cache.Identity) Result {
	if payload, ok := e.lookup(ctx, CacheFirst, id); ok {
		return Result{Payload: payload, Source: SourceCache, Kind: CacheFirst, Usable: true}
	}

	payload, err := e.network.Fetch(ctx, req.URL, req.Header)
	if err != nil {
		e.logNetworkFailure(CacheFirst, id, err)
		return offlineResult(CacheFirst)
	}
	e.storeAsync(ctx, CacheFirst, id, payload)
	return Result{Payload: payload, Source: SourceNetwork, Kind: CacheFirst, Usable: true}
}

func (e *Executor) networkFirst(ctx context.Context, req Request, id cache.Identity) Result {
	payload, err := e.network.Fetch(ctx, req.URL, req.Header)
	if err == nil {
		e.storeAsync(ctx, NetworkFirst, id, payload)
		return Result{Payload: payload, Source: SourceNetwork, Kind: NetworkFirst, Usable: true}
	}

	e.logNetworkFailure(NetworkFirst, id, err)
	if cached, ok := e.lookup(ctx, NetworkFirst, id); ok {
		return Result{Payload: cached, Source: SourceCache, Kind: NetworkFirst, Usable: true}
	}
	return offlineResult(NetworkFirst)
}

type fetchOutcome struct {
	payload cache.Payload
	err     error
}

func (e *Executor) staleWhileRevalidate(ctx context.Context, req Request, id cache.Identity) Result {
	fresh := make(chan fetchOutcome, 1)
	lookedUp := make(chan struct{})
	bg := context.WithoutCancel(ctx)

	e.pending.Add(1)
	go func() {
		defer e.pending.Done()
		payload, err := e.network.Fetch(bg, req.URL, req.Header)
		fresh <- fetchOutcome{payload: payload.Clone(), err: err}
		if err != nil {
			e.logger.WithFields(logging.StoreFields("revalidate", e.target(StaleWhileRevalidate).Name(), id.String())).
				WithError(err).Debug("revalidate_dropped")
			return
		}
		// 重验证结果只服务后续请求，不能抢在本次查找之前写入。
		<-lookedUp
		e.store(bg, StaleWhileRevalidate, id, payload)
	}()

	cached, ok := e.lookup(ctx, StaleWhileRevalidate, id)
	close(lookedUp)
	if ok {
		return Result{Payload: cached, Source: SourceCache, Kind: StaleWhileRevalidate, Usable: true}
	}

	select {
	case outcome := <-fresh:
		if outcome.err != nil {
			return Result{Source: SourceNone, Kind: StaleWhileRevalidate}
		}
		return Result{Payload: outcome.payload, Source: SourceNetwork, Kind: StaleWhileRevalidate, Usable: true}
	case <-ctx.Done():
		return Result{Source: SourceNone, Kind: StaleWhileRevalidate}
	}
}

// lookup 先查策略的目标存储，再查另一个当前存储。
func (e *Executor) lookup(ctx context.Context, kind Kind, id cache.Identity) (cache.Payload, bool) {
	for _, store := range e.lookupOrder(kind) {
		payload, err := store.Get(ctx, id)
		if err == nil {
			return payload, true
		}
		if !errors.Is(err, cache.ErrNotFound) {
			e.logger.WithFields(logging.StoreFields("cache_get", store.Name(), id.String())).
				WithError(err).Warn("cache_lookup_failed")
		}
	}
	return cache.Payload{}, false
}

func (e *Executor) lookupOrder(kind Kind) []cache.Store {
	if kind.Target() == RoleStatic {
		return []cache.Store{e.static, e.runtime}
	}
	return []cache.Store{e.runtime, e.static}
}

func (e *Executor) target(kind Kind) cache.Store {
	if kind.Target() == RoleStatic {
		return e.static
	}
	return e.runtime
}

// storeAsync 在返回前发起写入，写入本身脱离请求取消独立完成。
func (e *Executor) storeAsync(ctx context.Context, kind Kind, id cache.Identity, payload cache.Payload) {
	if !payload.OK() {
		return
	}
	snapshot := payload.Clone()
	bg := context.WithoutCancel(ctx)
	e.pending.Add(1)
	go func() {
		defer e.pending.Done()
		e.store(bg, kind, id, snapshot)
	}()
}

func (e *Executor) store(ctx context.Context, kind Kind, id cache.Identity, payload cache.Payload) {
	if !payload.OK() {
		return
	}
	target := e.target(kind)
	if err := target.Put(ctx, id, payload); err != nil {
		e.logger.WithFields(logging.StoreFields("cache_put", target.Name(), id.String())).
			WithError(err).Warn("cache_store_failed")
	}
}

func (e *Executor) logNetworkFailure(kind Kind, id cache.Identity, err error) {
	e.logger.WithFields(logrus.Fields{
		"action":   "fetch",
		"strategy": kind.String(),
		"identity": id.String(),
	}).WithError(err).Info("network_unavailable")
}

func offlineResult(kind Kind) Result {
	return Result{Payload: cache.Offline(), Source: SourceOffline, Kind: kind, Usable: true}
}
