// Package bootstrap 在安装阶段把清单中的关键资源整体写入 STATIC 存储。
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/offline-hub/offline-hub/internal/cache"
	"github.com/offline-hub/offline-hub/internal/logging"
)

// DefaultConcurrency 是未配置时的并发抓取上限。
const DefaultConcurrency = 4

// Fetcher 与 strategy.Fetcher 同构，单独声明以避免包间耦合。
type Fetcher interface {
	Fetch(ctx context.Context, target *url.URL, header http.Header) (cache.Payload, error)
}

// FetchError 记录导致清单安装失败的资源。
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bootstrap %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("bootstrap %s: unexpected status %d", e.URL, e.Status)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Options 配置 Populator。
type Options struct {
	Fetcher     Fetcher
	Base        *url.URL
	Manifest    []string
	Concurrency int
	Logger      *logrus.Logger
}

// Populator 负责清单的抓取与写入。
type Populator struct {
	fetcher     Fetcher
	base        *url.URL
	manifest    []string
	concurrency int
	logger      *logrus.Logger
}

// New 构造 Populator。
func New(opts Options) *Populator {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Populator{
		fetcher:     opts.Fetcher,
		base:        opts.Base,
		manifest:    append([]string(nil), opts.Manifest...),
		concurrency: concurrency,
		logger:      logger,
	}
}

// Manifest 返回清单副本。
func (p *Populator) Manifest() []string {
	return append([]string(nil), p.manifest...)
}

type entry struct {
	raw     string
	target  *url.URL
	id      cache.Identity
	payload cache.Payload
}

// Populate 并发抓取全部清单资源，全部成功（2xx）后才按清单顺序写入 store。
// 任一资源失败时不写入任何条目。
func (p *Populator) Populate(ctx context.Context, store cache.Store) error {
	if p.fetcher == nil {
		return fmt.Errorf("bootstrap: fetcher not configured")
	}
	entries, err := p.resolve()
	if err != nil {
		return err
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i := range entries {
		e := &entries[i]
		g.Go(func() error {
			payload, err := p.fetcher.Fetch(gctx, e.target, nil)
			if err != nil {
				return &FetchError{URL: e.raw, Err: err}
			}
			if !payload.OK() {
				return &FetchError{URL: e.raw, Status: payload.Status}
			}
			e.payload = payload
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, e := range entries {
		if err := store.Put(ctx, e.id, e.payload); err != nil {
			return fmt.Errorf("bootstrap store %s: %w", e.raw, err)
		}
	}

	p.logger.WithFields(logrus.Fields{
		"action":     "bootstrap",
		"store":      store.Name(),
		"entries":    len(entries),
		"elapsed_ms": time.Since(start).Milliseconds(),
	}).Info("bootstrap_populated")
	return nil
}

func (p *Populator) resolve() ([]entry, error) {
	entries := make([]entry, 0, len(p.manifest))
	for _, raw := range p.manifest {
		parsed, err := url.Parse(strings.TrimSpace(raw))
		if err != nil {
			return nil, &FetchError{URL: raw, Err: err}
		}
		if !parsed.IsAbs() {
			if p.base == nil {
				return nil, &FetchError{URL: raw, Err: cache.ErrInvalidIdentity}
			}
			parsed = p.base.ResolveReference(parsed)
		}
		id, err := cache.IdentityOf(parsed)
		if err != nil {
			return nil, &FetchError{URL: raw, Err: err}
		}
		entries = append(entries, entry{raw: raw, target: parsed, id: id})
	}
	return entries, nil
}
