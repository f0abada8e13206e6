package network

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/offline-hub/offline-hub/internal/cache"
	"github.com/offline-hub/offline-hub/internal/server"
	"github.com/offline-hub/offline-hub/internal/version"
)

// HTTPFetcher 基于共享 http.Client 完成上游请求，并把响应物化为 cache.Payload。
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPFetcher 构造 fetcher；client 为空时使用 http.DefaultClient。
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{
		client:    client,
		userAgent: "offline-hub/" + version.Version,
	}
}

// Fetch 发起可缓存的 GET 请求。
func (f *HTTPFetcher) Fetch(ctx context.Context, target *url.URL, header http.Header) (cache.Payload, error) {
	return f.do(ctx, http.MethodGet, target, server.ForwardRequestHeaders(header, true), nil)
}

// Forward 透传非 GET 请求，响应同样被物化，但调用方不会缓存它。
func (f *HTTPFetcher) Forward(ctx context.Context, method string, target *url.URL, header http.Header, body []byte) (cache.Payload, error) {
	return f.do(ctx, method, target, server.ForwardRequestHeaders(header, false), body)
}

func (f *HTTPFetcher) do(ctx context.Context, method string, target *url.URL, header http.Header, body []byte) (cache.Payload, error) {
	if target == nil {
		return cache.Payload{}, &Error{Method: method, Err: errNilTarget}
	}

	var reqBody io.Reader
	if len(body) > 0 {
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reqBody)
	if err != nil {
		return cache.Payload{}, &Error{Method: method, URL: target.String(), Err: err}
	}
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return cache.Payload{}, &Error{Method: method, URL: target.String(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		// 正文读取中断同样视为传输失败，残缺正文不能交给调用方或缓存。
		return cache.Payload{}, &Error{Method: method, URL: target.String(), Err: err}
	}

	respHeader := http.Header{}
	server.CopyHeaders(respHeader, resp.Header)
	respHeader.Del("Content-Length")

	return cache.Payload{
		Status: resp.StatusCode,
		Header: respHeader,
		Body:   raw,
	}, nil
}
