package cache

import (
	"errors"
	"net"
	"net/url"
	"strings"
)

// Identity 是缓存条目的规范键：仅由规范化后的绝对 URL 构成，方法隐式为 GET，不区分请求头。
type Identity string

// String 返回规范化 URL。
func (id Identity) String() string {
	return string(id)
}

// ErrInvalidIdentity 表示无法从给定 URL 推导出绝对地址。
var ErrInvalidIdentity = errors.New("invalid request identity")

// IdentityFor 将 raw 解析为绝对 URL（相对地址基于 base 解析）并返回规范键。
func IdentityFor(raw string, base *url.URL) (Identity, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if !parsed.IsAbs() {
		if base == nil {
			return "", ErrInvalidIdentity
		}
		parsed = base.ResolveReference(parsed)
	}
	return IdentityOf(parsed)
}

// IdentityOf 对已解析的绝对 URL 做规范化：scheme/host 小写、去掉默认端口与 fragment，空路径补 "/"。
func IdentityOf(u *url.URL) (Identity, error) {
	if u == nil || u.Scheme == "" || u.Host == "" {
		return "", ErrInvalidIdentity
	}

	normalized := *u
	normalized.Scheme = strings.ToLower(u.Scheme)
	normalized.Host = normalizeHost(normalized.Scheme, u.Host)
	normalized.Fragment = ""
	normalized.RawFragment = ""
	normalized.User = nil
	if normalized.Path == "" {
		normalized.Path = "/"
		normalized.RawPath = ""
	}
	return Identity(normalized.String()), nil
}

func normalizeHost(scheme, host string) string {
	host = strings.ToLower(host)
	h, port, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		if strings.Contains(h, ":") {
			return "[" + h + "]"
		}
		return h
	}
	return host
}
