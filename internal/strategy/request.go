package strategy

import (
	"net/http"
	"net/url"
)

// Mode 对应浏览器 Request.mode，只有 navigate 参与分类。
type Mode string

const (
	ModeNavigate   Mode = "navigate"
	ModeCORS       Mode = "cors"
	ModeNoCORS     Mode = "no-cors"
	ModeSameOrigin Mode = "same-origin"
)

// Request 是被拦截请求在核心中的表示：绝对 URL、导航模式与可透传的请求头。
type Request struct {
	URL    *url.URL
	Mode   Mode
	Header http.Header
}

// ModeFromHeaders 依据 Sec-Fetch-Mode 推导导航模式；缺失时，接受 HTML 的 GET 视为导航。
func ModeFromHeaders(method string, header http.Header) Mode {
	switch Mode(header.Get("Sec-Fetch-Mode")) {
	case ModeNavigate:
		return ModeNavigate
	case ModeCORS:
		return ModeCORS
	case ModeNoCORS:
		return ModeNoCORS
	case ModeSameOrigin:
		return ModeSameOrigin
	}
	if method == http.MethodGet && acceptsHTML(header.Values("Accept")) {
		return ModeNavigate
	}
	return ModeNoCORS
}
