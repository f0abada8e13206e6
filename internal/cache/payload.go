package cache

import (
	"bytes"
	"io"
	"net/http"
	"time"
)

// OfflineBody 是网络与缓存都不可用时合成响应的正文。
const OfflineBody = "Offline"

// Payload 是一次网络响应的不可变快照（状态码、头、正文）。
// 写入后不会被修改，只会被新的 Put 整体替换；对外交出数据时一律复制。
type Payload struct {
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

// NewPayload 以 status/header/body 构建快照，header 与 body 会被复制。
func NewPayload(status int, header http.Header, body []byte) Payload {
	return Payload{
		Status: status,
		Header: header.Clone(),
		Body:   append([]byte(nil), body...),
	}
}

// Offline 返回合成的 503 "Offline" 纯文本响应。
func Offline() Payload {
	header := http.Header{}
	header.Set("Content-Type", "text/plain; charset=utf-8")
	return Payload{
		Status: http.StatusServiceUnavailable,
		Header: header,
		Body:   []byte(OfflineBody),
	}
}

// OK 报告响应是否处于 2xx 区间；只有 OK 的响应可以被缓存。
func (p Payload) OK() bool {
	return p.Status >= 200 && p.Status <= 299
}

// Clone 返回一份独立副本，调用方与缓存写入方各持一份，互不干扰。
func (p Payload) Clone() Payload {
	clone := p
	if p.Header != nil {
		clone.Header = p.Header.Clone()
	}
	if p.Body != nil {
		clone.Body = append([]byte(nil), p.Body...)
	}
	return clone
}

// Reader 返回正文的新 Reader，可被重复调用。
func (p Payload) Reader() io.Reader {
	return bytes.NewReader(p.Body)
}

// Equal 比较两个快照的可观察内容（忽略 StoredAt）。
func (p Payload) Equal(other Payload) bool {
	if p.Status != other.Status || !bytes.Equal(p.Body, other.Body) {
		return false
	}
	if len(p.Header) != len(other.Header) {
		return false
	}
	for key, values := range p.Header {
		otherValues := other.Header[key]
		if len(values) != len(otherValues) {
			return false
		}
		for i := range values {
			if values[i] != otherValues[i] {
				return false
			}
		}
	}
	return true
}
