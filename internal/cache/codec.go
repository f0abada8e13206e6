package cache

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const storedAtHeader = "X-Offline-Hub-Stored-At"

// EncodePayload 将快照编码为 HTTP/1.1 响应报文，StoredAt 借助扩展头携带。
func EncodePayload(p Payload) ([]byte, error) {
	header := p.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if !p.StoredAt.IsZero() {
		header.Set(storedAtHeader, strconv.FormatInt(p.StoredAt.UnixNano(), 10))
	}

	resp := &http.Response{
		StatusCode:    p.Status,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(p.Body)),
		ContentLength: int64(len(p.Body)),
	}

	buf := &bytes.Buffer{}
	if err := resp.Write(buf); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodePayload 是 EncodePayload 的逆过程。
func DecodePayload(raw []byte) (Payload, error) {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(raw)), nil)
	if err != nil {
		return Payload{}, fmt.Errorf("decode payload: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Payload{}, fmt.Errorf("decode payload body: %w", err)
	}

	header := resp.Header
	var storedAt time.Time
	if rawStoredAt := header.Get(storedAtHeader); rawStoredAt != "" {
		if nanos, err := strconv.ParseInt(rawStoredAt, 10, 64); err == nil {
			storedAt = time.Unix(0, nanos).UTC()
		}
		header.Del(storedAtHeader)
	}
	// http.ReadResponse 会根据报文补充 Content-Length，与原始快照保持一致时去掉。
	header.Del("Content-Length")

	return Payload{
		Status:   resp.StatusCode,
		Header:   header,
		Body:     body,
		StoredAt: storedAt,
	}, nil
}
