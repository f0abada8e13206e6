package network

import (
	"errors"
	"fmt"
)

var errNilTarget = errors.New("nil target url")

// Error 表示一次传输层失败（离线、DNS、超时、连接被拒等）。
// 非 2xx 状态码不是 Error，而是正常返回的 Payload。
type Error struct {
	Method string
	URL    string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("network %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsFailure 报告 err 是否为传输层失败。
func IsFailure(err error) bool {
	var netErr *Error
	return errors.As(err, &netErr)
}
