package generation

import (
	"errors"
	"fmt"
)

// ErrNotInstalled 表示在安装成功之前调用了 Activate。
var ErrNotInstalled = errors.New("generation not installed")

// ErrInvalidTransition 表示生命周期状态不允许当前操作。
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// BootstrapError 表示安装阶段清单写入失败，本次激活尝试随之作废。
type BootstrapError struct {
	Store string
	Err   error
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("install %s: %v", e.Store, e.Err)
}

func (e *BootstrapError) Unwrap() error {
	return e.Err
}
