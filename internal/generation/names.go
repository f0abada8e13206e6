package generation

import "strings"

// Names 根据命名空间与代标签推导两个当前存储名。
type Names struct {
	Namespace string
	Tag       string
}

// NewNames 构造命名规则；namespace 为空时存储名为 <role>-<tag>。
func NewNames(namespace, tag string) Names {
	return Names{Namespace: strings.TrimSpace(namespace), Tag: strings.TrimSpace(tag)}
}

// Static 返回当前代的 STATIC 存储名，例如 palace-static-v1.2。
func (n Names) Static() string {
	return n.name("static")
}

// Runtime 返回当前代的 RUNTIME 存储名。
func (n Names) Runtime() string {
	return n.name("runtime")
}

// Current 报告 name 是否属于当前代。
func (n Names) Current(name string) bool {
	return name == n.Static() || name == n.Runtime()
}

func (n Names) name(role string) string {
	if n.Namespace == "" {
		return role + "-" + n.Tag
	}
	return n.Namespace + "-" + role + "-" + n.Tag
}
