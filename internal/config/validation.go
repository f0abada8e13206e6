package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var supportedStorageDrivers = map[string]struct{}{
	"memory": {},
	"disk":   {},
	"sqlite": {},
}

const supportedStorageDriverList = "memory|disk|sqlite"

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if err := validateUpstream(g.Upstream); err != nil {
		return fmt.Errorf("Global.Upstream: %w", err)
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if _, ok := supportedStorageDrivers[g.StorageDriver]; !ok {
		return newFieldError("Global.StorageDriver", "仅支持 "+supportedStorageDriverList)
	}
	if g.StorageDriver != "memory" && g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}

	gen := c.Generation
	if err := validateNameSegment(gen.Namespace); err != nil {
		return newFieldError("Namespace", err.Error())
	}
	if err := validateNameSegment(gen.Generation); err != nil {
		return newFieldError("Generation", err.Error())
	}
	for i, raw := range gen.Manifest {
		if err := validateManifestEntry(raw); err != nil {
			return newFieldError(manifestField(i), err.Error())
		}
	}

	r := c.Routing
	if !strings.HasPrefix(r.APIPrefix, "/") {
		return newFieldError("APIPrefix", "必须以 / 开头")
	}
	if !strings.HasPrefix(r.StaticPrefix, "/") {
		return newFieldError("StaticPrefix", "必须以 / 开头")
	}
	for _, ext := range r.StaticExtensions {
		if ext == "" || strings.ContainsAny(ext, "/.") {
			return newFieldError("StaticExtensions", fmt.Sprintf("非法扩展名: %q", ext))
		}
	}

	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}

// validateNameSegment 确保命名片段可以安全拼入存储名（目录名/表内主键）。
func validateNameSegment(segment string) error {
	if segment == "" {
		return errors.New("不能为空")
	}
	if strings.ContainsAny(segment, `/\ `) || strings.Contains(segment, "..") {
		return fmt.Errorf("包含非法字符: %s", segment)
	}
	return nil
}

func validateManifestEntry(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return errors.New("不能为空")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return err
	}
	if parsed.IsAbs() {
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return fmt.Errorf("仅支持 http/https: %s", raw)
		}
		return nil
	}
	if !strings.HasPrefix(trimmed, "/") {
		return fmt.Errorf("相对地址必须以 / 开头: %s", raw)
	}
	return nil
}
