package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if seconds, err := time.ParseDuration(raw); err == nil {
		*d = Duration(seconds)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述进程级运行参数：监听、日志、上游与存储。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	Upstream        string   `mapstructure:"Upstream"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
	StorageDriver   string   `mapstructure:"StorageDriver"`
	StoragePath     string   `mapstructure:"StoragePath"`
}

// GenerationConfig 决定存储命名：<Namespace>-<role>-<Generation>。
type GenerationConfig struct {
	Namespace            string   `mapstructure:"Namespace"`
	Generation           string   `mapstructure:"Generation"`
	Manifest             []string `mapstructure:"Manifest"`
	BootstrapConcurrency int      `mapstructure:"BootstrapConcurrency"`
}

// RoutingConfig 是请求分类器使用的前缀与扩展名集合。
type RoutingConfig struct {
	APIPrefix        string   `mapstructure:"APIPrefix"`
	StaticPrefix     string   `mapstructure:"StaticPrefix"`
	StaticExtensions []string `mapstructure:"StaticExtensions"`
}

// Config 是 TOML 文件映射的整体结构，所有字段均位于顶层。
type Config struct {
	Global     GlobalConfig     `mapstructure:",squash"`
	Generation GenerationConfig `mapstructure:",squash"`
	Routing    RoutingConfig    `mapstructure:",squash"`
}

// UpstreamURL 返回解析后的上游地址（假定 Validate 已经通过）。
func (c *Config) UpstreamURL() *url.URL {
	parsed, err := url.Parse(c.Global.Upstream)
	if err != nil {
		return nil
	}
	return parsed
}

// DefaultManifest 复刻原始 worker 的预缓存清单。
func DefaultManifest() []string {
	return []string{
		"/",
		"/static/css/main.css",
		"/static/js/main.js",
		"/manifest.json",
		"https://fonts.googleapis.com/css2?family=Inter:wght@400;600;700;800;900&display=swap",
	}
}

// DefaultStaticExtensions 是走 cache-first 的静态资源扩展名。
func DefaultStaticExtensions() []string {
	return []string{"css", "js", "woff2", "woff"}
}
