package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/offline-hub/offline-hub/internal/config"
	"github.com/offline-hub/offline-hub/internal/generation"
	"github.com/offline-hub/offline-hub/internal/logging"
)

func newOriginServer(t *testing.T, failing string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == failing {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("origin " + r.URL.Path))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func loadWorkerConfig(t *testing.T, upstream, driver string) *config.Config {
	t.Helper()
	path := writeConfigFile(t, fmt.Sprintf(`
Upstream = "%s"
StorageDriver = "%s"
StoragePath = "%s"
Generation = "v2"
Manifest = ["/", "/static/css/main.css", "/static/js/main.js"]
`, upstream, driver, t.TempDir()))
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	return cfg
}

func TestBuildWorkerServesPrecachedShellOffline(t *testing.T) {
	origin := newOriginServer(t, "")
	cfg := loadWorkerConfig(t, origin.URL, "sqlite")

	w, err := buildWorker(context.Background(), cfg, logging.Discard())
	if err != nil {
		t.Fatalf("buildWorker 返回错误: %v", err)
	}
	defer w.close(logging.Discard())

	if !w.manager.Ready() {
		t.Fatalf("安装与激活后应就绪")
	}
	origin.Close()

	req := httptest.NewRequest("GET", "/static/js/main.js", nil)
	resp, err := w.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "origin /static/js/main.js" {
		t.Fatalf("离线时应命中预缓存资源，得到 %d %q", resp.StatusCode, body)
	}

	resp, err = w.app.Test(httptest.NewRequest("GET", "/-/status", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"palace-static-v2"`) {
		t.Fatalf("诊断接口应包含当前 STATIC 存储名: %s", body)
	}
}

func TestBuildWorkerFailsWhenManifestEntryFails(t *testing.T) {
	origin := newOriginServer(t, "/static/js/main.js")
	cfg := loadWorkerConfig(t, origin.URL, "disk")

	_, err := buildWorker(context.Background(), cfg, logging.Discard())
	if err == nil {
		t.Fatalf("清单资源失败时安装应失败")
	}
	var bootstrapErr *generation.BootstrapError
	if !errors.As(err, &bootstrapErr) {
		t.Fatalf("应返回 BootstrapError，得到 %v", err)
	}
}
