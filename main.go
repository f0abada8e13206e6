package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/offline-hub/offline-hub/internal/bootstrap"
	"github.com/offline-hub/offline-hub/internal/cache"
	"github.com/offline-hub/offline-hub/internal/config"
	"github.com/offline-hub/offline-hub/internal/generation"
	"github.com/offline-hub/offline-hub/internal/logging"
	"github.com/offline-hub/offline-hub/internal/network"
	"github.com/offline-hub/offline-hub/internal/proxy"
	"github.com/offline-hub/offline-hub/internal/server"
	"github.com/offline-hub/offline-hub/internal/server/routes"
	"github.com/offline-hub/offline-hub/internal/strategy"
	"github.com/offline-hub/offline-hub/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

const shutdownTimeout = 10 * time.Second

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["generation"] = cfg.Generation.Generation
		fields["manifest"] = len(cfg.Generation.Manifest)
		fields["storage_driver"] = cfg.Global.StorageDriver
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 启动遵循“配置 → 存储注册表 → install → activate → Fiber server”顺序，
	// 安装失败时不监听端口，由外部进程管理器负责重试。
	w, err := buildWorker(ctx, cfg, logger)
	if err != nil {
		var bootstrapErr *generation.BootstrapError
		if errors.As(err, &bootstrapErr) {
			fmt.Fprintf(stdErr, "安装失败: %v\n", err)
		} else {
			fmt.Fprintf(stdErr, "初始化失败: %v\n", err)
		}
		return 1
	}
	defer w.close(logger)

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["generation"] = cfg.Generation.Generation
	fields["storage_driver"] = cfg.Global.StorageDriver
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := serve(ctx, w.app, cfg.Global.ListenPort, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("offline-hub", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 OFFLINE_HUB_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("OFFLINE_HUB_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

// worker 聚合一次部署（一代）的运行时对象。
type worker struct {
	registry cache.Registry
	manager  *generation.Manager
	executor *strategy.Executor
	app      *fiber.App
}

func buildWorker(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*worker, error) {
	registry, err := cache.NewRegistry(cfg.Global.StorageDriver, cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("初始化存储失败: %w", err)
	}

	fetcher := network.NewHTTPFetcher(server.NewUpstreamClient(cfg))
	populator := bootstrap.New(bootstrap.Options{
		Fetcher:     fetcher,
		Base:        cfg.UpstreamURL(),
		Manifest:    cfg.Generation.Manifest,
		Concurrency: cfg.Generation.BootstrapConcurrency,
		Logger:      logger,
	})
	names := generation.NewNames(cfg.Generation.Namespace, cfg.Generation.Generation)
	manager := generation.NewManager(registry, names, populator, logger)

	if err := manager.Install(ctx); err != nil {
		_ = registry.Close()
		return nil, err
	}
	if _, err := manager.Activate(ctx); err != nil {
		_ = registry.Close()
		return nil, err
	}

	executor, err := strategy.NewExecutor(strategy.Options{
		Classifier: strategy.NewClassifier(cfg.Routing),
		Static:     manager.Static(),
		Runtime:    manager.Runtime(),
		Network:    fetcher,
		Logger:     logger,
	})
	if err != nil {
		_ = registry.Close()
		return nil, err
	}

	handler := proxy.NewHandler(proxy.Options{
		Executor:  executor,
		Forwarder: fetcher,
		Upstream:  cfg.UpstreamURL(),
		Logger:    logger,
	})
	app, err := server.NewApp(server.AppOptions{
		Logger: logger,
		Gate:   manager,
		Proxy:  handler,
	})
	if err != nil {
		_ = registry.Close()
		return nil, err
	}
	routes.RegisterStatusRoutes(app, manager)

	return &worker{registry: registry, manager: manager, executor: executor, app: app}, nil
}

// close 等待后台写入结束后再关闭存储。
func (w *worker) close(logger *logrus.Logger) {
	w.executor.Wait()
	if err := w.registry.Close(); err != nil {
		logger.WithFields(logrus.Fields{"action": "shutdown"}).WithError(err).Warn("registry_close_failed")
	}
}

func serve(ctx context.Context, app *fiber.App, port int, logger *logrus.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"action": "listen",
			"port":   port,
		}).Info("Fiber 服务启动")
		errCh <- app.Listen(fmt.Sprintf(":%d", port), fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.WithFields(logrus.Fields{"action": "shutdown"}).Info("Fiber 服务关闭")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return app.ShutdownWithContext(shutdownCtx)
}
