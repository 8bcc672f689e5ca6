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

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/any-hub/proxycache/internal/cache"
	"github.com/any-hub/proxycache/internal/config"
	"github.com/any-hub/proxycache/internal/logging"
	"github.com/any-hub/proxycache/internal/origin"
	"github.com/any-hub/proxycache/internal/proxy"
	"github.com/any-hub/proxycache/internal/server"
	"github.com/any-hub/proxycache/internal/server/routes"
	"github.com/any-hub/proxycache/internal/version"
)

const (
	configEnvVar      = "PROXYCACHE_CONFIG"
	defaultConfigPath = "config.toml"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath     string
	configExplicit bool
	checkOnly      bool
	showVersion    bool
	listenHost     string
	listenPort     string
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, opts)
	stop()
	os.Exit(code)
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(ctx context.Context, opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}
	defer func() { _ = logging.Close(logger) }()

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["listen"] = cfg.Global.ListenAddress()
		fields["storage_path"] = cfg.Global.StoragePath
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序：配置 → 磁盘缓存 → 回源器 → 编排器 → 监听，保证所有连接共享同一缓存实例。
	store, err := cache.NewStore(cfg.Global.StoragePath, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存目录失败: %v\n", err)
		return 1
	}

	fetcher := origin.NewFetcher(origin.OptionsFromConfig(cfg))
	handler := proxy.NewHandler(fetcher, logger, store)

	listener, err := server.NewListener(server.ListenerOptions{
		Logger:     logger,
		Proxy:      handler,
		BufferSize: cfg.Global.ClientBufferSize,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "构建监听器失败: %v\n", err)
		return 1
	}
	if err := listener.Listen(cfg.Global.ListenAddress()); err != nil {
		fmt.Fprintf(stdErr, "监听端口失败: %v\n", err)
		return 1
	}

	group, groupCtx := errgroup.WithContext(ctx)
	if cfg.Global.AdminEnabled() {
		serveAdmin, err := prepareAdmin(cfg, store, handler.Stats(), logger)
		if err != nil {
			_ = listener.Close()
			fmt.Fprintf(stdErr, "诊断服务启动失败: %v\n", err)
			return 1
		}
		group.Go(func() error { return serveAdmin(groupCtx) })
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen"] = cfg.Global.ListenAddress()
	fields["storage_path"] = store.Root()
	fields["origin_port"] = cfg.Global.OriginPort
	fields["admin_enabled"] = cfg.Global.AdminEnabled()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	// 任一服务异常退出都会取消 groupCtx，从而带停另一个服务。
	group.Go(func() error { return listener.Serve(groupCtx) })
	if err := group.Wait(); err != nil {
		fmt.Fprintf(stdErr, "代理服务异常退出: %v\n", err)
		return 1
	}

	logger.WithFields(logrus.Fields{
		"action": "shutdown",
		"stats":  handler.Stats().Snapshot(),
	}).Info("代理服务已停止")
	return 0
}

// loadConfig 显式指定的配置文件必须存在；默认路径缺失时退回默认值。
// 位置参数 host/port 覆盖配置文件中的监听地址。
func loadConfig(opts cliOptions) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configExplicit {
		cfg, err = config.Load(opts.configPath)
	} else {
		cfg, err = config.LoadOptional(opts.configPath)
	}
	if err != nil {
		return nil, err
	}
	if opts.listenHost == "" && opts.listenPort == "" {
		return cfg, nil
	}
	if err := cfg.OverrideListen(opts.listenHost, opts.listenPort); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("proxycache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 PROXYCACHE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	opts := cliOptions{
		checkOnly:   checkOnly,
		showVersion: showVer,
	}

	switch rest := fs.Args(); len(rest) {
	case 0:
	case 2:
		opts.listenHost = rest[0]
		opts.listenPort = rest[1]
	default:
		return cliOptions{}, errors.New("解析参数失败: 位置参数必须为 <host> <port>")
	}

	path := os.Getenv(configEnvVar)
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = defaultConfigPath
	} else {
		opts.configExplicit = true
	}
	opts.configPath = path

	return opts, nil
}

// prepareAdmin 先绑定诊断端口，返回的函数在 ctx 取消前阻塞提供服务。
func prepareAdmin(cfg *config.Config, store cache.Store, stats routes.StatsSource, logger *logrus.Logger) (func(context.Context) error, error) {
	app, err := server.NewAdminApp(server.AdminOptions{Logger: logger})
	if err != nil {
		return nil, err
	}
	routes.RegisterDiagnosticsRoutes(app, store, stats)

	ln, err := server.ListenAdmin(cfg.Global.AdminAddress())
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		return server.ServeAdmin(ctx, app, ln, logger)
	}, nil
}
