package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/save-hub/save-hub/internal/cache"
	"github.com/save-hub/save-hub/internal/cloudsync"
	"github.com/save-hub/save-hub/internal/config"
	"github.com/save-hub/save-hub/internal/logging"
	"github.com/save-hub/save-hub/internal/remote"
	"github.com/save-hub/save-hub/internal/remote/webdav"
	"github.com/save-hub/save-hub/internal/server"
	"github.com/save-hub/save-hub/internal/server/routes"
	"github.com/save-hub/save-hub/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
	testRemote  bool
	appID       uint
	list        bool
	push        string
	pull        string
	serve       bool
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
		fields["sync_enabled"] = cfg.CloudSync.Enabled
		fields["provider"] = cfg.CloudSync.Provider
		fields["auth_mode"] = cfg.CloudSync.AuthMode()
		fields["managed_apps"] = len(cfg.CloudSync.AppIDs)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	if opts.testRemote {
		return withRuntime(cfg, logger, testRemote)
	}

	if opts.list || opts.push != "" || opts.pull != "" {
		if opts.appID == 0 {
			fmt.Fprintln(stdErr, "缺少 -app：维护命令需要指定应用 ID")
			return 2
		}
		appID := uint32(opts.appID)
		return withRuntime(cfg, logger, func(rt *runtime) int {
			switch {
			case opts.list:
				return listEntries(rt, appID)
			case opts.push != "":
				return pushEntry(rt, appID, opts.push)
			default:
				return pullEntry(rt, appID, opts.pull)
			}
		})
	}

	if opts.appID != 0 {
		fmt.Fprintln(stdErr, "指定了 -app 但缺少 -list/-push/-pull")
		return 2
	}

	// 未指定其他动作时进入诊断服务模式。
	return serveDiagnostics(opts, cfg, logger)
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("save-hub", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var opts cliOptions
	fs.StringVar(&opts.configPath, "config", "", "配置文件路径（默认 ./config.toml，可被 SAVE_HUB_CONFIG 覆盖）")
	fs.BoolVar(&opts.checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&opts.showVersion, "version", false, "显示版本信息")
	fs.BoolVar(&opts.testRemote, "test-remote", false, "检查远端存储连通性后退出")
	fs.UintVar(&opts.appID, "app", 0, "应用 ID，配合 -list/-push/-pull 使用")
	fs.BoolVar(&opts.list, "list", false, "列出指定应用的本地缓存条目")
	fs.StringVar(&opts.push, "push", "", "同步上传指定条目后退出")
	fs.StringVar(&opts.pull, "pull", "", "从远端同步下载指定条目后退出")
	fs.BoolVar(&opts.serve, "serve", false, "启动诊断 HTTP 服务（默认行为）")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}
	if opts.appID > math.MaxUint32 {
		return cliOptions{}, fmt.Errorf("应用 ID 超出范围: %d", opts.appID)
	}
	if opts.serve && (opts.checkOnly || opts.testRemote || opts.list || opts.push != "" || opts.pull != "") {
		return cliOptions{}, errors.New("-serve 不能与其他动作同时使用")
	}

	path := os.Getenv("SAVE_HUB_CONFIG")
	if opts.configPath != "" {
		path = opts.configPath
	}
	if path == "" {
		path = "config.toml"
	}
	opts.configPath = path

	return opts, nil
}

// runtime 聚合一次 CLI 会话所需的同步组件。
type runtime struct {
	store  cache.Store
	syncer *cloudsync.Syncer
}

func (r *runtime) Close() {
	r.syncer.Close()
}

// buildRuntime 遵循“配置 → 本地缓存 → provider → 上传队列 → 编排器”的
// 顺序组装组件，CLI 维护命令与诊断服务共用同一套实例。
func buildRuntime(source config.Source, cfg *config.Config, logger *logrus.Logger) (*runtime, error) {
	cachePath := cfg.Global.CachePath
	if cachePath == "" {
		resolved, err := cache.DefaultBaseDir()
		if err != nil {
			return nil, fmt.Errorf("解析默认缓存目录失败: %w", err)
		}
		cachePath = resolved
	}

	store, err := cache.NewStore(cachePath)
	if err != nil {
		return nil, fmt.Errorf("初始化缓存目录失败: %w", err)
	}

	provider, err := remote.New(cfg.CloudSync.Provider, remote.Options{
		HTTPClient: webdav.NewHTTPClient(cfg.Global.RemoteTimeout.DurationValue()),
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("构建远端 provider 失败: %w", err)
	}

	uploader := cloudsync.NewUploader(cloudsync.UploaderOptions{
		Store:     store,
		Provider:  provider,
		Logger:    logger,
		Workers:   cfg.Global.UploadWorkers,
		QueueSize: cfg.Global.UploadQueueSize,
	})

	syncer, err := cloudsync.New(cloudsync.Options{
		Source:   source,
		Store:    store,
		Provider: provider,
		Uploader: uploader,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("构建同步编排器失败: %w", err)
	}

	return &runtime{store: store, syncer: syncer}, nil
}

func withRuntime(cfg *config.Config, logger *logrus.Logger, fn func(*runtime) int) int {
	rt, err := buildRuntime(config.NewStatic(cfg), cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "%v\n", err)
		return 1
	}
	defer rt.Close()
	return fn(rt)
}

func testRemote(rt *runtime) int {
	if err := rt.syncer.Ping(context.Background()); err != nil {
		fmt.Fprintf(stdErr, "远端连通性检查失败: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdOut, "远端连通性检查通过")
	return 0
}

func listEntries(rt *runtime, appID uint32) int {
	entries, err := rt.syncer.List(context.Background(), appID)
	if err != nil {
		fmt.Fprintf(stdErr, "枚举缓存条目失败: %v\n", err)
		return 1
	}
	for _, entry := range entries {
		fmt.Fprintf(stdOut, "%s\t%d\t%s\n", entry.Locator.Name, entry.SizeBytes, entry.ModTime.Format(time.RFC3339))
	}
	fmt.Fprintf(stdOut, "共 %d 个条目\n", len(entries))
	return 0
}

func pushEntry(rt *runtime, appID uint32, name string) int {
	if err := rt.syncer.Push(context.Background(), appID, name); err != nil {
		fmt.Fprintf(stdErr, "上传 %s 失败: %v\n", name, err)
		return 1
	}
	fmt.Fprintf(stdOut, "已上传 %s\n", name)
	return 0
}

func pullEntry(rt *runtime, appID uint32, name string) int {
	if err := rt.syncer.Pull(context.Background(), appID, name); err != nil {
		fmt.Fprintf(stdErr, "下载 %s 失败: %v\n", name, err)
		return 1
	}
	fmt.Fprintf(stdOut, "已下载 %s\n", name)
	return 0
}

// serveDiagnostics 启动只读诊断服务，配置变更通过 watcher 热生效。
func serveDiagnostics(opts cliOptions, cfg *config.Config, logger *logrus.Logger) int {
	port := cfg.Global.DiagnosticsPort
	if port <= 0 {
		fmt.Fprintln(stdErr, "诊断服务未启用：请配置 DiagnosticsPort")
		return 1
	}

	watcher, err := config.Watch(opts.configPath, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "监听配置失败: %v\n", err)
		return 1
	}

	rt, err := buildRuntime(watcher, cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "%v\n", err)
		return 1
	}
	defer rt.Close()

	fields := logging.BaseFields("startup", opts.configPath)
	fields["sync_enabled"] = cfg.CloudSync.Enabled
	fields["provider"] = cfg.CloudSync.Provider
	fields["auth_mode"] = cfg.CloudSync.AuthMode()
	fields["cache_dir"] = rt.store.BaseDir()
	fields["diagnostics_port"] = port
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	app, err := server.NewApp(server.AppOptions{Logger: logger})
	if err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	routes.RegisterStatusRoutes(app, logger, watcher, rt.syncer)

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("诊断服务启动")

	if err := app.Listen(fmt.Sprintf(":%d", port)); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}
