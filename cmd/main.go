package main

import (
	"context"
	"crypto/subtle"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	hertzconfig "github.com/cloudwego/hertz/pkg/common/config"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"

	"screening-agent-go/internal/analyzer"
	"screening-agent-go/internal/api/handler"
	"screening-agent-go/internal/api/router"
	"screening-agent-go/internal/cache"
	"screening-agent-go/internal/config"
	"screening-agent-go/internal/ingest"
	appLogger "screening-agent-go/internal/logger"
	"screening-agent-go/internal/storage"
	"screening-agent-go/internal/tracing"
)

var serviceName = "screening-agent-go" //nolint:gochecknoglobals

func main() {
	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "internal/config/config.yaml", "配置文件路径")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	initLogger(cfg)
	glog.Info("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Tracing.Enabled {
		shutdownTracer, err := tracing.InitTracerProvider(ctx, serviceName, cfg.Tracing.OTLPEndpoint)
		if err != nil {
			glog.Fatalf("初始化链路追踪失败: %v", err)
		}
		defer func() {
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelShutdown()
			if err := shutdownTracer(shutdownCtx); err != nil {
				glog.Warnf("关闭链路追踪失败: %v", err)
			}
		}()
		glog.Info("链路追踪初始化成功")
	}

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		glog.Fatalf("初始化存储失败: %v", err)
	}
	defer storageManager.Close()
	glog.Info("存储服务初始化成功")

	var analyzerLogger *log.Logger
	if cfg.Logger.Level == "debug" {
		analyzerLogger = log.New(os.Stderr, "[Analyzer] ", log.LstdFlags|log.Lshortfile)
	} else {
		analyzerLogger = log.New(io.Discard, "", 0)
	}
	analyzerOptions := []analyzer.AnalyzerOption{
		analyzer.WithAnalyzerLogger(analyzerLogger),
	}
	if cfg.Analyzer.APIToken != "" {
		analyzerOptions = append(analyzerOptions, analyzer.WithAPIToken(cfg.Analyzer.APIToken))
	}
	if cfg.Analyzer.TimeoutSeconds > 0 {
		analyzerOptions = append(analyzerOptions, analyzer.WithTimeout(time.Duration(cfg.Analyzer.TimeoutSeconds)*time.Second))
	}
	webhookAnalyzer := analyzer.NewWebhookAnalyzer(cfg.Analyzer.WebhookURL, analyzerOptions...)
	glog.Info("分析服务客户端初始化成功")

	orchestrator := ingest.NewOrchestrator(webhookAnalyzer, storageManager.MySQL, appLogger.Logger)
	caches := cache.NewRegistry(storageManager.MySQL, appLogger.Logger)
	screeningHandler := handler.NewScreeningHandler(cfg, storageManager, storageManager.MySQL, orchestrator, caches)
	glog.Info("ScreeningHandler初始化成功")

	serverOptions := []hertzconfig.Option{
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
	}

	var tracingCfg *hertztracing.Config
	if cfg.Tracing.Enabled {
		var tracer hertzconfig.Option
		tracer, tracingCfg = hertztracing.NewServerTracer()
		serverOptions = append(serverOptions, tracer)
	}

	h := server.New(serverOptions...)

	if tracingCfg != nil {
		h.Use(hertztracing.ServerMiddleware(tracingCfg))
	}

	h.Use(func(c context.Context, ctx *app.RequestContext) {
		glog.CtxInfof(c, "Request: %s %s", string(ctx.Method()), string(ctx.Path()))
		ctx.Next(c)
		glog.CtxInfof(c, "Response: status %d", ctx.Response.StatusCode())
	})

	if cfg.Server.APIKey != "" {
		h.Use(keyauth.New(
			keyauth.WithKeyLookUp("header:X-API-Key", ""),
			keyauth.WithValidator(func(c context.Context, ctx *app.RequestContext, key string) (bool, error) {
				return subtle.ConstantTimeCompare([]byte(key), []byte(cfg.Server.APIKey)) == 1, nil
			}),
			keyauth.WithErrorHandler(func(c context.Context, ctx *app.RequestContext, err error) {
				ctx.AbortWithStatusJSON(consts.StatusUnauthorized, utils.H{"error": "无效的API密钥"})
			}),
		))
		glog.Info("API密钥认证已启用")
	}

	router.RegisterRoutes(h, screeningHandler)
	glog.Info("HTTP路由注册成功")

	glog.Infof("HTTP 服务器启动中，监听地址: %s", cfg.Server.Address)

	go func() {
		if err := h.Run(); err != nil {
			glog.Fatalf("启动HTTP服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Info("接收到终止信号，正在优雅退出...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		glog.Fatalf("服务器关闭失败: %v", err)
	}
	glog.Info("优雅退出完成")
}

func initLogger(cfg *config.Config) {
	appLogger.Init(cfg.Logger)

	// Hertz 的 hlog 也走同一个 zerolog 实例
	glog.SetLogger(hertzadapter.From(appLogger.Logger))
	if cfg.Logger.Level == "debug" {
		glog.SetLevel(glog.LevelDebug)
	} else {
		glog.SetLevel(glog.LevelInfo)
	}
}
