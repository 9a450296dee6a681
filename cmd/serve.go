package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/cobra"

	"ai-interviewer/internal/api/handler"
	"ai-interviewer/internal/api/router"
	"ai-interviewer/internal/config"
	"ai-interviewer/internal/feeds"
	"ai-interviewer/internal/outbox"
	"ai-interviewer/internal/tracing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, outbox relay, job feed scheduler and ingest consumer",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(parent context.Context) error {
	cfg, logCloser, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeQuietly(logCloser)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	shutdownTracing, err := tracing.InitProvider(ctx, tracing.ProviderConfig{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Version:     version,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("初始化链路追踪失败: %w", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			hlog.Warnf("关闭链路追踪失败: %v", err)
		}
	}()

	svc, err := bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()
	hlog.Info("存储服务初始化成功")

	// 发件箱中继：MySQL -> RabbitMQ
	var relay *outbox.MessageRelay
	if svc.storage.MySQL != nil && svc.storage.RabbitMQ != nil {
		relay = outbox.NewMessageRelay(svc.storage.MySQL.DB(), svc.storage.RabbitMQ,
			outbox.WithPollingInterval(config.GetDuration(cfg.Outbox.PollingInterval, 5*time.Second)),
			outbox.WithBatchSize(cfg.Outbox.BatchSize),
			outbox.WithMaxRetries(cfg.Outbox.MaxRetries),
		)
		relay.Start(ctx)
		hlog.Info("消息中继服务已启动")
	}

	// 岗位入库消费者
	var consumerDone <-chan struct{}
	if svc.storage.RabbitMQ != nil {
		consumerDone, err = svc.storage.RabbitMQ.StartConsumer(ctx, cfg.RabbitMQ.JobIngestQueue,
			cfg.RabbitMQ.PrefetchCount, cfg.RabbitMQ.IngestConsumerWorker, svc.feeds.HandleMessage)
		if err != nil {
			return fmt.Errorf("启动岗位入库消费者失败: %w", err)
		}
		hlog.Infof("岗位入库消费者已启动，队列: %s", cfg.RabbitMQ.JobIngestQueue)
	}

	// 定时抓取岗位
	var scheduler *feeds.Scheduler
	if cfg.Feeds.Schedule != "" {
		var opts []feeds.SchedulerOption
		if svc.storage.Redis != nil {
			opts = append(opts, feeds.WithRunLock(svc.storage.Redis, 30*time.Minute))
		}
		scheduler, err = feeds.NewScheduler(svc.feeds, cfg.Feeds.Schedule, cfg.Feeds.Sources, cfg.Feeds.MusePages, opts...)
		if err != nil {
			return fmt.Errorf("解析岗位抓取计划失败: %w", err)
		}
		scheduler.Start(ctx)
		hlog.Infof("岗位抓取计划已启用: %s", cfg.Feeds.Schedule)
	}

	tracer, tracerCfg := hertztracing.NewServerTracer()
	h := server.Default(
		tracer,
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
		server.WithMaxRequestBodySize(cfg.Server.MaxUploadMB<<20),
	)
	h.Use(hertztracing.ServerMiddleware(tracerCfg))
	h.Use(func(c context.Context, ctx *app.RequestContext) {
		start := time.Now()
		ctx.Next(c)
		hlog.CtxInfof(c, "%s %s -> %d (%s)", ctx.Method(), ctx.Path(), ctx.Response.StatusCode(), time.Since(start))
	})

	router.RegisterRoutes(h, router.Handlers{
		Interview: handler.NewInterviewHandler(svc.store, svc.controller, svc.evaluator, svc.analyzer, svc.interviewOptions()...),
		Jobs:      handler.NewJobHandler(svc.engine, svc.feeds, cfg.Matching.DefaultTopK),
		Resume:    svc.resumeHandler(),
	})
	hlog.Info("HTTP路由注册成功")

	go func() {
		hlog.Infof("HTTP 服务器启动中，监听地址: %s", cfg.Server.Address)
		if err := h.Run(); err != nil {
			hlog.Errorf("HTTP服务器退出: %v", err)
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		hlog.Info("接收到终止信号，正在优雅退出...")
	case <-ctx.Done():
	}

	if scheduler != nil {
		scheduler.Stop()
	}
	if relay != nil {
		relay.Stop()
		hlog.Info("消息中继服务已停止")
	}
	cancel()
	if consumerDone != nil {
		<-consumerDone
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(),
		config.GetDuration(cfg.Server.ShutdownTimeout, 5*time.Second))
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("服务器关闭失败: %w", err)
	}
	hlog.Info("优雅退出完成")
	return nil
}
