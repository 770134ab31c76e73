package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"sashi-calendar/backend/config"
	"sashi-calendar/backend/internal/api/handler"
	"sashi-calendar/backend/internal/api/router"
	cronrunner "sashi-calendar/backend/internal/cron"
	"sashi-calendar/backend/internal/repository"
	"sashi-calendar/backend/internal/service"
	"sashi-calendar/backend/pkg/database"
	"sashi-calendar/backend/pkg/jwt"
	applogger "sashi-calendar/backend/pkg/logger"
	"sashi-calendar/backend/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（默认查找 ./config/config.yaml）")
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
		zap.String("timezone", cfg.Calendar.Timezone),
		zap.Bool("auth_enabled", cfg.Auth.Enabled),
	)

	// 3. 连接数据库
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	logger.Info("数据库连接成功")

	// 3.1 执行数据库迁移
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 4. 连接 Redis（可选：连接失败时降级运行，不中断启动）
	rdb, err := redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis 连接失败，变更通知、限流与 Token 吊销将不可用", zap.Error(err))
		rdb = nil
	}
	// 接口变量只在 rdb 非 nil 时赋值
	var (
		publisher service.ChangePublisher
		revoker   handler.TokenRevoker
	)
	if rdb != nil {
		publisher, revoker = rdb, rdb
	}

	// 5. 初始化 JWT 管理器
	jwtMgr := jwt.NewManager(&cfg.Auth)

	// 6. 依赖注入: Repository → Service → Handler
	repo := repository.NewRepository(db)
	svc := service.NewService(cfg, repo, publisher, logger)
	h := handler.NewHandler(svc, revoker, cfg.Calendar.Location())

	// 7. 初始化路由
	engine := router.Setup(cfg, h, jwtMgr, rdb, logger)

	// 8. 定时巡检同族系列重叠
	rootCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	runner := cronrunner.New(logger, rootCtx)
	if cfg.Reconcile.Enabled {
		reconcile := cronrunner.ReconcileJob(svc.Event, logger)
		if _, err := runner.Add(cfg.Reconcile.Cron, reconcile); err != nil {
			logger.Fatal("巡检任务注册失败", zap.String("cron", cfg.Reconcile.Cron), zap.Error(err))
		}
		// 拆分后立即巡检一次，不必等下个周期
		if rdb != nil {
			changes, err := rdb.SubscribeSeriesChanges(rootCtx)
			if err != nil {
				logger.Warn("订阅变更通知失败，仅按周期巡检", zap.Error(err))
			} else {
				go runner.RunOnChanges(changes, reconcile, "split")
			}
		}
	}
	runner.Start()

	// 9. 启动 HTTP 服务器（优雅关闭）
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器异常", zap.Error(err))
		}
	}()

	// 10. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	stopBackground()
	runner.Stop()

	if sqlDB != nil {
		sqlDB.Close()
	}
	if rdb != nil {
		rdb.Close()
	}

	logger.Info("服务器已关闭")
}
