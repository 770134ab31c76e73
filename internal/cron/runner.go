package cronrunner

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"sashi-calendar/backend/internal/dto"
	"sashi-calendar/backend/pkg/redis"
)

// Runner 带秒级表达式的定时任务调度器
// 同一任务上一轮未结束时跳过本轮
type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context
}

func New(logger *zap.Logger, baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := zapCronLogger{logger: logger.Named("cron")}
	return &Runner{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// zapCronLogger 让 cron 的调度日志和任务 panic 进入 zap
type zapCronLogger struct {
	logger *zap.Logger
}

// Info cron 的调度明细较多，降到 Debug
func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}

func (r *Runner) Add(spec string, job func(context.Context)) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() {
		job(r.baseCtx)
	})
}

func (r *Runner) Start() {
	r.logger.Info("cron started", zap.Int("entries", len(r.cron.Entries())))
	r.cron.Start()
}

func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("cron stopped")
}

// RunOnChanges 收到指定类型的变更通知时立即执行一次 job，ch 关闭后返回
func (r *Runner) RunOnChanges(ch <-chan redis.SeriesChange, job func(context.Context), types ...string) {
	want := make(map[string]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	for change := range ch {
		if len(want) > 0 && !want[change.Type] {
			continue
		}
		r.logger.Debug("变更通知触发任务",
			zap.String("type", change.Type),
			zap.Strings("series_ids", change.SeriesIDs),
		)
		job(r.baseCtx)
	}
}

// ConsistencyChecker 同族系列重叠巡检
type ConsistencyChecker interface {
	CheckConsistency(ctx context.Context) ([]dto.OverlapResponse, error)
}

// reconcileTimeout 单轮巡检超时
const reconcileTimeout = 2 * time.Minute

// ReconcileJob 周期巡检同族系列的日期区间重叠
// 重叠只记录告警，由人工或后续修改处理，不自动修复
func ReconcileJob(checker ConsistencyChecker, logger *zap.Logger) func(context.Context) {
	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, reconcileTimeout)
		defer cancel()

		start := time.Now()
		overlaps, err := checker.CheckConsistency(ctx)
		if err != nil {
			logger.Error("系列重叠巡检失败", zap.Error(err))
			return
		}
		// 每条重叠的明细告警由 CheckConsistency 输出，这里只记汇总
		logger.Info("系列重叠巡检完成",
			zap.Int("overlaps", len(overlaps)),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}
