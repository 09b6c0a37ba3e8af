package batch

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DefaultSchedule 每天03:00，带秒字段
const DefaultSchedule = "0 0 3 * * *"

// Scheduler 按 cron 表达式运行批处理，上一轮未结束时跳过本轮
type Scheduler struct {
	cron     *cron.Cron
	runner   *Runner
	schedule string
}

// NewScheduler 创建调度器
func NewScheduler(runner *Runner, schedule string) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	logger := cron.PrintfLogger(logrus.StandardLogger())
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		runner:   runner,
		schedule: schedule,
	}
}

// Start 注册任务并启动，ctx 取消后正在运行的批处理也会停止
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.runner.RunNightlyBatch(ctx); err != nil {
			logrus.Errorf("夜间批量分析中断: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid batch schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	logrus.Infof("批处理调度已启动: %s", s.schedule)
	return nil
}

// Stop 停止调度并等待正在运行的任务结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	logrus.Info("批处理调度已停止")
}
