// Package batch 夜间批量分析：全局预算、分组节流、单个对象失败不影响整体。
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"roboadvisor/pkg/config"
	"roboadvisor/pkg/models"
)

// MaxReportedErrors 汇总中保留的错误条数
const MaxReportedErrors = 20

// Source 批处理读取的数据
type Source interface {
	UserIDsWithHoldings(ctx context.Context) ([]uint, error)
	UserIDsWithWatchlist(ctx context.Context) ([]uint, error)
	ListHoldings(ctx context.Context, userID uint) ([]models.PortfolioHolding, error)
	ListWatchlist(ctx context.Context, userID uint) ([]models.WatchlistItem, error)
	HasRecentHoldingAnalysis(ctx context.Context, userID uint, holdingIDs []uint, since time.Time) (bool, error)
	HasRecentWatchlistAnalysis(ctx context.Context, userID, itemID uint, since time.Time) (bool, error)
}

// Analyzer 一次调用即一次模型请求
type Analyzer interface {
	RefreshPortfolio(ctx context.Context, userID uint, holdings []models.PortfolioHolding) error
	RefreshWatchlistItem(ctx context.Context, userID uint, item *models.WatchlistItem) error
}

// Reporter 批处理结束后的通知
type Reporter interface {
	SendBatchSummary(summary *BatchSummary) error
}

// Sleeper 可取消的等待
type Sleeper func(ctx context.Context, d time.Duration) error

// PhaseStats 单个阶段的计数
type PhaseStats struct {
	Successful  int `json:"successful"`
	Skipped     int `json:"skipped"`
	Failed      int `json:"failed"`
	Unprocessed int `json:"unprocessed"`
}

// BatchSummary 一次批处理的汇总
type BatchSummary struct {
	RunID         string     `json:"run_id"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    time.Time  `json:"finished_at"`
	TotalAnalyses int        `json:"total_analyses"`
	MaxAnalyses   int        `json:"max_analyses"`
	Portfolio     PhaseStats `json:"portfolio"`
	Watchlist     PhaseStats `json:"watchlist"`
	Errors        []string   `json:"errors"`
	TotalErrors   int        `json:"total_errors"`
}

// BudgetExhausted 是否达到全局上限
func (s *BatchSummary) BudgetExhausted() bool {
	return s.TotalAnalyses >= s.MaxAnalyses
}

func (s *BatchSummary) addError(msg string) {
	s.TotalErrors++
	if len(s.Errors) < MaxReportedErrors {
		s.Errors = append(s.Errors, msg)
	}
}

// Runner 夜间批处理
type Runner struct {
	source   Source
	analyzer Analyzer
	reporter Reporter
	cfg      config.BatchConfig
	sleep    Sleeper
	now      func() time.Time
}

// NewRunner 创建批处理；reporter 可为 nil
func NewRunner(source Source, analyzer Analyzer, reporter Reporter, cfg config.BatchConfig) *Runner {
	if cfg.Size <= 0 {
		cfg.Size = 10
	}
	return &Runner{
		source:   source,
		analyzer: analyzer,
		reporter: reporter,
		cfg:      cfg,
		sleep:    SleepContext,
		now:      time.Now,
	}
}

// WithSleeper 替换等待实现
func (r *Runner) WithSleeper(sleep Sleeper) *Runner {
	r.sleep = sleep
	return r
}

// WithClock 替换时钟
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// SleepContext 等待 d，ctx 取消时提前返回
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type portfolioSubject struct {
	userID   uint
	holdings []models.PortfolioHolding
}

type watchlistSubject struct {
	userID uint
	item   models.WatchlistItem
}

// run 一次批处理的运行状态
type run struct {
	*Runner
	summary *BatchSummary
	since   time.Time
	pending time.Duration
}

// RunNightlyBatch 先分析组合再分析自选，只在基础设施故障或取消时返回错误
func (r *Runner) RunNightlyBatch(ctx context.Context) (*BatchSummary, error) {
	started := r.now().UTC()
	state := &run{
		Runner: r,
		summary: &BatchSummary{
			RunID:       uuid.New().String(),
			StartedAt:   started,
			MaxAnalyses: r.cfg.MaxAnalyses,
			Errors:      []string{},
		},
		since: started.Add(-r.cfg.SkipRecent),
	}
	logger := logrus.WithField("runID", state.summary.RunID)
	logger.WithFields(logrus.Fields{
		"maxAnalyses": r.cfg.MaxAnalyses,
		"batchSize":   r.cfg.Size,
	}).Info("夜间批量分析开始")

	err := state.execute(ctx)
	state.summary.FinishedAt = r.now().UTC()
	state.log(logger)

	if r.reporter != nil {
		if sendErr := r.reporter.SendBatchSummary(state.summary); sendErr != nil {
			logger.Warnf("发送批处理汇总失败: %v", sendErr)
		}
	}
	return state.summary, err
}

func (s *run) execute(ctx context.Context) error {
	portfolios, err := s.portfolioSubjects(ctx)
	if err != nil {
		return err
	}
	if err := s.runPortfolios(ctx, portfolios); err != nil {
		return err
	}

	items, err := s.watchlistSubjects(ctx)
	if err != nil {
		return err
	}
	return s.runWatchlist(ctx, items)
}

func (s *run) portfolioSubjects(ctx context.Context) ([]portfolioSubject, error) {
	userIDs, err := s.source.UserIDsWithHoldings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users with holdings: %w", err)
	}
	subjects := make([]portfolioSubject, 0, len(userIDs))
	for _, userID := range userIDs {
		holdings, err := s.source.ListHoldings(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("list holdings of user %d: %w", userID, err)
		}
		if len(holdings) == 0 {
			continue
		}
		subjects = append(subjects, portfolioSubject{userID: userID, holdings: holdings})
	}
	return subjects, nil
}

func (s *run) watchlistSubjects(ctx context.Context) ([]watchlistSubject, error) {
	userIDs, err := s.source.UserIDsWithWatchlist(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users with watchlist: %w", err)
	}
	var subjects []watchlistSubject
	for _, userID := range userIDs {
		items, err := s.source.ListWatchlist(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("list watchlist of user %d: %w", userID, err)
		}
		for _, item := range items {
			subjects = append(subjects, watchlistSubject{userID: userID, item: item})
		}
	}
	return subjects, nil
}

func (s *run) runPortfolios(ctx context.Context, subjects []portfolioSubject) error {
	stats := &s.summary.Portfolio
	for i, subject := range subjects {
		if i > 0 && i%s.cfg.Size == 0 {
			s.groupBoundary()
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.summary.BudgetExhausted() {
			stats.Unprocessed += len(subjects) - i
			logrus.Warnf("已达到每日分析上限 %d，剩余 %d 个组合未处理", s.cfg.MaxAnalyses, len(subjects)-i)
			return nil
		}

		ids := make([]uint, len(subject.holdings))
		for j := range subject.holdings {
			ids[j] = subject.holdings[j].ID
		}
		fresh, err := s.source.HasRecentHoldingAnalysis(ctx, subject.userID, ids, s.since)
		if err != nil {
			stats.Failed++
			s.subjectError(fmt.Sprintf("user %d: check recent analysis: %v", subject.userID, err))
			continue
		}
		if fresh {
			stats.Skipped++
			logrus.Debugf("用户 %d 的组合最近已分析，跳过", subject.userID)
			continue
		}

		if err := s.beforeCall(ctx); err != nil {
			return err
		}
		err = s.analyzer.RefreshPortfolio(ctx, subject.userID, subject.holdings)
		s.markCalled()
		if err != nil {
			stats.Failed++
			s.subjectError(fmt.Sprintf("user %d: %v", subject.userID, err))
			continue
		}
		// 只有成功的分析计入每日上限
		s.summary.TotalAnalyses++
		stats.Successful++
		logrus.Infof("用户 %d 的组合分析完成 (%d 个持仓)", subject.userID, len(subject.holdings))
	}
	s.groupBoundary()
	return nil
}

func (s *run) runWatchlist(ctx context.Context, subjects []watchlistSubject) error {
	stats := &s.summary.Watchlist
	for i := range subjects {
		subject := &subjects[i]
		if i > 0 && i%s.cfg.Size == 0 {
			s.groupBoundary()
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.summary.BudgetExhausted() {
			stats.Unprocessed += len(subjects) - i
			logrus.Warnf("已达到每日分析上限 %d，剩余 %d 个自选未处理", s.cfg.MaxAnalyses, len(subjects)-i)
			return nil
		}

		fresh, err := s.source.HasRecentWatchlistAnalysis(ctx, subject.userID, subject.item.ID, s.since)
		if err != nil {
			stats.Failed++
			s.subjectError(fmt.Sprintf("watchlist item %d: check recent analysis: %v", subject.item.ID, err))
			continue
		}
		if fresh {
			stats.Skipped++
			continue
		}

		if err := s.beforeCall(ctx); err != nil {
			return err
		}
		err = s.analyzer.RefreshWatchlistItem(ctx, subject.userID, &subject.item)
		s.markCalled()
		if err != nil {
			stats.Failed++
			s.subjectError(fmt.Sprintf("watchlist item %d: %v", subject.item.ID, err))
			continue
		}
		s.summary.TotalAnalyses++
		stats.Successful++
	}
	return nil
}

// beforeCall 与上一次模型调用之间保持间隔，第一次调用前不等待
func (s *run) beforeCall(ctx context.Context) error {
	if s.pending <= 0 {
		return nil
	}
	wait := s.pending
	s.pending = 0
	return s.sleep(ctx, wait)
}

// groupBoundary 分组切换；只有之前有过调用才需要组间等待
func (s *run) groupBoundary() {
	if s.pending > 0 {
		s.pending = s.cfg.Delay
	}
}

func (s *run) subjectError(msg string) {
	logrus.WithField("runID", s.summary.RunID).Error(msg)
	s.summary.addError(msg)
}

func (s *run) markCalled() {
	s.pending = s.cfg.CallDelay
}

func (s *run) log(logger *logrus.Entry) {
	sum := s.summary
	logger.WithFields(logrus.Fields{
		"totalAnalyses":        sum.TotalAnalyses,
		"portfolioSuccessful":  sum.Portfolio.Successful,
		"portfolioSkipped":     sum.Portfolio.Skipped,
		"portfolioFailed":      sum.Portfolio.Failed,
		"portfolioUnprocessed": sum.Portfolio.Unprocessed,
		"watchlistSuccessful":  sum.Watchlist.Successful,
		"watchlistSkipped":     sum.Watchlist.Skipped,
		"watchlistFailed":      sum.Watchlist.Failed,
		"watchlistUnprocessed": sum.Watchlist.Unprocessed,
		"errors":               sum.TotalErrors,
		"duration":             sum.FinishedAt.Sub(sum.StartedAt).String(),
	}).Info("夜间批量分析结束")
}
