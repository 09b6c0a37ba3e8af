package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"roboadvisor/pkg/models"
)

// AssetHistoryLimit 单个资产历史接口的返回上限
const AssetHistoryLimit = 50

// HistorySummary 按资产聚合的历史摘要
type HistorySummary struct {
	AssetName          string                  `json:"asset_name"`
	AssetISIN          string                  `json:"asset_isin"`
	AssetTicker        string                  `json:"asset_ticker"`
	TotalAnalyses      int                     `json:"total_analyses"`
	LatestAnalysisDate time.Time               `json:"latest_analysis_date"`
	LatestAnalysis     *models.AnalysisHistory `json:"latest_analysis"`
}

// InsertHistory 在同一事务中写入多条历史记录
func (r *Repository) InsertHistory(ctx context.Context, records []models.AnalysisHistory) error {
	if len(records) == 0 {
		return nil
	}
	for i := range records {
		if err := records[i].ValidateSubject(); err != nil {
			return err
		}
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&records).Error; err != nil {
			return fmt.Errorf("insert analysis history: %w", err)
		}
		return nil
	})
}

// ListHoldingHistory 持仓的历史记录，新的在前；limit<=0 表示不限
func (r *Repository) ListHoldingHistory(ctx context.Context, userID, holdingID uint, limit int) ([]models.AnalysisHistory, error) {
	return r.listHistory(ctx, limit, "user_id = ? AND portfolio_holding_id = ?", userID, holdingID)
}

// ListWatchlistHistory 自选的历史记录，新的在前
func (r *Repository) ListWatchlistHistory(ctx context.Context, userID, itemID uint, limit int) ([]models.AnalysisHistory, error) {
	return r.listHistory(ctx, limit, "user_id = ? AND watchlist_item_id = ?", userID, itemID)
}

// ListAssetHistory 按ISIN和/或ticker查询，跨组合与自选
func (r *Repository) ListAssetHistory(ctx context.Context, userID uint, isin, ticker string) ([]models.AnalysisHistory, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if isin != "" {
		query = query.Where("asset_isin = ?", strings.ToUpper(isin))
	}
	if ticker != "" {
		query = query.Where("asset_ticker = ?", strings.ToUpper(ticker))
	}
	var records []models.AnalysisHistory
	err := query.Order("created_at DESC").Order("id DESC").Find(&records).Error
	return records, err
}

// SummarizeHistory 按 (名称, ISIN, ticker) 聚合
func (r *Repository) SummarizeHistory(ctx context.Context, userID uint) ([]HistorySummary, error) {
	type row struct {
		ID          uint
		AssetName   string
		AssetISIN   string
		AssetTicker string
		CreatedAt   time.Time
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&models.AnalysisHistory{}).
		Select("id, asset_name, asset_isin, asset_ticker, created_at").
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	// 行已按时间倒序，每组第一行即最新
	index := make(map[[3]string]int)
	var summaries []HistorySummary
	var latestIDs []uint
	for _, rw := range rows {
		key := [3]string{rw.AssetName, rw.AssetISIN, rw.AssetTicker}
		if i, ok := index[key]; ok {
			summaries[i].TotalAnalyses++
			continue
		}
		index[key] = len(summaries)
		summaries = append(summaries, HistorySummary{
			AssetName:          rw.AssetName,
			AssetISIN:          rw.AssetISIN,
			AssetTicker:        rw.AssetTicker,
			TotalAnalyses:      1,
			LatestAnalysisDate: rw.CreatedAt,
		})
		latestIDs = append(latestIDs, rw.ID)
	}
	if len(latestIDs) == 0 {
		return summaries, nil
	}

	var latest []models.AnalysisHistory
	if err := r.db.WithContext(ctx).Where("id IN ?", latestIDs).Find(&latest).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint]*models.AnalysisHistory, len(latest))
	for i := range latest {
		byID[latest[i].ID] = &latest[i]
	}
	for i, id := range latestIDs {
		summaries[i].LatestAnalysis = byID[id]
	}
	return summaries, nil
}

// HasRecentHoldingAnalysis 任一持仓在 since 之后是否有记录
func (r *Repository) HasRecentHoldingAnalysis(ctx context.Context, userID uint, holdingIDs []uint, since time.Time) (bool, error) {
	if len(holdingIDs) == 0 {
		return false, nil
	}
	return r.exists(ctx, "user_id = ? AND portfolio_holding_id IN ? AND created_at >= ?", userID, holdingIDs, since)
}

// HasRecentWatchlistAnalysis 自选在 since 之后是否有记录
func (r *Repository) HasRecentWatchlistAnalysis(ctx context.Context, userID, itemID uint, since time.Time) (bool, error) {
	return r.exists(ctx, "user_id = ? AND watchlist_item_id = ? AND created_at >= ?", userID, itemID, since)
}

func (r *Repository) listHistory(ctx context.Context, limit int, query string, args ...any) ([]models.AnalysisHistory, error) {
	tx := r.db.WithContext(ctx).Where(query, args...).Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	var records []models.AnalysisHistory
	err := tx.Find(&records).Error
	return records, err
}

func (r *Repository) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.AnalysisHistory{}).
		Where(query, args...).
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}
