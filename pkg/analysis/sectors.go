package analysis

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

// UnknownSector 无法确定行业时的占位
const UnknownSector = "Unbekannt"

// SectorTemperature 行业归类使用较低的采样温度
const SectorTemperature float32 = 0.3

// SectorAssignment 单个持仓的行业归类
type SectorAssignment struct {
	PositionID uint    `json:"position_id"`
	Name       string  `json:"name"`
	ISIN       string  `json:"isin"`
	Ticker     string  `json:"ticker"`
	Sector     string  `json:"sector"`
	Error      *string `json:"error"`
}

// SectorCheckResult 行业检查结果
type SectorCheckResult struct {
	AllSectorsAssigned bool               `json:"all_sectors_assigned"`
	Assignments        []SectorAssignment `json:"assignments"`
	UniqueSectors      []string           `json:"unique_sectors"`
	MissingCount       int                `json:"missing_count"`
}

// CheckSectors 检查组合中每个持仓是否有行业归类。
// 优先采用模型结果，其次是持仓自身的 sector 字段，都没有时记为 Unbekannt。
// 模型不可用或调用失败时只记录警告，结果完全由回退规则得出。
func (s *Service) CheckSectors(ctx context.Context, userID uint) (*SectorCheckResult, error) {
	holdings, err := s.store.ListHoldings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load holdings: %w", err)
	}
	result := &SectorCheckResult{
		Assignments:   make([]SectorAssignment, 0, len(holdings)),
		UniqueSectors: []string{},
	}
	if len(holdings) == 0 {
		result.AllSectorsAssigned = true
		return result, nil
	}

	var assigned map[uint]string
	if s.client.Configured() {
		assigned, err = s.client.AssignSectors(ctx, holdings)
		if err != nil {
			logrus.Warnf("模型行业归类失败 user=%d, 使用持仓自身行业: %v", userID, err)
		}
	} else {
		logrus.Warn("分析模型未配置，行业检查只使用持仓自身行业")
	}

	seen := make(map[string]bool)
	for i := range holdings {
		h := &holdings[i]
		sector := assigned[h.ID]
		if sector == "" || sector == UnknownSector {
			sector = h.Sector
		}
		if sector == "" || sector == UnknownSector {
			sector = UnknownSector
			result.MissingCount++
		} else if !seen[sector] {
			seen[sector] = true
			result.UniqueSectors = append(result.UniqueSectors, sector)
		}
		result.Assignments = append(result.Assignments, SectorAssignment{
			PositionID: h.ID,
			Name:       h.Name,
			ISIN:       h.ISIN,
			Ticker:     h.Ticker,
			Sector:     sector,
		})
	}
	sort.Strings(result.UniqueSectors)
	result.AllSectorsAssigned = result.MissingCount == 0

	logrus.WithFields(logrus.Fields{
		"userID":  userID,
		"missing": result.MissingCount,
		"sectors": len(result.UniqueSectors),
	}).Info("行业检查完成")
	return result, nil
}
