package controllers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"roboadvisor/pkg/analysis"
	"roboadvisor/pkg/middleware"
	"roboadvisor/pkg/portfolio"
	"roboadvisor/pkg/repository"
)

// maxCSVBytes 上传CSV的大小上限
const maxCSVBytes = 5 << 20

// PortfolioController 持仓管理、CSV导入与仪表盘
type PortfolioController struct {
	repo     *repository.Repository
	analysis *analysis.Service
}

// NewPortfolioController 创建持仓控制器
func NewPortfolioController(repo *repository.Repository, analysisService *analysis.Service) *PortfolioController {
	return &PortfolioController{repo: repo, analysis: analysisService}
}

// CreatedHolding CSV导入成功的持仓
type CreatedHolding struct {
	ID     uint   `json:"id"`
	Name   string `json:"name"`
	ISIN   string `json:"isin"`
	Ticker string `json:"ticker"`
}

// CSVUploadResponse CSV导入结果，success 为成功条数
type CSVUploadResponse struct {
	Success int              `json:"success"`
	Errors  []string         `json:"errors"`
	Created []CreatedHolding `json:"created"`
}

// List 获取全部持仓
func (pc *PortfolioController) List(c *gin.Context) {
	holdings, err := pc.repo.ListHoldings(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		storeError(c, err, "portfolio")
		return
	}
	c.JSON(http.StatusOK, holdings)
}

// Get 获取单个持仓
func (pc *PortfolioController) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	holding, err := pc.repo.GetHolding(c.Request.Context(), middleware.CurrentUserID(c), id)
	if err != nil {
		storeError(c, err, "portfolio holding")
		return
	}
	c.JSON(http.StatusOK, holding)
}

// Create 新建持仓
func (pc *PortfolioController) Create(c *gin.Context) {
	var in portfolio.HoldingInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body", CodeInvalidParams)
		return
	}

	userID := middleware.CurrentUserID(c)
	holding, err := portfolio.BuildHolding(userID, in)
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := pc.repo.CreateHolding(c.Request.Context(), holding); err != nil {
		storeError(c, err, "portfolio holding")
		return
	}
	pc.analysis.InvalidateCache(userID)

	logrus.WithFields(logrus.Fields{"userID": userID, "holdingID": holding.ID}).Info("持仓已创建")
	c.JSON(http.StatusCreated, holding)
}

// Update 局部更新持仓
func (pc *PortfolioController) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var upd portfolio.HoldingUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body", CodeInvalidParams)
		return
	}

	ctx := c.Request.Context()
	userID := middleware.CurrentUserID(c)
	holding, err := pc.repo.GetHolding(ctx, userID, id)
	if err != nil {
		storeError(c, err, "portfolio holding")
		return
	}
	if err := portfolio.ApplyUpdate(holding, upd); err != nil {
		badRequest(c, err)
		return
	}
	if err := pc.repo.SaveHolding(ctx, holding); err != nil {
		storeError(c, err, "portfolio holding")
		return
	}
	pc.analysis.InvalidateHolding(userID, id)
	c.JSON(http.StatusOK, holding)
}

// Delete 删除持仓
func (pc *PortfolioController) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID := middleware.CurrentUserID(c)
	if err := pc.repo.DeleteHolding(c.Request.Context(), userID, id); err != nil {
		storeError(c, err, "portfolio holding")
		return
	}
	pc.analysis.InvalidateHolding(userID, id)
	c.JSON(http.StatusOK, gin.H{"message": "holding deleted"})
}

// UploadCSV 从CSV批量导入持仓，行级错误不影响其他行
func (pc *PortfolioController) UploadCSV(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "missing file field", CodeInvalidParams)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, "cannot read uploaded file", CodeInvalidParams)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxCSVBytes+1))
	if err != nil {
		respondError(c, http.StatusBadRequest, "cannot read uploaded file", CodeInvalidParams)
		return
	}
	if len(data) > maxCSVBytes {
		respondError(c, http.StatusRequestEntityTooLarge, "csv file too large", "FILE_TOO_LARGE")
		return
	}

	userID := middleware.CurrentUserID(c)
	result, err := portfolio.ParseCSV(userID, data)
	if err != nil {
		var missing *portfolio.MissingColumnsError
		if errors.As(err, &missing) {
			respondError(c, http.StatusBadRequest, err.Error(), "MISSING_COLUMNS")
			return
		}
		badRequest(c, err)
		return
	}

	resp := CSVUploadResponse{Errors: result.Errors, Created: []CreatedHolding{}}
	if resp.Errors == nil {
		resp.Errors = []string{}
	}
	ctx := c.Request.Context()
	for _, row := range result.Rows {
		if err := pc.repo.CreateHolding(ctx, row.Holding); err != nil {
			logrus.Errorf("CSV导入第 %d 行写入失败: %v", row.Row, err)
			resp.Errors = append(resp.Errors, fmt.Sprintf("row %d: failed to save holding", row.Row))
			continue
		}
		resp.Created = append(resp.Created, CreatedHolding{
			ID:     row.Holding.ID,
			Name:   row.Holding.Name,
			ISIN:   row.Holding.ISIN,
			Ticker: row.Holding.Ticker,
		})
	}
	resp.Success = len(resp.Created)
	if resp.Success > 0 {
		pc.analysis.InvalidateCache(userID)
	}

	logrus.WithFields(logrus.Fields{
		"userID":  userID,
		"created": resp.Success,
		"errors":  len(resp.Errors),
	}).Info("CSV导入完成")
	c.JSON(http.StatusOK, resp)
}

// CSVTemplate 下载CSV模板
func (pc *PortfolioController) CSVTemplate(c *gin.Context) {
	c.Header("Content-Disposition", "attachment; filename=portfolio_template.csv")
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(portfolio.CSVTemplate))
}

// DashboardSummary 组合汇总
func (pc *PortfolioController) DashboardSummary(c *gin.Context) {
	holdings, err := pc.repo.ListHoldings(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		storeError(c, err, "portfolio")
		return
	}
	c.JSON(http.StatusOK, portfolio.Summarize(holdings))
}

// DashboardAllocation 组合分布
func (pc *PortfolioController) DashboardAllocation(c *gin.Context) {
	holdings, err := pc.repo.ListHoldings(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		storeError(c, err, "portfolio")
		return
	}
	c.JSON(http.StatusOK, portfolio.Allocate(holdings))
}

// DashboardCheckSectors 检查每个持仓的行业归类
func (pc *PortfolioController) DashboardCheckSectors(c *gin.Context) {
	result, err := pc.analysis.CheckSectors(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		analysisError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
