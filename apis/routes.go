package apis

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"roboadvisor/controllers"
	"roboadvisor/pkg/analysis"
	"roboadvisor/pkg/auth"
	"roboadvisor/pkg/config"
	"roboadvisor/pkg/middleware"
	"roboadvisor/pkg/repository"
	"roboadvisor/pkg/websocket"
)

// Dependencies 路由需要的服务
type Dependencies struct {
	Config    *config.Config
	Repo      *repository.Repository
	Tokens    *auth.TokenManager
	Analysis  *analysis.Service
	WebSocket *websocket.Manager
}

// SetupRoutes 注册中间件和全部路由
func SetupRoutes(r *gin.Engine, deps Dependencies) {
	// 创建控制器实例
	authController := controllers.NewAuthController(deps.Repo, deps.Tokens)
	userController := controllers.NewUserController(deps.Repo, deps.Analysis)
	portfolioController := controllers.NewPortfolioController(deps.Repo, deps.Analysis)
	watchlistController := controllers.NewWatchlistController(deps.Repo, deps.Analysis)
	analysisController := controllers.NewAnalysisController(deps.Analysis)
	historyController := controllers.NewHistoryController(deps.Repo)
	configController := controllers.NewConfigController(deps.Config, deps.Analysis.Configured())

	r.Use(
		middleware.RequestID(),
		middleware.Cors(deps.Config.Server.CORSOrigins),
		middleware.AuthMiddleware(deps.Tokens),
	)

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":         "ok",
			"message":        "Robo-Advisor API is running",
			"llm_configured": deps.Analysis.Configured(),
		})
	})

	// WebSocket路由
	r.GET("/ws", deps.WebSocket.HandleWebSocket)

	// 认证路由
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", authController.Register)
		authGroup.POST("/login", authController.Login)
		authGroup.POST("/login-json", authController.Login)
		authGroup.GET("/me", authController.Me)
	}

	api := r.Group("/api")
	{
		api.GET("/config", configController.GetSystemConfig)
		api.GET("/ws/stats", deps.WebSocket.GetStats)

		// 用户
		user := api.Group("/user")
		{
			user.GET("/profile", userController.GetProfile)
			user.PUT("/profile", userController.UpdateProfile)
			user.GET("/settings", userController.GetSettings)
			user.PUT("/settings", userController.UpdateSettings)
			user.POST("/change-password", userController.ChangePassword)
			user.POST("/data-export", userController.ExportData)
			user.DELETE("", userController.DeleteAccount)
		}

		// 持仓
		portfolio := api.Group("/portfolio")
		{
			portfolio.GET("", portfolioController.List)
			portfolio.POST("", portfolioController.Create)
			portfolio.GET("/csv-template", portfolioController.CSVTemplate)
			portfolio.POST("/upload-csv", portfolioController.UploadCSV)
			portfolio.GET("/dashboard/summary", portfolioController.DashboardSummary)
			portfolio.GET("/dashboard/allocation", portfolioController.DashboardAllocation)
			portfolio.GET("/dashboard/check-sectors", portfolioController.DashboardCheckSectors)
			portfolio.POST("/analyze", analysisController.AnalyzePortfolio)
			portfolio.DELETE("/analyze/cache", analysisController.InvalidateCache)
			portfolio.GET("/:id", portfolioController.Get)
			portfolio.PUT("/:id", portfolioController.Update)
			portfolio.DELETE("/:id", portfolioController.Delete)
		}

		// 自选
		watchlist := api.Group("/watchlist")
		{
			watchlist.GET("", watchlistController.List)
			watchlist.POST("", watchlistController.Create)
			watchlist.POST("/analyze", analysisController.AnalyzeWatchlist)
			watchlist.GET("/:id", watchlistController.Get)
			watchlist.PUT("/:id", watchlistController.Update)
			watchlist.DELETE("/:id", watchlistController.Delete)
		}

		// 单资产分析
		asset := api.Group("/asset")
		{
			asset.POST("/analyze", analysisController.AnalyzeAsset)
			asset.GET("/analysis-history/:asset_type/:asset_id", historyController.AssetTypeHistory)
		}

		// 分析历史
		history := api.Group("/analysis-history")
		{
			history.GET("/portfolio/:holding_id", historyController.HoldingHistory)
			history.GET("/watchlist/:item_id", historyController.WatchlistHistory)
			history.GET("/asset", historyController.AssetHistory)
			history.GET("/summary", historyController.Summary)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "API endpoint not found", "code": "NOT_FOUND"})
	})
}
