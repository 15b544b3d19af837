package router

import (
	"context"
	"net/http"

	"fintrack/internal/ai"
	"fintrack/internal/config"
	"fintrack/internal/handler"
	"fintrack/internal/logger"
	"fintrack/internal/middleware"
	"fintrack/internal/session"
	"fintrack/internal/task"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Deps are the long-lived services the handlers share. Extractor and
// Advisor may be nil when no AI key is configured.
type Deps struct {
	Sessions  *session.Manager
	Tasks     *task.Manager
	Extractor ai.Extractor
	Advisor   handler.Advisor
	// Base is the context background scans run under.
	Base context.Context
}

// SetupRouter configures the Gin engine and the /api routes.
func SetupRouter(cfg *config.Config, db *gorm.DB, deps Deps) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	if deps.Base == nil {
		deps.Base = context.Background()
	}
	r := gin.New()
	r.Use(logger.Gin(), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": deps.Sessions.Len()})
	})

	api := r.Group("/api")

	jwtSecret := cfg.JWT.Secret
	authHandler := handler.NewAuthHandler(db, deps.Sessions, jwtSecret, cfg.JWT.Issuer, cfg.JWT.ExpireHours)
	api.POST("/session/guest", authHandler.Guest)

	protected := api.Group("")
	protected.Use(
		middleware.AuthMiddleware(jwtSecret, db),
		middleware.AuditMiddleware(db, cfg.Security.EncryptionKey),
		middleware.SessionMiddleware(deps.Sessions),
	)

	protected.POST("/session/logout", authHandler.Logout)
	protected.GET("/me", handler.GetMe)
	protected.POST("/profile", handler.UpdateProfile(db))

	txHandler := handler.NewTransactionHandler()
	protected.GET("/transactions", txHandler.List)
	protected.POST("/transactions", txHandler.Create)
	protected.POST("/transactions/batch", txHandler.Batch)
	protected.GET("/transactions/stream", txHandler.Stream)
	protected.PUT("/transactions/:id", txHandler.Update)
	protected.DELETE("/transactions/:id", txHandler.Delete)
	protected.GET("/stats/monthly", txHandler.MonthlyStats)

	marketHandler := handler.NewMarketHandler()
	protected.GET("/market/receipts", marketHandler.Receipts)
	protected.POST("/market/receipts", marketHandler.CreateReceipt)
	protected.GET("/market/stream", marketHandler.Stream)

	settingsHandler := handler.NewSettingsHandler()
	protected.GET("/settings", settingsHandler.Get)
	protected.PUT("/settings", settingsHandler.Update)
	protected.POST("/categories", settingsHandler.AddCategory)
	protected.DELETE("/categories", settingsHandler.RemoveCategory)
	protected.PUT("/categories/rename", settingsHandler.RenameCategory)
	protected.POST("/clear", settingsHandler.Clear)

	ioHandler := handler.NewImportExportHandler()
	protected.GET("/export/csv", ioHandler.ExportCSV)
	protected.GET("/export/xlsx", ioHandler.ExportXLSX)
	protected.POST("/import/csv", ioHandler.ImportCSV)
	protected.POST("/import/preview", ioHandler.Preview)

	scanHandler := handler.NewScanHandler(deps.Extractor, deps.Tasks, deps.Base)
	protected.POST("/scan/:kind", scanHandler.Scan)
	protected.GET("/tasks/:id", scanHandler.GetTask)
	protected.DELETE("/tasks/:id", scanHandler.CancelTask)

	chatHandler := handler.NewChatHandler(deps.Advisor, cfg.Chat.TransactionWindow, cfg.Chat.MarketWindow)
	protected.POST("/chat", chatHandler.Ask)

	logHandler := handler.NewLogHandler(db, cfg.Security.EncryptionKey)
	protected.GET("/audit", logHandler.ListLogs)

	backupHandler := handler.NewBackupHandler(db, cfg.Security.EncryptionKey, cfg.Backup.Dir)
	protected.POST("/backups", backupHandler.CreateBackup)
	protected.GET("/backups", backupHandler.ListBackups)
	protected.GET("/backups/:id/download", backupHandler.DownloadBackup)
	protected.POST("/backups/:id/restore", backupHandler.RestoreBackup)
	protected.DELETE("/backups/:id", backupHandler.DeleteBackup)

	return r
}
