package handler

import (
	"retailbank/internal/config"
	"retailbank/internal/infrastructure/lock"
	"retailbank/internal/infrastructure/mail"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, locker lock.Locker, notifier mail.Notifier, cfg *config.Config) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	RegisterValidators()

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	h := NewHandler(db, locker, notifier, cfg)

	api := r.Group("/api/v1")
	api.Use(JWTAuthMiddleware([]byte(cfg.JWT.Secret)))
	{
		accounts := api.Group("/accounts")
		{
			accounts.GET("", h.ListAccounts)
			accounts.GET("/:number/balance", h.GetBalance)
			accounts.GET("/:number/transactions", h.ListTransactions)
			accounts.POST("/deposit", h.Deposit)
		}

		transfers := api.Group("/transfers")
		{
			transfers.POST("/send", h.SendMoney)
			transfers.POST("/own", h.TransferOwn)
			transfers.POST("/to-savings", h.TransferToSavings)
			transfers.POST("/from-savings", h.TransferFromSavings)
		}

		api.POST("/cards/:id/pay", h.PayCard)

		scheduled := api.Group("/scheduled-payments")
		{
			scheduled.POST("", h.SchedulePayment)
			scheduled.GET("", h.ListScheduledPayments)
			scheduled.POST("/:id/cancel", h.CancelScheduledPayment)
			scheduled.POST("/:id/execute", h.ExecuteScheduledPayment)
		}

		admin := api.Group("/admin", StaffOnlyMiddleware())
		{
			admin.POST("/transactions/:id/decide", h.DecideTransaction)
			admin.POST("/transactions/:id/reject", h.RejectTransaction)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
