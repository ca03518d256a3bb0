package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ksred/klear-journal/internal/auth"
	"github.com/ksred/klear-journal/internal/calendar"
	"github.com/ksred/klear-journal/internal/config"
	"github.com/ksred/klear-journal/internal/journal"
	"github.com/ksred/klear-journal/internal/pnl"
	"github.com/ksred/klear-journal/pkg/middleware"
)

// App holds the services behind the HTTP API
type App struct {
	Auth     *auth.Service
	Journal  *journal.Service
	PnL      *pnl.Service
	Calendar *calendar.Service
	Location *time.Location
}

// NewApp wires every service against db
func NewApp(cfg *config.Config, db *gorm.DB) *App {
	pnlService := pnl.NewService(db)
	return &App{
		Auth: auth.NewService(db, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Journal: journal.NewService(db, journal.Options{
			IdempotencyTTL: cfg.Idempotency.TTL,
			MaxImportRows:  cfg.Journal.MaxImportRows,
		}),
		PnL: pnlService,
		Calendar: calendar.NewService(pnlService, calendar.Links{
			Trades:   "/api/v1/trades",
			Calendar: "/api/v1/calendar",
		}),
		Location: cfg.Location(),
	}
}

// NewRouter returns a gin engine with the standard middleware chain and
// every API route registered
func NewRouter(a *App) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RequestLogger(), gin.Recovery(), middleware.RateLimit())
	a.Routes(router)
	return router
}

// Routes configures all API endpoints and their handlers
// - Auth routes: public registration and token issuance
// - Journal routes: protected by JWT authentication, evaluated in the viewer's time zone
func (a *App) Routes(router *gin.Engine) {
	authHandlers := auth.NewGinHandlers(a.Auth)
	journalHandlers := journal.NewGinHandlers(a.Journal)
	pnlHandlers := pnl.NewGinHandlers(a.PnL)
	calendarHandlers := calendar.NewGinHandlers(a.Calendar)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/healthz", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Auth routes
		authRoutes := v1.Group("/auth")
		{
			authRoutes.POST("/register", authHandlers.RegisterHandler())
			authRoutes.POST("/token", authHandlers.GenerateTokenHandler())
		}

		protected := v1.Group("")
		protected.Use(middleware.JWTAuth(a.Auth), middleware.Timezone(a.Journal, a.Location))
		{
			trades := protected.Group("/trades")
			{
				trades.GET("", journalHandlers.ListTradesHandler())
				trades.POST("", journalHandlers.CreateTradeHandler())
				trades.GET("/export", journalHandlers.ExportHandler())
				trades.POST("/import", journalHandlers.ImportHandler())
				trades.GET("/:id", journalHandlers.GetTradeHandler())
				trades.PUT("/:id", journalHandlers.UpdateTradeHandler())
				trades.DELETE("/:id", journalHandlers.DeleteTradeHandler())
			}

			charts := protected.Group("/charts")
			{
				charts.GET("/daily-pnl", pnlHandlers.DailyPnLHandler())
				charts.GET("/symbol-pnl", pnlHandlers.SymbolPnLHandler())
				charts.GET("/trade-pnl-series", pnlHandlers.TradeSeriesHandler())
			}

			protected.GET("/summary", pnlHandlers.SummaryHandler())
			protected.GET("/calendar", calendarHandlers.CalendarHandler())
			protected.GET("/settings", journalHandlers.GetSettingsHandler())
			protected.PUT("/settings", journalHandlers.UpdateSettingsHandler())
		}
	}
}
