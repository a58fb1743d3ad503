package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cbsent/internal/handler"
	"cbsent/internal/middleware"
)

// Setup configures the Gin engine with all routes and middleware.
func Setup(
	ledgerH *handler.LedgerHandler,
	healthH *handler.HealthHandler,
	logger *zap.Logger,
) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	// Health checks
	r.GET("/healthz", healthH.Liveness)
	r.GET("/readyz", healthH.Readiness)

	v1 := r.Group("/api/v1")
	v1.GET("/status", ledgerH.GetStatus)
	v1.GET("/ledger", ledgerH.GetLedger)
	v1.GET("/report", ledgerH.GetReport)

	chunks := v1.Group("/chunks")
	chunks.GET("", ledgerH.ListChunks)
	chunks.GET("/:name", ledgerH.GetChunk)

	return r
}
