package api

import (
	"go-reconcile-pipeline/internal/api/handler"
	"go-reconcile-pipeline/internal/pipeline"
	"go-reconcile-pipeline/pkg/router"

	httpSwagger "github.com/swaggo/http-swagger"
)

func RegisterRoutes(r *router.Router, h *handler.Handler) {
	r.POST("/api/v1/runs", h.CreateRun)
	r.GET("/api/v1/runs", h.ListRuns)
	// More specific routes first
	r.GET("/api/v1/runs/*/errors", h.GetRunErrors)
	r.GET("/api/v1/runs/*/progress", h.GetRunProgress)
	r.GET("/api/v1/runs/*/logs", h.GetRunLogs)
	r.GET("/api/v1/runs/*/"+pipeline.ReportFileName, h.GetRunReport)
	// Generic run routes last
	r.GET("/api/v1/runs/*", h.GetRun)
	r.DELETE("/api/v1/runs/*", h.DeleteRun)

	r.GET("/swagger/*", httpSwagger.WrapHandler.ServeHTTP)
}
