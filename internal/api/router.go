package api

import (
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	"hubspot-deals-connector/internal/api/handler"
	"hubspot-deals-connector/internal/scan"
	"hubspot-deals-connector/internal/store"
	"hubspot-deals-connector/pkg/router"
)

// NewRouter wires the scan control API onto the mux.
func NewRouter(svc *scan.Service, st *store.Store, log *zap.Logger) *router.Router {
	h := handler.New(svc, st, log)
	r := router.New(log)

	r.POST("/api/v1/scans", h.StartScan)
	r.GET("/api/v1/scans", h.ListScans)
	r.GET("/api/v1/scans/*/status", h.GetScanStatus)
	r.GET("/api/v1/scans/*/results", h.GetScanResults)
	r.GET("/api/v1/scans/*/export", h.ExportScan)
	r.PATCH("/api/v1/scans/*/cancel", h.CancelScan)
	r.DELETE("/api/v1/scans/*", h.RemoveScan)

	r.POST("/api/v1/connection/test", h.TestConnection)
	r.GET("/api/v1/stats", h.GetStats)
	r.GET("/healthz", h.Healthz)

	r.GET("/swagger/*", httpSwagger.WrapHandler.ServeHTTP)

	return r
}
