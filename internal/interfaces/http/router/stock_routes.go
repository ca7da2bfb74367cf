package router

import (
	"github.com/erp/stockengine/internal/domain/identity"
	"github.com/erp/stockengine/internal/interfaces/http/handler"
	"github.com/erp/stockengine/internal/interfaces/http/middleware"
)

// NewStockRoutes builds the /stock route table. Capability-guarded routes
// answer 403 before reaching the handler; the service repeats the check.
func NewStockRoutes(h *handler.StockHandler, perm middleware.PermissionConfig) *DomainGroup {
	manage := middleware.RequireCapabilityWithConfig(perm, identity.CapabilityStockManage)
	inspect := middleware.RequireCapabilityWithConfig(perm, identity.CapabilityQCInspect)
	release := middleware.RequireCapabilityWithConfig(perm, identity.CapabilityQCRelease)

	stock := NewDomainGroup("stock", "/stock")

	stock.Group("reservations", "/reservations").
		POST("", h.ReserveStock).
		POST("/release", h.ReleaseReservedStock)
	stock.POST("/fulfillments", h.DeductStockOnFulfillment)

	stock.Group("items", "/items/:item_id").
		GET("", h.GetStock).
		PUT("", manage, h.UpdateStock).
		PUT("/threshold", manage, h.SetLowStockThreshold).
		POST("/reconcile", manage, h.Reconcile).
		GET("/availability", h.CheckAvailability).
		GET("/batches", h.ListBatches).
		GET("/history", h.ListHistory).
		GET("/wastage", h.ListWastage)

	stock.Group("batches", "/batches").
		POST("", manage, h.ReceiveBatch).
		POST("/:batch_id/inspect", inspect, h.InspectBatch).
		POST("/:batch_id/quarantine", inspect, h.QuarantineBatch).
		POST("/:batch_id/release", release, h.ReleaseBatch)

	stock.POST("/wastage", manage, h.RecordWastage)
	stock.POST("/transfers", manage, h.TransferStock)

	stock.Group("reports", "/reports").
		GET("/expiry", h.ExpiryReport).
		GET("/expiry/export", h.ExportExpiryReport)

	return stock
}
