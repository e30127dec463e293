package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"brick-trader/internal/models"
	"brick-trader/internal/services/costalloc"
	"brick-trader/internal/services/export"
	"brick-trader/internal/services/lifecycle"
	"brick-trader/internal/services/mapper"
	"brick-trader/internal/services/margin"
	"brick-trader/internal/services/pricesync"
	"brick-trader/internal/services/upstream"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"
)

// Handler wires the HTTP surface to the arbitrage services.
type Handler struct {
	db        *gorm.DB
	lifecycle *lifecycle.Manager
	mapper    *mapper.Mapper
	margins   *margin.Service
	status    *pricesync.StatusRepo

	amazonSync    *pricesync.AmazonSyncer
	bricklinkSync *pricesync.BricklinkSyncer
	inventory     *pricesync.InventoryImporter

	// One run per job type at a time; the SyncStatus upsert is not built
	// for concurrent writers of the same key.
	jobMu      sync.Mutex
	jobRunning map[string]bool

	upgrader websocket.Upgrader
}

func SetupRoutes(r *gin.RouterGroup, db *gorm.DB, lm *lifecycle.Manager, mp *mapper.Mapper, ms *margin.Service,
	amazonSync *pricesync.AmazonSyncer, bricklinkSync *pricesync.BricklinkSyncer, inventory *pricesync.InventoryImporter) *Handler {

	handler := &Handler{
		db:            db,
		lifecycle:     lm,
		mapper:        mp,
		margins:       ms,
		status:        pricesync.NewStatusRepo(db),
		amazonSync:    amazonSync,
		bricklinkSync: bricklinkSync,
		inventory:     inventory,
		jobRunning:    make(map[string]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	arb := r.Group("/arbitrage")
	{
		arb.GET("/items", handler.ListItems)
		arb.GET("/export", handler.ExportMargins)
		arb.PATCH("/items/:asin/exclude", handler.ExcludeItem)
		arb.PATCH("/items/:asin/restore", handler.RestoreItem)
		arb.PATCH("/items/:asin/approve", handler.ApproveItem)
		arb.PATCH("/items/:asin/reject", handler.RejectItem)
		arb.POST("/items/:asin/mapping", handler.SetMapping)
		arb.DELETE("/items/:asin/mapping", handler.DeleteMapping)
	}

	syncGroup := r.Group("/sync")
	{
		syncGroup.POST("/amazon", handler.TriggerAmazonSync)
		syncGroup.POST("/bricklink", handler.TriggerBricklinkSync)
		syncGroup.POST("/mappings", handler.TriggerMappingPass)
		syncGroup.POST("/inventory", handler.TriggerInventoryImport)
		syncGroup.GET("/status", handler.SyncStatus)
		syncGroup.GET("/ws", handler.SyncStatusStream)
	}

	reports := r.Group("/reports")
	{
		reports.GET("/purchases/:id/allocations", handler.PurchaseAllocations)
		reports.GET("/lots/:id/realisation", handler.LotRealisation)
	}

	return handler
}

// ListItems serves the margin reconciliation view with filters, sorting
// and pagination.
func (h *Handler) ListItems(c *gin.Context) {
	q := margin.Query{
		Search:   c.Query("search"),
		SortBy:   c.DefaultQuery("sort", "margin"),
		SortDesc: c.DefaultQuery("order", "desc") == "desc",
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 50),
	}
	if raw := c.Query("min_margin"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "min_margin must be a number"})
			return
		}
		q.MinMarginPercent = &v
	}
	q.InStockOnly = c.Query("in_stock") == "true"

	rows, total, err := h.margins.Reconcile(q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items":     rows,
		"total":     total,
		"page":      q.Page,
		"page_size": q.PageSize,
	})
}

// ExportMargins streams the full reconciliation view as an XLSX download.
func (h *Handler) ExportMargins(c *gin.Context) {
	rows, _, err := h.margins.Reconcile(margin.Query{SortBy: "margin", SortDesc: true})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	filename := fmt.Sprintf("margins-%s.xlsx", time.Now().Format("2006-01-02"))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := export.MarginReport(c.Writer, rows); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

type exclusionRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) ExcludeItem(c *gin.Context) {
	var req exclusionRequest
	_ = c.ShouldBindJSON(&req)
	h.respondTransition(c, h.lifecycle.Exclude(c.Param("asin"), req.Reason))
}

func (h *Handler) RestoreItem(c *gin.Context) {
	h.respondTransition(c, h.lifecycle.Restore(c.Param("asin")))
}

func (h *Handler) ApproveItem(c *gin.Context) {
	h.respondTransition(c, h.lifecycle.Approve(c.Param("asin")))
}

func (h *Handler) RejectItem(c *gin.Context) {
	var req exclusionRequest
	_ = c.ShouldBindJSON(&req)
	h.respondTransition(c, h.lifecycle.Reject(c.Param("asin"), req.Reason))
}

func (h *Handler) respondTransition(c *gin.Context, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"ok": true})
	case errors.Is(err, lifecycle.ErrNotTracked):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

type mappingRequest struct {
	SetNumber string `json:"set_number"`
}

// SetMapping creates or replaces a manual ASIN → set link. Format is
// validated before any I/O; manual links always carry manual confidence.
func (h *Handler) SetMapping(c *gin.Context) {
	var req mappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "set_number is required"})
		return
	}
	err := h.mapper.SetManual(c.Param("asin"), req.SetNumber)
	h.respondMapping(c, err)
}

func (h *Handler) DeleteMapping(c *gin.Context) {
	h.respondMapping(c, h.mapper.Unlink(c.Param("asin")))
}

func (h *Handler) respondMapping(c *gin.Context, err error) {
	var ve *upstream.ValidationError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"ok": true})
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *Handler) TriggerAmazonSync(c *gin.Context) {
	h.runJob(c, models.JobAmazonPricing, func(ctx context.Context) (*pricesync.RunSummary, error) {
		return h.amazonSync.Sync(ctx)
	})
}

func (h *Handler) TriggerBricklinkSync(c *gin.Context) {
	h.runJob(c, models.JobBricklinkPricing, func(ctx context.Context) (*pricesync.RunSummary, error) {
		return h.bricklinkSync.Sync(ctx)
	})
}

func (h *Handler) TriggerInventoryImport(c *gin.Context) {
	h.runJob(c, models.JobInventoryImport, func(ctx context.Context) (*pricesync.RunSummary, error) {
		return h.inventory.Import(ctx)
	})
}

// TriggerMappingPass runs auto-mapping over unmapped active ASINs.
func (h *Handler) TriggerMappingPass(c *gin.Context) {
	if !h.acquire(models.JobSetMapping) {
		c.JSON(http.StatusConflict, gin.H{"error": "mapping pass already running"})
		return
	}
	defer h.release(models.JobSetMapping)

	result, err := h.mapper.MapUnmapped(c.Request.Context())
	if err != nil && result == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp := gin.H{"result": result}
	if err != nil {
		// Partial progress; the error names what stopped the pass.
		resp["error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// runJob executes one sync routine, returning its summary with HTTP 200
// even when the run partially failed: partial sync success is a normal
// outcome, not an error response.
func (h *Handler) runJob(c *gin.Context, jobType string, run func(context.Context) (*pricesync.RunSummary, error)) {
	if !h.acquire(jobType) {
		c.JSON(http.StatusConflict, gin.H{"error": jobType + " already running"})
		return
	}
	defer h.release(jobType)

	summary, err := run(c.Request.Context())
	if summary == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) acquire(jobType string) bool {
	h.jobMu.Lock()
	defer h.jobMu.Unlock()
	if h.jobRunning[jobType] {
		return false
	}
	h.jobRunning[jobType] = true
	return true
}

func (h *Handler) release(jobType string) {
	h.jobMu.Lock()
	defer h.jobMu.Unlock()
	h.jobRunning[jobType] = false
}

func (h *Handler) SyncStatus(c *gin.Context) {
	rows, err := h.status.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": rows})
}

// SyncStatusStream pushes the sync status table over a websocket every two
// seconds until the client goes away. The UI uses it for live progress
// while a manual sync runs.
func (h *Handler) SyncStatusStream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		rows, err := h.status.List()
		if err != nil {
			return
		}
		if err := conn.WriteJSON(gin.H{"jobs": rows}); err != nil {
			return
		}
		select {
		case <-ticker.C:
		case <-c.Request.Context().Done():
			return
		}
	}
}

// PurchaseAllocations reports the proportional cost split for one purchase.
func (h *Handler) PurchaseAllocations(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid purchase id"})
		return
	}
	var purchase models.Purchase
	err = h.db.Preload("Items").First(&purchase, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "purchase not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	allocations := costalloc.AllocateCosts(purchase.TotalCost, purchase.Items)
	c.JSON(http.StatusOK, gin.H{
		"purchase_id": purchase.ID,
		"total_cost":  purchase.TotalCost,
		"allocations": allocations,
	})
}

// LotRealisation reports the linear-decay revenue split for one bulk lot.
func (h *Handler) LotRealisation(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lot id"})
		return
	}
	var lot models.BulkLot
	err = h.db.First(&lot, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "lot not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"lot_id":      lot.ID,
		"reference":   lot.Reference,
		"realisation": costalloc.RealiseRevenue(lot, time.Now()),
	})
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return fallback
	}
	return v
}
