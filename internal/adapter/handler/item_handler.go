package handler

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
	"github.com/rl1809/inventory-ledger/internal/core/service"
)

const photoField = "photo"

type ItemHandler struct {
	inventory *service.InventoryService
	uploadDir string
	logger    *zap.Logger
}

func NewItemHandler(inventory *service.InventoryService, uploadDir string, logger *zap.Logger) *ItemHandler {
	return &ItemHandler{
		inventory: inventory,
		uploadDir: uploadDir,
		logger:    logger,
	}
}

type createItemRequest struct {
	Name     string       `json:"name"`
	Stock    *json.Number `json:"stock"`
	Price    *json.Number `json:"price"`
	PhotoRef *string      `json:"photoRef"`
}

type updateItemRequest struct {
	Name     *string `json:"name"`
	PhotoRef *string `json:"photoRef"`
}

type adjustStockRequest struct {
	Delta   json.Number `json:"delta" binding:"required"`
	Note    *string     `json:"note"`
	TxnDate *string     `json:"txnDate"`
}

type setPriceRequest struct {
	Price         json.Number `json:"price" binding:"required"`
	EffectiveDate string      `json:"effectiveDate" binding:"required"`
}

func (h *ItemHandler) CreateItem(c *gin.Context) {
	var in domain.CreateItemInput

	if isMultipart(c) {
		in.Name = c.PostForm("name")
		in.Stock = formValue(c, "stock")
		in.Price = formValue(c, "price")

		ref, err := h.savePhoto(c)
		if err != nil {
			abortWithError(c, h.logger, err)
			return
		}
		in.PhotoRef = ref
	} else {
		var req createItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, h.logger, "invalid request body")
			return
		}
		in.Name = req.Name
		in.Stock = numberString(req.Stock)
		in.Price = numberString(req.Price)
		in.PhotoRef = req.PhotoRef
	}

	item, err := h.inventory.CreateItem(c.Request.Context(), in)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, newItemView(item))
}

func (h *ItemHandler) ListItems(c *gin.Context) {
	items, err := h.inventory.ListItems(c.Request.Context())
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}

	views := make([]itemView, 0, len(items))
	for i := range items {
		views = append(views, newItemView(&items[i]))
	}
	c.JSON(http.StatusOK, views)
}

func (h *ItemHandler) GetItem(c *gin.Context) {
	id, ok := h.itemID(c)
	if !ok {
		return
	}

	item, err := h.inventory.GetItem(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newItemView(item))
}

func (h *ItemHandler) UpdateItem(c *gin.Context) {
	id, ok := h.itemID(c)
	if !ok {
		return
	}

	var patch domain.ItemPatch
	if isMultipart(c) {
		patch.Name = formValue(c, "name")
		ref, err := h.savePhoto(c)
		if err != nil {
			abortWithError(c, h.logger, err)
			return
		}
		patch.PhotoRef = ref
	} else {
		var req updateItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, h.logger, "invalid request body")
			return
		}
		patch.Name = req.Name
		patch.PhotoRef = req.PhotoRef
	}

	item, err := h.inventory.UpdateItem(c.Request.Context(), id, patch)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newItemView(item))
}

func (h *ItemHandler) DeleteItem(c *gin.Context) {
	id, ok := h.itemID(c)
	if !ok {
		return
	}

	if err := h.inventory.DeleteItem(c.Request.Context(), id); err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ItemHandler) AdjustStock(c *gin.Context) {
	id, ok := h.itemID(c)
	if !ok {
		return
	}

	var req adjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "delta is required")
		return
	}

	delta, err := domain.ParseWholeNumber(req.Delta.String(), "delta")
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}

	adj := domain.StockAdjustment{Delta: delta, Note: req.Note}
	if req.TxnDate != nil && *req.TxnDate != "" {
		date, err := domain.ParseDate(*req.TxnDate)
		if err != nil {
			abortWithError(c, h.logger, err)
			return
		}
		adj.TxnDate = &date
	}

	total, err := h.inventory.AdjustStock(c.Request.Context(), id, adj)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stockTotalView{
		ItemID:     total.ItemID.String(),
		TotalStock: total.TotalStock,
	})
}

func (h *ItemHandler) SetPrice(c *gin.Context) {
	id, ok := h.itemID(c)
	if !ok {
		return
	}

	var req setPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "price and effectiveDate are required")
		return
	}

	date, err := domain.ParseDate(req.EffectiveDate)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}

	change, err := h.inventory.SetPrice(c.Request.Context(), id, req.Price.String(), date)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, priceChangeView{
		ItemID:        change.ItemID.String(),
		Price:         domain.FormatPrice(change.Price),
		EffectiveDate: change.EffectiveDate,
	})
}

func (h *ItemHandler) StockLedger(c *gin.Context) {
	id, ok := h.itemID(c)
	if !ok {
		return
	}

	entries, err := h.inventory.StockHistory(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}

	views := make([]stockEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, stockEntryView{
			ID:        e.ID,
			Delta:     strconv.FormatInt(e.Delta, 10),
			Note:      e.Note,
			TxnDate:   e.TxnDate,
			CreatedAt: e.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, views)
}

func (h *ItemHandler) PriceLedger(c *gin.Context) {
	id, ok := h.itemID(c)
	if !ok {
		return
	}

	entries, err := h.inventory.PriceHistory(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}

	views := make([]priceEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, priceEntryView{
			ID:            e.ID,
			Price:         domain.FormatPrice(e.Price),
			EffectiveDate: e.EffectiveDate,
			CreatedAt:     e.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, views)
}

func (h *ItemHandler) StockReport(c *gin.Context) {
	date, ok := h.reportDate(c)
	if !ok {
		return
	}

	rows, err := h.inventory.StockReport(c.Request.Context(), date)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}

	out := make([]stockReportRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, stockReportRow{
			ItemID:     r.ItemID.String(),
			ItemName:   r.ItemName,
			TotalStock: r.TotalStock,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (h *ItemHandler) PriceReport(c *gin.Context) {
	date, ok := h.reportDate(c)
	if !ok {
		return
	}

	rows, err := h.inventory.PriceReport(c.Request.Context(), date)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}

	out := make([]priceReportRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, priceReportRow{
			ItemID:   r.ItemID.String(),
			ItemName: r.ItemName,
			Price:    domain.FormatNullPrice(r.Price),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (h *ItemHandler) itemID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, h.logger, "id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// reportDate defaults to today when the query omits a date.
func (h *ItemHandler) reportDate(c *gin.Context) (domain.Date, bool) {
	raw := strings.TrimSpace(c.Query("date"))
	if raw == "" {
		return h.inventory.Today(), true
	}
	date, err := domain.ParseDate(raw)
	if err != nil {
		abortWithError(c, h.logger, err)
		return domain.Date{}, false
	}
	return date, true
}

// savePhoto stores the uploaded photo, if any, and returns its path relative to the
// working directory.
func (h *ItemHandler) savePhoto(c *gin.Context) (*string, error) {
	file, err := c.FormFile(photoField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, domain.InvalidArgument("invalid photo upload")
	}

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return nil, err
	}

	name := photoFileName(file, time.Now())
	dst := filepath.Join(h.uploadDir, name)
	if err := c.SaveUploadedFile(file, dst); err != nil {
		return nil, err
	}

	ref := path.Join(filepath.ToSlash(h.uploadDir), name)
	h.logger.Info("Photo stored", zap.String("path", ref), zap.Int64("size", file.Size))
	return &ref, nil
}

func photoFileName(file *multipart.FileHeader, now time.Time) string {
	unique := strconv.FormatInt(now.UnixMilli(), 10) + "-" + strconv.FormatUint(uint64(uuid.New().ID()), 10)
	ext := strings.TrimPrefix(filepath.Ext(filepath.Base(file.Filename)), ".")
	if ext == "" {
		return unique
	}
	return unique + "." + strings.ToLower(ext)
}

func isMultipart(c *gin.Context) bool {
	return c.ContentType() == gin.MIMEMultipartPOSTForm
}

func formValue(c *gin.Context, key string) *string {
	v, ok := c.GetPostForm(key)
	if !ok {
		return nil
	}
	return &v
}

func numberString(n *json.Number) *string {
	if n == nil {
		return nil
	}
	s := n.String()
	return &s
}
