package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"crm-service/internal/model"
	"crm-service/pkg/database"
	"crm-service/pkg/logger"
	"crm-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// InvoiceItemRequest is a single line item in an invoice request
type InvoiceItemRequest struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

// InvoiceRequest defines the structure for invoice creation requests.
// Totals are never accepted from the client; they are derived from the
// items.
type InvoiceRequest struct {
	CustomerID       uint                 `json:"customer_id"`
	InvoiceNumber    string               `json:"invoice_number"`
	IssueDate        *time.Time           `json:"issue_date"`
	DueDate          *time.Time           `json:"due_date"`
	PaymentTermsDays *int                 `json:"payment_terms_days"`
	Status           string               `json:"status"`
	Notes            string               `json:"notes"`
	Items            []InvoiceItemRequest `json:"items"`
}

// InvoiceUpdateRequest uses pointers so omitted fields keep their stored
// values. A non-nil Items slice replaces the stored line items wholesale.
type InvoiceUpdateRequest struct {
	CustomerID       *uint                 `json:"customer_id"`
	IssueDate        *time.Time            `json:"issue_date"`
	DueDate          *time.Time            `json:"due_date"`
	PaymentTermsDays *int                  `json:"payment_terms_days"`
	PaidAmount       *float64              `json:"paid_amount"`
	Status           *string               `json:"status"`
	Notes            *string               `json:"notes"`
	Items            *[]InvoiceItemRequest `json:"items"`
}

// nextInvoiceNumber builds a sequential INV-YYYY-NNNN number for the
// user's invoices in the issue year. The unique index on
// (user_id, invoice_number) still covers soft-deleted rows, so the
// sequence continues past deleted invoices instead of reusing their
// numbers.
func nextInvoiceNumber(userID uint, issueDate time.Time) string {
	prefix := fmt.Sprintf("INV-%d-", issueDate.Year())

	var last string
	database.GetDB().Unscoped().Model(&model.Invoice{}).
		Where("user_id = ? AND invoice_number LIKE ?", userID, prefix+"%").
		Select("COALESCE(MAX(invoice_number), '')").
		Scan(&last)

	seq := 0
	if strings.HasPrefix(last, prefix) {
		if n, err := strconv.Atoi(last[len(prefix):]); err == nil {
			seq = n
		}
	}
	return fmt.Sprintf("%s%04d", prefix, seq+1)
}

// invoiceNumberTaken reports whether the user already has an invoice
// with this number, soft-deleted ones included.
func invoiceNumberTaken(userID uint, number string) bool {
	var count int64
	database.GetDB().Unscoped().Model(&model.Invoice{}).
		Where("user_id = ? AND invoice_number = ?", userID, number).
		Count(&count)
	return count > 0
}

func buildItems(reqs []InvoiceItemRequest) []model.InvoiceItem {
	items := make([]model.InvoiceItem, 0, len(reqs))
	for _, r := range reqs {
		items = append(items, model.InvoiceItem{
			Description: r.Description,
			Quantity:    r.Quantity,
			UnitPrice:   r.UnitPrice,
		})
	}
	return items
}

// CreateInvoice creates a new invoice owned by the current user
func CreateInvoice(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("invoice", "create")

	var req InvoiceRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request data"})
	}

	userID, ok := currentUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	if req.CustomerID == 0 || !ownedCustomerExists(req.CustomerID, userID) {
		log.Warn("Customer not found for invoice",
			zap.Uint("customer_id", req.CustomerID),
			zap.Uint("user_id", userID))
		prometheus.RecordScopeMiss("invoice")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "customer not found"})
	}

	if req.Status == "" {
		req.Status = model.InvoiceStatusDraft
	}
	if !model.ValidInvoiceStatus(req.Status) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown invoice status"})
	}

	issueDate := time.Now().Truncate(24 * time.Hour)
	if req.IssueDate != nil {
		issueDate = *req.IssueDate
	}

	terms := 30
	if req.PaymentTermsDays != nil && *req.PaymentTermsDays > 0 {
		terms = *req.PaymentTermsDays
	}

	// Due date defaults to the issue date plus the payment terms
	dueDate := issueDate.AddDate(0, 0, terms)
	if req.DueDate != nil {
		dueDate = *req.DueDate
	}

	invoiceNumber := req.InvoiceNumber
	if invoiceNumber == "" {
		invoiceNumber = nextInvoiceNumber(userID, issueDate)
	} else if invoiceNumberTaken(userID, invoiceNumber) {
		log.Warn("Duplicate invoice number",
			zap.String("invoice_number", invoiceNumber),
			zap.Uint("user_id", userID))
		return c.JSON(http.StatusConflict, echo.Map{"error": "invoice number already exists"})
	}

	invoice := model.Invoice{
		UserID:           userID,
		CustomerID:       req.CustomerID,
		InvoiceNumber:    invoiceNumber,
		IssueDate:        issueDate,
		DueDate:          dueDate,
		PaymentTermsDays: terms,
		Status:           req.Status,
		Notes:            req.Notes,
		Items:            buildItems(req.Items),
	}
	invoice.ComputeTotals()

	defer prometheus.TrackDBOperation("insert")(time.Now())

	if result := database.GetDB().Create(&invoice); result.Error != nil {
		log.Error("Failed to create invoice",
			zap.String("invoice_number", invoiceNumber),
			zap.Uint("user_id", userID),
			zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create invoice"})
	}

	log.Info("Invoice created",
		zap.Uint("id", invoice.ID),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.Float64("total_amount", invoice.TotalAmount),
		zap.Uint("user_id", userID))
	return c.JSON(http.StatusCreated, invoice)
}

// GetInvoice retrieves an invoice with its items for the current user
func GetInvoice(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("invoice", "get")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid invoice ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid invoice ID"})
	}

	userID, ok := currentUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var invoice model.Invoice
	result := database.GetDB().Preload("Items").
		Where("id = ? AND user_id = ?", id, userID).First(&invoice)
	if result.Error != nil {
		log.Warn("Invoice not found",
			zap.Uint64("invoice_id", id),
			zap.Uint("user_id", userID))
		prometheus.RecordScopeMiss("invoice")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "invoice not found"})
	}

	return c.JSON(http.StatusOK, invoice)
}

// ListInvoices retrieves the current user's invoices with an optional
// status filter
func ListInvoices(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("invoice", "list")

	userID, ok := currentUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page <= 0 {
		page = 1
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	offset := (page - 1) * limit

	query := database.GetDB().Model(&model.Invoice{}).Where("user_id = ?", userID)

	if status := c.QueryParam("status"); status != "" {
		if !model.ValidInvoiceStatus(status) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown invoice status"})
		}
		query = query.Where("status = ?", status)
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var total int64
	query.Session(&gorm.Session{}).Count(&total)

	var invoices []model.Invoice
	result := query.
		Preload("Items").
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&invoices)

	if result.Error != nil {
		log.Error("Failed to retrieve invoices",
			zap.Uint("user_id", userID),
			zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve invoices"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"invoices": invoices,
		"pagination": echo.Map{
			"current_page": page,
			"limit":        limit,
			"total":        total,
			"total_pages":  (int(total) + limit - 1) / limit,
		},
	})
}

// UpdateInvoice updates an existing invoice for the current user. When
// items are supplied the stored line items are replaced and the totals
// recomputed.
func UpdateInvoice(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("invoice", "update")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid invoice ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid invoice ID"})
	}

	var req InvoiceUpdateRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request data"})
	}

	userID, ok := currentUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var invoice model.Invoice
	result := database.GetDB().Preload("Items").
		Where("id = ? AND user_id = ?", id, userID).First(&invoice)
	if result.Error != nil {
		log.Warn("Invoice not found for update",
			zap.Uint64("invoice_id", id),
			zap.Uint("user_id", userID))
		prometheus.RecordScopeMiss("invoice")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "invoice not found"})
	}

	if req.CustomerID != nil {
		if !ownedCustomerExists(*req.CustomerID, userID) {
			prometheus.RecordScopeMiss("invoice")
			return c.JSON(http.StatusNotFound, echo.Map{"error": "customer not found"})
		}
		invoice.CustomerID = *req.CustomerID
	}
	if req.IssueDate != nil {
		invoice.IssueDate = *req.IssueDate
	}
	if req.PaymentTermsDays != nil && *req.PaymentTermsDays > 0 {
		invoice.PaymentTermsDays = *req.PaymentTermsDays
	}
	if req.DueDate != nil {
		invoice.DueDate = *req.DueDate
	} else if req.IssueDate != nil || req.PaymentTermsDays != nil {
		// Re-derive the due date when its inputs change
		invoice.DueDate = invoice.IssueDate.AddDate(0, 0, invoice.PaymentTermsDays)
	}
	if req.PaidAmount != nil {
		invoice.PaidAmount = *req.PaidAmount
	}
	if req.Status != nil {
		if !model.ValidInvoiceStatus(*req.Status) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown invoice status"})
		}
		invoice.Status = *req.Status
	}
	if req.Notes != nil {
		invoice.Notes = *req.Notes
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	if req.Items != nil {
		// Replace line items wholesale
		if err := database.GetDB().Where("invoice_id = ?", invoice.ID).Delete(&model.InvoiceItem{}).Error; err != nil {
			log.Error("Failed to replace invoice items",
				zap.Uint64("invoice_id", id),
				zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update invoice"})
		}
		invoice.Items = buildItems(*req.Items)
		for i := range invoice.Items {
			invoice.Items[i].InvoiceID = invoice.ID
		}
	}
	invoice.ComputeTotals()

	if result := database.GetDB().Save(&invoice); result.Error != nil {
		log.Error("Failed to update invoice",
			zap.Uint64("invoice_id", id),
			zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update invoice"})
	}

	log.Info("Invoice updated",
		zap.Uint64("invoice_id", id),
		zap.Float64("total_amount", invoice.TotalAmount),
		zap.Uint("user_id", userID))
	return c.JSON(http.StatusOK, invoice)
}

// DeleteInvoice handles deleting an invoice (soft delete)
func DeleteInvoice(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("invoice", "delete")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid invoice ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid invoice ID"})
	}

	userID, ok := currentUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())

	result := database.GetDB().Where("id = ? AND user_id = ?", id, userID).Delete(&model.Invoice{})
	if result.Error != nil {
		log.Error("Failed to delete invoice",
			zap.Uint64("invoice_id", id),
			zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete invoice"})
	}

	if result.RowsAffected == 0 {
		log.Warn("Invoice not found for delete",
			zap.Uint64("invoice_id", id),
			zap.Uint("user_id", userID))
		prometheus.RecordScopeMiss("invoice")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "invoice not found"})
	}

	log.Info("Invoice deleted",
		zap.Uint64("invoice_id", id),
		zap.Uint("user_id", userID))
	return c.JSON(http.StatusOK, echo.Map{"message": "invoice deleted successfully"})
}
