package handler

import (
	"net/http"
	"time"

	"crm-service/internal/model"
	"crm-service/pkg/database"
	"crm-service/pkg/logger"
	"crm-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// DashboardStats holds the headline numbers for the signed-in user
type DashboardStats struct {
	ActiveCustomers int64   `json:"active_customers"`
	ActiveDeals     int64   `json:"active_deals"`
	PaidRevenue     float64 `json:"paid_revenue"`
	PendingAmount   float64 `json:"pending_amount"`
}

// GetDashboardStats aggregates the current user's headline numbers:
// active customers, active deals, revenue from paid invoices and the
// outstanding balance of pending ones.
func GetDashboardStats(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("dashboard", "stats")

	userID, ok := currentUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	db := database.GetDB()
	var stats DashboardStats

	if err := db.Model(&model.Customer{}).
		Where("user_id = ? AND status = ?", userID, "active").
		Count(&stats.ActiveCustomers).Error; err != nil {
		log.Error("Failed to count customers", zap.Uint("user_id", userID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to compute dashboard stats"})
	}

	if err := db.Model(&model.Deal{}).
		Where("user_id = ? AND status = ?", userID, "active").
		Count(&stats.ActiveDeals).Error; err != nil {
		log.Error("Failed to count deals", zap.Uint("user_id", userID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to compute dashboard stats"})
	}

	if err := db.Model(&model.Invoice{}).
		Where("user_id = ? AND status = ?", userID, model.InvoiceStatusPaid).
		Select("COALESCE(SUM(total_amount), 0)").
		Scan(&stats.PaidRevenue).Error; err != nil {
		log.Error("Failed to sum paid invoices", zap.Uint("user_id", userID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to compute dashboard stats"})
	}

	if err := db.Model(&model.Invoice{}).
		Where("user_id = ? AND status = ?", userID, model.InvoiceStatusPending).
		Select("COALESCE(SUM(total_amount - paid_amount), 0)").
		Scan(&stats.PendingAmount).Error; err != nil {
		log.Error("Failed to sum pending invoices", zap.Uint("user_id", userID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to compute dashboard stats"})
	}

	return c.JSON(http.StatusOK, stats)
}
