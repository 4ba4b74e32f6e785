package handler

import (
	"net/http"
	"strconv"
	"time"

	"crm-service/internal/model"
	"crm-service/pkg/database"
	"crm-service/pkg/logger"
	"crm-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DealRequest defines the structure for deal creation requests
type DealRequest struct {
	CustomerID        uint       `json:"customer_id"`
	Title             string     `json:"title"`
	Amount            *float64   `json:"amount"`
	Stage             string     `json:"stage"`
	Probability       *int       `json:"probability"`
	ExpectedCloseDate *time.Time `json:"expected_close_date"`
	Description       string     `json:"description"`
	Status            string     `json:"status"`
}

// DealUpdateRequest uses pointers so omitted fields keep their stored
// values.
type DealUpdateRequest struct {
	CustomerID        *uint      `json:"customer_id"`
	Title             *string    `json:"title"`
	Amount            *float64   `json:"amount"`
	Stage             *string    `json:"stage"`
	Probability       *int       `json:"probability"`
	ExpectedCloseDate *time.Time `json:"expected_close_date"`
	Description       *string    `json:"description"`
	Status            *string    `json:"status"`
}

// ownedCustomerExists checks that the customer belongs to the user. A
// customer owned by someone else reads as missing.
func ownedCustomerExists(customerID, userID uint) bool {
	var count int64
	database.GetDB().Model(&model.Customer{}).
		Where("id = ? AND user_id = ?", customerID, userID).
		Count(&count)
	return count > 0
}

// CreateDeal creates a new deal owned by the current user
func CreateDeal(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("deal", "create")

	var req DealRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request data"})
	}

	userID, ok := currentUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	if req.Title == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title is required"})
	}

	if req.Stage == "" {
		req.Stage = model.StageProspecting
	}
	if !model.ValidStage(req.Stage) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown deal stage"})
	}

	if req.CustomerID == 0 || !ownedCustomerExists(req.CustomerID, userID) {
		log.Warn("Customer not found for deal",
			zap.Uint("customer_id", req.CustomerID),
			zap.Uint("user_id", userID))
		prometheus.RecordScopeMiss("deal")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "customer not found"})
	}

	// When no explicit probability is given the stage default applies
	probability := model.StageProbabilities[req.Stage]
	if req.Probability != nil {
		probability = clampProbability(*req.Probability)
	}

	if req.Status == "" {
		req.Status = "active"
	}

	deal := model.Deal{
		UserID:            userID,
		CustomerID:        req.CustomerID,
		Title:             req.Title,
		Amount:            req.Amount,
		Stage:             req.Stage,
		Probability:       probability,
		ExpectedCloseDate: req.ExpectedCloseDate,
		Description:       req.Description,
		Status:            req.Status,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	if result := database.GetDB().Create(&deal); result.Error != nil {
		log.Error("Failed to create deal",
			zap.String("title", req.Title),
			zap.Uint("user_id", userID),
			zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create deal"})
	}

	log.Info("Deal created",
		zap.Uint("id", deal.ID),
		zap.String("title", deal.Title),
		zap.String("stage", deal.Stage),
		zap.Uint("user_id", userID))
	return c.JSON(http.StatusCreated, deal)
}

// GetDeal retrieves a deal by ID for the current user
func GetDeal(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("deal", "get")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid deal ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid deal ID"})
	}

	userID, ok := currentUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var deal model.Deal
	result := database.GetDB().Where("id = ? AND user_id = ?", id, userID).First(&deal)
	if result.Error != nil {
		log.Warn("Deal not found",
			zap.Uint64("deal_id", id),
			zap.Uint("user_id", userID))
		prometheus.RecordScopeMiss("deal")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "deal not found"})
	}

	return c.JSON(http.StatusOK, deal)
}

// ListDeals retrieves the current user's deals with an optional stage
// filter
func ListDeals(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("deal", "list")

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

	query := database.GetDB().Model(&model.Deal{}).Where("user_id = ?", userID)

	if stage := c.QueryParam("stage"); stage != "" {
		if !model.ValidStage(stage) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown deal stage"})
		}
		query = query.Where("stage = ?", stage)
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var total int64
	query.Session(&gorm.Session{}).Count(&total)

	var deals []model.Deal
	result := query.
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&deals)

	if result.Error != nil {
		log.Error("Failed to retrieve deals",
			zap.Uint("user_id", userID),
			zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve deals"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"deals": deals,
		"pagination": echo.Map{
			"current_page": page,
			"limit":        limit,
			"total":        total,
			"total_pages":  (int(total) + limit - 1) / limit,
		},
	})
}

// DealStats summarizes the open pipeline for the current user
type DealStats struct {
	OpenCount          int     `json:"open_count"`
	TotalAmount        float64 `json:"total_amount"`
	WeightedAmount     float64 `json:"weighted_amount"`
	AverageProbability float64 `json:"average_probability"`
}

// GetDealStats computes pipeline numbers over the user's open deals:
// total value, probability-weighted value and average win probability.
func GetDealStats(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("deal", "stats")

	userID, ok := currentUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var deals []model.Deal
	result := database.GetDB().
		Where("user_id = ? AND stage NOT IN ?", userID, []string{model.StageWon, model.StageLost}).
		Find(&deals)
	if result.Error != nil {
		log.Error("Failed to retrieve deals for stats",
			zap.Uint("user_id", userID),
			zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to compute deal stats"})
	}

	var stats DealStats
	var probabilitySum int
	for i := range deals {
		stats.OpenCount++
		if deals[i].Amount != nil {
			stats.TotalAmount += *deals[i].Amount
		}
		stats.WeightedAmount += deals[i].WeightedAmount()
		probabilitySum += deals[i].Probability
	}
	if stats.OpenCount > 0 {
		stats.AverageProbability = float64(probabilitySum) / float64(stats.OpenCount)
	}

	return c.JSON(http.StatusOK, stats)
}

// UpdateDeal updates an existing deal for the current user. Changing the
// stage without an explicit probability re-applies the stage default.
func UpdateDeal(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("deal", "update")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid deal ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid deal ID"})
	}

	var req DealUpdateRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request data"})
	}

	userID, ok := currentUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var deal model.Deal
	result := database.GetDB().Where("id = ? AND user_id = ?", id, userID).First(&deal)
	if result.Error != nil {
		log.Warn("Deal not found for update",
			zap.Uint64("deal_id", id),
			zap.Uint("user_id", userID))
		prometheus.RecordScopeMiss("deal")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "deal not found"})
	}

	if req.CustomerID != nil {
		if !ownedCustomerExists(*req.CustomerID, userID) {
			prometheus.RecordScopeMiss("deal")
			return c.JSON(http.StatusNotFound, echo.Map{"error": "customer not found"})
		}
		deal.CustomerID = *req.CustomerID
	}
	if req.Title != nil {
		if *req.Title == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "title cannot be empty"})
		}
		deal.Title = *req.Title
	}
	if req.Amount != nil {
		deal.Amount = req.Amount
	}
	if req.Stage != nil {
		if !model.ValidStage(*req.Stage) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown deal stage"})
		}
		stageChanged := deal.Stage != *req.Stage
		deal.Stage = *req.Stage
		if stageChanged && req.Probability == nil {
			deal.Probability = model.StageProbabilities[*req.Stage]
		}
	}
	if req.Probability != nil {
		deal.Probability = clampProbability(*req.Probability)
	}
	if req.ExpectedCloseDate != nil {
		deal.ExpectedCloseDate = req.ExpectedCloseDate
	}
	if req.Description != nil {
		deal.Description = *req.Description
	}
	if req.Status != nil {
		deal.Status = *req.Status
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	if result := database.GetDB().Save(&deal); result.Error != nil {
		log.Error("Failed to update deal",
			zap.Uint64("deal_id", id),
			zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update deal"})
	}

	log.Info("Deal updated",
		zap.Uint64("deal_id", id),
		zap.String("stage", deal.Stage),
		zap.Uint("user_id", userID))
	return c.JSON(http.StatusOK, deal)
}

// DeleteDeal handles deleting a deal (soft delete)
func DeleteDeal(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("deal", "delete")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid deal ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid deal ID"})
	}

	userID, ok := currentUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())

	result := database.GetDB().Where("id = ? AND user_id = ?", id, userID).Delete(&model.Deal{})
	if result.Error != nil {
		log.Error("Failed to delete deal",
			zap.Uint64("deal_id", id),
			zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete deal"})
	}

	if result.RowsAffected == 0 {
		log.Warn("Deal not found for delete",
			zap.Uint64("deal_id", id),
			zap.Uint("user_id", userID))
		prometheus.RecordScopeMiss("deal")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "deal not found"})
	}

	log.Info("Deal deleted",
		zap.Uint64("deal_id", id),
		zap.Uint("user_id", userID))
	return c.JSON(http.StatusOK, echo.Map{"message": "deal deleted successfully"})
}

func clampProbability(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
