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

// CustomerRequest defines the structure for customer creation requests
type CustomerRequest struct {
	CompanyName   string  `json:"company_name"`
	ContactPerson string  `json:"contact_person"`
	Email         string  `json:"email"`
	Phone         string  `json:"phone"`
	Address       string  `json:"address"`
	Industry      string  `json:"industry"`
	Status        string  `json:"status"`
	TotalRevenue  float64 `json:"total_revenue"`
}

// CustomerUpdateRequest uses pointers so omitted fields keep their stored
// values.
type CustomerUpdateRequest struct {
	CompanyName   *string  `json:"company_name"`
	ContactPerson *string  `json:"contact_person"`
	Email         *string  `json:"email"`
	Phone         *string  `json:"phone"`
	Address       *string  `json:"address"`
	Industry      *string  `json:"industry"`
	Status        *string  `json:"status"`
	TotalRevenue  *float64 `json:"total_revenue"`
}

// CreateCustomer creates a new customer owned by the current user
func CreateCustomer(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("customer", "create")

	var req CustomerRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request data"})
	}

	userID, ok := currentUserID(c)
	if !ok {
		log.Error("Failed to get user ID from context")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	if req.CompanyName == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "company_name is required"})
	}

	if req.Status == "" {
		req.Status = "active"
	}

	// Owner always comes from the session, never from the payload
	customer := model.Customer{
		UserID:        userID,
		CompanyName:   req.CompanyName,
		ContactPerson: req.ContactPerson,
		Email:         req.Email,
		Phone:         req.Phone,
		Address:       req.Address,
		Industry:      req.Industry,
		Status:        req.Status,
		TotalRevenue:  req.TotalRevenue,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	if result := database.GetDB().Create(&customer); result.Error != nil {
		log.Error("Failed to create customer",
			zap.String("company_name", req.CompanyName),
			zap.Uint("user_id", userID),
			zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create customer"})
	}

	log.Info("Customer created",
		zap.Uint("id", customer.ID),
		zap.String("company_name", customer.CompanyName),
		zap.Uint("user_id", userID))
	return c.JSON(http.StatusCreated, customer)
}

// GetCustomer retrieves a customer by ID for the current user
func GetCustomer(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("customer", "get")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid customer ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid customer ID"})
	}

	userID, ok := currentUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var customer model.Customer
	result := database.GetDB().Where("id = ? AND user_id = ?", id, userID).First(&customer)
	if result.Error != nil {
		// A mismatched owner is indistinguishable from a missing row
		log.Warn("Customer not found",
			zap.Uint64("customer_id", id),
			zap.Uint("user_id", userID))
		prometheus.RecordScopeMiss("customer")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "customer not found"})
	}

	return c.JSON(http.StatusOK, customer)
}

// ListCustomers retrieves the current user's customers with optional
// status and search filters
func ListCustomers(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("customer", "list")

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

	query := database.GetDB().Model(&model.Customer{}).Where("user_id = ?", userID)

	if status := c.QueryParam("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	if q := c.QueryParam("q"); q != "" {
		pattern := "%" + q + "%"
		query = query.Where("company_name LIKE ? OR contact_person LIKE ?", pattern, pattern)
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var total int64
	query.Session(&gorm.Session{}).Count(&total)

	var customers []model.Customer
	result := query.
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&customers)

	if result.Error != nil {
		log.Error("Failed to retrieve customers",
			zap.Uint("user_id", userID),
			zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve customers"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"customers": customers,
		"pagination": echo.Map{
			"current_page": page,
			"limit":        limit,
			"total":        total,
			"total_pages":  (int(total) + limit - 1) / limit,
		},
	})
}

// UpdateCustomer updates an existing customer for the current user.
// Omitted fields keep their stored values.
func UpdateCustomer(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("customer", "update")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid customer ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid customer ID"})
	}

	var req CustomerUpdateRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request data"})
	}

	userID, ok := currentUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	// The lookup itself is owner-scoped, so a customer belonging to
	// another user reads as missing
	var customer model.Customer
	result := database.GetDB().Where("id = ? AND user_id = ?", id, userID).First(&customer)
	if result.Error != nil {
		log.Warn("Customer not found for update",
			zap.Uint64("customer_id", id),
			zap.Uint("user_id", userID))
		prometheus.RecordScopeMiss("customer")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "customer not found"})
	}

	if req.CompanyName != nil {
		if *req.CompanyName == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "company_name cannot be empty"})
		}
		customer.CompanyName = *req.CompanyName
	}
	if req.ContactPerson != nil {
		customer.ContactPerson = *req.ContactPerson
	}
	if req.Email != nil {
		customer.Email = *req.Email
	}
	if req.Phone != nil {
		customer.Phone = *req.Phone
	}
	if req.Address != nil {
		customer.Address = *req.Address
	}
	if req.Industry != nil {
		customer.Industry = *req.Industry
	}
	if req.Status != nil {
		customer.Status = *req.Status
	}
	if req.TotalRevenue != nil {
		customer.TotalRevenue = *req.TotalRevenue
	}
	// UserID remains unchanged - ownership cannot move between users

	defer prometheus.TrackDBOperation("update")(time.Now())

	if result := database.GetDB().Save(&customer); result.Error != nil {
		log.Error("Failed to update customer",
			zap.Uint64("customer_id", id),
			zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update customer"})
	}

	log.Info("Customer updated",
		zap.Uint64("customer_id", id),
		zap.Uint("user_id", userID))
	return c.JSON(http.StatusOK, customer)
}

// DeleteCustomer handles deleting a customer (soft delete)
func DeleteCustomer(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordResourceOperation("customer", "delete")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid customer ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid customer ID"})
	}

	userID, ok := currentUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())

	// Owner-scoped delete: a mismatched owner affects zero rows
	result := database.GetDB().Where("id = ? AND user_id = ?", id, userID).Delete(&model.Customer{})
	if result.Error != nil {
		log.Error("Failed to delete customer",
			zap.Uint64("customer_id", id),
			zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete customer"})
	}

	if result.RowsAffected == 0 {
		log.Warn("Customer not found for delete",
			zap.Uint64("customer_id", id),
			zap.Uint("user_id", userID))
		prometheus.RecordScopeMiss("customer")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "customer not found"})
	}

	log.Info("Customer deleted",
		zap.Uint64("customer_id", id),
		zap.Uint("user_id", userID),
		zap.Int64("rows_affected", result.RowsAffected))
	return c.JSON(http.StatusOK, echo.Map{"message": "customer deleted successfully"})
}
