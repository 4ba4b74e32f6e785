package handler

import (
	"net/http"

	"crm-service/pkg/database"

	"github.com/labstack/echo/v4"
)

// HealthCheck reports service and database health. A failed DB ping
// degrades the response to 503 so load balancers stop routing here.
func HealthCheck(c echo.Context) error {
	dbStatus := "up"
	if db := database.GetDB(); db != nil {
		if sqlDB, err := db.DB(); err != nil || sqlDB.Ping() != nil {
			dbStatus = "down"
		}
	} else {
		dbStatus = "down"
	}

	if dbStatus == "down" {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{
			"status":   "degraded",
			"service":  "crm-service",
			"database": dbStatus,
		})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":   "healthy",
		"service":  "crm-service",
		"database": dbStatus,
	})
}
