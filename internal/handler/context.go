package handler

import (
	"github.com/labstack/echo/v4"
)

// currentUserID returns the session subject placed in the echo context by
// the auth middleware. Every data handler scopes its queries by it.
func currentUserID(c echo.Context) (uint, bool) {
	userID, ok := c.Get("user_id").(uint)
	return userID, ok
}
