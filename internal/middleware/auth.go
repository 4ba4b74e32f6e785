package middleware

import (
	"net/http"
	"strings"

	"crm-service/pkg/jwtutil"
	"crm-service/pkg/logger"
	"crm-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// SessionCookieName is the cookie carrying the session token for browser
// clients. API clients may send the same token as a Bearer header instead.
const SessionCookieName = "crm_session"

// JWTAuthMiddleware creates a middleware that resolves the session token
// on every request. Any failure (missing, malformed, tampered, expired)
// leaves the caller anonymous and ends the request with 401.
func JWTAuthMiddleware(jwtUtil *jwtutil.JWTUtil) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromContext(c)

			tokenString, err := extractToken(c)
			if err != nil {
				log.Warn("Missing or malformed session credential", zap.Error(err))
				prometheus.RecordAuthError("missing_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}

			claims, err := jwtUtil.ValidateToken(tokenString)
			if err != nil {
				log.Warn("Invalid or expired session token", zap.Error(err))
				prometheus.RecordAuthError("invalid_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired session"})
			}

			// Store the session subject in context for the data handlers
			c.Set("user_id", claims.UserID)
			c.Set("email", claims.Email)

			log.Debug("Session resolved",
				zap.Uint("user_id", claims.UserID),
				zap.String("email", claims.Email))

			return next(c)
		}
	}
}

// extractToken pulls the session token from the Authorization header or,
// failing that, from the session cookie.
func extractToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header format")
		}
		return parts[1], nil
	}

	cookie, err := c.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "no session credential")
	}
	return cookie.Value, nil
}
