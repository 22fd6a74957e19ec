package adminapi

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/wuzpanel/wuzpanel/internal/webserver"
)

func registerAuthRoutes() {
	webserver.PubPOST("/login", login)
}

type loginPayload struct {
	Token string `json:"token"`
}

// login exchanges the gateway admin token for a short-lived console JWT.
func login(c echo.Context) error {
	cfg := GetConfig(c)
	var payload loginPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	if payload.Token == "" || payload.Token != cfg.Gateway.AdminToken {
		zap.L().Warn("login rejected", zap.String("remote_ip", c.RealIP()))
		return fail(c, http.StatusUnauthorized, "INVALID_TOKEN", "Admin token rejected", nil)
	}

	claims := jwt.RegisteredClaims{
		Subject:   "admin",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(cfg.Web.Secret))
	if err != nil {
		return fail(c, http.StatusInternalServerError, "TOKEN_SIGN_FAILED", "Failed to sign token", err.Error())
	}
	return ok(c, map[string]interface{}{"token": signed})
}
