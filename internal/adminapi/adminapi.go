// Package adminapi exposes every panel operation over the console's HTTP API.
// Handlers stay thin: parse, call the panel, translate errors.
package adminapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/wuzpanel/wuzpanel/config"
	"github.com/wuzpanel/wuzpanel/internal/gateway"
	"github.com/wuzpanel/wuzpanel/internal/panel"
	"github.com/wuzpanel/wuzpanel/internal/webserver"
)

// Register wires all console routes into the webserver.
func Register() {
	registerAuthRoutes()
	registerInstanceRoutes()
	registerViewRoutes()
}

func GetPanel(c echo.Context) *panel.Panel {
	return webserver.GetAppContext(c).Panel()
}

func GetConfig(c echo.Context) *config.AppConfig {
	return webserver.GetAppContext(c).Config()
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, data)
}

func fail(c echo.Context, status int, code, message string, detail interface{}) error {
	resp := map[string]interface{}{"code": code, "message": message}
	if detail != nil {
		resp["detail"] = detail
	}
	return c.JSON(status, resp)
}

// failGateway maps a panel/gateway error to a console response. Gateway
// rejections keep their original status code; transport failures become 502.
func failGateway(c echo.Context, err error) error {
	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) {
		return fail(c, apiErr.Status, "GATEWAY_ERROR", apiErr.Message, nil)
	}
	if errors.Is(err, panel.ErrInstanceNotFound) {
		return fail(c, http.StatusNotFound, "INSTANCE_NOT_FOUND", "Instance not found", nil)
	}
	return fail(c, http.StatusBadGateway, "GATEWAY_UNREACHABLE", "Gateway request failed", err.Error())
}

func parseIDParam(c echo.Context, name string) (int64, error) {
	return strconv.ParseInt(c.Param(name), 10, 64)
}
