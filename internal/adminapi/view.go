package adminapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/wuzpanel/wuzpanel/internal/panel"
	"github.com/wuzpanel/wuzpanel/internal/webserver"
)

func registerViewRoutes() {
	webserver.ApiGET("/view", getView)
	webserver.ApiPUT("/view/columns/:name", toggleColumn)
	webserver.ApiPUT("/view/dialog", setDialog)
	webserver.ApiDELETE("/view/dialog", closeDialog)
}

func getView(c echo.Context) error {
	p := GetPanel(c)
	dialog, selected := p.View().Dialog()
	return ok(c, map[string]interface{}{
		"columns":  p.View().Columns(),
		"dialog":   dialog,
		"selected": selected,
		"loading":  p.Loading(),
	})
}

func toggleColumn(c echo.Context) error {
	visible, err := GetPanel(c).View().ToggleColumn(c.Param("name"))
	if err != nil {
		if errors.Is(err, panel.ErrUnknownColumn) {
			return fail(c, http.StatusBadRequest, "UNKNOWN_COLUMN", "Unknown table column", nil)
		}
		return fail(c, http.StatusInternalServerError, "TOGGLE_FAILED", "Failed to toggle column", err.Error())
	}
	return ok(c, map[string]interface{}{"name": c.Param("name"), "visible": visible})
}

type dialogPayload struct {
	Dialog   string `json:"dialog"`
	Selected int64  `json:"selected"`
}

// setDialog opens a dialog for an instance. Dialogs with side effects (qr,
// send, delete) have their own endpoints; this covers create and edit.
func setDialog(c echo.Context) error {
	var payload dialogPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	p := GetPanel(c)
	switch panel.Dialog(payload.Dialog) {
	case panel.DialogCreate:
		p.View().OpenDialog(panel.DialogCreate, 0)
	case panel.DialogEdit:
		if _, found := p.Instance(payload.Selected); !found {
			return fail(c, http.StatusNotFound, "INSTANCE_NOT_FOUND", "Instance not found", nil)
		}
		p.View().OpenDialog(panel.DialogEdit, payload.Selected)
	case panel.DialogDeleteConfirm:
		if err := p.RequestDelete(payload.Selected); err != nil {
			return failGateway(c, err)
		}
	default:
		return fail(c, http.StatusBadRequest, "UNKNOWN_DIALOG", "Unknown dialog", nil)
	}
	dialog, selected := p.View().Dialog()
	return ok(c, map[string]interface{}{"dialog": dialog, "selected": selected})
}

func closeDialog(c echo.Context) error {
	GetPanel(c).CloseDialog()
	return ok(c, map[string]interface{}{"dialog": panel.DialogNone})
}
