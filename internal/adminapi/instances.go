package adminapi

import (
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/wuzpanel/wuzpanel/internal/domain"
	"github.com/wuzpanel/wuzpanel/internal/gateway"
	"github.com/wuzpanel/wuzpanel/internal/panel"
	"github.com/wuzpanel/wuzpanel/internal/webserver"
)

func registerInstanceRoutes() {
	webserver.ApiGET("/instances", listInstances)
	webserver.ApiGET("/instances/events", listEvents)
	webserver.ApiGET("/instances/draft", getDraft)
	webserver.ApiPUT("/instances/draft", putDraft)
	webserver.ApiPOST("/instances", createInstance)
	webserver.ApiPUT("/instances/:id", updateInstance)
	webserver.ApiDELETE("/instances/:id", deleteInstance)
	webserver.ApiPOST("/instances/:id/connect", connectInstance)
	webserver.ApiPOST("/instances/:id/disconnect", disconnectInstance)
	webserver.ApiPOST("/instances/:id/logout", logoutInstance)
	webserver.ApiGET("/instances/:id/qr", getInstanceQR)
	webserver.ApiPOST("/instances/:id/send", sendInstanceMessage)
	webserver.ApiDELETE("/instances/:id/send", closeInstanceSend)
}

type instancePayload struct {
	Name       string   `json:"name"`
	Token      string   `json:"token"`
	Webhook    string   `json:"webhook"`
	Expiration int64    `json:"expiration"`
	Events     []string `json:"events"`
}

func (p instancePayload) form() gateway.InstanceForm {
	return gateway.InstanceForm{
		Name:       p.Name,
		Token:      p.Token,
		Webhook:    p.Webhook,
		Expiration: p.Expiration,
		Events:     p.Events,
	}
}

// listInstances refreshes the roster from the gateway and returns it with
// live status attached.
func listInstances(c echo.Context) error {
	p := GetPanel(c)
	list, err := p.Refresh(c.Request().Context())
	if err != nil {
		return failGateway(c, err)
	}
	return ok(c, map[string]interface{}{"instances": list})
}

// listEvents returns the webhook event vocabulary for the create/edit forms.
func listEvents(c echo.Context) error {
	return ok(c, map[string]interface{}{
		"events": domain.SupportedEvents,
		"common": domain.CommonEvents,
	})
}

func getDraft(c echo.Context) error {
	return ok(c, GetPanel(c).Draft())
}

func putDraft(c echo.Context) error {
	var payload instancePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	GetPanel(c).UpdateDraft(payload.form())
	return ok(c, GetPanel(c).Draft())
}

func createInstance(c echo.Context) error {
	var payload instancePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	if payload.Name == "" {
		return fail(c, http.StatusBadRequest, "MISSING_NAME", "Instance name is required", nil)
	}
	id, err := GetPanel(c).Create(c.Request().Context(), payload.form())
	if err != nil {
		if errors.Is(err, domain.ErrInvalidEvent) {
			return fail(c, http.StatusBadRequest, "INVALID_EVENTS", err.Error(), nil)
		}
		return failGateway(c, err)
	}
	return ok(c, map[string]interface{}{"id": id})
}

func updateInstance(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid instance ID", nil)
	}
	var payload instancePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	if err := GetPanel(c).Update(c.Request().Context(), id, payload.form()); err != nil {
		if errors.Is(err, domain.ErrInvalidEvent) {
			return fail(c, http.StatusBadRequest, "INVALID_EVENTS", err.Error(), nil)
		}
		return failGateway(c, err)
	}
	return ok(c, map[string]interface{}{"updated": true})
}

// deleteInstance runs the full confirmed delete flow: the DELETE request is
// the confirmation, so the selection is staged and committed in one pass.
func deleteInstance(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid instance ID", nil)
	}
	p := GetPanel(c)
	if err := p.RequestDelete(id); err != nil {
		return failGateway(c, err)
	}
	if err := p.ConfirmDelete(c.Request().Context()); err != nil {
		return failGateway(c, err)
	}
	return ok(c, map[string]interface{}{"deleted": true})
}

func connectInstance(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid instance ID", nil)
	}
	if err := GetPanel(c).Connect(c.Request().Context(), id); err != nil {
		return failGateway(c, err)
	}
	return ok(c, map[string]interface{}{"started": true})
}

func disconnectInstance(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid instance ID", nil)
	}
	if err := GetPanel(c).Disconnect(c.Request().Context(), id); err != nil {
		return failGateway(c, err)
	}
	return ok(c, map[string]interface{}{"disconnected": true})
}

func logoutInstance(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid instance ID", nil)
	}
	if err := GetPanel(c).Logout(c.Request().Context(), id); err != nil {
		return failGateway(c, err)
	}
	return ok(c, map[string]interface{}{"loggedOut": true})
}

// getInstanceQR returns the pairing payload without interpreting it; the
// browser renders the QR image client-side.
func getInstanceQR(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid instance ID", nil)
	}
	code, err := GetPanel(c).QR(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, gateway.ErrNoQRCode) {
			return fail(c, http.StatusNotFound, "QR_UNAVAILABLE", "No QR code available", nil)
		}
		return failGateway(c, err)
	}
	return ok(c, map[string]interface{}{"qrcode": code})
}

type sendPayload struct {
	Phone string `json:"phone"`
	Body  string `json:"body"`
}

// sendInstanceMessage opens the send dialog for the instance if needed,
// composes the message and submits it. The raw gateway response is passed
// through so the console can show exactly what the backend said.
func sendInstanceMessage(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid instance ID", nil)
	}
	var payload sendPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	if payload.Phone == "" || payload.Body == "" {
		return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "phone and body are required", nil)
	}

	p := GetPanel(c)
	s, open := p.SendSessionFor(id)
	if !open {
		s, err = p.OpenSend(id)
		if err != nil {
			return failGateway(c, err)
		}
	}
	if err := s.Compose(payload.Phone, payload.Body); err != nil {
		return fail(c, http.StatusConflict, "SEND_CLOSED", "Send dialog is closed", nil)
	}
	sendErr := s.Send(c.Request().Context())
	state, msg, response := s.Snapshot()
	if sendErr != nil {
		if errors.Is(sendErr, panel.ErrSendInFlight) {
			return fail(c, http.StatusConflict, "SEND_IN_FLIGHT", "A send is already in flight", nil)
		}
		if errors.Is(sendErr, panel.ErrSendClosed) {
			return fail(c, http.StatusConflict, "SEND_CLOSED", "Send dialog is closed", nil)
		}
	}
	resp := map[string]interface{}{"state": state, "id": msg.ID}
	if len(response) > 0 {
		resp["response"] = jsoniter.RawMessage(response)
	}
	return ok(c, resp)
}

// closeInstanceSend closes the send dialog, cancelling any in-flight request.
func closeInstanceSend(c echo.Context) error {
	if _, err := parseIDParam(c, "id"); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid instance ID", nil)
	}
	GetPanel(c).CloseDialog()
	return ok(c, map[string]interface{}{"closed": true})
}
