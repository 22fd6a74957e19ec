package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/guonaihong/gout"
	"github.com/guonaihong/gout/dataflow"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/wuzpanel/wuzpanel/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client is the Instance Management API surface the panel drives. All calls
// are synchronous HTTP/JSON against a configured base URL, authenticated with
// the admin bearer token; session and chat calls carry the per-instance token
// header as well.
type Client interface {
	ListInstances(ctx context.Context) ([]domain.Instance, error)
	CreateInstance(ctx context.Context, form InstanceForm) (int64, error)
	UpdateInstance(ctx context.Context, id int64, form InstanceForm) error
	DeleteInstance(ctx context.Context, id int64) error

	SessionStatus(ctx context.Context, token string) (SessionStatus, error)
	Connect(ctx context.Context, token string, req *ConnectRequest) error
	Disconnect(ctx context.Context, token string) error
	Logout(ctx context.Context, token string) error
	QRCode(ctx context.Context, token string) (string, error)

	SendText(ctx context.Context, token string, msg domain.TextMessage) ([]byte, error)
}

// InstanceForm carries the mutable instance fields for create and update.
// Events travel as a comma-joined string on the wire.
type InstanceForm struct {
	Name       string
	Token      string
	Webhook    string
	Expiration int64
	Events     []string
}

// ConnectRequest is the optional connect body used by the preparatory
// connect-with-subscribe calls.
type ConnectRequest struct {
	Subscribe []string `json:"Subscribe"`
	Immediate bool     `json:"Immediate"`
}

// SessionStatus is the live liveness pair derived per instance.
type SessionStatus struct {
	Connected bool
	LoggedIn  bool
}

// Config configures the HTTP gateway client.
type Config struct {
	BaseURL    string
	AdminToken string
	Timeout    time.Duration
}

// HTTP implements Client over gout against a wuzapi-compatible gateway.
type HTTP struct {
	base       string
	adminToken string
	sdk        *dataflow.Gout
}

var _ Client = (*HTTP)(nil)

func NewHTTP(cfg Config) *HTTP {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTP{
		base:       strings.TrimRight(cfg.BaseURL, "/"),
		adminToken: cfg.AdminToken,
		sdk:        gout.New(&http.Client{Timeout: timeout}),
	}
}

func (h *HTTP) adminHeader() gout.H {
	return gout.H{"Authorization": "Bearer " + h.adminToken}
}

func (h *HTTP) sessionHeader(token string) gout.H {
	return gout.H{"Authorization": "Bearer " + h.adminToken, "token": token}
}

// do runs a prepared request and decodes a 2xx body into out. Non-2xx
// statuses become *APIError with the parsed backend message.
func (h *HTTP) do(ctx context.Context, df *dataflow.DataFlow, out interface{}) error {
	var (
		code int
		body []byte
	)
	if err := df.WithContext(ctx).BindBody(&body).Code(&code).Do(); err != nil {
		return errors.Wrap(err, "gateway request")
	}
	if code >= http.StatusMultipleChoices {
		return newAPIError(code, body)
	}
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return errors.Wrap(err, "decode gateway response")
		}
	}
	return nil
}

type wireInstance struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Token      string `json:"token"`
	Webhook    string `json:"webhook"`
	JID        string `json:"jid"`
	Events     string `json:"events"`
	Expiration int64  `json:"expiration"`
}

func (h *HTTP) ListInstances(ctx context.Context) ([]domain.Instance, error) {
	var envelope struct {
		Instances []wireInstance `json:"instances"`
	}
	err := h.do(ctx, h.sdk.GET(h.base+"/admin/users").SetHeader(h.adminHeader()), &envelope)
	if err != nil {
		return nil, err
	}
	instances := make([]domain.Instance, 0, len(envelope.Instances))
	for _, w := range envelope.Instances {
		instances = append(instances, domain.Instance{
			ID:         w.ID,
			Name:       w.Name,
			Token:      w.Token,
			Webhook:    w.Webhook,
			JID:        w.JID,
			Events:     domain.SplitEvents(w.Events),
			Expiration: w.Expiration,
		})
	}
	return instances, nil
}

type instancePayload struct {
	Name       string `json:"name"`
	Token      string `json:"token"`
	Webhook    string `json:"webhook"`
	Expiration int64  `json:"expiration"`
	Events     string `json:"events"`
}

func (f InstanceForm) payload() instancePayload {
	return instancePayload{
		Name:       f.Name,
		Token:      f.Token,
		Webhook:    f.Webhook,
		Expiration: f.Expiration,
		Events:     domain.JoinEvents(f.Events),
	}
}

func (h *HTTP) CreateInstance(ctx context.Context, form InstanceForm) (int64, error) {
	var created struct {
		ID int64 `json:"id"`
	}
	err := h.do(ctx, h.sdk.POST(h.base+"/admin/users").
		SetHeader(h.adminHeader()).
		SetJSON(form.payload()), &created)
	if err != nil {
		return 0, err
	}
	return created.ID, nil
}

func (h *HTTP) UpdateInstance(ctx context.Context, id int64, form InstanceForm) error {
	return h.do(ctx, h.sdk.PUT(fmt.Sprintf("%s/admin/users/%d", h.base, id)).
		SetHeader(h.adminHeader()).
		SetJSON(form.payload()), nil)
}

func (h *HTTP) DeleteInstance(ctx context.Context, id int64) error {
	return h.do(ctx, h.sdk.DELETE(fmt.Sprintf("%s/admin/users/%d", h.base, id)).
		SetHeader(h.adminHeader()), nil)
}

func (h *HTTP) SessionStatus(ctx context.Context, token string) (SessionStatus, error) {
	var envelope struct {
		Data struct {
			Connected bool `json:"Connected"`
			LoggedIn  bool `json:"LoggedIn"`
		} `json:"data"`
	}
	err := h.do(ctx, h.sdk.GET(h.base+"/session/status").SetHeader(h.sessionHeader(token)), &envelope)
	if err != nil {
		return SessionStatus{}, err
	}
	return SessionStatus{Connected: envelope.Data.Connected, LoggedIn: envelope.Data.LoggedIn}, nil
}

func (h *HTTP) Connect(ctx context.Context, token string, req *ConnectRequest) error {
	df := h.sdk.POST(h.base + "/session/connect").SetHeader(h.sessionHeader(token))
	if req != nil {
		df = df.SetJSON(req)
	} else {
		df = df.SetJSON(gout.H{})
	}
	return h.do(ctx, df, nil)
}

func (h *HTTP) Disconnect(ctx context.Context, token string) error {
	return h.do(ctx, h.sdk.POST(h.base+"/session/disconnect").SetHeader(h.sessionHeader(token)), nil)
}

func (h *HTTP) Logout(ctx context.Context, token string) error {
	return h.do(ctx, h.sdk.POST(h.base+"/session/logout").SetHeader(h.sessionHeader(token)), nil)
}

// QRCode fetches the pairing payload. A 2xx response without a QRCode field
// is reported as ErrNoQRCode so callers can abort without opening a dialog.
func (h *HTTP) QRCode(ctx context.Context, token string) (string, error) {
	var envelope struct {
		Data struct {
			QRCode string `json:"QRCode"`
		} `json:"data"`
	}
	err := h.do(ctx, h.sdk.GET(h.base+"/session/qr").SetHeader(h.sessionHeader(token)), &envelope)
	if err != nil {
		return "", err
	}
	if envelope.Data.QRCode == "" {
		return "", ErrNoQRCode
	}
	return envelope.Data.QRCode, nil
}

// SendText submits an outbound text and returns the raw response body so the
// console can render whatever the gateway answered.
func (h *HTTP) SendText(ctx context.Context, token string, msg domain.TextMessage) ([]byte, error) {
	var (
		code int
		body []byte
	)
	err := h.sdk.POST(h.base+"/chat/send/text").
		SetHeader(h.sessionHeader(token)).
		SetJSON(msg).
		WithContext(ctx).
		BindBody(&body).
		Code(&code).
		Do()
	if err != nil {
		return nil, errors.Wrap(err, "gateway request")
	}
	if code >= http.StatusMultipleChoices {
		return nil, newAPIError(code, body)
	}
	return body, nil
}
