package panel

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/wuzpanel/wuzpanel/internal/domain"
	"github.com/wuzpanel/wuzpanel/internal/gateway"
)

// fakeGateway records calls in order and delegates to optional function
// fields; unset operations succeed with zero values.
type fakeGateway struct {
	mu    sync.Mutex
	calls []string

	listFn       func(ctx context.Context) ([]domain.Instance, error)
	createFn     func(ctx context.Context, form gateway.InstanceForm) (int64, error)
	updateFn     func(ctx context.Context, id int64, form gateway.InstanceForm) error
	deleteFn     func(ctx context.Context, id int64) error
	statusFn     func(ctx context.Context, token string) (gateway.SessionStatus, error)
	connectFn    func(ctx context.Context, token string, req *gateway.ConnectRequest) error
	disconnectFn func(ctx context.Context, token string) error
	logoutFn     func(ctx context.Context, token string) error
	qrFn         func(ctx context.Context, token string) (string, error)
	sendFn       func(ctx context.Context, token string, msg domain.TextMessage) ([]byte, error)
}

func (f *fakeGateway) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeGateway) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeGateway) count(call string) int {
	n := 0
	for _, c := range f.recorded() {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeGateway) ListInstances(ctx context.Context) ([]domain.Instance, error) {
	f.record("list")
	if f.listFn != nil {
		return f.listFn(ctx)
	}
	return nil, nil
}

func (f *fakeGateway) CreateInstance(ctx context.Context, form gateway.InstanceForm) (int64, error) {
	f.record("create")
	if f.createFn != nil {
		return f.createFn(ctx, form)
	}
	return 1, nil
}

func (f *fakeGateway) UpdateInstance(ctx context.Context, id int64, form gateway.InstanceForm) error {
	f.record("update")
	if f.updateFn != nil {
		return f.updateFn(ctx, id, form)
	}
	return nil
}

func (f *fakeGateway) DeleteInstance(ctx context.Context, id int64) error {
	f.record("delete")
	if f.deleteFn != nil {
		return f.deleteFn(ctx, id)
	}
	return nil
}

func (f *fakeGateway) SessionStatus(ctx context.Context, token string) (gateway.SessionStatus, error) {
	f.record("status:" + token)
	if f.statusFn != nil {
		return f.statusFn(ctx, token)
	}
	return gateway.SessionStatus{}, nil
}

func (f *fakeGateway) Connect(ctx context.Context, token string, req *gateway.ConnectRequest) error {
	if req != nil {
		f.record("connect-subscribe:" + token)
	} else {
		f.record("connect:" + token)
	}
	if f.connectFn != nil {
		return f.connectFn(ctx, token, req)
	}
	return nil
}

func (f *fakeGateway) Disconnect(ctx context.Context, token string) error {
	f.record("disconnect:" + token)
	if f.disconnectFn != nil {
		return f.disconnectFn(ctx, token)
	}
	return nil
}

func (f *fakeGateway) Logout(ctx context.Context, token string) error {
	f.record("logout:" + token)
	if f.logoutFn != nil {
		return f.logoutFn(ctx, token)
	}
	return nil
}

func (f *fakeGateway) QRCode(ctx context.Context, token string) (string, error) {
	f.record("qr:" + token)
	if f.qrFn != nil {
		return f.qrFn(ctx, token)
	}
	return "", gateway.ErrNoQRCode
}

func (f *fakeGateway) SendText(ctx context.Context, token string, msg domain.TextMessage) ([]byte, error) {
	f.record("send:" + token)
	if f.sendFn != nil {
		return f.sendFn(ctx, token, msg)
	}
	return []byte(`{"code":200}`), nil
}

func roster(instances ...domain.Instance) func(ctx context.Context) ([]domain.Instance, error) {
	return func(ctx context.Context) ([]domain.Instance, error) {
		out := make([]domain.Instance, len(instances))
		copy(out, instances)
		return out, nil
	}
}

func newTestPanel(t *testing.T, gw gateway.Client) *Panel {
	t.Helper()
	p, err := New(gw, Options{})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(p.Release)
	return p
}

func mustRefresh(t *testing.T, p *Panel) {
	t.Helper()
	if _, err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
}

func TestRefreshEnrichesAndIsolatesFailures(t *testing.T) {
	gw := &fakeGateway{
		listFn: roster(
			domain.Instance{ID: 1, Name: "a", Token: "tok-a"},
			domain.Instance{ID: 2, Name: "b", Token: "tok-b"},
			domain.Instance{ID: 3, Name: "c", Token: "tok-c"},
		),
		statusFn: func(ctx context.Context, token string) (gateway.SessionStatus, error) {
			switch token {
			case "tok-a":
				return gateway.SessionStatus{Connected: true, LoggedIn: true}, nil
			case "tok-b":
				return gateway.SessionStatus{}, &gateway.APIError{Status: http.StatusInternalServerError, Message: "boom"}
			default:
				return gateway.SessionStatus{Connected: true}, nil
			}
		},
	}
	p := newTestPanel(t, gw)

	instances, err := p.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if len(instances) != 3 {
		t.Fatalf("expected 3 instances, got %d", len(instances))
	}
	if !instances[0].Connected || !instances[0].LoggedIn {
		t.Fatalf("instance a not enriched: %+v", instances[0])
	}
	// the failed probe degrades instance b only
	if instances[1].Connected || instances[1].LoggedIn {
		t.Fatalf("instance b should degrade to disconnected: %+v", instances[1])
	}
	if !instances[2].Connected || instances[2].LoggedIn {
		t.Fatalf("instance c not enriched: %+v", instances[2])
	}
	if p.Loading() {
		t.Fatal("loading flag should clear after refresh")
	}
}

func TestRefreshReplacesRoster(t *testing.T) {
	gw := &fakeGateway{listFn: roster(
		domain.Instance{ID: 1, Token: "tok-a"},
		domain.Instance{ID: 2, Token: "tok-b"},
	)}
	p := newTestPanel(t, gw)
	mustRefresh(t, p)

	gw.listFn = roster(domain.Instance{ID: 2, Token: "tok-b"})
	mustRefresh(t, p)

	instances := p.Instances()
	if len(instances) != 1 || instances[0].ID != 2 {
		t.Fatalf("roster should be replaced wholesale, got %+v", instances)
	}
}

func TestDisconnectToleratedErrorPatchesLocally(t *testing.T) {
	gw := &fakeGateway{
		listFn: roster(domain.Instance{ID: 1, Token: "tok-a"}),
		statusFn: func(ctx context.Context, token string) (gateway.SessionStatus, error) {
			return gateway.SessionStatus{Connected: true, LoggedIn: true}, nil
		},
		disconnectFn: func(ctx context.Context, token string) error {
			return &gateway.APIError{Status: http.StatusInternalServerError, Message: "Cannot disconnect because it is not logged in"}
		},
	}
	p := newTestPanel(t, gw)
	mustRefresh(t, p)

	if err := p.Disconnect(context.Background(), 1); err != nil {
		t.Fatalf("tolerated disconnect error must not surface, got %v", err)
	}
	inst, _ := p.Instance(1)
	if inst.Connected {
		t.Fatal("local state should be patched to disconnected")
	}
	// patched locally, no refetch
	if got := gw.count("list"); got != 1 {
		t.Fatalf("expected no list refetch, got %d list calls", got)
	}
}

func TestDisconnectOtherErrorPropagates(t *testing.T) {
	gw := &fakeGateway{
		listFn: roster(domain.Instance{ID: 1, Token: "tok-a"}),
		disconnectFn: func(ctx context.Context, token string) error {
			return &gateway.APIError{Status: http.StatusInternalServerError, Message: "backend exploded"}
		},
	}
	p := newTestPanel(t, gw)
	mustRefresh(t, p)

	if err := p.Disconnect(context.Background(), 1); err == nil {
		t.Fatal("expected error to propagate")
	}
}

func TestDisconnectSuccessTriggersRefresh(t *testing.T) {
	gw := &fakeGateway{listFn: roster(domain.Instance{ID: 1, Token: "tok-a"})}
	p := newTestPanel(t, gw)
	mustRefresh(t, p)

	if err := p.Disconnect(context.Background(), 1); err != nil {
		t.Fatalf("Disconnect returned error: %v", err)
	}
	if got := gw.count("list"); got != 2 {
		t.Fatalf("expected a refresh after disconnect, got %d list calls", got)
	}
}

func TestLogoutNoopWhenNotConnected(t *testing.T) {
	gw := &fakeGateway{listFn: roster(domain.Instance{ID: 1, Token: "tok-a"})}
	p := newTestPanel(t, gw)
	mustRefresh(t, p)

	if err := p.Logout(context.Background(), 1); err != nil {
		t.Fatalf("Logout on disconnected instance must be a no-op, got %v", err)
	}
	if got := gw.count("logout:tok-a"); got != 0 {
		t.Fatalf("logout must not be issued, got %d calls", got)
	}
}

func TestLogoutSequence(t *testing.T) {
	var connectReq *gateway.ConnectRequest
	gw := &fakeGateway{
		listFn: roster(domain.Instance{ID: 1, Token: "tok-a"}),
		statusFn: func(ctx context.Context, token string) (gateway.SessionStatus, error) {
			return gateway.SessionStatus{Connected: true, LoggedIn: true}, nil
		},
		connectFn: func(ctx context.Context, token string, req *gateway.ConnectRequest) error {
			connectReq = req
			// the preparatory connect may fail; its error is ignored
			return &gateway.APIError{Status: http.StatusInternalServerError, Message: "already connected"}
		},
	}
	p := newTestPanel(t, gw)
	mustRefresh(t, p)

	if err := p.Logout(context.Background(), 1); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if connectReq == nil || !connectReq.Immediate || len(connectReq.Subscribe) != 1 || connectReq.Subscribe[0] != domain.EventAll {
		t.Fatalf("preparatory connect should subscribe All with Immediate, got %+v", connectReq)
	}

	calls := gw.recorded()
	order := []string{"connect-subscribe:tok-a", "logout:tok-a", "list"}
	idx := 0
	for _, call := range calls {
		if idx < len(order) && call == order[idx] {
			idx++
		}
	}
	if idx != len(order) {
		t.Fatalf("expected sequence %v within %v", order, calls)
	}
}

func TestQRConnectsFirstWhenSessionDown(t *testing.T) {
	gw := &fakeGateway{
		listFn: roster(domain.Instance{ID: 1, Token: "tok-a"}),
		statusFn: func(ctx context.Context, token string) (gateway.SessionStatus, error) {
			return gateway.SessionStatus{Connected: false}, nil
		},
		qrFn: func(ctx context.Context, token string) (string, error) {
			return "data:image/png;base64,abcd", nil
		},
	}
	p := newTestPanel(t, gw)
	mustRefresh(t, p)

	code, err := p.QR(context.Background(), 1)
	if err != nil {
		t.Fatalf("QR returned error: %v", err)
	}
	if code != "data:image/png;base64,abcd" {
		t.Fatalf("unexpected QR payload %q", code)
	}
	if gw.count("connect-subscribe:tok-a") != 1 {
		t.Fatal("expected a preparatory connect before the QR fetch")
	}
	inst, _ := p.Instance(1)
	if inst.QRCode == "" {
		t.Fatal("QR payload should be attached to the roster entry")
	}
	if dialog, selected := p.View().Dialog(); dialog != DialogQR || selected != 1 {
		t.Fatalf("expected QR dialog open for instance 1, got %v/%d", dialog, selected)
	}
}

func TestQRSkipsConnectWhenSessionUp(t *testing.T) {
	gw := &fakeGateway{
		listFn: roster(domain.Instance{ID: 1, Token: "tok-a"}),
		statusFn: func(ctx context.Context, token string) (gateway.SessionStatus, error) {
			return gateway.SessionStatus{Connected: true}, nil
		},
		qrFn: func(ctx context.Context, token string) (string, error) {
			return "qr-payload", nil
		},
	}
	p := newTestPanel(t, gw)
	mustRefresh(t, p)

	if _, err := p.QR(context.Background(), 1); err != nil {
		t.Fatalf("QR returned error: %v", err)
	}
	if gw.count("connect-subscribe:tok-a") != 0 {
		t.Fatal("no preparatory connect expected for a connected session")
	}
}

func TestQRMalformedPayloadAbortsSilently(t *testing.T) {
	gw := &fakeGateway{
		listFn: roster(domain.Instance{ID: 1, Token: "tok-a"}),
		statusFn: func(ctx context.Context, token string) (gateway.SessionStatus, error) {
			return gateway.SessionStatus{Connected: true}, nil
		},
		// default qrFn returns ErrNoQRCode
	}
	p := newTestPanel(t, gw)
	mustRefresh(t, p)

	if _, err := p.QR(context.Background(), 1); err == nil {
		t.Fatal("expected an error for the caller to log")
	}
	if dialog, _ := p.View().Dialog(); dialog != DialogNone {
		t.Fatal("no dialog must open on a malformed QR payload")
	}
	inst, _ := p.Instance(1)
	if inst.QRCode != "" {
		t.Fatal("no QR payload should be attached")
	}
}

func TestCreateResetsDraftAndRefreshes(t *testing.T) {
	var created gateway.InstanceForm
	gw := &fakeGateway{
		createFn: func(ctx context.Context, form gateway.InstanceForm) (int64, error) {
			created = form
			return 42, nil
		},
	}
	p := newTestPanel(t, gw)

	before := p.Draft()
	if before.Token == "" {
		t.Fatal("draft should carry a generated default token")
	}

	id, err := p.Create(context.Background(), gateway.InstanceForm{Name: "Shop Bot", Events: []string{domain.EventAll}})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if id != 42 {
		t.Fatalf("expected created id 42, got %d", id)
	}
	// omitted token falls back to the draft default
	if created.Token != before.Token {
		t.Fatalf("expected the draft token %q on the wire, got %q", before.Token, created.Token)
	}
	after := p.Draft()
	if after.Token == "" || after.Token == before.Token {
		t.Fatal("draft should reset with a freshly generated token")
	}
	if gw.count("list") != 1 {
		t.Fatal("create should trigger a roster refresh")
	}
}

func TestCreateRejectsUnknownEvent(t *testing.T) {
	gw := &fakeGateway{}
	p := newTestPanel(t, gw)

	_, err := p.Create(context.Background(), gateway.InstanceForm{Name: "x", Events: []string{"Bogus"}})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if gw.count("create") != 0 {
		t.Fatal("invalid forms must not reach the gateway")
	}
}

func TestUpdateClosesDialogAndRefreshes(t *testing.T) {
	gw := &fakeGateway{listFn: roster(domain.Instance{ID: 1, Token: "tok-a"})}
	p := newTestPanel(t, gw)
	mustRefresh(t, p)
	p.View().OpenDialog(DialogEdit, 1)

	err := p.Update(context.Background(), 1, gateway.InstanceForm{
		Name: "renamed", Token: "tok-a", Events: []string{"Message"},
	})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if dialog, _ := p.View().Dialog(); dialog != DialogNone {
		t.Fatal("edit dialog should close on success")
	}
	if gw.count("list") != 2 {
		t.Fatal("update should trigger a roster refresh")
	}
}

func TestDeleteSequenceAndLocalRemoval(t *testing.T) {
	gw := &fakeGateway{
		listFn: roster(
			domain.Instance{ID: 42, Token: "tok-42"},
			domain.Instance{ID: 7, Token: "tok-7"},
		),
		statusFn: func(ctx context.Context, token string) (gateway.SessionStatus, error) {
			return gateway.SessionStatus{Connected: true, LoggedIn: true}, nil
		},
		disconnectFn: func(ctx context.Context, token string) error {
			// outcome must not matter
			return &gateway.APIError{Status: http.StatusInternalServerError, Message: "session gone"}
		},
		logoutFn: func(ctx context.Context, token string) error {
			return &gateway.APIError{Status: http.StatusInternalServerError, Message: "session gone"}
		},
	}
	p := newTestPanel(t, gw)
	mustRefresh(t, p)

	if err := p.RequestDelete(42); err != nil {
		t.Fatalf("RequestDelete returned error: %v", err)
	}
	listsBefore := gw.count("list")
	if err := p.ConfirmDelete(context.Background()); err != nil {
		t.Fatalf("ConfirmDelete returned error: %v", err)
	}

	if gw.count("delete") != 1 {
		t.Fatal("expected one gateway delete")
	}
	if gw.count("disconnect:tok-42") != 1 || gw.count("logout:tok-42") != 1 {
		t.Fatalf("disconnect and logout must be attempted regardless of outcome, calls: %v", gw.recorded())
	}
	// row removed locally, no refetch
	if gw.count("list") != listsBefore {
		t.Fatal("delete must not refetch the roster")
	}
	if _, ok := p.Instance(42); ok {
		t.Fatal("row 42 should be removed from the local roster")
	}
	if _, ok := p.Instance(7); !ok {
		t.Fatal("other rows must survive")
	}
	if dialog, _ := p.View().Dialog(); dialog != DialogNone {
		t.Fatal("confirm dialog should close")
	}
}

func TestConfirmDeleteRequiresSelection(t *testing.T) {
	gw := &fakeGateway{listFn: roster(domain.Instance{ID: 1, Token: "tok-a"})}
	p := newTestPanel(t, gw)
	mustRefresh(t, p)

	if err := p.ConfirmDelete(context.Background()); err != ErrNoSelection {
		t.Fatalf("expected ErrNoSelection, got %v", err)
	}
	if gw.count("delete") != 0 {
		t.Fatal("no direct-delete path may exist")
	}
}

func TestCommandsOnUnknownInstance(t *testing.T) {
	p := newTestPanel(t, &fakeGateway{})
	ctx := context.Background()
	if err := p.Connect(ctx, 99); err != ErrInstanceNotFound {
		t.Fatalf("Connect: expected ErrInstanceNotFound, got %v", err)
	}
	if err := p.Disconnect(ctx, 99); err != ErrInstanceNotFound {
		t.Fatalf("Disconnect: expected ErrInstanceNotFound, got %v", err)
	}
	if err := p.Logout(ctx, 99); err != ErrInstanceNotFound {
		t.Fatalf("Logout: expected ErrInstanceNotFound, got %v", err)
	}
	if _, err := p.QR(ctx, 99); err != ErrInstanceNotFound {
		t.Fatalf("QR: expected ErrInstanceNotFound, got %v", err)
	}
}
