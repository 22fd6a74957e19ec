// Package panel implements the instance control panel: an in-memory roster of
// gateway instances enriched with live session status, the session lifecycle
// commands, instance CRUD flows, and the console-local view state. All hard
// state lives on the gateway; the panel only issues requests and renders what
// comes back.
package panel

import (
	"context"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	jsoniter "github.com/json-iterator/go"
	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wuzpanel/wuzpanel/internal/domain"
	"github.com/wuzpanel/wuzpanel/internal/gateway"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Bus topics published by the panel.
const (
	TopicRosterReplaced  = "panel:roster:replaced"
	TopicInstanceRemoved = "panel:instance:removed"
)

var (
	ErrInstanceNotFound = errors.New("panel: instance not found")
	ErrNoSelection      = errors.New("panel: delete requires a confirmed selection")
)

// Options tunes a Panel. SettleWait is the pause after a preparatory connect
// before issuing logout or fetching a QR code; the production default lives in
// the config layer, tests run with zero.
type Options struct {
	SettleWait    time.Duration
	StatusWorkers int
	Bus           EventBus.Bus
}

// Panel drives one messaging gateway on behalf of the console. All mutation
// of the roster happens under p.mu in response to completed requests; the
// gateway remains the authority for every derived field.
type Panel struct {
	gw     gateway.Client
	settle time.Duration
	bus    EventBus.Bus
	pool   *ants.Pool
	group  singleflight.Group

	mu        sync.RWMutex
	instances []domain.Instance
	loading   bool
	draft     gateway.InstanceForm
	send      *SendSession

	view *ViewState
}

func New(gw gateway.Client, opts Options) (*Panel, error) {
	workers := opts.StatusWorkers
	if workers <= 0 {
		workers = 8
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, errors.Wrap(err, "panel: status worker pool")
	}
	bus := opts.Bus
	if bus == nil {
		bus = EventBus.New()
	}
	return &Panel{
		gw:     gw,
		settle: opts.SettleWait,
		bus:    bus,
		pool:   pool,
		draft:  newDraft(),
		view:   NewViewState(),
	}, nil
}

// Release frees the status worker pool.
func (p *Panel) Release() {
	p.pool.Release()
}

func (p *Panel) Bus() EventBus.Bus {
	return p.bus
}

func (p *Panel) View() *ViewState {
	return p.view
}

// Loading reports whether a roster refresh is in progress.
func (p *Panel) Loading() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loading
}

// Instances returns a snapshot copy of the roster.
func (p *Panel) Instances() []domain.Instance {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]domain.Instance, len(p.instances))
	copy(out, p.instances)
	return out
}

// Instance looks up one roster entry by id.
func (p *Panel) Instance(id int64) (domain.Instance, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, inst := range p.instances {
		if inst.ID == id {
			return inst, true
		}
	}
	return domain.Instance{}, false
}

// Refresh fetches the gateway roster and re-derives the live status of every
// instance. Concurrent callers collapse into a single underlying refresh.
func (p *Panel) Refresh(ctx context.Context) ([]domain.Instance, error) {
	v, err, _ := p.group.Do("refresh", func() (interface{}, error) {
		return p.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Instance), nil
}

func (p *Panel) refresh(ctx context.Context) ([]domain.Instance, error) {
	p.setLoading(true)
	defer p.setLoading(false)

	list, err := p.gw.ListInstances(ctx)
	if err != nil {
		zap.L().Error("panel: list instances failed", zap.Error(err))
		return nil, err
	}

	// Status probes fan out through the worker pool and are joined before the
	// roster is replaced. A failed probe degrades that one instance only.
	var wg sync.WaitGroup
	for i := range list {
		i := i
		wg.Add(1)
		task := func() {
			defer wg.Done()
			p.enrich(ctx, &list[i])
		}
		if err := p.pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()

	p.mu.Lock()
	p.instances = list
	p.mu.Unlock()

	p.bus.Publish(TopicRosterReplaced, len(list))
	return p.Instances(), nil
}

func (p *Panel) enrich(ctx context.Context, inst *domain.Instance) {
	status, err := p.gw.SessionStatus(ctx, inst.Token)
	if err != nil {
		zap.L().Warn("panel: session status failed",
			zap.Int64("id", inst.ID), zap.String("name", inst.Name), zap.Error(err))
		inst.Connected = false
		inst.LoggedIn = false
		return
	}
	inst.Connected = status.Connected
	inst.LoggedIn = status.LoggedIn
}

func (p *Panel) setLoading(v bool) {
	p.mu.Lock()
	p.loading = v
	p.mu.Unlock()
}

// refreshAfterCommand re-derives status from the gateway after a session
// command. Refresh failures are logged, never surfaced as command failures.
func (p *Panel) refreshAfterCommand(ctx context.Context) {
	if _, err := p.Refresh(ctx); err != nil {
		zap.L().Warn("panel: refresh after command failed", zap.Error(err))
	}
}

// Connect issues a plain connect for the instance and refreshes the roster.
// The resulting state is never guessed locally.
func (p *Panel) Connect(ctx context.Context, id int64) error {
	inst, ok := p.Instance(id)
	if !ok {
		return ErrInstanceNotFound
	}
	if err := p.gw.Connect(ctx, inst.Token, nil); err != nil {
		return err
	}
	p.refreshAfterCommand(ctx)
	return nil
}

// Disconnect issues a disconnect. The backend's "not logged in" error is
// treated as confirmation the session is already down: local state is patched
// without a refetch and no error is surfaced.
func (p *Panel) Disconnect(ctx context.Context, id int64) error {
	inst, ok := p.Instance(id)
	if !ok {
		return ErrInstanceNotFound
	}
	if err := p.gw.Disconnect(ctx, inst.Token); err != nil {
		if gateway.IsNotLoggedIn(err) {
			zap.L().Info("panel: instance already disconnected", zap.Int64("id", id))
			p.patchConnected(id, false)
			return nil
		}
		return err
	}
	p.refreshAfterCommand(ctx)
	return nil
}

func (p *Panel) patchConnected(id int64, connected bool) {
	p.mu.Lock()
	for i := range p.instances {
		if p.instances[i].ID == id {
			p.instances[i].Connected = connected
		}
	}
	p.mu.Unlock()
}

// Logout ends the paired session. It is a no-op unless the instance is
// currently connected. The preparatory connect is best-effort and its error
// is ignored; the settle wait gives the connection time to establish before
// the logout is issued.
func (p *Panel) Logout(ctx context.Context, id int64) error {
	inst, ok := p.Instance(id)
	if !ok {
		return ErrInstanceNotFound
	}
	if !inst.Connected {
		zap.L().Debug("panel: logout skipped, instance not connected", zap.Int64("id", id))
		return nil
	}
	p.prepareSession(ctx, inst.Token)
	if err := p.gw.Logout(ctx, inst.Token); err != nil {
		return err
	}
	p.refreshAfterCommand(ctx)
	return nil
}

// prepareSession issues the best-effort connect-with-subscribe-all call that
// precedes logout and QR fetches, then waits the settle period. The instance
// may already be connected, so the connect error is only logged.
func (p *Panel) prepareSession(ctx context.Context, token string) {
	err := p.gw.Connect(ctx, token, &gateway.ConnectRequest{
		Subscribe: []string{domain.EventAll},
		Immediate: true,
	})
	if err != nil {
		zap.L().Debug("panel: preparatory connect ignored", zap.Error(err))
	}
	p.settleWait(ctx)
}

// settleWait is a fixed-delay heuristic, not a readiness signal. A gateway
// that takes longer to connect will still race the follow-up command.
func (p *Panel) settleWait(ctx context.Context) {
	if p.settle <= 0 {
		return
	}
	t := time.NewTimer(p.settle)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// QR obtains the pairing payload for an instance, connecting first when the
// session is down. On success the payload is attached to the roster entry and
// the QR dialog is opened; a malformed payload aborts without opening it.
func (p *Panel) QR(ctx context.Context, id int64) (string, error) {
	inst, ok := p.Instance(id)
	if !ok {
		return "", ErrInstanceNotFound
	}
	status, err := p.gw.SessionStatus(ctx, inst.Token)
	if err != nil {
		return "", err
	}
	if !status.Connected {
		p.prepareSession(ctx, inst.Token)
	}
	code, err := p.gw.QRCode(ctx, inst.Token)
	if err != nil {
		zap.L().Warn("panel: qr fetch failed", zap.Int64("id", id), zap.Error(err))
		return "", err
	}
	p.setQRCode(id, code)
	p.view.OpenDialog(DialogQR, id)
	return code, nil
}

func (p *Panel) setQRCode(id int64, code string) {
	p.mu.Lock()
	for i := range p.instances {
		if p.instances[i].ID == id {
			p.instances[i].QRCode = code
		}
	}
	p.mu.Unlock()
}

// Draft returns the pending create form, which carries a freshly generated
// default token the operator may override before submit.
func (p *Panel) Draft() gateway.InstanceForm {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.draft
}

// UpdateDraft stores edits to the pending create form.
func (p *Panel) UpdateDraft(form gateway.InstanceForm) {
	p.mu.Lock()
	p.draft = form
	p.mu.Unlock()
}

func newDraft() gateway.InstanceForm {
	return gateway.InstanceForm{
		Token:  newToken(),
		Events: []string{domain.EventAll},
	}
}

// Create submits a new instance. On success the draft is reset with a new
// default token, any open dialog closes and the roster refreshes.
func (p *Panel) Create(ctx context.Context, form gateway.InstanceForm) (int64, error) {
	if form.Token == "" {
		form.Token = p.Draft().Token
	}
	form.Events = domain.NormalizeEvents(form.Events)
	if err := domain.ValidateEvents(form.Events); err != nil {
		return 0, err
	}
	id, err := p.gw.CreateInstance(ctx, form)
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	p.draft = newDraft()
	p.mu.Unlock()
	p.CloseDialog()
	p.refreshAfterCommand(ctx)
	return id, nil
}

// Update replaces an instance record in full.
func (p *Panel) Update(ctx context.Context, id int64, form gateway.InstanceForm) error {
	if _, ok := p.Instance(id); !ok {
		return ErrInstanceNotFound
	}
	form.Events = domain.NormalizeEvents(form.Events)
	if err := domain.ValidateEvents(form.Events); err != nil {
		return err
	}
	if err := p.gw.UpdateInstance(ctx, id, form); err != nil {
		return err
	}
	p.CloseDialog()
	p.refreshAfterCommand(ctx)
	return nil
}

// RequestDelete selects an instance and opens the confirmation dialog. There
// is no direct-delete path: ConfirmDelete refuses to act without it.
func (p *Panel) RequestDelete(id int64) error {
	if _, ok := p.Instance(id); !ok {
		return ErrInstanceNotFound
	}
	p.view.OpenDialog(DialogDeleteConfirm, id)
	return nil
}

// ConfirmDelete deletes the selected instance on the gateway, then makes a
// best-effort attempt to release any live session, and removes the row from
// the local roster without a refetch.
func (p *Panel) ConfirmDelete(ctx context.Context) error {
	dialog, selected := p.view.Dialog()
	if dialog != DialogDeleteConfirm || selected == 0 {
		return ErrNoSelection
	}
	inst, ok := p.Instance(selected)
	if !ok {
		p.view.CloseDialog()
		return ErrInstanceNotFound
	}
	if err := p.gw.DeleteInstance(ctx, inst.ID); err != nil {
		return err
	}
	p.releaseSession(ctx, inst)
	p.removeLocal(inst.ID)
	p.view.CloseDialog()
	return nil
}

// releaseSession force-disconnects and force-logs-out a deleted instance so
// the gateway does not keep a live session for a record that no longer
// exists. Failures are logged, never blocking: the record is already gone.
func (p *Panel) releaseSession(ctx context.Context, inst domain.Instance) {
	if err := p.gw.Disconnect(ctx, inst.Token); err != nil && !gateway.IsNotLoggedIn(err) {
		zap.L().Warn("panel: post-delete disconnect failed", zap.Int64("id", inst.ID), zap.Error(err))
	}
	if inst.Connected {
		p.prepareSession(ctx, inst.Token)
		if err := p.gw.Logout(ctx, inst.Token); err != nil {
			zap.L().Warn("panel: post-delete logout failed", zap.Int64("id", inst.ID), zap.Error(err))
		}
	}
}

func (p *Panel) removeLocal(id int64) {
	p.mu.Lock()
	out := p.instances[:0]
	for _, inst := range p.instances {
		if inst.ID != id {
			out = append(out, inst)
		}
	}
	p.instances = out
	p.mu.Unlock()
	p.bus.Publish(TopicInstanceRemoved, id)
}

// CloseDialog closes whatever dialog is open, releasing any state bound to
// it: the cached QR payload, or the send session and its in-flight request.
func (p *Panel) CloseDialog() {
	dialog, selected := p.view.Dialog()
	switch dialog {
	case DialogQR:
		p.setQRCode(selected, "")
	case DialogSend:
		if s := p.currentSend(); s != nil {
			s.Close()
		}
	}
	p.view.CloseDialog()
}
