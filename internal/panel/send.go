package panel

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/wuzpanel/wuzpanel/internal/domain"
	"github.com/wuzpanel/wuzpanel/internal/gateway"
)

// SendState is the client-side state of the send-message dialog, tracked only
// for button/label feedback.
type SendState string

const (
	SendIdle     SendState = "idle"
	SendInFlight SendState = "sending"
	SendSuccess  SendState = "success"
	SendError    SendState = "error"
)

var (
	ErrSendClosed   = errors.New("panel: send dialog is closed")
	ErrSendInFlight = errors.New("panel: a send is already in flight")
)

// SendSession is the state behind one open send-message dialog. Closing the
// dialog cancels the in-flight request and resets everything; a response that
// lands after close must leave no visible trace, so every post-call mutation
// is gated on the session still being open.
type SendSession struct {
	mu         sync.Mutex
	gw         gateway.Client
	token      string
	instanceID int64
	message    domain.TextMessage
	state      SendState
	response   []byte
	open       bool
	cancel     context.CancelFunc
}

func newToken() string {
	return uuid.NewString()
}

// OpenSend opens the send-message dialog for an instance, replacing any
// previous session. The message id is pre-generated.
func (p *Panel) OpenSend(id int64) (*SendSession, error) {
	inst, ok := p.Instance(id)
	if !ok {
		return nil, ErrInstanceNotFound
	}
	s := &SendSession{
		gw:         p.gw,
		token:      inst.Token,
		instanceID: id,
		message:    domain.TextMessage{ID: newToken()},
		state:      SendIdle,
		open:       true,
	}
	p.mu.Lock()
	prev := p.send
	p.send = s
	p.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
	p.view.OpenDialog(DialogSend, id)
	return s, nil
}

func (p *Panel) currentSend() *SendSession {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.send
}

// SendSessionFor returns the open send session for the instance, if any.
func (p *Panel) SendSessionFor(id int64) (*SendSession, bool) {
	s := p.currentSend()
	if s == nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open || s.instanceID != id {
		return nil, false
	}
	return s, true
}

// InstanceID reports which instance the session addresses.
func (s *SendSession) InstanceID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.instanceID
}

// Compose sets the target phone and body for the next send.
func (s *SendSession) Compose(phone, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return ErrSendClosed
	}
	s.message.Phone = phone
	s.message.Body = body
	return nil
}

// Snapshot returns the current dialog state for rendering.
func (s *SendSession) Snapshot() (SendState, domain.TextMessage, []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp := make([]byte, len(s.response))
	copy(resp, s.response)
	return s.state, s.message, resp
}

// Send submits the composed message. The call runs under a cancellable
// context tied to the dialog; if the dialog closes while the request is in
// flight, the eventual outcome is discarded.
func (s *SendSession) Send(ctx context.Context) error {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return ErrSendClosed
	}
	if s.state == SendInFlight {
		s.mu.Unlock()
		return ErrSendInFlight
	}
	sendCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = SendInFlight
	s.response = nil
	msg, token := s.message, s.token
	s.mu.Unlock()

	body, err := s.gw.SendText(sendCtx, token, msg)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		// dialog closed while the request was in flight
		return nil
	}
	s.cancel = nil
	if err != nil {
		s.state = SendError
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) && len(apiErr.Body) > 0 {
			s.response = apiErr.Body
		} else {
			s.response, _ = json.Marshal(map[string]string{"error": err.Error()})
		}
		return err
	}
	s.state = SendSuccess
	s.response = body
	return nil
}

// Close cancels any in-flight send and fully resets the dialog state:
// response cleared, status back to idle, inputs replaced with a fresh
// message id.
func (s *SendSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.open = false
	s.state = SendIdle
	s.response = nil
	s.message = domain.TextMessage{ID: newToken()}
}
