package domain

// Instance is a managed credential/session slot on the messaging gateway.
// The gateway owns the record; the panel holds a transient copy that is
// replaced wholesale on every roster refresh.
type Instance struct {
	ID         int64    `json:"id"`
	Name       string   `json:"name"`
	Token      string   `json:"token"`
	Webhook    string   `json:"webhook"`
	JID        string   `json:"jid"`
	Events     []string `json:"events"`
	Expiration int64    `json:"expiration"`

	// Connected and LoggedIn are derived from the session status endpoint on
	// each refresh and are never trusted across a refresh boundary. Both
	// degrade to false when the status probe fails.
	Connected bool `json:"connected"`
	LoggedIn  bool `json:"loggedIn"`

	// QRCode holds the base64 pairing image while the QR dialog is open.
	// It is never persisted and is cleared when the dialog closes.
	QRCode string `json:"qrcode,omitempty"`
}

// TextMessage is an outbound text send request addressed by instance token.
type TextMessage struct {
	Phone       string       `json:"Phone"`
	Body        string       `json:"Body"`
	ID          string       `json:"Id,omitempty"`
	ContextInfo *ContextInfo `json:"ContextInfo,omitempty"`
}

// ContextInfo references a quoted message. StanzaID and Participant must be
// set together or not at all.
type ContextInfo struct {
	StanzaID    string `json:"StanzaId,omitempty"`
	Participant string `json:"Participant,omitempty"`
}
