package domain

import (
	"strings"

	"github.com/pkg/errors"
)

// EventAll subscribes an instance to every event category. It is exclusive:
// a selection containing EventAll contains nothing else.
const EventAll = "All"

// SupportedEvents is the full vocabulary of event categories the gateway
// accepts for webhook subscriptions.
var SupportedEvents = []string{
	// messages and communication
	"Message",
	"UndecryptableMessage",
	"Receipt",
	"MediaRetry",
	"ReadReceipt",

	// groups and contacts
	"GroupInfo",
	"JoinedGroup",
	"Picture",
	"BlocklistChange",
	"Blocklist",

	// connection and session
	"Connected",
	"Disconnected",
	"ConnectFailure",
	"KeepAliveRestored",
	"KeepAliveTimeout",
	"LoggedOut",
	"ClientOutdated",
	"TemporaryBan",
	"StreamError",
	"StreamReplaced",
	"PairSuccess",
	"PairError",
	"QR",
	"QRScannedWithoutMultidevice",

	// privacy and settings
	"PrivacySettings",
	"PushNameSetting",
	"UserAbout",

	// synchronization and state
	"AppState",
	"AppStateSyncComplete",
	"HistorySync",
	"OfflineSyncCompleted",
	"OfflineSyncPreview",

	// calls
	"CallOffer",
	"CallAccept",
	"CallTerminate",
	"CallOfferNotice",
	"CallRelayLatency",

	// presence and activity
	"Presence",
	"ChatPresence",

	// identity
	"IdentityChange",

	"CATRefreshError",

	// newsletters
	"NewsletterJoin",
	"NewsletterLeave",
	"NewsletterMuteChange",
	"NewsletterLiveUpdate",

	"FBMessage",

	EventAll,
}

// CommonEvents is the short list surfaced first in the console multi-select.
var CommonEvents = []string{
	EventAll,
	"Message",
	"ReadReceipt",
	"Presence",
	"HistorySync",
	"ChatPresence",
}

var supportedEventSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(SupportedEvents))
	for _, ev := range SupportedEvents {
		m[ev] = struct{}{}
	}
	return m
}()

// IsValidEvent reports whether name is part of the supported vocabulary.
func IsValidEvent(name string) bool {
	_, ok := supportedEventSet[name]
	return ok
}

// ErrInvalidEvent marks an event name outside the supported vocabulary.
var ErrInvalidEvent = errors.New("invalid event")

// ValidateEvents rejects any event name outside the supported vocabulary,
// matching the gateway's own create/update validation.
func ValidateEvents(events []string) error {
	for _, ev := range events {
		if !IsValidEvent(strings.TrimSpace(ev)) {
			return errors.WithMessagef(ErrInvalidEvent, "%q", ev)
		}
	}
	return nil
}

// ToggleEvent applies a single selection change to an events set and returns
// the resulting set. The rules:
//
//   - selecting EventAll always yields the singleton {All}
//   - selecting anything else while EventAll is active drops EventAll and
//     replaces the selection
//   - otherwise the event is added to, or removed from, the set
//   - the set is never empty; an emptied selection falls back to {All}
func ToggleEvent(current []string, name string) []string {
	if name == EventAll {
		return []string{EventAll}
	}
	if contains(current, EventAll) {
		return []string{name}
	}
	if contains(current, name) {
		out := make([]string, 0, len(current))
		for _, ev := range current {
			if ev != name {
				out = append(out, ev)
			}
		}
		if len(out) == 0 {
			return []string{EventAll}
		}
		return out
	}
	out := make([]string, 0, len(current)+1)
	out = append(out, current...)
	return append(out, name)
}

// NormalizeEvents cleans an events set coming off the wire: blanks removed,
// EventAll collapsed to a singleton, empty input defaulted to {All}.
func NormalizeEvents(events []string) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		ev = strings.TrimSpace(ev)
		if ev == "" {
			continue
		}
		if ev == EventAll {
			return []string{EventAll}
		}
		if !contains(out, ev) {
			out = append(out, ev)
		}
	}
	if len(out) == 0 {
		return []string{EventAll}
	}
	return out
}

// JoinEvents serializes an events set to the gateway's comma-joined wire form.
func JoinEvents(events []string) string {
	return strings.Join(NormalizeEvents(events), ",")
}

// SplitEvents parses the comma-joined wire form.
func SplitEvents(s string) []string {
	return NormalizeEvents(strings.Split(s, ","))
}

func contains(slice []string, val string) bool {
	for _, item := range slice {
		if item == val {
			return true
		}
	}
	return false
}
