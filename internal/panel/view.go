package panel

import (
	"sync"

	"github.com/pkg/errors"
)

// Dialog identifies which console dialog is open. At most one dialog is open
// at a time, and its content is bound to the selected instance.
type Dialog string

const (
	DialogNone          Dialog = ""
	DialogCreate        Dialog = "create"
	DialogEdit          Dialog = "edit"
	DialogDeleteConfirm Dialog = "delete"
	DialogQR            Dialog = "qr"
	DialogSend          Dialog = "send"
)

// Columns the instance table can show or hide. Name and status always render.
var tableColumns = []string{"id", "token", "webhook", "jid", "events", "expiration"}

var ErrUnknownColumn = errors.New("panel: unknown table column")

// ViewState is pure local UI state: column visibility and the open dialog.
// It never talks to the gateway.
type ViewState struct {
	mu       sync.RWMutex
	columns  map[string]bool
	dialog   Dialog
	selected int64
}

func NewViewState() *ViewState {
	columns := make(map[string]bool, len(tableColumns))
	for _, name := range tableColumns {
		columns[name] = true
	}
	return &ViewState{columns: columns}
}

// Columns returns a copy of the visibility map.
func (v *ViewState) Columns() map[string]bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[string]bool, len(v.columns))
	for name, visible := range v.columns {
		out[name] = visible
	}
	return out
}

// ToggleColumn flips one column's visibility and returns the new value.
func (v *ViewState) ToggleColumn(name string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	visible, ok := v.columns[name]
	if !ok {
		return false, ErrUnknownColumn
	}
	v.columns[name] = !visible
	return !visible, nil
}

// Dialog returns the open dialog and the selected instance id.
func (v *ViewState) Dialog() (Dialog, int64) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.dialog, v.selected
}

// OpenDialog opens a dialog for an instance, replacing any open one.
func (v *ViewState) OpenDialog(d Dialog, instanceID int64) {
	v.mu.Lock()
	v.dialog = d
	v.selected = instanceID
	v.mu.Unlock()
}

// CloseDialog clears the dialog and the selection.
func (v *ViewState) CloseDialog() {
	v.mu.Lock()
	v.dialog = DialogNone
	v.selected = 0
	v.mu.Unlock()
}
