package leads

import (
	"context"
	"fmt"
	"sync"

	"github.com/rendis/leadtap/internal/model"
)

// RowUpdater persists a single-row mutation on the backing list. The API
// client implements it; tests substitute failures.
type RowUpdater interface {
	UpdateRow(ctx context.Context, listID, placeID string, action model.RowAction, value bool) error
	UpdateNote(ctx context.Context, listID, placeID, note string) error
}

// Reconciler owns the authoritative in-memory lead collection for one
// selected list. Streamed done payloads replace the collection wholesale;
// row patches are applied optimistically and reverted if the backing call
// fails. Patches to the same (placeID, action) are deliberately not
// serialized: the last response to arrive wins.
type Reconciler struct {
	mu      sync.Mutex
	listID  string
	records []model.LeadRecord
	updater RowUpdater
	logf    func(format string, args ...any)
}

func NewReconciler(listID string, updater RowUpdater, logf func(string, ...any)) *Reconciler {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Reconciler{listID: listID, updater: updater, logf: logf}
}

// ListID returns the list this reconciler is bound to.
func (r *Reconciler) ListID() string {
	return r.listID
}

// ReplaceAll swaps in a new collection. Used for the initial list load and
// for the terminal done event of an extraction. Edits in flight against
// the previous collection are not merged; if their revert arrives after
// the replace it is dropped (the old row no longer exists).
func (r *Reconciler) ReplaceAll(records []model.LeadRecord) {
	cp := make([]model.LeadRecord, len(records))
	copy(cp, records)

	r.mu.Lock()
	r.records = cp
	r.mu.Unlock()
}

// Snapshot returns a copy of the current collection in insertion order.
func (r *Reconciler) Snapshot() []model.LeadRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]model.LeadRecord, len(r.records))
	copy(cp, r.records)
	return cp
}

func (r *Reconciler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// SetFlag toggles one of the boolean flags: applied locally first, then
// persisted. On failure the field is restored to its exact pre-patch
// value and the error surfaced on the log channel.
func (r *Reconciler) SetFlag(ctx context.Context, placeID string, action model.RowAction, value bool) error {
	prev, err := r.applyFlag(placeID, action, value)
	if err != nil {
		return err
	}

	if err := r.updater.UpdateRow(ctx, r.listID, placeID, action, value); err != nil {
		r.revertFlag(placeID, action, prev)
		r.logf("aggiornamento %s fallito per %s: %v", action, placeID, err)
		return fmt.Errorf("updating %s for %s: %w", action, placeID, err)
	}
	return nil
}

// SetNote replaces the free-text note with the same optimistic contract.
func (r *Reconciler) SetNote(ctx context.Context, placeID, note string) error {
	r.mu.Lock()
	idx := r.indexOf(placeID)
	if idx < 0 {
		r.mu.Unlock()
		return fmt.Errorf("no row with Place_ID %q", placeID)
	}
	prev := r.records[idx].Note
	r.records[idx].Note = note
	r.mu.Unlock()

	if err := r.updater.UpdateNote(ctx, r.listID, placeID, note); err != nil {
		r.mu.Lock()
		if idx := r.indexOf(placeID); idx >= 0 {
			r.records[idx].Note = prev
		}
		r.mu.Unlock()
		r.logf("aggiornamento nota fallito per %s: %v", placeID, err)
		return fmt.Errorf("updating note for %s: %w", placeID, err)
	}
	return nil
}

func (r *Reconciler) applyFlag(placeID string, action model.RowAction, value bool) (prev bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(placeID)
	if idx < 0 {
		return false, fmt.Errorf("no row with Place_ID %q", placeID)
	}
	field := flagField(&r.records[idx], action)
	if field == nil {
		return false, fmt.Errorf("unknown action %q", action)
	}
	prev = *field
	*field = value
	return prev, nil
}

// revertFlag restores the pre-patch value. If the collection was replaced
// while the request was in flight the row may be gone; the revert is then
// a no-op by design.
func (r *Reconciler) revertFlag(placeID string, action model.RowAction, prev bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx := r.indexOf(placeID); idx >= 0 {
		if field := flagField(&r.records[idx], action); field != nil {
			*field = prev
		}
	}
}

// indexOf finds a row by Place_ID. Legacy rows without one can never be
// targeted. Caller holds the lock.
func (r *Reconciler) indexOf(placeID string) int {
	if placeID == "" {
		return -1
	}
	for i := range r.records {
		if r.records[i].PlaceID == placeID {
			return i
		}
	}
	return -1
}

func flagField(rec *model.LeadRecord, action model.RowAction) *bool {
	switch action {
	case model.ActionHide:
		return &rec.Hide
	case model.ActionCall:
		return &rec.Call
	case model.ActionInterested:
		return &rec.Interested
	}
	return nil
}
