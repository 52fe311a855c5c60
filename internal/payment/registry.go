package payment

import (
	"time"

	"storefront/internal/apiclient"
	"storefront/internal/model"

	"github.com/jonboulle/clockwork"
)

// Phase is where an order's payment screen currently stands.
type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseInitiating        Phase = "initiating"
	PhaseReady             Phase = "ready"
	PhaseError             Phase = "error"
	PhaseAlreadyInProgress Phase = "already_in_progress"
	PhaseTerminal          Phase = "terminal"
)

// View is a read-only snapshot of an order's payment state.
type View struct {
	OrderID   string                `json:"orderId"`
	Phase     Phase                 `json:"phase"`
	Status    model.OrderStatus     `json:"status"`
	Invoice   *model.PaymentInvoice `json:"invoice,omitempty"`
	Waiting   bool                  `json:"waiting"`
	CanRetry  bool                  `json:"canRetry"`
	Attempts  int                   `json:"attempts"`
	Error     string                `json:"error,omitempty"`
	ErrorKind model.ErrorKind       `json:"errorKind,omitempty"`
}

// entry is the per-order state shared by every screen showing that order.
// All fields are guarded by the controller mutex.
type entry struct {
	orderID string
	phase   Phase

	inFlight  bool
	recovered bool
	attempts  int
	lastErr   error

	invoice       *model.PaymentInvoice
	invoiceID     string
	orderStatus   model.OrderStatus
	paymentStatus model.OrderStatus
	cancelled     bool

	observed  bool
	observers map[*Observer]struct{}

	releaseTimer  clockwork.Timer
	paidTimer     clockwork.Timer
	linkTimers    []clockwork.Timer
	paidScheduled bool

	touched time.Time
}

func (e *entry) status() model.OrderStatus {
	statuses := []model.OrderStatus{e.orderStatus, e.paymentStatus}
	if e.cancelled {
		statuses = append(statuses, model.OrderStatusCancelled)
	}
	return EffectiveStatus(statuses...)
}

// orphaned reports whether every screen that watched this entry has gone.
func (e *entry) orphaned() bool {
	return e.observed && len(e.observers) == 0 && !e.inFlight
}

func (e *entry) stopLinkTimers() {
	for _, t := range e.linkTimers {
		t.Stop()
	}
	e.linkTimers = nil
}

func (e *entry) stopTimers() {
	if e.releaseTimer != nil {
		e.releaseTimer.Stop()
		e.releaseTimer = nil
	}
	if e.paidTimer != nil {
		e.paidTimer.Stop()
		e.paidTimer = nil
	}
	e.stopLinkTimers()
}

func (e *entry) view() View {
	v := View{
		OrderID:  e.orderID,
		Phase:    e.phase,
		Status:   e.status(),
		Invoice:  e.invoice,
		Waiting:  e.phase == PhaseInitiating || e.phase == PhaseAlreadyInProgress,
		Attempts: e.attempts,
	}
	if e.lastErr != nil {
		v.Error = apiclient.Message(e.lastErr)
		v.ErrorKind = apiclient.Classify(e.lastErr)
	}
	v.CanRetry = !e.inFlight && !v.Status.IsTerminal() && (e.phase == PhaseIdle || e.phase == PhaseError)
	return v
}

// settledRecord remembers the final status of a dropped entry so a later
// reference does not start over from Idle.
type settledRecord struct {
	status model.OrderStatus
	at     time.Time
}

// registry holds one entry per order id.
type registry struct {
	entries map[string]*entry
	settled map[string]settledRecord
}

func newRegistry() *registry {
	return &registry{
		entries: make(map[string]*entry),
		settled: make(map[string]settledRecord),
	}
}

func (r *registry) get(orderID string, now time.Time) *entry {
	e, ok := r.entries[orderID]
	if !ok {
		e = &entry{
			orderID:     orderID,
			phase:       PhaseIdle,
			orderStatus: model.OrderStatusPending,
			observers:   make(map[*Observer]struct{}),
		}
		if rec, ok := r.settled[orderID]; ok {
			// Already recorded and announced; only the status comes back.
			e.orderStatus = rec.status
			e.phase = PhaseTerminal
			e.paidScheduled = true
			delete(r.settled, orderID)
		}
		r.entries[orderID] = e
	}
	e.touched = now
	return e
}

func (r *registry) lookup(orderID string) (*entry, bool) {
	e, ok := r.entries[orderID]
	return e, ok
}

// known reports whether the registry holds any state for orderID.
func (r *registry) known(orderID string) bool {
	if _, ok := r.entries[orderID]; ok {
		return true
	}
	_, ok := r.settled[orderID]
	return ok
}

func (r *registry) drop(e *entry) {
	if cur, ok := r.entries[e.orderID]; ok && cur == e {
		e.stopTimers()
		delete(r.entries, e.orderID)
		if status := e.status(); status.IsTerminal() {
			r.settled[e.orderID] = settledRecord{status: status, at: e.touched}
		}
	}
}

// forgetSettled drops settled records older than cutoff.
func (r *registry) forgetSettled(cutoff time.Time) int {
	var n int
	for id, rec := range r.settled {
		if rec.at.Before(cutoff) {
			delete(r.settled, id)
			n++
		}
	}
	return n
}

func (r *registry) size() int {
	return len(r.entries)
}
