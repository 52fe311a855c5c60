package payment

import (
	"context"
	"errors"
	"sync"

	"storefront/internal/model"
)

type initiateResult struct {
	invoice *model.PaymentInvoice
	err     error
}

// fakeGateway replays scripted responses. The last scripted response repeats.
type fakeGateway struct {
	mu sync.Mutex

	order    *model.Order
	orderErr error

	statuses    []model.PaymentStatus
	statusErr   error
	statusCalls int
	statusGates map[int]chan struct{}
	active      int
	maxActive   int

	initiates     []initiateResult
	initiateCalls int
	initiateGate  chan struct{}

	cancelErr   error
	cancelCalls int
}

func (f *fakeGateway) GetOrder(_ context.Context, _, orderID string) (*model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	if f.order == nil {
		return &model.Order{ID: orderID, Status: model.OrderStatusPending}, nil
	}
	o := *f.order
	o.ID = orderID
	return &o, nil
}

func (f *fakeGateway) GetPaymentStatus(ctx context.Context, _, _ string) (*model.PaymentStatus, error) {
	f.mu.Lock()
	f.statusCalls++
	call := f.statusCalls
	gate := f.statusGates[call]
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if len(f.statuses) == 0 {
		return nil, errors.New("no status scripted")
	}
	i := call - 1
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	s := f.statuses[i]
	return &s, nil
}

func (f *fakeGateway) InitiatePayment(ctx context.Context, _, orderID string) (*model.PaymentInvoice, error) {
	f.mu.Lock()
	f.initiateCalls++
	call := f.initiateCalls
	gate := f.initiateGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	i := call - 1
	if i >= len(f.initiates) {
		i = len(f.initiates) - 1
	}
	r := f.initiates[i]
	if r.invoice != nil {
		inv := *r.invoice
		inv.OrderID = orderID
		return &inv, r.err
	}
	return nil, r.err
}

func (f *fakeGateway) CancelPayment(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls++
	return f.cancelErr
}

func (f *fakeGateway) initiated() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initiateCalls
}

func (f *fakeGateway) statusCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

func (f *fakeGateway) setOrder(o *model.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = o
}

type fakeRecorder struct {
	mu        sync.Mutex
	started   []model.PaymentAttempt
	completed []model.PaymentAttempt
	terminals map[string]model.OrderStatus
}

func (r *fakeRecorder) RecordAttempt(_ context.Context, a *model.PaymentAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, *a)
	return nil
}

func (r *fakeRecorder) CompleteAttempt(_ context.Context, a *model.PaymentAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, *a)
	return nil
}

func (r *fakeRecorder) RecordTerminal(_ context.Context, orderID string, status model.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminals == nil {
		r.terminals = make(map[string]model.OrderStatus)
	}
	r.terminals[orderID] = status
	return nil
}

func (r *fakeRecorder) completedAttempts() []model.PaymentAttempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.PaymentAttempt(nil), r.completed...)
}

func (r *fakeRecorder) terminal(orderID string) (model.OrderStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.terminals[orderID]
	return s, ok
}

func qrInvoice(id string) *model.PaymentInvoice {
	return &model.PaymentInvoice{
		InvoiceID: id,
		QRCode:    "qr-" + id,
		QRText:    "0002010102121531279404962794049600022310027138152045734530349654031005802MN5913TEST MERCHANT6011Ulaanbaatar6304ABCD",
		URLs: []model.DeepLink{
			{Name: "Khan bank", Description: "Khan bank app", Link: "khanbank://q?qPay_QRcode=abc"},
			{Name: "Social Pay", Description: "Golomt social pay", Link: "socialpay-payment://q?qPay_QRcode=abc"},
		},
	}
}

func pending() model.PaymentStatus {
	return model.PaymentStatus{PaymentStatus: model.OrderStatusPending}
}

func paid() model.PaymentStatus {
	return model.PaymentStatus{PaymentStatus: model.OrderStatusPaid, ShouldStopPolling: true}
}
