package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"storefront/internal/apiclient"
	"storefront/internal/checkout"
	"storefront/internal/config"
	"storefront/internal/events"
	"storefront/internal/handler"
	"storefront/internal/middleware"
	"storefront/internal/model"
	"storefront/internal/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

type client struct {
	t       *testing.T
	server  http.Handler
	token   string
	guestID string
}

func (c *client) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	c.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.guestID != "" {
		req.Header.Set(middleware.HeaderGuestID, c.guestID)
	}

	w := httptest.NewRecorder()
	c.server.ServeHTTP(w, req)
	return w
}

func (c *client) payment(method, orderID, action string) (handler.PaymentResponse, int) {
	c.t.Helper()

	path := "/api/orders/" + orderID + "/payment"
	if action != "" {
		path += "/" + action
	}
	w := c.do(method, path, nil)

	var resp handler.PaymentResponse
	if w.Code == http.StatusOK {
		require.NoError(c.t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return resp, w.Code
}

func tomorrow(t *testing.T) string {
	t.Helper()
	cfg := config.ServerConfig{Timezone: "Asia/Ulaanbaatar"}
	return time.Now().In(cfg.Location()).AddDate(0, 0, 1).Format("2006-01-02")
}

func orderForm(date string) *checkout.SubmitRequest {
	return &checkout.SubmitRequest{
		Items:            []checkout.CartItem{{ProductID: "P001", Quantity: 2}, {ProductID: "P002", Quantity: 1}},
		DeliveryDate:     date,
		DeliveryTimeSlot: string(model.Slot14To18),
		Contact:          model.ContactInfo{Name: "Бат-Эрдэнэ", Phone: TestPhone, Email: "bat@example.mn"},
		Address:          &model.AddressInput{District: "Сүхбаатар дүүрэг", Khoroo: "1-р хороо", Building: "12", Apartment: "34"},
	}
}

func TestCheckoutToPaid_Integration(t *testing.T) {
	api := NewFakeAPI(t)
	application := SetupTestServer(t, api, nil)

	var sawPaid atomic.Bool
	application.Bus.Subscribe(events.NamePaymentStatus, func(_ context.Context, e events.Event) {
		if s := e.(events.PaymentStatusChanged); s.Status == model.OrderStatusPaid && s.ShouldStopPolling {
			sawPaid.Store(true)
		}
	})

	c := &client{t: t, server: application.Handler}

	// Login
	w := c.do(http.MethodPost, "/api/auth/login", handler.LoginRequest{Phone: TestPhone, PIN: TestPIN})
	require.Equal(t, http.StatusOK, w.Code)
	var token apiclient.AuthToken
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &token))
	require.Equal(t, TestToken, token.Token)
	c.token = token.Token

	// Tomorrow offers every slot
	date := tomorrow(t)
	w = c.do(http.MethodGet, "/api/delivery/slots?date="+date, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var slots handler.SlotsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &slots))
	for _, opt := range slots.Slots {
		assert.True(t, opt.Available, "slot %s", opt.Slot)
	}

	// First order creates the user's first address as default
	w = c.do(http.MethodPost, "/api/checkout", orderForm(date))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var result checkout.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.NotEmpty(t, result.OrderID)
	assert.Equal(t, "/orders/"+result.OrderID, result.RedirectPath)
	assert.NotEmpty(t, result.AddressID)

	order, ok := api.Order(result.OrderID)
	require.True(t, ok)
	require.NotNil(t, order.AddressID)
	assert.Equal(t, result.AddressID, *order.AddressID)
	assert.Equal(t, model.OrderStatusPending, order.Status)

	// Opening the payment screen initiates once and starts polling
	view, code := c.payment(http.MethodGet, result.OrderID, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, payment.PhaseReady, view.Phase)
	assert.Equal(t, model.OrderStatusPending, view.Status)
	require.NotNil(t, view.Invoice)
	assert.NotEmpty(t, view.Invoice.QRCode)
	assert.Equal(t, "/api/orders/"+result.OrderID+"/payment/qr.png", view.QRImage)
	assert.True(t, view.Polling)
	assert.Equal(t, 1, api.InitiateCalls(result.OrderID))

	// Reopening the screen reuses the invoice
	view, code = c.payment(http.MethodGet, result.OrderID, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, payment.PhaseReady, view.Phase)
	assert.Equal(t, 1, api.InitiateCalls(result.OrderID))

	w = c.do(http.MethodGet, "/api/orders/"+result.OrderID+"/payment/qr.png", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	// Gateway settles the order; polling observes it and stops
	api.MarkPaid(result.OrderID)

	require.Eventually(t, sawPaid.Load, waitFor, tick)

	require.Eventually(t, func() bool {
		v, code := c.payment(http.MethodGet, result.OrderID, "")
		return code == http.StatusOK && v.Phase == payment.PhaseTerminal && !v.Polling
	}, waitFor, tick)

	view, code = c.payment(http.MethodGet, result.OrderID, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, model.OrderStatusPaid, view.Status)
	assert.Nil(t, view.Invoice)
	assert.Empty(t, view.QRImage)
	require.NotNil(t, view.Redirect)
	assert.Equal(t, "/orders/"+result.OrderID, view.Redirect.Path)

	// A settled order never reaches the initiate endpoint again
	w = c.do(http.MethodPost, "/api/orders/"+result.OrderID+"/payment/initiate", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 1, api.InitiateCalls(result.OrderID))

	// The second order reuses the saved default address
	w = c.do(http.MethodPost, "/api/checkout", orderForm(date))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var second checkout.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	assert.Equal(t, result.AddressID, second.AddressID)
}

func TestGuestCheckoutAndCancel_Integration(t *testing.T) {
	api := NewFakeAPI(t)
	application := SetupTestServer(t, api, nil)

	c := &client{t: t, server: application.Handler, guestID: "guest-1"}

	w := c.do(http.MethodPost, "/api/checkout", orderForm(tomorrow(t)))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var result checkout.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Empty(t, result.AddressID)

	order, ok := api.Order(result.OrderID)
	require.True(t, ok)
	require.NotNil(t, order.Address)
	assert.Equal(t, "Сүхбаатар дүүрэг", order.Address.District)
	assert.Nil(t, order.AddressID)

	// The guest's contact details are cached for the session
	w = c.do(http.MethodGet, "/api/session", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sess handler.SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	require.NotNil(t, sess.Profile)
	assert.Equal(t, "Бат-Эрдэнэ", sess.Profile.Name)
	assert.True(t, sess.Profile.Guest)

	view, code := c.payment(http.MethodGet, result.OrderID, "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, payment.PhaseReady, view.Phase)

	view, code = c.payment(http.MethodPost, result.OrderID, "cancel")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, payment.PhaseTerminal, view.Phase)
	assert.Equal(t, model.OrderStatusCancelled, view.Status)
	assert.False(t, view.Polling)

	// Cancelling again is a no-op
	view, code = c.payment(http.MethodPost, result.OrderID, "cancel")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, model.OrderStatusCancelled, view.Status)

	w = c.do(http.MethodGet, "/api/orders/"+result.OrderID+"/payment/qr.png", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	_, code = c.payment(http.MethodPost, result.OrderID, "initiate")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, 1, api.InitiateCalls(result.OrderID))
}

func TestCheckoutValidation_Integration(t *testing.T) {
	api := NewFakeAPI(t)
	application := SetupTestServer(t, api, nil)

	tests := []struct {
		name          string
		token         string
		mutate        func(r *checkout.SubmitRequest)
		expectedCode  string
		expectedField string
	}{
		{
			name:          "Empty cart",
			mutate:        func(r *checkout.SubmitRequest) { r.Items = nil },
			expectedCode:  model.ErrCodeEmptyCart,
			expectedField: "items",
		},
		{
			name:          "Past delivery date",
			mutate:        func(r *checkout.SubmitRequest) { r.DeliveryDate = "2020-01-01" },
			expectedCode:  model.ErrCodeSlotUnavailable,
			expectedField: "deliveryTimeSlot",
		},
		{
			name:          "Guest missing khoroo",
			mutate:        func(r *checkout.SubmitRequest) { r.Address.Khoroo = "" },
			expectedCode:  model.ErrCodeMissingField,
			expectedField: "address.khoroo",
		},
		{
			name:          "User missing khoroo",
			token:         TestToken,
			mutate:        func(r *checkout.SubmitRequest) { r.Address.Khoroo = "" },
			expectedCode:  model.ErrCodeMissingField,
			expectedField: "address.khoroo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &client{t: t, server: application.Handler, token: tt.token, guestID: "guest-2"}
			form := orderForm(tomorrow(t))
			tt.mutate(form)

			w := c.do(http.MethodPost, "/api/checkout", form)

			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			var resp model.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.expectedCode, resp.Error)
			assert.Equal(t, tt.expectedField, resp.Field)
		})
	}
}

func TestCORS_Integration(t *testing.T) {
	api := NewFakeAPI(t)
	application := SetupTestServer(t, api, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/checkout", nil)
	w := httptest.NewRecorder()
	application.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	w = httptest.NewRecorder()
	application.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
}
