package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront/internal/apiclient"
	"storefront/internal/checkout"
	"storefront/internal/events"
	"storefront/internal/middleware"
	"storefront/internal/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockCheckoutService is a mock implementation of CheckoutService.
type MockCheckoutService struct {
	mock.Mock
}

func (m *MockCheckoutService) Submit(ctx context.Context, token string, req *checkout.SubmitRequest) (*checkout.Result, error) {
	args := m.Called(ctx, token, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*checkout.Result), args.Error(1)
}

// MockAddressService is a mock implementation of AddressService.
type MockAddressService struct {
	mock.Mock
}

func (m *MockAddressService) List(ctx context.Context, token string) ([]model.Address, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Address), args.Error(1)
}

func (m *MockAddressService) Create(ctx context.Context, token string, in *model.AddressInput, isDefault bool) (*model.Address, error) {
	args := m.Called(ctx, token, in, isDefault)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Address), args.Error(1)
}

func (m *MockAddressService) Update(ctx context.Context, token, id string, in *model.AddressInput, isDefault bool) (*model.Address, error) {
	args := m.Called(ctx, token, id, in, isDefault)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Address), args.Error(1)
}

func (m *MockAddressService) Delete(ctx context.Context, token, id string) error {
	args := m.Called(ctx, token, id)
	return args.Error(0)
}

func (m *MockAddressService) SetDefault(ctx context.Context, token, id string) error {
	args := m.Called(ctx, token, id)
	return args.Error(0)
}

// serve runs h behind the request id and identity middleware.
func serve(h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	chain := middleware.RequestID(middleware.BearerToken(events.Discard, clockwork.NewRealClock(), zerolog.Nop())(h))
	chain.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) model.ErrorResponse {
	t.Helper()
	var resp model.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func checkoutBody() *checkout.SubmitRequest {
	return &checkout.SubmitRequest{
		Items:            []checkout.CartItem{{ProductID: "P001", Quantity: 2}},
		DeliveryDate:     "2026-10-18",
		DeliveryTimeSlot: "14-18",
		Contact:          model.ContactInfo{Name: "Bat", Phone: "88112233", Email: "bat@example.mn"},
	}
}

func TestCheckoutHandler_Submit(t *testing.T) {
	logger := zerolog.Nop()

	tests := []struct {
		name           string
		requestBody    interface{}
		token          string
		guestID        string
		mockReturn     *checkout.Result
		mockError      error
		expectedStatus int
		expectService  bool
		expectedKey    string
		expectedCode   string
		expectedField  string
		expectRedirect string
		expectMessage  string
	}{
		{
			name:           "Authenticated success",
			requestBody:    checkoutBody(),
			token:          "tok-1",
			mockReturn:     &checkout.Result{OrderID: "ord-1", RedirectPath: "/orders/ord-1"},
			expectedStatus: http.StatusCreated,
			expectService:  true,
			expectedKey:    "token:tok-1",
		},
		{
			name:           "Guest success",
			requestBody:    checkoutBody(),
			guestID:        "g-1",
			mockReturn:     &checkout.Result{OrderID: "ord-2", RedirectPath: "/orders/ord-2"},
			expectedStatus: http.StatusCreated,
			expectService:  true,
			expectedKey:    "guest:g-1",
		},
		{
			name:        "Empty cart",
			requestBody: checkoutBody(),
			token:       "tok-1",
			mockError: &model.ValidationError{
				Field:          "items",
				Code:           model.ErrCodeEmptyCart,
				Message:        "cart is empty",
				RedirectToCart: true,
			},
			expectedStatus: http.StatusBadRequest,
			expectService:  true,
			expectedKey:    "token:tok-1",
			expectedCode:   model.ErrCodeEmptyCart,
			expectedField:  "items",
			expectRedirect: "/cart",
		},
		{
			name:           "Slot unavailable",
			requestBody:    checkoutBody(),
			token:          "tok-1",
			mockError:      model.NewValidationError("deliveryTimeSlot", model.ErrCodeSlotUnavailable, model.ErrSlotUnavailable.Message),
			expectedStatus: http.StatusBadRequest,
			expectService:  true,
			expectedKey:    "token:tok-1",
			expectedCode:   model.ErrCodeSlotUnavailable,
			expectedField:  "deliveryTimeSlot",
		},
		{
			name:           "Submit already in progress",
			requestBody:    checkoutBody(),
			token:          "tok-1",
			mockError:      model.ErrSubmitInProgress,
			expectedStatus: http.StatusConflict,
			expectService:  true,
			expectedKey:    "token:tok-1",
			expectedCode:   model.ErrCodeSubmitInProgress,
		},
		{
			name:           "API rejection passes message through",
			requestBody:    checkoutBody(),
			token:          "tok-1",
			mockError:      &apiclient.Error{Status: http.StatusUnprocessableEntity, Message: "Барааны үлдэгдэл хүрэлцэхгүй байна"},
			expectedStatus: http.StatusUnprocessableEntity,
			expectService:  true,
			expectedKey:    "token:tok-1",
			expectedCode:   model.ErrCodeAPIError,
			expectMessage:  "Барааны үлдэгдэл хүрэлцэхгүй байна",
		},
		{
			name:           "API fault",
			requestBody:    checkoutBody(),
			token:          "tok-1",
			mockError:      &apiclient.Error{Status: http.StatusInternalServerError, Message: "upstream down"},
			expectedStatus: http.StatusBadGateway,
			expectService:  true,
			expectedKey:    "token:tok-1",
			expectedCode:   model.ErrCodeAPIError,
			expectMessage:  model.ErrPaymentUnconfigured.Message,
		},
		{
			name:           "Invalid JSON",
			requestBody:    "invalid json",
			expectedStatus: http.StatusBadRequest,
			expectService:  false,
			expectedCode:   model.ErrCodeInvalidJSON,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockCheckoutService)
			handler := NewCheckoutHandler(mockService, new(MockAddressService), logger)

			var body []byte
			if str, ok := tt.requestBody.(string); ok {
				body = []byte(str)
			} else {
				var err error
				body, err = json.Marshal(tt.requestBody)
				require.NoError(t, err)
			}

			if tt.expectService {
				mockService.On("Submit", mock.Anything, tt.token, mock.MatchedBy(func(req *checkout.SubmitRequest) bool {
					return req.SessionKey == tt.expectedKey && len(req.Items) == 1
				})).Return(tt.mockReturn, tt.mockError)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/checkout", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			if tt.guestID != "" {
				req.Header.Set(middleware.HeaderGuestID, tt.guestID)
			}

			w := serve(handler.Submit, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			if tt.expectedStatus == http.StatusCreated {
				var result checkout.Result
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
				assert.Equal(t, tt.mockReturn.OrderID, result.OrderID)
				assert.Equal(t, tt.mockReturn.RedirectPath, result.RedirectPath)
			} else {
				resp := decodeError(t, w)
				assert.Equal(t, tt.expectedCode, resp.Error)
				assert.Equal(t, tt.expectedField, resp.Field)
				assert.Equal(t, tt.expectRedirect, resp.Redirect)
				assert.NotEmpty(t, resp.RequestID)
				if tt.expectMessage != "" {
					assert.Equal(t, tt.expectMessage, resp.Message)
				}
			}

			if tt.expectService {
				mockService.AssertExpectations(t)
			} else {
				mockService.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestCheckoutHandler_Submit_AnonymousGetsPerRequestKey(t *testing.T) {
	mockService := new(MockCheckoutService)
	handler := NewCheckoutHandler(mockService, new(MockAddressService), zerolog.Nop())

	mockService.On("Submit", mock.Anything, "", mock.MatchedBy(func(req *checkout.SubmitRequest) bool {
		return req.SessionKey == "request:req-9"
	})).Return(&checkout.Result{OrderID: "ord-3", RedirectPath: "/orders/ord-3"}, nil)

	body, err := json.Marshal(checkoutBody())
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/checkout", bytes.NewBuffer(body))
	req.Header.Set(middleware.HeaderRequestID, "req-9")

	w := serve(handler.Submit, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	mockService.AssertExpectations(t)
}

func expiredToken(t *testing.T) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestCheckoutHandler_ExpiredSessionIsNotAGuest(t *testing.T) {
	token := expiredToken(t)
	body, err := json.Marshal(checkoutBody())
	require.NoError(t, err)

	mockService := new(MockCheckoutService)
	mockAddresses := new(MockAddressService)
	handler := NewCheckoutHandler(mockService, mockAddresses, zerolog.Nop())

	tests := []struct {
		name    string
		handler http.HandlerFunc
		method  string
		path    string
		body    []byte
	}{
		{name: "Submit", handler: handler.Submit, method: http.MethodPost, path: "/api/checkout", body: body},
		{name: "List addresses", handler: handler.ListAddresses, method: http.MethodGet, path: "/api/addresses"},
		{name: "Delete address", handler: handler.DeleteAddress, method: http.MethodDelete, path: "/api/addresses/addr-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, bytes.NewReader(tt.body))
			req.Header.Set("Authorization", "Bearer "+token)
			req.Header.Set(middleware.HeaderGuestID, "guest-7")

			w := serve(tt.handler, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			resp := decodeError(t, w)
			assert.Equal(t, model.ErrCodeAuthRequired, resp.Error)
			assert.Equal(t, string(model.KindAuthRequired), resp.Kind)
		})
	}

	mockService.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)
	mockAddresses.AssertExpectations(t)
}

func TestCheckoutHandler_Addresses(t *testing.T) {
	logger := zerolog.Nop()
	saved := &model.Address{ID: "addr-1", District: "Сүхбаатар", Khoroo: "1-р хороо", IsDefault: true}

	t.Run("List returns empty array", func(t *testing.T) {
		addresses := new(MockAddressService)
		addresses.On("List", mock.Anything, "tok-1").Return(nil, nil)
		handler := NewCheckoutHandler(new(MockCheckoutService), addresses, logger)

		req := httptest.NewRequest(http.MethodGet, "/api/addresses", nil)
		req.Header.Set("Authorization", "Bearer tok-1")
		w := serve(handler.ListAddresses, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[]`, w.Body.String())
		addresses.AssertExpectations(t)
	})

	t.Run("List without token requires auth", func(t *testing.T) {
		addresses := new(MockAddressService)
		addresses.On("List", mock.Anything, "").Return(nil, model.ErrAuthRequired)
		handler := NewCheckoutHandler(new(MockCheckoutService), addresses, logger)

		w := serve(handler.ListAddresses, httptest.NewRequest(http.MethodGet, "/api/addresses", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, model.ErrCodeAuthRequired, decodeError(t, w).Error)
	})

	t.Run("Create", func(t *testing.T) {
		addresses := new(MockAddressService)
		addresses.On("Create", mock.Anything, "tok-1", mock.MatchedBy(func(in *model.AddressInput) bool {
			return in.District == "Сүхбаатар" && in.Khoroo == "1-р хороо"
		}), true).Return(saved, nil)
		handler := NewCheckoutHandler(new(MockCheckoutService), addresses, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/addresses",
			bytes.NewBufferString(`{"district":"Сүхбаатар","khoroo":"1-р хороо","isDefault":true}`))
		req.Header.Set("Authorization", "Bearer tok-1")
		w := serve(handler.CreateAddress, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		var got model.Address
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, "addr-1", got.ID)
		addresses.AssertExpectations(t)
	})

	t.Run("Create missing khoroo", func(t *testing.T) {
		addresses := new(MockAddressService)
		addresses.On("Create", mock.Anything, "tok-1", mock.Anything, false).
			Return(nil, model.NewValidationError("address.khoroo", model.ErrCodeMissingField, "khoroo is required"))
		handler := NewCheckoutHandler(new(MockCheckoutService), addresses, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/addresses", bytes.NewBufferString(`{"district":"Сүхбаатар"}`))
		req.Header.Set("Authorization", "Bearer tok-1")
		w := serve(handler.CreateAddress, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeError(t, w)
		assert.Equal(t, model.ErrCodeMissingField, resp.Error)
		assert.Equal(t, "address.khoroo", resp.Field)
	})

	t.Run("Update uses path id", func(t *testing.T) {
		addresses := new(MockAddressService)
		addresses.On("Update", mock.Anything, "tok-1", "addr-1", mock.Anything, false).Return(saved, nil)
		handler := NewCheckoutHandler(new(MockCheckoutService), addresses, logger)

		req := httptest.NewRequest(http.MethodPut, "/api/addresses/addr-1",
			bytes.NewBufferString(`{"district":"Сүхбаатар","khoroo":"1-р хороо"}`))
		req.SetPathValue("id", "addr-1")
		req.Header.Set("Authorization", "Bearer tok-1")
		w := serve(handler.UpdateAddress, req)

		assert.Equal(t, http.StatusOK, w.Code)
		addresses.AssertExpectations(t)
	})

	t.Run("Delete", func(t *testing.T) {
		addresses := new(MockAddressService)
		addresses.On("Delete", mock.Anything, "tok-1", "addr-1").Return(nil)
		handler := NewCheckoutHandler(new(MockCheckoutService), addresses, logger)

		req := httptest.NewRequest(http.MethodDelete, "/api/addresses/addr-1", nil)
		req.SetPathValue("id", "addr-1")
		req.Header.Set("Authorization", "Bearer tok-1")
		w := serve(handler.DeleteAddress, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		addresses.AssertExpectations(t)
	})

	t.Run("Set default while another change runs", func(t *testing.T) {
		addresses := new(MockAddressService)
		addresses.On("SetDefault", mock.Anything, "tok-1", "addr-1").Return(model.ErrMutationInProgress)
		handler := NewCheckoutHandler(new(MockCheckoutService), addresses, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/addresses/addr-1/default", nil)
		req.SetPathValue("id", "addr-1")
		req.Header.Set("Authorization", "Bearer tok-1")
		w := serve(handler.SetDefaultAddress, req)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, model.ErrCodeMutationInProgress, decodeError(t, w).Error)
	})
}
