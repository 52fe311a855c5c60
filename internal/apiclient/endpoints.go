package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"storefront/internal/model"
)

// AuthToken is the login response.
type AuthToken struct {
	Token string `json:"token"`
}

// Login exchanges a phone number and PIN for a bearer token.
func (c *Client) Login(ctx context.Context, phone, pin string) (*AuthToken, error) {
	var out AuthToken
	body := map[string]string{"phone": phone, "password": pin}
	if err := c.do(ctx, call{method: http.MethodPost, path: "/auth/login", body: body}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateOrder submits a new order. An empty token places a guest order.
func (c *Client) CreateOrder(ctx context.Context, token string, req *model.CreateOrderRequest) (*model.Order, error) {
	var out model.Order
	if err := c.do(ctx, call{method: http.MethodPost, path: "/orders", token: token, body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOrder fetches an order with status, totals, items and address.
func (c *Client) GetOrder(ctx context.Context, token, orderID string) (*model.Order, error) {
	var out model.Order
	if err := c.do(ctx, call{method: http.MethodGet, path: orderPath(orderID, ""), token: token}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InitiatePayment asks the gateway for a QR invoice. A response without qrCode
// is returned alongside model.ErrNoQRCode.
func (c *Client) InitiatePayment(ctx context.Context, token, orderID string) (*model.PaymentInvoice, error) {
	var out model.PaymentInvoice
	if err := c.do(ctx, call{method: http.MethodPost, path: orderPath(orderID, "/payment/initiate"), token: token}, &out); err != nil {
		return nil, err
	}
	out.OrderID = orderID
	if !out.HasQR() {
		return &out, model.ErrNoQRCode
	}
	return &out, nil
}

// GetPaymentStatus returns the polled payment projection.
func (c *Client) GetPaymentStatus(ctx context.Context, token, orderID string) (*model.PaymentStatus, error) {
	var out model.PaymentStatus
	if err := c.do(ctx, call{method: http.MethodGet, path: orderPath(orderID, "/payment/status"), token: token}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelPayment cancels the order's payment. The endpoint is idempotent.
func (c *Client) CancelPayment(ctx context.Context, token, orderID string) error {
	return c.do(ctx, call{method: http.MethodPost, path: orderPath(orderID, "/payment/cancel"), token: token}, nil)
}

// ListAddresses returns the saved addresses of the authenticated user.
func (c *Client) ListAddresses(ctx context.Context, token string) ([]model.Address, error) {
	var out []model.Address
	if err := c.do(ctx, call{method: http.MethodGet, path: "/addresses", token: token, authRequired: true}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateAddress saves a new address.
func (c *Client) CreateAddress(ctx context.Context, token string, req *model.AddressRequest) (*model.Address, error) {
	var out model.Address
	if err := c.do(ctx, call{method: http.MethodPost, path: "/addresses", token: token, body: req, authRequired: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateAddress replaces a saved address.
func (c *Client) UpdateAddress(ctx context.Context, token, id string, req *model.AddressRequest) (*model.Address, error) {
	var out model.Address
	if err := c.do(ctx, call{method: http.MethodPut, path: addressPath(id, ""), token: token, body: req, authRequired: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteAddress removes a saved address.
func (c *Client) DeleteAddress(ctx context.Context, token, id string) error {
	return c.do(ctx, call{method: http.MethodDelete, path: addressPath(id, ""), token: token, authRequired: true}, nil)
}

// SetDefaultAddress marks a saved address as the default one.
func (c *Client) SetDefaultAddress(ctx context.Context, token, id string) error {
	return c.do(ctx, call{method: http.MethodPut, path: addressPath(id, "/default"), token: token, authRequired: true}, nil)
}

func orderPath(id, suffix string) string {
	return "/orders/" + url.PathEscape(id) + suffix
}

func addressPath(id, suffix string) string {
	return "/addresses/" + url.PathEscape(id) + suffix
}
