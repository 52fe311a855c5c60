package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"storefront/internal/app"
	"storefront/internal/config"
	"storefront/internal/model"
	"storefront/internal/repository"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Credentials accepted by the fake API.
const (
	TestPhone = "88112233"
	TestPIN   = "1234"
	TestToken = "tok-88112233"
)

// TestDB represents a test database instance.
type TestDB struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// SetupTestDB creates a PostgreSQL test container with the ledger schema.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	ctx := context.Background()

	// Create PostgreSQL container
	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	// Get connection string
	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("failed to create connection pool: %v", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	if err := repository.EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	t.Cleanup(func() {
		pool.Close()
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	return &TestDB{
		Container: postgresContainer,
		Pool:      pool,
		ConnStr:   connStr,
	}
}

// CleanupDB cleans all data from the ledger tables.
func CleanupDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx := context.Background()

	tables := []string{"payment_attempts", "payment_terminals"}
	for _, table := range tables {
		_, err := pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s", table))
		if err != nil {
			t.Logf("failed to clean table %s: %v", table, err)
		}
	}
}

// FakeAPI is an in-memory stand-in for the storefront REST API.
type FakeAPI struct {
	*httptest.Server

	mu        sync.Mutex
	nextID    int
	orders    map[string]*fakeOrder
	addresses []model.Address
	initiates map[string]int
}

type fakeOrder struct {
	order   model.Order
	payment model.OrderStatus
}

// NewFakeAPI starts a fake API server, closed with the test.
func NewFakeAPI(t *testing.T) *FakeAPI {
	t.Helper()

	f := &FakeAPI{
		orders:    make(map[string]*fakeOrder),
		initiates: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", f.login)
	mux.HandleFunc("GET /addresses", f.authorized(f.listAddresses))
	mux.HandleFunc("POST /addresses", f.authorized(f.createAddress))
	mux.HandleFunc("POST /orders", f.createOrder)
	mux.HandleFunc("GET /orders/{id}", f.getOrder)
	mux.HandleFunc("POST /orders/{id}/payment/initiate", f.initiate)
	mux.HandleFunc("GET /orders/{id}/payment/status", f.status)
	mux.HandleFunc("POST /orders/{id}/payment/cancel", f.cancel)

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)

	return f
}

// MarkPaid settles an order as the payment gateway callback would.
func (f *FakeAPI) MarkPaid(orderID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.orders[orderID]; ok {
		o.order.Status = model.OrderStatusPaid
		o.payment = model.OrderStatusPaid
	}
}

// InitiateCalls returns how many initiate requests reached the API for order.
func (f *FakeAPI) InitiateCalls(orderID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initiates[orderID]
}

// Order returns a copy of the stored order.
func (f *FakeAPI) Order(orderID string) (model.Order, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return model.Order{}, false
	}
	return o.order, true
}

func (f *FakeAPI) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+TestToken {
			reply(w, http.StatusUnauthorized, map[string]string{"message": "Нэвтэрнэ үү"})
			return
		}
		next(w, r)
	}
}

func (f *FakeAPI) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Phone    string `json:"phone"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		reply(w, http.StatusBadRequest, map[string]string{"message": "invalid body"})
		return
	}
	if body.Phone != TestPhone || body.Password != TestPIN {
		reply(w, http.StatusUnauthorized, map[string]string{"message": "Утасны дугаар эсвэл нууц үг буруу"})
		return
	}
	reply(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    map[string]string{"token": TestToken},
	})
}

func (f *FakeAPI) listAddresses(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]model.Address{}, f.addresses...)
	reply(w, http.StatusOK, out)
}

func (f *FakeAPI) createAddress(w http.ResponseWriter, r *http.Request) {
	var req model.AddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		reply(w, http.StatusBadRequest, map[string]string{"message": "invalid body"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	addr := model.Address{
		ID:        fmt.Sprintf("addr-%d", f.nextID),
		District:  req.District,
		Khoroo:    req.Khoroo,
		Building:  req.Building,
		Apartment: req.Apartment,
		IsDefault: req.IsDefault,
	}
	f.addresses = append(f.addresses, addr)
	reply(w, http.StatusCreated, addr)
}

func (f *FakeAPI) createOrder(w http.ResponseWriter, r *http.Request) {
	var req model.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		reply(w, http.StatusBadRequest, map[string]string{"message": "invalid body"})
		return
	}
	guest := r.Header.Get("Authorization") == ""
	if guest && req.Address == nil {
		reply(w, http.StatusBadRequest, map[string]string{"message": "Хаяг оруулна уу"})
		return
	}
	if !guest && req.AddressID == nil {
		reply(w, http.StatusBadRequest, map[string]string{"message": "Хаяг сонгоно уу"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	order := model.Order{
		ID:               fmt.Sprintf("ord-%d", f.nextID),
		Status:           model.OrderStatusPending,
		TotalAmount:      decimal.RequireFromString("45000.00"),
		CreatedAt:        time.Now().UTC(),
		AddressID:        req.AddressID,
		Address:          req.Address,
		DeliveryDate:     req.DeliveryDate,
		DeliveryTimeSlot: req.DeliveryTimeSlot,
	}
	f.orders[order.ID] = &fakeOrder{order: order, payment: model.OrderStatusPending}
	reply(w, http.StatusCreated, order)
}

func (f *FakeAPI) getOrder(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[r.PathValue("id")]
	if !ok {
		reply(w, http.StatusNotFound, map[string]string{"message": "Захиалга олдсонгүй"})
		return
	}
	reply(w, http.StatusOK, o.order)
}

func (f *FakeAPI) initiate(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := r.PathValue("id")
	o, ok := f.orders[id]
	if !ok {
		reply(w, http.StatusNotFound, map[string]string{"message": "Захиалга олдсонгүй"})
		return
	}
	f.initiates[id]++
	if o.payment != model.OrderStatusPending {
		reply(w, http.StatusConflict, map[string]string{
			"code":    model.ErrCodeOrderAlreadySettled,
			"message": "Захиалга төлөгдсөн эсвэл цуцлагдсан байна",
		})
		return
	}

	o.order.InvoiceID = "inv-" + id
	reply(w, http.StatusOK, model.PaymentInvoice{
		InvoiceID: o.order.InvoiceID,
		QRCode:    "qr-" + o.order.InvoiceID,
		QRText:    "0002010102121531279404962794049600022310027138152045734530349654031005802MN5904TEST6011ULAANBAATAR",
		URLs: []model.DeepLink{
			{Name: "Khan bank", Description: "Хаан банк", Link: "khanbank://q?qPay_QRcode=" + id},
			{Name: "Social Pay", Description: "Голомт банк", Link: "socialpay-payment://q?qPay_QRcode=" + id},
		},
	})
}

func (f *FakeAPI) status(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[r.PathValue("id")]
	if !ok {
		reply(w, http.StatusNotFound, map[string]string{"message": "Захиалга олдсонгүй"})
		return
	}
	reply(w, http.StatusOK, model.PaymentStatus{
		PaymentStatus:     o.payment,
		ShouldStopPolling: o.payment != model.OrderStatusPending,
	})
}

func (f *FakeAPI) cancel(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[r.PathValue("id")]
	if !ok {
		reply(w, http.StatusNotFound, map[string]string{"message": "Захиалга олдсонгүй"})
		return
	}
	if o.payment == model.OrderStatusPaid {
		reply(w, http.StatusConflict, map[string]string{"message": "Төлөгдсөн захиалгыг цуцлах боломжгүй"})
		return
	}
	o.order.Status = model.OrderStatusCancelled
	o.payment = model.OrderStatusCancelled
	w.WriteHeader(http.StatusNoContent)
}

func reply(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// TestConfig returns a configuration pointing at api with fast poll timings.
func TestConfig(api *FakeAPI) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 8080, Timezone: "Asia/Ulaanbaatar"},
		API:    config.APIConfig{BaseURL: strings.TrimRight(api.URL, "/"), Timeout: 5 * time.Second},
		Payment: config.PaymentConfig{
			PollInterval:      20 * time.Millisecond,
			PollHorizon:       10 * time.Second,
			InProgressBackoff: 100 * time.Millisecond,
			PaidRedirectDelay: 10 * time.Millisecond,
			DeepLinkDelay:     10 * time.Millisecond,
			WalletApps:        []string{"qpay", "khanbank", "socialpay", "monpay"},
			QRSize:            256,
		},
		Scheduler: config.SchedulerConfig{SweepInterval: time.Minute, EntryIdleTTL: time.Hour},
		Logger:    config.LoggerConfig{Level: "error", Format: "json"},
	}
}

// SetupTestServer wires the whole BFF against api. A nil pool disables the
// ledger.
func SetupTestServer(t *testing.T, api *FakeAPI, pool *pgxpool.Pool) *app.App {
	t.Helper()

	application, err := app.New(context.Background(), TestConfig(api), zerolog.Nop(), app.Options{
		HTTPClient: api.Client(),
		Pool:       pool,
	})
	if err != nil {
		t.Fatalf("failed to wire application: %v", err)
	}
	application.Start()
	t.Cleanup(func() {
		if err := application.Close(); err != nil {
			t.Logf("failed to close application: %v", err)
		}
	})

	return application
}
