package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"billing-lifecycle/config"
	"billing-lifecycle/internal/commands"
	"billing-lifecycle/internal/domain/catalog"
	"billing-lifecycle/internal/events"
	"billing-lifecycle/internal/handler"
	"billing-lifecycle/internal/metrics"
	"billing-lifecycle/internal/providers"
	"billing-lifecycle/internal/services"
	"billing-lifecycle/internal/testutil"
	"billing-lifecycle/pkg/logger"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type stack struct {
	srv      *Server
	customer int64
}

func newStack(t *testing.T, db Pinger) stack {
	t.Helper()
	store := testutil.NewStore(t)
	reg := prometheus.NewRegistry()
	deps := services.NewDeps(store, events.NewLocalSignal(), zap.NewNop(), metrics.New(reg), nil)

	rates := services.NewRateService(deps, nil)
	invoices := services.NewInvoiceService(deps, rates, 7)
	factory := providers.NewRegistrarFactory()
	notifications := services.NewNotifications(providers.NewRecordingNotifier(), store.Repos().Customers, deps.Log)

	bus := commands.NewBus()
	services.RegisterCommands(bus, services.Workflows{
		Registration: services.NewDomainRegistration(deps, factory, invoices, time.Second),
		Renewal:      services.NewDomainRenewal(deps, factory, providers.NewSandboxPayments(), invoices, notifications, 0, time.Second),
		Provisioning: services.NewOrderProvisioning(deps, map[catalog.ServiceType]providers.Provisioner{
			catalog.ServiceTypeHosting: &providers.SandboxProvisioner{},
		}, invoices, time.Second, false),
		Payments:  services.NewPaymentService(deps),
		Lifecycle: services.NewLifecycleService(deps),
	})

	if db == nil {
		db = store
	}
	srv := New(&config.Config{AppPort: "0", AppMode: TestMode}, &logger.Logger{Logger: zap.NewNop()})
	srv.SetupRoutes(&Handlers{
		Domains:  handler.NewDomainHandler(bus),
		Orders:   handler.NewOrderHandler(bus),
		Invoices: handler.NewInvoiceHandler(bus, nil),
		Rates:    handler.NewRateHandler(rates),
	}, Infra{DB: db, Metrics: reg})

	return stack{srv: srv, customer: testutil.SeedCustomer(t, store, "USD").ID}
}

func (s stack) call(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, commands.Result) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Correlation-Id", "corr-http")
	w := httptest.NewRecorder()
	s.srv.Handler().ServeHTTP(w, req)

	var env struct {
		Data commands.Result `json:"data"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env.Data
}

func TestAmbientRoutes(t *testing.T) {
	s := newStack(t, nil)

	w, _ := s.call(t, http.MethodGet, "/ping", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	w, _ = s.call(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.call(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	down := newStack(t, pinger{err: errors.New("connection refused")})
	w, _ = down.call(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "UNHEALTHY")
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	s := newStack(t, nil)

	w, placed := s.call(t, http.MethodPost, "/v1/orders", map[string]any{
		"customer_id": s.customer, "service_type": "hosting", "reference": "web-01", "amount": "9.99", "currency": "USD",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "corr-http", placed.CorrelationID)
	require.NotZero(t, placed.InvoiceID)

	w, paid := s.call(t, http.MethodPost, fmt.Sprintf("/v1/invoices/%d/payments", placed.InvoiceID), map[string]string{"transaction_id": "txn-1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, paid.Success)

	w, provisioned := s.call(t, http.MethodPost, fmt.Sprintf("/v1/orders/%d/provision", placed.AggregateID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "activated", provisioned.Outcome)

	w, _ = s.call(t, http.MethodPost, fmt.Sprintf("/v1/orders/%d/transitions", placed.AggregateID), map[string]string{"transition": "Activate"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "Activate belongs to the provisioning workflow")

	w, _ = s.call(t, http.MethodPost, "/v1/orders/999/transitions", map[string]string{"transition": "Suspend"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRatesOverHTTP(t *testing.T) {
	s := newStack(t, nil)

	w, _ := s.call(t, http.MethodGet, "/v1/rates/USD/EUR", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.call(t, http.MethodPost, "/v1/rates", map[string]any{
		"base_currency": "usd", "target_currency": "eur", "rate": "0.95", "markup_percentage": "5",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, _ = s.call(t, http.MethodGet, "/v1/rates/convert?amount=100&from=USD&to=EUR", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"converted":"99.75"`)
}
