package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billing-lifecycle/internal/commands"
	"billing-lifecycle/internal/domain/currency"
	"billing-lifecycle/internal/domain/order"
	billing_errors "billing-lifecycle/pkg/errors"
)

type fakeBus struct {
	got []commands.Command
	res commands.Result
	err error
}

func (b *fakeBus) Execute(_ context.Context, cmd commands.Command) (commands.Result, error) {
	b.got = append(b.got, cmd)
	return b.res, b.err
}

type fakeRates struct {
	quote   currency.Quote
	err     error
	upserts []currency.ExchangeRate
}

func (f *fakeRates) GetRate(_ context.Context, base, target string) (currency.Quote, error) {
	if f.err != nil {
		return currency.Quote{}, f.err
	}
	return f.quote, nil
}

func (f *fakeRates) Convert(ctx context.Context, amount decimal.Decimal, base, target string) (decimal.Decimal, currency.Quote, error) {
	q, err := f.GetRate(ctx, base, target)
	if err != nil {
		return decimal.Zero, q, err
	}
	return q.Convert(amount), q, nil
}

func (f *fakeRates) UpsertRate(_ context.Context, r currency.ExchangeRate) (currency.ExchangeRate, error) {
	f.upserts = append(f.upserts, r)
	if r.ID == 0 {
		r.ID = 7
	}
	return r, f.err
}

type fakeArchive struct{}

func (fakeArchive) DownloadURL(_ context.Context, number string) (string, error) {
	if number == "missing" {
		return "", fmt.Errorf("invoice %s: %w", number, billing_errors.ErrNotFound)
	}
	return "https://objects.example.com/invoices/" + number + ".json?sig=abc", nil
}

func newRouter(bus CommandExecutor, rates RateQuerier, archive ArchiveLinker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	d, o, i, rh := NewDomainHandler(bus), NewOrderHandler(bus), NewInvoiceHandler(bus, archive), NewRateHandler(rates)
	r.POST("/v1/domains/registrations", d.Register)
	r.POST("/v1/domains/:id/renewals", d.Renew)
	r.POST("/v1/domains/:id/transitions", d.Transition)
	r.POST("/v1/orders", o.Place)
	r.POST("/v1/orders/:id/provision", o.Provision)
	r.POST("/v1/orders/:id/transitions", o.Transition)
	r.POST("/v1/invoices/:id/payments", i.RecordPayment)
	r.GET("/v1/invoices/archive/:number", i.ArchiveLink)
	r.GET("/v1/rates/convert", rh.Convert)
	r.GET("/v1/rates/:base/:target", rh.Get)
	r.POST("/v1/rates", rh.Upsert)
	r.PUT("/v1/rates/:id", rh.Upsert)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func TestRegisterDomainDispatchesCommand(t *testing.T) {
	bus := &fakeBus{res: commands.Succeeded("corr-1", "pending_payment", 11).WithInvoice(21)}
	r := newRouter(bus, &fakeRates{}, nil)

	w := do(t, r, http.MethodPost, "/v1/domains/registrations", map[string]any{
		"customer_id": 1, "registrar_id": 2, "domain_name": "example.com", "years": 2, "auto_renew": true,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	require.Len(t, bus.got, 1)
	assert.Equal(t, commands.RegisterDomain{CustomerID: 1, RegistrarID: 2, DomainName: "example.com", Years: 2, AutoRenew: true}, bus.got[0])

	env := decode(t, w)
	assert.True(t, env.Success)
	var res commands.Result
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "corr-1", res.CorrelationID)
	assert.Equal(t, int64(21), res.InvoiceID)
}

func TestFailedResultsMapToStatus(t *testing.T) {
	cases := []struct {
		kind   commands.ErrorKind
		status int
		code   string
	}{
		{commands.KindValidation, http.StatusUnprocessableEntity, "VALIDATION"},
		{commands.KindNotFound, http.StatusNotFound, "NOT_FOUND"},
		{commands.KindConflict, http.StatusConflict, "CONFLICT"},
		{commands.KindDependency, http.StatusServiceUnavailable, "DEPENDENCY"},
		{commands.KindInfrastructure, http.StatusInternalServerError, "INFRASTRUCTURE"},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			bus := &fakeBus{res: commands.Failed("corr-2", tc.kind, "nope")}
			w := do(t, newRouter(bus, &fakeRates{}, nil), http.MethodPost, "/v1/orders/5/provision", nil)
			assert.Equal(t, tc.status, w.Code)
			env := decode(t, w)
			assert.False(t, env.Success)
			assert.Equal(t, "nope", env.Error)
			assert.Equal(t, tc.code, env.Code)
		})
	}
}

func TestInfrastructureErrorIsAttached(t *testing.T) {
	bus := &fakeBus{res: commands.Failed("corr-3", commands.KindInfrastructure, "db down"), err: errors.New("db down")}
	r := newRouter(bus, &fakeRates{}, nil)
	var attached []error
	r.Use(func(c *gin.Context) {
		c.Next()
		for _, e := range c.Errors {
			attached = append(attached, e.Err)
		}
	})
	r.POST("/orders/:id/provision", NewOrderHandler(bus).Provision)

	w := do(t, r, http.MethodPost, "/orders/5/provision", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	require.Len(t, attached, 1)
	assert.EqualError(t, attached[0], "db down")
}

func TestTransitionsCarryPathAndBody(t *testing.T) {
	bus := &fakeBus{res: commands.Succeeded("c", "Suspended", 9)}
	r := newRouter(bus, &fakeRates{}, nil)

	w := do(t, r, http.MethodPost, "/v1/orders/9/transitions", map[string]string{"transition": "Suspend", "reason": "abuse"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, commands.TransitionOrder{OrderID: 9, Transition: order.Suspend, Reason: "abuse"}, bus.got[0])

	w = do(t, r, http.MethodPost, "/v1/domains/3/renewals", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, commands.RenewDomain{DomainID: 3}, bus.got[1])
}

func TestRequestRejections(t *testing.T) {
	bus := &fakeBus{res: commands.Succeeded("c", "ok", 1)}
	r := newRouter(bus, &fakeRates{}, nil)

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/v1/orders/abc/provision", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/v1/orders/0/provision", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/v1/orders/4/transitions", map[string]string{}).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/v1/invoices/4/payments", map[string]string{}).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/v1/domains/registrations", map[string]any{"customer_id": 1}).Code)
	assert.Empty(t, bus.got)
}

func TestPlaceOrderAndPayment(t *testing.T) {
	bus := &fakeBus{res: commands.Succeeded("c", "pending", 4)}
	r := newRouter(bus, &fakeRates{}, nil)

	w := do(t, r, http.MethodPost, "/v1/orders", map[string]any{
		"customer_id": 1, "service_type": "hosting", "reference": "web-01", "amount": "9.99", "currency": "USD",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	placed := bus.got[0].(commands.PlaceOrder)
	assert.True(t, placed.Amount.Equal(decimal.RequireFromString("9.99")))

	w = do(t, r, http.MethodPost, "/v1/invoices/12/payments", map[string]string{"transaction_id": "txn-9"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, commands.RecordPayment{InvoiceID: 12, TransactionID: "txn-9"}, bus.got[1])
}

func TestRateEndpoints(t *testing.T) {
	rates := &fakeRates{quote: currency.Quote{Base: "USD", Target: "EUR", Rate: decimal.RequireFromString("0.9975"), RateID: 3}}
	r := newRouter(&fakeBus{}, rates, nil)

	w := do(t, r, http.MethodGet, "/v1/rates/USD/EUR", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"rate":"0.9975"`)

	w = do(t, r, http.MethodGet, "/v1/rates/convert?amount=100&from=USD&to=EUR", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"converted":"99.75"`)

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/v1/rates/convert?amount=lots&from=USD&to=EUR", nil).Code)

	w = do(t, r, http.MethodPost, "/v1/rates", map[string]any{"base_currency": "USD", "target_currency": "EUR", "rate": "0.95"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = do(t, r, http.MethodPut, "/v1/rates/7", map[string]any{"base_currency": "USD", "target_currency": "EUR", "rate": "0.96"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, rates.upserts, 2)
	assert.Equal(t, int64(7), rates.upserts[1].ID)
	assert.True(t, rates.upserts[0].IsActive)
}

func TestRateErrorsMapToStatus(t *testing.T) {
	rates := &fakeRates{err: fmt.Errorf("no rate USD/JPY: %w", billing_errors.ErrNotFound)}
	r := newRouter(&fakeBus{}, rates, nil)
	w := do(t, r, http.MethodGet, "/v1/rates/USD/JPY", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode(t, w).Code)

	rates.err = fmt.Errorf("bad code: %w", billing_errors.ErrInvalidInput)
	w = do(t, r, http.MethodGet, "/v1/rates/US/EUR", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestArchiveLink(t *testing.T) {
	w := do(t, newRouter(&fakeBus{}, &fakeRates{}, nil), http.MethodGet, "/v1/invoices/archive/INV-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	r := newRouter(&fakeBus{}, &fakeRates{}, fakeArchive{})
	w = do(t, r, http.MethodGet, "/v1/invoices/archive/INV-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "invoices/INV-1.json")

	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/v1/invoices/archive/missing", nil).Code)
}
