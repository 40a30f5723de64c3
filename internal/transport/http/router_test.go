package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zaptest"

	"github.com/cimillas/ultimate-ticket/services/core/internal/app"
	"github.com/cimillas/ultimate-ticket/services/core/internal/clock"
	"github.com/cimillas/ultimate-ticket/services/core/internal/payment"
	"github.com/cimillas/ultimate-ticket/services/core/internal/storage/memory"
)

var secret = []byte("router-test-secret")

type testServer struct {
	*httptest.Server
	store *memory.Store
	clock *clock.Manual
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.New()
	clk := clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	logger := zaptest.NewLogger(t)

	locks := app.NewLockService(store, clk, app.WithLogger(logger), app.WithLockTTL(5*time.Minute))
	coord := app.NewCoordinator(store, clk, app.WithLogger(logger))
	admin := app.NewAdminService(store, clk, app.WithLogger(logger))

	h := NewRouter(Services{
		Locks:         locks,
		Shipper:       coord,
		Registrations: coord,
		Payments:      app.NewPaymentVerifier(secret, coord, logger),
		Admin:         admin,
	}, nil, logger)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, store: store, clock: clk}
}

func (s *testServer) do(t *testing.T, method, path, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	res, err := s.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

func TestRouter_ReservationFlow(t *testing.T) {
	srv := newTestServer(t)

	status := srv.do(t, http.MethodPost, "/admin/resources", `{"id":"r1","name":"Concert","capacity":1}`, nil)
	require.Equal(t, http.StatusCreated, status)

	var lock lockResponse
	status = srv.do(t, http.MethodPost, "/reservations/lock", `{"resourceId":"r1","holderId":"alice"}`, &lock)
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, lock.LockID)
	assert.True(t, srv.clock.Now().Add(5*time.Minute).Equal(lock.ExpiresAt))

	var again lockResponse
	status = srv.do(t, http.MethodPost, "/reservations/lock", `{"resourceId":"r1","holderId":"alice"}`, &again)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, lock.LockID, again.LockID)

	var rejected errorResponse
	status = srv.do(t, http.MethodPost, "/reservations/lock", `{"resourceId":"r1","holderId":"bob"}`, &rejected)
	require.Equal(t, http.StatusConflict, status)
	assert.Equal(t, codeResourceExhausted, rejected.Code)

	var av availabilityResponse
	status = srv.do(t, http.MethodGet, "/resources/r1/availability", "", &av)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, availabilityResponse{ResourceID: "r1", Capacity: 1, ActiveLocks: 1, Available: 0}, av)

	sig := payment.Sign(secret, "ref-1", "pay-1")
	body := `{"paymentId":"pay-1","orderRef":"ref-1","signature":"` + sig + `","target":{"kind":"registration","resourceId":"r1","holderId":"alice"}}`
	var verified verifyPaymentResponse
	status = srv.do(t, http.MethodPost, "/payments/verify", body, &verified)
	require.Equal(t, http.StatusOK, status)
	require.True(t, verified.Verified)
	require.NotNil(t, verified.Registration)
	assert.True(t, verified.Registration.FromLock)
	assert.Empty(t, srv.store.Locks("r1"))

	res, ok := srv.store.Resource("r1")
	require.True(t, ok)
	assert.Equal(t, 1, res.Registered)

	status = srv.do(t, http.MethodDelete, "/registrations/"+verified.Registration.RegistrationID, "", nil)
	require.Equal(t, http.StatusOK, status)

	status = srv.do(t, http.MethodGet, "/resources/r1/availability", "", &av)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, av.Available)
}

func TestRouter_LockExpiresAndRelease(t *testing.T) {
	srv := newTestServer(t)
	require.Equal(t, http.StatusCreated, srv.do(t, http.MethodPost, "/admin/resources", `{"id":"r1","name":"Talk","capacity":1}`, nil))
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/reservations/lock", `{"resourceId":"r1","holderId":"alice"}`, nil))

	srv.clock.Advance(5 * time.Minute)
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/reservations/lock", `{"resourceId":"r1","holderId":"bob"}`, nil))

	var ok okResponse
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodDelete, "/reservations/lock", `{"resourceId":"r1","holderId":"bob"}`, &ok))
	assert.True(t, ok.OK)
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodDelete, "/reservations/lock", `{"resourceId":"r1","holderId":"bob"}`, nil))

	var av availabilityResponse
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/resources/r1/availability", "", &av))
	assert.Equal(t, 1, av.Available)
}

func TestRouter_ShipOrderOnce(t *testing.T) {
	srv := newTestServer(t)
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/admin/products", `{"id":"p1","name":"Mug","stock":10}`, nil))
	require.Equal(t, http.StatusCreated, srv.do(t, http.MethodPost, "/admin/orders", `{"id":"o1","items":[{"productId":"p1","quantity":3}]}`, nil))

	var first shipOrderResponse
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/orders/o1/ship", `{"courier":"dhl","awbCode":"A1","address":"Main 1","weight":"1.5"}`, &first))
	assert.True(t, first.Created)
	assert.True(t, first.InventoryDeducted)

	var second shipOrderResponse
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/orders/o1/ship", `{"courier":"dhl"}`, &second))
	assert.False(t, second.Created)
	assert.Equal(t, first.ShipmentID, second.ShipmentID)

	item, ok := srv.store.StockItem("p1")
	require.True(t, ok)
	assert.Equal(t, 7, item.Stock)
	assert.Equal(t, 3, item.Sales)
	assert.Len(t, srv.store.ShipmentsForOrder("o1"), 1)
}

func TestRouter_Errors(t *testing.T) {
	srv := newTestServer(t)

	var e errorResponse
	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodPost, "/orders/missing/ship", `{"courier":"dhl"}`, &e))
	assert.Equal(t, codeNotFound, e.Code)

	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodGet, "/resources/missing/availability", "", nil))
	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodDelete, "/registrations/missing", "", nil))
	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodGet, "/nowhere", "", nil))

	var rejected rejectedPaymentResponse
	status := srv.do(t, http.MethodPost, "/payments/verify", `{"paymentId":"p","orderRef":"r","signature":"00"}`, &rejected)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, rejected.Verified)

	require.Equal(t, http.StatusCreated, srv.do(t, http.MethodPost, "/admin/resources", `{"id":"r1","name":"A","capacity":1}`, nil))
	assert.Equal(t, http.StatusConflict, srv.do(t, http.MethodPost, "/admin/resources", `{"id":"r1","name":"A","capacity":1}`, nil))
	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodPost, "/admin/resources", `{"name":"B","capacity":-1}`, nil))
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	res, err := srv.Client().Get(srv.URL + "/health")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, err = srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestRouter_ServiceSpansJoinIncomingTrace(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	srv := newTestServer(t)
	require.Equal(t, http.StatusCreated, srv.do(t, http.MethodPost, "/admin/resources", `{"id":"r1","name":"Gig","capacity":2}`, nil))

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/reservations/lock", strings.NewReader(`{"resourceId":"r1","holderId":"alice"}`))
	require.NoError(t, err)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	res, err := srv.Client().Do(req)
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var server, acquire sdktrace.ReadOnlySpan
	require.Eventually(t, func() bool {
		server, acquire = nil, nil
		for _, s := range spans.Ended() {
			switch {
			case s.Name() == "LockService.Acquire":
				acquire = s
			case s.SpanKind() == trace.SpanKindServer && s.Parent().SpanID().String() == "00f067aa0ba902b7":
				server = s
			}
		}
		return server != nil && acquire != nil
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", server.SpanContext().TraceID().String())
	assert.Equal(t, server.SpanContext().TraceID(), acquire.SpanContext().TraceID())
	assert.Equal(t, server.SpanContext().SpanID(), acquire.Parent().SpanID())
}
