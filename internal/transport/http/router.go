package http

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// Services bundles what the router dispatches to.
type Services struct {
	Locks         LockManager
	Shipper       OrderShipper
	Registrations RegistrationCanceler
	Payments      PaymentGate
	Admin         AdminSeeder
	// Ping backs the health check. Nil means always healthy.
	Ping func(context.Context) error
}

// serverSpanName is the operation name of traced requests.
const serverSpanName = "reservation-core.http"

// NewRouter wires every route behind tracing, CORS and request logging. The
// server span continues any trace context the caller sent.
func NewRouter(svc Services, corsOrigins []string, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.Handler) {
		mux.Handle(pattern, otelhttp.WithRouteTag(pattern, h))
	}

	handle("GET /health", HealthHandler(svc.Ping))
	mux.Handle("GET /metrics", promhttp.Handler())

	handle("POST /reservations/lock", HandleAcquireLock(svc.Locks))
	handle("DELETE /reservations/lock", HandleReleaseLock(svc.Locks))
	handle("GET /resources/{resourceId}/availability", HandleAvailability(svc.Locks))
	handle("DELETE /registrations/{registrationId}", HandleCancelRegistration(svc.Registrations))
	handle("POST /orders/{orderId}/ship", HandleShipOrder(svc.Shipper))
	handle("POST /payments/verify", HandleVerifyPayment(svc.Payments))

	handle("POST /admin/resources", HandleAdminResources(svc.Admin))
	handle("POST /admin/products", HandleAdminProducts(svc.Admin))
	handle("POST /admin/orders", HandleAdminOrders(svc.Admin))

	mux.Handle("/", NotFoundHandler())

	traced := otelhttp.NewHandler(mux, serverSpanName,
		otelhttp.WithTracerProvider(otel.GetTracerProvider()),
		otelhttp.WithMeterProvider(otel.GetMeterProvider()),
		otelhttp.WithPropagators(otel.GetTextMapPropagator()),
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/metrics" && r.URL.Path != "/health"
		}),
	)
	return RequestLogger(CORS(corsOrigins, traced), logger)
}
