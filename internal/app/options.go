package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/cimillas/ultimate-ticket/services/core/internal/clock"
	"github.com/cimillas/ultimate-ticket/services/core/internal/domain"
	"github.com/cimillas/ultimate-ticket/services/core/internal/events"
	"github.com/cimillas/ultimate-ticket/services/core/internal/storage"
)

const (
	defaultLockTTL = 10 * time.Minute
	tracerName     = "github.com/cimillas/ultimate-ticket/services/core/internal/app"
)

// StockPolicy decides whether a shipment may drive stock below zero.
type StockPolicy string

const (
	// StockPolicyStrict rejects the whole conversion with
	// domain.ErrInsufficientStock when any item would go negative.
	StockPolicyStrict StockPolicy = "strict"
	// StockPolicyPermissive deducts unconditionally.
	StockPolicyPermissive StockPolicy = "permissive"
)

func ParseStockPolicy(s string) (StockPolicy, error) {
	switch p := StockPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return StockPolicyStrict, nil
	case StockPolicyStrict, StockPolicyPermissive:
		return p, nil
	default:
		return "", fmt.Errorf("unknown stock policy %q", s)
	}
}

type options struct {
	lockTTL     time.Duration
	stockPolicy StockPolicy
	retry       storage.RetryPolicy
	logger      *zap.Logger
	publisher   events.Publisher
}

type Option func(*options)

// WithLockTTL overrides the lifetime of new locks.
func WithLockTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.lockTTL = d
		}
	}
}

func WithStockPolicy(p StockPolicy) Option {
	return func(o *options) {
		if p != "" {
			o.stockPolicy = p
		}
	}
}

// WithRetryPolicy bounds how often a conflicting transaction is replayed.
func WithRetryPolicy(p storage.RetryPolicy) Option {
	return func(o *options) {
		if p.MaxAttempts > 0 {
			o.retry = p
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(o *options) {
		if p != nil {
			o.publisher = p
		}
	}
}

// base carries what every service needs to run transactions and report on them.
type base struct {
	store     storage.Store
	clock     clock.Clock
	retry     storage.RetryPolicy
	logger    *zap.Logger
	tracer    trace.Tracer
	publisher events.Publisher
}

func newBase(store storage.Store, clk clock.Clock, component string, opts []Option) (base, options) {
	o := options{
		lockTTL:     defaultLockTTL,
		stockPolicy: StockPolicyStrict,
		retry:       storage.DefaultRetryPolicy(),
		logger:      zap.NewNop(),
		publisher:   events.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return base{
		store:     store,
		clock:     clk,
		retry:     o.retry,
		logger:    o.logger.Named(component),
		tracer:    otel.Tracer(tracerName),
		publisher: o.publisher,
	}, o
}

func (b *base) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return b.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records err on span unless it is an expected domain outcome.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		if !isExpected(err) {
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}

func isExpected(err error) bool {
	return domain.IsNotFound(err) ||
		errors.Is(err, domain.ErrResourceExhausted) ||
		errors.Is(err, domain.ErrInvalidState) ||
		errors.Is(err, domain.ErrInsufficientStock) ||
		errors.Is(err, domain.ErrSignatureMismatch) ||
		errors.Is(err, domain.ErrInvalidInput)
}

// publish sends e after a commit. Failures are logged; the committed state
// stands either way.
func (b *base) publish(ctx context.Context, e events.Event) {
	if e.At.IsZero() {
		e.At = b.clock.Now()
	}
	if err := b.publisher.Publish(ctx, e); err != nil {
		b.logger.Warn("publish event failed",
			zap.String("event", string(e.Type)),
			zap.String("key", e.Key),
			zap.Error(err),
		)
	}
}

func newID() string {
	return uuid.NewString()
}

func noRead(context.Context, storage.Reader) (struct{}, error) {
	return struct{}{}, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidInput, fmt.Sprintf(format, args...))
}
