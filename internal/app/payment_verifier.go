package app

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/cimillas/ultimate-ticket/services/core/internal/domain"
	"github.com/cimillas/ultimate-ticket/services/core/internal/metrics"
	"github.com/cimillas/ultimate-ticket/services/core/internal/payment"
)

// PaymentSink receives payments whose signature checked out.
type PaymentSink interface {
	CommitRegistration(ctx context.Context, in RegistrationInput) (RegistrationResult, error)
	RecordOrderPayment(ctx context.Context, orderID, paymentID string) (domain.Order, error)
}

type TargetKind string

const (
	TargetRegistration TargetKind = "registration"
	TargetOrder        TargetKind = "order"
)

// Target says what a verified payment pays for. A nil target only verifies.
type Target struct {
	Kind       TargetKind
	ResourceID string
	HolderID   string
	// OrderID defaults to the payment's order reference.
	OrderID string
}

type VerifyInput struct {
	PaymentID string
	OrderRef  string
	Signature string
	Target    *Target
}

func (in VerifyInput) validate() error {
	if in.PaymentID == "" || in.OrderRef == "" || in.Signature == "" {
		return invalid("paymentId, orderRef and signature are required")
	}
	if in.Target == nil {
		return nil
	}
	switch in.Target.Kind {
	case TargetRegistration:
		if in.Target.ResourceID == "" || in.Target.HolderID == "" {
			return invalid("registration target needs resourceId and holderId")
		}
	case TargetOrder:
	default:
		return invalid("unknown target kind %q", in.Target.Kind)
	}
	return nil
}

type VerifiedOutcome struct {
	PaymentID    string
	OrderRef     string
	Registration *RegistrationResult
	Order        *domain.Order
}

// PaymentVerifier is a stateless gate in front of the coordinator. Nothing
// reaches the sink unless the signature matches.
type PaymentVerifier struct {
	secret []byte
	sink   PaymentSink
	logger *zap.Logger
	tracer trace.Tracer
}

func NewPaymentVerifier(secret []byte, sink PaymentSink, logger *zap.Logger) *PaymentVerifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentVerifier{
		secret: secret,
		sink:   sink,
		logger: logger.Named("payments"),
		tracer: otel.Tracer(tracerName),
	}
}

func (v *PaymentVerifier) Verify(ctx context.Context, in VerifyInput) (out VerifiedOutcome, err error) {
	if err := in.validate(); err != nil {
		return VerifiedOutcome{}, err
	}

	ctx, span := v.tracer.Start(ctx, "PaymentVerifier.Verify", trace.WithAttributes(
		attribute.String("payment.id", in.PaymentID),
		attribute.String("payment.order_ref", in.OrderRef),
	))
	defer func() { endSpan(span, err) }()

	if !payment.Valid(v.secret, in.OrderRef, in.PaymentID, in.Signature) {
		metrics.TrackPaymentVerification("rejected")
		v.logger.Warn("payment signature rejected",
			zap.String("payment_id", in.PaymentID),
			zap.String("order_ref", in.OrderRef),
		)
		return VerifiedOutcome{}, domain.ErrSignatureMismatch
	}
	metrics.TrackPaymentVerification("verified")

	out = VerifiedOutcome{PaymentID: in.PaymentID, OrderRef: in.OrderRef}
	if in.Target == nil {
		return out, nil
	}

	switch in.Target.Kind {
	case TargetRegistration:
		res, err := v.sink.CommitRegistration(ctx, RegistrationInput{
			ResourceID: in.Target.ResourceID,
			HolderID:   in.Target.HolderID,
			PaymentID:  in.PaymentID,
		})
		if err != nil {
			return VerifiedOutcome{}, err
		}
		out.Registration = &res
	case TargetOrder:
		orderID := in.Target.OrderID
		if orderID == "" {
			orderID = in.OrderRef
		}
		order, err := v.sink.RecordOrderPayment(ctx, orderID, in.PaymentID)
		if err != nil {
			return VerifiedOutcome{}, err
		}
		out.Order = &order
	}
	return out, nil
}
