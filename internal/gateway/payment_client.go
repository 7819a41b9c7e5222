package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/fitverse/class-booking/internal/domain"
	"github.com/fitverse/class-booking/pkg/retry"
	"github.com/fitverse/class-booking/pkg/telemetry"
)

// PaymentClient coordinates charges and refunds with the billing service
type PaymentClient interface {
	// InitiatePayment creates a charge for a booking; the booking stays
	// payment-pending until the confirmation callback arrives
	InitiatePayment(ctx context.Context, booking *domain.Booking) (*domain.PaymentIntent, error)

	// FindIntentByReference looks up the charge already created for a
	// booking; (nil, nil) when the billing service has none on file
	FindIntentByReference(ctx context.Context, bookingID string) (*domain.PaymentIntent, error)

	// CreateRefund requests a (possibly partial) refund for a booking
	CreateRefund(ctx context.Context, bookingID string, amount int64, reason string) (*domain.Refund, error)
}

// errPaymentNotFound signals a 404 from the billing service
var errPaymentNotFound = errors.New("payment not found")

// HTTPPaymentClient implements PaymentClient against the billing service API
type HTTPPaymentClient struct {
	baseURL    string
	httpClient *http.Client
	retryCfg   *retry.Config
}

// PaymentClientConfig holds billing service client configuration
type PaymentClientConfig struct {
	BaseURL string
	Timeout time.Duration
	// Retry covers transient transport failures; 4xx responses are
	// never retried
	Retry *retry.Config
}

// NewHTTPPaymentClient creates a billing service client
func NewHTTPPaymentClient(cfg *PaymentClientConfig) *HTTPPaymentClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	retryCfg := cfg.Retry
	if retryCfg == nil {
		retryCfg = &retry.Config{
			MaxRetries:      2,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     2 * time.Second,
			Multiplier:      2.0,
			JitterFactor:    0.1,
		}
	}

	return &HTTPPaymentClient{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		retryCfg:   retryCfg,
	}
}

type initiatePaymentRequest struct {
	BookingID string `json:"booking_id"`
	MemberID  string `json:"member_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

type createRefundRequest struct {
	BookingID string `json:"booking_id"`
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason,omitempty"`
}

// InitiatePayment creates a charge for a booking
func (c *HTTPPaymentClient) InitiatePayment(ctx context.Context, booking *domain.Booking) (*domain.PaymentIntent, error) {
	ctx, span := telemetry.StartSpan(ctx, "gateway.payment.initiate")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", booking.ID),
		attribute.Int64("amount", booking.Price),
	)

	reqBody := &initiatePaymentRequest{
		BookingID: booking.ID,
		MemberID:  booking.MemberID,
		Amount:    booking.Price,
		Currency:  "THB",
	}

	var intent domain.PaymentIntent
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/payments", reqBody, &intent)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", domain.ErrPaymentInitiationFailed, err)
	}

	span.SetAttributes(attribute.String("payment_id", intent.ID))
	span.SetStatus(codes.Ok, "")
	return &intent, nil
}

// FindIntentByReference looks up the charge created for a booking so a
// resumed booking can hand back the same payment handle
func (c *HTTPPaymentClient) FindIntentByReference(ctx context.Context, bookingID string) (*domain.PaymentIntent, error) {
	ctx, span := telemetry.StartSpan(ctx, "gateway.payment.find_intent")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	var intent domain.PaymentIntent
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/payments/by-reference/"+bookingID, nil, &intent)
	if err != nil {
		if errors.Is(err, errPaymentNotFound) {
			span.SetStatus(codes.Ok, "no intent on file")
			return nil, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to find payment intent: %w", err)
	}

	span.SetAttributes(attribute.String("payment_id", intent.ID))
	span.SetStatus(codes.Ok, "")
	return &intent, nil
}

// CreateRefund requests a refund for a booking
func (c *HTTPPaymentClient) CreateRefund(ctx context.Context, bookingID string, amount int64, reason string) (*domain.Refund, error) {
	ctx, span := telemetry.StartSpan(ctx, "gateway.payment.refund")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.Int64("amount", amount),
	)

	reqBody := &createRefundRequest{
		BookingID: bookingID,
		Amount:    amount,
		Reason:    reason,
	}

	var refund domain.Refund
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/refunds", reqBody, &refund)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to create refund: %w", err)
	}

	span.SetAttributes(attribute.String("refund_id", refund.ID))
	span.SetStatus(codes.Ok, "")
	return &refund, nil
}

// doJSON sends an optional JSON body and decodes the JSON response,
// retrying transport errors and 5xx responses
func (c *HTTPPaymentClient) doJSON(ctx context.Context, method, path string, reqBody, respBody interface{}) error {
	var payload []byte
	if reqBody != nil {
		var err error
		payload, err = json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	result := retry.Do(ctx, c.retryCfg, func(ctx context.Context) error {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return retry.Permanent(err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		respBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("billing service returned %d", resp.StatusCode)
		case resp.StatusCode == http.StatusNotFound:
			return retry.Permanent(errPaymentNotFound)
		case resp.StatusCode >= 400:
			return retry.Permanent(fmt.Errorf("billing service rejected request: %d %s", resp.StatusCode, string(respBytes)))
		}

		if respBody != nil {
			if err := json.Unmarshal(respBytes, respBody); err != nil {
				return retry.Permanent(fmt.Errorf("failed to decode response: %w", err))
			}
		}
		return nil
	})

	if result.Err != nil {
		if result.LastError != nil {
			return result.LastError
		}
		return result.Err
	}
	return nil
}

// Ensure HTTPPaymentClient implements PaymentClient
var _ PaymentClient = (*HTTPPaymentClient)(nil)
