package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fitverse/class-booking/internal/domain"
	"github.com/fitverse/class-booking/internal/dto"
	"github.com/fitverse/class-booking/pkg/middleware"
)

// MockBookingService is a mock implementation of BookingService for testing
type MockBookingService struct {
	CreateBookingFunc     func(ctx context.Context, memberID string, req *dto.CreateBookingRequest) (*dto.CreateBookingResponse, error)
	ConfirmPaymentFunc    func(ctx context.Context, bookingID string, req *dto.ConfirmPaymentRequest) (*dto.BookingResponse, error)
	CancelBookingFunc     func(ctx context.Context, bookingID, memberID string, req *dto.CancelBookingRequest) (*dto.CancelBookingResponse, error)
	GetBookingFunc        func(ctx context.Context, bookingID string) (*dto.BookingResponse, error)
	GetMemberBookingsFunc func(ctx context.Context, memberID string, limit, offset int) (*dto.BookingListResponse, error)
}

func (m *MockBookingService) CreateBooking(ctx context.Context, memberID string, req *dto.CreateBookingRequest) (*dto.CreateBookingResponse, error) {
	if m.CreateBookingFunc != nil {
		return m.CreateBookingFunc(ctx, memberID, req)
	}
	return nil, nil
}

func (m *MockBookingService) ConfirmPayment(ctx context.Context, bookingID string, req *dto.ConfirmPaymentRequest) (*dto.BookingResponse, error) {
	if m.ConfirmPaymentFunc != nil {
		return m.ConfirmPaymentFunc(ctx, bookingID, req)
	}
	return nil, nil
}

func (m *MockBookingService) CancelBooking(ctx context.Context, bookingID, memberID string, req *dto.CancelBookingRequest) (*dto.CancelBookingResponse, error) {
	if m.CancelBookingFunc != nil {
		return m.CancelBookingFunc(ctx, bookingID, memberID, req)
	}
	return nil, nil
}

func (m *MockBookingService) GetBooking(ctx context.Context, bookingID string) (*dto.BookingResponse, error) {
	if m.GetBookingFunc != nil {
		return m.GetBookingFunc(ctx, bookingID)
	}
	return nil, nil
}

func (m *MockBookingService) GetMemberBookings(ctx context.Context, memberID string, limit, offset int) (*dto.BookingListResponse, error) {
	if m.GetMemberBookingsFunc != nil {
		return m.GetMemberBookingsFunc(ctx, memberID, limit, offset)
	}
	return &dto.BookingListResponse{Bookings: []*dto.BookingResponse{}}, nil
}

func setupBookingRouter(svc *MockBookingService, memberID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	if memberID != "" {
		router.Use(func(c *gin.Context) {
			c.Set(middleware.ContextKeyMemberID, memberID)
			c.Next()
		})
	}

	h := NewBookingHandler(svc)
	bookings := router.Group("/bookings")
	{
		bookings.POST("", h.CreateBooking)
		bookings.GET("", h.GetMemberBookings)
		bookings.GET("/:id", h.GetBooking)
		bookings.POST("/:id/confirm-payment", h.ConfirmPayment)
		bookings.POST("/:id/cancel", h.CancelBooking)
	}

	return router
}

func TestBookingHandler_CreateBooking(t *testing.T) {
	tests := []struct {
		name           string
		memberID       string
		request        interface{}
		mockFunc       func(ctx context.Context, memberID string, req *dto.CreateBookingRequest) (*dto.CreateBookingResponse, error)
		expectedStatus int
		expectedCode   string
	}{
		{
			name:     "successful booking",
			memberID: "member-123",
			request:  &dto.CreateBookingRequest{SessionID: "session-123"},
			mockFunc: func(ctx context.Context, memberID string, req *dto.CreateBookingRequest) (*dto.CreateBookingResponse, error) {
				return &dto.CreateBookingResponse{
					Booking: &dto.BookingResponse{
						ID:            "booking-123",
						SessionID:     req.SessionID,
						MemberID:      memberID,
						Status:        "confirmed",
						PaymentStatus: "pending",
						BookedAt:      time.Now(),
					},
					Message: "booking created, awaiting payment",
				}, nil
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:     "full session returns waitlist spot",
			memberID: "member-123",
			request:  &dto.CreateBookingRequest{SessionID: "session-123"},
			mockFunc: func(ctx context.Context, memberID string, req *dto.CreateBookingRequest) (*dto.CreateBookingResponse, error) {
				return &dto.CreateBookingResponse{
					Booking: &dto.BookingResponse{
						ID:               "booking-123",
						SessionID:        req.SessionID,
						MemberID:         memberID,
						Status:           "confirmed",
						IsWaitlist:       true,
						WaitlistPosition: 4,
						PaymentStatus:    "pending",
					},
					Waitlisted: true,
					Message:    "session full, added to waitlist",
				}, nil
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "unauthorized without member",
			memberID:       "",
			request:        &dto.CreateBookingRequest{SessionID: "session-123"},
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "UNAUTHORIZED",
		},
		{
			name:           "invalid body",
			memberID:       "member-123",
			request:        map[string]interface{}{"session_id": 42},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_REQUEST",
		},
		{
			name:     "session full and waitlist unavailable",
			memberID: "member-123",
			request:  &dto.CreateBookingRequest{SessionID: "session-123"},
			mockFunc: func(ctx context.Context, memberID string, req *dto.CreateBookingRequest) (*dto.CreateBookingResponse, error) {
				return nil, domain.ErrSessionFull
			},
			expectedStatus: http.StatusConflict,
			expectedCode:   "SESSION_FULL",
		},
		{
			name:     "duplicate booking",
			memberID: "member-123",
			request:  &dto.CreateBookingRequest{SessionID: "session-123"},
			mockFunc: func(ctx context.Context, memberID string, req *dto.CreateBookingRequest) (*dto.CreateBookingResponse, error) {
				return nil, domain.ErrAlreadyBooked
			},
			expectedStatus: http.StatusConflict,
			expectedCode:   "ALREADY_BOOKED",
		},
		{
			name:     "blocked member",
			memberID: "member-123",
			request:  &dto.CreateBookingRequest{SessionID: "session-123"},
			mockFunc: func(ctx context.Context, memberID string, req *dto.CreateBookingRequest) (*dto.CreateBookingResponse, error) {
				return nil, domain.ErrMemberBlocked
			},
			expectedStatus: http.StatusForbidden,
			expectedCode:   "MEMBER_BLOCKED",
		},
		{
			name:     "busy session",
			memberID: "member-123",
			request:  &dto.CreateBookingRequest{SessionID: "session-123"},
			mockFunc: func(ctx context.Context, memberID string, req *dto.CreateBookingRequest) (*dto.CreateBookingResponse, error) {
				return nil, domain.ErrSessionBusy
			},
			expectedStatus: http.StatusConflict,
			expectedCode:   "SESSION_BUSY",
		},
		{
			name:     "session already ended",
			memberID: "member-123",
			request:  &dto.CreateBookingRequest{SessionID: "session-123"},
			mockFunc: func(ctx context.Context, memberID string, req *dto.CreateBookingRequest) (*dto.CreateBookingResponse, error) {
				return nil, domain.ErrSessionNotBookable
			},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedCode:   "SESSION_NOT_BOOKABLE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockBookingService{CreateBookingFunc: tt.mockFunc}
			router := setupBookingRouter(svc, tt.memberID)

			body, _ := json.Marshal(tt.request)
			req := httptest.NewRequest(http.MethodPost, "/bookings", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d (body: %s)", w.Code, tt.expectedStatus, w.Body.String())
			}
			if tt.expectedCode != "" {
				var errResp dto.ErrorResponse
				if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
					t.Fatalf("failed to decode error response: %v", err)
				}
				if errResp.Code != tt.expectedCode {
					t.Errorf("error code = %s, want %s", errResp.Code, tt.expectedCode)
				}
			}
		})
	}
}

func TestBookingHandler_ConfirmPayment(t *testing.T) {
	tests := []struct {
		name           string
		bookingID      string
		request        interface{}
		mockFunc       func(ctx context.Context, bookingID string, req *dto.ConfirmPaymentRequest) (*dto.BookingResponse, error)
		expectedStatus int
		expectedCode   string
	}{
		{
			name:      "successful confirmation",
			bookingID: "booking-123",
			request:   &dto.ConfirmPaymentRequest{Amount: 50000},
			mockFunc: func(ctx context.Context, bookingID string, req *dto.ConfirmPaymentRequest) (*dto.BookingResponse, error) {
				return &dto.BookingResponse{
					ID:            bookingID,
					Status:        "confirmed",
					PaymentStatus: "paid",
					AmountPaid:    req.Amount,
				}, nil
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:      "amount mismatch",
			bookingID: "booking-123",
			request:   &dto.ConfirmPaymentRequest{Amount: 100},
			mockFunc: func(ctx context.Context, bookingID string, req *dto.ConfirmPaymentRequest) (*dto.BookingResponse, error) {
				return nil, domain.ErrPaymentAmountMismatch
			},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedCode:   "PAYMENT_AMOUNT_MISMATCH",
		},
		{
			name:      "cancelled booking",
			bookingID: "booking-123",
			request:   &dto.ConfirmPaymentRequest{Amount: 50000},
			mockFunc: func(ctx context.Context, bookingID string, req *dto.ConfirmPaymentRequest) (*dto.BookingResponse, error) {
				return nil, domain.ErrAlreadyCancelled
			},
			expectedStatus: http.StatusConflict,
			expectedCode:   "ALREADY_CANCELLED",
		},
		{
			name:      "unpromoted waitlist entry",
			bookingID: "booking-123",
			request:   &dto.ConfirmPaymentRequest{Amount: 50000},
			mockFunc: func(ctx context.Context, bookingID string, req *dto.ConfirmPaymentRequest) (*dto.BookingResponse, error) {
				return nil, domain.ErrStillOnWaitlist
			},
			expectedStatus: http.StatusConflict,
			expectedCode:   "STILL_ON_WAITLIST",
		},
		{
			name:      "unknown booking",
			bookingID: "missing",
			request:   &dto.ConfirmPaymentRequest{Amount: 50000},
			mockFunc: func(ctx context.Context, bookingID string, req *dto.ConfirmPaymentRequest) (*dto.BookingResponse, error) {
				return nil, domain.ErrBookingNotFound
			},
			expectedStatus: http.StatusNotFound,
			expectedCode:   "BOOKING_NOT_FOUND",
		},
		{
			name:           "missing amount",
			bookingID:      "booking-123",
			request:        map[string]interface{}{},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockBookingService{ConfirmPaymentFunc: tt.mockFunc}
			router := setupBookingRouter(svc, "member-123")

			body, _ := json.Marshal(tt.request)
			req := httptest.NewRequest(http.MethodPost, "/bookings/"+tt.bookingID+"/confirm-payment", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d (body: %s)", w.Code, tt.expectedStatus, w.Body.String())
			}
			if tt.expectedCode != "" {
				var errResp dto.ErrorResponse
				if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
					t.Fatalf("failed to decode error response: %v", err)
				}
				if errResp.Code != tt.expectedCode {
					t.Errorf("error code = %s, want %s", errResp.Code, tt.expectedCode)
				}
			}
		})
	}
}

func TestBookingHandler_CancelBooking(t *testing.T) {
	tests := []struct {
		name           string
		memberID       string
		bookingID      string
		mockFunc       func(ctx context.Context, bookingID, memberID string, req *dto.CancelBookingRequest) (*dto.CancelBookingResponse, error)
		expectedStatus int
		wantRefund     int64
	}{
		{
			name:      "successful cancellation with refund",
			memberID:  "member-123",
			bookingID: "booking-123",
			mockFunc: func(ctx context.Context, bookingID, memberID string, req *dto.CancelBookingRequest) (*dto.CancelBookingResponse, error) {
				return &dto.CancelBookingResponse{
					BookingID:    bookingID,
					Status:       "cancelled",
					RefundAmount: 50000,
					Message:      "booking cancelled",
				}, nil
			},
			expectedStatus: http.StatusOK,
			wantRefund:     50000,
		},
		{
			name:      "already cancelled",
			memberID:  "member-123",
			bookingID: "booking-123",
			mockFunc: func(ctx context.Context, bookingID, memberID string, req *dto.CancelBookingRequest) (*dto.CancelBookingResponse, error) {
				return nil, domain.ErrAlreadyCancelled
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "unauthorized",
			memberID:       "",
			bookingID:      "booking-123",
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockBookingService{CancelBookingFunc: tt.mockFunc}
			router := setupBookingRouter(svc, tt.memberID)

			body, _ := json.Marshal(&dto.CancelBookingRequest{Reason: "schedule conflict"})
			req := httptest.NewRequest(http.MethodPost, "/bookings/"+tt.bookingID+"/cancel", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d (body: %s)", w.Code, tt.expectedStatus, w.Body.String())
			}
			if tt.expectedStatus == http.StatusOK {
				var resp dto.CancelBookingResponse
				if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
					t.Fatalf("failed to decode response: %v", err)
				}
				if resp.RefundAmount != tt.wantRefund {
					t.Errorf("refund = %d, want %d", resp.RefundAmount, tt.wantRefund)
				}
			}
		})
	}
}

func TestBookingHandler_GetMemberBookings(t *testing.T) {
	svc := &MockBookingService{
		GetMemberBookingsFunc: func(ctx context.Context, memberID string, limit, offset int) (*dto.BookingListResponse, error) {
			if limit != 5 || offset != 10 {
				t.Errorf("pagination limit=%d offset=%d, want 5/10", limit, offset)
			}
			return &dto.BookingListResponse{
				Bookings: []*dto.BookingResponse{{ID: "booking-1"}, {ID: "booking-2"}},
				Total:    12,
				Limit:    limit,
				Offset:   offset,
			}, nil
		},
	}
	router := setupBookingRouter(svc, "member-123")

	req := httptest.NewRequest(http.MethodGet, "/bookings?limit=5&offset=10", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", w.Code, w.Body.String())
	}

	var resp dto.BookingListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Bookings) != 2 || resp.Total != 12 {
		t.Errorf("got %d bookings total %d, want 2/12", len(resp.Bookings), resp.Total)
	}
}
