package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fitverse/class-booking/internal/domain"
)

func newTestWaitlistService(deps WaitlistServiceDeps) WaitlistService {
	if deps.TxRunner == nil {
		deps.TxRunner = &mockTxRunner{}
	}
	if deps.Locker == nil {
		deps.Locker = &mockLocker{}
	}
	return NewWaitlistService(deps)
}

func waitlistEntry(id, memberID string, position int) *domain.Booking {
	return &domain.Booking{
		ID:               id,
		SessionID:        "session-001",
		MemberID:         memberID,
		Status:           domain.BookingStatusConfirmed,
		IsWaitlist:       true,
		WaitlistPosition: position,
		PaymentStatus:    domain.PaymentStatusPending,
		BookedAt:         time.Now().Add(-time.Duration(position) * time.Minute),
	}
}

func TestWaitlistService_AddEntry(t *testing.T) {
	t.Run("appends at position count+1", func(t *testing.T) {
		var created *domain.Booking
		var storedCount int
		bookingRepo := &MockBookingRepository{
			CountActiveWaitlistFunc: func(ctx context.Context, sessionID string) (int, error) {
				return 2, nil
			},
			CreateFunc: func(ctx context.Context, booking *domain.Booking) error {
				created = booking
				return nil
			},
		}
		sessionRepo := &MockSessionRepository{
			SetWaitlistCountFunc: func(ctx context.Context, id string, count int) error {
				storedCount = count
				return nil
			},
		}

		svc := newTestWaitlistService(WaitlistServiceDeps{
			SessionRepo: sessionRepo,
			BookingRepo: bookingRepo,
		})

		session := activeSession(50000, 10, 10)
		entry, err := svc.AddEntry(context.Background(), nil, session, "member-003", "prefer front row")
		if err != nil {
			t.Fatalf("AddEntry() unexpected error = %v", err)
		}

		if entry.WaitlistPosition != 3 {
			t.Errorf("position = %d, want 3", entry.WaitlistPosition)
		}
		if !entry.IsWaitlist {
			t.Error("entry should be flagged as waitlist")
		}
		if entry.SeatCounted {
			t.Error("waitlist entry must not hold a counted seat")
		}
		if created == nil {
			t.Fatal("expected a new booking row")
		}
		if storedCount != 3 {
			t.Errorf("stored waitlist count = %d, want 3", storedCount)
		}
	})

	t.Run("reactivates a cancelled row", func(t *testing.T) {
		cancelledAt := time.Now().Add(-time.Hour)
		old := &domain.Booking{
			ID:                 "booking-old",
			SessionID:          "session-001",
			MemberID:           "member-003",
			Status:             domain.BookingStatusCancelled,
			CancelledAt:        &cancelledAt,
			CancellationReason: "conflict",
		}

		var updated *domain.Booking
		bookingRepo := &MockBookingRepository{
			GetBySessionAndMemberFunc: func(ctx context.Context, sessionID, memberID string) (*domain.Booking, error) {
				b := *old
				return &b, nil
			},
			UpdateFunc: func(ctx context.Context, booking *domain.Booking) error {
				updated = booking
				return nil
			},
			CreateFunc: func(ctx context.Context, booking *domain.Booking) error {
				t.Error("Create should not be called when a cancelled row exists")
				return nil
			},
		}

		svc := newTestWaitlistService(WaitlistServiceDeps{
			SessionRepo: &MockSessionRepository{},
			BookingRepo: bookingRepo,
		})

		entry, err := svc.AddEntry(context.Background(), nil, activeSession(50000, 10, 10), "member-003", "")
		if err != nil {
			t.Fatalf("AddEntry() unexpected error = %v", err)
		}

		if updated == nil {
			t.Fatal("expected the cancelled row to be updated")
		}
		if entry.ID != "booking-old" {
			t.Errorf("entry ID = %s, want reactivated booking-old", entry.ID)
		}
		if entry.CancelledAt != nil || entry.CancellationReason != "" {
			t.Error("reactivated entry should have cancellation fields cleared")
		}
		if entry.WaitlistPosition != 1 {
			t.Errorf("position = %d, want 1", entry.WaitlistPosition)
		}
	})

	t.Run("rejects an active duplicate", func(t *testing.T) {
		bookingRepo := &MockBookingRepository{
			GetBySessionAndMemberFunc: func(ctx context.Context, sessionID, memberID string) (*domain.Booking, error) {
				return waitlistEntry("booking-001", memberID, 1), nil
			},
		}

		svc := newTestWaitlistService(WaitlistServiceDeps{
			SessionRepo: &MockSessionRepository{},
			BookingRepo: bookingRepo,
		})

		_, err := svc.AddEntry(context.Background(), nil, activeSession(50000, 10, 10), "member-003", "")
		if !errors.Is(err, domain.ErrAlreadyBooked) {
			t.Errorf("AddEntry() error = %v, want ErrAlreadyBooked", err)
		}
	})
}

func TestWaitlistService_PromoteNext(t *testing.T) {
	t.Run("promotes lowest position into a free seat", func(t *testing.T) {
		incremented := false
		recompacted := false
		var storedCount int

		sessionRepo := &MockSessionRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*domain.Session, error) {
				return activeSession(0, 10, 9), nil
			},
			IncrementBookingsFunc: func(ctx context.Context, id string) error {
				incremented = true
				return nil
			},
			SetWaitlistCountFunc: func(ctx context.Context, id string, count int) error {
				storedCount = count
				return nil
			},
		}
		bookingRepo := &MockBookingRepository{
			GetNextWaitlistEntryFunc: func(ctx context.Context, sessionID string) (*domain.Booking, error) {
				return waitlistEntry("booking-002", "member-002", 1), nil
			},
			RecompactWaitlistPositionsFunc: func(ctx context.Context, sessionID string) (int, error) {
				recompacted = true
				return 1, nil
			},
		}

		svc := newTestWaitlistService(WaitlistServiceDeps{
			SessionRepo: sessionRepo,
			BookingRepo: bookingRepo,
		})

		resp, err := svc.PromoteNext(context.Background(), "session-001")
		if err != nil {
			t.Fatalf("PromoteNext() unexpected error = %v", err)
		}

		if resp.Booking.IsWaitlist {
			t.Error("promoted booking should no longer be a waitlist entry")
		}
		if resp.Booking.PaymentStatus != string(domain.PaymentStatusPaid) {
			t.Errorf("free class promotion payment_status = %s, want paid", resp.Booking.PaymentStatus)
		}
		if !incremented {
			t.Error("promotion must claim the freed seat")
		}
		if !recompacted {
			t.Error("remaining entries must be renumbered")
		}
		if storedCount != 1 {
			t.Errorf("stored waitlist count = %d, want 1", storedCount)
		}
	})

	t.Run("paid class promotion stays payment pending", func(t *testing.T) {
		paymentStarted := false
		svc := newTestWaitlistService(WaitlistServiceDeps{
			SessionRepo: &MockSessionRepository{
				GetByIDFunc: func(ctx context.Context, id string) (*domain.Session, error) {
					return activeSession(50000, 10, 9), nil
				},
			},
			BookingRepo: &MockBookingRepository{
				GetNextWaitlistEntryFunc: func(ctx context.Context, sessionID string) (*domain.Booking, error) {
					return waitlistEntry("booking-002", "member-002", 1), nil
				},
			},
			PaymentClient: &MockPaymentClient{
				InitiatePaymentFunc: func(ctx context.Context, booking *domain.Booking) (*domain.PaymentIntent, error) {
					paymentStarted = true
					return &domain.PaymentIntent{ID: "intent-001", BookingID: booking.ID}, nil
				},
			},
		})

		resp, err := svc.PromoteNext(context.Background(), "session-001")
		if err != nil {
			t.Fatalf("PromoteNext() unexpected error = %v", err)
		}

		if resp.Booking.PaymentStatus != string(domain.PaymentStatusPending) {
			t.Errorf("payment_status = %s, want pending", resp.Booking.PaymentStatus)
		}
		if !paymentStarted {
			t.Error("promotion of a paid class should initiate payment")
		}
	})

	t.Run("full session refuses promotion", func(t *testing.T) {
		svc := newTestWaitlistService(WaitlistServiceDeps{
			SessionRepo: &MockSessionRepository{
				GetByIDFunc: func(ctx context.Context, id string) (*domain.Session, error) {
					return activeSession(0, 10, 10), nil
				},
			},
			BookingRepo: &MockBookingRepository{
				GetNextWaitlistEntryFunc: func(ctx context.Context, sessionID string) (*domain.Booking, error) {
					t.Error("waitlist should not be read when the session is full")
					return nil, nil
				},
			},
		})

		_, err := svc.PromoteNext(context.Background(), "session-001")
		if !errors.Is(err, domain.ErrSessionFull) {
			t.Errorf("PromoteNext() error = %v, want ErrSessionFull", err)
		}
	})

	t.Run("pending seat claims hold capacity", func(t *testing.T) {
		// One counted seat plus one uncounted payment-pending claim fill
		// a two-seat class; promoting anyway would oversubscribe it the
		// moment the pending claim pays
		svc := newTestWaitlistService(WaitlistServiceDeps{
			SessionRepo: &MockSessionRepository{
				GetByIDFunc: func(ctx context.Context, id string) (*domain.Session, error) {
					return activeSession(50000, 2, 1), nil
				},
			},
			BookingRepo: &MockBookingRepository{
				CountPendingSeatClaimsFunc: func(ctx context.Context, sessionID string) (int, error) {
					return 1, nil
				},
				GetNextWaitlistEntryFunc: func(ctx context.Context, sessionID string) (*domain.Booking, error) {
					t.Error("waitlist should not be read when pending claims fill the session")
					return nil, nil
				},
			},
		})

		_, err := svc.PromoteNext(context.Background(), "session-001")
		if !errors.Is(err, domain.ErrSessionFull) {
			t.Errorf("PromoteNext() error = %v, want ErrSessionFull", err)
		}
	})

	t.Run("empty waitlist", func(t *testing.T) {
		svc := newTestWaitlistService(WaitlistServiceDeps{
			SessionRepo: &MockSessionRepository{
				GetByIDFunc: func(ctx context.Context, id string) (*domain.Session, error) {
					return activeSession(0, 10, 5), nil
				},
			},
			BookingRepo: &MockBookingRepository{},
		})

		_, err := svc.PromoteNext(context.Background(), "session-001")
		if !errors.Is(err, domain.ErrWaitlistEntryNotFound) {
			t.Errorf("PromoteNext() error = %v, want ErrWaitlistEntryNotFound", err)
		}
	})

	t.Run("missing session ID", func(t *testing.T) {
		svc := newTestWaitlistService(WaitlistServiceDeps{
			SessionRepo: &MockSessionRepository{},
			BookingRepo: &MockBookingRepository{},
		})

		_, err := svc.PromoteNext(context.Background(), "")
		if !errors.Is(err, domain.ErrInvalidSessionID) {
			t.Errorf("PromoteNext() error = %v, want ErrInvalidSessionID", err)
		}
	})
}

func TestWaitlistService_RemoveEntry(t *testing.T) {
	t.Run("cancels entry and recompacts", func(t *testing.T) {
		var updated *domain.Booking
		recompacted := false
		var storedCount int

		bookingRepo := &MockBookingRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*domain.Booking, error) {
				return waitlistEntry("booking-002", "member-002", 2), nil
			},
			UpdateFunc: func(ctx context.Context, booking *domain.Booking) error {
				updated = booking
				return nil
			},
			RecompactWaitlistPositionsFunc: func(ctx context.Context, sessionID string) (int, error) {
				recompacted = true
				return 1, nil
			},
		}
		sessionRepo := &MockSessionRepository{
			SetWaitlistCountFunc: func(ctx context.Context, id string, count int) error {
				storedCount = count
				return nil
			},
		}

		svc := newTestWaitlistService(WaitlistServiceDeps{
			SessionRepo: sessionRepo,
			BookingRepo: bookingRepo,
		})

		if err := svc.RemoveEntry(context.Background(), "booking-002"); err != nil {
			t.Fatalf("RemoveEntry() unexpected error = %v", err)
		}

		if updated == nil || !updated.IsCancelled() {
			t.Error("entry should be cancelled")
		}
		if !recompacted {
			t.Error("positions should be renumbered after removal")
		}
		if storedCount != 1 {
			t.Errorf("stored waitlist count = %d, want 1", storedCount)
		}
	})

	t.Run("regular booking is not a waitlist entry", func(t *testing.T) {
		bookingRepo := &MockBookingRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*domain.Booking, error) {
				return &domain.Booking{
					ID:         "booking-001",
					Status:     domain.BookingStatusConfirmed,
					IsWaitlist: false,
				}, nil
			},
		}

		svc := newTestWaitlistService(WaitlistServiceDeps{
			SessionRepo: &MockSessionRepository{},
			BookingRepo: bookingRepo,
		})

		err := svc.RemoveEntry(context.Background(), "booking-001")
		if !errors.Is(err, domain.ErrWaitlistEntryNotFound) {
			t.Errorf("RemoveEntry() error = %v, want ErrWaitlistEntryNotFound", err)
		}
	})

	t.Run("unknown entry", func(t *testing.T) {
		svc := newTestWaitlistService(WaitlistServiceDeps{
			SessionRepo: &MockSessionRepository{},
			BookingRepo: &MockBookingRepository{},
		})

		err := svc.RemoveEntry(context.Background(), "missing")
		if !errors.Is(err, domain.ErrBookingNotFound) {
			t.Errorf("RemoveEntry() error = %v, want ErrBookingNotFound", err)
		}
	})
}

func TestWaitlistService_ListWaitlist(t *testing.T) {
	sessionRepo := &MockSessionRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*domain.Session, error) {
			return activeSession(50000, 10, 10), nil
		},
	}
	bookingRepo := &MockBookingRepository{
		GetWaitlistFunc: func(ctx context.Context, sessionID string) ([]*domain.Booking, error) {
			return []*domain.Booking{
				waitlistEntry("booking-001", "member-001", 1),
				waitlistEntry("booking-002", "member-002", 2),
			}, nil
		},
	}
	memberClient := &MockMemberClient{
		GetMembersFunc: func(ctx context.Context, memberIDs []string) (map[string]*domain.Member, error) {
			return map[string]*domain.Member{
				"member-001": {ID: "member-001", FirstName: "Anna", LastName: "Lee"},
			}, nil
		},
	}

	svc := newTestWaitlistService(WaitlistServiceDeps{
		SessionRepo:  sessionRepo,
		BookingRepo:  bookingRepo,
		MemberClient: memberClient,
	})

	resp, err := svc.ListWaitlist(context.Background(), "session-001")
	if err != nil {
		t.Fatalf("ListWaitlist() unexpected error = %v", err)
	}

	if resp.Count != 2 || len(resp.Entries) != 2 {
		t.Fatalf("ListWaitlist() count = %d entries = %d, want 2/2", resp.Count, len(resp.Entries))
	}
	if resp.Entries[0].Position != 1 || resp.Entries[1].Position != 2 {
		t.Errorf("positions = %d,%d, want 1,2", resp.Entries[0].Position, resp.Entries[1].Position)
	}
	if resp.Entries[0].MemberName != "Anna Lee" {
		t.Errorf("member name = %q, want enriched name", resp.Entries[0].MemberName)
	}
	// member-002 is missing from the directory; listing still succeeds
	if resp.Entries[1].MemberName != "" {
		t.Errorf("member name = %q, want empty for unknown member", resp.Entries[1].MemberName)
	}
}
