package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fitverse/class-booking/internal/dto"
	"github.com/fitverse/class-booking/pkg/database"
)

// AdminHandler handles admin HTTP requests
type AdminHandler struct {
	db *database.PostgresDB
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(db *database.PostgresDB) *AdminHandler {
	return &AdminHandler{db: db}
}

// ResyncCapacityResponse represents the response for a capacity resync
type ResyncCapacityResponse struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	SessionsUpdated int    `json:"sessions_updated"`
}

// ResyncCapacity handles POST /admin/resync-capacity
// Recomputes session seat and waitlist counters from booking rows.
// Counters only drift if an operator edits rows by hand, so this is
// a repair tool, not part of the normal flow.
func (h *AdminHandler) ResyncCapacity(c *gin.Context) {
	ctx := c.Request.Context()

	count, err := h.resyncSessionCounters(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "failed to resync capacity",
			Code:    "RESYNC_FAILED",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, ResyncCapacityResponse{
		Success:         true,
		Message:         fmt.Sprintf("Recomputed counters for %d sessions", count),
		SessionsUpdated: count,
	})
}

// resyncSessionCounters rewrites current_bookings and waitlist_count
// from the bookings table for sessions that have not ended yet
func (h *AdminHandler) resyncSessionCounters(ctx context.Context) (int, error) {
	query := `
		UPDATE sessions s
		SET current_bookings = counted.seats,
		    waitlist_count = counted.waitlisted,
		    updated_at = NOW()
		FROM (
			SELECT s2.id,
			       COUNT(b.id) FILTER (WHERE b.seat_counted AND b.status <> 'cancelled') AS seats,
			       COUNT(b.id) FILTER (WHERE b.is_waitlist AND b.status <> 'cancelled') AS waitlisted
			FROM sessions s2
			LEFT JOIN bookings b ON b.session_id = s2.id
			WHERE s2.end_time > NOW()
			GROUP BY s2.id
		) counted
		WHERE s.id = counted.id
		  AND (s.current_bookings <> counted.seats OR s.waitlist_count <> counted.waitlisted)
	`

	tag, err := h.db.Pool().Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to resync session counters: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// GetCapacityStatus handles GET /admin/capacity-status
// Returns per-session counter state with the recomputed values alongside,
// so drift is visible before running a resync
func (h *AdminHandler) GetCapacityStatus(c *gin.Context) {
	ctx := c.Request.Context()

	query := `
		SELECT s.id, s.class_id, s.max_capacity, s.current_bookings, s.waitlist_count,
		       COUNT(b.id) FILTER (WHERE b.seat_counted AND b.status <> 'cancelled') AS counted_seats,
		       COUNT(b.id) FILTER (WHERE b.is_waitlist AND b.status <> 'cancelled') AS counted_waitlist
		FROM sessions s
		LEFT JOIN bookings b ON b.session_id = s.id
		WHERE s.end_time > NOW()
		GROUP BY s.id
		ORDER BY s.start_time
		LIMIT 100
	`

	rows, err := h.db.Pool().Query(ctx, query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "failed to query sessions",
			Code:    "QUERY_FAILED",
			Message: err.Error(),
		})
		return
	}
	defer rows.Close()

	type SessionStatus struct {
		SessionID       string `json:"session_id"`
		ClassID         string `json:"class_id"`
		MaxCapacity     int    `json:"max_capacity"`
		CurrentBookings int    `json:"current_bookings"`
		WaitlistCount   int    `json:"waitlist_count"`
		CountedSeats    int    `json:"counted_seats"`
		CountedWaitlist int    `json:"counted_waitlist"`
		InSync          bool   `json:"in_sync"`
	}

	var sessions []SessionStatus
	for rows.Next() {
		var s SessionStatus
		if err := rows.Scan(&s.SessionID, &s.ClassID, &s.MaxCapacity, &s.CurrentBookings,
			&s.WaitlistCount, &s.CountedSeats, &s.CountedWaitlist); err != nil {
			continue
		}
		s.InSync = s.CurrentBookings == s.CountedSeats && s.WaitlistCount == s.CountedWaitlist
		sessions = append(sessions, s)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    sessions,
		"count":   len(sessions),
	})
}
