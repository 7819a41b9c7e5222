package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/fitverse/class-booking/internal/dto"
	"github.com/fitverse/class-booking/internal/service"
	"github.com/fitverse/class-booking/pkg/telemetry"
)

// WaitlistHandler handles waitlist HTTP requests
type WaitlistHandler struct {
	waitlistService service.WaitlistService
}

// NewWaitlistHandler creates a new waitlist handler
func NewWaitlistHandler(waitlistService service.WaitlistService) *WaitlistHandler {
	return &WaitlistHandler{waitlistService: waitlistService}
}

// GetWaitlist handles GET /schedules/:id/waitlist
func (h *WaitlistHandler) GetWaitlist(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.waitlist.list")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	sessionID := c.Param("id")
	if sessionID == "" {
		span.SetStatus(codes.Error, "session id required")
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "session id required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	span.SetAttributes(attribute.String("session_id", sessionID))

	result, err := h.waitlistService.ListWaitlist(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.Int("count", len(result.Entries)))
	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, result)
}

// PromoteNext handles POST /schedules/:id/waitlist/promote
// Staff endpoint for promoting the next waitlisted member manually
func (h *WaitlistHandler) PromoteNext(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.waitlist.promote")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	sessionID := c.Param("id")
	if sessionID == "" {
		span.SetStatus(codes.Error, "session id required")
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "session id required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	span.SetAttributes(attribute.String("session_id", sessionID))

	result, err := h.waitlistService.PromoteNext(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("booking_id", result.Booking.ID))
	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, result)
}

// NotifyAvailability handles POST /schedules/:id/waitlist/notify
// Staff endpoint for nudging the front of the waitlist when a spot is
// expected to open (a cancelled class merge, an added bike, and so on);
// delivery is best effort, so the endpoint always accepts
func (h *WaitlistHandler) NotifyAvailability(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.waitlist.notify")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	sessionID := c.Param("id")
	if sessionID == "" {
		span.SetStatus(codes.Error, "session id required")
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "session id required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	topN, err := strconv.Atoi(c.DefaultQuery("top_n", "3"))
	if err != nil || topN <= 0 {
		span.SetStatus(codes.Error, "invalid top_n")
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "top_n must be a positive integer",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.Int("top_n", topN),
	)

	h.waitlistService.NotifyAvailability(ctx, sessionID, topN)

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusAccepted, dto.SuccessResponse{
		Success: true,
		Message: "waitlist notification dispatched",
	})
}

// RemoveEntry handles DELETE /waitlist/:id
func (h *WaitlistHandler) RemoveEntry(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.waitlist.remove")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	bookingID := c.Param("id")
	if bookingID == "" {
		span.SetStatus(codes.Error, "waitlist entry id required")
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: "waitlist entry id required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	span.SetAttributes(attribute.String("booking_id", bookingID))

	if err := h.waitlistService.RemoveEntry(ctx, bookingID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, dto.SuccessResponse{
		Success: true,
		Message: "removed from waitlist",
	})
}
