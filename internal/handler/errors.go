package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fitverse/class-booking/internal/domain"
	"github.com/fitverse/class-booking/internal/dto"
)

// handleError converts domain errors to HTTP responses
func handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "BOOKING_NOT_FOUND",
		})
	case errors.Is(err, domain.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "SESSION_NOT_FOUND",
		})
	case errors.Is(err, domain.ErrMemberNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "MEMBER_NOT_FOUND",
		})
	case errors.Is(err, domain.ErrWaitlistEntryNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "WAITLIST_ENTRY_NOT_FOUND",
		})
	case errors.Is(err, domain.ErrAlreadyBooked):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "ALREADY_BOOKED",
		})
	case errors.Is(err, domain.ErrAlreadyCancelled):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "ALREADY_CANCELLED",
		})
	case errors.Is(err, domain.ErrAlreadyPaid):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "ALREADY_PAID",
		})
	case errors.Is(err, domain.ErrSessionFull):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "SESSION_FULL",
		})
	case errors.Is(err, domain.ErrSessionBusy):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error:   err.Error(),
			Code:    "SESSION_BUSY",
			Message: "Another booking for this session is in progress. Please retry.",
		})
	case errors.Is(err, domain.ErrNotOnWaitlist):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "NOT_ON_WAITLIST",
		})
	case errors.Is(err, domain.ErrStillOnWaitlist):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error:   err.Error(),
			Code:    "STILL_ON_WAITLIST",
			Message: "The booking must be promoted off the waitlist before payment",
		})
	case errors.Is(err, domain.ErrMemberBlocked):
		c.JSON(http.StatusForbidden, dto.ErrorResponse{
			Error:   err.Error(),
			Code:    "MEMBER_BLOCKED",
			Message: "Booking is temporarily blocked due to repeated cancellations",
		})
	case errors.Is(err, domain.ErrSessionNotBookable):
		c.JSON(http.StatusUnprocessableEntity, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "SESSION_NOT_BOOKABLE",
		})
	case errors.Is(err, domain.ErrPaymentAmountMismatch):
		c.JSON(http.StatusUnprocessableEntity, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "PAYMENT_AMOUNT_MISMATCH",
		})
	case errors.Is(err, domain.ErrPaymentInitiationFailed):
		c.JSON(http.StatusBadGateway, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "PAYMENT_INITIATION_FAILED",
		})
	case domain.IsValidationError(err):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_REQUEST",
		})
	default:
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error: "internal server error",
			Code:  "INTERNAL_ERROR",
		})
	}
}
