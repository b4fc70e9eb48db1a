package httpserver

import (
	"errors"
	"net/http"

	"github.com/MarkoPoloResearchLab/observatory/pkg/booking"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusMapping pairs a domain error with its HTTP rendering. The first
// matching entry wins, so more specific sentinels come first.
type statusMapping struct {
	sentinel error
	status   int
	code     string
}

var statusMappings = []statusMapping{
	{booking.ErrAccountNotFound, http.StatusNotFound, "account_not_found"},
	{booking.ErrSlotNotFound, http.StatusNotFound, "event_not_found"},
	{booking.ErrBookingNotFound, http.StatusNotFound, "booking_not_found"},

	{booking.ErrAlreadyBooked, http.StatusConflict, "already_booked"},
	{booking.ErrSlotFull, http.StatusConflict, "no_availability"},
	{booking.ErrEmailTaken, http.StatusConflict, "email_taken"},
	{booking.ErrEventOverlap, http.StatusConflict, "event_overlap"},
	{booking.ErrEventSameDay, http.StatusConflict, "event_same_day"},

	{booking.ErrSlotExpired, http.StatusGone, "event_started"},
	{booking.ErrEventStarted, http.StatusGone, "event_started"},

	{booking.ErrForbidden, http.StatusForbidden, "forbidden"},
	{booking.ErrAccountBlocked, http.StatusForbidden, "account_blocked"},
	{booking.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},

	{booking.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},

	{booking.ErrInvalidAccountID, http.StatusBadRequest, "invalid_account_id"},
	{booking.ErrInvalidSlotID, http.StatusBadRequest, "invalid_event_id"},
	{booking.ErrInvalidRole, http.StatusBadRequest, "invalid_role"},
	{booking.ErrInvalidEmail, http.StatusBadRequest, "invalid_email"},
	{booking.ErrInvalidAccountName, http.StatusBadRequest, "invalid_name"},
	{booking.ErrWeakPassword, http.StatusBadRequest, "weak_password"},
	{booking.ErrInvalidTimeOfDay, http.StatusBadRequest, "invalid_time"},
	{booking.ErrInvalidEventInput, http.StatusBadRequest, "invalid_event"},
	{booking.ErrInvalidConfiguration, http.StatusBadRequest, "invalid_configuration"},
}

// respondError renders a domain failure. Unmapped errors become opaque 500s;
// the detail goes to the log, never to the client.
func (server *Server) respondError(ctx *gin.Context, err error) {
	for _, mapping := range statusMappings {
		if errors.Is(err, mapping.sentinel) {
			ctx.JSON(mapping.status, errorResponse(mapping.code, mapping.sentinel.Error()))
			return
		}
	}
	server.logger.Error("request failed",
		zap.String("path", ctx.FullPath()),
		zap.Error(err))
	ctx.JSON(http.StatusInternalServerError, errorResponse("internal", "internal error"))
}
