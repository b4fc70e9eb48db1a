package httpserver

import (
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/observatory/pkg/booking"
	"github.com/gin-gonic/gin"
)

// The event listing covers the forecast horizon plus a trailing day so
// in-progress and just-finished events stay visible.
const (
	listLookbehind = 24 * time.Hour
	listLookahead  = 7 * 24 * time.Hour
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type profilePayload struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Blocked   bool   `json:"blocked"`
}

type eventPayload struct {
	SlotID            string  `json:"event_id"`
	Title             string  `json:"title"`
	Description       string  `json:"description"`
	StartTime         string  `json:"start_time"`
	EndTime           string  `json:"end_time"`
	Capacity          int     `json:"capacity"`
	BookedCount       int     `json:"booked_count"`
	Status            string  `json:"status"`
	IsUserBooked      bool    `json:"is_user_booked"`
	IsFullyBooked     bool    `json:"is_fully_booked"`
	WeatherRating     *int    `json:"weather_rating"`
	WeatherWarning    bool    `json:"weather_warning"`
	ForecastAvailable bool    `json:"forecast_available"`
	WeatherRefreshed  *string `json:"weather_refreshed_at"`
}

func (server *Server) handleRegister(ctx *gin.Context) {
	var request registerRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	email, err := booking.NewEmailAddress(request.Email)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	password, err := booking.NewPassword(request.Password)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	accountID, err := server.service.Register(ctx.Request.Context(), request.Name, email, password)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"account_id": accountID.String()})
}

func (server *Server) handleLogin(ctx *gin.Context) {
	var request loginRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	email, err := booking.NewEmailAddress(request.Email)
	if err != nil {
		// An address that fails validation cannot match an account either.
		server.respondError(ctx, booking.ErrInvalidCredentials)
		return
	}
	profile, err := server.service.Authenticate(ctx.Request.Context(), email, request.Password)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	if err := server.sessions.issue(ctx, profile); err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, profileResponse(profile))
}

func (server *Server) handleLogout(ctx *gin.Context) {
	server.sessions.clear(ctx)
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (server *Server) handleSession(ctx *gin.Context) {
	accountID, ok := server.sessionAccountID(ctx)
	if !ok {
		return
	}
	profile, err := server.service.GetProfile(ctx.Request.Context(), accountID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, profileResponse(profile))
}

func (server *Server) handleChangePassword(ctx *gin.Context) {
	accountID, ok := server.sessionAccountID(ctx)
	if !ok {
		return
	}
	var request changePasswordRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	newPassword, err := booking.NewPassword(request.NewPassword)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	if err := server.service.ChangePassword(ctx.Request.Context(), accountID, request.CurrentPassword, newPassword); err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (server *Server) handleListEvents(ctx *gin.Context) {
	accountID, ok := server.sessionAccountID(ctx)
	if !ok {
		return
	}
	now := time.Now()
	views, err := server.service.ListSlots(ctx.Request.Context(), accountID, now.Add(-listLookbehind), now.Add(listLookahead))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	payloads := make([]eventPayload, 0, len(views))
	for _, view := range views {
		payloads = append(payloads, eventResponse(view))
	}
	ctx.JSON(http.StatusOK, gin.H{"events": payloads})
}

func (server *Server) handleBook(ctx *gin.Context) {
	accountID, ok := server.sessionAccountID(ctx)
	if !ok {
		return
	}
	slotID, err := booking.NewSlotID(ctx.Param("slot_id"))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	result, err := server.service.Book(ctx.Request.Context(), accountID, slotID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	server.metrics.bookings.Inc()
	ctx.JSON(http.StatusOK, gin.H{
		"event_id":        result.SlotID.String(),
		"booked_count":    result.BookedCount,
		"capacity":        result.Capacity,
		"is_fully_booked": result.IsFullyBooked,
	})
}

func (server *Server) handleCancel(ctx *gin.Context) {
	accountID, ok := server.sessionAccountID(ctx)
	if !ok {
		return
	}
	slotID, err := booking.NewSlotID(ctx.Param("slot_id"))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	if err := server.service.Cancel(ctx.Request.Context(), accountID, slotID); err != nil {
		server.respondError(ctx, err)
		return
	}
	server.metrics.cancellations.Inc()
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func profileResponse(profile booking.AccountProfile) gin.H {
	return gin.H{
		"profile": profilePayload{
			AccountID: profile.ID.String(),
			Name:      profile.Name,
			Email:     profile.Email,
			Role:      profile.Role.String(),
			Blocked:   profile.Blocked,
		},
	}
}

func eventResponse(view booking.SlotView) eventPayload {
	payload := eventPayload{
		SlotID:            view.Slot.ID.String(),
		Title:             view.Slot.Title,
		Description:       view.Slot.Description,
		StartTime:         view.Slot.StartTime.UTC().Format(time.RFC3339),
		EndTime:           view.Slot.EndTime.UTC().Format(time.RFC3339),
		Capacity:          view.Slot.Capacity,
		BookedCount:       view.BookedCount,
		Status:            string(view.Status),
		IsUserBooked:      view.IsUserBooked,
		IsFullyBooked:     view.IsFullyBooked,
		WeatherRating:     view.Slot.WeatherRating,
		WeatherWarning:    view.Slot.WeatherWarning,
		ForecastAvailable: view.Slot.ForecastAvailable,
	}
	if !view.Slot.WeatherRefreshedAt.IsZero() {
		refreshed := view.Slot.WeatherRefreshedAt.UTC().Format(time.RFC3339)
		payload.WeatherRefreshed = &refreshed
	}
	return payload
}
