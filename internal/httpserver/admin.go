package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/observatory/pkg/booking"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const eventDateLayout = "2006-01-02"

type confirmEventRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
	OpeningTime string `json:"opening_time"`
	ClosingTime string `json:"closing_time"`
	Capacity    int    `json:"capacity"`
}

type setRoleRequest struct {
	Role string `json:"role"`
}

type setBlockedRequest struct {
	Blocked bool `json:"blocked"`
}

type configurationRequest struct {
	Latitude           float64 `json:"latitude"`
	Longitude          float64 `json:"longitude"`
	Timezone           string  `json:"timezone"`
	WeatherThreshold   int     `json:"weather_threshold"`
	DefaultOpeningTime string  `json:"default_opening_time"`
	DefaultClosingTime string  `json:"default_closing_time"`
	MaxBookingsPerSlot int     `json:"max_bookings_per_slot"`
}

func (server *Server) handleConfirmEvent(ctx *gin.Context) {
	adminID, ok := server.sessionAccountID(ctx)
	if !ok {
		return
	}
	var request confirmEventRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	input, err := server.eventInput(ctx.Request.Context(), request)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	var slotID *booking.SlotID
	if raw := ctx.Param("slot_id"); raw != "" {
		parsed, err := booking.NewSlotID(raw)
		if err != nil {
			server.respondError(ctx, err)
			return
		}
		slotID = &parsed
	}
	slot, err := server.service.ConfirmEvent(ctx.Request.Context(), adminID, input, slotID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	status := http.StatusCreated
	if slotID != nil {
		status = http.StatusOK
	}
	ctx.JSON(status, gin.H{
		"event_id":   slot.ID.String(),
		"start_time": slot.StartTime.UTC().Format(time.RFC3339),
		"end_time":   slot.EndTime.UTC().Format(time.RFC3339),
		"capacity":   slot.Capacity,
	})
}

func (server *Server) eventInput(ctx context.Context, request confirmEventRequest) (booking.EventInput, error) {
	date, err := time.Parse(eventDateLayout, request.Date)
	if err != nil {
		return booking.EventInput{}, booking.WrapError("confirm_event", "event", "date", booking.ErrInvalidEventInput)
	}
	openingTime, err := booking.ParseTimeOfDay(request.OpeningTime)
	if err != nil {
		return booking.EventInput{}, err
	}
	closingTime, err := booking.ParseTimeOfDay(request.ClosingTime)
	if err != nil {
		return booking.EventInput{}, err
	}
	capacity := request.Capacity
	if capacity == 0 {
		configuration, err := server.service.GetConfiguration(ctx)
		if err == nil {
			capacity = configuration.MaxBookingsPerSlot
		}
	}
	return booking.EventInput{
		Title:       request.Title,
		Description: request.Description,
		Date:        date,
		OpeningTime: openingTime,
		ClosingTime: closingTime,
		Capacity:    capacity,
	}, nil
}

func (server *Server) handleDeleteEvent(ctx *gin.Context) {
	adminID, ok := server.sessionAccountID(ctx)
	if !ok {
		return
	}
	slotID, err := booking.NewSlotID(ctx.Param("slot_id"))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	if err := server.service.DeleteEvent(ctx.Request.Context(), adminID, slotID); err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (server *Server) handleListAccounts(ctx *gin.Context) {
	adminID, ok := server.sessionAccountID(ctx)
	if !ok {
		return
	}
	profiles, err := server.service.ListAccounts(ctx.Request.Context(), adminID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	payloads := make([]profilePayload, 0, len(profiles))
	for _, profile := range profiles {
		payloads = append(payloads, profilePayload{
			AccountID: profile.ID.String(),
			Name:      profile.Name,
			Email:     profile.Email,
			Role:      profile.Role.String(),
			Blocked:   profile.Blocked,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"users": payloads})
}

func (server *Server) handleSetRole(ctx *gin.Context) {
	adminID, ok := server.sessionAccountID(ctx)
	if !ok {
		return
	}
	targetID, err := booking.NewAccountID(ctx.Param("account_id"))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	var request setRoleRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	role, err := booking.ParseRole(request.Role)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	if err := server.service.SetRole(ctx.Request.Context(), adminID, targetID, role); err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (server *Server) handleSetBlocked(ctx *gin.Context) {
	adminID, ok := server.sessionAccountID(ctx)
	if !ok {
		return
	}
	targetID, err := booking.NewAccountID(ctx.Param("account_id"))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	var request setBlockedRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	if err := server.service.SetBlocked(ctx.Request.Context(), adminID, targetID, request.Blocked); err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (server *Server) handleDeleteAccount(ctx *gin.Context) {
	adminID, ok := server.sessionAccountID(ctx)
	if !ok {
		return
	}
	targetID, err := booking.NewAccountID(ctx.Param("account_id"))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	if err := server.service.DeleteAccount(ctx.Request.Context(), adminID, targetID); err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (server *Server) handleGetConfiguration(ctx *gin.Context) {
	configuration, err := server.service.GetConfiguration(ctx.Request.Context())
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, configurationResponse(configuration))
}

func (server *Server) handleUpdateConfiguration(ctx *gin.Context) {
	adminID, ok := server.sessionAccountID(ctx)
	if !ok {
		return
	}
	var request configurationRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	openingTime, err := booking.ParseTimeOfDay(request.DefaultOpeningTime)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	closingTime, err := booking.ParseTimeOfDay(request.DefaultClosingTime)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	configuration := booking.Configuration{
		Latitude:           request.Latitude,
		Longitude:          request.Longitude,
		Timezone:           request.Timezone,
		WeatherThreshold:   request.WeatherThreshold,
		DefaultOpeningTime: openingTime,
		DefaultClosingTime: closingTime,
		MaxBookingsPerSlot: request.MaxBookingsPerSlot,
	}
	applied, err := server.service.UpdateConfiguration(ctx.Request.Context(), adminID, configuration)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	// Location or threshold may have moved; re-rate upcoming events so stored
	// ratings reflect the new settings rather than waiting for the next tick.
	server.triggerWeatherRefresh(ctx)
	ctx.JSON(http.StatusOK, configurationResponse(applied))
}

func (server *Server) handleRefreshWeather(ctx *gin.Context) {
	if server.refresher == nil {
		ctx.JSON(http.StatusServiceUnavailable, errorResponse("unavailable", "weather refresher not configured"))
		return
	}
	updated, failed, err := server.RefreshWeather(ctx.Request.Context())
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"updated": updated, "failed": failed})
}

func (server *Server) triggerWeatherRefresh(ctx *gin.Context) {
	if server.refresher == nil {
		return
	}
	if _, _, err := server.RefreshWeather(ctx.Request.Context()); err != nil {
		server.logger.Warn("weather refresh after configuration update failed", zap.Error(err))
	}
}

func configurationResponse(configuration booking.Configuration) gin.H {
	return gin.H{
		"configuration": gin.H{
			"latitude":              configuration.Latitude,
			"longitude":             configuration.Longitude,
			"timezone":              configuration.Timezone,
			"weather_threshold":     configuration.WeatherThreshold,
			"default_opening_time":  configuration.DefaultOpeningTime.String(),
			"default_closing_time":  configuration.DefaultClosingTime.String(),
			"max_bookings_per_slot": configuration.MaxBookingsPerSlot,
		},
	}
}
