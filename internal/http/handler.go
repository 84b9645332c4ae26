package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"garage-monitor/internal/config"
	"garage-monitor/internal/domain/garage"
	"garage-monitor/internal/service"
)

type Handler struct {
	garageService *service.GarageService
	detectService *service.DetectService
	config        *config.Config
	log           zerolog.Logger
}

func NewHandler(
	garageService *service.GarageService,
	detectService *service.DetectService,
	cfg *config.Config,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		garageService: garageService,
		detectService: detectService,
		config:        cfg,
		log:           log,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	// Public endpoints: sensor nodes authenticate at the network layer.
	public := r.Group("/api/v1")
	{
		public.POST("/update", h.updateSlot)
		public.POST("/car_event", h.reportCarEvent)
		public.POST("/detect", h.triggerDetect)
		public.GET("/occupancy", h.listSlots)
		public.GET("/summary", h.summary)
		public.GET("/map", h.garageMap)
		public.GET("/history", h.listHistory)
		public.GET("/car_log", h.listCarLog)
	}

	// Protected endpoints
	protected := r.Group("/api/v1/admin")
	protected.Use(authMiddleware)
	{
		protected.DELETE("/events", h.cleanupEvents)
	}

	r.GET("/health", h.health)
	r.Static("/data", h.config.Server.DataDir)
}

func (h *Handler) updateSlot(c *gin.Context) {
	var payload garage.SlotUpdatePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	if err := h.garageService.UpdateSlot(c.Request.Context(), payload); err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"slot_id":  payload.SlotID,
		"occupied": payload.Occupied,
	})
}

func (h *Handler) reportCarEvent(c *gin.Context) {
	var payload garage.CarEventPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	info, err := h.garageService.ReportCarEvent(c.Request.Context(), payload)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":   "ok",
		"event_id": info.ID,
		"plate":    info.Plate,
		"event":    info.Event,
	})
}

// triggerDetect accepts a gate trigger and returns as soon as the job is
// queued. The recognition result lands in the car log, not in this
// response.
func (h *Handler) triggerDetect(c *gin.Context) {
	var payload garage.DetectRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	jobID, err := h.detectService.Trigger(payload.Event, payload.ESP32URL)
	if err != nil {
		if errors.Is(err, service.ErrQueueFull) {
			c.JSON(http.StatusServiceUnavailable, errorResponse("detection queue is full, try again later"))
			return
		}
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status": "processing",
		"job_id": jobID.String(),
		"event":  payload.Event,
	})
}

func (h *Handler) listSlots(c *gin.Context) {
	slots, err := h.garageService.ListSlots(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(slots))
}

func (h *Handler) summary(c *gin.Context) {
	summary, err := h.garageService.Summary(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(summary))
}

// garageMap returns the slots together with their grid placement so the
// dashboard can draw the floor layout.
func (h *Handler) garageMap(c *gin.Context) {
	slots, err := h.garageService.ListSlots(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}

	rows, cols := 0, 0
	for _, slot := range slots {
		if slot.Y+1 > rows {
			rows = slot.Y + 1
		}
		if slot.X+1 > cols {
			cols = slot.X + 1
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"rows":  rows,
		"cols":  cols,
		"slots": slots,
	})
}

func (h *Handler) listHistory(c *gin.Context) {
	var slotID *string
	if s := strings.TrimSpace(c.Query("slot_id")); s != "" {
		slotID = &s
	}

	history, err := h.garageService.History(c.Request.Context(), slotID, queryLimit(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(history))
}

func (h *Handler) listCarLog(c *gin.Context) {
	var plate *string
	if p := strings.TrimSpace(c.Query("plate")); p != "" {
		plate = &p
	}

	events, err := h.garageService.CarLog(c.Request.Context(), plate, queryLimit(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(events))
}

func (h *Handler) cleanupEvents(c *gin.Context) {
	days := 30
	if d := c.Query("days"); d != "" {
		parsed, err := strconv.Atoi(d)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, errorResponse("days must be a positive integer"))
			return
		}
		days = parsed
	}

	deleted, err := h.garageService.CleanupOldEvents(c.Request.Context(), days)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"deleted": deleted,
		"days":    days,
	})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}

func queryLimit(c *gin.Context) int {
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			return parsed
		}
	}
	return 0
}
