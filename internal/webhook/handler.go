package webhook

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"leadrouter/internal/eventbus"
	"leadrouter/internal/logger"
	apperrors "leadrouter/pkg/errors"
	"leadrouter/pkg/metrics"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	pipeline *Pipeline
	bus      *eventbus.Bus
	logger   logger.Logger
}

func NewHandler(pipeline *Pipeline, bus *eventbus.Bus, log logger.Logger) *Handler {
	return &Handler{
		pipeline: pipeline,
		bus:      bus,
		logger:   log,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine, webhookPath string) {
	router.POST(webhookPath, h.HandleWebhook)

	v1 := router.Group("/api/v1")
	{
		bus := v1.Group("/eventbus")
		{
			bus.GET("/metrics", h.EventBusMetrics)
			bus.GET("/history", h.EventBusHistory)
		}
	}
}

// HandleWebhook godoc
// @Summary      Receive a conversation webhook
// @Description  Classifies, de-duplicates and routes one conversation platform event
// @Tags         webhook
// @Accept       json
// @Produce      json
// @Success      200  {object}  Result
// @Failure      400  {object}  map[string]interface{}
// @Failure      500  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}
// @Router       /webhooks/conversations [post]
func (h *Handler) HandleWebhook(c *gin.Context) {
	start := time.Now()
	ctx := c.Request.Context()

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		h.fail(c, start, apperrors.ErrValidation.WithMessage("failed to read body").WithCause(err))
		return
	}

	res, err := h.pipeline.Process(ctx, body)
	if err != nil {
		h.fail(c, start, err)
		return
	}

	result := "processed"
	if res.Skipped != "" {
		result = "skipped"
	}
	metrics.IncWebhookRequest(result)
	metrics.ObserveWebhookDuration(time.Since(start), result)
	c.JSON(http.StatusOK, res)
}

func (h *Handler) fail(c *gin.Context, start time.Time, err error) {
	status := apperrors.ToHTTPStatus(err)
	result := "error"
	if apperrors.IsValidation(err) {
		result = "invalid"
		h.logger.WarnwCtx(c.Request.Context(), "Rejected webhook body", "error", err)
	} else {
		h.logger.ErrorwCtx(c.Request.Context(), "Webhook failed", "error", err, "status", status)
	}

	metrics.IncWebhookRequest(result)
	metrics.ObserveWebhookDuration(time.Since(start), result)
	c.JSON(status, apperrors.ToErrorResponse(err))
}

// EventBusMetrics godoc
// @Summary      Event bus metrics
// @Description  Handler counts, queue depth, history size and per-type circuit breakers
// @Tags         eventbus
// @Produce      json
// @Success      200  {object}  eventbus.Metrics
// @Router       /api/v1/eventbus/metrics [get]
func (h *Handler) EventBusMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.bus.Metrics())
}

// EventBusHistory godoc
// @Summary      Event bus history
// @Description  The most recent published events, oldest first
// @Tags         eventbus
// @Produce      json
// @Success      200  {array}  eventbus.Event
// @Router       /api/v1/eventbus/history [get]
func (h *Handler) EventBusHistory(c *gin.Context) {
	c.JSON(http.StatusOK, h.bus.History())
}
