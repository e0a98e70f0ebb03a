package events

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/merchpulse/storesync/internal/handler"
	"github.com/merchpulse/storesync/internal/model"
	syncsvc "github.com/merchpulse/storesync/internal/service/sync"
	"github.com/merchpulse/storesync/pkg/logger"
)

// Handler ingests browser-side events, currently only cart updates.
type Handler struct {
	adapters *syncsvc.Adapters
	logger   *logger.Logger
}

func NewHandler(adapters *syncsvc.Adapters, log *logger.Logger) *Handler {
	return &Handler{
		adapters: adapters,
		logger:   log.WithComponent("events_handler"),
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	events := r.Group("/events")
	{
		events.POST("/cart", h.CartUpdate)
	}
}

// CartUpdate records the shopper's current cart. Guest and anonymous
// carts are accepted and silently dropped; the adapter decides what is
// attributable.
func (h *Handler) CartUpdate(c *gin.Context) {
	var cart model.Cart
	if err := c.ShouldBindJSON(&cart); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid request body"))
		return
	}

	if err := h.adapters.Carts.OnCartSave(c.Request.Context(), &cart); err != nil {
		h.logger.Error(err, "cart event failed", "customer_id", cart.CustomerID)
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("failed to record cart event"))
		return
	}
	c.JSON(http.StatusAccepted, handler.NewSuccessResponse(nil))
}
