package sync

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/merchpulse/storesync/internal/handler"
	"github.com/merchpulse/storesync/internal/service/admin"
	"github.com/merchpulse/storesync/internal/service/dispatcher"
	apperrors "github.com/merchpulse/storesync/pkg/errors"
	"github.com/merchpulse/storesync/pkg/logger"
	"github.com/merchpulse/storesync/pkg/validator"
)

// Handler exposes the store-owner admin surface: connect, status and
// disconnect.
type Handler struct {
	service    *admin.Service
	dispatcher *dispatcher.Service
	validator  *validator.Validator
	logger     *logger.Logger
}

func NewHandler(service *admin.Service, disp *dispatcher.Service, v *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{
		service:    service,
		dispatcher: disp,
		validator:  v,
		logger:     log.WithComponent("sync_handler"),
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	sync := r.Group("/sync")
	{
		sync.POST("/connect", h.Connect)
		sync.GET("/status", h.Status)
		sync.POST("/disconnect", h.Disconnect)
	}
}

type connectRequest struct {
	APIKey    string `json:"api_key" validate:"required,min=8"`
	APISecret string `json:"api_secret" validate:"required,min=8"`
}

func (h *Handler) Connect(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid request body"))
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	if err := h.service.Connect(c.Request.Context(), req.APIKey, req.APISecret); err != nil {
		if apperrors.IsUnauthorized(err) {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("the remote service rejected these credentials"))
			return
		}
		h.logger.Error(err, "connect failed")
		c.JSON(http.StatusBadGateway, handler.NewErrorResponse("could not reach the sync service, try again"))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"connected": true}))
}

// Status reports bootstrap progress and queue counts. It also nudges the
// dispatcher: an admin watching the progress page keeps the queue moving
// even if the worker is down.
func (h *Handler) Status(c *gin.Context) {
	report, err := h.service.Status(c.Request.Context())
	if err != nil {
		h.logger.Error(err, "status failed")
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("failed to read sync status"))
		return
	}

	if report.Connected {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()
			if err := h.dispatcher.MaybeTick(ctx); err != nil {
				h.logger.Error(err, "status-triggered tick failed")
			}
		}()
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(report))
}

func (h *Handler) Disconnect(c *gin.Context) {
	if err := h.service.Disconnect(c.Request.Context()); err != nil {
		h.logger.Error(err, "disconnect failed")
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("failed to disconnect"))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"connected": false}))
}
