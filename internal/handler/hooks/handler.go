package hooks

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/merchpulse/storesync/internal/handler"
	syncsvc "github.com/merchpulse/storesync/internal/service/sync"
	"github.com/merchpulse/storesync/pkg/logger"
	"github.com/merchpulse/storesync/pkg/validator"
)

// Handler ingests entity mutation hooks fired by the host platform and
// forwards them to the matching adapter. Hooks only enqueue; the remote
// call happens later in the dispatcher, so these endpoints stay fast on
// the platform's request path.
type Handler struct {
	adapters  *syncsvc.Adapters
	validator *validator.Validator
	logger    *logger.Logger
}

func NewHandler(adapters *syncsvc.Adapters, v *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{
		adapters:  adapters,
		validator: v,
		logger:    log.WithComponent("hooks_handler"),
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	hooks := r.Group("/hooks")
	{
		hooks.POST("/products/:op", h.Product)
		hooks.POST("/variants/:op", h.Variant)
		hooks.POST("/categories/:op", h.Category)
		hooks.POST("/users/:op", h.User)
		hooks.POST("/orders/:op", h.Order)
	}
}

type productHook struct {
	ProductID int64 `json:"product_id" validate:"required,min=1"`
}

func (h *Handler) Product(c *gin.Context) {
	var req productHook
	if !h.bind(c, &req) {
		return
	}

	ctx := c.Request.Context()
	var err error
	switch c.Param("op") {
	case "add":
		err = h.adapters.Products.OnAdd(ctx, req.ProductID)
	case "update":
		err = h.adapters.Products.OnUpdate(ctx, req.ProductID)
	case "delete":
		err = h.adapters.Products.OnDelete(ctx, req.ProductID)
	case "status":
		err = h.adapters.Products.OnStatusChange(ctx, req.ProductID)
	case "quantity":
		err = h.adapters.Products.OnQuantityChange(ctx, req.ProductID)
	default:
		h.unknownOp(c)
		return
	}
	h.respond(c, err)
}

type variantHook struct {
	CombinationID int64 `json:"combination_id" validate:"required,min=1"`
	// ProductID is required on delete, when the combination row is gone
	// and the parent can no longer be looked up.
	ProductID int64 `json:"product_id"`
}

func (h *Handler) Variant(c *gin.Context) {
	var req variantHook
	if !h.bind(c, &req) {
		return
	}

	ctx := c.Request.Context()
	var err error
	switch c.Param("op") {
	case "add":
		err = h.adapters.Variants.OnAdd(ctx, req.CombinationID)
	case "update":
		err = h.adapters.Variants.OnUpdate(ctx, req.CombinationID)
	case "delete":
		if req.ProductID <= 0 {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("product_id is required for variant deletes"))
			return
		}
		err = h.adapters.Variants.OnDelete(ctx, req.CombinationID, req.ProductID)
	default:
		h.unknownOp(c)
		return
	}
	h.respond(c, err)
}

type categoryHook struct {
	CategoryID int64 `json:"category_id" validate:"required,min=1"`
}

func (h *Handler) Category(c *gin.Context) {
	var req categoryHook
	if !h.bind(c, &req) {
		return
	}

	ctx := c.Request.Context()
	var err error
	switch c.Param("op") {
	case "add":
		err = h.adapters.Categories.OnAdd(ctx, req.CategoryID)
	case "update":
		err = h.adapters.Categories.OnUpdate(ctx, req.CategoryID)
	case "delete":
		err = h.adapters.Categories.OnDelete(ctx, req.CategoryID)
	default:
		h.unknownOp(c)
		return
	}
	h.respond(c, err)
}

type userHook struct {
	CustomerID int64 `json:"customer_id" validate:"required,min=1"`
}

func (h *Handler) User(c *gin.Context) {
	var req userHook
	if !h.bind(c, &req) {
		return
	}

	ctx := c.Request.Context()
	var err error
	switch c.Param("op") {
	case "add":
		err = h.adapters.Users.OnAdd(ctx, req.CustomerID)
	case "update":
		err = h.adapters.Users.OnUpdate(ctx, req.CustomerID)
	case "delete":
		err = h.adapters.Users.OnDelete(ctx, req.CustomerID)
	default:
		h.unknownOp(c)
		return
	}
	h.respond(c, err)
}

type orderHook struct {
	OrderID int64 `json:"order_id" validate:"required,min=1"`
	StateID int   `json:"state_id"`
}

func (h *Handler) Order(c *gin.Context) {
	var req orderHook
	if !h.bind(c, &req) {
		return
	}

	ctx := c.Request.Context()
	var err error
	switch c.Param("op") {
	case "add":
		err = h.adapters.Orders.OnAdd(ctx, req.OrderID)
	case "delete":
		err = h.adapters.Orders.OnDelete(ctx, req.OrderID)
	case "status":
		err = h.adapters.Orders.OnStatusChange(ctx, req.OrderID, req.StateID)
	default:
		h.unknownOp(c)
		return
	}
	h.respond(c, err)
}

func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid request body"))
		return false
	}
	if err := h.validator.Validate(req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return false
	}
	return true
}

func (h *Handler) respond(c *gin.Context, err error) {
	if err != nil {
		h.logger.Error(err, "hook processing failed", "path", c.Request.URL.Path)
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("failed to queue sync job"))
		return
	}
	c.JSON(http.StatusAccepted, handler.NewSuccessResponse(nil))
}

func (h *Handler) unknownOp(c *gin.Context) {
	c.JSON(http.StatusNotFound, handler.NewErrorResponse("unknown hook operation"))
}
