package handler

import (
	"net/http"

	"billing-lifecycle/internal/commands"
	"billing-lifecycle/internal/domain/catalog"
	"billing-lifecycle/internal/domain/order"
	"billing-lifecycle/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type OrderHandler struct {
	bus CommandExecutor
}

func NewOrderHandler(bus CommandExecutor) *OrderHandler {
	return &OrderHandler{bus: bus}
}

func (h *OrderHandler) Place(c *gin.Context) {
	var req httpdto.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	execute(c, h.bus, commands.PlaceOrder{
		CustomerID:         req.CustomerID,
		ServiceType:        catalog.ServiceType(req.ServiceType),
		Reference:          req.Reference,
		Amount:             req.Amount,
		Currency:           req.Currency,
		BillingCycleMonths: req.BillingCycleMonths,
	}, http.StatusCreated)
}

// Provision runs provisioning for a paid order.
func (h *OrderHandler) Provision(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	execute(c, h.bus, commands.ProvisionOrder{OrderID: id}, http.StatusOK)
}

func (h *OrderHandler) Transition(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req httpdto.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	execute(c, h.bus, commands.TransitionOrder{
		OrderID:    id,
		Transition: order.Transition(req.Transition),
		Reason:     req.Reason,
	}, http.StatusOK)
}
