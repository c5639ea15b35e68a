package handler

import (
	"net/http"

	"billing-lifecycle/internal/commands"
	"billing-lifecycle/internal/domain/domainname"
	"billing-lifecycle/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type DomainHandler struct {
	bus CommandExecutor
}

func NewDomainHandler(bus CommandExecutor) *DomainHandler {
	return &DomainHandler{bus: bus}
}

// Register places a registration order and its invoice.
func (h *DomainHandler) Register(c *gin.Context) {
	var req httpdto.RegisterDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	execute(c, h.bus, commands.RegisterDomain{
		CustomerID:  req.CustomerID,
		RegistrarID: req.RegistrarID,
		DomainName:  req.DomainName,
		Years:       req.Years,
		AutoRenew:   req.AutoRenew,
	}, http.StatusCreated)
}

func (h *DomainHandler) Renew(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	execute(c, h.bus, commands.RenewDomain{DomainID: id}, http.StatusOK)
}

func (h *DomainHandler) Transition(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req httpdto.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	execute(c, h.bus, commands.TransitionDomain{
		DomainID:   id,
		Transition: domainname.Transition(req.Transition),
		Reason:     req.Reason,
	}, http.StatusOK)
}
