package handler

import (
	"context"
	"net/http"

	"billing-lifecycle/internal/commands"
	"billing-lifecycle/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

// ArchiveLinker is satisfied by storage.InvoiceArchive.
type ArchiveLinker interface {
	DownloadURL(ctx context.Context, number string) (string, error)
}

type InvoiceHandler struct {
	bus     CommandExecutor
	archive ArchiveLinker
}

// NewInvoiceHandler builds the invoice endpoints. archive may be nil when no
// bucket is configured.
func NewInvoiceHandler(bus CommandExecutor, archive ArchiveLinker) *InvoiceHandler {
	return &InvoiceHandler{bus: bus, archive: archive}
}

// RecordPayment marks an invoice paid. A repeat with the invoice already paid
// succeeds with outcome "already_paid".
func (h *InvoiceHandler) RecordPayment(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req httpdto.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "transaction_id is required")
		return
	}
	execute(c, h.bus, commands.RecordPayment{InvoiceID: id, TransactionID: req.TransactionID}, http.StatusOK)
}

func (h *InvoiceHandler) ArchiveLink(c *gin.Context) {
	if h.archive == nil {
		c.JSON(http.StatusNotFound, httpdto.NewErrorResponse("invoice archive is not configured", "NOT_FOUND"))
		return
	}
	number := c.Param("number")
	url, err := h.archive.DownloadURL(c.Request.Context(), number)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ArchiveLinkResponse{Number: number, URL: url}))
}
