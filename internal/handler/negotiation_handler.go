package handler

import (
	"context"
	"net/http"

	"dealroom/internal/services"
	"dealroom/internal/transport/httpdto"
	dealroom_errors "dealroom/pkg/errors"

	"github.com/gin-gonic/gin"
)

// TranscriptLinker returns a download link for an archived object.
type TranscriptLinker interface {
	PresignGet(ctx context.Context, key string) (string, error)
}

type NegotiationHandler struct {
	gateway     *services.Gateway
	transcripts TranscriptLinker
}

// NewNegotiationHandler builds the handler. transcripts may be nil when
// archiving is disabled.
func NewNegotiationHandler(gateway *services.Gateway, transcripts TranscriptLinker) *NegotiationHandler {
	return &NegotiationHandler{gateway: gateway, transcripts: transcripts}
}

// Open starts a negotiation on the transaction in the path.
func (h *NegotiationHandler) Open(c *gin.Context) {
	transactionID, ok := pathID(c, "transaction id")
	if !ok {
		return
	}
	var req httpdto.OfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}
	participantID, ok := actor(c)
	if !ok {
		return
	}

	view, err := h.gateway.OpenNegotiation(c.Request.Context(), participantID, transactionID, req.Amount, req.Message)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(view))
}

func (h *NegotiationHandler) Get(c *gin.Context) {
	negotiationID, ok := pathID(c, "negotiation id")
	if !ok {
		return
	}
	participantID, ok := actor(c)
	if !ok {
		return
	}

	view, err := h.gateway.GetNegotiation(c.Request.Context(), participantID, negotiationID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(view))
}

func (h *NegotiationHandler) Counter(c *gin.Context) {
	negotiationID, ok := pathID(c, "negotiation id")
	if !ok {
		return
	}
	var req httpdto.OfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}
	participantID, ok := actor(c)
	if !ok {
		return
	}

	view, err := h.gateway.CounterOffer(c.Request.Context(), participantID, negotiationID, req.Amount, req.Message)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(view))
}

func (h *NegotiationHandler) Accept(c *gin.Context) { h.decide(c, "accept") }
func (h *NegotiationHandler) Reject(c *gin.Context) { h.decide(c, "reject") }
func (h *NegotiationHandler) Cancel(c *gin.Context) { h.decide(c, "cancel") }

func (h *NegotiationHandler) decide(c *gin.Context, decision string) {
	negotiationID, ok := pathID(c, "negotiation id")
	if !ok {
		return
	}
	participantID, ok := actor(c)
	if !ok {
		return
	}

	view, err := h.gateway.Decide(c.Request.Context(), participantID, negotiationID, decision)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(view))
}

// Transcript links the archived transcript of a closed negotiation.
func (h *NegotiationHandler) Transcript(c *gin.Context) {
	negotiationID, ok := pathID(c, "negotiation id")
	if !ok {
		return
	}
	participantID, ok := actor(c)
	if !ok {
		return
	}
	if h.transcripts == nil {
		c.JSON(http.StatusNotFound, httpdto.NewErrorResponse("transcript archive disabled", "NOT_FOUND"))
		return
	}

	view, err := h.gateway.GetNegotiation(c.Request.Context(), participantID, negotiationID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if !view.Status.IsTerminal() {
		_ = c.Error(dealroom_errors.ErrNotFound)
		return
	}
	url, err := h.transcripts.PresignGet(c.Request.Context(), services.TranscriptKey(view.TransactionID, view.ID))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.TranscriptResponse{URL: url}))
}
