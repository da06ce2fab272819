package handler

import (
	"net/http"

	"dealroom/internal/services"
	"dealroom/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

// ChannelHandler exposes history, sending and read state over REST for
// clients that are not connected by WebSocket.
type ChannelHandler struct {
	gateway *services.Gateway
}

func NewChannelHandler(gateway *services.Gateway) *ChannelHandler {
	return &ChannelHandler{gateway: gateway}
}

// History returns messages after ?since= (default 0, the full log).
func (h *ChannelHandler) History(c *gin.Context) {
	transactionID, ok := pathID(c, "transaction id")
	if !ok {
		return
	}
	since, err := parseInt64(c.Query("since"))
	if err != nil || since < 0 {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid since", "INVALID_REQUEST"))
		return
	}
	participantID, ok := actor(c)
	if !ok {
		return
	}

	records, err := h.gateway.History(c.Request.Context(), participantID, transactionID, since)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.HistoryResponse{TransactionID: transactionID, Messages: records}))
}

func (h *ChannelHandler) Send(c *gin.Context) {
	transactionID, ok := pathID(c, "transaction id")
	if !ok {
		return
	}
	var req httpdto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}
	participantID, ok := actor(c)
	if !ok {
		return
	}

	rec, err := h.gateway.SendMessage(c.Request.Context(), participantID, transactionID, req.Body, req.ClientMessageID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(rec))
}

func (h *ChannelHandler) MarkRead(c *gin.Context) {
	transactionID, ok := pathID(c, "transaction id")
	if !ok {
		return
	}
	participantID, ok := actor(c)
	if !ok {
		return
	}

	update, err := h.gateway.MarkRead(c.Request.Context(), participantID, transactionID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(update))
}

// Unread maps each transaction with unread messages to its count, the same
// shape the WebSocket unread frame carries.
func (h *ChannelHandler) Unread(c *gin.Context) {
	participantID, ok := actor(c)
	if !ok {
		return
	}

	summary, err := h.gateway.UnreadSummary(c.Request.Context(), participantID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(summary))
}
