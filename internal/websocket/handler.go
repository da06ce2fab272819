package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"dealroom/internal/metrics"
	"dealroom/internal/services"
	"dealroom/internal/transport/httpdto"
	dealroom_errors "dealroom/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Handler struct {
	auth     *services.AuthService
	gateway  *services.Gateway
	logger   *ConnLogger
	upgrader websocket.Upgrader
}

func NewHandler(auth *services.AuthService, gateway *services.Gateway, logger *ConnLogger) *Handler {
	return &Handler{
		auth:    auth,
		gateway: gateway,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Connect upgrades an authenticated request and serves the connection until
// it closes. Browsers cannot set headers on upgrade, so the token may also
// come from the query string.
func (h *Handler) Connect(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = bearerToken(c.GetHeader("Authorization"))
	}
	participantID, err := h.auth.Authenticate(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := NewClient(conn, participantID, h.logger)
	ctx, cancel := context.WithCancel(services.WithParticipantContext(context.Background(), participantID))
	defer cancel()

	metrics.WebSocketConnections.Inc()
	defer metrics.WebSocketConnections.Dec()

	go client.writePump()

	txns, err := h.gateway.Connect(ctx, client)
	if err != nil {
		h.logger.Error("reattach failed", participantID, client.ID(), err)
		client.Send(errorReply("", err))
	}
	if txns == nil {
		txns = []uuid.UUID{}
	}
	client.Send(encodeReply(ReplyFrame{Type: ReplyConnected, Data: ConnectedData{ConnectionID: client.ID(), Transactions: txns}}))
	h.logger.Info("connected", participantID, client.ID(), zap.Int("reattached", len(txns)))

	client.readPump(func(frame []byte) {
		h.Dispatch(ctx, client, frame)
	}, func() {
		h.gateway.Heartbeat(ctx, client)
	})

	h.gateway.Disconnect(ctx, client)
	client.close()
	h.logger.Info("disconnected", participantID, client.ID())
}

// Dispatch handles one inbound frame. Failures are answered with an error
// frame; the connection stays open.
func (h *Handler) Dispatch(ctx context.Context, client services.Connection, raw []byte) {
	var f InboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		client.Send(errorReply("", fmt.Errorf("%w: malformed frame", dealroom_errors.ErrInvalidInput)))
		return
	}
	reply, err := h.handle(ctx, client, f)
	if err != nil {
		h.logger.Debug("frame rejected", client.ParticipantID(), client.ID(),
			zap.String("type", f.Type), zap.Error(err))
		client.Send(errorReply(f.RequestID, err))
		return
	}
	reply.RequestID = f.RequestID
	client.Send(encodeReply(reply))
}

func (h *Handler) handle(ctx context.Context, client services.Connection, f InboundFrame) (ReplyFrame, error) {
	actor := client.ParticipantID()
	txn := f.TransactionID

	switch f.Type {
	case FramePing:
		h.gateway.Heartbeat(ctx, client)
		return ReplyFrame{Type: ReplyPong}, nil

	case FrameJoin:
		history, err := h.gateway.Join(ctx, actor, txn, client.ID())
		if err != nil {
			return ReplyFrame{}, err
		}
		if f.Viewing {
			if err := h.gateway.SetViewport(ctx, actor, txn, client.ID(), true); err != nil {
				return ReplyFrame{}, err
			}
		}
		return ReplyFrame{Type: ReplyJoined, TransactionID: &txn, Data: history}, nil

	case FrameLeave:
		if err := h.gateway.Leave(ctx, actor, txn, client.ID()); err != nil {
			return ReplyFrame{}, err
		}
		return ReplyFrame{Type: ReplyLeft, TransactionID: &txn}, nil

	case FrameHistory:
		history, err := h.gateway.History(ctx, actor, txn, f.Since)
		if err != nil {
			return ReplyFrame{}, err
		}
		return ReplyFrame{Type: ReplyHistory, TransactionID: &txn, Data: history}, nil

	case FrameMessage:
		rec, err := h.gateway.SendMessage(ctx, actor, txn, f.Body, f.ClientMessageID)
		if err != nil {
			return ReplyFrame{}, err
		}
		return ReplyFrame{Type: ReplyMessageAck, TransactionID: &txn, Data: rec}, nil

	case FrameViewport:
		if err := h.gateway.SetViewport(ctx, actor, txn, client.ID(), f.Open); err != nil {
			return ReplyFrame{}, err
		}
		return ReplyFrame{Type: ReplyViewport, TransactionID: &txn, Data: map[string]bool{"open": f.Open}}, nil

	case FrameRead:
		update, err := h.gateway.MarkRead(ctx, actor, txn)
		if err != nil {
			return ReplyFrame{}, err
		}
		return ReplyFrame{Type: ReplyRead, TransactionID: &txn, Data: update}, nil

	case FrameUnread:
		summary, err := h.gateway.UnreadSummary(ctx, actor)
		if err != nil {
			return ReplyFrame{}, err
		}
		return ReplyFrame{Type: ReplyUnread, Data: summary}, nil

	case FrameOffer:
		// An offer without a negotiation id opens one on the transaction.
		if f.NegotiationID == uuid.Nil {
			v, err := h.gateway.OpenNegotiation(ctx, actor, txn, f.Amount, f.Message)
			if err != nil {
				return ReplyFrame{}, err
			}
			return ReplyFrame{Type: ReplyNegotiation, TransactionID: &v.TransactionID, Data: v}, nil
		}
		v, err := h.gateway.CounterOffer(ctx, actor, f.NegotiationID, f.Amount, f.Message)
		if err != nil {
			return ReplyFrame{}, err
		}
		return ReplyFrame{Type: ReplyNegotiation, TransactionID: &v.TransactionID, Data: v}, nil

	case FrameAccept, FrameReject, FrameCancel:
		v, err := h.gateway.Decide(ctx, actor, f.NegotiationID, f.Type)
		if err != nil {
			return ReplyFrame{}, err
		}
		return ReplyFrame{Type: ReplyNegotiation, TransactionID: &v.TransactionID, Data: v}, nil
	}
	return ReplyFrame{}, fmt.Errorf("%w: unknown frame type %q", dealroom_errors.ErrInvalidInput, f.Type)
}

func bearerToken(value string) string {
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
