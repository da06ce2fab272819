package services

import (
	"context"
	"errors"

	"dealroom/internal/commands"
	"dealroom/internal/domain/message"
	"dealroom/internal/domain/negotiation"
	"dealroom/internal/metrics"
	dealroom_errors "dealroom/pkg/errors"
	"dealroom/pkg/logger"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Limiter throttles chat messages and negotiation mutations per participant.
type Limiter interface {
	Allow(ctx context.Context, action, participantID string) (bool, error)
}

const (
	ActionMessage = "message"
	ActionOffer   = "offer"
)

// ErrorPayload is the body of a channel error frame.
type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// TranslateError maps a service error to the frame sent to the connection.
// Errors never close the connection.
func TranslateError(err error) ErrorPayload {
	code := dealroom_errors.Code(err)
	msg := err.Error()
	if dealroom_errors.KindOf(err) == dealroom_errors.KindTransient && !errors.Is(err, dealroom_errors.ErrRateLimited) {
		msg = "temporarily unavailable"
	}
	metrics.ChannelErrors.WithLabelValues(code).Inc()
	return ErrorPayload{Code: code, Message: msg, Retryable: dealroom_errors.Retryable(err)}
}

// Gateway is the connection-facing facade shared by the REST handlers and
// WebSocket clients. Every operation takes the authenticated actor.
type Gateway struct {
	bus          *commands.Bus
	negotiations *NegotiationService
	channels     *ChannelService
	unread       *UnreadTracker
	limiter      Limiter
	log          *logger.Logger
}

func NewGateway(bus *commands.Bus, negotiations *NegotiationService, channels *ChannelService, unread *UnreadTracker, limiter Limiter, log *logger.Logger) *Gateway {
	if log == nil {
		log = logger.NewNop()
	}
	return &Gateway{
		bus:          bus,
		negotiations: negotiations,
		channels:     channels,
		unread:       unread,
		limiter:      limiter,
		log:          log.Named("gateway"),
	}
}

func (g *Gateway) allow(ctx context.Context, action string, actor uuid.UUID) error {
	if g.limiter == nil {
		return nil
	}
	ok, err := g.limiter.Allow(ctx, action, actor.String())
	if err != nil {
		// Limiter outages do not block the channel.
		g.log.WithContext(ctx).Warn("rate limiter unavailable", zap.Error(err))
		return nil
	}
	if !ok {
		metrics.RateLimitHits.WithLabelValues(action).Inc()
		return dealroom_errors.ErrRateLimited
	}
	return nil
}

func (g *Gateway) execute(ctx context.Context, action string, actor uuid.UUID, cmd commands.Command) (commands.Result, error) {
	if err := g.allow(ctx, action, actor); err != nil {
		return commands.Result{}, err
	}
	return g.bus.Execute(ctx, cmd)
}

func viewResult(res commands.Result, err error) (negotiation.View, error) {
	if err != nil {
		return negotiation.View{}, err
	}
	v, ok := res.Payload.(negotiation.View)
	if !ok {
		return negotiation.View{}, dealroom_errors.ErrInvalidInput
	}
	return v, nil
}

func (g *Gateway) OpenNegotiation(ctx context.Context, actor, transactionID uuid.UUID, amount decimal.Decimal, msg string) (negotiation.View, error) {
	return viewResult(g.execute(ctx, ActionOffer, actor, commands.OpenNegotiationCommand{
		TransactionID: transactionID,
		InitiatorID:   actor,
		Amount:        amount,
		Message:       msg,
	}))
}

func (g *Gateway) CounterOffer(ctx context.Context, actor, negotiationID uuid.UUID, amount decimal.Decimal, msg string) (negotiation.View, error) {
	return viewResult(g.execute(ctx, ActionOffer, actor, commands.CounterOfferCommand{
		NegotiationID: negotiationID,
		ActorID:       actor,
		Amount:        amount,
		Message:       msg,
	}))
}

// Decide applies accept, reject or cancel.
func (g *Gateway) Decide(ctx context.Context, actor, negotiationID uuid.UUID, decision string) (negotiation.View, error) {
	return viewResult(g.execute(ctx, ActionOffer, actor, commands.DecideCommand{
		NegotiationID: negotiationID,
		ActorID:       actor,
		Decision:      decision,
	}))
}

func (g *Gateway) GetNegotiation(ctx context.Context, actor, negotiationID uuid.UUID) (negotiation.View, error) {
	agg, err := g.negotiations.Get(ctx, negotiationID)
	if err != nil {
		return negotiation.View{}, err
	}
	if !agg.Negotiation.IsParty(actor) {
		return negotiation.View{}, dealroom_errors.ErrUnauthorized
	}
	return agg.View(), nil
}

func (g *Gateway) SendMessage(ctx context.Context, actor, transactionID uuid.UUID, body, clientMessageID string) (message.HistoryRecord, error) {
	res, err := g.execute(ctx, ActionMessage, actor, commands.SendMessageCommand{
		TransactionID:   transactionID,
		FromID:          actor,
		Body:            body,
		ClientMessageID: clientMessageID,
	})
	if err != nil {
		return message.HistoryRecord{}, err
	}
	m, ok := res.Payload.(message.Message)
	if !ok {
		return message.HistoryRecord{}, dealroom_errors.ErrInvalidInput
	}
	return m.Record(), nil
}

func (g *Gateway) Join(ctx context.Context, actor, transactionID uuid.UUID, connectionID string) ([]message.HistoryRecord, error) {
	msgs, err := g.channels.Join(ctx, transactionID, actor, connectionID)
	if err != nil {
		return nil, err
	}
	return records(msgs), nil
}

func (g *Gateway) Leave(ctx context.Context, actor, transactionID uuid.UUID, connectionID string) error {
	return g.channels.Leave(ctx, transactionID, actor, connectionID)
}

func (g *Gateway) History(ctx context.Context, actor, transactionID uuid.UUID, since int64) ([]message.HistoryRecord, error) {
	msgs, err := g.channels.HistorySince(ctx, transactionID, actor, since)
	if err != nil {
		return nil, err
	}
	return records(msgs), nil
}

func (g *Gateway) SetViewport(ctx context.Context, actor, transactionID uuid.UUID, connectionID string, open bool) error {
	return g.channels.SetViewport(ctx, transactionID, actor, connectionID, open)
}

// MarkRead requires the actor to be a party of the transaction.
func (g *Gateway) MarkRead(ctx context.Context, actor, transactionID uuid.UUID) (UnreadUpdate, error) {
	if _, err := g.channels.parties(ctx, transactionID, actor); err != nil {
		return UnreadUpdate{}, err
	}
	c, err := g.unread.MarkRead(ctx, transactionID, actor)
	if err != nil {
		return UnreadUpdate{}, err
	}
	return UnreadUpdate{TransactionID: c.TransactionID, Count: c.Count, LastReadSequence: c.LastReadSequence}, nil
}

func (g *Gateway) UnreadSummary(ctx context.Context, actor uuid.UUID) (map[uuid.UUID]int64, error) {
	return g.unread.GetUnreadSummary(ctx, actor)
}

func (g *Gateway) Connect(ctx context.Context, conn Connection) ([]uuid.UUID, error) {
	return g.channels.Connect(ctx, conn)
}

func (g *Gateway) Heartbeat(ctx context.Context, conn Connection) {
	g.channels.Heartbeat(ctx, conn.ID())
}

func (g *Gateway) Disconnect(ctx context.Context, conn Connection) {
	g.channels.Disconnect(ctx, conn.ParticipantID(), conn.ID())
}

func records(msgs []message.Message) []message.HistoryRecord {
	return lo.Map(msgs, func(m message.Message, _ int) message.HistoryRecord { return m.Record() })
}
