package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dealroom/internal/commands"
	"dealroom/internal/domain/booking"
	"dealroom/internal/domain/negotiation"
	"dealroom/internal/domain/outbox"
	"dealroom/internal/events"
	"dealroom/internal/metrics"
	"dealroom/internal/repository"
	dealroom_errors "dealroom/pkg/errors"
	"dealroom/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const sweepBatchSize = 100

type NegotiationService struct {
	repo     repository.NegotiationRepository
	bookings repository.BookingRepository
	policy   negotiation.Policy
	ttl      time.Duration
	clock    func() time.Time
	log      *logger.Logger
	bus      *commands.Bus
}

func NewNegotiationService(repo repository.NegotiationRepository, bookings repository.BookingRepository, policy negotiation.Policy, ttl time.Duration, log *logger.Logger, bus *commands.Bus) *NegotiationService {
	if bus == nil {
		bus = commands.NewBus()
	}
	if log == nil {
		log = logger.NewNop()
	}
	svc := &NegotiationService{
		repo:     repo,
		bookings: bookings,
		policy:   policy,
		ttl:      ttl,
		clock:    time.Now,
		log:      log.Named("negotiation"),
		bus:      bus,
	}
	svc.RegisterHandlers()
	return svc
}

func (s *NegotiationService) Bus() *commands.Bus {
	return s.bus
}

func (s *NegotiationService) RegisterHandlers() {
	s.bus.Register(commands.TypeOpenNegotiation, commands.HandlerFunc(func(ctx context.Context, cmd commands.Command) (commands.Result, error) {
		c, ok := cmd.(commands.OpenNegotiationCommand)
		if !ok {
			return commands.Result{}, dealroom_errors.ErrInvalidInput
		}
		agg, err := s.OpenForTransaction(ctx, c.TransactionID, c.InitiatorID, c.Amount, c.Message)
		return aggregateResult(agg, err)
	}))
	s.bus.Register(commands.TypeCounterOffer, commands.HandlerFunc(func(ctx context.Context, cmd commands.Command) (commands.Result, error) {
		c, ok := cmd.(commands.CounterOfferCommand)
		if !ok {
			return commands.Result{}, dealroom_errors.ErrInvalidInput
		}
		agg, err := s.CounterOffer(ctx, c.NegotiationID, c.ActorID, c.Amount, c.Message)
		return aggregateResult(agg, err)
	}))
	decide := commands.HandlerFunc(func(ctx context.Context, cmd commands.Command) (commands.Result, error) {
		c, ok := cmd.(commands.DecideCommand)
		if !ok {
			return commands.Result{}, dealroom_errors.ErrInvalidInput
		}
		var (
			agg *negotiation.Aggregate
			err error
		)
		switch c.CommandType() {
		case commands.TypeAcceptNegotiation:
			agg, err = s.Accept(ctx, c.NegotiationID, c.ActorID)
		case commands.TypeRejectNegotiation:
			agg, err = s.Reject(ctx, c.NegotiationID, c.ActorID)
		default:
			agg, err = s.Cancel(ctx, c.NegotiationID, c.ActorID)
		}
		return aggregateResult(agg, err)
	})
	s.bus.Register(commands.TypeAcceptNegotiation, decide)
	s.bus.Register(commands.TypeRejectNegotiation, decide)
	s.bus.Register(commands.TypeCancelNegotiation, decide)
}

func aggregateResult(agg *negotiation.Aggregate, err error) (commands.Result, error) {
	if err != nil {
		return commands.Result{}, err
	}
	return commands.Result{AggregateID: agg.Negotiation.ID.String(), Payload: agg.View()}, nil
}

// OpenNegotiation creates a negotiation from explicit parameters.
func (s *NegotiationService) OpenNegotiation(ctx context.Context, p negotiation.OpenParams) (*negotiation.Aggregate, error) {
	now := s.clock()
	agg, err := negotiation.Open(p, now, s.ttl)
	if err != nil {
		return nil, err
	}
	evts, err := negotiationEvents(agg, events.EventTypeNegotiationOpened, now)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, agg, evts); err != nil {
		return nil, err
	}
	metrics.NegotiationTransitions.WithLabelValues(events.EventTypeNegotiationOpened).Inc()
	s.log.WithContext(ctx).Info("negotiation opened",
		zap.String("negotiation_id", agg.Negotiation.ID.String()),
		zap.String("transaction_id", p.TransactionID.String()),
		zap.String("amount", agg.CurrentOffer().Amount.StringFixed(negotiation.Places)),
	)
	return agg, nil
}

// OpenForTransaction resolves service, base price and counterparty from the
// booking and opens with the configured policy. A stale negotiation that is
// past its deadline is expired first so it does not block the new one.
func (s *NegotiationService) OpenForTransaction(ctx context.Context, transactionID, initiatorID uuid.UUID, amount decimal.Decimal, message string) (*negotiation.Aggregate, error) {
	txn, err := s.bookings.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	parties := txn.Parties()
	if !parties.Contains(initiatorID) {
		return nil, dealroom_errors.ErrUnauthorized
	}

	existing, err := s.repo.GetLatestByTransaction(ctx, transactionID)
	switch {
	case err == nil:
		if _, expErr := s.expireIfDue(ctx, existing); expErr != nil && !errors.Is(expErr, dealroom_errors.ErrNegotiationConflict) {
			return nil, expErr
		}
	case !errors.Is(err, dealroom_errors.ErrNotFound):
		return nil, err
	}

	return s.OpenNegotiation(ctx, negotiation.OpenParams{
		TransactionID:  txn.ID,
		ServiceID:      txn.ServiceID,
		BasePrice:      txn.BasePrice,
		Policy:         s.policy,
		InitiatorID:    initiatorID,
		CounterpartyID: parties.Other(initiatorID),
		Amount:         amount,
		Message:        message,
	})
}

func (s *NegotiationService) Get(ctx context.Context, id uuid.UUID) (*negotiation.Aggregate, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *NegotiationService) GetByTransaction(ctx context.Context, transactionID uuid.UUID) (*negotiation.Aggregate, error) {
	return s.repo.GetLatestByTransaction(ctx, transactionID)
}

func (s *NegotiationService) CounterOffer(ctx context.Context, id, by uuid.UUID, amount decimal.Decimal, message string) (*negotiation.Aggregate, error) {
	return s.mutate(ctx, id, events.EventTypeNegotiationCountered, func(agg *negotiation.Aggregate, now time.Time) error {
		_, err := agg.Counter(by, amount, message, now, s.ttl)
		return err
	})
}

// Accept finalizes at the current offer and queues the booking confirmation
// in the same write.
func (s *NegotiationService) Accept(ctx context.Context, id, by uuid.UUID) (*negotiation.Aggregate, error) {
	return s.mutate(ctx, id, events.EventTypeNegotiationAccepted, func(agg *negotiation.Aggregate, now time.Time) error {
		return agg.Accept(by, now)
	})
}

func (s *NegotiationService) Reject(ctx context.Context, id, by uuid.UUID) (*negotiation.Aggregate, error) {
	return s.mutate(ctx, id, events.EventTypeNegotiationRejected, func(agg *negotiation.Aggregate, now time.Time) error {
		return agg.Reject(by, now)
	})
}

func (s *NegotiationService) Cancel(ctx context.Context, id, by uuid.UUID) (*negotiation.Aggregate, error) {
	return s.mutate(ctx, id, events.EventTypeNegotiationCancelled, func(agg *negotiation.Aggregate, now time.Time) error {
		return agg.Cancel(by, now)
	})
}

// Expire moves the negotiation to expired when it is past its deadline.
// It reports whether this call performed the transition.
func (s *NegotiationService) Expire(ctx context.Context, id uuid.UUID) (bool, error) {
	agg, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return s.expireIfDue(ctx, agg)
}

// SweepExpired expires every overdue negotiation. Losing a race against a
// concurrent mutation is not an error; the next sweep sees the new state.
func (s *NegotiationService) SweepExpired(ctx context.Context) (int, error) {
	expired := 0
	for {
		ids, err := s.repo.ListOverdue(ctx, s.clock(), sweepBatchSize)
		if err != nil {
			return expired, err
		}
		progressed := 0
		for _, id := range ids {
			ok, err := s.Expire(ctx, id)
			switch {
			case err == nil && ok:
				expired++
				progressed++
			case errors.Is(err, dealroom_errors.ErrNegotiationConflict):
				s.log.WithContext(ctx).Debug("expire lost race", zap.String("negotiation_id", id.String()))
			case err != nil:
				return expired, err
			}
		}
		if len(ids) < sweepBatchSize || progressed == 0 {
			return expired, nil
		}
	}
}

func (s *NegotiationService) expireIfDue(ctx context.Context, agg *negotiation.Aggregate) (bool, error) {
	now := s.clock()
	expected := agg.Negotiation.Version
	if !agg.Expire(now) {
		return false, nil
	}
	agg.Negotiation.Version = expected + 1
	evts, err := negotiationEvents(agg, events.EventTypeNegotiationExpired, now)
	if err != nil {
		return false, err
	}
	if err := s.repo.Update(ctx, agg, expected, nil, evts); err != nil {
		return false, err
	}
	metrics.NegotiationTransitions.WithLabelValues(events.EventTypeNegotiationExpired).Inc()
	s.log.WithContext(ctx).Info("negotiation expired", zap.String("negotiation_id", agg.Negotiation.ID.String()))
	return true, nil
}

// mutate loads, applies fn and writes back under the version check. An
// overdue negotiation is expired instead and the call fails as closed.
func (s *NegotiationService) mutate(ctx context.Context, id uuid.UUID, eventType string, fn func(*negotiation.Aggregate, time.Time) error) (*negotiation.Aggregate, error) {
	agg, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	if agg.Negotiation.Overdue(now) {
		if _, err := s.expireIfDue(ctx, agg); err != nil && !errors.Is(err, dealroom_errors.ErrNegotiationConflict) {
			s.log.WithContext(ctx).Warn("lazy expiry failed", zap.String("negotiation_id", id.String()), zap.Error(err))
		}
		return nil, dealroom_errors.ErrNegotiationClosed
	}

	expected := agg.Negotiation.Version
	before := len(agg.Offers)
	if err := fn(agg, now); err != nil {
		return nil, err
	}
	agg.Negotiation.Version = expected + 1
	newOffers := agg.Offers[before:]

	evts, err := negotiationEvents(agg, eventType, now)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, agg, expected, newOffers, evts); err != nil {
		if errors.Is(err, dealroom_errors.ErrNegotiationConflict) {
			metrics.NegotiationConflicts.Inc()
		}
		return nil, err
	}
	metrics.NegotiationTransitions.WithLabelValues(eventType).Inc()
	s.log.WithContext(ctx).Info("negotiation updated",
		zap.String("negotiation_id", id.String()),
		zap.String("event", eventType),
		zap.String("status", string(agg.Negotiation.Status)),
	)
	return agg, nil
}

// negotiationEvents builds the outbox rows for a transition. Payloads are
// complete envelopes so the relay can publish them without re-encoding.
func negotiationEvents(agg *negotiation.Aggregate, eventType string, now time.Time) ([]outbox.OutboxEvent, error) {
	n := agg.Negotiation
	env, err := events.NewEnvelope(eventType, events.AggregateTypeNegotiation, n.ID.String(), n.TransactionID.String(), agg.View(), now)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", eventType, err)
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	out := []outbox.OutboxEvent{outbox.New(eventType, events.AggregateTypeNegotiation, n.ID.String(), raw, now)}

	if n.Status == negotiation.StatusAccepted && n.FinalPrice.Valid {
		confirm := booking.Confirmation{
			TransactionID: n.TransactionID,
			NegotiationID: n.ID,
			FinalPrice:    n.FinalPrice.Decimal,
		}
		cenv, err := events.NewEnvelope(events.EventTypeBookingConfirm, events.AggregateTypeBooking, n.TransactionID.String(), n.TransactionID.String(), confirm, now)
		if err != nil {
			return nil, err
		}
		craw, err := json.Marshal(cenv)
		if err != nil {
			return nil, err
		}
		out = append(out, outbox.New(events.EventTypeBookingConfirm, events.AggregateTypeBooking, n.TransactionID.String(), craw, now))
	}
	return out, nil
}
