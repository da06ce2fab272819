package events

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestParseChannel(t *testing.T) {
	req := require.New(t)
	id := uuid.New()

	kind, got, ok := ParseChannel(TransactionChannel(id))
	req.True(ok)
	req.Equal(ChannelTransaction, kind)
	req.Equal(id, got)

	kind, got, ok = ParseChannel(ParticipantChannel(id))
	req.True(ok)
	req.Equal(ChannelParticipant, kind)
	req.Equal(id, got)

	_, _, ok = ParseChannel("channel:transaction:not-a-uuid")
	req.False(ok)
	_, _, ok = ParseChannel("channel:system:outbox")
	req.False(ok)
}

func TestResolveChannel(t *testing.T) {
	req := require.New(t)
	txn := uuid.New()

	env, err := NewEnvelope(EventTypeNegotiationOpened, AggregateTypeNegotiation, uuid.NewString(), txn.String(), map[string]int{"a": 1}, time.Now())
	req.NoError(err)

	channel, ok := ResolveChannel(env)
	req.True(ok)
	req.Equal("channel:transaction:"+txn.String(), channel)

	_, ok = ResolveChannel(Envelope{})
	req.False(ok)
}
