package events

import (
	"strings"

	"github.com/google/uuid"
)

// ChannelKind tells whether a pub/sub channel addresses a transaction room
// or every connection of one participant.
type ChannelKind int

const (
	ChannelUnknown ChannelKind = iota
	ChannelTransaction
	ChannelParticipant
)

func TransactionChannel(transactionID uuid.UUID) string {
	return ChannelPrefixTransaction + transactionID.String()
}

func ParticipantChannel(participantID uuid.UUID) string {
	return ChannelPrefixParticipant + participantID.String()
}

// ParseChannel splits a channel name into its kind and id.
func ParseChannel(channel string) (ChannelKind, uuid.UUID, bool) {
	var (
		kind ChannelKind
		rest string
	)
	switch {
	case strings.HasPrefix(channel, ChannelPrefixTransaction):
		kind, rest = ChannelTransaction, strings.TrimPrefix(channel, ChannelPrefixTransaction)
	case strings.HasPrefix(channel, ChannelPrefixParticipant):
		kind, rest = ChannelParticipant, strings.TrimPrefix(channel, ChannelPrefixParticipant)
	default:
		return ChannelUnknown, uuid.Nil, false
	}
	id, err := uuid.Parse(rest)
	if err != nil {
		return ChannelUnknown, uuid.Nil, false
	}
	return kind, id, true
}

// ResolveChannel routes an envelope to the room of its transaction. Envelopes
// without a transaction have no channel.
func ResolveChannel(env Envelope) (string, bool) {
	id, err := uuid.Parse(env.TransactionID)
	if err != nil {
		return "", false
	}
	return TransactionChannel(id), true
}
