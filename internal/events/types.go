package events

// Event type constants follow the format: domain.action

// Negotiation events
const (
	EventTypeNegotiationOpened    = "negotiation.opened"
	EventTypeNegotiationCountered = "negotiation.countered"
	EventTypeNegotiationAccepted  = "negotiation.accepted"
	EventTypeNegotiationRejected  = "negotiation.rejected"
	EventTypeNegotiationCancelled = "negotiation.cancelled"
	EventTypeNegotiationExpired   = "negotiation.expired"
)

// Chat and membership events
const (
	EventTypeMessageCreated = "message.created"
	EventTypeMemberJoined   = "member.joined"
	EventTypeMemberLeft     = "member.left"
)

// Read-state events, delivered on participant channels
const (
	EventTypeReadConverged = "read.converged"
	EventTypeUnreadUpdated = "unread.updated"
)

// Collaborator commands relayed through the outbox
const (
	EventTypeBookingConfirm = "booking.confirm"
)

// Aggregate type constants
const (
	AggregateTypeNegotiation = "negotiation"
	AggregateTypeMessage     = "message"
	AggregateTypeMembership  = "membership"
	AggregateTypeUnread      = "unread"
	AggregateTypeBooking     = "booking"
)

// Redis channel prefixes
const (
	ChannelPrefixTransaction = "channel:transaction:"
	ChannelPrefixParticipant = "channel:participant:"
	ChannelPattern           = "channel:*"
)
