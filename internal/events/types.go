package events

// Event types consumed by the sync engine, format: domain.action

// Message events
const (
	EventTypeMessageCreated = "message.created"
	EventTypeMessageUpdated = "message.updated"
	EventTypeMessageDeleted = "message.deleted"
)

// Receipt events
const (
	EventTypeReceiptDelivered = "receipt.delivered"
	EventTypeReceiptRead      = "receipt.read"
)

// Reaction events
const (
	EventTypeReactionAdded   = "reaction.added"
	EventTypeReactionRemoved = "reaction.removed"
)

// Typing events
const (
	EventTypeTypingStarted = "typing.started"
	EventTypeTypingStopped = "typing.stopped"
)

// Pin events
const (
	EventTypeMessagePinned   = "message.pinned"
	EventTypeMessageUnpinned = "message.unpinned"
)

// Aggregate type constants
const (
	AggregateTypeMessage  = "message"
	AggregateTypeReaction = "reaction"
	AggregateTypeTyping   = "typing"
	AggregateTypeReceipt  = "message_receipt"
)

// Redis channel prefix for conversation fan-out
const (
	ChannelPrefixConversation = "channel:conversation:"
)
