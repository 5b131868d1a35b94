package message

import "time"

// InviteKind distinguishes the two wire encodings of a room invitation.
type InviteKind int

const (
	InviteMediated InviteKind = iota
	InviteDirect
)

// String returns the string representation of the invite kind
func (k InviteKind) String() string {
	switch k {
	case InviteMediated:
		return "mediated"
	case InviteDirect:
		return "direct"
	default:
		return "unknown"
	}
}

// Events is the notification boundary toward the session and UI layers.
// The handler calls exactly one body-bearing method per recognized stanza,
// plus at most one chat-state method.
type Events interface {
	// One-to-one chat.
	IncomingMessage(bareJID, resource, body string)
	DelayedMessage(bareJID, body string, stamp time.Time)
	PrivateMessage(fullJID, body string)
	DelayedPrivateMessage(fullJID, body string, stamp time.Time)
	CarbonMessage(bareJID, body string)

	// Group chat.
	RoomMessage(room, nick, body string)
	RoomHistory(room, nick string, stamp time.Time, body string)
	RoomBroadcast(roomJID, body string)
	RoomSubject(room, nick, subject string)
	RoomInvite(kind InviteKind, inviter, room, reason, password string)

	// Chat states.
	Typing(bareJID, resource string)
	Paused(bareJID, resource string)
	Inactive(bareJID, resource string)
	Gone(bareJID, resource string)
	Activity(bareJID, resource string, hasState bool)

	// Delivery receipts.
	MessageReceipt(bareJID, messageID string)

	// PEP notifications.
	AvatarMetadata(owner, id, mimeType string)

	// Errors.
	GeneralError(description string)
	RecipientError(recipient, description string)
}
