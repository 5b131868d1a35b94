package client

import (
	"time"

	"github.com/jwhitfield/parley/internal/muc"
	"github.com/jwhitfield/parley/internal/xmpp/message"
	"github.com/jwhitfield/parley/internal/xmpp/stanza"
)

// The Client is the message handler's event emitter: each method performs
// the session/room bookkeeping the event implies, then forwards it to the
// UI callback if one is registered.

// IncomingMessage implements message.Events.
func (c *Client) IncomingMessage(bareJID, resource, body string) {
	c.trackSession(bareJID, resource)
	if c.onMessage != nil {
		c.onMessage(Message{
			From:      bareJID,
			Resource:  resource,
			Body:      body,
			Timestamp: time.Now(),
		})
	}
}

// DelayedMessage implements message.Events.
func (c *Client) DelayedMessage(bareJID, body string, stamp time.Time) {
	if c.onMessage != nil {
		c.onMessage(Message{
			From:      bareJID,
			Body:      body,
			Timestamp: stamp,
			Delayed:   true,
		})
	}
}

// PrivateMessage implements message.Events.
func (c *Client) PrivateMessage(fullJID, body string) {
	if c.onMessage != nil {
		c.onMessage(Message{
			From:      fullJID,
			Body:      body,
			Timestamp: time.Now(),
			Private:   true,
		})
	}
}

// DelayedPrivateMessage implements message.Events.
func (c *Client) DelayedPrivateMessage(fullJID, body string, stamp time.Time) {
	if c.onMessage != nil {
		c.onMessage(Message{
			From:      fullJID,
			Body:      body,
			Timestamp: stamp,
			Delayed:   true,
			Private:   true,
		})
	}
}

// CarbonMessage implements message.Events.
func (c *Client) CarbonMessage(bareJID, body string) {
	if c.onMessage != nil {
		c.onMessage(Message{
			CarbonTo:  bareJID,
			Body:      body,
			Timestamp: time.Now(),
		})
	}
}

// RoomMessage implements message.Events.
func (c *Client) RoomMessage(room, nick, body string) {
	if c.onRoomMessage != nil {
		c.onRoomMessage(RoomMessage{
			Room:      room,
			Nick:      nick,
			Body:      body,
			Timestamp: time.Now(),
		})
	}
}

// RoomHistory implements message.Events.
func (c *Client) RoomHistory(room, nick string, stamp time.Time, body string) {
	if c.onRoomMessage != nil {
		c.onRoomMessage(RoomMessage{
			Room:      room,
			Nick:      nick,
			Body:      body,
			Timestamp: stamp,
			Delayed:   true,
		})
	}
}

// RoomBroadcast implements message.Events.
func (c *Client) RoomBroadcast(roomJID, body string) {
	if c.onRoomMessage != nil {
		c.onRoomMessage(RoomMessage{
			Room:      roomJID,
			Body:      body,
			Timestamp: time.Now(),
			Broadcast: true,
		})
	}
}

// RoomSubject implements message.Events.
func (c *Client) RoomSubject(room, nick, subject string) {
	c.rooms.SetSubject(room, subject)
	if c.onRoomSubject != nil {
		c.onRoomSubject(room, nick, subject)
	}
}

// RoomInvite implements message.Events.
func (c *Client) RoomInvite(kind message.InviteKind, inviter, room, reason, password string) {
	c.rooms.AddInvite(muc.Invite{
		Room:     room,
		Inviter:  inviter,
		Reason:   reason,
		Password: password,
	})
	if c.onInvite != nil {
		c.onInvite(Invite{
			Kind:     kind,
			Inviter:  inviter,
			Room:     room,
			Reason:   reason,
			Password: password,
		})
	}
}

// Typing implements message.Events.
func (c *Client) Typing(bareJID, resource string) {
	c.trackSession(bareJID, resource)
	c.emitChatState(bareJID, resource, stanza.StateComposing)
}

// Paused implements message.Events.
func (c *Client) Paused(bareJID, resource string) {
	c.emitChatState(bareJID, resource, stanza.StatePaused)
}

// Inactive implements message.Events.
func (c *Client) Inactive(bareJID, resource string) {
	c.emitChatState(bareJID, resource, stanza.StateInactive)
}

// Gone implements message.Events. The peer left the conversation, so the
// session is no longer tracked.
func (c *Client) Gone(bareJID, resource string) {
	c.sessions.Remove(bareJID)
	c.emitChatState(bareJID, resource, stanza.StateGone)
}

// Activity implements message.Events.
func (c *Client) Activity(bareJID, resource string, hasState bool) {
	if hasState {
		c.trackSession(bareJID, resource)
		c.emitChatState(bareJID, resource, stanza.StateActive)
		return
	}
	// The peer does not use chat states; stop sending ours.
	c.sessions.Set(bareJID, resource, false)
}

// MessageReceipt implements message.Events.
func (c *Client) MessageReceipt(bareJID, messageID string) {
	if c.onReceipt != nil {
		c.onReceipt(bareJID, messageID)
	}
}

// AvatarMetadata implements message.Events.
func (c *Client) AvatarMetadata(owner, id, mimeType string) {
	if c.onAvatar != nil {
		c.onAvatar(owner, id, mimeType)
	}
}

// GeneralError implements message.Events.
func (c *Client) GeneralError(description string) {
	if c.onError != nil {
		c.onError(description)
	}
}

// RecipientError implements message.Events.
func (c *Client) RecipientError(recipient, description string) {
	if c.onRecipientError != nil {
		c.onRecipientError(recipient, description)
	}
}

// trackSession records the resource we are conversing with. Typing
// notifications are sent only when enabled locally and the peer's cached
// capabilities advertise chat state support.
func (c *Client) trackSession(bareJID, resource string) {
	sendStates := c.cfg.Messages.SendStates
	if sendStates && resource != "" {
		if rec, ok := c.cache.RecordForPeer(bareJID + "/" + resource); ok {
			sendStates = rec.HasFeature(stanza.NSChatStates)
		}
	}
	c.sessions.Set(bareJID, resource, sendStates)
}

func (c *Client) emitChatState(bareJID, resource, state string) {
	if c.onChatState != nil {
		c.onChatState(bareJID, resource, state)
	}
}

// SetMessageHandler registers the one-to-one message callback.
func (c *Client) SetMessageHandler(handler func(Message)) {
	c.onMessage = handler
}

// SetRoomMessageHandler registers the group chat message callback.
func (c *Client) SetRoomMessageHandler(handler func(RoomMessage)) {
	c.onRoomMessage = handler
}

// SetRoomSubjectHandler registers the room subject callback.
func (c *Client) SetRoomSubjectHandler(handler func(room, nick, subject string)) {
	c.onRoomSubject = handler
}

// SetInviteHandler registers the room invitation callback.
func (c *Client) SetInviteHandler(handler func(Invite)) {
	c.onInvite = handler
}

// SetChatStateHandler registers the chat state callback.
func (c *Client) SetChatStateHandler(handler func(bareJID, resource, state string)) {
	c.onChatState = handler
}

// SetReceiptHandler registers the delivery receipt callback.
func (c *Client) SetReceiptHandler(handler func(bareJID, messageID string)) {
	c.onReceipt = handler
}

// SetAvatarHandler registers the avatar metadata callback.
func (c *Client) SetAvatarHandler(handler func(owner, id, mimeType string)) {
	c.onAvatar = handler
}

// SetErrorHandler registers the connection-level error callback.
func (c *Client) SetErrorHandler(handler func(description string)) {
	c.onError = handler
}

// SetRecipientErrorHandler registers the recipient-scoped error callback.
func (c *Client) SetRecipientErrorHandler(handler func(recipient, description string)) {
	c.onRecipientError = handler
}
