package client

import (
	"fmt"

	"mellium.im/xmpp/jid"

	"github.com/jwhitfield/parley/internal/xmpp/stanza"
)

// SendMessage sends a one-to-one chat message. When a session tracks the
// resource we are conversing with, the message is addressed to it; the
// active chat state and a receipt request are attached according to the
// user's preferences. The generated stanza id is returned for receipt
// correlation.
func (c *Client) SendMessage(to, body string) (string, error) {
	toJID, err := jid.Parse(to)
	if err != nil {
		return "", fmt.Errorf("invalid JID: %w", err)
	}
	bare := toJID.Bare().String()

	target := bare
	attachState := c.cfg.Messages.SendStates
	if s := c.sessions.Get(bare); s != nil {
		attachState = attachState && s.SendStates
		if s.Resource != "" {
			target = bare + "/" + s.Resource
		}
	}

	id := stanza.UniqueID("msg")
	msg := stanza.NewMessage(id, target, stanza.TypeChat, body)
	if attachState {
		msg.AttachState(stanza.StateActive)
	}
	if c.cfg.Messages.RequestReceipts {
		msg.AttachReceiptRequest()
	}

	return id, c.sender.Send(msg)
}

// SendChatState sends a standalone typing notification if the session
// allows it.
func (c *Client) SendChatState(to, state string) error {
	toJID, err := jid.Parse(to)
	if err != nil {
		return fmt.Errorf("invalid JID: %w", err)
	}
	bare := toJID.Bare().String()

	if !c.cfg.Messages.SendStates {
		return nil
	}
	if s := c.sessions.Get(bare); s != nil && !s.SendStates {
		return nil
	}

	return c.sender.Send(stanza.NewChatState(bare, state))
}

// SendPrivateMessage sends a message to a single room occupant, addressed
// by the full room/nick JID.
func (c *Client) SendPrivateMessage(fullJID, body string) error {
	if _, err := jid.Parse(fullJID); err != nil {
		return fmt.Errorf("invalid JID: %w", err)
	}
	msg := stanza.NewMessage(stanza.UniqueID("prv"), fullJID, stanza.TypeChat, body)
	return c.sender.Send(msg)
}

// SendRoomMessage sends a groupchat message to a joined room.
func (c *Client) SendRoomMessage(roomJID, body string) error {
	msg := stanza.NewMessage(stanza.UniqueID("muc"), roomJID, stanza.TypeGroupchat, body)
	return c.sender.Send(msg)
}

// SendRoomSubject changes a room's subject.
func (c *Client) SendRoomSubject(roomJID, subject string) error {
	return c.sender.Send(stanza.NewRoomSubject(roomJID, subject))
}

// SendInvite invites a contact to a room. Rooms we have joined with a
// password use the direct form, which can carry the password; everything
// else goes through the room as a mediated invite.
func (c *Client) SendInvite(roomJID, contact, reason string) error {
	if room := c.rooms.Room(roomJID); room != nil && room.Password != "" {
		return c.sender.Send(stanza.NewDirectInvite(roomJID, contact, reason, room.Password))
	}
	return c.sender.Send(stanza.NewMediatedInvite(roomJID, contact, reason))
}
