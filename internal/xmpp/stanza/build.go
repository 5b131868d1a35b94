package stanza

import (
	"crypto/rand"
	"encoding/xml"
	"fmt"
)

// UniqueID generates a random stanza id with the given prefix.
func UniqueID(prefix string) string {
	b := make([]byte, 6)
	rand.Read(b)
	return fmt.Sprintf("%s_%x", prefix, b)
}

func newElement(space, local string) *Element {
	return &Element{Name: xml.Name{Space: space, Local: local}}
}

func (e *Element) addChild(c *Element) *Element {
	e.Children = append(e.Children, c)
	return e
}

// NewMessage builds a message stanza with a body.
func NewMessage(id, to, typ, body string) *Element {
	msg := newElement(NSClient, "message")
	msg.SetAttr("id", id)
	msg.SetAttr("to", to)
	if typ != "" {
		msg.SetAttr("type", typ)
	}
	b := newElement(NSClient, "body")
	b.Text = body
	return msg.addChild(b)
}

// NewChatState builds a standalone chat state notification.
func NewChatState(to, state string) *Element {
	msg := newElement(NSClient, "message")
	msg.SetAttr("id", UniqueID("state"))
	msg.SetAttr("to", to)
	msg.SetAttr("type", TypeChat)
	return msg.addChild(newElement(NSChatStates, state))
}

// AttachState adds a chat state child to a message.
func (e *Element) AttachState(state string) {
	e.addChild(newElement(NSChatStates, state))
}

// AttachReceiptRequest adds a delivery receipt request to a message.
func (e *Element) AttachReceiptRequest() {
	e.addChild(newElement(NSReceipts, "request"))
}

// NewReceiptAck builds a delivery receipt acknowledgment for the message
// with the given id.
func NewReceiptAck(to, messageID string) *Element {
	msg := newElement(NSClient, "message")
	msg.SetAttr("id", UniqueID("receipt"))
	msg.SetAttr("to", to)
	received := newElement(NSReceipts, "received")
	received.SetAttr("id", messageID)
	return msg.addChild(received)
}

// NewRoomSubject builds a groupchat subject change stanza.
func NewRoomSubject(roomJID, subject string) *Element {
	msg := newElement(NSClient, "message")
	msg.SetAttr("to", roomJID)
	msg.SetAttr("type", TypeGroupchat)
	s := newElement(NSClient, "subject")
	s.Text = subject
	return msg.addChild(s)
}

// NewMediatedInvite builds a mediated room invite (XEP-0045) sent through
// the room itself.
func NewMediatedInvite(roomJID, contact, reason string) *Element {
	msg := newElement(NSClient, "message")
	msg.SetAttr("id", UniqueID("invite"))
	msg.SetAttr("to", roomJID)
	x := newElement(NSMUCUser, "x")
	invite := newElement(NSMUCUser, "invite")
	invite.SetAttr("to", contact)
	if reason != "" {
		r := newElement(NSMUCUser, "reason")
		r.Text = reason
		invite.addChild(r)
	}
	x.addChild(invite)
	return msg.addChild(x)
}

// NewDirectInvite builds a direct room invite (XEP-0249) sent straight to
// the contact.
func NewDirectInvite(roomJID, contact, reason, password string) *Element {
	msg := newElement(NSClient, "message")
	msg.SetAttr("id", UniqueID("invite"))
	msg.SetAttr("to", contact)
	x := newElement(NSConference, "x")
	x.SetAttr("jid", roomJID)
	if reason != "" {
		x.SetAttr("reason", reason)
	}
	if password != "" {
		x.SetAttr("password", password)
	}
	return msg.addChild(x)
}
