// Package message classifies inbound message stanzas and converts them
// into typed events for the session and UI layers.
package message

import (
	"mellium.im/xmpp/jid"

	"github.com/jwhitfield/parley/internal/logging"
	"github.com/jwhitfield/parley/internal/xmpp/stanza"
)

// Sender sends outbound stanzas on the underlying connection.
type Sender interface {
	Send(el *stanza.Element) error
}

// Decryptor decrypts an end-to-end encrypted payload for a peer. A failed
// decryption returns ok=false and the handler falls back to the plaintext
// body.
type Decryptor interface {
	Decrypt(peer, ciphertext string) (string, bool)
}

// Sessions is the chat-session collaborator surface the handler needs.
type Sessions interface {
	Remove(bareJID string)
}

// Rooms is the joined-room membership test.
type Rooms interface {
	Active(bareJID string) bool
}

// Prefs exposes the user preferences the handler consults.
type Prefs interface {
	SendReceipts() bool
}

// Config wires a Handler to its collaborators. Decryptor may be nil when
// no encryption backend is configured.
type Config struct {
	Self      jid.JID
	Events    Events
	Sender    Sender
	Sessions  Sessions
	Rooms     Rooms
	Prefs     Prefs
	Decryptor Decryptor
}

// Handler dispatches classified message stanzas to the matching category
// handler. All handling runs synchronously on the caller's goroutine and
// never propagates a failure: a malformed stanza is logged and dropped.
type Handler struct {
	self      jid.JID
	events    Events
	sender    Sender
	sessions  Sessions
	rooms     Rooms
	prefs     Prefs
	decryptor Decryptor
}

// NewHandler creates a message handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		self:      cfg.Self,
		events:    cfg.Events,
		sender:    cfg.Sender,
		sessions:  cfg.Sessions,
		rooms:     cfg.Rooms,
		prefs:     cfg.Prefs,
		decryptor: cfg.Decryptor,
	}
}

// HandleMessage processes one inbound message stanza to completion.
func (h *Handler) HandleMessage(msg *stanza.Element) {
	switch Classify(msg) {
	case CategoryError:
		h.handleError(msg)
	case CategoryGroupchat:
		h.handleGroupchat(msg)
	case CategoryMediatedInvite:
		h.handleMediatedInvite(msg)
	case CategoryDirectInvite:
		h.handleDirectInvite(msg)
	case CategoryCaptcha:
		h.handleCaptcha(msg)
	case CategoryReceiptAck:
		h.handleReceiptAck(msg)
	case CategoryPubsubEvent:
		h.handlePubsubEvent(msg)
	case CategoryChat:
		h.handleChat(msg)
	}
}

func (h *Handler) handleError(msg *stanza.Element) {
	from := msg.From()
	errMsg := msg.ErrorText()

	var errType string
	if errEl := msg.ChildByName("error"); errEl != nil {
		errType = errEl.Attr("type")
	}

	logging.Info("message stanza error received id=%s from=%s type=%s error=%s",
		msg.ID(), from, errType, errMsg)

	if from == "" {
		h.events.GeneralError(errMsg)
		return
	}

	if errType == "cancel" {
		// Definitive failure: the recipient is gone, stop tracking the
		// conversation.
		logging.Info("recipient %s not found: %s", from, errMsg)
		if fromJID, err := jid.Parse(from); err == nil {
			h.sessions.Remove(fromJID.Bare().String())
		}
	}
	h.events.RecipientError(from, errMsg)
}

func (h *Handler) handleGroupchat(msg *stanza.Element) {
	from := msg.From()
	if from == "" {
		logging.Warn("groupchat message received with no from attribute, ignoring")
		return
	}

	fromJID, err := jid.Parse(from)
	if err != nil {
		logging.Warn("groupchat message received with unparseable from %q, ignoring", from)
		return
	}
	room := fromJID.Bare().String()
	nick := fromJID.Resourcepart()

	// Subject changes never carry a body.
	if subject := msg.ChildByName("subject"); subject != nil {
		h.events.RoomSubject(room, nick, subject.Text)
		return
	}

	// No nick means the room itself is speaking.
	if nick == "" {
		body := msg.Body()
		if body == "" {
			return
		}
		h.events.RoomBroadcast(from, body)
		return
	}

	if fromJID.Localpart() == "" {
		logging.Error("invalid room JID: %s", from)
		return
	}

	// Defend against spoofed-room messages.
	if !h.rooms.Active(room) {
		logging.Error("message received for inactive chat room: %s", from)
		return
	}

	body := msg.Body()
	if body == "" {
		return
	}

	if stamp, delayed := msg.Delay(); delayed {
		h.events.RoomHistory(room, nick, stamp, body)
	} else {
		h.events.RoomMessage(room, nick, body)
	}
}

func (h *Handler) handleMediatedInvite(msg *stanza.Element) {
	room := msg.From()
	if room == "" {
		logging.Warn("room invite received with no from attribute, ignoring")
		return
	}

	x := msg.ChildByNS(stanza.NSMUCUser)
	invite := x.ChildByName("invite")

	inviterJID, err := jid.Parse(invite.Attr("from"))
	if err != nil {
		logging.Warn("room invite received with unparseable inviter, ignoring")
		return
	}

	var reason string
	if r := invite.ChildByName("reason"); r != nil {
		reason = r.Text
	}
	var password string
	if p := x.ChildByName("password"); p != nil {
		password = p.Text
	}

	h.events.RoomInvite(InviteMediated, inviterJID.Bare().String(), room, reason, password)
}

func (h *Handler) handleDirectInvite(msg *stanza.Element) {
	from := msg.From()
	if from == "" {
		logging.Warn("direct invite received with no from attribute, ignoring")
		return
	}

	fromJID, err := jid.Parse(from)
	if err != nil {
		logging.Warn("direct invite received with unparseable from %q, ignoring", from)
		return
	}

	x := msg.ChildByNS(stanza.NSConference)
	room := x.Attr("jid")
	reason := x.Attr("reason")
	password := x.Attr("password")

	h.events.RoomInvite(InviteDirect, fromJID.Bare().String(), room, reason, password)
}

func (h *Handler) handleCaptcha(msg *stanza.Element) {
	from := msg.From()
	if from == "" {
		logging.Warn("captcha challenge received with no from attribute, ignoring")
		return
	}

	h.events.RoomBroadcast(from, msg.Body())
}

func (h *Handler) handleReceiptAck(msg *stanza.Element) {
	receipt := msg.ChildByNS(stanza.NSReceipts)

	from := msg.From()
	if from == "" {
		logging.Warn("delivery receipt received with no from attribute, ignoring")
		return
	}

	fromJID, err := jid.Parse(from)
	if err != nil {
		logging.Warn("delivery receipt received with unparseable from %q, ignoring", from)
		return
	}

	h.events.MessageReceipt(fromJID.Bare().String(), receipt.Attr("id"))
}

// handleReceiptRequest replies to an inbound receipt request with an
// acknowledgment carrying the original stanza id, if the user has receipts
// enabled.
func (h *Handler) handleReceiptRequest(msg *stanza.Element) {
	if !h.prefs.SendReceipts() {
		return
	}

	id := msg.ID()
	if id == "" {
		return
	}

	receipts := msg.ChildByNS(stanza.NSReceipts)
	if receipts == nil || receipts.Name.Local != "request" {
		return
	}

	from := msg.From()
	if from == "" {
		return
	}

	if err := h.sender.Send(stanza.NewReceiptAck(from, id)); err != nil {
		logging.Warn("failed to send delivery receipt to %s: %v", from, err)
	}
}

func (h *Handler) handlePubsubEvent(msg *stanza.Element) {
	from := msg.From()
	if from == "" {
		logging.Warn("pubsub event received with no from attribute, ignoring")
		return
	}

	event := msg.ChildByNS(stanza.NSPubsubEvent)
	items := event.ChildByName("items")
	if items == nil {
		return
	}

	if items.Attr("node") != stanza.NSAvatarMetadata {
		return
	}

	item := items.ChildByName("item")
	if item == nil {
		return
	}
	metadata := item.ChildByName("metadata")
	if metadata == nil {
		return
	}
	info := metadata.ChildByName("info")
	if info == nil {
		return
	}

	h.events.AvatarMetadata(from, info.ID(), info.Attr("type"))
}

func (h *Handler) handleChat(msg *stanza.Element) {
	// Carbon copies are terminal: the wrapper is unwrapped and no further
	// classification happens.
	if carbons := msg.ChildByNS(stanza.NSCarbons); carbons != nil {
		if carbons.Name.Local == "received" || carbons.Name.Local == "sent" {
			h.handleCarbon(carbons)
			return
		}
	}

	from := msg.From()
	if from == "" {
		logging.Warn("chat message received with no from attribute, ignoring")
		return
	}

	fromJID, err := jid.Parse(from)
	if err != nil {
		logging.Warn("chat message received with unparseable from %q, ignoring", from)
		return
	}
	bare := fromJID.Bare().String()
	resource := fromJID.Resourcepart()

	// A message from a joined room's occupant is a private message; it is
	// keyed by the full room/nick address.
	if h.rooms.Active(bare) {
		h.handlePrivateChat(msg, from)
		return
	}

	stamp, delayed := msg.Delay()

	if body := msg.Body(); body != "" {
		if delayed {
			h.events.DelayedMessage(bare, body, stamp)
		} else {
			handled := false
			if x := msg.ChildByNameNS("x", stanza.NSEncrypted); x != nil && h.decryptor != nil {
				if plain, ok := h.decryptor.Decrypt(bare, x.Text); ok {
					h.events.IncomingMessage(bare, resource, plain)
					handled = true
				}
			}
			if !handled {
				h.events.IncomingMessage(bare, resource, body)
			}
		}

		h.handleReceiptRequest(msg)
	}

	// Historical chat states are not real-time signals.
	if delayed || resource == "" {
		return
	}

	switch {
	case msg.ChildByName(stanza.StateGone) != nil:
		h.events.Gone(bare, resource)
	case msg.ChildByName(stanza.StateComposing) != nil:
		h.events.Typing(bare, resource)
	case msg.ChildByName(stanza.StatePaused) != nil:
		h.events.Paused(bare, resource)
	case msg.ChildByName(stanza.StateInactive) != nil:
		h.events.Inactive(bare, resource)
	case msg.ContainsChatState():
		h.events.Activity(bare, resource, true)
	default:
		h.events.Activity(bare, resource, false)
	}
}

func (h *Handler) handleCarbon(carbons *stanza.Element) {
	forwarded := carbons.ChildByNS(stanza.NSForward)
	if forwarded == nil {
		logging.Warn("carbon copy received without forwarded payload, ignoring")
		return
	}
	inner := forwarded.ChildByName("message")
	if inner == nil {
		logging.Warn("carbon copy received without forwarded message, ignoring")
		return
	}

	to := inner.To()
	from := inner.From()

	// A carbon of a message we sent to ourselves has no to attribute.
	if to == "" {
		to = from
	}

	toJID, err := jid.Parse(to)
	if err != nil {
		logging.Warn("carbon copy received with unparseable to %q, ignoring", to)
		return
	}
	fromJID, err := jid.Parse(from)
	if err != nil {
		logging.Warn("carbon copy received with unparseable from %q, ignoring", from)
		return
	}

	body := inner.Body()
	if body == "" {
		return
	}

	if h.self.Bare().Equal(toJID.Bare()) {
		// We are the recipient: a copy of a message delivered to another
		// of our sessions.
		h.events.IncomingMessage(fromJID.Bare().String(), fromJID.Resourcepart(), body)
	} else {
		h.events.CarbonMessage(toJID.Bare().String(), body)
	}
}

func (h *Handler) handlePrivateChat(msg *stanza.Element, fullJID string) {
	body := msg.Body()
	if body == "" {
		return
	}

	if stamp, delayed := msg.Delay(); delayed {
		h.events.DelayedPrivateMessage(fullJID, body, stamp)
	} else {
		h.events.PrivateMessage(fullJID, body)
	}
}
