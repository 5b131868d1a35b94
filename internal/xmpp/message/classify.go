package message

import "github.com/jwhitfield/parley/internal/xmpp/stanza"

// Category identifies which protocol extension owns an inbound message
// stanza.
type Category int

const (
	// CategoryIgnore marks stanzas no handler owns; they are dropped
	// without an event.
	CategoryIgnore Category = iota
	CategoryError
	CategoryGroupchat
	CategoryMediatedInvite
	CategoryDirectInvite
	CategoryCaptcha
	CategoryReceiptAck
	CategoryPubsubEvent
	CategoryChat
)

// String returns the string representation of the category
func (c Category) String() string {
	switch c {
	case CategoryError:
		return "error"
	case CategoryGroupchat:
		return "groupchat"
	case CategoryMediatedInvite:
		return "mediated-invite"
	case CategoryDirectInvite:
		return "direct-invite"
	case CategoryCaptcha:
		return "captcha"
	case CategoryReceiptAck:
		return "receipt-ack"
	case CategoryPubsubEvent:
		return "pubsub-event"
	case CategoryChat:
		return "chat"
	default:
		return "ignore"
	}
}

// Classify determines the category of an inbound message stanza using an
// ordered predicate chain, most specific first. Exactly one category is
// produced; the chat fallback declines stanzas carrying an extension
// namespace claimed by an earlier predicate.
func Classify(msg *stanza.Element) Category {
	switch msg.Type() {
	case stanza.TypeError:
		return CategoryError
	case stanza.TypeGroupchat:
		return CategoryGroupchat
	}

	if x := msg.ChildByNS(stanza.NSMUCUser); x != nil {
		if invite := x.ChildByName("invite"); invite != nil && invite.Attr("from") != "" {
			return CategoryMediatedInvite
		}
	}

	if x := msg.ChildByNS(stanza.NSConference); x != nil && x.Attr("jid") != "" {
		return CategoryDirectInvite
	}

	if msg.ChildByNS(stanza.NSCaptcha) != nil && msg.Body() != "" {
		return CategoryCaptcha
	}

	if r := msg.ChildByNS(stanza.NSReceipts); r != nil && r.Name.Local == "received" && r.Attr("id") != "" {
		return CategoryReceiptAck
	}

	if msg.ChildByNS(stanza.NSPubsubEvent) != nil {
		return CategoryPubsubEvent
	}

	if t := msg.Type(); t == stanza.TypeChat || t == "" {
		// Namespaces claimed above own their stanzas even when the
		// ownership test failed; the fallback must not resurrect them.
		if msg.ChildByNS(stanza.NSMUCUser) != nil ||
			msg.ChildByNS(stanza.NSConference) != nil ||
			msg.ChildByNS(stanza.NSCaptcha) != nil {
			return CategoryIgnore
		}
		return CategoryChat
	}

	return CategoryIgnore
}
