package stanza

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

// Stanza and extension namespaces handled by the protocol core.
const (
	NSClient         = "jabber:client"
	NSMUCUser        = "http://jabber.org/protocol/muc#user"
	NSConference     = "jabber:x:conference"
	NSCaptcha        = "urn:xmpp:captcha"
	NSReceipts       = "urn:xmpp:receipts"
	NSCarbons        = "urn:xmpp:carbons:2"
	NSForward        = "urn:xmpp:forward:0"
	NSChatStates     = "http://jabber.org/protocol/chatstates"
	NSEncrypted      = "jabber:x:encrypted"
	NSDelay          = "urn:xmpp:delay"
	NSLegacyDelay    = "jabber:x:delay"
	NSData           = "jabber:x:data"
	NSDiscoInfo      = "http://jabber.org/protocol/disco#info"
	NSCaps           = "http://jabber.org/protocol/caps"
	NSPubsub         = "http://jabber.org/protocol/pubsub"
	NSPubsubEvent    = "http://jabber.org/protocol/pubsub#event"
	NSAvatarMetadata = "urn:xmpp:avatar:metadata"
	NSAvatarData     = "urn:xmpp:avatar:data"
)

// Message sub-types.
const (
	TypeChat      = "chat"
	TypeGroupchat = "groupchat"
	TypeError     = "error"
	TypeHeadline  = "headline"
)

// Chat state element names (XEP-0085).
const (
	StateActive    = "active"
	StateComposing = "composing"
	StatePaused    = "paused"
	StateInactive  = "inactive"
	StateGone      = "gone"
)

// Element is one parsed XML element: a whole stanza or any child of one.
// Children keep document order; Text is the concatenated character data
// directly inside the element.
type Element struct {
	Name     xml.Name
	Attrs    []xml.Attr
	Children []*Element
	Text     string
}

// Parse decodes a single element from raw XML.
func Parse(data []byte) (*Element, error) {
	var el Element
	if err := xml.Unmarshal(data, &el); err != nil {
		return nil, fmt.Errorf("failed to parse element: %w", err)
	}
	return &el, nil
}

// UnmarshalXML implements xml.Unmarshaler, preserving child order.
func (e *Element) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	e.Name = start.Name
	e.Attrs = start.Attr
	var text strings.Builder
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child := &Element{}
			if err := child.UnmarshalXML(d, t); err != nil {
				return err
			}
			e.Children = append(e.Children, child)
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			e.Text = text.String()
			return nil
		}
	}
}

// MarshalXML implements xml.Marshaler.
func (e *Element) MarshalXML(enc *xml.Encoder, _ xml.StartElement) error {
	start := xml.StartElement{Name: e.Name, Attr: e.Attrs}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if e.Text != "" {
		if err := enc.EncodeToken(xml.CharData(e.Text)); err != nil {
			return err
		}
	}
	for _, child := range e.Children {
		if err := child.MarshalXML(enc, xml.StartElement{}); err != nil {
			return err
		}
	}
	return enc.EncodeToken(xml.EndElement{Name: start.Name})
}

// String renders the element as XML, for logging and sending.
func (e *Element) String() string {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	if err := e.MarshalXML(enc, xml.StartElement{}); err != nil {
		return ""
	}
	enc.Flush()
	return buf.String()
}

// Attr returns the value of the attribute with the given local name, or "".
func (e *Element) Attr(local string) string {
	for _, a := range e.Attrs {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// SetAttr sets or replaces an attribute.
func (e *Element) SetAttr(local, value string) {
	for i, a := range e.Attrs {
		if a.Name.Local == local {
			e.Attrs[i].Value = value
			return
		}
	}
	e.Attrs = append(e.Attrs, xml.Attr{Name: xml.Name{Local: local}, Value: value})
}

// Lang returns the xml:lang attribute, or "".
func (e *Element) Lang() string {
	for _, a := range e.Attrs {
		if a.Name.Local == "lang" && (a.Name.Space == "xml" || a.Name.Space == "http://www.w3.org/XML/1998/namespace") {
			return a.Value
		}
	}
	return ""
}

// Type returns the stanza's type attribute.
func (e *Element) Type() string { return e.Attr("type") }

// ID returns the stanza's id attribute.
func (e *Element) ID() string { return e.Attr("id") }

// From returns the stanza's from attribute.
func (e *Element) From() string { return e.Attr("from") }

// To returns the stanza's to attribute.
func (e *Element) To() string { return e.Attr("to") }

// ChildByName returns the first child with the given local name.
func (e *Element) ChildByName(local string) *Element {
	for _, c := range e.Children {
		if c.Name.Local == local {
			return c
		}
	}
	return nil
}

// ChildByNS returns the first child in the given namespace.
func (e *Element) ChildByNS(space string) *Element {
	for _, c := range e.Children {
		if c.Name.Space == space {
			return c
		}
	}
	return nil
}

// ChildByNameNS returns the first child matching both local name and namespace.
func (e *Element) ChildByNameNS(local, space string) *Element {
	for _, c := range e.Children {
		if c.Name.Local == local && c.Name.Space == space {
			return c
		}
	}
	return nil
}

// Body returns the text of the body child, or "".
func (e *Element) Body() string {
	if body := e.ChildByName("body"); body != nil {
		return body.Text
	}
	return ""
}

// Delay returns the delayed-delivery timestamp of a stanza, if one is
// present. Both urn:xmpp:delay and the legacy jabber:x:delay form are
// recognized.
func (e *Element) Delay() (time.Time, bool) {
	if delay := e.ChildByNameNS("delay", NSDelay); delay != nil {
		if t, err := time.Parse(time.RFC3339, delay.Attr("stamp")); err == nil {
			return t, true
		}
	}
	if x := e.ChildByNameNS("x", NSLegacyDelay); x != nil {
		if t, err := time.Parse("20060102T15:04:05", x.Attr("stamp")); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ContainsChatState reports whether any child is a chat state notification.
func (e *Element) ContainsChatState() bool {
	for _, c := range e.Children {
		if c.Name.Space == NSChatStates {
			return true
		}
	}
	return false
}

// ErrorText extracts a human-readable description from an error stanza.
// The result is never empty: if the stanza supplies no text or condition, a
// generic description is synthesized.
func (e *Element) ErrorText() string {
	errEl := e.ChildByName("error")
	if errEl == nil {
		return "unknown error"
	}
	if text := errEl.ChildByName("text"); text != nil && text.Text != "" {
		return text.Text
	}
	// No text element, fall back to the defined condition name.
	for _, c := range errEl.Children {
		if c.Name.Local != "text" {
			return strings.ReplaceAll(c.Name.Local, "-", " ")
		}
	}
	return "unknown error"
}
