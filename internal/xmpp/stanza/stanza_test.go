package stanza

import (
	"testing"
	"time"
)

func TestParsePreservesChildOrderAndText(t *testing.T) {
	raw := []byte(`<message xmlns='jabber:client' from='alice@example.com/phone' type='chat'><body>hello</body><active xmlns='http://jabber.org/protocol/chatstates'/></message>`)

	el, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if el.Name.Local != "message" {
		t.Fatalf("expected message element, got %q", el.Name.Local)
	}
	if el.From() != "alice@example.com/phone" {
		t.Fatalf("unexpected from: %q", el.From())
	}
	if el.Type() != TypeChat {
		t.Fatalf("unexpected type: %q", el.Type())
	}
	if len(el.Children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(el.Children))
	}
	if el.Children[0].Name.Local != "body" || el.Children[1].Name.Local != "active" {
		t.Fatalf("children out of order: %q, %q", el.Children[0].Name.Local, el.Children[1].Name.Local)
	}
	if el.Body() != "hello" {
		t.Fatalf("unexpected body: %q", el.Body())
	}
	if !el.ContainsChatState() {
		t.Fatalf("expected chat state to be detected")
	}
}

func TestChildLookupMatchesNameAndNamespace(t *testing.T) {
	raw := []byte(`<message xmlns='jabber:client'><x xmlns='jabber:x:conference' jid='room@muc.example.com'/><x xmlns='jabber:x:data' type='result'/></message>`)

	el, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if c := el.ChildByNS(NSConference); c == nil || c.Attr("jid") != "room@muc.example.com" {
		t.Fatalf("ChildByNS did not find conference element")
	}
	if c := el.ChildByNameNS("x", NSData); c == nil || c.Attr("type") != "result" {
		t.Fatalf("ChildByNameNS did not find data form element")
	}
	if el.ChildByNameNS("x", NSMUCUser) != nil {
		t.Fatalf("ChildByNameNS matched wrong namespace")
	}
}

func TestDelayModernNamespace(t *testing.T) {
	raw := []byte(`<message xmlns='jabber:client'><body>old news</body><delay xmlns='urn:xmpp:delay' stamp='2024-03-01T12:30:00Z'/></message>`)

	el, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	stamp, delayed := el.Delay()
	if !delayed {
		t.Fatalf("expected delay to be detected")
	}
	want := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	if !stamp.Equal(want) {
		t.Fatalf("expected stamp %v, got %v", want, stamp)
	}
}

func TestDelayLegacyNamespace(t *testing.T) {
	raw := []byte(`<message xmlns='jabber:client'><x xmlns='jabber:x:delay' stamp='20240301T12:30:00'/></message>`)

	el, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	stamp, delayed := el.Delay()
	if !delayed {
		t.Fatalf("expected legacy delay to be detected")
	}
	if stamp.Hour() != 12 || stamp.Minute() != 30 {
		t.Fatalf("unexpected stamp: %v", stamp)
	}
}

func TestDelayAbsentOrMalformed(t *testing.T) {
	raw := []byte(`<message xmlns='jabber:client'><delay xmlns='urn:xmpp:delay' stamp='not-a-time'/></message>`)

	el, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if _, delayed := el.Delay(); delayed {
		t.Fatalf("malformed stamp should not count as delayed")
	}
}

func TestErrorTextPrefersTextElement(t *testing.T) {
	raw := []byte(`<message xmlns='jabber:client' type='error'><error type='cancel'><item-not-found xmlns='urn:ietf:params:xml:ns:xmpp-stanzas'/><text xmlns='urn:ietf:params:xml:ns:xmpp-stanzas'>User not found</text></error></message>`)

	el, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if got := el.ErrorText(); got != "User not found" {
		t.Fatalf("expected text element content, got %q", got)
	}
}

func TestErrorTextSynthesizesFromCondition(t *testing.T) {
	raw := []byte(`<message xmlns='jabber:client' type='error'><error type='cancel'><service-unavailable xmlns='urn:ietf:params:xml:ns:xmpp-stanzas'/></error></message>`)

	el, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if got := el.ErrorText(); got != "service unavailable" {
		t.Fatalf("expected condition-derived text, got %q", got)
	}
}

func TestErrorTextNeverEmpty(t *testing.T) {
	raw := []byte(`<message xmlns='jabber:client' type='error'><error type='cancel'/></message>`)

	el, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if got := el.ErrorText(); got != "unknown error" {
		t.Fatalf("expected generic description, got %q", got)
	}
}

func TestStringRoundTrips(t *testing.T) {
	raw := []byte(`<message xmlns='jabber:client' id='m1'><body>ping</body></message>`)

	el, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	again, err := Parse([]byte(el.String()))
	if err != nil {
		t.Fatalf("re-parse returned error: %v", err)
	}
	if again.ID() != "m1" || again.Body() != "ping" {
		t.Fatalf("round trip lost content: id=%q body=%q", again.ID(), again.Body())
	}
}
