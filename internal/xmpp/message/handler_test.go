package message

import (
	"fmt"
	"testing"
	"time"

	"mellium.im/xmpp/jid"

	"github.com/jwhitfield/parley/internal/xmpp/stanza"
)

// eventRecorder records every event the handler emits, in order, as one
// line per call.
type eventRecorder struct {
	calls []string
}

func (r *eventRecorder) add(format string, args ...interface{}) {
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

func (r *eventRecorder) IncomingMessage(bareJID, resource, body string) {
	r.add("incoming %s %s %s", bareJID, resource, body)
}

func (r *eventRecorder) DelayedMessage(bareJID, body string, stamp time.Time) {
	r.add("delayed %s %s %s", bareJID, body, stamp.UTC().Format(time.RFC3339))
}

func (r *eventRecorder) PrivateMessage(fullJID, body string) {
	r.add("private %s %s", fullJID, body)
}

func (r *eventRecorder) DelayedPrivateMessage(fullJID, body string, stamp time.Time) {
	r.add("delayed-private %s %s %s", fullJID, body, stamp.UTC().Format(time.RFC3339))
}

func (r *eventRecorder) CarbonMessage(bareJID, body string) {
	r.add("carbon %s %s", bareJID, body)
}

func (r *eventRecorder) RoomMessage(room, nick, body string) {
	r.add("room %s %s %s", room, nick, body)
}

func (r *eventRecorder) RoomHistory(room, nick string, stamp time.Time, body string) {
	r.add("history %s %s %s %s", room, nick, stamp.UTC().Format(time.RFC3339), body)
}

func (r *eventRecorder) RoomBroadcast(roomJID, body string) {
	r.add("broadcast %s %s", roomJID, body)
}

func (r *eventRecorder) RoomSubject(room, nick, subject string) {
	r.add("subject %s %s %s", room, nick, subject)
}

func (r *eventRecorder) RoomInvite(kind InviteKind, inviter, room, reason, password string) {
	r.add("invite %s %s %s %s %s", kind, inviter, room, reason, password)
}

func (r *eventRecorder) Typing(bareJID, resource string)   { r.add("typing %s %s", bareJID, resource) }
func (r *eventRecorder) Paused(bareJID, resource string)   { r.add("paused %s %s", bareJID, resource) }
func (r *eventRecorder) Inactive(bareJID, resource string) { r.add("inactive %s %s", bareJID, resource) }
func (r *eventRecorder) Gone(bareJID, resource string)     { r.add("gone %s %s", bareJID, resource) }

func (r *eventRecorder) Activity(bareJID, resource string, hasState bool) {
	r.add("activity %s %s %t", bareJID, resource, hasState)
}

func (r *eventRecorder) MessageReceipt(bareJID, messageID string) {
	r.add("receipt %s %s", bareJID, messageID)
}

func (r *eventRecorder) AvatarMetadata(owner, id, mimeType string) {
	r.add("avatar %s %s %s", owner, id, mimeType)
}

func (r *eventRecorder) GeneralError(description string) {
	r.add("error %s", description)
}

func (r *eventRecorder) RecipientError(recipient, description string) {
	r.add("recipient-error %s %s", recipient, description)
}

func (r *eventRecorder) expect(t *testing.T, want ...string) {
	t.Helper()
	if len(r.calls) != len(want) {
		t.Fatalf("expected %d events, got %d: %v", len(want), len(r.calls), r.calls)
	}
	for i := range want {
		if r.calls[i] != want[i] {
			t.Fatalf("event %d: expected %q, got %q", i, want[i], r.calls[i])
		}
	}
}

type fakeSender struct {
	sent []*stanza.Element
}

func (s *fakeSender) Send(el *stanza.Element) error {
	s.sent = append(s.sent, el)
	return nil
}

type fakeSessions struct {
	removed []string
}

func (s *fakeSessions) Remove(bareJID string) {
	s.removed = append(s.removed, bareJID)
}

type fakeRooms struct {
	active map[string]bool
}

func (r *fakeRooms) Active(bareJID string) bool { return r.active[bareJID] }

type fakePrefs struct {
	sendReceipts bool
}

func (p *fakePrefs) SendReceipts() bool { return p.sendReceipts }

type fakeDecryptor struct {
	plaintext string
	ok        bool
}

func (d *fakeDecryptor) Decrypt(peer, ciphertext string) (string, bool) {
	return d.plaintext, d.ok
}

type fixture struct {
	handler  *Handler
	events   *eventRecorder
	sender   *fakeSender
	sessions *fakeSessions
	rooms    *fakeRooms
	prefs    *fakePrefs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		events:   &eventRecorder{},
		sender:   &fakeSender{},
		sessions: &fakeSessions{},
		rooms:    &fakeRooms{active: make(map[string]bool)},
		prefs:    &fakePrefs{sendReceipts: true},
	}
	f.handler = NewHandler(Config{
		Self:     jid.MustParse("alice@example.com/desktop"),
		Events:   f.events,
		Sender:   f.sender,
		Sessions: f.sessions,
		Rooms:    f.rooms,
		Prefs:    f.prefs,
	})
	return f
}

func (f *fixture) handle(t *testing.T, raw string) {
	t.Helper()
	f.handler.HandleMessage(parseMessage(t, raw))
}

func TestChatMessageEmitsIncoming(t *testing.T) {
	f := newFixture(t)
	f.handle(t, `<message xmlns='jabber:client' type='chat' from='bob@example.com/phone'><body>hi</body></message>`)

	f.events.expect(t,
		"incoming bob@example.com phone hi",
		"activity bob@example.com phone false",
	)
}

func TestChatMessageWithActiveState(t *testing.T) {
	f := newFixture(t)
	f.handle(t, `<message xmlns='jabber:client' type='chat' from='bob@example.com/phone'><body>hi</body><active xmlns='http://jabber.org/protocol/chatstates'/></message>`)

	f.events.expect(t,
		"incoming bob@example.com phone hi",
		"activity bob@example.com phone true",
	)
}

func TestDelayedChatMessage(t *testing.T) {
	f := newFixture(t)
	f.handle(t, `<message xmlns='jabber:client' type='chat' from='bob@example.com/phone'><body>old</body><delay xmlns='urn:xmpp:delay' stamp='2024-03-01T12:30:00Z'/><composing xmlns='http://jabber.org/protocol/chatstates'/></message>`)

	// Delayed delivery suppresses chat state events entirely.
	f.events.expect(t, "delayed bob@example.com old 2024-03-01T12:30:00Z")
}

func TestChatStatePriority(t *testing.T) {
	f := newFixture(t)
	f.handle(t, `<message xmlns='jabber:client' type='chat' from='bob@example.com/phone'><composing xmlns='http://jabber.org/protocol/chatstates'/><paused xmlns='http://jabber.org/protocol/chatstates'/></message>`)

	f.events.expect(t, "typing bob@example.com phone")
}

func TestGoneStateWinsOverComposing(t *testing.T) {
	f := newFixture(t)
	f.handle(t, `<message xmlns='jabber:client' type='chat' from='bob@example.com/phone'><composing xmlns='http://jabber.org/protocol/chatstates'/><gone xmlns='http://jabber.org/protocol/chatstates'/></message>`)

	f.events.expect(t, "gone bob@example.com phone")
}

func TestBareSenderSuppressesChatStates(t *testing.T) {
	f := newFixture(t)
	f.handle(t, `<message xmlns='jabber:client' type='chat' from='bob@example.com'><body>hi</body></message>`)

	f.events.expect(t, "incoming bob@example.com  hi")
}

func TestReceiptRequestAcknowledged(t *testing.T) {
	f := newFixture(t)
	f.handle(t, `<message xmlns='jabber:client' type='chat' id='m1' from='bob@example.com/phone'><body>hi</body><request xmlns='urn:xmpp:receipts'/></message>`)

	if len(f.sender.sent) != 1 {
		t.Fatalf("expected one outbound stanza, got %d", len(f.sender.sent))
	}
	ack := f.sender.sent[0]
	if ack.To() != "bob@example.com/phone" {
		t.Fatalf("unexpected ack recipient: %q", ack.To())
	}
	received := ack.ChildByNS(stanza.NSReceipts)
	if received == nil || received.Name.Local != "received" || received.Attr("id") != "m1" {
		t.Fatalf("malformed receipt acknowledgment: %s", ack.String())
	}
}

func TestReceiptRequestHonorsPreference(t *testing.T) {
	f := newFixture(t)
	f.prefs.sendReceipts = false
	f.handle(t, `<message xmlns='jabber:client' type='chat' id='m1' from='bob@example.com/phone'><body>hi</body><request xmlns='urn:xmpp:receipts'/></message>`)

	if len(f.sender.sent) != 0 {
		t.Fatalf("receipts disabled, expected no outbound stanza")
	}
}

func TestReceiptRequestWithoutIDIgnored(t *testing.T) {
	f := newFixture(t)
	f.handle(t, `<message xmlns='jabber:client' type='chat' from='bob@example.com/phone'><body>hi</body><request xmlns='urn:xmpp:receipts'/></message>`)

	if len(f.sender.sent) != 0 {
		t.Fatalf("request without id cannot be acknowledged")
	}
}

func TestReceiptAckEmitsEvent(t *testing.T) {
	f := newFixture(t)
	f.handle(t, `<message xmlns='jabber:client' from='bob@example.com/phone'><received xmlns='urn:xmpp:receipts' id='m1'/></message>`)

	f.events.expect(t, "receipt bob@example.com m1")
}

func TestReceiptAckWithoutFromIgnored(t *testing.T) {
	f := newFixture(t)
	f.handle(t, `<message xmlns='jabber:client'><received xmlns='urn:xmpp:receipts' id='m1'/></message>`)

	f.events.expect(t)
}

func TestErrorWithoutSenderIsGeneral(t *testing.T) {
	f := newFixture(t)
	f.handle(t, `<message xmlns='jabber:client' type='error'><error type='cancel'><service-unavailable xmlns='urn:ietf:params:xml:ns:xmpp-stanzas'/></error></message>`)

	f.events.expect(t, "error service unavailable")
}

func TestCancelErrorEndsSession(t *testing.T) {
	f := newFixture(t)
	f.handle(t, `<message xmlns='jabber:client' type='error' from='bob@example.com/phone'><error type='cancel'><item-not-found xmlns='urn:ietf:params:xml:ns:xmpp-stanzas'/><text xmlns='urn:ietf:params:xml:ns:xmpp-stanzas'>User not found</text></error></message>`)

	if len(f.sessions.removed) != 1 || f.sessions.removed[0] != "bob@example.com" {
		t.Fatalf("expected session teardown for bob@example.com, got %v", f.sessions.removed)
	}
	f.events.expect(t, "recipient-error bob@example.com/phone User not found")
}

func TestTransientErrorKeepsSession(t *testing.T) {
	f := newFixture(t)
	f.handle(t, `<message xmlns='jabber:client' type='error' from='bob@example.com/phone'><error type='wait'><resource-constraint xmlns='urn:ietf:params:xml:ns:xmpp-stanzas'/></error></message>`)

	if len(f.sessions.removed) != 0 {
		t.Fatalf("transient error must not tear down the session")
	}
	f.events.expect(t, "recipient-error bob@example.com/phone resource constraint")
}

func TestGroupchatSubjectOnly(t *testing.T) {
	f := newFixture(t)
	f.rooms.active["room@muc.example.com"] = true
	f.handle(t, `<message xmlns='jabber:client' type='groupchat' from='room@muc.example.com/alice'><subject>Weekly sync</subject></message>`)

	f.events.expect(t, "subject room@muc.example.com alice Weekly sync")
}

func TestGroupchatMessage(t *testing.T) {
	f := newFixture(t)
	f.rooms.active["room@muc.example.com"] = true
	f.handle(t, `<message xmlns='jabber:client' type='groupchat' from='room@muc.example.com/bob'><body>hello room</body></message>`)

	f.events.expect(t, "room room@muc.example.com bob hello room")
}

func TestGroupchatHistory(t *testing.T) {
	f := newFixture(t)
	f.rooms.active["room@muc.example.com"] = true
	f.handle(t, `<message xmlns='jabber:client' type='groupchat' from='room@muc.example.com/bob'><body>earlier</body><delay xmlns='urn:xmpp:delay' stamp='2024-03-01T12:30:00Z'/></message>`)

	f.events.expect(t, "history room@muc.example.com bob 2024-03-01T12:30:00Z earlier")
}

func TestGroupchatFromInactiveRoomDropped(t *testing.T) {
	f := newFixture(t)
	f.handle(t, `<message xmlns='jabber:client' type='groupchat' from='room@muc.example.com/bob'><body>spoofed</body></message>`)

	f.events.expect(t)
}

func TestGroupchatRoomBroadcast(t *testing.T) {
	f := newFixture(t)
	f.handle(t, `<message xmlns='jabber:client' type='groupchat' from='room@muc.example.com'><body>room closes at noon</body></message>`)

	f.events.expect(t, "broadcast room@muc.example.com room closes at noon")
}

func TestMediatedInvite(t *testing.T) {
	f := newFixture(t)
	f.handle(t, `<message xmlns='jabber:client' from='room@muc.example.com'><x xmlns='http://jabber.org/protocol/muc#user'><invite from='alice@example.com/phone'><reason>come chat</reason></invite><password>secret</password></x></message>`)

	f.events.expect(t, "invite mediated alice@example.com room@muc.example.com come chat secret")
}

func TestDirectInvite(t *testing.T) {
	f := newFixture(t)
	f.handle(t, `<message xmlns='jabber:client' from='alice@example.com/phone'><x xmlns='jabber:x:conference' jid='room@muc.example.com' reason='come chat'/></message>`)

	f.events.expect(t, "invite direct alice@example.com room@muc.example.com come chat ")
}

func TestCaptchaSurfacesChallenge(t *testing.T) {
	f := newFixture(t)
	f.handle(t, `<message xmlns='jabber:client' from='room@muc.example.com'><body>enter the code to join</body><captcha xmlns='urn:xmpp:captcha'><x xmlns='jabber:x:data' type='form'/></captcha></message>`)

	f.events.expect(t, "broadcast room@muc.example.com enter the code to join")
}

func TestCarbonDeliveredToSelf(t *testing.T) {
	f := newFixture(t)
	f.handle(t, `<message xmlns='jabber:client' from='alice@example.com' to='alice@example.com/desktop'><received xmlns='urn:xmpp:carbons:2'><forwarded xmlns='urn:xmpp:forward:0'><message xmlns='jabber:client' from='bob@example.com/phone' to='alice@example.com/tablet' type='chat'><body>carbon hello</body></message></forwarded></received></message>`)

	f.events.expect(t, "incoming bob@example.com phone carbon hello")
}

func TestCarbonOfSentMessage(t *testing.T) {
	f := newFixture(t)
	f.handle(t, `<message xmlns='jabber:client' from='alice@example.com' to='alice@example.com/desktop'><sent xmlns='urn:xmpp:carbons:2'><forwarded xmlns='urn:xmpp:forward:0'><message xmlns='jabber:client' from='alice@example.com/tablet' to='bob@example.com' type='chat'><body>sent elsewhere</body></message></forwarded></sent></message>`)

	f.events.expect(t, "carbon bob@example.com sent elsewhere")
}

func TestCarbonWithoutRecipientUsesSender(t *testing.T) {
	f := newFixture(t)
	f.handle(t, `<message xmlns='jabber:client' from='alice@example.com'><sent xmlns='urn:xmpp:carbons:2'><forwarded xmlns='urn:xmpp:forward:0'><message xmlns='jabber:client' from='alice@example.com/tablet' type='chat'><body>note to self</body></message></forwarded></sent></message>`)

	f.events.expect(t, "incoming alice@example.com tablet note to self")
}

func TestCarbonWithoutForwardedPayloadDropped(t *testing.T) {
	f := newFixture(t)
	f.handle(t, `<message xmlns='jabber:client' from='alice@example.com'><received xmlns='urn:xmpp:carbons:2'/></message>`)

	f.events.expect(t)
}

func TestPrivateMessageFromRoomOccupant(t *testing.T) {
	f := newFixture(t)
	f.rooms.active["room@muc.example.com"] = true
	f.handle(t, `<message xmlns='jabber:client' type='chat' from='room@muc.example.com/bob'><body>psst</body></message>`)

	f.events.expect(t, "private room@muc.example.com/bob psst")
}

func TestDelayedPrivateMessage(t *testing.T) {
	f := newFixture(t)
	f.rooms.active["room@muc.example.com"] = true
	f.handle(t, `<message xmlns='jabber:client' type='chat' from='room@muc.example.com/bob'><body>psst</body><delay xmlns='urn:xmpp:delay' stamp='2024-03-01T12:30:00Z'/></message>`)

	f.events.expect(t, "delayed-private room@muc.example.com/bob psst 2024-03-01T12:30:00Z")
}

func TestEncryptedBodyDecrypted(t *testing.T) {
	f := newFixture(t)
	f.handler.decryptor = &fakeDecryptor{plaintext: "secret hello", ok: true}
	f.handle(t, `<message xmlns='jabber:client' type='chat' from='bob@example.com/phone'><body>[encrypted]</body><x xmlns='jabber:x:encrypted'>hQEMA7...</x></message>`)

	f.events.expect(t,
		"incoming bob@example.com phone secret hello",
		"activity bob@example.com phone false",
	)
}

func TestEncryptedBodyFallsBackToPlaintext(t *testing.T) {
	f := newFixture(t)
	f.handler.decryptor = &fakeDecryptor{ok: false}
	f.handle(t, `<message xmlns='jabber:client' type='chat' from='bob@example.com/phone'><body>[encrypted]</body><x xmlns='jabber:x:encrypted'>hQEMA7...</x></message>`)

	f.events.expect(t,
		"incoming bob@example.com phone [encrypted]",
		"activity bob@example.com phone false",
	)
}

func TestAvatarMetadataNotification(t *testing.T) {
	f := newFixture(t)
	f.handle(t, `<message xmlns='jabber:client' from='bob@example.com'><event xmlns='http://jabber.org/protocol/pubsub#event'><items node='urn:xmpp:avatar:metadata'><item id='sha1hash'><metadata xmlns='urn:xmpp:avatar:metadata'><info id='sha1hash' type='image/png' bytes='12345'/></metadata></item></items></event></message>`)

	f.events.expect(t, "avatar bob@example.com sha1hash image/png")
}

func TestPubsubEventForOtherNodeIgnored(t *testing.T) {
	f := newFixture(t)
	f.handle(t, `<message xmlns='jabber:client' from='bob@example.com'><event xmlns='http://jabber.org/protocol/pubsub#event'><items node='urn:xmpp:tune'><item/></items></event></message>`)

	f.events.expect(t)
}
