// Package client wires the protocol core together: it owns the capability
// cache, session and room state, and preferences, feeds inbound stanzas to
// the message handler, and forwards the resulting events to the UI layer.
package client

import (
	"fmt"
	"sync"
	"time"

	"mellium.im/xmpp/jid"

	"github.com/jwhitfield/parley/internal/config"
	"github.com/jwhitfield/parley/internal/crypto/pgp"
	"github.com/jwhitfield/parley/internal/logging"
	"github.com/jwhitfield/parley/internal/muc"
	"github.com/jwhitfield/parley/internal/session"
	"github.com/jwhitfield/parley/internal/storage/sqlite"
	"github.com/jwhitfield/parley/internal/xmpp/caps"
	"github.com/jwhitfield/parley/internal/xmpp/message"
	"github.com/jwhitfield/parley/internal/xmpp/stanza"
)

// Message is a one-to-one chat message surfaced to the UI.
type Message struct {
	From      string // bare JID, or full room/nick JID for private messages
	Resource  string
	Body      string
	Timestamp time.Time
	Delayed   bool
	Private   bool
	CarbonTo  string // set when this is a copy of our own message sent elsewhere
}

// RoomMessage is a group chat message surfaced to the UI.
type RoomMessage struct {
	Room      string
	Nick      string
	Body      string
	Timestamp time.Time
	Delayed   bool
	Broadcast bool
}

// Invite is a surfaced room invitation.
type Invite struct {
	Kind     message.InviteKind
	Inviter  string
	Room     string
	Reason   string
	Password string
}

// Client is the protocol core of one connection. It is constructed at
// connect time and dropped at disconnect; the capability cache lives and
// dies with it.
type Client struct {
	mu   sync.RWMutex
	self jid.JID
	cfg  *config.Config

	sessions *session.Manager
	rooms    *muc.Manager
	cache    *caps.Cache
	hash     caps.Hasher

	store   *sqlite.DB
	pgp     *pgp.Manager
	sender  message.Sender
	handler *message.Handler

	onMessage        func(Message)
	onRoomMessage    func(RoomMessage)
	onRoomSubject    func(room, nick, subject string)
	onInvite         func(Invite)
	onChatState      func(bareJID, resource, state string)
	onReceipt        func(bareJID, messageID string)
	onAvatar         func(owner, id, mimeType string)
	onError          func(description string)
	onRecipientError func(recipient, description string)
}

// Config configures a Client. Sender is the transport's send primitive;
// Store and Decryptor are optional.
type Config struct {
	Config *config.Config
	Sender message.Sender
	Store  *sqlite.DB
	PGP    *pgp.Manager
}

// NewClient creates the protocol core for one connection.
func NewClient(cfg Config) (*Client, error) {
	self, err := jid.Parse(cfg.Config.Account.JID)
	if err != nil {
		return nil, fmt.Errorf("invalid account JID: %w", err)
	}
	if cfg.Config.Account.Resource != "" {
		self, err = self.WithResource(cfg.Config.Account.Resource)
		if err != nil {
			return nil, fmt.Errorf("invalid account resource: %w", err)
		}
	}

	c := &Client{
		self:     self,
		cfg:      cfg.Config,
		sessions: session.NewManager(),
		rooms:    muc.NewManager(),
		cache:    caps.NewCache(),
		hash:     caps.SHA1,
		store:    cfg.Store,
		pgp:      cfg.PGP,
		sender:   cfg.Sender,
	}

	var decryptor message.Decryptor
	if cfg.PGP != nil {
		decryptor = cfg.PGP
	}
	c.handler = message.NewHandler(message.Config{
		Self:      self,
		Events:    c,
		Sender:    cfg.Sender,
		Sessions:  c.sessions,
		Rooms:     c.rooms,
		Prefs:     c,
		Decryptor: decryptor,
	})

	if c.store != nil {
		records, err := c.store.LoadRecords()
		if err != nil {
			logging.Warn("failed to load cached capabilities: %v", err)
		} else {
			for ver, rec := range records {
				c.cache.Put(ver, rec)
			}
			logging.Debug("loaded %d cached capability records", len(records))
		}
	}

	return c, nil
}

// Close tears down the per-connection state.
func (c *Client) Close() error {
	c.sessions.Clear()
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}

// Self returns the local account's full address.
func (c *Client) Self() jid.JID { return c.self }

// Sessions returns the chat session store.
func (c *Client) Sessions() *session.Manager { return c.sessions }

// Rooms returns the room store.
func (c *Client) Rooms() *muc.Manager { return c.rooms }

// Caps returns the capability cache.
func (c *Client) Caps() *caps.Cache { return c.cache }

// SendReceipts implements message.Prefs.
func (c *Client) SendReceipts() bool { return c.cfg.Messages.SendReceipts }

// HandleStanza is the transport-facing entry point for inbound stanzas.
func (c *Client) HandleStanza(el *stanza.Element) {
	switch el.Name.Local {
	case "message":
		c.handler.HandleMessage(el)
	case "presence":
		c.handlePresenceCaps(el)
	case "iq":
		c.handleIQ(el)
	}
}

// handlePresenceCaps records the capability fingerprint a peer advertises
// in presence and queries for the full capability set when it is unknown.
func (c *Client) handlePresenceCaps(presence *stanza.Element) {
	capsEl := presence.ChildByNameNS("c", stanza.NSCaps)
	if capsEl == nil {
		return
	}
	from := presence.From()
	if from == "" {
		return
	}

	ver := capsEl.Attr("ver")
	if ver == "" {
		return
	}

	c.cache.Map(from, ver)

	if !c.cache.Contains(ver) {
		c.sendCapsQuery(from, capsEl.Attr("node"), ver)
	}
}

func (c *Client) sendCapsQuery(to, node, ver string) {
	iq := &stanza.Element{}
	iq.Name.Space = stanza.NSClient
	iq.Name.Local = "iq"
	iq.SetAttr("id", stanza.UniqueID("caps"))
	iq.SetAttr("to", to)
	iq.SetAttr("type", "get")

	query := &stanza.Element{}
	query.Name.Space = stanza.NSDiscoInfo
	query.Name.Local = "query"
	if node != "" {
		query.SetAttr("node", node+"#"+ver)
	}
	iq.Children = append(iq.Children, query)

	if err := c.sender.Send(iq); err != nil {
		logging.Warn("failed to send capability query to %s: %v", to, err)
	}
}

// handleIQ processes disco#info results carrying capability sets.
func (c *Client) handleIQ(iq *stanza.Element) {
	if iq.Type() != "result" {
		return
	}
	query := iq.ChildByNameNS("query", stanza.NSDiscoInfo)
	if query == nil {
		return
	}
	c.HandleDiscoInfoResult(iq.From(), query)
}

// HandleDiscoInfoResult canonicalizes and stores a peer's capability set.
// When the query carries a node of the form node#ver, the computed
// fingerprint must match the advertised one or the result is discarded.
func (c *Client) HandleDiscoInfoResult(from string, query *stanza.Element) {
	ver := c.hash([]byte(caps.VerificationString(query)))

	if node := query.Attr("node"); node != "" {
		if i := lastHash(node); i >= 0 && node[i+1:] != ver {
			logging.Warn("capability hash mismatch from %s: advertised %q, computed %q",
				from, node[i+1:], ver)
			return
		}
	}

	rec := caps.NewRecord(query)
	c.cache.Put(ver, rec)
	if from != "" {
		c.cache.Map(from, ver)
	}

	if c.store != nil && c.cfg.Storage.CacheCapabilities {
		if err := c.store.SaveRecord(ver, rec); err != nil {
			logging.Warn("failed to persist capability record: %v", err)
		}
	}
}

func lastHash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '#' {
			return i
		}
	}
	return -1
}
