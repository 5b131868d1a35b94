// Command parley runs the protocol core against a stanza stream on
// standard input and prints the events it produces. It is the harness used
// to exercise classification and capability handling against captured
// traffic; the network transport is provided by the embedding application.
package main

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"os"

	"github.com/jwhitfield/parley/internal/client"
	"github.com/jwhitfield/parley/internal/config"
	"github.com/jwhitfield/parley/internal/crypto/pgp"
	"github.com/jwhitfield/parley/internal/logging"
	"github.com/jwhitfield/parley/internal/storage/sqlite"
	"github.com/jwhitfield/parley/internal/xmpp/stanza"
)

// stdoutSender echoes outbound stanzas instead of writing to a network
// connection.
type stdoutSender struct {
	out io.Writer
}

func (s stdoutSender) Send(el *stanza.Element) error {
	_, err := fmt.Fprintf(s.out, "SEND %s\n", el.String())
	return err
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "parley: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if len(os.Args) > 1 {
		cfg.Account.JID = os.Args[1]
	}
	if cfg.Account.JID == "" {
		return fmt.Errorf("no account JID configured (pass one as the first argument)")
	}

	if err := logging.Init(logging.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
	}); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	var store *sqlite.DB
	if cfg.Storage.CacheCapabilities {
		store, err = sqlite.New(cfg.Storage.DataDir)
		if err != nil {
			logging.Warn("capability cache disabled: %v", err)
			store = nil
		}
	}

	var decryptor *pgp.Manager
	if cfg.Encryption.Enabled && cfg.Encryption.Keyring != "" {
		decryptor = pgp.NewManager()
		if err := decryptor.LoadKeyring(cfg.Encryption.Keyring); err != nil {
			logging.Warn("PGP decryption disabled: %v", err)
			decryptor = nil
		}
	}

	c, err := client.NewClient(client.Config{
		Config: cfg,
		Sender: stdoutSender{out: os.Stdout},
		Store:  store,
		PGP:    decryptor,
	})
	if err != nil {
		return err
	}
	defer c.Close()

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	c.SetMessageHandler(func(m client.Message) {
		switch {
		case m.CarbonTo != "":
			fmt.Fprintf(out, "CARBON to=%s body=%q\n", m.CarbonTo, m.Body)
		case m.Private:
			fmt.Fprintf(out, "PRIVATE from=%s delayed=%t body=%q\n", m.From, m.Delayed, m.Body)
		default:
			fmt.Fprintf(out, "MESSAGE from=%s delayed=%t body=%q\n", m.From, m.Delayed, m.Body)
		}
	})
	c.SetRoomMessageHandler(func(m client.RoomMessage) {
		fmt.Fprintf(out, "ROOM room=%s nick=%s delayed=%t broadcast=%t body=%q\n",
			m.Room, m.Nick, m.Delayed, m.Broadcast, m.Body)
	})
	c.SetRoomSubjectHandler(func(room, nick, subject string) {
		fmt.Fprintf(out, "SUBJECT room=%s nick=%s subject=%q\n", room, nick, subject)
	})
	c.SetInviteHandler(func(inv client.Invite) {
		fmt.Fprintf(out, "INVITE kind=%s room=%s inviter=%s\n", inv.Kind, inv.Room, inv.Inviter)
	})
	c.SetChatStateHandler(func(bareJID, resource, state string) {
		fmt.Fprintf(out, "STATE from=%s/%s state=%s\n", bareJID, resource, state)
	})
	c.SetReceiptHandler(func(bareJID, messageID string) {
		fmt.Fprintf(out, "RECEIPT from=%s id=%s\n", bareJID, messageID)
	})
	c.SetAvatarHandler(func(owner, id, mimeType string) {
		fmt.Fprintf(out, "AVATAR owner=%s id=%s type=%s\n", owner, id, mimeType)
	})
	c.SetErrorHandler(func(description string) {
		fmt.Fprintf(out, "ERROR %s\n", description)
	})
	c.SetRecipientErrorHandler(func(recipient, description string) {
		fmt.Fprintf(out, "ERROR recipient=%s %s\n", recipient, description)
	})

	decoder := xml.NewDecoder(os.Stdin)
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read stanza stream: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		el := &stanza.Element{}
		if err := el.UnmarshalXML(decoder, start); err != nil {
			logging.Warn("dropping unparseable stanza: %v", err)
			continue
		}
		c.HandleStanza(el)
		out.Flush()
	}
}
