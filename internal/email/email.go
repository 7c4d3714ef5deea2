// Package email provides IMAP reading and SMTP sending for the Senti
// email tools. Reading goes through a persistent, mutex-serialized IMAP
// connection; sending opens an ephemeral SMTP connection per message
// with the body composed as multipart/alternative MIME from markdown.
package email

import (
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-imap/v2"
)

// Envelope is the summary metadata for a message, suitable for inbox
// listings and search results.
type Envelope struct {
	// UID is the IMAP unique identifier within the mailbox.
	UID uint32

	// Date is the message's Date header.
	Date time.Time

	// From is the sender, formatted as "Name <addr>" or just the address.
	From string

	// To is the list of recipients.
	To []string

	// Subject is the message subject line.
	Subject string

	// Flags contains IMAP flags (e.g., \Seen, \Flagged).
	Flags []string

	// Size is the message size in bytes.
	Size uint32
}

// Unread reports whether the message lacks the \Seen flag.
func (e Envelope) Unread() bool {
	for _, f := range e.Flags {
		if f == `\Seen` {
			return false
		}
	}
	return true
}

// ListOptions controls inbox listing.
type ListOptions struct {
	// Mailbox to list from. Empty uses the configured default.
	Mailbox string

	// Limit is the maximum number of messages to return. Default: 20.
	Limit int

	// Unseen restricts the listing to unseen messages only.
	Unseen bool
}

// SearchOptions controls message search.
type SearchOptions struct {
	// Mailbox to search. Empty uses the configured default.
	Mailbox string

	// Query is a free-text string matched against message content.
	Query string

	// From filters by sender address or name.
	From string

	// Since filters for messages on or after this date.
	Since time.Time

	// Before filters for messages before this date.
	Before time.Time

	// Limit is the maximum number of results. Default: 20.
	Limit int
}

// SendOptions describes an outbound message. Body is markdown; the
// compose layer converts it to text/plain and text/html parts.
type SendOptions struct {
	To      []string
	Cc      []string
	Subject string
	Body    string
}

// Validate checks that the send request has the required fields.
func (o SendOptions) Validate() error {
	if len(o.To) == 0 {
		return fmt.Errorf("at least one recipient is required")
	}
	if o.Subject == "" {
		return fmt.Errorf("subject is required")
	}
	if o.Body == "" {
		return fmt.Errorf("body is required")
	}
	return nil
}

// drainLiteral reads and discards an IMAP literal so an unconsumed
// body section cannot block the IMAP stream. Nil readers are fine.
func drainLiteral(r imap.LiteralReader) {
	if r == nil {
		return
	}
	_, _ = io.Copy(io.Discard, r)
}

// formatAddress formats an IMAP address as "Name <user@host>" or
// just "user@host" when no display name is set.
func formatAddress(addr imap.Address) string {
	email := addr.Addr()
	if addr.Name != "" {
		return fmt.Sprintf("%s <%s>", addr.Name, email)
	}
	return email
}
