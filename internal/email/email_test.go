package email

import (
	"reflect"
	"testing"

	"github.com/emersion/go-imap/v2"
)

func TestExtractAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"user@example.com", "user@example.com"},
		{"Name <user@example.com>", "user@example.com"},
		{"Complex Name Jr. <a.b@c.example>", "a.b@c.example"},
		{"", ""},
	}

	for _, tc := range tests {
		if got := extractAddress(tc.in); got != tc.want {
			t.Errorf("extractAddress(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCollectRecipients(t *testing.T) {
	got := collectRecipients(
		[]string{"Alice <alice@example.com>", "bob@example.com"},
		[]string{"alice@example.com", "carol@example.com"},
	)
	want := []string{"alice@example.com", "bob@example.com", "carol@example.com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("collectRecipients() = %v, want %v", got, want)
	}
}

func TestEnvelopeUnread(t *testing.T) {
	unread := Envelope{Flags: []string{`\Flagged`}}
	if !unread.Unread() {
		t.Error("message without \\Seen should be unread")
	}
	read := Envelope{Flags: []string{`\Seen`}}
	if read.Unread() {
		t.Error("message with \\Seen should not be unread")
	}
}

func TestFormatAddress(t *testing.T) {
	withName := imap.Address{Name: "Alice", Mailbox: "alice", Host: "example.com"}
	if got := formatAddress(withName); got != "Alice <alice@example.com>" {
		t.Errorf("formatAddress() = %q", got)
	}
	bare := imap.Address{Mailbox: "bob", Host: "example.com"}
	if got := formatAddress(bare); got != "bob@example.com" {
		t.Errorf("formatAddress() = %q", got)
	}
}

func TestSendOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    SendOptions
		wantErr bool
	}{
		{"valid", SendOptions{To: []string{"a@b.c"}, Subject: "s", Body: "b"}, false},
		{"no recipients", SendOptions{Subject: "s", Body: "b"}, true},
		{"no subject", SendOptions{To: []string{"a@b.c"}, Body: "b"}, true},
		{"no body", SendOptions{To: []string{"a@b.c"}, Subject: "s"}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.opts.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestLimitNewest(t *testing.T) {
	uids := []imap.UID{1, 2, 3, 4, 5}

	if got := limitNewest(uids, 2); !reflect.DeepEqual(got, []imap.UID{4, 5}) {
		t.Errorf("limitNewest(.., 2) = %v", got)
	}
	if got := limitNewest(uids, 10); len(got) != 5 {
		t.Errorf("limitNewest(.., 10) returned %d UIDs, want 5", len(got))
	}
	// Zero means the default limit of 20.
	if got := limitNewest(uids, 0); len(got) != 5 {
		t.Errorf("limitNewest(.., 0) returned %d UIDs, want 5", len(got))
	}
}
