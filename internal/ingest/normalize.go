// Package ingest normalizes inbound requests into conversation turns.
// Attachments arrive as already-decoded bytes with a MIME type; this
// package turns them into text segments and inline image parts, and
// rewrites channel prefixes so the model can tell a forwarded email
// from a typed message.
package ingest

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sentellent/senti/internal/session"
)

// ErrEmptyMessage is returned when a request carries no message text
// and no attachments. Such requests never reach the orchestrator.
var ErrEmptyMessage = errors.New("message is empty")

// emailPrefix marks messages forwarded from an email channel.
const emailPrefix = "email:"

// maxInlineText caps how much of a text attachment is inlined into
// the turn.
const maxInlineText = 16 * 1024

// Attachment is one decoded inbound attachment.
type Attachment struct {
	// Name is the original filename, used in attachment notes.
	Name string `json:"name"`

	// MIME is the content type (e.g., "image/png", "text/markdown").
	MIME string `json:"mime"`

	// Data is the raw decoded content.
	Data []byte `json:"data"`
}

// Normalize converts an inbound message and its attachments into a
// user turn. Text attachments are inlined, markdown is flattened to
// plain text, images become inline data URLs, and everything else is
// reduced to a note naming the attachment.
func Normalize(message string, attachments []Attachment) (session.Turn, error) {
	message = strings.TrimSpace(message)
	if message == "" && len(attachments) == 0 {
		return session.Turn{}, ErrEmptyMessage
	}

	var parts []string
	if message != "" {
		parts = append(parts, rewritePrefix(message))
	}

	var images []string
	for _, att := range attachments {
		if text, img, ok := normalizeAttachment(att); ok {
			if img != "" {
				images = append(images, img)
			}
			if text != "" {
				parts = append(parts, text)
			}
		}
	}

	content := strings.Join(parts, "\n\n")
	if content == "" && len(images) == 0 {
		return session.Turn{}, ErrEmptyMessage
	}

	return session.Turn{
		Role:      session.RoleUser,
		Content:   content,
		Images:    images,
		Timestamp: time.Now(),
	}, nil
}

// rewritePrefix expands the email channel marker so the model sees
// the message provenance explicitly.
func rewritePrefix(message string) string {
	rest, ok := strings.CutPrefix(message, emailPrefix)
	if !ok {
		return message
	}
	return "Incoming Data (Email): " + strings.TrimSpace(rest)
}

// normalizeAttachment converts one attachment into a text part, an
// image data URL, or both empty when the attachment carries nothing.
func normalizeAttachment(att Attachment) (text, image string, ok bool) {
	if len(att.Data) == 0 {
		return "", "", false
	}

	mime := baseMIME(att.MIME)
	switch {
	case mime == "text/markdown" || strings.HasSuffix(strings.ToLower(att.Name), ".md"):
		return attachmentHeader(att) + markdownToPlain(att.Data), "", true

	case strings.HasPrefix(mime, "text/"):
		if !utf8.Valid(att.Data) {
			return attachmentNote(att), "", true
		}
		body := string(att.Data)
		if len(body) > maxInlineText {
			body = body[:maxInlineText] + "\n[truncated]"
		}
		return attachmentHeader(att) + strings.TrimSpace(body), "", true

	case strings.HasPrefix(mime, "image/"):
		return "", dataURL(mime, att.Data), true

	default:
		return attachmentNote(att), "", true
	}
}

// dataURL encodes image bytes as a base64 data URL, the form the LLM
// clients expect for inline images.
func dataURL(mime string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))
}

func attachmentHeader(att Attachment) string {
	name := att.Name
	if name == "" {
		name = "attachment"
	}
	return fmt.Sprintf("Attachment %s:\n", name)
}

// attachmentNote describes an attachment the normalizer cannot
// inline. The model learns it exists without seeing the bytes.
func attachmentNote(att Attachment) string {
	name := att.Name
	if name == "" {
		name = "attachment"
	}
	return fmt.Sprintf("[Attachment: %s (%s), %d bytes]", name, att.MIME, len(att.Data))
}

// baseMIME strips parameters like "; charset=utf-8" and lowercases
// the type.
func baseMIME(mime string) string {
	if idx := strings.IndexByte(mime, ';'); idx >= 0 {
		mime = mime[:idx]
	}
	return strings.ToLower(strings.TrimSpace(mime))
}
