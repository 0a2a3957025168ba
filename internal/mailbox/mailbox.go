package mailbox

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"
)

// Message is one mail item as the transport reports it.
type Message struct {
	ID                string    `json:"id"`
	StoreID           string    `json:"store_id,omitempty"`
	Store             string    `json:"store,omitempty"`
	InternetMessageID string    `json:"internet_message_id,omitempty"`
	ConversationID    string    `json:"conversation_id,omitempty"`
	Sender            string    `json:"sender"`
	SenderName        string    `json:"sender_name,omitempty"`
	SenderSMTP        string    `json:"sender_smtp,omitempty"`
	To                []string  `json:"to,omitempty"`
	CC                []string  `json:"cc,omitempty"`
	Subject           string    `json:"subject"`
	Body              string    `json:"body"`
	Received          time.Time `json:"received"`
	HighImportance    bool      `json:"high_importance,omitempty"`
	MessageClass      string    `json:"message_class,omitempty"`
	Unread            bool      `json:"unread"`
	Folder            string    `json:"-"`
}

// Excerpt is the first n bytes of the body, cut on a rune boundary.
func (m *Message) Excerpt(n int) string {
	if len(m.Body) <= n {
		return m.Body
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(m.Body[cut]) {
		cut--
	}
	return m.Body[:cut]
}

// Folder is a resolved mailbox folder. Path is "/"-separated from the mailbox root.
type Folder struct {
	Path string
}

func (f Folder) Name() string {
	if i := strings.LastIndex(f.Path, "/"); i >= 0 {
		return f.Path[i+1:]
	}
	return f.Path
}

// Draft is an outgoing message built by Forward or composed for an alert.
type Draft struct {
	ID       string    `json:"id"`
	SourceID string    `json:"source_id,omitempty"`
	To       []string  `json:"to"`
	CC       []string  `json:"cc,omitempty"`
	Subject  string    `json:"subject"`
	Body     string    `json:"body"`
	Created  time.Time `json:"created"`
}

// Recipients is every To and CC address.
func (d *Draft) Recipients() []string {
	out := make([]string, 0, len(d.To)+len(d.CC))
	out = append(out, d.To...)
	return append(out, d.CC...)
}

// Client is the mailbox transport. Every call is synchronous and blocks the tick.
type Client interface {
	ListUnread(ctx context.Context, folder Folder) ([]*Message, error)
	ResolveFolder(ctx context.Context, nameOrPath string) (Folder, error)
	EnsureFolder(ctx context.Context, path string) (Folder, error)
	Move(ctx context.Context, msg *Message, folder Folder) error
	Forward(ctx context.Context, msg *Message) (*Draft, error)
	Send(ctx context.Context, draft *Draft) error
	ResolveSenderAddress(ctx context.Context, msg *Message) (string, error)
}

// Compose starts a new draft that is not tied to an inbound message.
func Compose(to []string, subject, body string) *Draft {
	return &Draft{To: to, Subject: subject, Body: body, Created: time.Now()}
}

func forwardDraft(msg *Message) *Draft {
	var b strings.Builder
	b.WriteString("\n\n-----Original Message-----\n")
	b.WriteString("From: ")
	if msg.SenderName != "" {
		b.WriteString(msg.SenderName + " <" + msg.Sender + ">")
	} else {
		b.WriteString(msg.Sender)
	}
	b.WriteString("\nSent: " + msg.Received.Format("Monday, 2 January 2006 15:04"))
	if len(msg.To) > 0 {
		b.WriteString("\nTo: " + strings.Join(msg.To, "; "))
	}
	if len(msg.CC) > 0 {
		b.WriteString("\nCc: " + strings.Join(msg.CC, "; "))
	}
	b.WriteString("\nSubject: " + msg.Subject + "\n\n")
	b.WriteString(msg.Body)

	return &Draft{
		SourceID: msg.ID,
		Subject:  "FW: " + msg.Subject,
		Body:     b.String(),
		Created:  time.Now(),
	}
}

// splitPath cleans a "/" or "\" separated folder path into its segments.
func splitPath(p string) []string {
	p = strings.ReplaceAll(p, "\\", "/")
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if seg = strings.TrimSpace(seg); seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

func joinPath(segs []string) string {
	return strings.Join(segs, "/")
}
