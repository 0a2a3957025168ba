package mailbox

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	mtErrors "github.com/harunnryd/mailtriage/internal/errors"
)

func TestSpoolRoundTrip(t *testing.T) {
	ctx := context.Background()
	sp, err := NewSpool(t.TempDir(), "SAMI Support")
	if err != nil {
		t.Fatalf("NewSpool failed: %v", err)
	}

	inbox, err := sp.EnsureFolder(ctx, "Inbox")
	if err != nil {
		t.Fatalf("EnsureFolder failed: %v", err)
	}
	processed, err := sp.EnsureFolder(ctx, "Inbox/02_PROCESSED")
	if err != nil {
		t.Fatalf("EnsureFolder failed: %v", err)
	}

	received := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if err := sp.Deliver("Inbox", &Message{ID: "m/1", Sender: "requests@bensonradiology.com.au", Subject: "Please send priors", Received: received}); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	msgs, err := sp.ListUnread(ctx, inbox)
	if err != nil {
		t.Fatalf("ListUnread failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 unread message, got %d", len(msgs))
	}
	msg := msgs[0]
	if msg.Store != "SAMI Support" || msg.Folder != "Inbox" {
		t.Errorf("Expected store and folder to be filled, got %q %q", msg.Store, msg.Folder)
	}

	draft, err := sp.Forward(ctx, msg)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if draft.Subject != "FW: Please send priors" || !strings.Contains(draft.Body, "requests@bensonradiology.com.au") {
		t.Errorf("Unexpected forward draft: %+v", draft)
	}
	draft.To = []string{"a@example.org"}
	if err := sp.Send(ctx, draft); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if err := sp.Move(ctx, msg, processed); err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	if msgs, _ := sp.ListUnread(ctx, inbox); len(msgs) != 0 {
		t.Errorf("Expected inbox to be empty after move, got %d", len(msgs))
	}

	outbox, err := sp.Outbox()
	if err != nil {
		t.Fatalf("Outbox failed: %v", err)
	}
	if len(outbox) != 1 || outbox[0].To[0] != "a@example.org" {
		t.Errorf("Expected one spooled draft, got %+v", outbox)
	}
}

func TestSpoolResolveFolder(t *testing.T) {
	ctx := context.Background()
	sp, _ := NewSpool(t.TempDir(), "")
	_, _ = sp.EnsureFolder(ctx, "Inbox/03_QUARANTINE")
	_, _ = sp.EnsureFolder(ctx, "Archive/Old/03_QUARANTINE")

	f, err := sp.ResolveFolder(ctx, "03_QUARANTINE")
	if err != nil {
		t.Fatalf("ResolveFolder failed: %v", err)
	}
	if f.Path != "Inbox/03_QUARANTINE" {
		t.Errorf("Expected shallowest match, got %s", f.Path)
	}

	if _, err := sp.ResolveFolder(ctx, "Inbox/missing"); !errors.Is(err, mtErrors.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := sp.ResolveFolder(ctx, "outbox"); !errors.Is(err, mtErrors.ErrNotFound) {
		t.Errorf("Expected outbox to be hidden, got %v", err)
	}
}

func TestMemoryMoveAndFailures(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("Inbox", "Inbox/01_COMPLETED")
	msg := &Message{ID: "1", Sender: "A@Example.org", Unread: true}
	m.Deliver("inbox", msg)

	inbox, err := m.ResolveFolder(ctx, "Inbox")
	if err != nil {
		t.Fatalf("ResolveFolder failed: %v", err)
	}
	done, err := m.ResolveFolder(ctx, "01_completed")
	if err != nil {
		t.Fatalf("ResolveFolder by name failed: %v", err)
	}

	addr, err := m.ResolveSenderAddress(ctx, msg)
	if err != nil || addr != "a@example.org" {
		t.Fatalf("Expected lowercased sender, got %q %v", addr, err)
	}

	m.MoveErrors["1"] = errors.New("rpc unavailable")
	if err := m.Move(ctx, msg, done); !errors.Is(err, mtErrors.ErrTransient) {
		t.Fatalf("Expected transient move error, got %v", err)
	}
	delete(m.MoveErrors, "1")

	if err := m.Move(ctx, msg, done); err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	if unread, _ := m.ListUnread(ctx, inbox); len(unread) != 0 {
		t.Errorf("Expected empty inbox, got %d", len(unread))
	}
	if got := m.Messages("Inbox/01_COMPLETED"); len(got) != 1 || got[0].Unread {
		t.Errorf("Expected read message in completed folder, got %+v", got)
	}
}

func TestSenderAddressPrefersSMTP(t *testing.T) {
	msg := &Message{ID: "1", Sender: "/O=EXCHANGE/CN=RECIPIENTS/CN=JSMITH", SenderSMTP: "J.Smith@sa.gov.au"}
	addr, err := senderAddress(msg)
	if err != nil || addr != "j.smith@sa.gov.au" {
		t.Errorf("Expected SMTP address, got %q %v", addr, err)
	}

	if _, err := senderAddress(&Message{ID: "2", Sender: "/O=EXCHANGE/CN=X"}); !errors.Is(err, mtErrors.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestExcerptRuneBoundary(t *testing.T) {
	msg := &Message{Body: "héllo"}
	if got := msg.Excerpt(2); got != "h" {
		t.Errorf("Expected cut before multi-byte rune, got %q", got)
	}
	if got := msg.Excerpt(100); got != "héllo" {
		t.Errorf("Expected full body, got %q", got)
	}
}
