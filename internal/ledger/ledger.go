package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	mtErrors "github.com/harunnryd/mailtriage/internal/errors"
	"github.com/harunnryd/mailtriage/internal/store"
)

// Non-staff assignee labels. Anything containing "@" is a staff address.
const (
	AssignedBot                = "bot"
	AssignedCompleted          = "completed"
	AssignedError              = "error"
	AssignedHIB                = "hib"
	AssignedHold               = "hold"
	AssignedManagerReview      = "manager_review"
	AssignedNonActionable      = "non_actionable"
	AssignedQuarantined        = "quarantined"
	AssignedSkipped            = "skipped"
	AssignedSystemNotification = "system_notification"
)

// Completion sources recorded on linked entries.
const (
	SourceSubjectKeyword    = "subject_keyword"
	SourceStaffConfirmation = "staff_completed_confirmation"
	SourceReplyAllCC        = "reply_all_cc"
	SourceSupportStaff      = "sami_support_staff"
	SourceInternalReply     = "internal_reply"
)

// JiraFollowUpSuffix marks the secondary key written for a Jira follow-up assignment.
const JiraFollowUpSuffix = "::JIRA_FOLLOWUP"

const timestampLayout = time.RFC3339

// Entry is one ledger record. Only the key's first write creates it;
// completion events update it in place.
type Entry struct {
	TS                string `json:"ts"`
	AssignedTo        string `json:"assigned_to,omitempty"`
	Risk              string `json:"risk,omitempty"`
	Route             string `json:"route,omitempty"`
	Reason            string `json:"reason,omitempty"`
	MatchLevel        string `json:"match_level,omitempty"`
	ConversationID    string `json:"conversation_id,omitempty"`
	CompletedAt       string `json:"completed_at,omitempty"`
	CompletedBy       string `json:"completed_by,omitempty"`
	CompletionSource  string `json:"completion_source,omitempty"`
	CompletionSubject string `json:"completion_subject,omitempty"`
	EntryID           string `json:"entry_id,omitempty"`
	StoreID           string `json:"store_id,omitempty"`
	InternetMessageID string `json:"internet_message_id,omitempty"`
	AppsFwd           bool   `json:"apps_fwd,omitempty"`
	MsgKey            string `json:"msg_key,omitempty"`
}

// IsStaffAssignee reports whether assigned is a staff address rather than a label.
func IsStaffAssignee(assigned string) bool {
	switch assigned {
	case "", AssignedBot, AssignedCompleted, AssignedError, AssignedHIB, AssignedHold,
		AssignedManagerReview, AssignedNonActionable, AssignedQuarantined,
		AssignedSkipped, AssignedSystemNotification:
		return false
	}
	return strings.Contains(assigned, "@")
}

// Ledger is the processed-message index. It is loaded once per tick and
// written back after every mutation.
type Ledger struct {
	path    string
	entries map[string]*Entry
}

// Bootstrap creates an empty ledger when none exists. It reports whether a file was created.
func Bootstrap(path string) (bool, error) {
	if store.Exists(path) {
		return false, nil
	}
	if err := store.WriteJSON(path, map[string]*Entry{}); err != nil {
		return false, fmt.Errorf("bootstrap ledger: %w", err)
	}
	slog.Info("Ledger bootstrapped", "path", path)
	return true, nil
}

// Open loads the ledger. A missing file is ErrStateMissing: the tick must not run.
func Open(path string) (*Ledger, error) {
	entries := map[string]*Entry{}
	if err := store.ReadJSON(path, &entries); err != nil {
		if errors.Is(err, mtErrors.ErrNotFound) {
			return nil, fmt.Errorf("processed ledger %s: %w", path, mtErrors.ErrStateMissing)
		}
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if entries == nil {
		entries = map[string]*Entry{}
	}
	return &Ledger{path: path, entries: entries}, nil
}

func (l *Ledger) Len() int {
	return len(l.entries)
}

func (l *Ledger) Has(key string) bool {
	_, ok := l.entries[key]
	return ok
}

// Get returns a copy of the entry stored under key.
func (l *Ledger) Get(key string) (Entry, bool) {
	e, ok := l.entries[key]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Put records a new entry and saves. An existing key is ErrDuplicate and is left untouched.
func (l *Ledger) Put(key string, e Entry) error {
	if key == "" {
		return mtErrors.InvalidInput("empty ledger key")
	}
	if _, ok := l.entries[key]; ok {
		return fmt.Errorf("ledger key %q: %w", key, mtErrors.ErrDuplicate)
	}
	entry := e
	l.entries[key] = &entry
	if err := l.Save(); err != nil {
		delete(l.entries, key)
		return err
	}
	return nil
}

// Update mutates an existing entry and saves.
func (l *Ledger) Update(key string, fn func(*Entry)) error {
	e, ok := l.entries[key]
	if !ok {
		return mtErrors.NotFound("ledger key " + key)
	}
	before := *e
	fn(e)
	if err := l.Save(); err != nil {
		*e = before
		return err
	}
	return nil
}

func (l *Ledger) Save() error {
	if err := store.WriteJSON(l.path, l.entries); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	return nil
}

// FindByConversation returns the key of the earliest entry in the conversation.
// Ties on ts are broken by key so the answer is stable across map order.
func (l *Ledger) FindByConversation(conversationID string) (string, bool) {
	if conversationID == "" {
		return "", false
	}
	var keys []string
	for k, e := range l.entries {
		if e.ConversationID == conversationID && e.AssignedTo != AssignedCompleted {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return "", false
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := l.entries[keys[i]].TS, l.entries[keys[j]].TS
		if a != b {
			return a < b
		}
		return keys[i] < keys[j]
	})
	return keys[0], true
}

// Link is the outcome of LinkCompletion.
type Link struct {
	Matched    bool
	Key        string
	AssignedAt time.Time
	AssignedTo string
}

// Duration is the time from assignment to completion, or zero when unknown.
func (k Link) Duration(completedAt time.Time) time.Duration {
	if !k.Matched || k.AssignedAt.IsZero() || completedAt.Before(k.AssignedAt) {
		return 0
	}
	return completedAt.Sub(k.AssignedAt)
}

// Completion describes a completion signal to link.
type Completion struct {
	Key            string
	ConversationID string
	By             string
	Source         string
	Subject        string
	IDs            IDs
}

// LinkCompletion marks the conversation's assignment complete. With no match a
// standalone completed entry is recorded under c.Key so the event is kept.
// It never touches the rotation.
func (l *Ledger) LinkCompletion(c Completion, now time.Time) (Link, error) {
	stamp := now.Format(timestampLayout)

	if match, ok := l.FindByConversation(c.ConversationID); ok {
		entry := l.entries[match]
		link := Link{Matched: true, Key: match, AssignedTo: entry.AssignedTo}
		if t, err := time.Parse(timestampLayout, entry.TS); err == nil {
			link.AssignedAt = t
		}
		err := l.Update(match, func(e *Entry) {
			e.CompletedAt = stamp
			e.CompletedBy = c.By
			e.CompletionSource = c.Source
			if c.Source == SourceReplyAllCC {
				e.CompletionSubject = c.Subject
			}
		})
		return link, err
	}

	if l.Has(c.Key) {
		return Link{Key: c.Key}, fmt.Errorf("ledger key %q: %w", c.Key, mtErrors.ErrDuplicate)
	}
	entry := Entry{
		TS:               stamp,
		AssignedTo:       AssignedCompleted,
		Risk:             "normal",
		ConversationID:   c.ConversationID,
		CompletionSource: c.Source,
		CompletedAt:      stamp,
		CompletedBy:      c.By,
	}
	c.IDs.Stamp(&entry)
	return Link{Key: c.Key}, l.Put(c.Key, entry)
}

// Keys returns every key in sorted order.
func (l *Ledger) Keys() []string {
	keys := make([]string, 0, len(l.entries))
	for k := range l.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FormatTime renders t the way entries store timestamps.
func FormatTime(t time.Time) string {
	return t.Format(timestampLayout)
}
