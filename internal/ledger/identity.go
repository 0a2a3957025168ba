package ledger

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// IDs are the transport identifiers a message may carry.
type IDs struct {
	EntryID           string
	StoreID           string
	InternetMessageID string
}

// Stamp copies the non-empty identifiers onto e.
func (ids IDs) Stamp(e *Entry) {
	if ids.EntryID != "" {
		e.EntryID = ids.EntryID
	}
	if ids.StoreID != "" {
		e.StoreID = ids.StoreID
	}
	if ids.InternetMessageID != "" {
		e.InternetMessageID = ids.InternetMessageID
	}
}

// Identity returns the durable ledger key, strongest identifier first:
// store+entry, internet message id, entry id, then a sender/subject/time composite.
func Identity(ids IDs, sender, subject string, received time.Time) string {
	switch {
	case ids.StoreID != "" && ids.EntryID != "":
		return fmt.Sprintf("store:%s|entry:%s", ids.StoreID, ids.EntryID)
	case ids.InternetMessageID != "":
		return "internet:" + ids.InternetMessageID
	case ids.EntryID != "":
		return ids.EntryID
	}
	return fmt.Sprintf("fallback:%s|%s|%s", sender, subject, formatReceived(received))
}

// SAMIRef derives the short reference embedded in forwarded subjects.
// It is stable for a given entry id, or for received/sender/class when there is none.
func SAMIRef(entryID string, received time.Time, sender, messageClass string) string {
	seed := strings.TrimSpace(entryID)
	if seed == "" {
		seed = fmt.Sprintf("%s|%s|%s|fallback", formatReceived(received), sender, messageClass)
	}
	sum := sha1.Sum([]byte(seed))
	return "SAMI-" + strings.ToUpper(hex.EncodeToString(sum[:]))[:6]
}

// TagSubject prefixes "[ref] " unless the subject already carries a SAMI tag.
func TagSubject(subject, ref string) string {
	if ref == "" || strings.Contains(strings.ToLower(subject), "[sami-") {
		return subject
	}
	return strings.TrimSpace(fmt.Sprintf("[%s] %s", ref, subject))
}

func formatReceived(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
