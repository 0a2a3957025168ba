package configstore

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/tidwall/jsonc"
	"github.com/zeebo/blake3"
)

// EventType is the event-log type for a config reload outcome.
type EventType string

const (
	EventChanged EventType = "CONFIG_CHANGED"
	EventInvalid EventType = "CONFIG_INVALID"
)

// Event reports one reload outcome. Reason is set for EventInvalid.
type Event struct {
	Type   EventType
	Name   string
	Reason string
}

type fingerprint struct {
	mtimeNS int64
	size    int64
}

// parseFunc validates a decoded document and returns its normalized value,
// or a human-readable rejection reason.
type parseFunc[T any] func(doc map[string]any, clean []byte) (T, string)

// hotFile caches one JSON config file with last-known-good semantics.
// A given fingerprint is validated at most once; a rejected file never replaces the LKG.
type hotFile[T any] struct {
	name     string
	path     string
	required []string
	schema   *jsonschema.Schema
	parse    parseFunc[T]

	seen     bool
	seenFP   fingerprint
	seenHash string
	// stale forces a content check even when the fingerprint is unchanged.
	stale atomic.Bool

	hasLKG  bool
	lkg     T
	lkgHash string
}

// reload returns the current LKG and an event when the file changed or was rejected.
func (h *hotFile[T]) reload() (T, bool, *Event) {
	info, err := os.Stat(h.path)
	if err != nil {
		return h.lkg, h.hasLKG, nil
	}
	fp := fingerprint{mtimeNS: info.ModTime().UnixNano(), size: info.Size()}
	forced := h.stale.Swap(false)
	if h.seen && fp == h.seenFP && !forced {
		return h.lkg, h.hasLKG, nil
	}
	sameFP := h.seen && fp == h.seenFP
	h.seen = true
	h.seenFP = fp

	raw, err := os.ReadFile(h.path)
	if err != nil {
		return h.reject(fmt.Sprintf("read_failed:%s", errorClass(err)))
	}
	rawHash := contentHash(raw)
	if sameFP && rawHash == h.seenHash {
		return h.lkg, h.hasLKG, nil
	}
	h.seenHash = rawHash

	text := bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(text) {
		return h.reject("decode_failed")
	}

	clean := jsonc.ToJSON(text)
	decoded, err := jsonschema.UnmarshalJSON(bytes.NewReader(clean))
	if err != nil {
		return h.reject(fmt.Sprintf("invalid_json:%s", errorClass(err)))
	}
	doc, ok := decoded.(map[string]any)
	if !ok {
		return h.reject(fmt.Sprintf("%s must be a JSON object", h.fileName()))
	}
	for _, key := range h.required {
		if _, ok := doc[key]; !ok {
			return h.reject(fmt.Sprintf("%s missing key: %s", h.fileName(), key))
		}
	}
	if h.schema != nil {
		if err := h.schema.Validate(decoded); err != nil {
			return h.reject("schema:" + summary(err))
		}
	}

	value, reason := h.parse(doc, clean)
	if reason != "" {
		return h.reject(reason)
	}

	stable, err := json.Marshal(value)
	if err != nil {
		return h.reject(fmt.Sprintf("encode_failed:%s", errorClass(err)))
	}
	sum := contentHash(stable)
	if h.hasLKG && sum == h.lkgHash {
		return h.lkg, true, nil
	}

	h.lkg = value
	h.lkgHash = sum
	h.hasLKG = true
	return value, true, &Event{Type: EventChanged, Name: h.name}
}

func (h *hotFile[T]) invalidate() {
	h.stale.Store(true)
}

func (h *hotFile[T]) reject(reason string) (T, bool, *Event) {
	return h.lkg, h.hasLKG, &Event{Type: EventInvalid, Name: h.name, Reason: reason}
}

func (h *hotFile[T]) fileName() string {
	return h.name + ".json"
}

func contentHash(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// errorClass keeps reasons short and free of file contents.
func errorClass(err error) string {
	switch {
	case os.IsPermission(err):
		return "permission_denied"
	case os.IsNotExist(err):
		return "not_found"
	}
	var syntax *json.SyntaxError
	if errors.As(err, &syntax) {
		return fmt.Sprintf("syntax_error_at_%d", syntax.Offset)
	}
	return strings.ReplaceAll(strings.TrimSpace(summary(err)), " ", "_")
}

func summary(err error) string {
	msg := err.Error()
	lines := strings.Split(msg, "\n")
	out := strings.TrimSpace(lines[0])
	for _, l := range lines[1:] {
		l = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(l), "-"))
		if l != "" {
			out = l
			break
		}
	}
	if len(out) > 160 {
		out = out[:160]
	}
	return out
}
