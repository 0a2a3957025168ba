package mailbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	mtErrors "github.com/harunnryd/mailtriage/internal/errors"
	"github.com/harunnryd/mailtriage/internal/store"

	"github.com/oklog/ulid/v2"
)

const outboxDir = "outbox"

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Spool is a filesystem mailbox: one directory per folder, one JSON
// envelope per message. Sent drafts land in <root>/outbox.
type Spool struct {
	root  string
	store string
	mu    sync.Mutex
}

// NewSpool opens root. storeName is reported as every message's Store.
func NewSpool(root, storeName string) (*Spool, error) {
	if err := os.MkdirAll(filepath.Join(root, outboxDir), 0755); err != nil {
		return nil, fmt.Errorf("create spool: %w", err)
	}
	return &Spool{root: root, store: storeName}, nil
}

func (s *Spool) Root() string {
	return s.root
}

func (s *Spool) dir(folder string) string {
	return filepath.Join(append([]string{s.root}, splitPath(folder)...)...)
}

func (s *Spool) ListUnread(ctx context.Context, folder Folder) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir(folder.Path))
	if err != nil {
		return nil, mtErrors.WrapTransient(err, "list "+folder.Path)
	}

	var out []*Message
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msg, err := s.read(filepath.Join(s.dir(folder.Path), e.Name()))
		if err != nil {
			slog.Warn("Spool message unreadable", "folder", folder.Path, "file", e.Name(), "error", err)
			continue
		}
		if !msg.Unread {
			continue
		}
		msg.Folder = folder.Path
		out = append(out, msg)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Received.Before(out[j].Received) })
	return out, nil
}

func (s *Spool) read(path string) (*Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		msg.ID = strings.TrimSuffix(filepath.Base(path), ".json")
	}
	if msg.Store == "" {
		msg.Store = s.store
	}
	return &msg, nil
}

func fileName(id string) string {
	return unsafeName.ReplaceAllString(id, "_") + ".json"
}

// Deliver writes msg into folder as unread. It backs tests and manual injection.
func (s *Spool) Deliver(folder string, msg *Message) error {
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	msg.Unread = true
	return store.WriteJSON(filepath.Join(s.dir(folder), fileName(msg.ID)), msg)
}

// folders lists every folder path under root except the outbox.
func (s *Spool) folders() ([]string, error) {
	var out []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || path == s.root {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == outboxDir {
			return filepath.SkipDir
		}
		if strings.Count(rel, "/") >= maxSearchDepth || len(out) >= maxSearchNodes {
			return filepath.SkipDir
		}
		out = append(out, rel)
		return nil
	})
	return out, err
}

func (s *Spool) ResolveFolder(ctx context.Context, nameOrPath string) (Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	folders, err := s.folders()
	if err != nil {
		return Folder{}, mtErrors.WrapTransient(err, "scan spool folders")
	}
	return resolveIn(folders, nameOrPath)
}

func (s *Spool) EnsureFolder(ctx context.Context, path string) (Folder, error) {
	segs := splitPath(path)
	if len(segs) == 0 {
		return Folder{}, mtErrors.InvalidInput("empty folder path")
	}
	if err := os.MkdirAll(s.dir(joinPath(segs)), 0755); err != nil {
		return Folder{}, mtErrors.WrapTransient(err, "create folder "+path)
	}
	return Folder{Path: joinPath(segs)}, nil
}

func (s *Spool) Move(ctx context.Context, msg *Message, folder Folder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	src := filepath.Join(s.dir(msg.Folder), fileName(msg.ID))
	dst := filepath.Join(s.dir(folder.Path), fileName(msg.ID))
	msg.Unread = false
	if err := store.WriteJSON(dst, msg); err != nil {
		return mtErrors.WrapTransient(err, "move "+msg.ID)
	}
	if src != dst {
		if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
			return mtErrors.WrapTransient(err, "remove moved "+msg.ID)
		}
	}
	msg.Folder = folder.Path
	return nil
}

func (s *Spool) Forward(ctx context.Context, msg *Message) (*Draft, error) {
	return forwardDraft(msg), nil
}

func (s *Spool) Send(ctx context.Context, draft *Draft) error {
	if draft.ID == "" {
		draft.ID = ulid.Make().String()
	}
	if err := store.WriteJSON(filepath.Join(s.root, outboxDir, draft.ID+".json"), draft); err != nil {
		return mtErrors.WrapTransient(err, "send "+draft.ID)
	}
	slog.Debug("Draft spooled", "id", draft.ID, "to", len(draft.To), "cc", len(draft.CC))
	return nil
}

func (s *Spool) ResolveSenderAddress(ctx context.Context, msg *Message) (string, error) {
	return senderAddress(msg)
}

// Outbox returns the drafts written by Send, oldest first.
func (s *Spool) Outbox() ([]*Draft, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, outboxDir))
	if err != nil {
		return nil, err
	}
	var out []*Draft
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" {
			continue
		}
		var d Draft
		if err := store.ReadJSON(filepath.Join(s.root, outboxDir, e.Name()), &d); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, nil
}
