package mailbox

import (
	"context"
	"sort"
	"strings"
	"sync"

	mtErrors "github.com/harunnryd/mailtriage/internal/errors"

	"github.com/oklog/ulid/v2"
)

// Memory is an in-process mailbox. Folder paths compare case-insensitively.
type Memory struct {
	mu       sync.Mutex
	folders  []string
	messages map[string][]*Message
	sent     []*Draft

	// Failure injection, keyed by message ID.
	SenderErrors  map[string]error
	MoveErrors    map[string]error
	ForwardErrors map[string]error
	SendErr       error
}

func NewMemory(folders ...string) *Memory {
	m := &Memory{
		messages:      make(map[string][]*Message),
		SenderErrors:  make(map[string]error),
		MoveErrors:    make(map[string]error),
		ForwardErrors: make(map[string]error),
	}
	for _, f := range folders {
		m.addFolder(joinPath(splitPath(f)))
	}
	return m
}

// Deliver places msgs in folder, creating it if needed.
func (m *Memory) Deliver(folder string, msgs ...*Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path := m.addFolder(joinPath(splitPath(folder)))
	for _, msg := range msgs {
		msg.Folder = path
		m.messages[strings.ToLower(path)] = append(m.messages[strings.ToLower(path)], msg)
	}
}

// Messages returns the messages currently in folder.
func (m *Memory) Messages(folder string) []*Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Message(nil), m.messages[strings.ToLower(joinPath(splitPath(folder)))]...)
}

// Sent returns every draft passed to Send.
func (m *Memory) Sent() []*Draft {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Draft(nil), m.sent...)
}

func (m *Memory) addFolder(path string) string {
	for _, f := range m.folders {
		if strings.EqualFold(f, path) {
			return f
		}
	}
	segs := splitPath(path)
	for i := 1; i < len(segs); i++ {
		m.addFolderExact(joinPath(segs[:i]))
	}
	m.addFolderExact(path)
	return path
}

func (m *Memory) addFolderExact(path string) {
	for _, f := range m.folders {
		if strings.EqualFold(f, path) {
			return
		}
	}
	m.folders = append(m.folders, path)
}

func (m *Memory) ListUnread(ctx context.Context, folder Folder) ([]*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Message
	for _, msg := range m.messages[strings.ToLower(folder.Path)] {
		if msg.Unread {
			out = append(out, msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Received.Before(out[j].Received) })
	return out, nil
}

func (m *Memory) ResolveFolder(ctx context.Context, nameOrPath string) (Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return resolveIn(m.folders, nameOrPath)
}

func (m *Memory) EnsureFolder(ctx context.Context, path string) (Folder, error) {
	segs := splitPath(path)
	if len(segs) == 0 {
		return Folder{}, mtErrors.InvalidInput("empty folder path")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return Folder{Path: m.addFolder(joinPath(segs))}, nil
}

func (m *Memory) Move(ctx context.Context, msg *Message, folder Folder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.MoveErrors[msg.ID]; err != nil {
		return mtErrors.WrapTransient(err, "move "+msg.ID)
	}

	from := strings.ToLower(msg.Folder)
	list := m.messages[from]
	for i, candidate := range list {
		if candidate == msg {
			m.messages[from] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	msg.Unread = false
	msg.Folder = folder.Path
	to := strings.ToLower(folder.Path)
	m.messages[to] = append(m.messages[to], msg)
	return nil
}

func (m *Memory) Forward(ctx context.Context, msg *Message) (*Draft, error) {
	if err := m.ForwardErrors[msg.ID]; err != nil {
		return nil, mtErrors.WrapTransient(err, "forward "+msg.ID)
	}
	return forwardDraft(msg), nil
}

func (m *Memory) Send(ctx context.Context, draft *Draft) error {
	if m.SendErr != nil {
		return mtErrors.WrapTransient(m.SendErr, "send")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if draft.ID == "" {
		draft.ID = ulid.Make().String()
	}
	m.sent = append(m.sent, draft)
	return nil
}

func (m *Memory) ResolveSenderAddress(ctx context.Context, msg *Message) (string, error) {
	if err := m.SenderErrors[msg.ID]; err != nil {
		return "", err
	}
	return senderAddress(msg)
}

// senderAddress prefers the directory-resolved SMTP address over the raw sender.
func senderAddress(msg *Message) (string, error) {
	if s := strings.TrimSpace(msg.SenderSMTP); s != "" {
		return strings.ToLower(s), nil
	}
	if s := strings.TrimSpace(msg.Sender); strings.Contains(s, "@") {
		return strings.ToLower(s), nil
	}
	return "", mtErrors.NotFound("sender address for " + msg.ID)
}

// resolveIn finds a folder by full path, or by bare name with a bounded search.
func resolveIn(folders []string, nameOrPath string) (Folder, error) {
	segs := splitPath(nameOrPath)
	if len(segs) == 0 {
		return Folder{}, mtErrors.InvalidInput("empty folder name")
	}
	want := joinPath(segs)

	if len(segs) > 1 || strings.ContainsAny(nameOrPath, "/\\") {
		for _, f := range folders {
			if strings.EqualFold(f, want) {
				return Folder{Path: f}, nil
			}
		}
		return Folder{}, mtErrors.NotFound("folder " + want)
	}

	// Shallowest match wins, as a breadth-first walk would find it.
	best := ""
	for i, f := range folders {
		if i >= maxSearchNodes {
			break
		}
		fs := splitPath(f)
		if len(fs) > maxSearchDepth || !strings.EqualFold(fs[len(fs)-1], want) {
			continue
		}
		if best == "" || len(fs) < len(splitPath(best)) {
			best = f
		}
	}
	if best == "" {
		return Folder{}, mtErrors.NotFound("folder " + want)
	}
	return Folder{Path: best}, nil
}

const (
	maxSearchDepth = 6
	maxSearchNodes = 2500
)
