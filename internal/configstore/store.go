package configstore

import (
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/harunnryd/mailtriage/internal/policy"
)

// Policy sources recorded on every event-log row.
const (
	SourceSystemBuckets   = "system_buckets"
	SourceLegacy          = "legacy"
	SourceInvalidFallback = "invalid_fallback"
)

// Snapshot is the resolved configuration for one tick. It is never mutated after Load returns.
type Snapshot struct {
	Roster       Roster
	Managers     []string
	Apps         []string
	Policy       *policy.PolicySet
	Folders      map[string]string
	PolicySource string
}

// Store owns the per-file LKG caches. They live in memory only, so every
// file is re-validated once after a restart.
type Store struct {
	dir             string
	internalDomains []string

	staff        *hotFile[Roster]
	apps         *hotFile[Recipients]
	managers     *hotFile[Recipients]
	buckets      *hotFile[Buckets]
	domainPolicy *hotFile[DomainPolicy]

	mu sync.Mutex
}

// New prepares a store over dir. internalDomains seeds the internal-domain list
// before domain_policy.json adds its own.
func New(dir string, internalDomains []string) (*Store, error) {
	compiled, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	internal, invalid := policy.NormalizeDomains(internalDomains)
	if len(invalid) > 0 {
		slog.Warn("Configured internal domains dropped", "count", len(invalid))
	}

	return &Store{
		dir:             dir,
		internalDomains: internal,
		staff: &hotFile[Roster]{
			name:     "staff",
			path:     filepath.Join(dir, "staff.json"),
			required: []string{"staff", "off_rotation", "leave"},
			schema:   compiled["staff.json"],
			parse:    parseRoster,
		},
		apps: &hotFile[Recipients]{
			name:     "apps_team",
			path:     filepath.Join(dir, "apps_team.json"),
			required: []string{"recipients"},
			schema:   compiled["recipients.json"],
			parse:    recipientsParser("apps_team"),
		},
		managers: &hotFile[Recipients]{
			name:     "manager_config",
			path:     filepath.Join(dir, "manager_config.json"),
			required: []string{"recipients"},
			schema:   compiled["recipients.json"],
			parse:    recipientsParser("manager_config"),
		},
		buckets: &hotFile[Buckets]{
			name: "system_buckets",
			path: filepath.Join(dir, "system_buckets.json"),
			required: []string{
				"transfer_domains", "system_notification_domains",
				"quarantine_domains", "held_domains", "folders",
			},
			schema: compiled["system_buckets.json"],
			parse:  parseBuckets,
		},
		domainPolicy: &hotFile[DomainPolicy]{
			name:   "domain_policy",
			path:   filepath.Join(dir, "domain_policy.json"),
			schema: compiled["domain_policy.json"],
			parse:  parseDomainPolicy,
		},
	}, nil
}

// Invalidate marks the named file for a content check on the next Load, even
// when its size and mtime look unchanged. Unknown names are ignored. Safe to call
// from another goroutine while a Load is running.
func (s *Store) Invalidate(file string) bool {
	switch file {
	case "staff.json":
		s.staff.invalidate()
	case "apps_team.json":
		s.apps.invalidate()
	case "manager_config.json":
		s.managers.invalidate()
	case "system_buckets.json":
		s.buckets.invalidate()
	case "domain_policy.json":
		s.domainPolicy.invalidate()
	default:
		return false
	}
	return true
}

func (s *Store) Dir() string {
	return s.dir
}

// Load re-validates changed files and returns the snapshot plus the events to record.
// Legacy fallbacks never produce events; domain_policy.json problems are only logged.
func (s *Store) Load() (*Snapshot, []Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []Event
	collect := func(e *Event) {
		if e != nil {
			events = append(events, *e)
		}
	}

	roster, ok, ev := s.staff.reload()
	collect(ev)
	if !ok {
		roster = Roster{
			Staff:       nonNil(readAddressList(filepath.Join(s.dir, "staff.txt"))),
			OffRotation: []string{},
			Leave:       []string{},
		}
	}

	apps, ok, ev := s.apps.reload()
	collect(ev)
	if !ok {
		apps = Recipients{Recipients: nonNil(readAddressList(filepath.Join(s.dir, "apps.txt")))}
	}

	managers, ok, ev := s.managers.reload()
	collect(ev)
	if !ok {
		managers = Recipients{Recipients: nonNil(readAddressList(filepath.Join(s.dir, "managers.txt")))}
	}

	dp, dpOK, dpEvent := s.domainPolicy.reload()
	if dpEvent != nil && dpEvent.Type == EventInvalid {
		slog.Warn("Domain policy rejected, keeping last known good", "reason", dpEvent.Reason)
	}

	buckets, ok, ev := s.buckets.reload()
	collect(ev)
	source := SourceSystemBuckets
	if !ok {
		if dpOK {
			buckets = legacyBuckets(dp)
			source = SourceLegacy
		} else {
			buckets = legacyBuckets(DomainPolicy{})
			source = SourceInvalidFallback
		}
	}

	set := &policy.PolicySet{
		Quarantine:           policy.Rule{Senders: buckets.QuarantineSenders, Domains: buckets.QuarantineDomains},
		Hold:                 policy.Rule{Senders: buckets.HeldSenders, Domains: buckets.HeldDomains},
		SystemNotification:   policy.Rule{Senders: buckets.SystemNotificationSenders, Domains: buckets.SystemNotificationDomains},
		ExternalImageRequest: policy.Rule{Senders: buckets.TransferSenders, Domains: buckets.TransferDomains},
		InternalDomains:      mergeUnique(s.internalDomains, dp.InternalDomains),
		SupportStaff:         nonNil(dp.SAMISupportStaff),
		HIBNoise:             dp.HIBNoise,
	}

	folders := make(map[string]string, len(buckets.Folders))
	for k, v := range buckets.Folders {
		folders[k] = v
	}

	return &Snapshot{
		Roster:       roster,
		Managers:     managers.Recipients,
		Apps:         apps.Recipients,
		Policy:       set,
		Folders:      folders,
		PolicySource: source,
	}, events
}

func mergeUnique(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
