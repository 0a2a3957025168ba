package configstore

import (
	"encoding/json"
	"log/slog"
	"os"
	"strings"

	"github.com/harunnryd/mailtriage/internal/config"
	"github.com/harunnryd/mailtriage/internal/policy"

	"github.com/tidwall/jsonc"
)

// Overrides is the accepted subset of settings_overrides.json.
// Zero values mean "not overridden".
type Overrides struct {
	InboxFolder           string
	ProcessedFolder       string
	CompletionCCAddr      string
	AppsCCAddrs           []string
	ManagerCCAddrs        []string
	UnknownDomainMode     string
	TargetMailboxStore    string
	DisableUrgentWatchdog bool
}

type overrideValidator func(raw json.RawMessage, o *Overrides) bool

var overrideValidators = map[string]overrideValidator{
	"inbox_folder":            stringOverride(func(o *Overrides, v string) { o.InboxFolder = v }),
	"processed_folder":        stringOverride(func(o *Overrides, v string) { o.ProcessedFolder = v }),
	"target_mailbox_store":    stringOverride(func(o *Overrides, v string) { o.TargetMailboxStore = v }),
	"completion_cc_addr":      addressOverride(false, func(o *Overrides, v []string) { o.CompletionCCAddr = v[0] }),
	"apps_cc_addr":            addressOverride(true, func(o *Overrides, v []string) { o.AppsCCAddrs = v }),
	"manager_cc_addr":         addressOverride(true, func(o *Overrides, v []string) { o.ManagerCCAddrs = v }),
	"unknown_domain_mode":     unknownDomainModeOverride,
	"disable_urgent_watchdog": boolOverride(func(o *Overrides, v bool) { o.DisableUrgentWatchdog = v }),
}

var addressKeys = map[string]bool{
	"completion_cc_addr": true,
	"apps_cc_addr":       true,
	"manager_cc_addr":    true,
}

// LoadOverrides reads settings_overrides.json. A missing file yields no overrides;
// rejected keys are logged and skipped. Addresses are never logged.
func LoadOverrides(path string) Overrides {
	var out Overrides

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Settings overrides unreadable", "path", path, "error", err)
		}
		return out
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
		slog.Warn("Override rejected", "reason", "not_object", "path", path)
		return out
	}

	for key, value := range raw {
		validate, ok := overrideValidators[key]
		if !ok {
			slog.Warn("Override rejected", "key", key, "reason", "not_allowed")
			continue
		}
		if !validate(value, &out) {
			slog.Warn("Override rejected", "key", key, "reason", "invalid_value")
			continue
		}
		if addressKeys[key] {
			slog.Info("Override accepted", "key", key, "value", "set")
		} else {
			slog.Info("Override accepted", "key", key, "value", string(value))
		}
	}
	return out
}

func stringOverride(set func(*Overrides, string)) overrideValidator {
	return func(raw json.RawMessage, o *Overrides) bool {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return false
		}
		v = strings.TrimSpace(v)
		if v == "" {
			return false
		}
		set(o, v)
		return true
	}
}

// addressOverride accepts one address, or a ";"-separated list when multi is set.
func addressOverride(multi bool, set func(*Overrides, []string)) overrideValidator {
	return func(raw json.RawMessage, o *Overrides) bool {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return false
		}
		parts := []string{v}
		if multi {
			parts = strings.Split(v, ";")
		}
		var addrs []string
		for _, part := range parts {
			addr, ok := policy.NormalizeEmail(part)
			if !ok || len(addr) < 6 || len(addr) > 254 {
				return false
			}
			addrs = append(addrs, addr)
		}
		if len(addrs) == 0 {
			return false
		}
		set(o, addrs)
		return true
	}
}

func unknownDomainModeOverride(raw json.RawMessage, o *Overrides) bool {
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch v = strings.TrimSpace(v); v {
	case config.UnknownDomainHoldManager, config.UnknownDomainHoldApps, config.UnknownDomainHoldBoth:
		o.UnknownDomainMode = v
		return true
	}
	return false
}

func boolOverride(set func(*Overrides, bool)) overrideValidator {
	return func(raw json.RawMessage, o *Overrides) bool {
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return false
		}
		set(o, v)
		return true
	}
}
