package configstore

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harunnryd/mailtriage/internal/policy"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Roster is staff.json.
type Roster struct {
	Staff       []string `json:"staff"`
	OffRotation []string `json:"off_rotation"`
	Leave       []string `json:"leave"`
}

// Recipients is apps_team.json and manager_config.json.
type Recipients struct {
	Recipients []string `json:"recipients"`
}

// Buckets is system_buckets.json.
type Buckets struct {
	TransferDomains           []string          `json:"transfer_domains"`
	SystemNotificationDomains []string          `json:"system_notification_domains"`
	QuarantineDomains         []string          `json:"quarantine_domains"`
	HeldDomains               []string          `json:"held_domains"`
	TransferSenders           []string          `json:"transfer_senders"`
	SystemNotificationSenders []string          `json:"system_notification_senders"`
	QuarantineSenders         []string          `json:"quarantine_senders"`
	HeldSenders               []string          `json:"held_senders"`
	Folders                   map[string]string `json:"folders"`
}

// DomainPolicy is the legacy domain_policy.json. It still supplies internal
// domains, support staff and the HIB noise rule.
type DomainPolicy struct {
	InternalDomains             []string             `json:"internal_domains"`
	ExternalImageRequestDomains []string             `json:"external_image_request_domains"`
	SystemNotificationDomains   []string             `json:"system_notification_domains"`
	AlwaysHoldDomains           []string             `json:"always_hold_domains"`
	SAMISupportStaff            []string             `json:"sami_support_staff"`
	HIBNoise                    *policy.HIBNoiseRule `json:"hib_noise,omitempty"`
}

// Folder keys system_buckets.json may set. Other keys are ignored.
var AllowedFolderKeys = []string{"completed", "non_actionable", "quarantine", "hold", "system_notification"}

const stringListDef = `{"type": "array", "items": {"type": "string"}}`

var schemas = map[string]string{
	"staff.json": `{
		"type": "object",
		"properties": {
			"staff": ` + stringListDef + `,
			"off_rotation": ` + stringListDef + `,
			"leave": ` + stringListDef + `
		}
	}`,
	"recipients.json": `{
		"type": "object",
		"properties": {"recipients": ` + stringListDef + `}
	}`,
	"system_buckets.json": `{
		"type": "object",
		"properties": {
			"transfer_domains": ` + stringListDef + `,
			"system_notification_domains": ` + stringListDef + `,
			"quarantine_domains": ` + stringListDef + `,
			"held_domains": ` + stringListDef + `,
			"transfer_senders": ` + stringListDef + `,
			"system_notification_senders": ` + stringListDef + `,
			"quarantine_senders": ` + stringListDef + `,
			"held_senders": ` + stringListDef + `,
			"folders": {"type": "object"}
		}
	}`,
	"domain_policy.json": `{
		"type": "object",
		"properties": {
			"internal_domains": ` + stringListDef + `,
			"external_image_request_domains": ` + stringListDef + `,
			"system_notification_domains": ` + stringListDef + `,
			"always_hold_domains": ` + stringListDef + `,
			"sami_support_staff": ` + stringListDef + `,
			"hib_noise": {
				"type": "object",
				"properties": {
					"sender_equals": {"type": "string"},
					"subject_contains_all": ` + stringListDef + `,
					"subject_contains_any": ` + stringListDef + `
				}
			}
		}
	}`,
}

func compileSchemas() (map[string]*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	for name, src := range schemas {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("parse schema %s: %w", name, err)
		}
		if err := c.AddResource(name, doc); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
	}

	out := make(map[string]*jsonschema.Schema, len(schemas))
	for name := range schemas {
		sch, err := c.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		out[name] = sch
	}
	return out, nil
}

func parseRoster(_ map[string]any, clean []byte) (Roster, string) {
	var raw Roster
	if err := json.Unmarshal(clean, &raw); err != nil {
		return Roster{}, "staff.json " + err.Error()
	}

	var out Roster
	for _, field := range []struct {
		key string
		in  []string
		dst *[]string
	}{
		{"staff", raw.Staff, &out.Staff},
		{"off_rotation", raw.OffRotation, &out.OffRotation},
		{"leave", raw.Leave, &out.Leave},
	} {
		valid, invalid := policy.NormalizeEmails(field.in)
		if len(invalid) > 0 {
			return Roster{}, "staff.json contains invalid email in " + field.key
		}
		*field.dst = nonNil(valid)
	}
	return out, ""
}

func recipientsParser(name string) parseFunc[Recipients] {
	return func(_ map[string]any, clean []byte) (Recipients, string) {
		var raw Recipients
		if err := json.Unmarshal(clean, &raw); err != nil {
			return Recipients{}, name + ".json " + err.Error()
		}
		valid, invalid := policy.NormalizeEmails(raw.Recipients)
		if len(invalid) > 0 {
			return Recipients{}, name + ".json contains invalid email in recipients"
		}
		return Recipients{Recipients: nonNil(valid)}, ""
	}
}

func parseBuckets(_ map[string]any, clean []byte) (Buckets, string) {
	var raw Buckets
	if err := json.Unmarshal(clean, &raw); err != nil {
		return Buckets{}, "system_buckets.json " + err.Error()
	}

	var out Buckets
	for _, field := range []struct {
		key string
		in  []string
		dst *[]string
	}{
		{"transfer_domains", raw.TransferDomains, &out.TransferDomains},
		{"system_notification_domains", raw.SystemNotificationDomains, &out.SystemNotificationDomains},
		{"quarantine_domains", raw.QuarantineDomains, &out.QuarantineDomains},
		{"held_domains", raw.HeldDomains, &out.HeldDomains},
	} {
		valid, invalid := policy.NormalizeDomains(field.in)
		if len(invalid) > 0 {
			return Buckets{}, "system_buckets.json contains invalid domain in " + field.key
		}
		*field.dst = nonNil(valid)
	}

	for _, field := range []struct {
		key string
		in  []string
		dst *[]string
	}{
		{"transfer_senders", raw.TransferSenders, &out.TransferSenders},
		{"system_notification_senders", raw.SystemNotificationSenders, &out.SystemNotificationSenders},
		{"quarantine_senders", raw.QuarantineSenders, &out.QuarantineSenders},
		{"held_senders", raw.HeldSenders, &out.HeldSenders},
	} {
		valid, invalid := policy.NormalizeEmails(field.in)
		if len(invalid) > 0 {
			return Buckets{}, "system_buckets.json contains invalid email in " + field.key
		}
		*field.dst = nonNil(valid)
	}

	out.Folders = make(map[string]string)
	for _, key := range AllowedFolderKeys {
		value, ok := raw.Folders[key]
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			return Buckets{}, "system_buckets.json invalid folder name for " + key
		}
		out.Folders[key] = value
	}
	return out, ""
}

// parseDomainPolicy drops bad entries rather than rejecting the file.
func parseDomainPolicy(_ map[string]any, clean []byte) (DomainPolicy, string) {
	var raw DomainPolicy
	if err := json.Unmarshal(clean, &raw); err != nil {
		return DomainPolicy{}, "domain_policy.json " + err.Error()
	}

	var out DomainPolicy
	out.InternalDomains, _ = policy.NormalizeDomains(raw.InternalDomains)
	out.ExternalImageRequestDomains, _ = policy.NormalizeDomains(raw.ExternalImageRequestDomains)
	out.SystemNotificationDomains, _ = policy.NormalizeDomains(raw.SystemNotificationDomains)
	out.AlwaysHoldDomains, _ = policy.NormalizeDomains(raw.AlwaysHoldDomains)
	out.SAMISupportStaff, _ = policy.NormalizeEmails(raw.SAMISupportStaff)
	if raw.HIBNoise != nil && strings.TrimSpace(raw.HIBNoise.SenderEquals) != "" {
		out.HIBNoise = raw.HIBNoise
	}
	return out, ""
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
