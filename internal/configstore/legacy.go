package configstore

import (
	"bufio"
	"log/slog"
	"os"
	"strings"

	"github.com/harunnryd/mailtriage/internal/policy"
)

// readAddressList reads a one-address-per-line file. Blank lines and lines
// starting with "#" are skipped; invalid addresses are dropped.
func readAddressList(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Legacy list unreadable", "path", path, "error", err)
		}
		return nil
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("Legacy list read interrupted", "path", path, "error", err)
	}

	valid, invalid := policy.NormalizeEmails(lines)
	if len(invalid) > 0 {
		slog.Warn("Legacy list entries dropped", "path", path, "count", len(invalid))
	}
	return valid
}

// legacyBuckets maps domain_policy.json onto the system_buckets.json shape.
func legacyBuckets(dp DomainPolicy) Buckets {
	return Buckets{
		TransferDomains:           nonNil(dp.ExternalImageRequestDomains),
		SystemNotificationDomains: nonNil(dp.SystemNotificationDomains),
		QuarantineDomains:         []string{},
		HeldDomains:               nonNil(dp.AlwaysHoldDomains),
		TransferSenders:           []string{},
		SystemNotificationSenders: []string{},
		QuarantineSenders:         []string{},
		HeldSenders:               []string{},
		Folders:                   map[string]string{},
	}
}
