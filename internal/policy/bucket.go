package policy

import "fmt"

// Bucket is the routing category a sender resolves to.
type Bucket int

const (
	Unknown Bucket = iota
	Quarantine
	Hold
	SystemNotification
	ExternalImageRequest
	Internal
)

func (b Bucket) String() string {
	switch b {
	case Quarantine:
		return "quarantine"
	case Hold:
		return "hold"
	case SystemNotification:
		return "system_notification"
	case ExternalImageRequest:
		return "external_image_request"
	case Internal:
		return "internal"
	case Unknown:
		return "unknown"
	default:
		return fmt.Sprintf("bucket(%d)", int(b))
	}
}

// ParseBucket is the inverse of String.
func ParseBucket(s string) (Bucket, error) {
	for _, b := range []Bucket{Unknown, Quarantine, Hold, SystemNotification, ExternalImageRequest, Internal} {
		if b.String() == s {
			return b, nil
		}
	}
	return Unknown, fmt.Errorf("unknown bucket %q", s)
}

// MatchLevel records which rule produced a bucket.
type MatchLevel int

const (
	MatchNone MatchLevel = iota
	MatchSender
	MatchDomain
)

func (m MatchLevel) String() string {
	switch m {
	case MatchSender:
		return "sender"
	case MatchDomain:
		return "domain"
	default:
		return ""
	}
}
